package streamvar

import (
	"crypto/subtle"
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultPrefix is the reserved path prefix of upload URLs.
const DefaultPrefix = "APP/UPLOAD/"

// URLScheme is the scheme of upload target URLs. The client resolves it
// against the application URL.
const URLScheme = "app://"

// Registry errors.
var (
	// ErrNotFound is returned when no receiver is registered for a
	// (paintableID, variableName) pair.
	ErrNotFound = errors.New("streamvar: stream variable not found")

	// ErrInvalidSecurityKey is returned when the supplied key does not match
	// the key of the registered receiver.
	ErrInvalidSecurityKey = errors.New("streamvar: invalid security key")

	// ErrInvalidReceiver is returned when a receiver cannot be registered.
	ErrInvalidReceiver = errors.New("streamvar: invalid receiver")
)

// slot is a (paintableID, variableName) pair.
type slot struct {
	owner string
	name  string
}

// keyEntry is a reverse index entry. slots lists every pair the receiver
// was registered for since it was keyed; overwriting a pair with another
// receiver keeps the slot so the key survives re-registration.
type keyEntry struct {
	key   string
	slots map[slot]struct{}
}

// Registry maps (paintableID, variableName) pairs to receivers and issues
// per-receiver security keys.
type Registry struct {
	mu sync.Mutex

	// Lazily initialized on first registration.
	byOwner map[string]map[string]StreamVariable
	keys    map[StreamVariable]*keyEntry
	held    map[string]map[StreamVariable]struct{}

	prefix string
	newKey func() string
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithPrefix sets the upload URL prefix. Default: DefaultPrefix.
func WithPrefix(prefix string) RegistryOption {
	return func(r *Registry) {
		if prefix != "" {
			r.prefix = NormalizePrefix(prefix)
		}
	}
}

// WithKeyGenerator overrides the security key generator. Intended for tests.
func WithKeyGenerator(gen func() string) RegistryOption {
	return func(r *Registry) {
		if gen != nil {
			r.newKey = gen
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		prefix: DefaultPrefix,
		newKey: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NormalizePrefix strips a leading slash and ensures a trailing one.
func NormalizePrefix(prefix string) string {
	prefix = strings.TrimPrefix(prefix, "/")
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

// Prefix returns the upload URL prefix.
func (r *Registry) Prefix() string {
	return r.prefix
}

// Register binds sv to (paintableID, name) and returns the upload URL.
//
// A receiver keeps its key for as long as it is held by any pair, including
// pairs where it was later replaced by another receiver. Registering a
// different receiver for a pair mints a key only if that receiver was never
// keyed. Keys are released by Unregister and Clear.
func (r *Registry) Register(paintableID, name string, sv StreamVariable) (string, error) {
	if paintableID == "" || name == "" {
		return "", ErrInvalidReceiver
	}
	if !hashable(sv) {
		return "", ErrInvalidReceiver
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byOwner == nil {
		r.byOwner = make(map[string]map[string]StreamVariable)
		r.keys = make(map[StreamVariable]*keyEntry)
		r.held = make(map[string]map[StreamVariable]struct{})
	}

	names := r.byOwner[paintableID]
	if names == nil {
		names = make(map[string]StreamVariable)
		r.byOwner[paintableID] = names
	}
	if prev, ok := names[name]; ok && prev == sv {
		return r.url(paintableID, name, r.keys[sv].key), nil
	}
	names[name] = sv

	entry := r.keys[sv]
	if entry == nil {
		entry = &keyEntry{key: r.newKey(), slots: make(map[slot]struct{})}
		r.keys[sv] = entry
	}
	entry.slots[slot{paintableID, name}] = struct{}{}

	held := r.held[paintableID]
	if held == nil {
		held = make(map[StreamVariable]struct{})
		r.held[paintableID] = held
	}
	held[sv] = struct{}{}

	return r.url(paintableID, name, entry.key), nil
}

// Resolve returns the receiver registered for (paintableID, name) if key
// matches its security key.
func (r *Registry) Resolve(paintableID, name, key string) (StreamVariable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sv, ok := r.byOwner[paintableID][name]
	if !ok {
		return nil, ErrNotFound
	}
	entry := r.keys[sv]
	if entry == nil {
		return nil, ErrNotFound
	}
	if subtle.ConstantTimeCompare([]byte(entry.key), []byte(key)) != 1 {
		return nil, ErrInvalidSecurityKey
	}
	return sv, nil
}

// Unregister removes every registration owned by paintableID and the keys
// no other owner holds. Calling it for an unknown or already removed owner
// is a no-op.
func (r *Registry) Unregister(paintableID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byOwner, paintableID)
	r.releaseLocked(paintableID, func(s slot) bool { return s.owner == paintableID })
}

// Clear removes the registration of a single variable. The owner's entry is
// dropped when it was the last one.
func (r *Registry) Clear(paintableID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if names, ok := r.byOwner[paintableID]; ok {
		delete(names, name)
		if len(names) == 0 {
			delete(r.byOwner, paintableID)
		}
	}
	target := slot{paintableID, name}
	r.releaseLocked(paintableID, func(s slot) bool { return s == target })
}

// Reset drops all registrations.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.byOwner = nil
	r.keys = nil
	r.held = nil
	r.mu.Unlock()
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, names := range r.byOwner {
		n += len(names)
	}
	return n
}

// Keys returns the number of receivers holding a security key.
func (r *Registry) Keys() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

// releaseLocked removes the slots of paintableID matching drop from the
// receivers it holds, deleting keys left without slots.
func (r *Registry) releaseLocked(paintableID string, drop func(slot) bool) {
	held := r.held[paintableID]
	for sv := range held {
		entry := r.keys[sv]
		if entry == nil {
			delete(held, sv)
			continue
		}
		stillHeld := false
		for s := range entry.slots {
			if drop(s) {
				delete(entry.slots, s)
			} else if s.owner == paintableID {
				stillHeld = true
			}
		}
		if !stillHeld {
			delete(held, sv)
		}
		if len(entry.slots) == 0 {
			delete(r.keys, sv)
		}
	}
	if len(held) == 0 {
		delete(r.held, paintableID)
	}
}

// hashable reports whether sv can key the reverse index. Pointers always
// can; other comparable values may still hold an unhashable dynamic value
// in an interface field, which only a map insert reveals.
func hashable(sv StreamVariable) (ok bool) {
	if sv == nil {
		return false
	}
	t := reflect.TypeOf(sv)
	if t.Kind() == reflect.Pointer {
		return true
	}
	if !t.Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	probe := make(map[StreamVariable]struct{}, 1)
	probe[sv] = struct{}{}
	return len(probe) == 1
}

func (r *Registry) url(paintableID, name, key string) string {
	return URLScheme + r.prefix + paintableID + "/" + name + "/" + key
}
