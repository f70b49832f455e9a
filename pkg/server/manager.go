package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-go/terminal/pkg/component"
	"github.com/vango-go/terminal/pkg/protocol"
	"github.com/vango-go/terminal/pkg/streamvar"
	"github.com/vango-go/terminal/pkg/transport"
	"github.com/vango-go/terminal/pkg/upload"
)

// TracerName is the name of the tracer used for UIDL spans.
const TracerName = "github.com/vango-go/terminal/pkg/server"

// paintableIDPrefix prefixes the identifiers handed to the client.
const paintableIDPrefix = "PID"

// CommunicationManager serves the UIDL and upload requests of one
// application. It owns the application's stream-variable registry and the
// paint state the client was last sent.
//
// Everything below the registry is guarded by the application lock.
type CommunicationManager struct {
	app        *component.Application
	registry   *streamvar.Registry
	dispatcher *upload.Dispatcher
	resolver   *Resolver
	messages   *SystemMessages
	observer   Observer
	tracer     trace.Tracer
	logger     *slog.Logger
	uidlKey    string
	maxUIDL    int
	now        func() time.Time

	// Guarded by the application lock.
	ids          map[component.Component]string
	byID         map[string]component.Component
	nextID       int
	fingerprints map[string]uint64
	syncIDs      map[string]uint64
	removed      []string
}

var (
	_ component.UploadBinder = (*CommunicationManager)(nil)
	_ upload.Targets         = (*CommunicationManager)(nil)
)

// ManagerOption configures a CommunicationManager.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	observer     Observer
	logger       *slog.Logger
	tracer       trace.Tracer
	messages     *SystemMessages
	upload       *upload.Config
	registryOpts []streamvar.RegistryOption
	uidlKey      string
	maxUIDL      int
	now          func() time.Time
}

// WithObserver sets the observer receiving request measurements.
func WithObserver(o Observer) ManagerOption {
	return func(opts *managerOptions) { opts.observer = o }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(opts *managerOptions) { opts.logger = logger }
}

// WithTracer sets the tracer. Default: the global provider's tracer named
// TracerName.
func WithTracer(t trace.Tracer) ManagerOption {
	return func(opts *managerOptions) { opts.tracer = t }
}

// WithSystemMessages sets the texts of critical notifications.
func WithSystemMessages(m *SystemMessages) ManagerOption {
	return func(opts *managerOptions) { opts.messages = m }
}

// WithUploadConfig configures the upload dispatcher. The registry uses the
// same URL prefix.
func WithUploadConfig(c *upload.Config) ManagerOption {
	return func(opts *managerOptions) { opts.upload = c }
}

// WithRegistryOptions passes options to the stream-variable registry.
func WithRegistryOptions(ro ...streamvar.RegistryOption) ManagerOption {
	return func(opts *managerOptions) { opts.registryOpts = append(opts.registryOpts, ro...) }
}

// WithUIDLKey sets the UIDL security key instead of generating one.
func WithUIDLKey(key string) ManagerOption {
	return func(opts *managerOptions) { opts.uidlKey = key }
}

// WithMaxUIDLSize bounds the payload of an inbound UIDL frame.
func WithMaxUIDLSize(n int) ManagerOption {
	return func(opts *managerOptions) { opts.maxUIDL = n }
}

// withClock overrides the clock used for durations.
func withClock(now func() time.Time) ManagerOption {
	return func(opts *managerOptions) { opts.now = now }
}

// NewCommunicationManager creates the manager of app and subscribes it to
// the application's detach and close notifications.
func NewCommunicationManager(app *component.Application, opts ...ManagerOption) *CommunicationManager {
	o := managerOptions{
		observer: NopObserver{},
		logger:   slog.Default(),
		messages: DefaultSystemMessages(),
		upload:   upload.DefaultConfig(),
		maxUIDL:  DefaultConfig().MaxUIDLSize,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(TracerName)
	}
	if o.uidlKey == "" {
		o.uidlKey = uuid.NewString()
	}
	if o.observer == nil {
		o.observer = NopObserver{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	registryOpts := append([]streamvar.RegistryOption{streamvar.WithPrefix(o.upload.Prefix)}, o.registryOpts...)
	logger := o.logger.With("component", "communication", "app", app.Name())

	m := &CommunicationManager{
		app:          app,
		registry:     streamvar.NewRegistry(registryOpts...),
		dispatcher:   upload.NewDispatcher(o.upload, o.logger),
		resolver:     NewResolver(o.logger),
		messages:     o.messages,
		observer:     o.observer,
		tracer:       o.tracer,
		logger:       logger,
		uidlKey:      o.uidlKey,
		maxUIDL:      o.maxUIDL,
		now:          o.now,
		ids:          make(map[component.Component]string),
		byID:         make(map[string]component.Component),
		fingerprints: make(map[string]uint64),
		syncIDs:      make(map[string]uint64),
	}

	app.Lock()
	app.OnDetach(m.UnregisterPaintable)
	app.OnClose(m.Close)
	app.Unlock()
	return m
}

// Application returns the managed application.
func (m *CommunicationManager) Application() *component.Application { return m.app }

// UIDLKey returns the security key every burst must carry.
func (m *CommunicationManager) UIDLKey() string { return m.uidlKey }

// Registry returns the stream-variable registry.
func (m *CommunicationManager) Registry() *streamvar.Registry { return m.registry }

// PaintableID returns the identifier of c, assigning one on first use.
// The caller must hold the application lock.
func (m *CommunicationManager) PaintableID(c component.Component) string {
	if id, ok := m.ids[c]; ok {
		return id
	}
	id := paintableIDPrefix + strconv.Itoa(m.nextID)
	m.nextID++
	m.ids[c] = id
	m.byID[id] = c
	return id
}

// StreamVariableTargetURL registers sv as the upload receiver of the
// variable name of owner and returns the URL the client posts to.
// It is called while painting, with the application lock held.
func (m *CommunicationManager) StreamVariableTargetURL(owner component.Paintable, name string, sv streamvar.StreamVariable) (string, error) {
	c, ok := owner.(component.Component)
	if !ok {
		return "", fmt.Errorf("server: upload owner %T is not a component", owner)
	}
	return m.registry.Register(m.PaintableID(c), name, sv)
}

// CleanStreamVariable removes the upload registration of the variable
// name of owner. The caller must hold the application lock.
func (m *CommunicationManager) CleanStreamVariable(owner component.Component, name string) {
	if id, ok := m.ids[owner]; ok {
		m.registry.Clear(id, name)
	}
}

// UnregisterPaintable forgets c: its identifier, its paint state and every
// upload registration it owns. The identifier is reported as removed in
// the next response. Unregistering twice is a no-op.
// The caller must hold the application lock.
func (m *CommunicationManager) UnregisterPaintable(c component.Component) {
	id, ok := m.ids[c]
	if !ok {
		return
	}
	delete(m.ids, c)
	delete(m.byID, id)
	delete(m.fingerprints, id)
	m.registry.Unregister(id)
	m.removed = append(m.removed, id)
}

// ResolveUploadTarget implements upload.Targets. It takes the application
// lock.
func (m *CommunicationManager) ResolveUploadTarget(ctx context.Context, t upload.Target) (streamvar.StreamVariable, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", upload.ErrClientDisconnected, err)
	}

	m.app.Lock()
	defer m.app.Unlock()

	if !m.app.IsRunning() {
		return nil, ErrSessionExpired
	}
	if c, ok := m.byID[t.PaintableID]; ok && !c.IsEnabled() {
		return nil, fmt.Errorf("%w: %s is disabled", ErrNotFound, t.PaintableID)
	}

	sv, err := m.registry.Resolve(t.PaintableID, t.Name, t.Key)
	switch {
	case errors.Is(err, streamvar.ErrInvalidSecurityKey):
		return nil, fmt.Errorf("%w: %w", ErrInvalidSecurityKey, err)
	case errors.Is(err, streamvar.ErrNotFound):
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	case err != nil:
		return nil, err
	}
	return sv, nil
}

// ClearUploadTarget implements upload.Targets.
func (m *CommunicationManager) ClearUploadTarget(t upload.Target) {
	m.registry.Clear(t.PaintableID, t.Name)
}

// Sync implements upload.Targets. fn runs under the application lock; a
// panic in fn is recovered and logged.
func (m *CommunicationManager) Sync(fn func()) {
	m.app.Lock()
	defer m.app.Unlock()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("receiver notification panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

// HandleFileUpload streams an upload request into its receiver.
// A malformed upload path is reported as a ProtocolError.
func (m *CommunicationManager) HandleFileUpload(req transport.Request, resp transport.Response) error {
	start := m.now()
	err := m.dispatcher.Dispatch(req, resp, m)
	if errors.Is(err, upload.ErrMalformedPath) {
		err = &ProtocolError{Op: "upload path", Err: err}
	}

	result := "ok"
	if err != nil {
		result = CatalogueCode(err)
	}
	m.observer.ObserveUpload(result, m.now().Sub(start))
	return err
}

// HandleUIDLRequest handles one UIDL request: it resolves the root,
// applies the client's variable changes and writes the paint changes.
//
// Failures the client must be told about (expired session, unknown
// window, wrong security key) are written as critical notifications and
// reported as OutcomeCriticalFailure with a nil error. A returned error
// means nothing was written and the caller should answer with
// HTTPStatus(err).
func (m *CommunicationManager) HandleUIDLRequest(req transport.Request, resp transport.Response, cb transport.Callback, assumed *component.Root) (outcome Outcome, err error) {
	start := m.now()
	_, span := m.tracer.Start(req.Context(), "vango.uidl",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("vango.app", m.app.Name()),
			attribute.String("vango.request_id", req.RequestID()),
		),
	)

	var changes, paints int
	defer func() {
		result := outcome.String()
		if err != nil {
			result = CatalogueCode(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(
			attribute.String("vango.outcome", result),
			attribute.Int("vango.changes", changes),
			attribute.Int("vango.paints", paints),
		)
		span.End()
		m.observer.ObserveUIDL(result, changes, paints, m.now().Sub(start))
	}()

	root, err := m.resolver.Resolve(req, cb, assumed)
	if err == nil && root.Application() != m.app {
		err = ErrSessionExpired
	}
	if err != nil {
		m.critical(req, resp, cb, err)
		return OutcomeCriticalFailure, nil
	}
	span.SetAttributes(attribute.String("vango.root", root.Name()))

	burst, err := m.readBurst(req)
	if err != nil {
		return OutcomeCompleted, err
	}
	changes = len(burst.Changes)

	if subtle.ConstantTimeCompare([]byte(burst.SecurityKey), []byte(m.uidlKey)) != 1 {
		m.critical(req, resp, cb, ErrInvalidSecurityKey)
		return OutcomeCriticalFailure, nil
	}

	m.app.Lock()
	defer m.app.Unlock()

	if !m.app.IsRunning() || root.Application() != m.app {
		m.critical(req, resp, cb, ErrSessionExpired)
		return OutcomeCriticalFailure, nil
	}

	m.applyChanges(burst.Changes)

	lastSync := m.syncIDs[root.Name()]
	full := burst.RepaintAll || burst.SyncID != lastSync
	if full && burst.SyncID != lastSync {
		m.logger.Debug("client out of sync, repainting", "root", root.Name(), "client_sync", burst.SyncID, "server_sync", lastSync)
	}

	paintChanges, pending, err := m.repaint(root, full)
	if err != nil {
		return OutcomeCompleted, err
	}
	paints = len(paintChanges)

	out := &protocol.Response{
		SyncID:     lastSync + 1,
		RepaintAll: full,
		Changes:    paintChanges,
		Removed:    append([]string(nil), m.removed...),
	}
	enc := protocol.NewEncoder()
	if err := protocol.EncodeResponseTo(enc, out); err != nil {
		return OutcomeCompleted, &EncodingError{Err: err}
	}

	frame := protocol.NewFrame(protocol.FrameChanges, enc.Bytes())
	frame.Flags = protocol.FlagFinal
	if full {
		frame.Flags |= protocol.FlagRepaintAll
	}
	resp.SetContentType(protocol.ContentType)
	if err := protocol.WriteFrame(resp.Writer(), frame); err != nil {
		return OutcomeCompleted, fmt.Errorf("server: write UIDL response: %w", err)
	}

	// Commit only what the client has received.
	if full {
		for id := range m.fingerprints {
			if _, ok := pending[id]; !ok {
				delete(m.fingerprints, id)
			}
		}
	}
	for id, fp := range pending {
		m.fingerprints[id] = fp
	}
	m.syncIDs[root.Name()] = out.SyncID
	m.removed = m.removed[len(out.Removed):]
	return OutcomeCompleted, nil
}

// readBurst reads and decodes the single burst frame of req.
func (m *CommunicationManager) readBurst(req transport.Request) (*protocol.Burst, error) {
	frame, err := protocol.ReadFrame(req.Body(), m.maxUIDL)
	if err != nil {
		return nil, &ProtocolError{Op: "read frame", Err: err}
	}
	if frame.Type != protocol.FrameBurst {
		return nil, &ProtocolError{Op: "read frame", Err: fmt.Errorf("%w: %s", protocol.ErrInvalidFrameType, frame.Type)}
	}
	burst, err := protocol.DecodeBurst(frame.Payload)
	if err != nil {
		return nil, &ProtocolError{Op: "decode burst", Err: err}
	}
	return burst, nil
}

// applyChanges delivers changes in order. Consecutive changes of the same
// owner form one batch in which later values win. The caller must hold the
// application lock.
func (m *CommunicationManager) applyChanges(changes []protocol.VariableChange) {
	for i := 0; i < len(changes); {
		id := changes[i].PaintableID
		batch := make(map[string]any)
		for ; i < len(changes) && changes[i].PaintableID == id; i++ {
			batch[changes[i].Name] = changes[i].Value
		}

		c, ok := m.byID[id]
		if !ok {
			m.logger.Debug("dropping changes for unknown paintable", "paintable", id)
			continue
		}
		if !c.IsEnabled() {
			m.logger.Debug("dropping changes for disabled paintable", "paintable", id)
			continue
		}
		m.changeVariables(id, c, batch)
	}
}

func (m *CommunicationManager) changeVariables(id string, c component.Component, batch map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("variable change panicked", "paintable", id, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	c.ChangeVariables(m, batch)
}

// repaint paints the tree of root and returns the paints that differ from
// what the client has, or every paint when full is set, together with the
// fingerprints to commit once they were sent. Components that are no
// longer reachable from any root are unregistered.
// The caller must hold the application lock.
func (m *CommunicationManager) repaint(root *component.Root, full bool) ([]protocol.PaintChange, map[string]uint64, error) {
	var out []protocol.PaintChange
	pending := make(map[string]uint64)
	enc := protocol.NewEncoder()

	err := component.Walk(root, func(c component.Component) error {
		id := m.PaintableID(c)
		pc, err := m.paint(id, c)
		if err != nil {
			m.logger.Warn("paint failed, skipping component", "paintable", id, "error", err)
			if fp, ok := m.fingerprints[id]; ok {
				pending[id] = fp
			}
			return nil
		}

		enc.Reset()
		if err := protocol.EncodePaintTo(enc, &pc); err != nil {
			return &EncodingError{PaintableID: id, Err: err}
		}
		fp := xxhash.Sum64(enc.Bytes())
		pending[id] = fp
		if old, ok := m.fingerprints[id]; full || !ok || old != fp {
			out = append(out, pc)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	m.unregisterUnreachable()
	return out, pending, nil
}

// paint paints c into a fresh target. A panic in Paint is returned as an
// error.
func (m *CommunicationManager) paint(id string, c component.Component) (pc protocol.PaintChange, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()

	target := component.NewPaintTarget(c, m)
	if err := c.Paint(target); err != nil {
		return pc, err
	}
	pc = protocol.PaintChange{
		PaintableID: id,
		Tag:         target.Tag(),
		Attributes:  target.Attributes(),
		Variables:   target.Variables(),
	}
	if parent, ok := c.(component.Container); ok {
		for _, child := range parent.Children() {
			if child != nil {
				pc.Children = append(pc.Children, m.PaintableID(child))
			}
		}
	}
	return pc, nil
}

// unregisterUnreachable unregisters every known component that no root of
// the application reaches.
func (m *CommunicationManager) unregisterUnreachable() {
	reachable := make(map[component.Component]struct{}, len(m.ids))
	for _, r := range m.app.Roots() {
		_ = component.Walk(r, func(c component.Component) error {
			reachable[c] = struct{}{}
			return nil
		})
	}
	var gone []component.Component
	for c := range m.ids {
		if _, ok := reachable[c]; !ok {
			gone = append(gone, c)
		}
	}
	for _, c := range gone {
		m.UnregisterPaintable(c)
	}
}

// critical writes a critical notification for err. Write failures are
// logged and swallowed.
func (m *CommunicationManager) critical(req transport.Request, resp transport.Response, cb transport.Callback, err error) {
	code := ErrorCode(err)
	catalogue := CatalogueCode(err)
	msg := m.messages.For(code)

	m.logger.Info("sending critical notification", "request_id", req.RequestID(), "code", catalogue, "error", err)
	req.SetAttribute(criticalCodeAttribute, catalogue)

	var werr error
	if cb != nil {
		werr = m.notify(cb, req, resp, msg, catalogue)
	} else {
		werr = WriteCriticalNotification(resp, Notification{
			Caption: msg.Caption,
			Message: msg.Message,
			URL:     msg.URL,
			Code:    catalogue,
		})
	}
	if werr != nil {
		m.logger.Warn("failed to write critical notification", "request_id", req.RequestID(), "error", werr)
	}
	m.observer.ObserveCritical(catalogue)
}

// notify hands the notification to the callback. The catalogue code is
// sent as the details.
func (m *CommunicationManager) notify(cb transport.Callback, req transport.Request, resp transport.Response, msg Message, catalogue string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return cb.CriticalNotification(req, resp, msg.Caption, msg.Message, catalogue, msg.URL)
}

// Close forgets all paint state and upload registrations. It is called by
// the application when it closes, with the application lock held.
func (m *CommunicationManager) Close() {
	m.registry.Reset()
	m.ids = make(map[component.Component]string)
	m.byID = make(map[string]component.Component)
	m.fingerprints = make(map[string]uint64)
	m.syncIDs = make(map[string]uint64)
	m.removed = nil
	m.logger.Debug("communication manager closed")
}

// panicError converts a recovered value to an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
