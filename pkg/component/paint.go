package component

import (
	"fmt"

	"github.com/vango-go/terminal/pkg/streamvar"
)

// PaintTarget collects the paint of a single component.
type PaintTarget struct {
	owner  Paintable
	binder UploadBinder

	tag   string
	attrs map[string]any
	vars  map[string]any
}

// NewPaintTarget creates a target for owner. binder may be nil when the
// component does not expose upload targets.
func NewPaintTarget(owner Paintable, binder UploadBinder) *PaintTarget {
	return &PaintTarget{
		owner:  owner,
		binder: binder,
		attrs:  make(map[string]any),
		vars:   make(map[string]any),
	}
}

// Owner returns the component being painted.
func (t *PaintTarget) Owner() Paintable { return t.owner }

// SetTag sets the client-side widget type.
func (t *PaintTarget) SetTag(tag string) { t.tag = tag }

// Tag returns the widget type.
func (t *PaintTarget) Tag() string { return t.tag }

// AddAttribute adds a read-only attribute.
func (t *PaintTarget) AddAttribute(name string, value any) { t.attrs[name] = value }

// AddVariable adds a variable the client may change and send back.
func (t *PaintTarget) AddVariable(name string, value any) { t.vars[name] = value }

// Attributes returns the painted attributes.
func (t *PaintTarget) Attributes() map[string]any { return t.attrs }

// Variables returns the painted variables.
func (t *PaintTarget) Variables() map[string]any { return t.vars }

// AddUploadTarget registers sv as the receiver of uploads for the variable
// name and paints the upload URL as that variable.
func (t *PaintTarget) AddUploadTarget(name string, sv streamvar.StreamVariable) error {
	if t.binder == nil {
		return fmt.Errorf("component: no upload binder for %q", name)
	}
	url, err := t.binder.StreamVariableTargetURL(t.owner, name, sv)
	if err != nil {
		return fmt.Errorf("component: register upload target %q: %w", name, err)
	}
	t.vars[name] = url
	return nil
}
