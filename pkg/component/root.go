package component

// Root is a window of the application. Its name routes requests to it.
type Root struct {
	Base

	name     string
	caption  string
	app      *Application
	children []Component
}

var _ Container = (*Root)(nil)

// NewRoot creates a root holding children.
func NewRoot(name string, children ...Component) *Root {
	return &Root{name: name, children: children}
}

// Name returns the root name.
func (r *Root) Name() string { return r.name }

// Application returns the owning application, or nil when detached.
func (r *Root) Application() *Application { return r.app }

// Caption returns the window caption.
func (r *Root) Caption() string { return r.caption }

// SetCaption sets the window caption.
func (r *Root) SetCaption(caption string) { r.caption = caption }

// Add appends c to the root.
func (r *Root) Add(c Component) {
	r.children = append(r.children, c)
	if r.app != nil {
		r.app.attachTree(c)
	}
}

// Remove removes c and notifies the application's detach listeners for c
// and its descendants.
func (r *Root) Remove(c Component) {
	for i, child := range r.children {
		if child != c {
			continue
		}
		r.children = append(r.children[:i], r.children[i+1:]...)
		if r.app != nil {
			r.app.Detach(c)
		}
		return
	}
}

// Children implements Container.
func (r *Root) Children() []Component { return r.children }

// Paint implements Paintable.
func (r *Root) Paint(t *PaintTarget) error {
	t.SetTag("root")
	t.AddAttribute("name", r.name)
	if r.caption != "" {
		t.AddAttribute("caption", r.caption)
	}
	return nil
}

// ChangeVariables implements VariableOwner. The client reports the window
// caption it displays; roots have no other variables.
func (r *Root) ChangeVariables(_ any, variables map[string]any) {
	if caption, ok := variables["caption"].(string); ok {
		r.caption = caption
	}
}
