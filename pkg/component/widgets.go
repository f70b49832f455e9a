package component

import (
	"github.com/vango-go/terminal/pkg/streamvar"
)

// Base carries the enabled state shared by all widgets.
type Base struct {
	disabled bool
}

// IsEnabled implements VariableOwner.
func (b *Base) IsEnabled() bool { return !b.disabled }

// SetEnabled enables or disables the component.
func (b *Base) SetEnabled(enabled bool) { b.disabled = !enabled }

func paintEnabled(b *Base, t *PaintTarget) {
	if b.disabled {
		t.AddAttribute("disabled", true)
	}
}

// Label displays read-only text.
type Label struct {
	Base
	Text string
}

// NewLabel creates a label.
func NewLabel(text string) *Label { return &Label{Text: text} }

func (l *Label) Paint(t *PaintTarget) error {
	t.SetTag("label")
	t.AddAttribute("text", l.Text)
	paintEnabled(&l.Base, t)
	return nil
}

func (l *Label) ChangeVariables(any, map[string]any) {}

// TextField is a single-line text input.
type TextField struct {
	Base
	Caption string
	Value   string

	// OnChange is called after the client changed the value.
	OnChange func(value string)
}

// NewTextField creates an empty text field.
func NewTextField(caption string) *TextField { return &TextField{Caption: caption} }

func (f *TextField) Paint(t *PaintTarget) error {
	t.SetTag("textfield")
	if f.Caption != "" {
		t.AddAttribute("caption", f.Caption)
	}
	t.AddVariable("text", f.Value)
	paintEnabled(&f.Base, t)
	return nil
}

func (f *TextField) ChangeVariables(_ any, variables map[string]any) {
	text, ok := variables["text"].(string)
	if !ok || text == f.Value {
		return
	}
	f.Value = text
	if f.OnChange != nil {
		f.OnChange(text)
	}
}

// Button fires OnClick when the client reports a click.
type Button struct {
	Base
	Caption string
	OnClick func()
}

// NewButton creates a button.
func NewButton(caption string, onClick func()) *Button {
	return &Button{Caption: caption, OnClick: onClick}
}

func (b *Button) Paint(t *PaintTarget) error {
	t.SetTag("button")
	t.AddAttribute("caption", b.Caption)
	paintEnabled(&b.Base, t)
	return nil
}

func (b *Button) ChangeVariables(_ any, variables map[string]any) {
	if clicked, _ := variables["click"].(bool); clicked && b.OnClick != nil {
		b.OnClick()
	}
}

// Panel groups child components. Once its root is attached to an
// application, removing a child notifies the application's detach
// listeners.
type Panel struct {
	Base
	Caption  string
	children []Component
	app      *Application
}

var _ Container = (*Panel)(nil)

// NewPanel creates a panel holding children.
func NewPanel(caption string, children ...Component) *Panel {
	return &Panel{Caption: caption, children: children}
}

// Add appends c.
func (p *Panel) Add(c Component) {
	p.children = append(p.children, c)
	if p.app != nil {
		p.app.attachTree(c)
	}
}

// Remove removes c and notifies the detach listeners for c and its
// descendants.
func (p *Panel) Remove(c Component) {
	for i, child := range p.children {
		if child != c {
			continue
		}
		p.children = append(p.children[:i], p.children[i+1:]...)
		if p.app != nil {
			p.app.Detach(c)
		}
		return
	}
}

func (p *Panel) attach(a *Application) { p.app = a }

func (p *Panel) Children() []Component { return p.children }

func (p *Panel) Paint(t *PaintTarget) error {
	t.SetTag("panel")
	if p.Caption != "" {
		t.AddAttribute("caption", p.Caption)
	}
	paintEnabled(&p.Base, t)
	return nil
}

func (p *Panel) ChangeVariables(any, map[string]any) {}

// Upload exposes an upload target streaming into Receiver.
type Upload struct {
	Base
	Caption  string
	Receiver streamvar.StreamVariable

	// Uploading is set by the client while a file is being sent.
	Uploading bool
}

// NewUpload creates an upload widget.
func NewUpload(caption string, receiver streamvar.StreamVariable) *Upload {
	return &Upload{Caption: caption, Receiver: receiver}
}

func (u *Upload) Paint(t *PaintTarget) error {
	t.SetTag("upload")
	t.AddAttribute("caption", u.Caption)
	paintEnabled(&u.Base, t)
	if u.Receiver == nil || u.disabled {
		return nil
	}
	return t.AddUploadTarget("file", u.Receiver)
}

func (u *Upload) ChangeVariables(_ any, variables map[string]any) {
	if busy, ok := variables["uploading"].(bool); ok {
		u.Uploading = busy
	}
}
