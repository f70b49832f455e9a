package vtest

import (
	"sync"

	"github.com/vango-go/terminal/pkg/component"
	"github.com/vango-go/terminal/pkg/streamvar"
)

// MockComponent is a scriptable component that records the variable
// changes it receives.
type MockComponent struct {
	component.Base

	// Tag is painted as the widget type. Default: "mock".
	Tag string

	// State is painted as attributes.
	State map[string]any

	// Uploads are painted as upload targets keyed by variable name.
	Uploads map[string]streamvar.StreamVariable

	// PanicOnChange makes ChangeVariables panic with the given value.
	PanicOnChange any

	// PaintErr is returned by Paint.
	PaintErr error

	// OnChange is called for every batch after it was recorded.
	OnChange func(variables map[string]any)

	// Kids are returned by Children.
	Kids []component.Component

	mu      sync.Mutex
	changes []map[string]any
	paints  int
}

var _ component.Container = (*MockComponent)(nil)

// NewMockComponent creates a mock component with the given attributes.
func NewMockComponent(state map[string]any) *MockComponent {
	if state == nil {
		state = make(map[string]any)
	}
	return &MockComponent{State: state}
}

func (m *MockComponent) Paint(t *component.PaintTarget) error {
	m.mu.Lock()
	m.paints++
	m.mu.Unlock()

	if m.PaintErr != nil {
		return m.PaintErr
	}
	tag := m.Tag
	if tag == "" {
		tag = "mock"
	}
	t.SetTag(tag)
	for k, v := range m.State {
		t.AddAttribute(k, v)
	}
	for name, sv := range m.Uploads {
		if err := t.AddUploadTarget(name, sv); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockComponent) ChangeVariables(_ any, variables map[string]any) {
	if m.PanicOnChange != nil {
		panic(m.PanicOnChange)
	}
	copied := make(map[string]any, len(variables))
	for k, v := range variables {
		copied[k] = v
	}
	m.mu.Lock()
	m.changes = append(m.changes, copied)
	m.mu.Unlock()
	if m.OnChange != nil {
		m.OnChange(copied)
	}
}

func (m *MockComponent) Children() []component.Component { return m.Kids }

// Changes returns the recorded batches in order.
func (m *MockComponent) Changes() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any(nil), m.changes...)
}

// Paints returns how many times the component was painted.
func (m *MockComponent) Paints() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paints
}
