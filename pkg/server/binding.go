package server

import (
	"github.com/vango-go/terminal/pkg/component"
	"github.com/vango-go/terminal/pkg/session"
)

// Binding is the value stored under AppAttribute: a session's application
// and the communication manager serving it.
type Binding struct {
	App     *component.Application
	Manager *CommunicationManager
}

var _ session.UnbindListener = (*Binding)(nil)

// ValueUnbound closes the application when its session ends or the
// binding is replaced.
func (b *Binding) ValueUnbound(s *session.Session, name string) {
	if b.App != nil {
		b.App.Close()
	}
}

// running reports whether the bound application is still running.
func (b *Binding) running() bool {
	if b == nil || b.App == nil || b.Manager == nil {
		return false
	}
	b.App.Lock()
	defer b.App.Unlock()
	return b.App.IsRunning()
}
