package component

import (
	"errors"

	"github.com/vango-go/terminal/pkg/streamvar"
)

// Paintable can describe its state to the client.
type Paintable interface {
	// Paint writes the component's state into target.
	Paint(target *PaintTarget) error
}

// VariableOwner receives variable changes sent by the client.
type VariableOwner interface {
	// ChangeVariables applies a batch of changes. source is the
	// communication manager delivering them.
	ChangeVariables(source any, variables map[string]any)

	// IsEnabled reports whether the owner accepts changes. Changes for
	// disabled owners are dropped.
	IsEnabled() bool
}

// Component is a node of the component tree. Components are used as map
// keys and must be comparable; pointer types are the usual choice.
type Component interface {
	Paintable
	VariableOwner
}

// Container is a component with children.
type Container interface {
	Component

	// Children returns the child components in paint order.
	Children() []Component
}

// UploadBinder registers stream variables on behalf of painting
// components and returns the upload URL the client should post to.
type UploadBinder interface {
	StreamVariableTargetURL(owner Paintable, name string, sv streamvar.StreamVariable) (string, error)
}

// ErrStopWalk can be returned by a WalkFunc to end the walk early without
// an error.
var ErrStopWalk = errors.New("component: stop walk")

// WalkFunc is called for every component visited by Walk.
type WalkFunc func(c Component) error

// Walk visits root and its descendants depth-first in paint order.
// A component reachable through several parents is visited once.
func Walk(root Component, fn WalkFunc) error {
	seen := make(map[Component]struct{})
	err := walk(root, fn, seen)
	if errors.Is(err, ErrStopWalk) {
		return nil
	}
	return err
}

func walk(c Component, fn WalkFunc, seen map[Component]struct{}) error {
	if c == nil {
		return nil
	}
	if _, ok := seen[c]; ok {
		return nil
	}
	seen[c] = struct{}{}

	if err := fn(c); err != nil {
		return err
	}
	if parent, ok := c.(Container); ok {
		for _, child := range parent.Children() {
			if err := walk(child, fn, seen); err != nil {
				return err
			}
		}
	}
	return nil
}
