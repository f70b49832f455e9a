package main

import (
	"context"
	"fmt"

	"github.com/vango-go/terminal/pkg/component"
	"github.com/vango-go/terminal/pkg/server"
)

const loadRoot = "main"

// loadAppFactory builds applications whose main root echoes its text field
// into a label and into one of listSize list labels, so every burst
// produces a small paint diff.
func loadAppFactory(listSize int) server.ApplicationFactory {
	return func(_ context.Context, name string) (*component.Application, error) {
		roots := func(_ *component.Application, root string) (*component.Root, error) {
			if root != loadRoot {
				return nil, nil
			}
			return newLoadRoot(listSize), nil
		}
		return component.NewApplication(name, component.WithRootFactory(roots)), nil
	}
}

func newLoadRoot(listSize int) *component.Root {
	echo := component.NewLabel("")
	items := make([]component.Component, listSize)
	labels := make([]*component.Label, listSize)
	for i := range labels {
		labels[i] = component.NewLabel(fmt.Sprintf("Item %d", i))
		items[i] = labels[i]
	}

	field := component.NewTextField("Input")
	field.OnChange = func(value string) {
		echo.Text = value
		if len(labels) > 0 {
			labels[int(fnv1a32(value)%uint32(len(labels)))].Text = value
		}
	}

	return component.NewRoot(loadRoot, field, echo, component.NewPanel("Items", items...))
}

func fnv1a32(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	var h uint32 = offset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
