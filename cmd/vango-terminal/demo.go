package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vango-go/terminal/pkg/component"
	"github.com/vango-go/terminal/pkg/server"
	"github.com/vango-go/terminal/pkg/streamvar"
	"github.com/vango-go/terminal/pkg/upload"
)

// demoFactory returns the application served by the serve command. Its
// main root greets the user and stores uploads in store.
func demoFactory(store upload.Store, logger *slog.Logger) server.ApplicationFactory {
	return func(ctx context.Context, name string) (*component.Application, error) {
		roots := func(app *component.Application, root string) (*component.Root, error) {
			switch root {
			case "main":
				return demoMainRoot(store, logger), nil
			case "about":
				r := component.NewRoot(root, component.NewLabel(fmt.Sprintf("vango-terminal %s", version)))
				r.SetCaption("About")
				return r, nil
			}
			return nil, nil
		}
		return component.NewApplication(name,
			component.WithRootFactory(roots),
			component.WithLogger(logger),
		), nil
	}
}

func demoMainRoot(store upload.Store, logger *slog.Logger) *component.Root {
	greeting := component.NewLabel("What is your name?")
	name := component.NewTextField("Name")
	status := component.NewLabel("No file uploaded yet")

	receiver := upload.NewStoreReceiver(context.Background(), store)
	receiver.OnSaved = func(id string, event streamvar.StreamingEndEvent) {
		status.Text = fmt.Sprintf("Stored %s (%d bytes) as %s", event.FileName, event.BytesReceived, id)
		logger.Info("upload stored", "id", id, "file", event.FileName, "bytes", event.BytesReceived)
	}
	receiver.OnFailed = func(event streamvar.StreamingErrorEvent) {
		status.Text = fmt.Sprintf("Upload of %s failed: %v", event.FileName, event.Err)
	}

	greet := component.NewButton("Greet", func() {
		if name.Value == "" {
			greeting.Text = "What is your name?"
			return
		}
		greeting.Text = "Hello, " + name.Value + "!"
	})

	r := component.NewRoot("main",
		greeting,
		component.NewPanel("Form", name, greet),
		component.NewPanel("Files", component.NewUpload("Attach a file", receiver), status),
	)
	r.SetCaption("vango-terminal")
	return r
}
