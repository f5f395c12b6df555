package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/aretw0/citylink/internal/presentation/tui"
	"github.com/aretw0/citylink/pkg/session"
)

// RunWatch follows the bound session until ctx ends, redrawing the status
// screen and saving the profile after every peer change.
func RunWatch(ctx context.Context, app *App, out io.Writer) error {
	if tui.IsTerminal(out) {
		tui.PrintBanner(out)
	}
	logger := app.Logger

	n := session.NewNotifier(app.Store.Channel(), app.Store.Prefix(), logger)
	detach := app.Client.Attach(n)
	defer detach()

	render := func() {
		fmt.Fprintln(out, tui.RenderStatus(app.View()))
		app.persistQuietly()
	}
	removeRender := n.Register(func(ctx context.Context, key string) {
		if app.Store.CodeFromKey(key) != app.Client.Snapshot().Code {
			return
		}
		render()
	})
	defer removeRender()

	if err := n.Start(ctx); err != nil {
		return err
	}
	defer n.Stop()

	logger.Info("Watching session", "code", app.Client.Snapshot().Code, "prefix", app.Store.Prefix())
	render()
	printSystemMessage(out, "Waiting for changes...")

	<-ctx.Done()
	printSystemMessage(out, "Stopped watching.")
	return nil
}
