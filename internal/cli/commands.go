package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aretw0/citylink/internal/presentation/tui"
	"github.com/aretw0/citylink/pkg/domain"
	"github.com/aretw0/citylink/pkg/store"
)

// Status output formats.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// RunHost opens (or reclaims) a session and prints its code.
func RunHost(ctx context.Context, app *App, code string, out io.Writer) error {
	code, err := app.Client.Host(ctx, code)
	if err != nil {
		return err
	}
	printSystemMessage(out, "Hosting session %s. Share this code with your partner.", code)
	return app.Persist()
}

// RunJoin joins the session with code.
func RunJoin(ctx context.Context, app *App, code string, out io.Writer) error {
	if err := app.Client.Join(ctx, code); err != nil {
		return err
	}
	printSystemMessage(out, "%s", app.Client.StatusLabel())
	return app.Persist()
}

// RunLeave vacates the local participant's seat.
func RunLeave(ctx context.Context, app *App, out io.Writer) error {
	if err := app.Client.Disconnect(ctx); err != nil {
		return err
	}
	return app.Persist()
}

// RunStatus prints the status screen in the requested format.
func RunStatus(app *App, format string, out io.Writer) error {
	v := app.View()
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatMarkdown:
		md := tui.ReportMarkdown(v)
		if tui.IsTerminal(out) {
			rendered, err := tui.NewRenderer()(md)
			if err == nil {
				md = rendered
			}
		}
		_, err := io.WriteString(out, md)
		return err
	case FormatText, "":
		_, err := fmt.Fprintln(out, tui.RenderStatus(v))
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// RunSendOffer sends an offer built from "key=amount" specs.
func RunSendOffer(ctx context.Context, app *App, give, receive string, out io.Writer) error {
	g, err := ParseResource(give)
	if err != nil {
		return err
	}
	r, err := ParseResource(receive)
	if err != nil {
		return err
	}
	offer, err := app.Client.SendOffer(ctx, domain.Draft{
		GiveRes:       g.Key,
		GiveAmount:    g.Amount,
		ReceiveRes:    r.Key,
		ReceiveAmount: r.Amount,
	})
	if err != nil {
		return err
	}
	printSystemMessage(out, "Offer %s: %s", offer.ID, offer.Label())
	return app.Persist()
}

// RunSettleOffer accepts or rejects an incoming offer.
func RunSettleOffer(ctx context.Context, app *App, offerID string, accept bool) error {
	var err error
	if accept {
		err = app.Client.AcceptOffer(ctx, offerID)
	} else {
		err = app.Client.RejectOffer(ctx, offerID)
	}
	if err != nil {
		return err
	}
	return app.Persist()
}

// RunListSessions prints the code of every stored session.
func RunListSessions(ctx context.Context, st *store.Store, out io.Writer) error {
	codes, err := st.List(ctx)
	if err != nil {
		return err
	}
	if len(codes) == 0 {
		fmt.Fprintln(out, "No active sessions found.")
		return nil
	}
	for _, code := range codes {
		fmt.Fprintln(out, code)
	}
	return nil
}

// RunInspectSession prints a stored session as indented JSON.
func RunInspectSession(ctx context.Context, st *store.Store, code string, out io.Writer) error {
	sess, ok := st.Load(ctx, code)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, store.NormalizeCode(code))
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// RunRemoveSession deletes a stored session regardless of who occupies it.
func RunRemoveSession(ctx context.Context, st *store.Store, code string, out io.Writer) error {
	if err := st.Delete(ctx, code); err != nil {
		return err
	}
	printSystemMessage(out, "Session %s deleted.", store.NormalizeCode(code))
	return nil
}

// RunListOffers prints incoming and sent offers, one per line.
func RunListOffers(app *App, out io.Writer) error {
	write := func(title string, offers []domain.Offer) {
		fmt.Fprintf(out, "%s:\n", title)
		if len(offers) == 0 {
			fmt.Fprintln(out, "  none")
			return
		}
		for _, o := range offers {
			fmt.Fprintf(out, "  %s  %s  [%s]\n", o.ID, o.Label(), o.Status)
		}
	}
	write("incoming", app.Client.IncomingOffers())
	write("sent", app.Client.OutgoingOffers())
	return nil
}
