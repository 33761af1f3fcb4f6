package admin

import (
	"context"
	"log/slog"

	"github.com/eocert/console/internal/api"
	"github.com/eocert/console/internal/notify"
)

// Certificates runs destructive certificate actions.
type Certificates struct {
	gw       Gateway
	confirm  ConfirmFunc
	notes    *notify.Notifier
	refresh  func(ctx context.Context) error
	onChange func(ctx context.Context, c Change)
}

// NewCertificates wires certificate actions. refresh re-fetches the admin
// list at its current page.
func NewCertificates(gw Gateway, confirm ConfirmFunc, notes *notify.Notifier, refresh func(ctx context.Context) error) *Certificates {
	if confirm == nil {
		confirm = Always
	}
	return &Certificates{gw: gw, confirm: confirm, notes: notes, refresh: refresh}
}

// OnChange registers a callback for completed deletions.
func (c *Certificates) OnChange(fn func(ctx context.Context, c Change)) {
	c.onChange = fn
}

// Delete removes a certificate after confirmation and reloads the list.
func (c *Certificates) Delete(ctx context.Context, id string) error {
	if !c.confirm("Delete certificate?") {
		return ErrCancelled
	}
	if err := c.gw.DeleteCertificate(ctx, id); err != nil {
		slog.Error("certificate_delete_failed", "id", id, "error", err)
		c.notes.Error("%s", api.Message(err, "Failed to delete certificate"))
		return err
	}
	c.notes.Success("Deleted")
	if c.onChange != nil {
		c.onChange(ctx, Change{Kind: ChangeCertificateDelete, TargetID: id})
	}
	if c.refresh != nil {
		return c.refresh(ctx)
	}
	return nil
}
