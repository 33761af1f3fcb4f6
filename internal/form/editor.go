package form

import (
	"context"
	"errors"
	"log/slog"

	"github.com/eocert/console/internal/api"
	"github.com/eocert/console/internal/notify"
	"github.com/eocert/console/types"
)

// Gateway is the slice of the API the editor calls.
type Gateway interface {
	GetCertificate(ctx context.Context, id string) (types.Certificate, error)
	CreateCertificate(ctx context.Context, cert types.Certificate) error
	UpdateCertificate(ctx context.Context, id string, cert types.Certificate) error
}

// EditBody is the modal body of the create/edit form. ID is empty when
// creating.
type EditBody struct {
	ID   string
	Form CertificateForm
}

// DetailBody is the read-only certificate table.
type DetailBody struct {
	Fields []types.Field
}

// Saved is called after a successful create or update.
type Saved func(ctx context.Context, id string, cert types.Certificate)

// Editor opens certificates in the modal and saves them.
type Editor struct {
	gw      Gateway
	modal   *Modal
	notes   *notify.Notifier
	refresh func(ctx context.Context) error
	saved   Saved
}

// NewEditor wires an editor. refresh reloads the admin list at its current
// page after a save; it may be nil.
func NewEditor(gw Gateway, modal *Modal, notes *notify.Notifier, refresh func(ctx context.Context) error) *Editor {
	return &Editor{gw: gw, modal: modal, notes: notes, refresh: refresh}
}

// OnSaved registers a callback run after each successful save.
func (e *Editor) OnSaved(fn Saved) {
	e.saved = fn
}

func (e *Editor) Modal() *Modal {
	return e.modal
}

// OpenCreate shows an empty form.
func (e *Editor) OpenCreate() {
	e.modal.Show("Add Certificate", &EditBody{})
}

// OpenEdit loads the certificate and shows it in the form.
func (e *Editor) OpenEdit(ctx context.Context, id string) error {
	cert, err := e.gw.GetCertificate(ctx, id)
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) {
			e.notes.Error("Not found")
		} else {
			e.notes.Error("Failed to load certificate")
		}
		return err
	}
	e.modal.Show("Edit Certificate", &EditBody{ID: id, Form: FromCertificate(cert)})
	return nil
}

// View shows the read-only detail table. Blank values render as "-".
func (e *Editor) View(ctx context.Context, id string) error {
	cert, err := e.gw.GetCertificate(ctx, id)
	if err != nil {
		e.notes.Error("Error loading certificate: %s", api.Message(err, err.Error()))
		return err
	}
	fields := cert.Fields()
	for i := range fields {
		if fields[i].Value == "" {
			fields[i].Value = "-"
		}
	}
	e.modal.Show("Certificate Details", &DetailBody{Fields: fields})
	return nil
}

// Save creates (empty id) or updates a certificate. An invalid form never
// reaches the network. On failure the modal stays open with the submitted
// values.
func (e *Editor) Save(ctx context.Context, f CertificateForm, id string) error {
	if err := f.Validate(); err != nil {
		e.notes.Error("%s", err.Error())
		e.keepOpen(f, id)
		return err
	}

	cert := f.Certificate()
	var err error
	if id == "" {
		err = e.gw.CreateCertificate(ctx, cert)
	} else {
		err = e.gw.UpdateCertificate(ctx, id, cert)
	}
	if err != nil {
		slog.Error("certificate_save_failed", "id", id, "error", err)
		fallback := "Error adding certificate"
		if id != "" {
			fallback = "Error updating certificate"
		}
		e.notes.Error("%s", api.Message(err, fallback))
		e.keepOpen(f, id)
		return err
	}

	if id == "" {
		e.notes.Success("Certificate added")
	} else {
		e.notes.Success("Updated")
	}
	e.modal.Close()
	if e.saved != nil {
		e.saved(ctx, id, cert)
	}
	if e.refresh != nil {
		return e.refresh(ctx)
	}
	return nil
}

func (e *Editor) keepOpen(f CertificateForm, id string) {
	title := "Add Certificate"
	if id != "" {
		title = "Edit Certificate"
	}
	e.modal.Show(title, &EditBody{ID: id, Form: f})
}
