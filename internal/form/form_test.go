package form

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/eocert/console/internal/api"
	"github.com/eocert/console/internal/backendtest"
	"github.com/eocert/console/internal/notify"
	"github.com/eocert/console/types"
)

func TestModalDismissal(t *testing.T) {
	m := NewModal()
	if m.HandleKey("Escape") {
		t.Fatalf("escape on a closed modal should do nothing")
	}

	m.Show("First", "a")
	m.Show("Second", "b")
	if v := m.View(); !v.Open || v.Title != "Second" || v.Body != "b" {
		t.Fatalf("expected body to be replaced, got %+v", v)
	}
	if m.HandleKey("Enter") {
		t.Fatalf("only escape should close")
	}
	if !m.HandleKey("Escape") || m.IsOpen() {
		t.Fatalf("expected escape to close")
	}

	m.Show("Third", "c")
	m.BackdropClick()
	if v := m.View(); v.Open || v.Body != nil {
		t.Fatalf("expected backdrop click to close and clear, got %+v", v)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		form CertificateForm
		ok   bool
	}{
		{name: "complete", form: CertificateForm{EONumber: "A-1", Year: "2020"}, ok: true},
		{name: "missing eo", form: CertificateForm{Year: "2020"}},
		{name: "missing year", form: CertificateForm{EONumber: "A-1"}},
		{name: "unparseable year", form: CertificateForm{EONumber: "A-1", Year: "soon"}},
		{name: "other fields unchecked", form: CertificateForm{EONumber: "x", Year: "1", EngineSize: "??"}, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.form.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrRequiredFields) {
				t.Fatalf("expected ErrRequiredFields, got %v", err)
			}
		})
	}
}

func TestFormParsing(t *testing.T) {
	f := FromValues(url.Values{KeyEONumber: {"A-9"}, KeyYear: {"2022"}, KeyExhaustECS: {"TWC, O2S"}})
	c := f.Certificate()
	if c.EONumber != "A-9" || c.Year != 2022 || c.ExhaustECS != "TWC, O2S" {
		t.Fatalf("unexpected certificate %+v", c)
	}

	args, err := FromArgs([]string{"eo_number=B-1", "make=KIA", "exhaust_ecs=a=b"})
	if err != nil {
		t.Fatalf("from args: %v", err)
	}
	if args.Make != "KIA" || args.ExhaustECS != "a=b" {
		t.Fatalf("unexpected form %+v", args)
	}
	if _, err := FromArgs([]string{"colour=red"}); err == nil {
		t.Fatalf("expected unknown key to fail")
	}
	if _, err := FromArgs([]string{"noequals"}); err == nil {
		t.Fatalf("expected malformed arg to fail")
	}

	merged := FromCertificate(types.Certificate{EONumber: "C-1", Year: 2019, VehicleMake: "FORD"}).Merge(CertificateForm{Year: "2020"})
	if merged.Year != "2020" || merged.Make != "FORD" || merged.EONumber != "C-1" {
		t.Fatalf("unexpected merge %+v", merged)
	}
	if len(merged.Inputs()) != 10 {
		t.Fatalf("expected every certificate field as an input")
	}
}

type editorFixture struct {
	backend *backendtest.Backend
	notes   *notify.Notifier
	editor  *Editor
	refresh int
}

func newEditorFixture(t *testing.T) *editorFixture {
	t.Helper()
	f := &editorFixture{backend: backendtest.New(t), notes: notify.New(nil)}
	admin := f.backend.AddUser(types.User{Username: "root", Email: "root@example.com", Role: types.RoleAdmin}, "pw")
	client := api.New(f.backend.URL(), api.StaticToken(f.backend.IssueToken(admin.ID)))
	f.editor = NewEditor(client, NewModal(), f.notes, func(context.Context) error {
		f.refresh++
		return nil
	})
	return f
}

func (f *editorFixture) lastNotice() notify.Notice {
	active := f.notes.Active(time.Now())
	if len(active) == 0 {
		return notify.Notice{}
	}
	return active[len(active)-1]
}

func TestSaveBlocksInvalidFormWithoutNetwork(t *testing.T) {
	f := newEditorFixture(t)
	f.editor.OpenCreate()

	err := f.editor.Save(context.Background(), CertificateForm{EONumber: "A-1"}, "")
	if !errors.Is(err, ErrRequiredFields) {
		t.Fatalf("expected ErrRequiredFields, got %v", err)
	}
	if len(f.backend.Requests("")) != 0 {
		t.Fatalf("expected no network call, got %d", len(f.backend.Requests("")))
	}
	if n := f.lastNotice(); n.Message != "EO number & year required" {
		t.Fatalf("unexpected notice %+v", n)
	}
	if !f.editor.Modal().IsOpen() {
		t.Fatalf("expected modal to stay open")
	}
}

func TestSaveCreateAndUpdate(t *testing.T) {
	f := newEditorFixture(t)
	ctx := context.Background()
	var savedIDs []string
	f.editor.OnSaved(func(_ context.Context, id string, _ types.Certificate) { savedIDs = append(savedIDs, id) })

	f.editor.OpenCreate()
	if err := f.editor.Save(ctx, CertificateForm{EONumber: "A-1", Year: "2021", Make: "FORD"}, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if f.editor.Modal().IsOpen() || f.refresh != 1 {
		t.Fatalf("expected modal closed and list refreshed")
	}
	if n := f.lastNotice(); n.Message != "Certificate added" {
		t.Fatalf("unexpected notice %+v", n)
	}

	id := f.backend.Certificates()[0].ID.String()
	if err := f.editor.OpenEdit(ctx, id); err != nil {
		t.Fatalf("open edit: %v", err)
	}
	body, ok := f.editor.Modal().View().Body.(*EditBody)
	if !ok || body.ID != id || body.Form.Make != "FORD" {
		t.Fatalf("unexpected edit body %#v", f.editor.Modal().View().Body)
	}

	body.Form.Model = "F150"
	if err := f.editor.Save(ctx, body.Form, id); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := f.backend.Certificates()[0]; got.VehicleModel != "F150" || got.Year != 2021 {
		t.Fatalf("unexpected stored certificate %+v", got)
	}
	if f.backend.Count(http.MethodPut, "/admin/eo-certificates/"+id) != 1 {
		t.Fatalf("expected one PUT")
	}
	if len(savedIDs) != 2 || savedIDs[0] != "" || savedIDs[1] != id {
		t.Fatalf("unexpected saved callbacks %v", savedIDs)
	}
}

func TestSaveFailureKeepsModalOpen(t *testing.T) {
	f := newEditorFixture(t)
	f.backend.AddCertificate(types.Certificate{EONumber: "DUP", Year: 2020})

	f.editor.OpenCreate()
	err := f.editor.Save(context.Background(), CertificateForm{EONumber: "DUP", Year: "2020"}, "")
	if err == nil {
		t.Fatalf("expected duplicate create to fail")
	}
	if !f.editor.Modal().IsOpen() || f.refresh != 0 {
		t.Fatalf("expected modal open and no refresh")
	}
	body := f.editor.Modal().View().Body.(*EditBody)
	if body.Form.EONumber != "DUP" {
		t.Fatalf("expected submitted values to be kept")
	}
	if n := f.lastNotice(); n.Message != "EO Number already exists" {
		t.Fatalf("unexpected notice %+v", n)
	}
}

func TestViewShowsDashesForBlanks(t *testing.T) {
	f := newEditorFixture(t)
	id := f.backend.AddCertificate(types.Certificate{EONumber: "V-1", Year: 2018})

	if err := f.editor.View(context.Background(), id.String()); err != nil {
		t.Fatalf("view: %v", err)
	}
	v := f.editor.Modal().View()
	detail, ok := v.Body.(*DetailBody)
	if !ok || v.Title != "Certificate Details" {
		t.Fatalf("unexpected modal %+v", v)
	}
	if detail.Fields[0].Value != "V-1" || detail.Fields[2].Value != "-" {
		t.Fatalf("unexpected fields %+v", detail.Fields)
	}

	if err := f.editor.View(context.Background(), "999"); err == nil {
		t.Fatalf("expected missing certificate to fail")
	}
	if n := f.lastNotice(); n.Message != "Error loading certificate: Certificate not found" {
		t.Fatalf("unexpected notice %+v", n)
	}
}
