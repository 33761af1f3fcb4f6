// Package admin manages user approvals and destructive admin actions.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eocert/console/internal/api"
	"github.com/eocert/console/internal/notify"
	"github.com/eocert/console/types"
)

var (
	// ErrInFlight rejects a second action on a user whose previous action
	// has not completed.
	ErrInFlight = errors.New("action already in progress")

	// ErrCancelled is returned when the operator declines the confirmation.
	ErrCancelled = errors.New("action cancelled")
)

// Gateway is the slice of the API used by admin actions.
type Gateway interface {
	ListUsers(ctx context.Context) ([]types.User, error)
	UpdateUserStatus(ctx context.Context, id, status string) error
	DeleteUser(ctx context.Context, id string) error
	DeleteCertificate(ctx context.Context, id string) error
}

// ConfirmFunc asks the operator to confirm prompt.
type ConfirmFunc func(prompt string) bool

// Always confirms without asking.
func Always(string) bool { return true }

// Action is a button on a user row.
type Action string

const (
	Approve Action = "approve"
	Deny    Action = "deny"
	Delete  Action = "delete"
)

func (a Action) label() string {
	switch a {
	case Approve:
		return "Approve"
	case Deny:
		return "Deny"
	default:
		return "Delete"
	}
}

func (a Action) busyLabel() string {
	if a == Delete {
		return "Deleting..."
	}
	return "Updating..."
}

func statusAction(status string) Action {
	if status == types.StatusDenied {
		return Deny
	}
	return Approve
}

// Button is a row action view model.
type Button struct {
	Action   Action
	Label    string
	Disabled bool
}

// Row is one user line of the admin table.
type Row struct {
	User    types.User
	Buttons []Button
}

// Change describes a completed admin mutation.
type Change struct {
	Kind     string
	TargetID string
	Status   string
}

const (
	ChangeUserStatus        = "user.status"
	ChangeUserDelete        = "user.delete"
	ChangeCertificateDelete = "certificate.delete"
)

// Users is the user administration controller.
type Users struct {
	gw       Gateway
	confirm  ConfirmFunc
	notes    *notify.Notifier
	onChange func(ctx context.Context, c Change)

	mu      sync.Mutex
	pending []types.User
	others  []types.User
	errText string
	loaded  bool
	busy    map[types.ID]Action
}

// NewUsers wires the controller. confirm may be nil, which confirms every
// action.
func NewUsers(gw Gateway, confirm ConfirmFunc, notes *notify.Notifier) *Users {
	if confirm == nil {
		confirm = Always
	}
	return &Users{gw: gw, confirm: confirm, notes: notes, busy: map[types.ID]Action{}}
}

// OnChange registers a callback for completed mutations.
func (u *Users) OnChange(fn func(ctx context.Context, c Change)) {
	u.onChange = fn
}

// Load fetches every user and splits pending accounts from the rest,
// keeping backend order within each group.
func (u *Users) Load(ctx context.Context) error {
	users, err := u.gw.ListUsers(ctx)

	u.mu.Lock()
	defer u.mu.Unlock()
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) {
			u.errText = api.Message(err, "Failed to load users")
		} else {
			u.errText = "Error loading users"
		}
		slog.Error("load_users_failed", "error", err)
		return err
	}

	u.pending, u.others = nil, nil
	for _, user := range users {
		if user.Status == types.StatusPending {
			u.pending = append(u.pending, user)
		} else {
			u.others = append(u.others, user)
		}
	}
	u.errText = ""
	u.loaded = true
	return nil
}

// Pending returns the rows awaiting approval.
func (u *Users) Pending() []Row {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rowsLocked(u.pending, []Action{Approve, Deny})
}

// Others returns every non-pending row.
func (u *Users) Others() []Row {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rowsLocked(u.others, []Action{Delete})
}

// Loaded reports whether a listing has succeeded at least once.
func (u *Users) Loaded() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.loaded
}

// Message is the text shown instead of the table, or "".
func (u *Users) Message() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	switch {
	case u.errText != "":
		return u.errText
	case !u.loaded:
		return "Loading users..."
	case len(u.pending)+len(u.others) == 0:
		return "No users"
	default:
		return ""
	}
}

func (u *Users) rowsLocked(users []types.User, actions []Action) []Row {
	rows := make([]Row, 0, len(users))
	for _, user := range users {
		busy, inFlight := u.busy[user.ID]
		buttons := make([]Button, 0, len(actions))
		for _, a := range actions {
			b := Button{Action: a, Label: a.label()}
			if inFlight {
				b.Disabled = true
				if a == busy {
					b.Label = a.busyLabel()
				}
			}
			buttons = append(buttons, b)
		}
		rows = append(rows, Row{User: user, Buttons: buttons})
	}
	return rows
}

// SetStatus approves or denies a user after confirmation.
func (u *Users) SetStatus(ctx context.Context, id types.ID, status string) error {
	action := statusAction(status)
	prompt := fmt.Sprintf("Are you sure you want to %s this user?", action)
	return u.run(ctx, id, action, prompt, func(ctx context.Context) error {
		if err := u.gw.UpdateUserStatus(ctx, id.String(), status); err != nil {
			u.notes.Error("%s", api.Message(err, "Failed to update user status"))
			return err
		}
		u.notes.Success("User %s successfully", status)
		u.changed(ctx, Change{Kind: ChangeUserStatus, TargetID: id.String(), Status: status})
		return nil
	})
}

// Delete removes a user after confirmation.
func (u *Users) Delete(ctx context.Context, id types.ID) error {
	return u.run(ctx, id, Delete, "Delete user?", func(ctx context.Context) error {
		if err := u.gw.DeleteUser(ctx, id.String()); err != nil {
			u.notes.Error("%s", api.Message(err, "Failed to delete user"))
			return err
		}
		u.notes.Success("User deleted")
		u.changed(ctx, Change{Kind: ChangeUserDelete, TargetID: id.String()})
		return nil
	})
}

// run guards one user action: confirm, mark busy, call, release, reload.
func (u *Users) run(ctx context.Context, id types.ID, action Action, prompt string, call func(context.Context) error) error {
	u.mu.Lock()
	_, inFlight := u.busy[id]
	u.mu.Unlock()
	if inFlight {
		return ErrInFlight
	}
	if !u.confirm(prompt) {
		return ErrCancelled
	}

	u.mu.Lock()
	if _, inFlight := u.busy[id]; inFlight {
		u.mu.Unlock()
		return ErrInFlight
	}
	u.busy[id] = action
	u.mu.Unlock()

	err := call(ctx)

	u.mu.Lock()
	delete(u.busy, id)
	u.mu.Unlock()

	if err != nil {
		return err
	}
	if err := u.Load(ctx); err != nil {
		slog.Error("reload_users_failed", "error", err)
	}
	return nil
}

func (u *Users) changed(ctx context.Context, c Change) {
	if u.onChange != nil {
		u.onChange(ctx, c)
	}
}
