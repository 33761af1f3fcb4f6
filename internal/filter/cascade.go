// Package filter drives the dependent year, make, model and EO number
// selectors of the user dashboard.
package filter

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/eocert/console/internal/api"
	"github.com/eocert/console/internal/notify"
	"github.com/eocert/console/types"
)

// Field identifies one selector. Order matters: each field depends on all
// fields before it.
type Field int

const (
	Year Field = iota
	Make
	Model
	EONumber

	fieldCount = 4
)

func (f Field) String() string {
	switch f {
	case Year:
		return "year"
	case Make:
		return "make"
	case Model:
		return "model"
	case EONumber:
		return "eo_number"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// Placeholder is the blank option text of the field.
func (f Field) Placeholder() string {
	switch f {
	case Year:
		return "-- Select Year --"
	case Make:
		return "-- Select Make --"
	case Model:
		return "-- Select Model --"
	default:
		return "-- Select EO Number --"
	}
}

// ParseField maps a query parameter name to a Field.
func ParseField(name string) (Field, bool) {
	for f := Year; f < fieldCount; f++ {
		if f.String() == name {
			return f, true
		}
	}
	return 0, false
}

// Choice is the state of one selector.
type Choice struct {
	Value   string
	Options []string
	Enabled bool
}

// Source lists the distinct values available for each field.
type Source interface {
	Years(ctx context.Context) ([]string, error)
	Makes(ctx context.Context, year string) ([]string, error)
	Models(ctx context.Context, year, vehicleMake string) ([]string, error)
	EONumbers(ctx context.Context, year, vehicleMake, model string) ([]string, error)
}

// ChangeFunc is called after any selection changes.
type ChangeFunc func(ctx context.Context, sel types.Filter) error

// Cascade holds the selectors. Downstream fields are always cleared and
// disabled before a fetch for them starts, and are enabled only once their
// options arrive.
type Cascade struct {
	mu       sync.Mutex
	fields   [fieldCount]Choice
	gen      [fieldCount]uint64
	src      Source
	notes    *notify.Notifier
	onChange ChangeFunc
}

// New returns a Cascade with every field disabled.
func New(src Source, notes *notify.Notifier, onChange ChangeFunc) *Cascade {
	return &Cascade{src: src, notes: notes, onChange: onChange}
}

// Field returns a copy of the state of f.
func (c *Cascade) Field(f Field) Choice {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := c.fields[f]
	ch.Options = append([]string(nil), ch.Options...)
	return ch
}

// Fields returns a copy of every field, in order.
func (c *Cascade) Fields() []Choice {
	out := make([]Choice, 0, fieldCount)
	for f := Year; f < fieldCount; f++ {
		out = append(out, c.Field(f))
	}
	return out
}

// Selection returns the current values as a list filter.
func (c *Cascade) Selection() types.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectionLocked()
}

func (c *Cascade) selectionLocked() types.Filter {
	return types.Filter{
		Year:     c.fields[Year].Value,
		Make:     c.fields[Make].Value,
		Model:    c.fields[Model].Value,
		EONumber: c.fields[EONumber].Value,
	}
}

// Init loads the year options.
func (c *Cascade) Init(ctx context.Context) error {
	return c.populate(ctx, Year)
}

// Select sets field to value, resets everything downstream, repopulates the
// next field when value is not blank and then fires the change hook.
func (c *Cascade) Select(ctx context.Context, field Field, value string) error {
	if field < Year || field >= fieldCount {
		return fmt.Errorf("unknown filter field %d", field)
	}
	c.set(field, value)

	var popErr error
	if value != "" && field+1 < fieldCount {
		popErr = c.populate(ctx, field+1)
	}
	if err := c.fireChange(ctx); err != nil {
		return err
	}
	return popErr
}

// Apply restores a whole selection in dependency order without firing the
// change hook between steps. Blank or unknown values stop the walk.
func (c *Cascade) Apply(ctx context.Context, sel types.Filter) error {
	values := [fieldCount]string{sel.Year, sel.Make, sel.Model, sel.EONumber}
	if len(c.Field(Year).Options) == 0 {
		if err := c.Init(ctx); err != nil {
			return err
		}
	}
	for f := Year; f < fieldCount; f++ {
		if values[f] == "" || !slices.Contains(c.Field(f).Options, values[f]) {
			return nil
		}
		c.set(f, values[f])
		if f+1 < fieldCount {
			if err := c.populate(ctx, f+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clear resets every selection. Year keeps its options and stays enabled.
func (c *Cascade) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.fields[Year].Value = ""
	c.resetFromLocked(Make)
	c.mu.Unlock()
	return c.fireChange(ctx)
}

func (c *Cascade) set(field Field, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fields[field].Value = value
	c.resetFromLocked(field + 1)
}

func (c *Cascade) resetFromLocked(from Field) {
	for f := from; f < fieldCount; f++ {
		c.fields[f] = Choice{}
		c.gen[f]++
	}
}

func (c *Cascade) populate(ctx context.Context, field Field) error {
	c.mu.Lock()
	sel := c.selectionLocked()
	gen := c.gen[field]
	c.mu.Unlock()

	var (
		options []string
		err     error
	)
	switch field {
	case Year:
		options, err = c.src.Years(ctx)
	case Make:
		options, err = c.src.Makes(ctx, sel.Year)
	case Model:
		options, err = c.src.Models(ctx, sel.Year, sel.Make)
	case EONumber:
		options, err = c.src.EONumbers(ctx, sel.Year, sel.Make, sel.Model)
	}
	if err != nil {
		slog.Error("filter_options_failed", "field", field.String(), "error", err)
		if c.notes != nil {
			c.notes.Error("%s", api.Message(err, "Failed to load "+field.String()+" options"))
		}
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen[field] != gen {
		// a newer selection reset this field while the fetch was in flight
		return nil
	}
	c.fields[field].Options = options
	c.fields[field].Enabled = true
	return nil
}

func (c *Cascade) fireChange(ctx context.Context) error {
	if c.onChange == nil {
		return nil
	}
	return c.onChange(ctx, c.Selection())
}
