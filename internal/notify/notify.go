// Package notify holds the transient notices shown to the operator.
package notify

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fatih/color"
)

// DefaultTTL is how long a notice stays visible.
const DefaultTTL = 3 * time.Second

type Level string

const (
	Info    Level = "info"
	Success Level = "success"
	Error   Level = "error"
)

// Notice is a single message with its expiry.
type Notice struct {
	Level   Level
	Message string
	Expires time.Time
}

// Notifier collects notices. Each notice is logged when raised and expires
// after TTL. An optional writer receives a coloured copy for terminals.
type Notifier struct {
	mu      sync.Mutex
	notices []Notice
	ttl     time.Duration
	now     func() time.Time
	out     io.Writer
}

// New returns a Notifier. out may be nil.
func New(out io.Writer) *Notifier {
	return &Notifier{ttl: DefaultTTL, now: time.Now, out: out}
}

// WithClock replaces the clock, for tests.
func (n *Notifier) WithClock(now func() time.Time) *Notifier {
	n.now = now
	return n
}

func (n *Notifier) Info(format string, args ...any)    { n.Notify(Info, fmt.Sprintf(format, args...)) }
func (n *Notifier) Success(format string, args ...any) { n.Notify(Success, fmt.Sprintf(format, args...)) }
func (n *Notifier) Error(format string, args ...any)   { n.Notify(Error, fmt.Sprintf(format, args...)) }

// Notify records msg at level.
func (n *Notifier) Notify(level Level, msg string) {
	switch level {
	case Error:
		slog.Error("notice", "message", msg)
	default:
		slog.Info("notice", "level", string(level), "message", msg)
	}

	n.mu.Lock()
	n.notices = append(n.notices, Notice{Level: level, Message: msg, Expires: n.now().Add(n.ttl)})
	out := n.out
	n.mu.Unlock()

	if out != nil {
		fmt.Fprintln(out, colorize(level, msg))
	}
}

// Active prunes expired notices and returns the rest, oldest first.
func (n *Notifier) Active(now time.Time) []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	kept := n.notices[:0]
	for _, notice := range n.notices {
		if now.Before(notice.Expires) {
			kept = append(kept, notice)
		}
	}
	n.notices = kept
	return append([]Notice(nil), kept...)
}

// Drain returns every active notice and forgets them all.
func (n *Notifier) Drain() []Notice {
	active := n.Active(n.now())
	n.mu.Lock()
	n.notices = nil
	n.mu.Unlock()
	return active
}

func colorize(level Level, msg string) string {
	switch level {
	case Success:
		return color.GreenString(msg)
	case Error:
		return color.RedString(msg)
	default:
		return color.CyanString(msg)
	}
}
