// Package notify is the toast presenter used by client services to tell the
// user what happened. Delivery is fire-and-forget.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

type Notification struct {
	Kind    Kind
	Title   string
	Message string
}

type Notifier interface {
	Notify(n Notification)
}

func Success(title, message string) Notification {
	return Notification{Kind: KindSuccess, Title: title, Message: message}
}

func Error(title, message string) Notification {
	return Notification{Kind: KindError, Title: title, Message: message}
}

func Info(title, message string) Notification {
	return Notification{Kind: KindInfo, Title: title, Message: message}
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	log logging.Logger
}

func NewLogNotifier(l logging.Logger) *LogNotifier {
	return &LogNotifier{log: l.With("module", "notify")}
}

func (n *LogNotifier) Notify(x Notification) {
	ctx := context.Background()
	if x.Kind == KindError {
		n.log.Warn(ctx, x.Title, "message", x.Message)
		return
	}
	n.log.Info(ctx, x.Title, "kind", string(x.Kind), "message", x.Message)
}

// WriterNotifier prints notifications to a terminal.
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

func (n *WriterNotifier) Notify(x Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()

	mark := "i"
	switch x.Kind {
	case KindSuccess:
		mark = "+"
	case KindError:
		mark = "!"
	}
	if x.Message == "" {
		fmt.Fprintf(n.w, "[%s] %s\n", mark, x.Title)
		return
	}
	fmt.Fprintf(n.w, "[%s] %s: %s\n", mark, x.Title, x.Message)
}

// Multi delivers each notification to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(x Notification) {
	for _, n := range m {
		n.Notify(x)
	}
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

func (r *Recorder) Notify(x Notification) {
	r.mu.Lock()
	r.all = append(r.all, x)
	r.mu.Unlock()
}

func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.all...)
}

// Last returns the most recent notification, or the zero value.
func (r *Recorder) Last() Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.all) == 0 {
		return Notification{}
	}
	return r.all[len(r.all)-1]
}
