// Package console prints routed events as terminal lines for `jstail tail`.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/moroshma/jstail/internal/domain/entity"
)

const defaultMaxPayload = 512

// Options configures a Renderer
type Options struct {
	// MaxPayload truncates printed payloads. Zero uses the default, negative hides them.
	MaxPayload int
	// Headers prints message headers after the payload.
	Headers bool
}

// Renderer implements router.Sink
type Renderer struct {
	out  io.Writer
	opts Options
	mu   sync.Mutex

	stream  func(a ...interface{}) string
	subject func(a ...interface{}) string
	good    func(a ...interface{}) string
	bad     func(a ...interface{}) string
	dim     func(a ...interface{}) string
}

func NewRenderer(out io.Writer, opts Options) *Renderer {
	if opts.MaxPayload == 0 {
		opts.MaxPayload = defaultMaxPayload
	}
	return &Renderer{
		out:     out,
		opts:    opts,
		stream:  color.New(color.FgCyan, color.Bold).SprintFunc(),
		subject: color.New(color.FgBlue).SprintFunc(),
		good:    color.New(color.FgGreen).SprintFunc(),
		bad:     color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:     color.New(color.Faint).SprintFunc(),
	}
}

// Deliver writes one line per event.
func (r *Renderer) Deliver(ev entity.Event) {
	line := r.format(ev)
	if line == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, line)
}

func (r *Renderer) format(ev entity.Event) string {
	switch e := ev.(type) {
	case entity.StreamsEvent:
		names := make([]string, 0, len(e.Streams))
		for _, s := range e.Streams {
			names = append(names, r.stream(s.Name))
		}
		return fmt.Sprintf("%s %d: %s", r.dim("streams"), len(names), strings.Join(names, ", "))
	case entity.ConsumersEvent:
		names := make([]string, 0, len(e.Consumers))
		for _, c := range e.Consumers {
			names = append(names, c.Name)
		}
		return fmt.Sprintf("%s %s: %s", r.dim("consumers"), r.stream(e.Stream), strings.Join(names, ", "))
	case entity.MessageEvent:
		return r.message("["+e.Message.Stream+"]", e.Message)
	case entity.MessageTraceEvent:
		return r.message(r.dim("trace")+" "+e.MessageID+" "+e.TraceKind, e.Message)
	case entity.MessageFailureEvent:
		return r.message(r.bad("failure")+" "+e.MessageID, e.Message)
	case entity.ConnectivityChangedEvent:
		status := string(e.Status)
		if e.Status.Healthy() {
			status = r.good(status)
		} else if e.Status == entity.StatusError || e.Status == entity.StatusConnectionError {
			status = r.bad(status)
		}
		if e.Message == "" {
			return fmt.Sprintf("%s %s", r.dim("status"), status)
		}
		return fmt.Sprintf("%s %s: %s", r.dim("status"), status, e.Message)
	}
	return ""
}

func (r *Renderer) message(prefix string, msg *entity.Message) string {
	if msg == nil {
		return prefix
	}

	var b strings.Builder
	b.WriteString(prefix)
	if !msg.Timestamp.IsZero() {
		b.WriteString(" ")
		b.WriteString(r.dim(msg.Timestamp.Format(time.RFC3339Nano)))
	}
	fmt.Fprintf(&b, " %s #%d", r.subject(msg.Subject), msg.Sequence)

	if r.opts.MaxPayload > 0 {
		b.WriteString(" ")
		b.WriteString(payload(msg.Data, r.opts.MaxPayload))
	}
	if r.opts.Headers && len(msg.Headers) > 0 {
		fmt.Fprintf(&b, " %s", r.dim(fmt.Sprint(msg.Headers)))
	}
	return b.String()
}

func payload(data []byte, max int) string {
	if !utf8.Valid(data) {
		return fmt.Sprintf("<%d bytes>", len(data))
	}
	s := string(data)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}
