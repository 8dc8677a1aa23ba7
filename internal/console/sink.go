// Package console is the terminal side of the chat: a colored severity sink,
// a line reader and a backlog table.
package console

//go:generate mockgen -source=sink.go -destination=mock/mock_sink.go -package=mock

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gookit/color"
)

// Severity ranks console notices.
type Severity int

const (
	SeverityText Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityText:
		return "text"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Sink receives user-facing notices.
type Sink interface {
	Notify(text string, severity Severity)
}

// Discard drops every notice.
var Discard Sink = discard{}

type discard struct{}

func (discard) Notify(string, Severity) {}

var styles = map[Severity]color.Style{
	SeverityInfo:    color.New(color.FgWhite, color.BgCyan),
	SeverityWarning: color.New(color.FgBlack, color.BgYellow),
	SeverityError:   color.New(color.FgWhite, color.BgRed),
}

// ColorSink prints "[15:04:05]  text" lines, colored by severity.
type ColorSink struct {
	mu      sync.Mutex
	out     io.Writer
	now     func() time.Time
	noColor bool
}

func NewColorSink(out io.Writer, noColor bool) *ColorSink {
	return &ColorSink{out: out, now: time.Now, noColor: noColor}
}

func (s *ColorSink) Notify(text string, severity Severity) {
	line := " " + text + " "
	if style, ok := styles[severity]; ok && !s.noColor {
		line = style.Render(line)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "[%s] %s\n", s.now().Format(time.TimeOnly), line)
}
