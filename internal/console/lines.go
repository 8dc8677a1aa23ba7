package console

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// ReadLines delivers trimmed, non-empty input lines until r ends or ctx is
// cancelled. The returned channel is closed when reading stops.
func ReadLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			select {
			case lines <- text:
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// Prompt writes question and returns the next non-empty line.
func Prompt(w io.Writer, r *bufio.Reader, question string) (string, error) {
	for {
		if _, err := io.WriteString(w, question+"\n"); err != nil {
			return "", err
		}
		line, err := r.ReadString('\n')
		if text := strings.TrimSpace(line); text != "" {
			return text, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// Commands understood by both binaries.
const (
	CommandHistory = "/history"
	CommandQuit    = "/quit"
)
