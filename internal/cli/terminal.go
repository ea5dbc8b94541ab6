package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/navikt/liveroom/internal/chat"
	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/room"
)

// terminal is the line-based UI of the CLI. It reads input on its own
// goroutine so the REPL can wait on the room at the same time, and it
// serializes output coming from the room's callbacks.
type terminal struct {
	lines <-chan string

	mu       sync.Mutex
	out      io.Writer
	rendered map[string]string
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	return &terminal{
		lines:    lines,
		out:      out,
		rendered: make(map[string]string),
	}
}

// readLine returns the next input line. ok is false at end of input.
func (t *terminal) readLine(ctx context.Context) (line string, ok bool, err error) {
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case line, ok = <-t.lines:
		return line, ok, nil
	}
}

func (t *terminal) printf(format string, args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

// Notify implements room.Notifier
func (t *terminal) Notify(level room.Level, message string) {
	if level == room.LevelInfo {
		t.printf("* %s\n", message)
		return
	}
	t.printf("[%s] %s\n", level, message)
}

// Confirm implements room.Confirmer by asking on the terminal
func (t *terminal) Confirm(ctx context.Context, prompt string) (bool, error) {
	t.printf("%s [y/N] ", prompt)

	line, ok, err := t.readLine(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// showChat prints the bubbles that are new or changed since the last snapshot
func (t *terminal) showChat(msgs []models.ChatMessage, self models.Participant) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, b := range chat.Bubbles(msgs, self) {
		line := b.Render()
		if t.rendered[b.Key] == line {
			continue
		}
		t.rendered[b.Key] = line
		fmt.Fprintln(t.out, line)
	}
}

func (t *terminal) showMedia(state models.LocalMediaState) {
	mic, camera := "on", "on"
	if state.Muted {
		mic = "muted"
	}
	if state.VideoOff {
		camera = "off"
	}
	screen := ""
	if state.ScreenSharing {
		screen = ", sharing screen"
	}
	t.printf("* microphone %s, camera %s%s\n", mic, camera, screen)
}

func (t *terminal) showParticipants(participants []models.Participant) {
	names := make([]string, 0, len(participants))
	for _, p := range participants {
		name := p.Name
		if p.Role == models.RoleTutor {
			name += " (tutor)"
		}
		names = append(names, name)
	}
	t.printf("* in the room: %s\n", strings.Join(names, ", "))
}
