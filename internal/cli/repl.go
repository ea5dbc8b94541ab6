package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/navikt/liveroom/internal/client"
	"github.com/navikt/liveroom/internal/room"
)

// Room commands understood by the REPL. Anything not starting with a slash
// is sent to the chat.
const (
	cmdMute    = "/mute"
	cmdVideo   = "/video"
	cmdShare   = "/share"
	cmdUnshare = "/unshare"
	cmdStart   = "/start"
	cmdEnd     = "/end"
	cmdLeave   = "/leave"
	cmdWho     = "/who"
	cmdHelp    = "/help"
)

const replHelp = `Type a message and press enter to send it to the chat.
  /mute          mute or unmute the microphone
  /video         turn the camera off or on
  /share         share your screen (tutor)
  /unshare       stop sharing your screen
  /start         start the session (tutor)
  /end [url]     end the session for everyone, optionally with a recording URL (tutor)
  /who           list the people in the room
  /leave         leave the room
`

var errUnknownCommand = errors.New("unknown command")

// input is one parsed REPL line
type input struct {
	// command is empty for chat messages
	command string
	args    []string
	text    string
}

// parseInput splits a REPL line into a room command or a chat message.
// Command arguments follow shell quoting rules.
func parseInput(line string) (input, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return input{text: line}, nil
	}

	words, err := shellwords.Parse(line)
	if err != nil {
		return input{}, fmt.Errorf("failed to parse command: %w", err)
	}
	if len(words) == 0 {
		return input{}, errUnknownCommand
	}

	switch words[0] {
	case cmdMute, cmdVideo, cmdShare, cmdUnshare, cmdStart, cmdWho, cmdLeave, cmdHelp:
		if len(words) > 1 {
			return input{}, fmt.Errorf("%s takes no arguments", words[0])
		}
	case cmdEnd:
		if len(words) > 2 {
			return input{}, fmt.Errorf("usage: %s [recording-url]", cmdEnd)
		}
	case "/quit", "/exit":
		words[0] = cmdLeave
	default:
		return input{}, fmt.Errorf("%w %s, type %s", errUnknownCommand, words[0], cmdHelp)
	}

	return input{command: words[0], args: words[1:]}, nil
}

// runREPL drives a joined room from the terminal until the user leaves, the
// room closes or ctx is done
func runREPL(ctx context.Context, r *room.Room, term *terminal) error {
	for {
		line, ok, err := nextLine(ctx, r, term)
		if err != nil || !ok {
			return leave(r)
		}
		if r.State() == room.StateClosed {
			return nil
		}

		in, err := parseInput(line)
		if err != nil {
			term.printf("%v\n", err)
			continue
		}

		// The room reports failed actions through the terminal notifier
		done, _ := handle(ctx, r, term, in)
		if done {
			return nil
		}
	}
}

// nextLine waits for input, returning early with ok=false once the room is
// torn down
func nextLine(ctx context.Context, r *room.Room, term *terminal) (string, bool, error) {
	select {
	case <-r.Done():
		return "", false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	case line, ok := <-term.lines:
		return line, ok, nil
	}
}

func handle(ctx context.Context, r *room.Room, term *terminal, in input) (done bool, err error) {
	switch in.command {
	case "":
		if in.text == "" {
			return false, nil
		}
		return false, r.SendMessage(ctx, in.text)
	case cmdMute:
		r.ToggleMute()
	case cmdVideo:
		r.ToggleVideo()
	case cmdShare:
		return false, r.StartScreenShare(ctx)
	case cmdUnshare:
		return false, r.StopScreenShare()
	case cmdStart:
		_, err = r.Controller().Start(ctx, r.ID())
		return false, err
	case cmdEnd:
		recordingURL := ""
		if len(in.args) > 0 {
			recordingURL = in.args[0]
		}
		if err := r.End(ctx, recordingURL); err != nil {
			if errors.Is(err, room.ErrCancelled) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	case cmdWho:
		term.showParticipants(r.Participants())
		if transport := r.Transport(); transport != nil {
			term.printf("video: %s\n", transport.ConnectionState())
		}
	case cmdHelp:
		term.printf("%s", replHelp)
	case cmdLeave:
		return true, leave(r)
	}
	return false, nil
}

func leave(r *room.Room) error {
	if r.State() == room.StateClosed {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	return r.Leave(ctx)
}

// describe turns an error into a line for the terminal
func describe(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return client.UserMessage(err)
	}
	return err.Error()
}
