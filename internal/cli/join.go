package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/navikt/liveroom/internal/chat"
	"github.com/navikt/liveroom/internal/client"
	"github.com/navikt/liveroom/internal/config"
	"github.com/navikt/liveroom/internal/media"
	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/room"
	"github.com/navikt/liveroom/internal/signaling"
	"github.com/spf13/cobra"
)

// joinFlags are the options of the join command that are not in viper
type joinFlags struct {
	fakeMedia bool
	noVideo   bool
}

func newJoinCmd(a *app, defaults config.ClientConfig) *cobra.Command {
	var jf joinFlags

	cmd := &cobra.Command{
		Use:   "join <session-id>",
		Short: "Join a live session from the terminal",
		Long: `Joins a live session: chat from the terminal and stream the configured media
files to the other participant. Type /help in the room for the commands.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.join(ctx, cmd, args[0], jf)
		},
	}

	flags := cmd.Flags()
	flags.String("chat-transport", defaults.ChatTransport, "How new chat messages are discovered: poll or push")
	flags.Duration("poll-interval", defaults.PollInterval, "Chat refresh period when polling")
	flags.Duration("refresh-interval", defaults.RefreshInterval, "Session info refresh period")
	flags.StringSlice("ice-server", defaults.ICEServers, "STUN/TURN server URL (repeatable)")
	flags.String("camera", defaults.CameraFile, "IVF file used as the camera")
	flags.String("microphone", defaults.MicrophoneFile, "Ogg/Opus file used as the microphone")
	flags.String("display", defaults.DisplayFile, "IVF file used for screen sharing")
	flags.Bool("welcome", defaults.SeedWelcome, "Show a welcome notice in the chat")
	flags.BoolVar(&jf.fakeMedia, "fake-media", false, "Use generated tracks instead of media files")
	flags.BoolVar(&jf.noVideo, "no-video", false, "Join with chat only")

	a.bind(chatTransportKey, flags.Lookup("chat-transport"), defaults.ChatTransport)
	a.bind(pollIntervalKey, flags.Lookup("poll-interval"), defaults.PollInterval)
	a.bind(refreshIntervalKey, flags.Lookup("refresh-interval"), defaults.RefreshInterval)
	a.bind(iceServersKey, flags.Lookup("ice-server"), defaults.ICEServers)
	a.bind(cameraFileKey, flags.Lookup("camera"), defaults.CameraFile)
	a.bind(microphoneFileKey, flags.Lookup("microphone"), defaults.MicrophoneFile)
	a.bind(displayFileKey, flags.Lookup("display"), defaults.DisplayFile)
	a.bind(seedWelcomeKey, flags.Lookup("welcome"), defaults.SeedWelcome)
	return cmd
}

// roomOptions builds the options of a room for the configured user
func (a *app) roomOptions(c *client.Client, term *terminal, jf joinFlags) (room.Options, error) {
	self := c.Auth().Participant()

	opts := room.Options{
		Auth:            c.Auth(),
		API:             c,
		Devices:         a.devices(jf),
		Preview:         media.NopSink{},
		Notifier:        term,
		Confirmer:       term,
		PollInterval:    a.v.GetDuration(pollIntervalKey),
		RefreshInterval: a.v.GetDuration(refreshIntervalKey),
		ICEServers:      a.v.GetStringSlice(iceServersKey),
		SeedWelcome:     a.v.GetBool(seedWelcomeKey),
		OnChat: func(msgs []models.ChatMessage) {
			term.showChat(msgs, self)
		},
		OnMedia:        term.showMedia,
		OnParticipants: term.showParticipants,
		OnClosed: func(reason string) {
			if reason != "" {
				term.printf("* %s\n", reason)
			}
		},
	}

	switch mode := a.v.GetString(chatTransportKey); mode {
	case config.ChatTransportPoll, "":
	case config.ChatTransportPush:
		opts.ChatTransport = chat.NewPushTransport(c, c.EventsURL, c.Auth().Token())
	default:
		return room.Options{}, fmt.Errorf("unknown chat transport %q, use %s or %s", mode, config.ChatTransportPoll, config.ChatTransportPush)
	}

	if !jf.noVideo {
		opts.Signal = func(ctx context.Context, sessionID, peerID string) (signaling.Channel, error) {
			return signaling.Dial(ctx, c.SignalURL(sessionID), c.Auth().Token(), peerID)
		}
	}
	return opts, nil
}

func (a *app) devices(jf joinFlags) media.Devices {
	if jf.fakeMedia {
		return &media.StaticDevices{}
	}
	return media.FileDevices{
		CameraFile:     a.v.GetString(cameraFileKey),
		MicrophoneFile: a.v.GetString(microphoneFileKey),
		DisplayFile:    a.v.GetString(displayFileKey),
	}
}

func (a *app) join(ctx context.Context, cmd *cobra.Command, sessionID string, jf joinFlags) error {
	c, err := a.client()
	if err != nil {
		return err
	}

	term := newTerminal(cmd.InOrStdin(), cmd.OutOrStdout())
	opts, err := a.roomOptions(c, term, jf)
	if err != nil {
		return err
	}

	session, err := c.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	r, err := room.NewLobby(c, opts).JoinFromDashboard(ctx, *session)
	if err != nil {
		return err
	}
	defer r.Close()

	term.printf("Joined %q as %s. Type /help for commands.\n", session.Title, c.Auth().Name())
	return runREPL(ctx, r, term)
}
