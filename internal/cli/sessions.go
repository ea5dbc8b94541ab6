package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/room"
	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04"

// infoNotifier prints confirmations only. Failures are returned to cobra and
// printed once by Execute.
func infoNotifier(out io.Writer) room.Notifier {
	return room.NotifierFunc(func(level room.Level, message string) {
		if level == room.LevelInfo {
			fmt.Fprintln(out, message)
		}
	})
}

// confirmer asks on the command's input unless --yes was given
func confirmer(cmd *cobra.Command, yes bool) room.Confirmer {
	if yes {
		return room.AlwaysConfirm
	}
	return newTerminal(cmd.InOrStdin(), cmd.OutOrStdout())
}

func newSessionsCmd(a *app) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session", "s"},
		Short:   "Manage live sessions",
	}

	sessionsCmd.AddCommand(
		newListCmd(a),
		newGetCmd(a),
		newCreateCmd(a),
		newUpdateCmd(a),
		newStartCmd(a),
		newEndCmd(a),
		newDeleteCmd(a),
	)
	return sessionsCmd
}

func newListCmd(a *app) *cobra.Command {
	var courseID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the sessions of a course, or your own sessions as a tutor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}

			lobby := room.NewLobby(c, room.Options{Auth: c.Auth(), API: c, Notifier: infoNotifier(cmd.OutOrStdout())})
			sessions, err := lobby.Sessions(cmd.Context(), courseID)
			if err != nil {
				return err
			}
			return printSessions(cmd.OutOrStdout(), sessions, lobby)
		},
	}

	cmd.Flags().StringVar(&courseID, "course", "", "Course ID (omit to list your own sessions as a tutor)")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <session-id>",
		Short: "Show a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}

			session, err := c.GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printSession(cmd.OutOrStdout(), session, room.Actions(*session, c.Auth().Role()))
			return nil
		},
	}
}

func newCreateCmd(a *app) *cobra.Command {
	var (
		req       models.CreateSessionRequest
		scheduled string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Schedule a new session (tutor)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}

			if req.ScheduledAt, err = parseTime(scheduled); err != nil {
				return err
			}
			if err := models.Validate(req); err != nil {
				return err
			}

			session, err := c.CreateSession(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created session %s\n", session.ID)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.CourseID, "course", "", "Course ID")
	flags.StringVar(&req.Title, "title", "", "Title")
	flags.StringVar(&req.Description, "description", "", "Description")
	flags.StringVar(&scheduled, "at", "", `Start time, RFC 3339 or "2006-01-02 15:04" local time (default now)`)
	flags.IntVar(&req.Duration, "duration", 60, "Duration in minutes")
	flags.IntVar(&req.MaxParticipants, "max", 0, "Maximum number of participants (0 for no limit)")
	_ = cmd.MarkFlagRequired("course")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var (
		title, description, scheduled string
		duration, maxParticipants     int
	)

	cmd := &cobra.Command{
		Use:   "update <session-id>",
		Short: "Change a session (tutor)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}

			var req models.UpdateSessionRequest
			flags := cmd.Flags()
			if flags.Changed("title") {
				req.Title = &title
			}
			if flags.Changed("description") {
				req.Description = &description
			}
			if flags.Changed("at") {
				at, err := parseTime(scheduled)
				if err != nil {
					return err
				}
				req.ScheduledAt = &at
			}
			if flags.Changed("duration") {
				req.Duration = &duration
			}
			if flags.Changed("max") {
				req.MaxParticipants = &maxParticipants
			}
			if err := models.Validate(req); err != nil {
				return err
			}

			session, err := c.UpdateSession(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			printSession(cmd.OutOrStdout(), session, room.Actions(*session, c.Auth().Role()))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&title, "title", "", "Title")
	flags.StringVar(&description, "description", "", "Description")
	flags.StringVar(&scheduled, "at", "", `Start time, RFC 3339 or "2006-01-02 15:04" local time`)
	flags.IntVar(&duration, "duration", 0, "Duration in minutes")
	flags.IntVar(&maxParticipants, "max", 0, "Maximum number of participants (0 for no limit)")
	return cmd
}

// dashboard returns a lobby whose actions print the tutor's sessions again
// once they succeed
func (a *app) dashboard(cmd *cobra.Command, confirm room.Confirmer) (*room.Lobby, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}

	out := cmd.OutOrStdout()
	lobby := room.NewLobby(c, room.Options{
		Auth:      c.Auth(),
		API:       c,
		Confirmer: confirm,
		Notifier:  infoNotifier(out),
	})
	lobby.OnRefresh(func(sessions []models.Session) {
		fmt.Fprintln(out)
		_ = printSessions(out, sessions, lobby)
	})
	return lobby, nil
}

func newStartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start <session-id>",
		Short: "Make a scheduled session live (tutor)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lobby, err := a.dashboard(cmd, nil)
			if err != nil {
				return err
			}
			_, err = lobby.Controller().Start(cmd.Context(), args[0])
			return err
		},
	}
}

func newEndCmd(a *app) *cobra.Command {
	var (
		recordingURL string
		yes          bool
	)

	cmd := &cobra.Command{
		Use:   "end <session-id>",
		Short: "End a live session for everyone (tutor)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lobby, err := a.dashboard(cmd, confirmer(cmd, yes))
			if err != nil {
				return err
			}
			_, err = lobby.Controller().End(cmd.Context(), args[0], recordingURL)
			return err
		},
	}

	cmd.Flags().StringVar(&recordingURL, "recording", "", "URL of the session recording")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session that is not live (tutor)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lobby, err := a.dashboard(cmd, confirmer(cmd, yes))
			if err != nil {
				return err
			}
			return lobby.Controller().Delete(cmd.Context(), args[0])
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

// parseTime accepts RFC 3339 or a local "2006-01-02 15:04". Empty means now.
func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Now(), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(timeLayout, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, use RFC 3339 or %q", value, timeLayout)
	}
	return t, nil
}

func participantsLabel(s models.Session) string {
	if s.MaxParticipants > 0 {
		return fmt.Sprintf("%d/%d", s.ParticipantCount, s.MaxParticipants)
	}
	return fmt.Sprintf("%d", s.ParticipantCount)
}

func actionsLabel(actions []room.Action) string {
	if len(actions) == 0 {
		return "-"
	}
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	return strings.Join(names, ",")
}

func printSessions(out io.Writer, sessions []models.Session, lobby *room.Lobby) error {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSCHEDULED\tSTATUS\tPARTICIPANTS\tACTIONS")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.Title, s.ScheduledAt.Local().Format(timeLayout), s.Status,
			participantsLabel(s), actionsLabel(lobby.Actions(s)))
	}
	return w.Flush()
}

func printSession(out io.Writer, s *models.Session, actions []room.Action) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", s.ID)
	fmt.Fprintf(w, "Title:\t%s\n", s.Title)
	if s.Description != "" {
		fmt.Fprintf(w, "Description:\t%s\n", s.Description)
	}
	fmt.Fprintf(w, "Course:\t%s\n", s.CourseID)
	if s.TutorName != "" {
		fmt.Fprintf(w, "Tutor:\t%s\n", s.TutorName)
	}
	fmt.Fprintf(w, "Scheduled:\t%s (%d min)\n", s.ScheduledAt.Local().Format(timeLayout), s.Duration)
	fmt.Fprintf(w, "Status:\t%s\n", s.Status)
	fmt.Fprintf(w, "Participants:\t%s\n", participantsLabel(*s))
	if s.RecordingURL != "" {
		fmt.Fprintf(w, "Recording:\t%s\n", s.RecordingURL)
	}
	fmt.Fprintf(w, "Actions:\t%s\n", actionsLabel(actions))
	_ = w.Flush()
}

