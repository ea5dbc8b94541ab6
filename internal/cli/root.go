// Package cli implements the liveroom command line client: managing sessions
// from the dashboard and joining a live session from the terminal.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/navikt/liveroom/internal/auth"
	"github.com/navikt/liveroom/internal/client"
	"github.com/navikt/liveroom/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	apiURLKey          = "api_url"
	tokenKey           = "token"
	requestTimeoutKey  = "request_timeout"
	chatTransportKey   = "chat_transport"
	pollIntervalKey    = "poll_interval"
	refreshIntervalKey = "refresh_interval"
	iceServersKey      = "ice_servers"
	cameraFileKey      = "camera_file"
	microphoneFileKey  = "microphone_file"
	displayFileKey     = "display_file"
	seedWelcomeKey     = "seed_welcome"
)

// leaveTimeout bounds the leave call made while shutting down
const leaveTimeout = 5 * time.Second

// app holds what every command shares
type app struct {
	v       *viper.Viper
	cfgFile string
}

// NewRootCmd builds the liveroom command tree. Defaults come from the
// LIVEROOM_* environment; a config file and flags override them.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "liveroom",
		Short:         "Client for LMS live sessions",
		Long:          `liveroom lists, schedules and runs live video sessions of a course, and joins them from the terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.readConfig()
		},
	}

	defaults := config.GetClientConfig()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.liveroom.yaml)")
	flags.String("api-url", defaults.APIURL, "Base URL of the live-session API")
	flags.String("token", "", "Session token (defaults to LIVEROOM_TOKEN)")
	flags.Duration("timeout", defaults.RequestTimeout, "Timeout of a single API call")

	a.bind(apiURLKey, flags.Lookup("api-url"), defaults.APIURL)
	a.bind(tokenKey, flags.Lookup("token"), defaults.Token)
	a.bind(requestTimeoutKey, flags.Lookup("timeout"), defaults.RequestTimeout)

	rootCmd.AddCommand(
		newSessionsCmd(a),
		newTokenCmd(a),
		newJoinCmd(a, defaults),
	)
	return rootCmd
}

// Execute runs the command line and exits non-zero on failure
func Execute() {
	config.LoadDotEnv()

	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describe(err))
		os.Exit(1)
	}
}

// bind makes key follow flag when it is set and def otherwise
func (a *app) bind(key string, flag *pflag.Flag, def interface{}) {
	a.v.SetDefault(key, def)
	_ = a.v.BindPFlag(key, flag)
}

// readConfig reads the optional config file
func (a *app) readConfig() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		a.v.AddConfigPath(home)
		a.v.SetConfigType("yaml")
		a.v.SetConfigName(".liveroom")
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", filepath.Clean(a.v.ConfigFileUsed()), err)
	}
	return nil
}

// client returns an API client authenticated with the configured token
func (a *app) client() (*client.Client, error) {
	token := a.v.GetString(tokenKey)
	if token == "" {
		return nil, errors.New("no session token: set LIVEROOM_TOKEN or pass --token")
	}
	ac, err := auth.NewContext(token)
	if err != nil {
		return nil, err
	}
	return client.New(a.v.GetString(apiURLKey), ac).WithTimeout(a.v.GetDuration(requestTimeoutKey)), nil
}

// anonymousClient returns an API client without credentials
func (a *app) anonymousClient() *client.Client {
	return client.New(a.v.GetString(apiURLKey), nil).WithTimeout(a.v.GetDuration(requestTimeoutKey))
}
