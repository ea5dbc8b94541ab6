// Package config provides configuration management for the application
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Chat transport modes
const (
	ChatTransportPoll = "poll"
	ChatTransportPush = "push"
)

// ClientConfig holds configuration for the live-session client
type ClientConfig struct {
	// APIURL is the base URL of the REST backend
	APIURL string
	// Token is the bearer token used for every authenticated call
	Token string
	// ChatTransport selects how new chat messages are discovered (poll or push)
	ChatTransport string
	// PollInterval is the period of the chat refresh timer
	PollInterval time.Duration
	// RefreshInterval is the period of the session-info refresh timer
	RefreshInterval time.Duration
	// ICEServers are STUN/TURN URLs handed to the peer connection
	ICEServers []string
	// Media sources for the file-backed capture devices
	CameraFile     string
	MicrophoneFile string
	DisplayFile    string
	// SeedWelcome adds a local welcome notice to the chat on join
	SeedWelcome bool
	// RequestTimeout bounds a single REST call
	RequestTimeout time.Duration
}

// ServerConfig holds configuration for the development backend
type ServerConfig struct {
	Port      string
	JWTSecret string
	TokenTTL  time.Duration
	// DevTokens enables the unauthenticated token minting endpoint
	DevTokens bool
	// AllowedOrigins lists browser origins allowed by CORS and the WebSocket handshake
	AllowedOrigins []string
}

// RedisConfig holds Redis/Valkey configuration
type RedisConfig struct {
	Enabled bool
	// URI is prioritized if provided, otherwise individual connection parameters are used
	URI       string
	Host      string
	Port      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	// TTL for sessions and their chat logs (0 means no expiration)
	SessionTTL time.Duration
}

// LoadDotEnv loads variables from .env files when present. Variables already
// set in the environment win.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// GetClientConfig loads client configuration from environment variables
func GetClientConfig() ClientConfig {
	return ClientConfig{
		APIURL:          strings.TrimRight(getEnv("LIVEROOM_API_URL", "http://localhost:8080"), "/"),
		Token:           getEnv("LIVEROOM_TOKEN", ""),
		ChatTransport:   getEnv("LIVEROOM_CHAT_TRANSPORT", ChatTransportPoll),
		PollInterval:    getEnvDuration("LIVEROOM_POLL_INTERVAL", 3*time.Second),
		RefreshInterval: getEnvDuration("LIVEROOM_REFRESH_INTERVAL", 3*time.Second),
		ICEServers:      getEnvList("LIVEROOM_ICE_SERVERS", []string{"stun:stun.l.google.com:19302"}),
		CameraFile:      getEnv("LIVEROOM_CAMERA_FILE", ""),
		MicrophoneFile:  getEnv("LIVEROOM_MICROPHONE_FILE", ""),
		DisplayFile:     getEnv("LIVEROOM_DISPLAY_FILE", ""),
		SeedWelcome:     getEnvBool("LIVEROOM_SEED_WELCOME", true),
		RequestTimeout:  getEnvDuration("LIVEROOM_REQUEST_TIMEOUT", 30*time.Second),
	}
}

// GetServerConfig loads development backend configuration from environment variables
func GetServerConfig() ServerConfig {
	ttlHours, _ := strconv.Atoi(getEnv("LIVEROOM_TOKEN_TTL_HOURS", "12"))

	return ServerConfig{
		Port:           getEnv("PORT", "8080"),
		JWTSecret:      getEnv("LIVEROOM_JWT_SECRET", ""),
		TokenTTL:       time.Duration(ttlHours) * time.Hour,
		DevTokens:      getEnvBool("LIVEROOM_DEV_TOKENS", false),
		AllowedOrigins: getEnvList("LIVEROOM_ALLOWED_ORIGINS", nil),
	}
}

// GetRedisConfig loads Redis/Valkey configuration from environment variables
func GetRedisConfig() RedisConfig {
	// Parse TTL from environment variable (in hours)
	ttlHours, _ := strconv.Atoi(getEnv("REDIS_SESSION_TTL_HOURS", "168")) // Default 7 days
	ttl := time.Duration(ttlHours) * time.Hour

	// Parse DB index
	db, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return RedisConfig{
		Enabled:    getEnvBool("REDIS_ENABLED", false),
		URI:        getEnv("REDIS_URI", ""),
		Host:       getEnv("REDIS_HOST", "localhost"),
		Port:       getEnv("REDIS_PORT", "6379"),
		Username:   getEnv("REDIS_USERNAME", ""),
		Password:   getEnv("REDIS_PASSWORD", ""),
		DB:         db,
		KeyPrefix:  getEnv("REDIS_KEY_PREFIX", "liveroom:"),
		SessionTTL: ttl,
	}
}

// IsValid checks that the signing secret is present
func (c ServerConfig) IsValid() bool {
	return c.JWTSecret != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvBool retrieves a boolean environment variable
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// getEnvDuration retrieves a duration such as "3s" or "500ms"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

// getEnvList retrieves a comma-separated list, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
