// Command liveroomd runs the liveroom development backend: the live-session
// REST API, per-session event streams and the WebRTC signaling relay.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/navikt/liveroom/internal/api"
	"github.com/navikt/liveroom/internal/auth"
	"github.com/navikt/liveroom/internal/config"
	"github.com/navikt/liveroom/internal/repository"
	"github.com/navikt/liveroom/internal/service"
	"github.com/navikt/liveroom/internal/signaling"
)

func main() {
	config.LoadDotEnv()

	serverConfig := config.GetServerConfig()
	if !serverConfig.IsValid() {
		log.Fatal("LIVEROOM_JWT_SECRET must be set")
	}
	if serverConfig.DevTokens {
		log.Println("Warning: development token endpoint is enabled")
	}

	// Initialize the repository using the factory
	repo, err := repository.NewRepository(config.GetRedisConfig())
	if err != nil {
		log.Fatalf("Failed to initialize repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Printf("Error closing repository: %v", err)
		}
	}()

	// Initialize the service layer
	sessionService := service.NewSessionService(repo)
	events := api.NewEventHub()
	relay := signaling.NewRelay()

	var ready atomic.Bool
	ready.Store(true)

	handler := api.SetupRoutes(api.RouteConfig{
		Sessions:       sessionService,
		Signer:         auth.NewSigner(serverConfig.JWTSecret, serverConfig.TokenTTL),
		Events:         events,
		Relay:          relay,
		DevTokens:      serverConfig.DevTokens,
		AllowedOrigins: serverConfig.AllowedOrigins,
		Ready:          ready.Load,
	})

	// Write timeout stays disabled for event streams and WebSockets
	server := &http.Server{
		Addr:              ":" + serverConfig.Port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)

	go func() {
		log.Printf("Starting liveroom backend on port %s", serverConfig.Port)
		serverErrors <- server.ListenAndServe()
	}()

	// Channel to listen for an interrupt or terminate signal from the OS
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Fatalf("Error starting server: %v", err)

	case <-shutdown:
		log.Println("Shutting down server...")
		ready.Store(false)

		// Close event streams first, they never finish on their own
		events.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			server.Close()
			log.Printf("Error shutting down server: %v", err)
		}

		log.Println("Server gracefully stopped")
	}
}
