// Package room runs a live-session room: joining, local media, the peer
// connection, the chat and the session lifecycle.
package room

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/navikt/liveroom/internal/auth"
	"github.com/navikt/liveroom/internal/chat"
	"github.com/navikt/liveroom/internal/client"
	"github.com/navikt/liveroom/internal/media"
	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/peer"
	"github.com/navikt/liveroom/internal/signaling"
	"github.com/navikt/liveroom/internal/utils"
	"github.com/pion/webrtc/v4"
)

// DefaultRefreshInterval is the period of the session-info refresh
const DefaultRefreshInterval = 3 * time.Second

// WelcomeMessage is the local notice added on join when enabled
const WelcomeMessage = "Welcome to the live session! Messages are visible to everyone in the room."

// State is the lifecycle state of a Room
type State int

const (
	StateIdle State = iota
	StateJoining
	StateJoined
	StateClosed
)

// String returns the string representation of a room state
func (s State) String() string {
	return [...]string{"idle", "joining", "joined", "closed"}[s]
}

// SignalDialer opens the signaling channel of a session as peerID
type SignalDialer func(ctx context.Context, sessionID, peerID string) (signaling.Channel, error)

// Options configures a Room
type Options struct {
	Auth     *auth.Context
	API      API
	Devices  media.Devices
	Preview  media.Sink
	Notifier Notifier
	// Confirmer is asked before ending the session from the room
	Confirmer Confirmer

	// ChatTransport defaults to polling the API every PollInterval. If it
	// cannot subscribe, the room falls back to polling.
	ChatTransport chat.Transport
	PollInterval  time.Duration

	// Signal is nil when the room runs without a peer connection
	Signal     SignalDialer
	ICEServers []string

	RefreshInterval time.Duration
	SeedWelcome     bool

	OnChat         func([]models.ChatMessage)
	OnSession      func(*models.Session)
	OnMedia        func(models.LocalMediaState)
	OnParticipants func([]models.Participant)
	OnRemoteTrack  func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	// OnConnectionState follows the state of the peer connection
	OnConnectionState func(webrtc.PeerConnectionState)
	// OnClosed is called once when the room is torn down
	OnClosed func(reason string)
}

// Room is one user's presence in a live session
type Room struct {
	id         string
	opts       Options
	controller *Controller
	media      *media.Manager

	mu           sync.Mutex
	state        State
	session      *models.Session
	participants []models.Participant
	transport    *peer.Transport
	chatLog      *chat.Log
	poller       *chat.Poller

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a room for a session. Nothing happens until Join.
func New(sessionID string, opts Options) *Room {
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{}
	}
	if opts.Devices == nil {
		opts.Devices = media.FileDevices{}
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		id:     sessionID,
		opts:   opts,
		media:  media.NewManager(opts.Devices, opts.Preview),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r.controller = NewController(opts.API, opts.Auth, opts.Confirmer, opts.Notifier)
	r.controller.OnSuccess(func(ctx context.Context, action Action, session *models.Session) {
		if action == ActionEnd {
			r.setSession(session)
			r.close("The session has ended.")
		}
	})

	if opts.OnMedia != nil {
		r.media.OnChange(opts.OnMedia)
	}
	return r
}

// ID returns the session ID
func (r *Room) ID() string {
	return r.id
}

// State returns the room's lifecycle state
func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Join enters the room: registers the user with the backend, then acquires
// media, connects the peer and starts the chat and session refreshers. A
// media or peer failure leaves a usable room without video.
func (r *Room) Join(ctx context.Context) error {
	if r.opts.Auth == nil || r.opts.Auth.Token() == "" {
		r.opts.Notifier.Notify(LevelError, "Please log in to join the session.")
		return ErrNotAuthenticated
	}

	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return fmt.Errorf("room is %s", r.state)
	}
	r.state = StateJoining
	r.mu.Unlock()

	session, err := r.opts.API.JoinSession(ctx, r.id)
	if err != nil {
		r.opts.Notifier.Notify(LevelError, client.UserMessage(err))
		r.close("")
		return fmt.Errorf("failed to join session: %w", err)
	}

	self := r.opts.Auth.Participant()
	self.JoinedAt = time.Now()

	r.mu.Lock()
	r.session = session
	r.participants = []models.Participant{self}
	r.mu.Unlock()
	r.emitSession(session)
	r.emitParticipants()

	log.Printf("Joined session %s as %s", utils.SanitizeLogString(r.id), self.Role)

	r.startMedia(ctx)
	r.startPeer(ctx, self)
	r.startChat(self)

	if chatLog := r.Chat(); chatLog != nil && r.opts.SeedWelcome {
		chatLog.AddNotice(WelcomeMessage)
	}

	r.wg.Add(1)
	go r.refreshLoop()

	r.mu.Lock()
	if r.state == StateJoining {
		r.state = StateJoined
	}
	r.mu.Unlock()
	return nil
}

// Session returns the latest known session info
func (r *Room) Session() *models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Participants returns the people known to be in the room, self first
func (r *Room) Participants() []models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Participant(nil), r.participants...)
}

// Chat returns the room's chat log
func (r *Room) Chat() *chat.Log {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chatLog
}

// Media returns the local media manager
func (r *Room) Media() *media.Manager {
	return r.media
}

// Transport returns the peer transport, or nil when running without video
func (r *Room) Transport() *peer.Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transport
}

// Controller returns the lifecycle controller of the room
func (r *Room) Controller() *Controller {
	return r.controller
}

// SendMessage sends a chat message from the current user
func (r *Room) SendMessage(ctx context.Context, text string) error {
	chatLog := r.Chat()
	if chatLog == nil {
		r.opts.Notifier.Notify(LevelError, "The chat is not available.")
		return fmt.Errorf("room is %s", r.State())
	}

	_, err := chatLog.Send(ctx, text)
	if errors.Is(err, chat.ErrMessageTooLong) {
		r.opts.Notifier.Notify(LevelWarning, fmt.Sprintf("Messages can be at most %d characters.", models.MaxMessageLength))
	}
	return err
}

// ToggleMute mutes or unmutes the microphone and returns the new muted state
func (r *Room) ToggleMute() bool {
	return r.media.ToggleMute()
}

// ToggleVideo turns the camera off or on and returns whether it is now off
func (r *Room) ToggleVideo() bool {
	return r.media.ToggleVideo()
}

// StartScreenShare shares the screen in place of the camera. Tutor only.
func (r *Room) StartScreenShare(ctx context.Context) error {
	if err := r.media.StartScreenShare(ctx, r.opts.Auth.Role()); err != nil {
		if errors.Is(err, ErrForbidden) {
			r.opts.Notifier.Notify(LevelError, "Only the tutor can share the screen.")
		} else {
			r.opts.Notifier.Notify(LevelError, "Could not share the screen.")
		}
		return err
	}
	return nil
}

// StopScreenShare returns to the camera
func (r *Room) StopScreenShare() error {
	if err := r.media.StopScreenShare(); err != nil {
		r.opts.Notifier.Notify(LevelError, "Could not return to the camera.")
		return err
	}
	return nil
}

// End completes the session for everyone and closes the room. Tutor only.
func (r *Room) End(ctx context.Context, recordingURL string) error {
	_, err := r.controller.End(ctx, r.id, recordingURL)
	return err
}

// Leave tells the backend the user left, then closes the room. The room is
// closed even when the call fails.
func (r *Room) Leave(ctx context.Context) error {
	err := r.controller.Leave(ctx, r.id)
	r.close("You left the session.")
	return err
}

// Close tears the room down without telling the backend
func (r *Room) Close() {
	r.close("")
}

// Done is closed once the room has been torn down
func (r *Room) Done() <-chan struct{} {
	return r.done
}

func (r *Room) startMedia(ctx context.Context) {
	if _, err := r.media.AcquireLocalMedia(ctx); err != nil {
		log.Printf("Continuing without local media: %v", err)
		r.opts.Notifier.Notify(LevelWarning, media.Remediation(err))
		return
	}

	// Closed while the devices were opening
	if r.State() == StateClosed {
		r.media.Close()
	}
}

func (r *Room) startPeer(ctx context.Context, self models.Participant) {
	if r.opts.Signal == nil {
		return
	}

	peerID := uuid.NewString()
	ch, err := r.opts.Signal(ctx, r.id, peerID)
	if err != nil {
		log.Printf("Continuing without video call: %v", err)
		r.opts.Notifier.Notify(LevelWarning, "Could not connect the video call. Chat is still available.")
		return
	}

	transport, err := peer.NewTransport(peer.Config{
		PeerID:     peerID,
		Name:       self.Name,
		Role:       self.Role,
		ICEServers: r.opts.ICEServers,
	}, r.media.OutgoingTracks(), ch)
	if err != nil {
		ch.Close()
		log.Printf("Continuing without video call: %v", err)
		r.opts.Notifier.Notify(LevelWarning, "Could not connect the video call. Chat is still available.")
		return
	}

	if r.opts.OnRemoteTrack != nil {
		transport.OnRemoteTrack(r.opts.OnRemoteTrack)
	}
	transport.OnPeerJoined(r.addParticipant)
	transport.OnPeerLeft(r.removeParticipant)
	transport.OnConnectionStateChange(r.connectionStateChanged)
	r.media.SetReplacer(transport)

	if err := transport.Start(r.ctx); err != nil {
		transport.Close()
		r.media.SetReplacer(nil)
		log.Printf("Continuing without video call: %v", err)
		r.opts.Notifier.Notify(LevelWarning, "Could not connect the video call. Chat is still available.")
		return
	}

	r.mu.Lock()
	if r.state == StateClosed {
		r.mu.Unlock()
		transport.Close()
		return
	}
	r.transport = transport
	r.mu.Unlock()
}

func (r *Room) startChat(self models.Participant) {
	logOpts := chat.Options{
		OnChange: r.opts.OnChat,
		OnError: func(err error) {
			r.opts.Notifier.Notify(LevelError, client.UserMessage(err))
		},
	}

	transport := r.opts.ChatTransport
	if transport == nil {
		transport = chat.NewPollingTransport(r.opts.API, r.opts.PollInterval)
	}

	chatLog := chat.NewLog(r.id, transport, self, logOpts)
	poller := chat.NewPoller(chatLog)
	if err := poller.Start(r.ctx); err != nil {
		log.Printf("Falling back to polling for chat: %v", err)
		chatLog.Close()

		chatLog = chat.NewLog(r.id, chat.NewPollingTransport(r.opts.API, r.opts.PollInterval), self, logOpts)
		poller = chat.NewPoller(chatLog)
		if err := poller.Start(r.ctx); err != nil {
			log.Printf("Failed to start chat: %v", err)
		}
	}

	r.mu.Lock()
	if r.state == StateClosed {
		r.mu.Unlock()
		poller.Stop()
		chatLog.Close()
		return
	}
	r.chatLog = chatLog
	r.poller = poller
	r.mu.Unlock()
}

// refreshLoop keeps the session info current and closes the room when the
// session reaches a terminal state
func (r *Room) refreshLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
		}

		session, err := r.opts.API.GetSession(r.ctx, r.id)
		if r.ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("Failed to refresh session %s: %v", utils.SanitizeLogString(r.id), err)
			continue
		}

		r.setSession(session)
		if session.Status.IsTerminal() {
			r.opts.Notifier.Notify(LevelInfo, "The session has ended.")
			go r.close("The session has ended.")
			return
		}
	}
}

func (r *Room) setSession(session *models.Session) {
	if session == nil {
		return
	}
	r.mu.Lock()
	if r.state == StateClosed {
		r.mu.Unlock()
		return
	}
	r.session = session
	r.mu.Unlock()
	r.emitSession(session)
}

func (r *Room) addParticipant(p models.Participant) {
	r.mu.Lock()
	r.participants = append(r.participants, p)
	r.mu.Unlock()

	r.opts.Notifier.Notify(LevelInfo, fmt.Sprintf("%s joined", displayName(p)))
	r.emitParticipants()
}

func (r *Room) removeParticipant(peerID string) {
	r.mu.Lock()
	var left *models.Participant
	kept := r.participants[:0]
	for i := range r.participants {
		p := r.participants[i]
		if p.ID == peerID {
			left = &p
			continue
		}
		kept = append(kept, p)
	}
	r.participants = kept
	r.mu.Unlock()

	if left != nil {
		r.opts.Notifier.Notify(LevelInfo, fmt.Sprintf("%s left", displayName(*left)))
		r.emitParticipants()
	}
}

func (r *Room) connectionStateChanged(state webrtc.PeerConnectionState) {
	if state == webrtc.PeerConnectionStateFailed && r.State() != StateClosed {
		r.opts.Notifier.Notify(LevelWarning, "The video connection was lost. Chat is still available.")
	}
	if r.opts.OnConnectionState != nil {
		r.opts.OnConnectionState(state)
	}
}

func (r *Room) emitSession(session *models.Session) {
	if r.opts.OnSession != nil {
		r.opts.OnSession(session)
	}
}

func (r *Room) emitParticipants() {
	if r.opts.OnParticipants != nil {
		r.opts.OnParticipants(r.Participants())
	}
}

// close tears everything down once
func (r *Room) close(reason string) {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.state = StateClosed
		poller := r.poller
		chatLog := r.chatLog
		transport := r.transport
		r.mu.Unlock()

		r.cancel()
		if poller != nil {
			poller.Stop()
		}
		if chatLog != nil {
			chatLog.Close()
		}
		if transport != nil {
			if err := transport.Close(); err != nil {
				log.Printf("Failed to close peer transport: %v", err)
			}
		}
		r.media.Close()
		r.wg.Wait()
		close(r.done)

		log.Printf("Closed room for session %s", utils.SanitizeLogString(r.id))
		if r.opts.OnClosed != nil {
			r.opts.OnClosed(reason)
		}
	})
}

func displayName(p models.Participant) string {
	if p.Name != "" {
		return p.Name
	}
	return "A participant"
}
