// Package peer runs the peer connection of a room: one local set of tracks,
// one remote participant, negotiated over a signaling channel.
package peer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/navikt/liveroom/internal/media"
	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/signaling"
	"github.com/navikt/liveroom/internal/utils"
	"github.com/pion/webrtc/v4"
)

// sendTimeout bounds a single signaling write
const sendTimeout = 5 * time.Second

// ErrNoVideoSender is returned when the connection has no video sender
var ErrNoVideoSender = errors.New("no video sender")

// Config configures a Transport
type Config struct {
	// PeerID identifies this side on the signaling relay
	PeerID string
	// Name and Role are announced to the other peer
	Name string
	Role models.Role
	// ICEServers are STUN/TURN URLs
	ICEServers []string
}

// Transport is the peer connection of a room. The side with the greater peer
// ID makes the offer; the other side answers. Only the first remote stream is
// accepted.
type Transport struct {
	cfg     Config
	channel signaling.Channel

	mu             sync.Mutex
	pc             *webrtc.PeerConnection
	videoSender    *webrtc.RTPSender
	audio          []*media.Track
	video          *media.Track
	remoteID       string
	remoteStreamID string
	remoteSet      bool
	pending        []webrtc.ICECandidateInit
	onRemoteTrack  func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	onPeerJoined   func(models.Participant)
	onPeerLeft     func(peerID string)
	onState        func(webrtc.PeerConnectionState)
	closed         bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTransport creates the peer connection with tracks attached. Nothing is
// sent until Start.
func NewTransport(cfg Config, tracks []*media.Track, channel signaling.Channel) (*Transport, error) {
	t := &Transport{
		cfg:     cfg,
		channel: channel,
		done:    make(chan struct{}),
	}
	for _, track := range tracks {
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			if t.video == nil {
				t.video = track
			}
			continue
		}
		t.audio = append(t.audio, track)
	}

	if err := t.resetLocked(); err != nil {
		return nil, err
	}
	return t, nil
}

// OnRemoteTrack registers the handler for the remote participant's tracks.
// The handler owns reading from the track.
func (t *Transport) OnRemoteTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRemoteTrack = fn
}

// OnPeerJoined registers a function called when a remote peer is accepted.
// The participant ID is the remote peer ID.
func (t *Transport) OnPeerJoined(fn func(models.Participant)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPeerJoined = fn
}

// OnPeerLeft registers a function called when the remote peer says bye
func (t *Transport) OnPeerLeft(fn func(peerID string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPeerLeft = fn
}

// OnConnectionStateChange registers a function called on connection state changes
func (t *Transport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onState = fn
}

// Start announces this peer on the signaling channel and handles signaling
// messages until Close
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.ctx != nil {
		t.mu.Unlock()
		return nil
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()

	if err := t.send(signaling.Message{Type: signaling.TypeJoin, Name: t.cfg.Name, Role: t.cfg.Role}); err != nil {
		t.cancel()
		close(t.done)
		return fmt.Errorf("failed to announce peer: %w", err)
	}

	go t.run()
	return nil
}

// ReplaceVideoTrack swaps the outgoing video track without renegotiation.
// A nil track stops sending video.
func (t *Transport) ReplaceVideoTrack(track *media.Track) error {
	t.mu.Lock()
	sender := t.videoSender
	t.video = track
	t.mu.Unlock()

	if sender == nil {
		return ErrNoVideoSender
	}

	var local webrtc.TrackLocal
	if track != nil {
		local = track.Local()
	}
	if err := sender.ReplaceTrack(local); err != nil {
		return fmt.Errorf("failed to replace video track: %w", err)
	}
	return nil
}

// VideoSender returns the sender carrying the outgoing video
func (t *Transport) VideoSender() *webrtc.RTPSender {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.videoSender
}

// RemotePeer returns the ID of the connected remote peer, or ""
func (t *Transport) RemotePeer() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remoteID
}

// Negotiated reports whether both descriptions are in place
func (t *Transport) Negotiated() bool {
	t.mu.Lock()
	pc := t.pc
	t.mu.Unlock()

	return pc.SignalingState() == webrtc.SignalingStateStable &&
		pc.LocalDescription() != nil && pc.RemoteDescription() != nil
}

// ConnectionState returns the state of the underlying peer connection
func (t *Transport) ConnectionState() webrtc.PeerConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pc.ConnectionState()
}

// Close says bye, then closes the signaling channel and the peer connection
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	started := t.ctx != nil
	pc := t.pc
	t.mu.Unlock()

	if started {
		if err := t.send(signaling.Message{Type: signaling.TypeBye}); err != nil {
			log.Printf("Failed to say bye: %v", err)
		}
		t.cancel()
	}

	chErr := t.channel.Close()
	pcErr := pc.Close()

	if started {
		<-t.done
	}
	return errors.Join(chErr, pcErr)
}

func (t *Transport) run() {
	defer close(t.done)

	for {
		msg, err := t.channel.Receive(t.ctx)
		if err != nil {
			if t.ctx.Err() == nil && !errors.Is(err, signaling.ErrClosed) {
				log.Printf("Signaling channel failed: %v", err)
			}
			return
		}

		if err := t.handle(msg); err != nil {
			log.Printf("Failed to handle %s from %s: %v", msg.Type, utils.SanitizeLogString(msg.From), err)
		}
	}
}

func (t *Transport) handle(msg signaling.Message) error {
	switch msg.Type {
	case signaling.TypeJoin:
		return t.handleJoin(msg)
	case signaling.TypeOffer:
		return t.handleOffer(msg)
	case signaling.TypeAnswer:
		return t.handleAnswer(msg)
	case signaling.TypeCandidate:
		return t.handleCandidate(msg)
	case signaling.TypeBye:
		return t.handleBye(msg)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

// accept makes the sender the remote peer unless another peer already is.
// It reports whether the sender is the remote peer.
func (t *Transport) accept(msg signaling.Message) bool {
	from := msg.From
	t.mu.Lock()
	switch t.remoteID {
	case from:
		t.mu.Unlock()
		return true
	case "":
		t.remoteID = from
		fn := t.onPeerJoined
		t.mu.Unlock()
		if fn != nil {
			fn(models.Participant{ID: from, Name: msg.Name, Role: msg.Role, JoinedAt: time.Now()})
		}
		return true
	default:
		t.mu.Unlock()
		log.Printf("Ignoring peer %s, already connected to %s", utils.SanitizeLogString(from), utils.SanitizeLogString(t.RemotePeer()))
		return false
	}
}

func (t *Transport) handleJoin(msg signaling.Message) error {
	t.mu.Lock()
	negotiating := t.remoteID == msg.From && t.pc.LocalDescription() != nil
	t.mu.Unlock()
	if negotiating || !t.accept(msg) {
		return nil
	}

	if t.cfg.PeerID > msg.From {
		return t.offer(msg.From)
	}
	if msg.To == "" {
		// Let the newcomer know we are here so it makes the offer
		return t.send(signaling.Message{Type: signaling.TypeJoin, To: msg.From, Name: t.cfg.Name, Role: t.cfg.Role})
	}
	return nil
}

func (t *Transport) offer(to string) error {
	pc := t.peerConnection()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}
	return t.send(signaling.Message{Type: signaling.TypeOffer, To: to, Name: t.cfg.Name, Role: t.cfg.Role, SDP: &offer})
}

func (t *Transport) handleOffer(msg signaling.Message) error {
	if msg.SDP == nil {
		return errors.New("offer without session description")
	}
	if !t.accept(msg) {
		return nil
	}

	pc := t.peerConnection()
	if err := pc.SetRemoteDescription(*msg.SDP); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	t.flushCandidates(pc)

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}
	return t.send(signaling.Message{Type: signaling.TypeAnswer, To: msg.From, Name: t.cfg.Name, Role: t.cfg.Role, SDP: &answer})
}

func (t *Transport) handleAnswer(msg signaling.Message) error {
	if msg.SDP == nil {
		return errors.New("answer without session description")
	}
	if t.RemotePeer() != msg.From {
		return nil
	}

	pc := t.peerConnection()
	if err := pc.SetRemoteDescription(*msg.SDP); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	t.flushCandidates(pc)
	return nil
}

func (t *Transport) handleCandidate(msg signaling.Message) error {
	if msg.Candidate == nil {
		return nil
	}

	t.mu.Lock()
	if t.remoteID != msg.From {
		t.mu.Unlock()
		return nil
	}
	if !t.remoteSet {
		// Candidates can overtake the description they belong to
		t.pending = append(t.pending, *msg.Candidate)
		t.mu.Unlock()
		return nil
	}
	pc := t.pc
	t.mu.Unlock()

	if err := pc.AddICECandidate(*msg.Candidate); err != nil {
		return fmt.Errorf("failed to add ICE candidate: %w", err)
	}
	return nil
}

func (t *Transport) handleBye(msg signaling.Message) error {
	t.mu.Lock()
	if t.remoteID != msg.From {
		t.mu.Unlock()
		return nil
	}
	old := t.pc
	fn := t.onPeerLeft
	err := t.resetLocked()
	t.mu.Unlock()

	// The old connection cannot be reused for the next peer
	if cerr := old.Close(); cerr != nil {
		log.Printf("Failed to close peer connection: %v", cerr)
	}
	log.Printf("Peer %s left", utils.SanitizeLogString(msg.From))

	if fn != nil {
		fn(msg.From)
	}
	return err
}

func (t *Transport) flushCandidates(pc *webrtc.PeerConnection) {
	t.mu.Lock()
	pending := t.pending
	t.pending = nil
	t.remoteSet = true
	t.mu.Unlock()

	for _, c := range pending {
		if err := pc.AddICECandidate(c); err != nil {
			log.Printf("Failed to add buffered ICE candidate: %v", err)
		}
	}
}

func (t *Transport) peerConnection() *webrtc.PeerConnection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pc
}

func (t *Transport) send(msg signaling.Message) error {
	ctx := t.ctx
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	return t.channel.Send(ctx, msg)
}

// resetLocked builds a fresh peer connection carrying the current tracks
// and forgets the remote peer
func (t *Transport) resetLocked() error {
	config := webrtc.Configuration{}
	if len(t.cfg.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: t.cfg.ICEServers}}
	}

	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	fail := func(err error) error {
		pc.Close()
		return err
	}

	// Audio
	if len(t.audio) == 0 {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fail(fmt.Errorf("failed to add audio transceiver: %w", err))
		}
	}
	for _, track := range t.audio {
		sender, err := pc.AddTrack(track.Local())
		if err != nil {
			return fail(fmt.Errorf("failed to add audio track: %w", err))
		}
		go drainRTCP(sender)
	}

	// Video always gets a sender so a screen can be swapped in later
	var videoSender *webrtc.RTPSender
	if t.video != nil {
		videoSender, err = pc.AddTrack(t.video.Local())
		if err != nil {
			return fail(fmt.Errorf("failed to add video track: %w", err))
		}
	} else {
		transceiver, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendrecv,
		})
		if err != nil {
			return fail(fmt.Errorf("failed to add video transceiver: %w", err))
		}
		videoSender = transceiver.Sender()
		if err := videoSender.ReplaceTrack(nil); err != nil {
			return fail(fmt.Errorf("failed to clear video sender: %w", err))
		}
	}
	go drainRTCP(videoSender)

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		to := t.RemotePeer()
		if to == "" {
			return
		}
		init := c.ToJSON()
		if err := t.send(signaling.Message{Type: signaling.TypeCandidate, To: to, Candidate: &init}); err != nil {
			log.Printf("Failed to send ICE candidate: %v", err)
		}
	})

	pc.OnTrack(t.handleTrack)

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("Peer connection state changed to %s", state)
		t.mu.Lock()
		fn := t.onState
		t.mu.Unlock()
		if fn != nil {
			fn(state)
		}
	})

	t.pc = pc
	t.videoSender = videoSender
	t.remoteID = ""
	t.remoteStreamID = ""
	t.remoteSet = false
	t.pending = nil
	return nil
}

func (t *Transport) handleTrack(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	t.mu.Lock()
	if t.remoteStreamID == "" {
		t.remoteStreamID = remote.StreamID()
	}
	accepted := t.remoteStreamID == remote.StreamID()
	fn := t.onRemoteTrack
	t.mu.Unlock()

	if !accepted || fn == nil {
		if !accepted {
			log.Printf("Ignoring additional remote stream %s", utils.SanitizeLogString(remote.StreamID()))
		}
		go drainRemote(remote)
		return
	}

	log.Printf("Receiving remote %s track", remote.Kind())
	fn(remote, receiver)
}

// drainRTCP reads incoming RTCP so interceptors keep working
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func drainRemote(remote *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := remote.Read(buf); err != nil {
			return
		}
	}
}
