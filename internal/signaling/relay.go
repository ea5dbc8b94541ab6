package signaling

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/navikt/liveroom/internal/utils"
)

// relaySendTimeout bounds a single forward to a slow peer
const relaySendTimeout = 5 * time.Second

// ErrDuplicatePeer is returned when a peer ID is already connected to a session
var ErrDuplicatePeer = errors.New("peer already connected")

// Relay forwards signaling messages between the peers of each session.
// It stamps From on every message and announces a bye when a peer drops.
type Relay struct {
	mu       sync.RWMutex
	sessions map[string]map[string]Channel
}

// NewRelay creates an empty relay
func NewRelay() *Relay {
	return &Relay{
		sessions: make(map[string]map[string]Channel),
	}
}

// Serve registers ch as peerID in sessionID and forwards its messages until
// the channel fails or ctx is done
func (r *Relay) Serve(ctx context.Context, sessionID, peerID string, ch Channel) error {
	if err := r.add(sessionID, peerID, ch); err != nil {
		return err
	}
	log.Printf("Signaling peer %s joined session %s", utils.SanitizeLogString(peerID), utils.SanitizeLogString(sessionID))

	defer func() {
		r.remove(sessionID, peerID)
		r.forward(sessionID, Message{Type: TypeBye, From: peerID})
		log.Printf("Signaling peer %s left session %s", utils.SanitizeLogString(peerID), utils.SanitizeLogString(sessionID))
	}()

	for {
		msg, err := ch.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		switch msg.Type {
		case TypeJoin, TypeOffer, TypeAnswer, TypeCandidate:
		case TypeBye:
			// A bye from the peer itself ends its membership
			return nil
		default:
			log.Printf("Ignoring signaling message of unknown type %q", utils.SanitizeLogString(string(msg.Type)))
			continue
		}

		msg.From = peerID
		r.forward(sessionID, msg)
	}
}

// Peers returns the IDs of the peers connected to a session
func (r *Relay) Peers(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]string, 0, len(r.sessions[sessionID]))
	for id := range r.sessions[sessionID] {
		peers = append(peers, id)
	}
	sort.Strings(peers)
	return peers
}

// CloseSession disconnects every peer of a session
func (r *Relay) CloseSession(sessionID string) {
	r.mu.Lock()
	peers := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	for _, ch := range peers {
		ch.Close()
	}
}

func (r *Relay) add(sessionID, peerID string, ch Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	peers, ok := r.sessions[sessionID]
	if !ok {
		peers = make(map[string]Channel)
		r.sessions[sessionID] = peers
	}
	if _, exists := peers[peerID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePeer, peerID)
	}
	peers[peerID] = ch
	return nil
}

func (r *Relay) remove(sessionID, peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	peers := r.sessions[sessionID]
	delete(peers, peerID)
	if len(peers) == 0 {
		delete(r.sessions, sessionID)
	}
}

// forward delivers msg to its addressee, or to every peer but the sender
func (r *Relay) forward(sessionID string, msg Message) {
	r.mu.RLock()
	var targets []Channel
	for id, ch := range r.sessions[sessionID] {
		if id == msg.From {
			continue
		}
		if msg.To != "" && id != msg.To {
			continue
		}
		targets = append(targets, ch)
	}
	r.mu.RUnlock()

	for _, ch := range targets {
		ctx, cancel := context.WithTimeout(context.Background(), relaySendTimeout)
		if err := ch.Send(ctx, msg); err != nil {
			log.Printf("Failed to relay %s from %s: %v", msg.Type, utils.SanitizeLogString(msg.From), err)
		}
		cancel()
	}
}
