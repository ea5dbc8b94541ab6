// Package signaling exchanges session descriptions and ICE candidates
// between the peers of a room through a relay.
package signaling

import (
	"context"
	"errors"

	"github.com/navikt/liveroom/internal/models"
	"github.com/pion/webrtc/v4"
)

// ErrClosed is returned by a channel that has been closed
var ErrClosed = errors.New("signaling channel closed")

// MessageType is the kind of a signaling message
type MessageType string

const (
	// TypeJoin announces a peer. Sent to everyone on connect, and sent back
	// directly to a newcomer that should make the offer.
	TypeJoin MessageType = "join"
	// TypeOffer carries an SDP offer
	TypeOffer MessageType = "offer"
	// TypeAnswer carries an SDP answer
	TypeAnswer MessageType = "answer"
	// TypeCandidate carries a trickled ICE candidate
	TypeCandidate MessageType = "candidate"
	// TypeBye announces that a peer left
	TypeBye MessageType = "bye"
)

// Message is the envelope relayed between peers. From is set by the relay;
// an empty To addresses every other peer of the session.
type Message struct {
	Type      MessageType                `json:"type"`
	From      string                     `json:"from,omitempty"`
	To        string                     `json:"to,omitempty"`
	Name      string                     `json:"name,omitempty"`
	Role      models.Role                `json:"role,omitempty"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// Channel is one peer's connection to the relay
type Channel interface {
	// Send delivers a message to the relay
	Send(ctx context.Context, msg Message) error
	// Receive blocks until the next message arrives
	Receive(ctx context.Context) (Message, error)
	// Close disconnects from the relay
	Close() error
}
