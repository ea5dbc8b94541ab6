package media

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

var (
	// ErrPermissionDenied is returned when access to a capture device is refused
	ErrPermissionDenied = errors.New("permission to capture media denied")
	// ErrNoDevice is returned when no matching capture device exists
	ErrNoDevice = errors.New("no capture device found")
)

// VideoConstraints are the ideal properties of a captured video track
type VideoConstraints struct {
	Width     int
	Height    int
	FrameRate int
}

// AudioConstraints are the requested properties of a captured audio track
type AudioConstraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	SampleRate       int
	ChannelCount     int
}

// Constraints select which tracks a capture request returns. A nil field
// means that kind is not requested.
type Constraints struct {
	Video *VideoConstraints
	Audio *AudioConstraints
}

// UserMediaConstraints is the camera and microphone request made on join
var UserMediaConstraints = Constraints{
	Video: &VideoConstraints{Width: 1280, Height: 720, FrameRate: 30},
	Audio: &AudioConstraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
		SampleRate:       44100,
		ChannelCount:     2,
	},
}

// DisplayMediaConstraints is the screen capture request made when sharing
var DisplayMediaConstraints = Constraints{
	Video: &VideoConstraints{Width: 1920, Height: 1080, FrameRate: 60},
}

// Devices is the capture layer the manager requests streams from
type Devices interface {
	// GetUserMedia captures camera and/or microphone
	GetUserMedia(ctx context.Context, c Constraints) (*Stream, error)
	// GetDisplayMedia captures the screen
	GetDisplayMedia(ctx context.Context, c Constraints) (*Stream, error)
}

// Sink renders a local stream, e.g. a preview window
type Sink interface {
	Attach(stream *Stream, muted bool)
}

// NopSink discards everything attached to it
type NopSink struct{}

// Attach implements Sink
func (NopSink) Attach(*Stream, bool) {}

// Remediation returns the message shown to the user for a capture failure
func Remediation(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Please allow camera and microphone permissions to join with video."
	case errors.Is(err, ErrNoDevice):
		return "No camera or microphone found. You can still follow the session and chat."
	default:
		return "Could not access camera or microphone."
	}
}

// StaticDevices produces silent synthetic tracks. Every request returns fresh
// tracks, which is what a real capture layer does too.
type StaticDevices struct {
	// UserErr and DisplayErr, when set, are returned instead of a stream
	UserErr    error
	DisplayErr error

	mu              sync.Mutex
	userRequests    []Constraints
	displayRequests []Constraints
}

// GetUserMedia implements Devices
func (d *StaticDevices) GetUserMedia(ctx context.Context, c Constraints) (*Stream, error) {
	d.mu.Lock()
	d.userRequests = append(d.userRequests, c)
	err := d.UserErr
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if c.Video == nil && c.Audio == nil {
		return nil, ErrNoDevice
	}

	streamID := uuid.NewString()
	var tracks []*Track
	if c.Video != nil {
		t, err := NewTrack(webrtc.MimeTypeVP8, "camera", streamID)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	if c.Audio != nil {
		t, err := NewTrack(webrtc.MimeTypeOpus, "microphone", streamID)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return NewStream(streamID, tracks...), nil
}

// GetDisplayMedia implements Devices
func (d *StaticDevices) GetDisplayMedia(ctx context.Context, c Constraints) (*Stream, error) {
	d.mu.Lock()
	d.displayRequests = append(d.displayRequests, c)
	err := d.DisplayErr
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}

	streamID := uuid.NewString()
	t, err := NewTrack(webrtc.MimeTypeVP8, "screen", streamID)
	if err != nil {
		return nil, err
	}
	return NewStream(streamID, t), nil
}

// UserRequests returns the constraints of every user media request
func (d *StaticDevices) UserRequests() []Constraints {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Constraints(nil), d.userRequests...)
}

// DisplayRequests returns the constraints of every display media request
func (d *StaticDevices) DisplayRequests() []Constraints {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Constraints(nil), d.displayRequests...)
}
