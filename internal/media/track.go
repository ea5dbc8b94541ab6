// Package media captures the local camera, microphone and screen and manages
// which of those tracks are sent to the remote peer.
package media

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// ErrTrackEnded is returned when writing to a stopped track
var ErrTrackEnded = errors.New("track ended")

// opusSilence is a single 20ms Opus frame of silence
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Track is a local media track. It wraps a pion sample track and adds the
// enabled flag and end-of-track notification a capture device provides.
type Track struct {
	local *webrtc.TrackLocalStaticSample
	kind  webrtc.RTPCodecType
	label string

	enabled atomic.Bool
	ended   chan struct{}
	endOnce sync.Once
}

// NewTrack creates an enabled track of the given codec
func NewTrack(mimeType, label, streamID string) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mimeType},
		uuid.NewString(),
		streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s track: %w", mimeType, err)
	}

	t := &Track{
		local: local,
		kind:  local.Kind(),
		label: label,
		ended: make(chan struct{}),
	}
	t.enabled.Store(true)
	return t, nil
}

// ID returns the track ID
func (t *Track) ID() string {
	return t.local.ID()
}

// Kind returns audio or video
func (t *Track) Kind() webrtc.RTPCodecType {
	return t.kind
}

// Label describes the source of the track
func (t *Track) Label() string {
	return t.label
}

// Local returns the pion track to attach to a peer connection
func (t *Track) Local() webrtc.TrackLocal {
	return t.local
}

// Enabled reports whether the track currently carries media
func (t *Track) Enabled() bool {
	return t.enabled.Load()
}

// SetEnabled turns the track on or off. A disabled video track sends
// nothing; a disabled audio track sends silence.
func (t *Track) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

// WriteSample forwards a captured sample, honoring the enabled flag
func (t *Track) WriteSample(s pionmedia.Sample) error {
	if t.IsEnded() {
		return ErrTrackEnded
	}

	if !t.Enabled() {
		if t.kind != webrtc.RTPCodecTypeAudio {
			return nil
		}
		s = pionmedia.Sample{Data: opusSilence, Duration: s.Duration}
		if s.Duration == 0 {
			s.Duration = 20 * time.Millisecond
		}
	}

	return t.local.WriteSample(s)
}

// Stop ends the track. It is safe to call more than once.
func (t *Track) Stop() {
	t.endOnce.Do(func() {
		close(t.ended)
	})
}

// Ended is closed once the track has stopped, either because it was stopped
// locally or because its source went away
func (t *Track) Ended() <-chan struct{} {
	return t.ended
}

// IsEnded reports whether the track has stopped
func (t *Track) IsEnded() bool {
	select {
	case <-t.ended:
		return true
	default:
		return false
	}
}

// Stream groups the tracks captured together
type Stream struct {
	ID     string
	tracks []*Track
}

// NewStream creates a stream holding tracks
func NewStream(id string, tracks ...*Track) *Stream {
	return &Stream{ID: id, tracks: tracks}
}

// Tracks returns all tracks of the stream
func (s *Stream) Tracks() []*Track {
	if s == nil {
		return nil
	}
	return append([]*Track(nil), s.tracks...)
}

// AudioTracks returns the audio tracks of the stream
func (s *Stream) AudioTracks() []*Track {
	return s.byKind(webrtc.RTPCodecTypeAudio)
}

// VideoTracks returns the video tracks of the stream
func (s *Stream) VideoTracks() []*Track {
	return s.byKind(webrtc.RTPCodecTypeVideo)
}

// Stop stops every track of the stream
func (s *Stream) Stop() {
	if s == nil {
		return
	}
	for _, t := range s.tracks {
		t.Stop()
	}
}

func (s *Stream) byKind(kind webrtc.RTPCodecType) []*Track {
	if s == nil {
		return nil
	}
	var out []*Track
	for _, t := range s.tracks {
		if t.kind == kind {
			out = append(out, t)
		}
	}
	return out
}
