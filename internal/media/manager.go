package media

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/navikt/liveroom/internal/errs"
	"github.com/navikt/liveroom/internal/models"
)

// TrackReplacer swaps the outgoing video track without renegotiation
type TrackReplacer interface {
	ReplaceVideoTrack(track *Track) error
}

// Manager owns the local streams of a room: the camera and microphone
// capture, the optional screen capture and the camera stream set aside while
// the screen is shared.
type Manager struct {
	devices Devices
	preview Sink

	mu       sync.Mutex
	local    *Stream
	screen   *Stream
	saved    *Stream
	replacer TrackReplacer
	muted    bool
	videoOff bool
	onChange func(models.LocalMediaState)
}

// NewManager creates a manager capturing from devices and previewing into
// preview. A nil preview discards the preview.
func NewManager(devices Devices, preview Sink) *Manager {
	if preview == nil {
		preview = NopSink{}
	}
	return &Manager{
		devices: devices,
		preview: preview,
	}
}

// OnChange registers a function called whenever the local media state changes
func (m *Manager) OnChange(fn func(models.LocalMediaState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// SetReplacer sets the transport that receives outgoing video track changes
func (m *Manager) SetReplacer(r TrackReplacer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replacer = r
}

// AcquireLocalMedia requests the camera and microphone. On success the
// stream is attached to the preview with its audio muted and becomes the
// source of the outgoing tracks. The returned error wraps ErrPermissionDenied
// or ErrNoDevice when the capture layer reports one; Remediation maps it to a
// user message.
func (m *Manager) AcquireLocalMedia(ctx context.Context) (*Stream, error) {
	stream, err := m.devices.GetUserMedia(ctx, UserMediaConstraints)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire local media: %w", err)
	}

	m.mu.Lock()
	if m.local != nil {
		m.local.Stop()
	}
	m.local = stream
	m.applyLocked()
	m.mu.Unlock()

	// The local preview never plays our own microphone
	m.preview.Attach(stream, true)

	log.Printf("Acquired local media: %d audio, %d video tracks", len(stream.AudioTracks()), len(stream.VideoTracks()))
	return stream, nil
}

// LocalStream returns the camera and microphone stream, or nil
func (m *Manager) LocalStream() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.local
}

// OutgoingTracks returns the tracks to attach to a new peer connection
func (m *Manager) OutgoingTracks() []*Track {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.screen == nil {
		return m.local.Tracks()
	}

	// While sharing, the screen takes the place of the camera
	tracks := m.local.AudioTracks()
	return append(tracks, m.screen.VideoTracks()...)
}

// ToggleMute flips the enabled flag of the local audio tracks and returns
// whether the microphone is now muted
func (m *Manager) ToggleMute() bool {
	m.mu.Lock()
	m.muted = !m.muted
	m.applyLocked()
	state := m.stateLocked()
	fn := m.onChange
	m.mu.Unlock()

	if fn != nil {
		fn(state)
	}
	return state.Muted
}

// ToggleVideo flips the enabled flag of the local camera tracks and returns
// whether the camera is now off
func (m *Manager) ToggleVideo() bool {
	m.mu.Lock()
	m.videoOff = !m.videoOff
	m.applyLocked()
	state := m.stateLocked()
	fn := m.onChange
	m.mu.Unlock()

	if fn != nil {
		fn(state)
	}
	return state.VideoOff
}

// State returns a snapshot of the local media state
func (m *Manager) State() models.LocalMediaState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// StartScreenShare replaces the outgoing camera track with a screen capture.
// Only tutors may share. When the screen track ends on its own the camera is
// restored automatically.
func (m *Manager) StartScreenShare(ctx context.Context, role models.Role) error {
	if role != models.RoleTutor {
		return fmt.Errorf("only the tutor can share the screen: %w", errs.ErrForbidden)
	}

	m.mu.Lock()
	sharing := m.screen != nil
	m.mu.Unlock()
	if sharing {
		return nil
	}

	screen, err := m.devices.GetDisplayMedia(ctx, DisplayMediaConstraints)
	if err != nil {
		return fmt.Errorf("failed to capture screen: %w", err)
	}
	videos := screen.VideoTracks()
	if len(videos) == 0 {
		screen.Stop()
		return fmt.Errorf("failed to capture screen: %w", ErrNoDevice)
	}

	m.mu.Lock()
	if m.screen != nil {
		// Lost a race with another share
		m.mu.Unlock()
		screen.Stop()
		return nil
	}
	replacer := m.replacer
	if replacer != nil {
		if err := replacer.ReplaceVideoTrack(videos[0]); err != nil {
			m.mu.Unlock()
			screen.Stop()
			return fmt.Errorf("failed to switch to screen: %w", err)
		}
	}
	m.saved = m.local
	m.screen = screen
	state := m.stateLocked()
	fn := m.onChange
	m.mu.Unlock()

	go m.watchScreen(screen, videos[0])

	log.Printf("Started screen share")
	if fn != nil {
		fn(state)
	}
	return nil
}

// StopScreenShare stops the screen capture and sends the saved camera track
// again. It does nothing when no share is active.
func (m *Manager) StopScreenShare() error {
	return m.stopScreen(nil)
}

// CurrentVideoTrack returns the outgoing video track, or nil
func (m *Manager) CurrentVideoTrack() *Track {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.screen != nil {
		return first(m.screen.VideoTracks())
	}
	return first(m.local.VideoTracks())
}

// Close stops all captured tracks
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.screen.Stop()
	m.saved.Stop()
	m.local.Stop()
	m.screen = nil
	m.saved = nil
	m.local = nil
}

// watchScreen restores the camera when the shared screen goes away
func (m *Manager) watchScreen(screen *Stream, track *Track) {
	<-track.Ended()
	if err := m.stopScreen(screen); err != nil {
		log.Printf("Failed to restore camera after screen share ended: %v", err)
	}
}

// stopScreen ends the given share, or the current one when only is nil
func (m *Manager) stopScreen(only *Stream) error {
	m.mu.Lock()
	if m.screen == nil || (only != nil && m.screen != only) {
		m.mu.Unlock()
		return nil
	}

	screen := m.screen
	camera := first(m.saved.VideoTracks())
	m.local = m.saved
	m.saved = nil
	m.screen = nil
	replacer := m.replacer
	m.applyLocked()
	state := m.stateLocked()
	fn := m.onChange
	m.mu.Unlock()

	screen.Stop()

	var err error
	if replacer != nil {
		if err = replacer.ReplaceVideoTrack(camera); err != nil {
			err = fmt.Errorf("failed to switch back to camera: %w", err)
		}
	}

	log.Printf("Stopped screen share")
	if fn != nil {
		fn(state)
	}
	return err
}

func (m *Manager) applyLocked() {
	for _, t := range m.local.AudioTracks() {
		t.SetEnabled(!m.muted)
	}
	for _, t := range m.local.VideoTracks() {
		t.SetEnabled(!m.videoOff)
	}
}

func (m *Manager) stateLocked() models.LocalMediaState {
	return models.LocalMediaState{
		Muted:         m.muted,
		VideoOff:      m.videoOff,
		ScreenSharing: m.screen != nil,
	}
}

func first(tracks []*Track) *Track {
	if len(tracks) == 0 {
		return nil
	}
	return tracks[0]
}
