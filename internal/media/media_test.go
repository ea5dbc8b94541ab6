package media_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/navikt/liveroom/internal/errs"
	"github.com/navikt/liveroom/internal/media"
	"github.com/navikt/liveroom/internal/models"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingReplacer remembers every outgoing video track it was given
type recordingReplacer struct {
	mu     sync.Mutex
	tracks []*media.Track
	err    error
}

func (r *recordingReplacer) ReplaceVideoTrack(t *media.Track) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.tracks = append(r.tracks, t)
	return nil
}

func (r *recordingReplacer) last() *media.Track {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tracks) == 0 {
		return nil
	}
	return r.tracks[len(r.tracks)-1]
}

type recordingSink struct {
	stream *media.Stream
	muted  bool
}

func (s *recordingSink) Attach(stream *media.Stream, muted bool) {
	s.stream = stream
	s.muted = muted
}

func newManager(t *testing.T) (*media.Manager, *media.StaticDevices, *recordingReplacer) {
	t.Helper()

	devices := &media.StaticDevices{}
	m := media.NewManager(devices, nil)
	replacer := &recordingReplacer{}
	m.SetReplacer(replacer)

	_, err := m.AcquireLocalMedia(context.Background())
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m, devices, replacer
}

func TestAcquireLocalMedia(t *testing.T) {
	devices := &media.StaticDevices{}
	sink := &recordingSink{}
	m := media.NewManager(devices, sink)
	defer m.Close()

	stream, err := m.AcquireLocalMedia(context.Background())
	require.NoError(t, err)

	assert.Len(t, stream.AudioTracks(), 1)
	assert.Len(t, stream.VideoTracks(), 1)
	assert.Len(t, m.OutgoingTracks(), 2)

	// Preview is attached with our own audio muted
	assert.Same(t, stream, sink.stream)
	assert.True(t, sink.muted)

	// Camera and microphone were requested with the room's constraints
	reqs := devices.UserRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 1280, reqs[0].Video.Width)
	assert.Equal(t, 720, reqs[0].Video.Height)
	assert.Equal(t, 30, reqs[0].Video.FrameRate)
	assert.True(t, reqs[0].Audio.EchoCancellation)
	assert.True(t, reqs[0].Audio.NoiseSuppression)
	assert.True(t, reqs[0].Audio.AutoGainControl)
	assert.Equal(t, 44100, reqs[0].Audio.SampleRate)
	assert.Equal(t, 2, reqs[0].Audio.ChannelCount)
}

func TestAcquireLocalMediaFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"permission denied", media.ErrPermissionDenied, "allow camera and microphone permissions"},
		{"no device", media.ErrNoDevice, "No camera or microphone found"},
		{"other", errors.New("boom"), "Could not access camera or microphone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := media.NewManager(&media.StaticDevices{UserErr: tt.err}, nil)

			_, err := m.AcquireLocalMedia(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.err))
			assert.Contains(t, media.Remediation(err), tt.message)
			assert.Nil(t, m.LocalStream())
			assert.Empty(t, m.OutgoingTracks())
		})
	}
}

func TestToggleMute(t *testing.T) {
	m, _, _ := newManager(t)
	audio := m.LocalStream().AudioTracks()[0]
	require.True(t, audio.Enabled())

	assert.True(t, m.ToggleMute())
	assert.False(t, audio.Enabled())
	assert.True(t, m.State().Muted)

	// Toggling twice restores the original state
	assert.False(t, m.ToggleMute())
	assert.True(t, audio.Enabled())
	assert.False(t, m.State().Muted)

	// Video is untouched
	assert.True(t, m.LocalStream().VideoTracks()[0].Enabled())
}

func TestToggleVideo(t *testing.T) {
	m, _, _ := newManager(t)
	video := m.LocalStream().VideoTracks()[0]

	var states []models.LocalMediaState
	m.OnChange(func(s models.LocalMediaState) { states = append(states, s) })

	assert.True(t, m.ToggleVideo())
	assert.False(t, video.Enabled())
	assert.False(t, m.ToggleVideo())
	assert.True(t, video.Enabled())

	require.Len(t, states, 2)
	assert.True(t, states[0].VideoOff)
	assert.False(t, states[1].VideoOff)
}

func TestScreenShare(t *testing.T) {
	t.Run("students may not share", func(t *testing.T) {
		m, devices, replacer := newManager(t)

		err := m.StartScreenShare(context.Background(), models.RoleStudent)
		assert.True(t, errors.Is(err, errs.ErrForbidden))

		// No capture was requested
		assert.Empty(t, devices.DisplayRequests())
		assert.Nil(t, replacer.last())
	})

	t.Run("stop restores the camera track", func(t *testing.T) {
		m, devices, replacer := newManager(t)
		camera := m.CurrentVideoTrack()
		require.NotNil(t, camera)

		require.NoError(t, m.StartScreenShare(context.Background(), models.RoleTutor))
		assert.True(t, m.State().ScreenSharing)

		reqs := devices.DisplayRequests()
		require.Len(t, reqs, 1)
		assert.Equal(t, 1920, reqs[0].Video.Width)
		assert.Equal(t, 60, reqs[0].Video.FrameRate)

		screen := replacer.last()
		require.NotNil(t, screen)
		assert.NotSame(t, camera, screen)
		assert.Equal(t, "screen", screen.Label())
		assert.Same(t, screen, m.CurrentVideoTrack())

		// The outgoing set holds exactly one video track
		var videos int
		for _, tr := range m.OutgoingTracks() {
			if tr.Kind() == webrtc.RTPCodecTypeVideo {
				videos++
			}
		}
		assert.Equal(t, 1, videos)

		require.NoError(t, m.StopScreenShare())
		assert.False(t, m.State().ScreenSharing)
		assert.Same(t, camera, replacer.last())
		assert.Same(t, camera, m.CurrentVideoTrack())
		assert.True(t, screen.IsEnded())
		assert.False(t, camera.IsEnded())

		// Stopping again is a no-op
		require.NoError(t, m.StopScreenShare())
		assert.Len(t, replacer.tracks, 2)
	})

	t.Run("ending the screen track reverts to the camera", func(t *testing.T) {
		m, _, replacer := newManager(t)
		camera := m.CurrentVideoTrack()

		require.NoError(t, m.StartScreenShare(context.Background(), models.RoleTutor))
		screen := replacer.last()

		// The user stops sharing from outside the room
		screen.Stop()

		require.Eventually(t, func() bool { return !m.State().ScreenSharing }, time.Second, 5*time.Millisecond)
		assert.Same(t, camera, replacer.last())
	})

	t.Run("capture failure leaves the camera in place", func(t *testing.T) {
		m, devices, replacer := newManager(t)
		devices.DisplayErr = media.ErrPermissionDenied

		err := m.StartScreenShare(context.Background(), models.RoleTutor)
		assert.True(t, errors.Is(err, media.ErrPermissionDenied))
		assert.False(t, m.State().ScreenSharing)
		assert.Nil(t, replacer.last())
	})

	t.Run("replace failure stops the capture", func(t *testing.T) {
		m, _, replacer := newManager(t)
		replacer.err = errors.New("sender closed")

		err := m.StartScreenShare(context.Background(), models.RoleTutor)
		require.Error(t, err)
		assert.False(t, m.State().ScreenSharing)
	})
}

func TestTrack(t *testing.T) {
	track, err := media.NewTrack(webrtc.MimeTypeOpus, "microphone", "stream")
	require.NoError(t, err)
	assert.Equal(t, webrtc.RTPCodecTypeAudio, track.Kind())
	assert.NotEmpty(t, track.ID())

	// Unbound tracks accept samples whether enabled or not
	assert.NoError(t, track.WriteSample(pionmedia.Sample{Data: []byte{1, 2, 3}, Duration: 20 * time.Millisecond}))
	track.SetEnabled(false)
	assert.NoError(t, track.WriteSample(pionmedia.Sample{Data: []byte{1, 2, 3}}))

	track.Stop()
	track.Stop()
	assert.True(t, track.IsEnded())
	assert.True(t, errors.Is(track.WriteSample(pionmedia.Sample{Data: []byte{1}}), media.ErrTrackEnded))
}

func TestFileDevices(t *testing.T) {
	dir := t.TempDir()

	t.Run("nothing configured", func(t *testing.T) {
		_, err := media.FileDevices{}.GetUserMedia(context.Background(), media.UserMediaConstraints)
		assert.True(t, errors.Is(err, media.ErrNoDevice))

		_, err = media.FileDevices{}.GetDisplayMedia(context.Background(), media.DisplayMediaConstraints)
		assert.True(t, errors.Is(err, media.ErrNoDevice))
	})

	t.Run("missing file", func(t *testing.T) {
		devices := media.FileDevices{CameraFile: filepath.Join(dir, "missing.ivf")}
		_, err := devices.GetUserMedia(context.Background(), media.UserMediaConstraints)
		assert.True(t, errors.Is(err, media.ErrNoDevice))
	})

	t.Run("unreadable file", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("file permissions are not enforced for root")
		}
		path := filepath.Join(dir, "locked.ivf")
		require.NoError(t, os.WriteFile(path, []byte("DKIF"), 0o000))

		devices := media.FileDevices{CameraFile: path}
		_, err := devices.GetUserMedia(context.Background(), media.UserMediaConstraints)
		assert.True(t, errors.Is(err, media.ErrPermissionDenied))
	})

	t.Run("invalid file", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.ivf")
		require.NoError(t, os.WriteFile(path, []byte("not a video"), 0o600))

		devices := media.FileDevices{DisplayFile: path}
		_, err := devices.GetDisplayMedia(context.Background(), media.DisplayMediaConstraints)
		require.Error(t, err)
		assert.False(t, errors.Is(err, media.ErrNoDevice))
	})
}
