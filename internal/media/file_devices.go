package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/navikt/liveroom/internal/utils"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// oggPageDuration is the pacing used for Opus pages
const oggPageDuration = 20 * time.Millisecond

// FileDevices captures from media files: the camera and the screen are IVF
// files (VP8, VP9 or AV1) and the microphone is an Ogg/Opus file. The camera
// and microphone loop; the screen ends when its file does.
type FileDevices struct {
	CameraFile     string
	MicrophoneFile string
	DisplayFile    string
}

// GetUserMedia implements Devices
func (d FileDevices) GetUserMedia(ctx context.Context, c Constraints) (*Stream, error) {
	streamID := uuid.NewString()
	var tracks []*Track

	// Stop whatever was already opened if a later device fails
	fail := func(err error) (*Stream, error) {
		NewStream(streamID, tracks...).Stop()
		return nil, err
	}

	if c.Video != nil && d.CameraFile != "" {
		t, err := openIVF(d.CameraFile, "camera", streamID, true)
		if err != nil {
			return fail(err)
		}
		tracks = append(tracks, t)
	}
	if c.Audio != nil && d.MicrophoneFile != "" {
		t, err := openOgg(d.MicrophoneFile, "microphone", streamID)
		if err != nil {
			return fail(err)
		}
		tracks = append(tracks, t)
	}

	if len(tracks) == 0 {
		return nil, ErrNoDevice
	}
	return NewStream(streamID, tracks...), nil
}

// GetDisplayMedia implements Devices
func (d FileDevices) GetDisplayMedia(ctx context.Context, c Constraints) (*Stream, error) {
	if d.DisplayFile == "" {
		return nil, ErrNoDevice
	}

	streamID := uuid.NewString()
	t, err := openIVF(d.DisplayFile, "screen", streamID, false)
	if err != nil {
		return nil, err
	}
	return NewStream(streamID, t), nil
}

// openSource maps file system errors to capture errors
func openSource(path string) (*os.File, error) {
	f, err := os.Open(path)
	switch {
	case err == nil:
		return f, nil
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrNoDevice, path)
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	default:
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
}

func ivfMimeType(fourCC string) (string, error) {
	switch fourCC {
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	case "AV01":
		return webrtc.MimeTypeAV1, nil
	default:
		return "", fmt.Errorf("unsupported IVF codec %q", fourCC)
	}
}

func openIVF(path, label, streamID string, loop bool) (*Track, error) {
	f, err := openSource(path)
	if err != nil {
		return nil, err
	}

	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read IVF header of %s: %w", path, err)
	}

	mimeType, err := ivfMimeType(header.FourCC)
	if err != nil {
		f.Close()
		return nil, err
	}

	track, err := NewTrack(mimeType, label, streamID)
	if err != nil {
		f.Close()
		return nil, err
	}

	frameDuration := time.Second / 30
	if header.TimebaseNumerator > 0 && header.TimebaseDenominator > 0 {
		frameDuration = time.Duration(float64(time.Second) * float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator))
	}

	go pumpIVF(f, reader, track, frameDuration, loop)
	return track, nil
}

func pumpIVF(f *os.File, reader *ivfreader.IVFReader, track *Track, frameDuration time.Duration, loop bool) {
	defer f.Close()
	defer track.Stop()

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-track.Ended():
			return
		case <-ticker.C:
		}

		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			if !loop {
				return
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				log.Printf("Failed to rewind %s source: %v", utils.SanitizeLogString(track.Label()), err)
				return
			}
			if reader, _, err = ivfreader.NewWith(f); err != nil {
				log.Printf("Failed to reopen %s source: %v", utils.SanitizeLogString(track.Label()), err)
				return
			}
			continue
		}
		if err != nil {
			log.Printf("Failed to read %s frame: %v", utils.SanitizeLogString(track.Label()), err)
			return
		}

		if err := track.WriteSample(pionmedia.Sample{Data: frame, Duration: frameDuration}); err != nil && !errors.Is(err, ErrTrackEnded) {
			log.Printf("Failed to write %s sample: %v", utils.SanitizeLogString(track.Label()), err)
		}
	}
}

func openOgg(path, label, streamID string) (*Track, error) {
	f, err := openSource(path)
	if err != nil {
		return nil, err
	}

	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read Ogg header of %s: %w", path, err)
	}

	track, err := NewTrack(webrtc.MimeTypeOpus, label, streamID)
	if err != nil {
		f.Close()
		return nil, err
	}

	go pumpOgg(f, reader, track)
	return track, nil
}

func pumpOgg(f *os.File, reader *oggreader.OggReader, track *Track) {
	defer f.Close()
	defer track.Stop()

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-track.Ended():
			return
		case <-ticker.C:
		}

		page, header, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			// Loop the microphone
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				log.Printf("Failed to rewind %s source: %v", utils.SanitizeLogString(track.Label()), err)
				return
			}
			if reader, _, err = oggreader.NewWith(f); err != nil {
				log.Printf("Failed to reopen %s source: %v", utils.SanitizeLogString(track.Label()), err)
				return
			}
			lastGranule = 0
			continue
		}
		if err != nil {
			log.Printf("Failed to read %s page: %v", utils.SanitizeLogString(track.Label()), err)
			return
		}

		// Opus always runs at 48kHz
		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		duration := time.Duration(float64(samples) / 48000 * float64(time.Second))

		if err := track.WriteSample(pionmedia.Sample{Data: page, Duration: duration}); err != nil && !errors.Is(err, ErrTrackEnded) {
			log.Printf("Failed to write %s sample: %v", utils.SanitizeLogString(track.Label()), err)
		}
	}
}
