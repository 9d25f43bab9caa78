package capture

import (
	"context"
	"image"
	"io/fs"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/fieldscout/device"
	"go.viam.com/fieldscout/logging"
	"go.viam.com/fieldscout/utils"
)

// MediaSource opens camera streams through mediadevices.
type MediaSource struct {
	logger logging.Logger
}

// NewMediaSource returns a Source backed by the host's camera drivers.
func NewMediaSource(logger logging.Logger) *MediaSource {
	return &MediaSource{logger: logger}
}

func makeConstraints(deviceID string, c Constraints) mediadevices.MediaStreamConstraints {
	return mediadevices.MediaStreamConstraints{
		Video: func(constraint *mediadevices.MediaTrackConstraints) {
			constraint.DeviceID = prop.StringExact(deviceID)
			constraint.Width = prop.IntRanged{Min: 0, Ideal: c.Width, Max: 4096}
			constraint.Height = prop.IntRanged{Min: 0, Ideal: c.Height, Max: 2160}
			constraint.FrameRate = prop.FloatRanged{Min: 0.0, Ideal: 30.0, Max: 140.0}
			constraint.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatI420,
				frame.FormatYUY2,
				frame.FormatUYVY,
				frame.FormatMJPEG,
				frame.FormatNV12,
				frame.FormatRGBA,
			}
		},
	}
}

// Open acquires the device at path deviceID.
func (m *MediaSource) Open(ctx context.Context, deviceID string, constraints Constraints) (Stream, error) {
	driver, err := device.LookupDriver(deviceID)
	if err != nil {
		return nil, err
	}
	m.logger.CDebugw(ctx, "opening camera", "device", deviceID, "constraints", constraints)

	stream, err := mediadevices.GetUserMedia(makeConstraints(driver.ID(), constraints))
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, errors.Wrap(device.ErrPermissionDenied, err.Error())
		}
		return nil, err
	}
	tracks := stream.GetVideoTracks()
	guard := utils.NewGuard(func() {
		for _, t := range tracks {
			goutils.UncheckedError(t.Close())
		}
	})
	defer guard.OnFail()

	if len(tracks) == 0 {
		return nil, errors.New("camera produced no video track")
	}
	track, err := utils.AssertType[*mediadevices.VideoTrack](tracks[0])
	if err != nil {
		return nil, err
	}
	reader := track.NewReader(false)
	guard.Success()
	return &mediaStream{track: track, reader: reader}, nil
}

type mediaStream struct {
	track  *mediadevices.VideoTrack
	reader video.Reader
}

func (s *mediaStream) Read() (image.Image, func(), error) {
	return s.reader.Read()
}

func (s *mediaStream) Close() error {
	return s.track.Close()
}
