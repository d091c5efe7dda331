package scan

import (
	"context"
	"errors"
	"image"
)

// Facing modes
const (
	FacingEnvironment = "environment" // rear camera
	FacingUser        = "user"
)

var (
	ErrNoCamera         = errors.New("camera not available")
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrFrameNotReady is returned by Stream.CaptureInto while the stream has no frame yet; the tick is skipped.
	ErrFrameNotReady = errors.New("frame not ready")
)

// DefaultConstraints asks for the rear camera at a modest resolution.
var DefaultConstraints = Constraints{
	FacingMode: FacingEnvironment,
	Width:      1280,
	Height:     720,
}

// Constraints are the ideal stream settings; providers may pick the closest they have.
type Constraints struct {
	FacingMode string
	Width      int
	Height     int
}

type (
	// Stream is a live video source.
	Stream interface {
		// Size returns the native dimensions of the frames.
		Size() (width, height int)
		// CaptureInto draws the current frame into dst, whose bounds match Size().
		CaptureInto(ctx context.Context, dst *image.RGBA) error
	}

	StreamProvider interface {
		RequestStream(ctx context.Context, c Constraints) (Stream, error)
		ReleaseStream(s Stream)
	}
)
