// Package camera provides the kiosk's video sources.
package camera

import (
	"context"
	"image"
	"image/draw"
	_ "image/jpeg" // register decoders
	_ "image/png"
	"io"

	"github.com/pkg/errors"

	"github.com/pavulla/kiosk/core"
	"github.com/pavulla/kiosk/core/scan"
)

// New returns the provider selected by conf.Camera.
func New(conf core.ScannerConfig, logger core.Logger) (scan.StreamProvider, error) {
	switch conf.Camera {
	case core.CameraFrameDir:
		return NewFrameDir(conf.FramesDir, logger), nil
	case core.CameraSnapshot:
		return NewSnapshot(conf.SnapshotURL, logger), nil
	}
	return nil, errors.Errorf("unknown camera %q", conf.Camera)
}

// ConstraintsFromConfig fills the stream constraints from the scanner config, keeping the
// defaults for anything left unset.
func ConstraintsFromConfig(conf core.ScannerConfig) scan.Constraints {
	c := scan.DefaultConstraints
	if conf.FacingMode != "" {
		c.FacingMode = conf.FacingMode
	}
	if conf.Width > 0 {
		c.Width = conf.Width
	}
	if conf.Height > 0 {
		c.Height = conf.Height
	}
	return c
}

func decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "decoding frame")
	}
	return img, nil
}

// blit draws img into dst from its top-left corner; anything outside dst is cropped.
func blit(dst *image.RGBA, img image.Image) {
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
}

func checkCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
