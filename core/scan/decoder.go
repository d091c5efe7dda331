package scan

import (
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Decoder reads a QR payload out of a still RGBA frame.
// Implementations must not modify pix nor keep it after returning.
type Decoder interface {
	Decode(pix []byte, width, height int) (Payload, bool)
}

// QRDecoder decodes QR symbols with gozxing. Only dark-on-light symbols are read.
// A fresh reader is used per frame, so one QRDecoder may serve several sessions.
type QRDecoder struct{}

var _ Decoder = (*QRDecoder)(nil)

func NewQRDecoder() *QRDecoder {
	return &QRDecoder{}
}

func (d *QRDecoder) Decode(pix []byte, width, height int) (Payload, bool) {
	if width <= 0 || height <= 0 || len(pix) != 4*width*height {
		return Payload{}, false
	}
	// wrap without copying: the binary bitmap keeps its own luminance copy
	img := &image.RGBA{
		Pix:    pix,
		Stride: 4 * width,
		Rect:   image.Rect(0, 0, width, height),
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return Payload{}, false
	}
	res, err := qrcode.NewQRCodeReader().Decode(bmp, nil)
	if err != nil || res == nil || res.GetText() == "" {
		return Payload{}, false
	}
	return NewPayload(res.GetText()), true
}
