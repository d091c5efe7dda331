package testutil

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/pavulla/kiosk/core/scan"
)

// QRFrame renders `text` as a QR symbol centered on a white frame of size×size pixels.
func QRFrame(t *testing.T, text string, size int) *image.RGBA {
	t.Helper()
	sym, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, size/2, size/2, nil)
	if err != nil {
		t.Fatalf("QRFrame() failed: %v", err)
	}
	frame := BlankFrame(size, size)
	b := sym.Bounds()
	off := image.Pt((size-b.Dx())/2, (size-b.Dy())/2)
	draw.Draw(frame, b.Add(off), sym, b.Min, draw.Src)
	return frame
}

// BlankFrame is a white frame with nothing to decode.
func BlankFrame(w, h int) *image.RGBA {
	frame := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(frame, frame.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return frame
}

// FakeCamera is a scan.StreamProvider serving canned frames.
// The last frame repeats once all frames have been served.
type FakeCamera struct {
	Frames []*image.RGBA
	Err    error         // returned by RequestStream when set
	Gate   chan struct{} // when set, RequestStream waits for it to be closed

	mu         sync.Mutex
	acquired   int
	released   int // every ReleaseStream call
	duplicates int // releases of a stream already released
	served     int
	busy       int // requests in flight plus streams not yet released
	maxBusy    int
}

var _ scan.StreamProvider = (*FakeCamera)(nil)

func (c *FakeCamera) RequestStream(ctx context.Context, _ scan.Constraints) (scan.Stream, error) {
	c.mu.Lock()
	c.busy++
	if c.busy > c.maxBusy {
		c.maxBusy = c.busy
	}
	c.mu.Unlock()

	if c.Gate != nil {
		select {
		case <-c.Gate:
		case <-ctx.Done():
			// hardware does not always honour cancellation; keep going like a slow camera would
			<-c.Gate
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		c.busy--
		return nil, c.Err
	}
	c.acquired++
	return &fakeStream{cam: c}, nil
}

func (c *FakeCamera) ReleaseStream(s scan.Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released++
	fs, ok := s.(*fakeStream)
	if !ok {
		return
	}
	if fs.released {
		c.duplicates++
		return
	}
	fs.released = true
	c.busy--
}

func (c *FakeCamera) Acquired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquired
}

// Released counts every ReleaseStream call, duplicates included.
func (c *FakeCamera) Released() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// DuplicateReleases counts ReleaseStream calls made on a stream that was already released.
func (c *FakeCamera) DuplicateReleases() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duplicates
}

// MaxBusy is the largest number of stream requests and open streams seen at the same time.
func (c *FakeCamera) MaxBusy() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxBusy
}

func (c *FakeCamera) Served() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.served
}

type fakeStream struct {
	cam      *FakeCamera
	released bool
}

func (s *fakeStream) Size() (int, int) {
	if len(s.cam.Frames) == 0 {
		return 0, 0
	}
	b := s.cam.Frames[0].Bounds()
	return b.Dx(), b.Dy()
}

func (s *fakeStream) CaptureInto(_ context.Context, dst *image.RGBA) error {
	c := s.cam
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.released {
		return scan.ErrFrameNotReady
	}
	if len(c.Frames) == 0 {
		return scan.ErrFrameNotReady
	}
	i := c.served
	if i >= len(c.Frames) {
		i = len(c.Frames) - 1
	}
	c.served++
	draw.Draw(dst, dst.Bounds(), c.Frames[i], image.Point{}, draw.Src)
	return nil
}

// CountingDecoder counts the calls made to the wrapped scan.Decoder.
type CountingDecoder struct {
	scan.Decoder
	calls int32
}

func (d *CountingDecoder) Decode(pix []byte, w, h int) (scan.Payload, bool) {
	atomic.AddInt32(&d.calls, 1)
	return d.Decoder.Decode(pix, w, h)
}

func (d *CountingDecoder) Calls() int {
	return int(atomic.LoadInt32(&d.calls))
}

// TextDecoder "decodes" every frame to the same text, without looking at it.
type TextDecoder string

func (d TextDecoder) Decode([]byte, int, int) (scan.Payload, bool) {
	if d == "" {
		return scan.Payload{}, false
	}
	return scan.NewPayload(string(d)), true
}
