package camera

import (
	"context"
	"image"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/pavulla/kiosk/core"
	"github.com/pavulla/kiosk/core/scan"
)

var frameExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// FrameDir plays the images of a directory as a video, in file name order.
// The last frame repeats once every frame has been shown.
type FrameDir struct {
	dir    string
	logger core.Logger
}

var _ scan.StreamProvider = (*FrameDir)(nil)

func NewFrameDir(dir string, logger core.Logger) *FrameDir {
	return &FrameDir{dir: dir, logger: logger}
}

func (fd *FrameDir) RequestStream(ctx context.Context, _ scan.Constraints) (scan.Stream, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	files, err := fd.frames()
	if err != nil {
		return nil, err
	}

	first, err := loadFrame(files[0])
	if err != nil {
		return nil, errors.Wrap(scan.ErrNoCamera, err.Error())
	}
	b := first.Bounds()
	fd.logger.Debug("camera: frame directory opened", map[string]interface{}{"dir": fd.dir, "frames": len(files)})
	return &dirStream{files: files, width: b.Dx(), height: b.Dy()}, nil
}

func (fd *FrameDir) ReleaseStream(s scan.Stream) {
	if ds, ok := s.(*dirStream); ok {
		ds.mu.Lock()
		ds.released = true
		ds.mu.Unlock()
	}
}

func (fd *FrameDir) frames() ([]string, error) {
	entries, err := ioutil.ReadDir(fd.dir)
	switch {
	case os.IsPermission(err):
		return nil, scan.ErrPermissionDenied
	case err != nil:
		return nil, errors.Wrap(scan.ErrNoCamera, err.Error())
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !frameExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(fd.dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, errors.Wrap(scan.ErrNoCamera, "no frames in "+fd.dir)
	}
	sort.Strings(files)
	return files, nil
}

type dirStream struct {
	files         []string
	width, height int

	mu       sync.Mutex
	next     int
	released bool
}

func (s *dirStream) Size() (int, int) {
	return s.width, s.height
}

func (s *dirStream) CaptureInto(ctx context.Context, dst *image.RGBA) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return scan.ErrFrameNotReady
	}
	file := s.files[s.next]
	if s.next < len(s.files)-1 {
		s.next++
	}
	s.mu.Unlock()

	img, err := loadFrame(file)
	if err != nil {
		return err
	}
	blit(dst, img)
	return nil
}

func loadFrame(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening frame")
	}
	defer func() { _ = f.Close() }()
	return decode(f)
}
