// Package avatar stores uploaded profile pictures as bounded PNG thumbnails.
package avatar

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	_ "image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

const (
	MaxWidth  = 200
	MaxHeight = 200

	// MaxUploadBytes caps the encoded upload size.
	MaxUploadBytes = 5 << 20

	// MaxSourcePixels caps the declared pixel area of an upload, checked
	// before decoding.
	MaxSourcePixels = 4096 * 4096

	// Dir is the subdirectory of the data directory holding avatars.
	Dir = "avatar_images"
)

var (
	ErrTooLarge    = errors.New("avatar: upload too large")
	ErrUnsupported = errors.New("avatar: unsupported image format")
)

// Store writes avatars below a data directory.
type Store struct {
	root string
}

// NewStore creates the avatar directory under dataDir if needed.
func NewStore(dataDir string) (*Store, error) {
	root := filepath.Join(dataDir, Dir)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("avatar: create dir: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the directory avatars are written to.
func (s *Store) Root() string { return s.root }

// Fit returns the largest size with the same aspect ratio as w×h that fits
// in maxW×maxH. Images already inside the bounds keep their size.
func Fit(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	// Compare w/maxW against h/maxH without floating point.
	if w*maxH >= h*maxW {
		nh := h * maxW / w
		return maxW, max(nh, 1)
	}
	nw := w * maxH / h
	return max(nw, 1), maxH
}

// Thumbnail scales img to fit in MaxWidth×MaxHeight.
func Thumbnail(img image.Image) image.Image {
	b := img.Bounds()
	w, h := Fit(b.Dx(), b.Dy(), MaxWidth, MaxHeight)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// Save decodes a PNG, JPEG or GIF upload, thumbnails it and writes it as
// PNG under a random name. It returns the path relative to the data
// directory, e.g. "avatar_images/<uuid>.png".
func (s *Store) Save(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return "", fmt.Errorf("avatar: read upload: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return "", ErrTooLarge
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", fmt.Errorf("%w: empty image", ErrUnsupported)
	}
	if cfg.Width > MaxSourcePixels/cfg.Height {
		return "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, MaxSourcePixels)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	name := uuid.NewString() + ".png"
	f, err := os.OpenFile(filepath.Join(s.root, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("avatar: create file: %w", err)
	}
	if err := png.Encode(f, Thumbnail(img)); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("avatar: encode: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("avatar: close: %w", err)
	}
	return filepath.ToSlash(filepath.Join(Dir, name)), nil
}

// Remove deletes a stored avatar. Paths outside the avatar directory, such
// as the default avatar, and files already gone are ignored.
func (s *Store) Remove(rel string) error {
	if filepath.Dir(filepath.FromSlash(rel)) != Dir {
		return nil
	}
	err := os.Remove(filepath.Join(s.root, filepath.Base(filepath.FromSlash(rel))))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("avatar: remove: %w", err)
	}
	return nil
}

// Open returns the stored avatar with the given relative path.
func (s *Store) Open(rel string) (*os.File, error) {
	name := filepath.Base(filepath.FromSlash(rel))
	return os.Open(filepath.Join(s.root, name))
}
