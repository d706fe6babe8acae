package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels is the largest image Decode accepts when no limit is
// given.
const DefaultMaxPixels int64 = 2 * 89478485

var (
	ErrDecode        = errors.New("cannot identify image file")
	ErrEncode        = errors.New("cannot encode image")
	ErrTooManyPixels = errors.New("image size exceeds pixel limit")
)

// Decode reads an image in any registered format (jpeg, png, gif, bmp, tiff,
// webp) and returns it in RGB mode: an NRGBA whose alpha is dropped to 255
// rather than composited.
//
// The header is checked first: an image declaring more than maxPixels pixels
// is rejected before any pixel buffer is allocated. maxPixels <= 0 means
// DefaultMaxPixels.
func Decode(r io.Reader, maxPixels int64) (*image.NRGBA, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
		return nil, fmt.Errorf("%w: %w: %dx%d is %d pixels, limit is %d",
			ErrDecode, ErrTooManyPixels, cfg.Width, cfg.Height, pixels, maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	rgb := imaging.Clone(img)
	for i := 3; i < len(rgb.Pix); i += 4 {
		rgb.Pix[i] = 0xff
	}
	return rgb, nil
}

// EncodePNG writes img as an 8-bit RGBA PNG. Opaque images keep their alpha
// channel.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := writeRGBA(w, ToNRGBA(img)); err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return nil
}

// ToNRGBA returns img as an NRGBA anchored at the origin, reusing img when it
// already is one.
func ToNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) {
		return nrgba
	}
	return imaging.Clone(img)
}

// IsOpaque reports whether every pixel has full alpha, i.e. the image is in
// RGB mode.
func IsOpaque(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0xff {
			return false
		}
	}
	return true
}
