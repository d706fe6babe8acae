package pipeline

import (
	"fmt"
	"image"

	"github.com/Brownie44l1/rembg-api/internal/model"
	"golang.org/x/image/draw"
)

// NormalizeMask min-max scales raw logits into [0,1]. A constant input has no
// range to scale; it maps to all ones so the image is kept rather than erased.
func NormalizeMask(raw []float32) []float32 {
	out := make([]float32, len(raw))
	if len(raw) == 0 {
		return out
	}

	lo, hi := raw[0], raw[0]
	for _, v := range raw[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	if hi == lo {
		for i := range out {
			out[i] = 1
		}
		return out
	}

	span := hi - lo
	for i, v := range raw {
		out[i] = (v - lo) / span
	}
	return out
}

// MaskImage squeezes a [1,...,1,H,W] tensor to 2D and returns its normalized
// values as an 8-bit mask.
func MaskImage(t *model.Tensor) (*image.Gray, error) {
	if t == nil || len(t.Shape) < 2 {
		return nil, fmt.Errorf("%w: mask tensor must have at least 2 dims", model.ErrInference)
	}
	for _, d := range t.Shape[:len(t.Shape)-2] {
		if d != 1 {
			return nil, fmt.Errorf("%w: cannot squeeze mask of shape %v", model.ErrInference, t.Shape)
		}
	}
	h, w := int(t.Shape[len(t.Shape)-2]), int(t.Shape[len(t.Shape)-1])
	if h <= 0 || w <= 0 || len(t.Data) != h*w {
		return nil, fmt.Errorf("%w: mask shape %v does not match %d values", model.ErrInference, t.Shape, len(t.Data))
	}

	norm := NormalizeMask(t.Data)
	mask := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := mask.Pix[y*mask.Stride:]
		for x := 0; x < w; x++ {
			row[x] = uint8(norm[y*w+x] * 255)
		}
	}
	return mask, nil
}

// Postprocess turns the model output into an alpha mask at the original
// resolution and composites original over a transparent canvas with it.
func Postprocess(t *model.Tensor, original *image.NRGBA) (*image.NRGBA, error) {
	mask, err := MaskImage(t)
	if err != nil {
		return nil, err
	}
	return Composite(original, ScaleMask(mask, original.Bounds())), nil
}

// ScaleMask resizes mask to the size of bounds.
func ScaleMask(mask *image.Gray, bounds image.Rectangle) *image.Gray {
	if mask.Bounds().Size() == bounds.Size() {
		return mask
	}
	scaled := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), mask, mask.Bounds(), draw.Src, nil)
	return scaled
}

// Composite places src over a fully transparent canvas weighted by mask:
// colors are kept and alpha becomes srcAlpha*mask/255. Pixels that end up
// fully transparent are zeroed.
func Composite(src *image.NRGBA, mask *image.Gray) *image.NRGBA {
	src = ToNRGBA(src)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		s := src.Pix[y*src.Stride:]
		d := dst.Pix[y*dst.Stride:]
		m := mask.Pix[y*mask.Stride:]
		for x := 0; x < w; x++ {
			a := (uint32(s[x*4+3])*uint32(m[x]) + 127) / 255
			if a == 0 {
				continue
			}
			d[x*4] = s[x*4]
			d[x*4+1] = s[x*4+1]
			d[x*4+2] = s[x*4+2]
			d[x*4+3] = uint8(a)
		}
	}
	return dst
}
