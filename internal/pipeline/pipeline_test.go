package pipeline

import (
	"context"
	"image"
	"image/color"
	"math/rand"

	"github.com/Brownie44l1/rembg-api/internal/model"
)

// centerSegmenter predicts foreground inside the central half of the frame.
type centerSegmenter struct{}

func (centerSegmenter) Infer(ctx context.Context, input *model.Tensor) (*model.Tensor, error) {
	if err := input.CheckShape(model.InputShape); err != nil {
		return nil, err
	}
	out := model.NewTensor(model.OutputShape...)
	const size = model.InputSize
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if x >= size/4 && x < 3*size/4 && y >= size/4 && y < 3*size/4 {
				out.Data[y*size+x] = 8
			} else {
				out.Data[y*size+x] = -8
			}
		}
	}
	return out, nil
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func noise(w, h int, seed int64, withAlpha bool) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	_, _ = rng.Read(img.Pix)
	if !withAlpha {
		for i := 3; i < len(img.Pix); i += 4 {
			img.Pix[i] = 0xff
		}
	}
	return img
}

func alphaPlane(img *image.NRGBA) []uint8 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := make([]uint8, 0, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			out = append(out, row[x*4+3])
		}
	}
	return out
}
