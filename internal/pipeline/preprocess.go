package pipeline

import (
	"image"

	"github.com/Brownie44l1/rembg-api/internal/model"
	"github.com/nfnt/resize"
)

var (
	mean = [3]float32{0.485, 0.456, 0.406}
	std  = [3]float32{0.229, 0.224, 0.225}
)

// Preprocess converts an RGB image into the [1,3,320,320] channel-first tensor
// U²-Net expects: Lanczos resize, scale to [0,1], then per-channel mean/std
// normalization.
func Preprocess(img image.Image) *model.Tensor {
	const size = model.InputSize

	resized := ToNRGBA(resize.Resize(size, size, img, resize.Lanczos3))

	t := model.NewTensor(model.InputShape...)
	plane := size * size
	for y := 0; y < size; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < size; x++ {
			px := row[x*4 : x*4+3]
			i := y*size + x
			for c := 0; c < 3; c++ {
				t.Data[c*plane+i] = (float32(px[c])/255.0 - mean[c]) / std[c]
			}
		}
	}
	return t
}
