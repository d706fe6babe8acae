package pipeline

import (
	"context"
	"image"
	"time"

	"github.com/Brownie44l1/rembg-api/internal/model"
	"go.uber.org/zap"
)

// Remover cuts the background out of an image with a segmentation model.
type Remover struct {
	seg    model.Segmenter
	logger *zap.Logger
}

func NewRemover(seg model.Segmenter, logger *zap.Logger) *Remover {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Remover{seg: seg, logger: logger}
}

// Remove runs preprocess, inference and postprocess. The result has the size
// of img with the predicted foreground as alpha.
func (r *Remover) Remove(ctx context.Context, img *image.NRGBA) (*image.NRGBA, error) {
	start := time.Now()
	input := Preprocess(img)
	preprocessed := time.Now()

	output, err := r.seg.Infer(ctx, input)
	if err != nil {
		return nil, err
	}
	inferred := time.Now()

	result, err := Postprocess(output, img)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("background removed",
		zap.Int("width", img.Rect.Dx()),
		zap.Int("height", img.Rect.Dy()),
		zap.Duration("preprocess", preprocessed.Sub(start)),
		zap.Duration("inference", inferred.Sub(preprocessed)),
		zap.Duration("postprocess", time.Since(inferred)))
	return result, nil
}
