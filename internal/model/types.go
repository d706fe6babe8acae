package model

import (
	"context"
	"errors"
	"fmt"
)

// InputSize is the square side U²-Net expects.
const InputSize = 320

var (
	ErrModelUnavailable = errors.New("model unavailable")
	ErrInference        = errors.New("inference failed")
)

var (
	InputShape  = []int64{1, 3, InputSize, InputSize}
	OutputShape = []int64{1, 1, InputSize, InputSize}
)

// Segmenter runs one forward pass of a segmentation model.
type Segmenter interface {
	Infer(ctx context.Context, input *Tensor) (*Tensor, error)
}

// Tensor is a dense row-major float32 array.
type Tensor struct {
	Shape []int64
	Data  []float32
}

func NewTensor(shape ...int64) *Tensor {
	return &Tensor{
		Shape: append([]int64(nil), shape...),
		Data:  make([]float32, shapeSize(shape)),
	}
}

func (t *Tensor) Size() int {
	return shapeSize(t.Shape)
}

// CheckShape reports whether t has exactly the wanted shape and a matching
// data length.
func (t *Tensor) CheckShape(want []int64) error {
	if t == nil {
		return fmt.Errorf("%w: nil tensor", ErrInference)
	}
	if len(t.Shape) != len(want) {
		return fmt.Errorf("%w: expected shape %v, got %v", ErrInference, want, t.Shape)
	}
	for i := range want {
		if t.Shape[i] != want[i] {
			return fmt.Errorf("%w: expected shape %v, got %v", ErrInference, want, t.Shape)
		}
	}
	if len(t.Data) != shapeSize(want) {
		return fmt.Errorf("%w: expected %d values, got %d", ErrInference, shapeSize(want), len(t.Data))
	}
	return nil
}

func shapeSize(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}
