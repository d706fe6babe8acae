package pipeline

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

const (
	sharpnessFactor    = 1.3
	autocontrastCutoff = 0.5 // percent of pixels clipped from each tail
)

// smoothKernel is the 3x3 SMOOTH filter used as the degenerate image for
// sharpness enhancement.
var smoothKernel = [9]float64{
	1, 1, 1,
	1, 5, 1,
	1, 1, 1,
}

// Enhance sharpens and auto-contrasts the color channels of img. Any alpha
// channel is split off first and reattached unchanged.
func Enhance(img image.Image) *image.NRGBA {
	rgb, alpha := splitAlpha(ToNRGBA(img))

	out := sharpen(rgb, sharpnessFactor)
	out = autocontrast(out, autocontrastCutoff)

	mergeAlpha(out, alpha)
	return out
}

// splitAlpha returns an opaque copy of img and its alpha plane.
func splitAlpha(img *image.NRGBA) (*image.NRGBA, []uint8) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	rgb := image.NewNRGBA(image.Rect(0, 0, w, h))
	alpha := make([]uint8, w*h)

	for y := 0; y < h; y++ {
		s := img.Pix[y*img.Stride:]
		d := rgb.Pix[y*rgb.Stride:]
		for x := 0; x < w; x++ {
			copy(d[x*4:x*4+3], s[x*4:x*4+3])
			d[x*4+3] = 0xff
			alpha[y*w+x] = s[x*4+3]
		}
	}
	return rgb, alpha
}

func mergeAlpha(img *image.NRGBA, alpha []uint8) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			row[x*4+3] = alpha[y*w+x]
		}
	}
}

// sharpen blends the smoothed image with the original:
// out = smooth + factor*(orig - smooth). The one pixel border is left as is.
func sharpen(img *image.NRGBA, factor float64) *image.NRGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := imaging.Clone(img)
	if w < 3 || h < 3 {
		return out
	}

	smooth := imaging.Convolve3x3(img, smoothKernel, &imaging.ConvolveOptions{Normalize: true})

	for y := 1; y < h-1; y++ {
		o := img.Pix[y*img.Stride:]
		s := smooth.Pix[y*smooth.Stride:]
		d := out.Pix[y*out.Stride:]
		for x := 1; x < w-1; x++ {
			for c := 0; c < 3; c++ {
				i := x*4 + c
				v := float64(s[i]) + factor*(float64(o[i])-float64(s[i]))
				d[i] = clampUint8(v)
			}
		}
	}
	return out
}

// autocontrast stretches each channel so that, after clipping cutoff percent
// of the pixels from both ends of its histogram, it spans 0..255.
func autocontrast(img *image.NRGBA, cutoff float64) *image.NRGBA {
	var hist [3][256]int
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			hist[0][row[x*4]]++
			hist[1][row[x*4+1]]++
			hist[2][row[x*4+2]]++
		}
	}

	var lut [3][256]uint8
	for c := range hist {
		lut[c] = contrastLUT(hist[c], cutoff)
	}

	return imaging.AdjustFunc(img, func(px color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: lut[0][px.R],
			G: lut[1][px.G],
			B: lut[2][px.B],
			A: px.A,
		}
	})
}

func contrastLUT(hist [256]int, cutoff float64) [256]uint8 {
	n := 0
	for _, v := range hist {
		n += v
	}

	cut := int(math.Floor(float64(n) * cutoff / 100))
	for lo := 0; lo < 256 && cut > 0; lo++ {
		if cut > hist[lo] {
			cut -= hist[lo]
			hist[lo] = 0
		} else {
			hist[lo] -= cut
			cut = 0
		}
	}
	cut = int(math.Floor(float64(n) * cutoff / 100))
	for hi := 255; hi >= 0 && cut > 0; hi-- {
		if cut > hist[hi] {
			cut -= hist[hi]
			hist[hi] = 0
		} else {
			hist[hi] -= cut
			cut = 0
		}
	}

	lo := 0
	for lo < 255 && hist[lo] == 0 {
		lo++
	}
	hi := 255
	for hi > 0 && hist[hi] == 0 {
		hi--
	}

	var lut [256]uint8
	if hi <= lo {
		for i := range lut {
			lut[i] = uint8(i)
		}
		return lut
	}

	scale := 255.0 / float64(hi-lo)
	offset := -float64(lo) * scale
	for i := range lut {
		v := int(float64(i)*scale + offset)
		switch {
		case v < 0:
			v = 0
		case v > 255:
			v = 255
		}
		lut[i] = uint8(v)
	}
	return lut
}

func clampUint8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}
