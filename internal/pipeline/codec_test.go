package pipeline

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_DropsAlpha(t *testing.T) {
	t.Parallel()

	src := noise(30, 20, 4, true)
	src.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 0})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	got, err := Decode(&buf, 0)
	require.NoError(t, err)

	assert.Equal(t, src.Bounds(), got.Bounds())
	assert.True(t, IsOpaque(got))
	assert.Equal(t, color.NRGBA{R: 200, G: 100, B: 50, A: 255}, got.NRGBAAt(0, 0))
}

func TestDecode_JPEG(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, noise(64, 32, 2, false), &jpeg.Options{Quality: 90}))

	got, err := Decode(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 32), got.Bounds())
	assert.True(t, IsOpaque(got))
}

func TestDecode_Garbage(t *testing.T) {
	t.Parallel()

	_, err := Decode(strings.NewReader("definitely not an image"), 0)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestEncodePNG_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		img  *image.NRGBA
	}{
		{name: "rgba", img: noise(41, 17, 6, true)},
		{name: "rgb", img: noise(41, 17, 6, false)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, EncodePNG(&buf, tt.img))
			assert.Equal(t, byte(pngColorRGBA), buf.Bytes()[25], "IHDR colour type")

			decoded, err := png.Decode(&buf)
			require.NoError(t, err)
			got := ToNRGBA(decoded)

			assert.Equal(t, tt.img.Bounds(), got.Bounds())
			assert.Equal(t, IsOpaque(tt.img), IsOpaque(got))
			assert.Equal(t, tt.img.Pix, got.Pix)
		})
	}
}

func TestToNRGBA(t *testing.T) {
	t.Parallel()

	img := noise(8, 8, 1, true)
	assert.Same(t, img, ToNRGBA(img))

	sub := img.SubImage(image.Rect(2, 2, 6, 5)).(*image.NRGBA)
	got := ToNRGBA(sub)
	assert.Equal(t, image.Rect(0, 0, 4, 3), got.Bounds())
	assert.Equal(t, img.NRGBAAt(2, 2), got.NRGBAAt(0, 0))
}

func TestEncodePNG_SubImage(t *testing.T) {
	t.Parallel()

	img := noise(20, 20, 9, true)
	sub := img.SubImage(image.Rect(5, 3, 17, 11))

	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, sub))

	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	got := ToNRGBA(decoded)
	assert.Equal(t, image.Rect(0, 0, 12, 8), got.Bounds())
	assert.Equal(t, img.NRGBAAt(5, 3), got.NRGBAAt(0, 0))
	assert.Equal(t, img.NRGBAAt(16, 10), got.NRGBAAt(11, 7))
}

func TestEncodePNG_EmptyImage(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := EncodePNG(&buf, image.NewNRGBA(image.Rect(0, 0, 0, 0)))
	assert.ErrorIs(t, err, ErrEncode)
}

// pngHeader returns a PNG that declares a w×h RGBA image and stops after
// IHDR.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	data := make([]byte, 13)
	binary.BigEndian.PutUint32(data[0:4], w)
	binary.BigEndian.PutUint32(data[4:8], h)
	data[8], data[9] = 8, 6

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	buf.Write(length[:])
	chunk := append([]byte("IHDR"), data...)
	buf.Write(chunk)
	var crc [4]byte
	binary.BigEndian.PutUint32(crc[:], crc32.ChecksumIEEE(chunk))
	buf.Write(crc[:])
	return buf.Bytes()
}

func TestDecode_PixelLimit(t *testing.T) {
	t.Parallel()

	var small bytes.Buffer
	require.NoError(t, png.Encode(&small, noise(30, 20, 3, false)))

	tests := []struct {
		name      string
		data      []byte
		maxPixels int64
		wantErr   bool
	}{
		{name: "huge header, default limit", data: pngHeader(40000, 40000), maxPixels: 0, wantErr: true},
		{name: "above custom limit", data: small.Bytes(), maxPixels: 599, wantErr: true},
		{name: "at custom limit", data: small.Bytes(), maxPixels: 600},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			img, err := Decode(bytes.NewReader(tt.data), tt.maxPixels)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDecode)
				assert.ErrorIs(t, err, ErrTooManyPixels)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 30, 20), img.Bounds())
		})
	}
}
