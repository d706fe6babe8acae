package pipeline

import (
	"bufio"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"io"
	"math"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

const (
	pngColorRGBA = 6
	pngFilterSub = 1
)

// writeRGBA encodes img as colour type 6 at 8 bits per channel. image/png
// picks colour type 2 for opaque images and has no way to override it.
func writeRGBA(w io.Writer, img *image.NRGBA) error {
	width, height := img.Rect.Dx(), img.Rect.Dy()
	if width <= 0 || height <= 0 || width > math.MaxInt32 || height > math.MaxInt32 {
		return fmt.Errorf("invalid image size %dx%d", width, height)
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(pngSignature); err != nil {
		return err
	}

	var ihdr [13]byte
	binary.BigEndian.PutUint32(ihdr[0:4], uint32(width))
	binary.BigEndian.PutUint32(ihdr[4:8], uint32(height))
	ihdr[8] = 8
	ihdr[9] = pngColorRGBA
	if err := writeChunk(bw, "IHDR", ihdr[:]); err != nil {
		return err
	}

	idat := bufio.NewWriterSize(chunkWriter{w: bw, typ: "IDAT"}, 1<<15)
	zw, err := zlib.NewWriterLevel(idat, zlib.BestSpeed)
	if err != nil {
		return err
	}

	rowLen := 4 * width
	row := make([]byte, 1+rowLen)
	row[0] = pngFilterSub
	for y := 0; y < height; y++ {
		pix := img.Pix[y*img.Stride : y*img.Stride+rowLen]
		copy(row[1:5], pix[:4])
		for i := 4; i < rowLen; i++ {
			row[1+i] = pix[i] - pix[i-4]
		}
		if _, err := zw.Write(row); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return err
	}
	if err := idat.Flush(); err != nil {
		return err
	}
	if err := writeChunk(bw, "IEND", nil); err != nil {
		return err
	}
	return bw.Flush()
}

// chunkWriter emits every Write as one chunk of type typ.
type chunkWriter struct {
	w   io.Writer
	typ string
}

func (c chunkWriter) Write(p []byte) (int, error) {
	if err := writeChunk(c.w, c.typ, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func writeChunk(w io.Writer, typ string, data []byte) error {
	var header [8]byte
	binary.BigEndian.PutUint32(header[:4], uint32(len(data)))
	copy(header[4:], typ)

	crc := crc32.NewIEEE()
	crc.Write(header[4:])
	crc.Write(data)
	var footer [4]byte
	binary.BigEndian.PutUint32(footer[:], crc.Sum32())

	for _, b := range [][]byte{header[:], data, footer[:]} {
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}
