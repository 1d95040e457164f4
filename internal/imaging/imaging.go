// Package imaging normalizes uploaded product photos.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
)

// MaxPhotoSize is the largest accepted upload in bytes.
const MaxPhotoSize = 8 << 20

// MaxDimension is the longest stored edge in pixels.
const MaxDimension = 800

const jpegQuality = 82

// ErrUnsupportedFormat is returned for anything but JPEG or PNG input.
var ErrUnsupportedFormat = errors.New("unsupported photo format")

var accepted = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// Photo is a normalized JPEG photo.
type Photo struct {
	Data   []byte
	Width  int
	Height int
}

// NormalizePhoto sniffs the upload, fits it within MaxDimension, flattens
// transparency onto white and re-encodes it as JPEG.
func NormalizePhoto(r io.Reader) (*Photo, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxPhotoSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading photo: %w", err)
	}
	if len(data) > MaxPhotoSize {
		return nil, fmt.Errorf("photo exceeds %d bytes", MaxPhotoSize)
	}

	if mime := http.DetectContentType(data); !accepted[mime] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding photo: %w", err)
	}

	w, h := fit(src.Bounds().Dx(), src.Bounds().Dy(), MaxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == src.Bounds().Dx() && h == src.Bounds().Dy() {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encoding photo: %w", err)
	}
	return &Photo{Data: buf.Bytes(), Width: w, Height: h}, nil
}

// fit scales w×h down so the longer edge is at most maxDim, keeping the
// aspect ratio. Smaller images are returned unchanged.
func fit(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, h*maxDim/w)
	}
	return max(1, w*maxDim/h), maxDim
}
