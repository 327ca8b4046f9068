package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultMaxSize is the longest side of a normalized capture, in pixels.
const DefaultMaxSize = 1024

// ErrEmptyImage is returned for zero-length captures.
var ErrEmptyImage = errors.New("empty image")

// Image is a captured frame, normalized to JPEG.
type Image struct {
	Data   []byte
	Format string // always "jpeg" after Normalize
	Width  int
	Height int
}

// Normalize decodes data (JPEG, PNG, GIF, BMP or WebP), downscales it to fit
// within maxSize keeping the aspect ratio, and re-encodes it as JPEG.
func Normalize(data []byte, maxSize int) (Image, error) {
	if len(data) == 0 {
		return Image{}, ErrEmptyImage
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width > maxSize || height > maxSize {
		var newWidth, newHeight int
		if width > height {
			newWidth = maxSize
			newHeight = max(1, int(float64(height)*float64(maxSize)/float64(width)))
		} else {
			newHeight = maxSize
			newWidth = max(1, int(float64(width)*float64(maxSize)/float64(height)))
		}

		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		img = resized
		width, height = newWidth, newHeight
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return Image{}, fmt.Errorf("failed to encode image: %w", err)
	}
	return Image{Data: buf.Bytes(), Format: "jpeg", Width: width, Height: height}, nil
}
