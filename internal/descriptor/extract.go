package descriptor

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// Extract decodes an image and computes its descriptor. The embedding field
// is left empty; attaching an embedding is the caller's concern.
// Extraction is deterministic given identical input bytes.
func Extract(imageData []byte) (*Descriptor, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrExtractionFailed, err)
	}
	return FromImage(img)
}

// FromImage computes a descriptor from an already-decoded image.
func FromImage(img image.Image) (*Descriptor, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image has no pixels (%dx%d)", ErrExtractionFailed, width, height)
	}

	var sumR, sumG, sumB float64
	histogram := make([]float64, HistogramBins)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			r8 := float64(r >> 8)
			g8 := float64(g >> 8)
			b8 := float64(b >> 8)

			sumR += r8
			sumG += g8
			sumB += b8

			// Quantize each channel to one bit and bucket by the
			// 3-bit combination.
			bucket := 0
			if r8 >= 128 {
				bucket |= 4
			}
			if g8 >= 128 {
				bucket |= 2
			}
			if b8 >= 128 {
				bucket |= 1
			}
			histogram[bucket]++
		}
	}

	total := float64(width * height)
	for i := range histogram {
		histogram[i] /= total
	}

	return &Descriptor{
		Histogram: histogram,
		AverageColor: [3]float64{
			sumR / total / 255,
			sumG / total / 255,
			sumB / total / 255,
		},
		Width:       width,
		Height:      height,
		AspectRatio: float64(width) / float64(height),
	}, nil
}

// ResizeForUpload resizes an image to fit within maxSize while keeping aspect
// ratio and returns JPEG-encoded bytes. Used to cap payload size before
// sending images to an embedding provider. Images already within bounds are
// returned unchanged.
func ResizeForUpload(data []byte, maxSize int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrExtractionFailed, err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxSize && height <= maxSize {
		return data, nil
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = int(float64(height) * float64(maxSize) / float64(width))
	} else {
		newHeight = maxSize
		newWidth = int(float64(width) * float64(maxSize) / float64(height))
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}

	return buf.Bytes(), nil
}
