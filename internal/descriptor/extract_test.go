package descriptor

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
)

func TestFromImageSolidColor(t *testing.T) {
	tests := []struct {
		name       string
		color      color.RGBA
		wantBucket int
		wantAvg    [3]float64
	}{
		{"white", color.RGBA{255, 255, 255, 255}, 7, [3]float64{1, 1, 1}},
		{"black", color.RGBA{0, 0, 0, 255}, 0, [3]float64{0, 0, 0}},
		{"red", color.RGBA{255, 0, 0, 255}, 4, [3]float64{1, 0, 0}},
		{"green", color.RGBA{0, 255, 0, 255}, 2, [3]float64{0, 1, 0}},
		{"blue", color.RGBA{0, 0, 255, 255}, 1, [3]float64{0, 0, 1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			img := createTestImage(10, 10, tc.color)
			d, err := FromImage(img)
			if err != nil {
				t.Fatalf("FromImage failed: %v", err)
			}

			for i, v := range d.Histogram {
				want := 0.0
				if i == tc.wantBucket {
					want = 1.0
				}
				if math.Abs(v-want) > 1e-9 {
					t.Errorf("histogram[%d] = %f; want %f", i, v, want)
				}
			}

			for i := range tc.wantAvg {
				if math.Abs(d.AverageColor[i]-tc.wantAvg[i]) > 1e-9 {
					t.Errorf("averageColor[%d] = %f; want %f", i, d.AverageColor[i], tc.wantAvg[i])
				}
			}
		})
	}
}

func TestFromImageHistogramSumsToOne(t *testing.T) {
	img := createGradientImage(64, 48)
	d, err := FromImage(img)
	if err != nil {
		t.Fatalf("FromImage failed: %v", err)
	}

	var sum float64
	for _, v := range d.Histogram {
		if v < 0 {
			t.Errorf("histogram bin is negative: %f", v)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("histogram sum = %f; want 1.0", sum)
	}
}

func TestFromImageDimensions(t *testing.T) {
	img := createTestImage(120, 80, color.White)
	d, err := FromImage(img)
	if err != nil {
		t.Fatalf("FromImage failed: %v", err)
	}

	if d.Width != 120 || d.Height != 80 {
		t.Errorf("dimensions = %dx%d; want 120x80", d.Width, d.Height)
	}
	if math.Abs(d.AspectRatio-1.5) > 1e-9 {
		t.Errorf("aspectRatio = %f; want 1.5", d.AspectRatio)
	}
}

func TestFromImageEmptyImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 0, 0))
	_, err := FromImage(img)
	if err == nil {
		t.Fatal("expected error for empty image")
	}
	if !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("expected ErrExtractionFailed, got %v", err)
	}
}

func TestExtractInvalidData(t *testing.T) {
	_, err := Extract([]byte("not an image"))
	if err == nil {
		t.Fatal("expected error for invalid data")
	}
	if !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("expected ErrExtractionFailed, got %v", err)
	}
}

func TestExtractDeterministic(t *testing.T) {
	data := encodePNG(createGradientImage(50, 50))

	d1, err := Extract(data)
	if err != nil {
		t.Fatalf("first Extract failed: %v", err)
	}
	d2, err := Extract(data)
	if err != nil {
		t.Fatalf("second Extract failed: %v", err)
	}

	for i := range d1.Histogram {
		if d1.Histogram[i] != d2.Histogram[i] {
			t.Errorf("histogram[%d] differs between runs: %f vs %f", i, d1.Histogram[i], d2.Histogram[i])
		}
	}
	if d1.AverageColor != d2.AverageColor {
		t.Errorf("average color differs between runs: %v vs %v", d1.AverageColor, d2.AverageColor)
	}
}

func TestResizeForUpload(t *testing.T) {
	tests := []struct {
		name    string
		width   int
		height  int
		maxSize int
		resized bool
	}{
		{"within bounds", 100, 100, 200, false},
		{"landscape over", 400, 200, 200, true},
		{"portrait over", 200, 400, 200, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data := encodePNG(createTestImage(tc.width, tc.height, color.White))
			out, err := ResizeForUpload(data, tc.maxSize)
			if err != nil {
				t.Fatalf("ResizeForUpload failed: %v", err)
			}

			if !tc.resized {
				if !bytes.Equal(out, data) {
					t.Error("image within bounds should be returned unchanged")
				}
				return
			}

			img, _, err := image.Decode(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("failed to decode resized image: %v", err)
			}
			b := img.Bounds()
			if b.Dx() > tc.maxSize || b.Dy() > tc.maxSize {
				t.Errorf("resized image %dx%d exceeds max %d", b.Dx(), b.Dy(), tc.maxSize)
			}
		})
	}
}

// Helper functions

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func createGradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			gray := uint8((x + y) * 255 / (width + height))
			img.Set(x, y, color.RGBA{gray, gray, gray, 255})
		}
	}
	return img
}

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
