// Package imagestat computes pixel statistics used by the blank-page check.
package imagestat

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
)

// GrayStdDev decodes the image at path, converts it to 8-bit greyscale and
// returns the population standard deviation of the intensities.
func GrayStdDev(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return 0, fmt.Errorf("imagestat: decode %s: %w", path, err)
	}
	return StdDev(img), nil
}

// StdDev returns the greyscale standard deviation of img.
// An empty image has a deviation of 0.
func StdDev(img image.Image) float64 {
	b := img.Bounds()
	n := float64(b.Dx() * b.Dy())
	if n == 0 {
		return 0
	}

	var sum, sumSq float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := float64(color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
			sum += v
			sumSq += v * v
		}
	}

	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		// float rounding on uniform images
		variance = 0
	}
	return math.Sqrt(variance)
}

// IsBlank reports whether the image at path has a greyscale standard
// deviation below threshold. Unreadable or missing images are not blank.
func IsBlank(path string, threshold float64) bool {
	sd, err := GrayStdDev(path)
	if err != nil {
		return false
	}
	return sd < threshold
}
