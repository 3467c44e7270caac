package imagestat

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "shot.png")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return p
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestStdDev_Uniform(t *testing.T) {
	if sd := StdDev(solid(40, 30, color.White)); sd != 0 {
		t.Errorf("uniform white image: stddev = %v, want 0", sd)
	}
}

func TestStdDev_HalfBlackHalfWhite(t *testing.T) {
	img := solid(10, 10, color.White)
	for y := 0; y < 10; y++ {
		for x := 0; x < 5; x++ {
			img.Set(x, y, color.Black)
		}
	}
	// Intensities 0 and 255 in equal share: population stddev is 127.5.
	if sd := StdDev(img); sd < 127.4 || sd > 127.6 {
		t.Errorf("stddev = %v, want 127.5", sd)
	}
}

func TestStdDev_Empty(t *testing.T) {
	if sd := StdDev(image.NewRGBA(image.Rect(0, 0, 0, 0))); sd != 0 {
		t.Errorf("empty image: stddev = %v, want 0", sd)
	}
}

func TestIsBlank(t *testing.T) {
	blank := writePNG(t, solid(64, 64, color.RGBA{R: 250, G: 250, B: 250, A: 255}))

	busy := solid(64, 64, color.White)
	for y := 0; y < 64; y += 2 {
		for x := 0; x < 64; x++ {
			busy.Set(x, y, color.RGBA{R: 20, G: 40, B: 200, A: 255})
		}
	}
	striped := writePNG(t, busy)

	garbage := filepath.Join(t.TempDir(), "corrupt.png")
	if err := os.WriteFile(garbage, []byte("definitely not a png"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"uniform image", blank, true},
		{"striped image", striped, false},
		{"missing file", filepath.Join(t.TempDir(), "nope.png"), false},
		{"corrupt file", garbage, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBlank(tt.path, 2.0); got != tt.want {
				t.Errorf("IsBlank(%s) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestGrayStdDev_Errors(t *testing.T) {
	if _, err := GrayStdDev(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("expected error for missing file")
	}
}
