package preprocessing

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"glyphnet/tensor"
)

func writePNG(t *testing.T, path string, width, height int, fill color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()

	t.Run("ResizesAndNormalizes", func(t *testing.T) {
		path := filepath.Join(dir, "white.png")
		writePNG(t, path, 64, 48, color.White)

		pixels, err := LoadImage(path)
		if err != nil {
			t.Fatalf("LoadImage failed: %v", err)
		}
		if len(pixels) != TargetSize*TargetSize {
			t.Fatalf("got %d pixels, expected %d", len(pixels), TargetSize*TargetSize)
		}
		for i, v := range pixels {
			if v < 0.99 || v > 1.0 {
				t.Fatalf("pixel %d = %v, expected ~1.0 for a white image", i, v)
			}
		}
	})

	t.Run("BlackImage", func(t *testing.T) {
		path := filepath.Join(dir, "black.png")
		writePNG(t, path, 10, 10, color.Black)

		pixels, err := LoadImage(path)
		if err != nil {
			t.Fatalf("LoadImage failed: %v", err)
		}
		for i, v := range pixels {
			if v != 0 {
				t.Fatalf("pixel %d = %v, expected 0 for a black image", i, v)
			}
		}
	})

	t.Run("UndecodableFile", func(t *testing.T) {
		path := filepath.Join(dir, "junk.png")
		if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadImage(path); err == nil {
			t.Error("Expected decode error")
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := LoadImage(filepath.Join(dir, "absent.png")); err == nil {
			t.Error("Expected open error")
		}
	})
}

func TestLoadImages(t *testing.T) {
	dir := t.TempDir()

	white := filepath.Join(dir, "white.png")
	black := filepath.Join(dir, "black.png")
	writePNG(t, white, 30, 30, color.White)
	writePNG(t, black, 30, 30, color.Black)

	t.Run("StacksInInputOrder", func(t *testing.T) {
		images, err := LoadImages([]string{white, black, white}, 2)
		if err != nil {
			t.Fatalf("LoadImages failed: %v", err)
		}
		if !tensor.ShapesEqual(images.Shape, []int{3, TargetSize, TargetSize, 1}) {
			t.Fatalf("shape = %v, expected [3 28 28 1]", images.Shape)
		}

		perImage := TargetSize * TargetSize
		if images.Data[0] < 0.99 {
			t.Error("image 0 should be white")
		}
		if images.Data[perImage] != 0 {
			t.Error("image 1 should be black")
		}
		if images.Data[2*perImage] < 0.99 {
			t.Error("image 2 should be white")
		}
	})

	t.Run("FailsFastOnBadImage", func(t *testing.T) {
		junk := filepath.Join(dir, "junk.bin")
		if err := os.WriteFile(junk, []byte("nope"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadImages([]string{white, junk}, 1); err == nil {
			t.Error("Expected error for undecodable file")
		}
	})

	t.Run("EmptyInput", func(t *testing.T) {
		if _, err := LoadImages(nil, 1); err == nil {
			t.Error("Expected error for empty path list")
		}
	})
}
