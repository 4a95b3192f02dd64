// Package preprocessing decodes image files into normalized grayscale
// tensors sized for the classifier input.
package preprocessing

import (
	"fmt"
	"image"
	"os"
	"runtime"
	"sync"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	"glyphnet/tensor"
)

// TargetSize is the square edge length every image is resized to.
const TargetSize = 28

// LoadImage decodes one file as grayscale, resizes it to TargetSize x
// TargetSize with nearest-neighbour sampling (no anti-aliasing) and returns
// intensities normalized to [0, 1] in row-major order.
func LoadImage(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}

	gray := image.NewGray(image.Rect(0, 0, TargetSize, TargetSize))
	xdraw.NearestNeighbor.Scale(gray, gray.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	data := make([]float32, TargetSize*TargetSize)
	for y := 0; y < TargetSize; y++ {
		row := y * gray.Stride
		for x := 0; x < TargetSize; x++ {
			data[y*TargetSize+x] = float32(gray.Pix[row+x]) / 255.0
		}
	}
	return data, nil
}

// LoadImages decodes paths concurrently with a bounded worker pool and
// stacks the results into one tensor shaped (N, TargetSize, TargetSize, 1).
// Result order matches the input path order. The first decode error fails
// the whole load.
func LoadImages(paths []string, workers int) (*tensor.Tensor, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no image paths given")
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	out, err := tensor.New(len(paths), TargetSize, TargetSize, 1)
	if err != nil {
		return nil, err
	}
	errs := make([]error, len(paths))

	jobs := make(chan int, len(paths))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				pixels, err := LoadImage(paths[i])
				if err != nil {
					errs[i] = err
					continue
				}
				copy(out.Data[i*TargetSize*TargetSize:], pixels)
			}
		}()
	}
	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
