// Package phash samples frames from a video and computes a DCT-based
// perceptual hash per frame (spec §4.7, C7).
package phash

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"os/exec"
	"sort"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	vserrors "github.com/markperdomo/videosentinel/internal/errors"
	"github.com/markperdomo/videosentinel/internal/probe"
	"github.com/markperdomo/videosentinel/internal/util"
)

// frameMemoryBytes estimates the peak memory one in-flight frame extraction
// holds (a decoded JPEG plus its downsampled luminance grid); used to bound
// worker count the same way the teacher bounds in-flight encode chunks.
const frameMemoryBytes = 64 << 20

// hashWorkerCount picks how many frames HashVideo extracts concurrently:
// never more cores than the host has, and never so many that decoding
// every in-flight frame could exhaust half of available memory.
func hashWorkerCount(n int) int {
	workers := util.MaxPermitsForMemory(frameMemoryBytes, 0.5)
	if cores := util.LogicalCores(); cores < workers {
		workers = cores
	}
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// FrameHash is a bit-string of fixed width W×W bits (spec §3; default
// W=12 -> 144 bits). true means the coefficient is above the frame's
// median.
type FrameHash []bool

// downsampleGrid is the luminance grid size a frame is reduced to before
// the DCT (spec §4.7: "a common choice: 4W×4W").
func downsampleGrid(w int) int { return 4 * w }

// HashVideo samples n evenly-spaced frames from path and returns one
// FrameHash of width w×w per successfully decoded frame (spec §4.7).
// Positions whose frame fails to decode are skipped; if fewer than n/2
// frames succeed, HashFailed is returned.
func HashVideo(ctx context.Context, path string, n, w int, tempDir string) ([]FrameHash, error) {
	info, err := probe.Probe(path)
	if err != nil {
		return nil, vserrors.NewHashError(path, err)
	}
	if info.ProbeInvalid() || info.DurationSecs <= 0 {
		return nil, vserrors.NewHashError(path, fmt.Errorf("duration unknown or non-positive"))
	}

	positions := evenlySpacedPositions(info.DurationSecs, n)

	results := make([]FrameHash, len(positions))
	workers := hashWorkerCount(len(positions))
	jobs := make(chan int, len(positions))
	for i := range positions {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				hash, err := hashAt(ctx, path, positions[i], w, tempDir)
				if err != nil {
					continue
				}
				results[i] = hash
			}
		}()
	}
	wg.Wait()

	hashes := make([]FrameHash, 0, n)
	for _, h := range results {
		if h != nil {
			hashes = append(hashes, h)
		}
	}

	if len(hashes) < n/2 {
		return nil, vserrors.NewHashError(path, fmt.Errorf("only %d/%d frames decoded successfully", len(hashes), n))
	}
	return hashes, nil
}

// evenlySpacedPositions returns n seek times in [0, duration).
func evenlySpacedPositions(duration float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	positions := make([]float64, n)
	step := duration / float64(n)
	for i := 0; i < n; i++ {
		positions[i] = step * float64(i)
	}
	return positions
}

// hashAt extracts, decodes, and hashes the single frame at seekSecs.
func hashAt(ctx context.Context, path string, seekSecs float64, w int, tempDir string) (FrameHash, error) {
	framePath, err := util.CreateTempFilePath(tempDir, "phash_frame", "jpg")
	if err != nil {
		return nil, err
	}
	defer os.Remove(framePath)

	if err := extractFrame(ctx, path, seekSecs, framePath); err != nil {
		return nil, err
	}

	luma, err := decodeLuminanceGrid(framePath, downsampleGrid(w))
	if err != nil {
		return nil, err
	}

	return hashGrid(luma, w), nil
}

// extractFrame shells the encoder tool to decode a single frame at
// seekSecs into a JPEG at outPath (spec §6 names only probe/encoder as
// external tools; frame grabbing reuses the encoder invocation with a
// single-frame image2 output, the same way the teacher drives ffmpeg for
// one-shot analysis passes like crop detection).
func extractFrame(ctx context.Context, path string, seekSecs float64, outPath string) error {
	args := []string{
		"-ss", fmt.Sprintf("%.3f", seekSecs),
		"-i", path,
		"-vframes", "1",
		"-f", "image2",
		"-vcodec", "mjpeg",
		outPath,
	}
	cmd := exec.CommandContext(ctx, "encoder", args...)
	if err := cmd.Run(); err != nil {
		return vserrors.NewHashError(path, err)
	}
	return nil
}

// decodeLuminanceGrid decodes a JPEG frame, converts it to luminance, and
// downsamples (by box averaging) to a gridSize×gridSize grid.
func decodeLuminanceGrid(path string, gridSize int) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := jpeg.Decode(f)
	if err != nil {
		return nil, err
	}

	return downsampleLuminance(img, gridSize), nil
}

// downsampleLuminance reduces img to a gridSize×gridSize grid of
// luminance values via box averaging over the corresponding source
// region for each output cell.
func downsampleLuminance(img image.Image, gridSize int) [][]float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	grid := make([][]float64, gridSize)
	for gy := 0; gy < gridSize; gy++ {
		grid[gy] = make([]float64, gridSize)
		y0 := bounds.Min.Y + gy*height/gridSize
		y1 := bounds.Min.Y + (gy+1)*height/gridSize
		if y1 <= y0 {
			y1 = y0 + 1
		}
		for gx := 0; gx < gridSize; gx++ {
			x0 := bounds.Min.X + gx*width/gridSize
			x1 := bounds.Min.X + (gx+1)*width/gridSize
			if x1 <= x0 {
				x1 = x0 + 1
			}

			var sum float64
			var count int
			for y := y0; y < y1 && y < bounds.Max.Y; y++ {
				for x := x0; x < x1 && x < bounds.Max.X; x++ {
					r, g, b, _ := img.At(x, y).RGBA()
					// Rec. 601 luma, operating on the 16-bit channel values
					// RGBA() returns.
					lum := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
					sum += lum
					count++
				}
			}
			if count > 0 {
				grid[gy][gx] = sum / float64(count)
			}
		}
	}
	return grid
}

// hashGrid runs a 2-D DCT-II over grid, keeps the top-left w×w
// low-frequency block (excluding the DC term at [0][0]), and thresholds
// each retained coefficient against their shared median (spec §4.7).
func hashGrid(grid [][]float64, w int) FrameHash {
	dctGrid := dct2D(grid)

	coeffs := make([]float64, 0, w*w)
	for y := 0; y < w; y++ {
		for x := 0; x < w; x++ {
			if x == 0 && y == 0 {
				continue // DC term carries absolute brightness, not structure.
			}
			coeffs = append(coeffs, dctGrid[y][x])
		}
	}

	median := medianOf(coeffs)

	hash := make(FrameHash, 0, w*w)
	for y := 0; y < w; y++ {
		for x := 0; x < w; x++ {
			if x == 0 && y == 0 {
				hash = append(hash, false)
				continue
			}
			hash = append(hash, dctGrid[y][x] > median)
		}
	}
	return hash
}

// dct2D applies a separable 2-D DCT-II: one 1-D DCT per row, then one
// per column of the row-transformed result.
func dct2D(grid [][]float64) [][]float64 {
	n := len(grid)
	if n == 0 {
		return grid
	}
	m := len(grid[0])

	rowDCT := fourier.NewDCT(m)
	rows := make([][]float64, n)
	for y := 0; y < n; y++ {
		rows[y] = rowDCT.Transform(nil, grid[y])
	}

	colDCT := fourier.NewDCT(n)
	out := make([][]float64, n)
	for y := 0; y < n; y++ {
		out[y] = make([]float64, m)
	}
	column := make([]float64, n)
	for x := 0; x < m; x++ {
		for y := 0; y < n; y++ {
			column[y] = rows[y][x]
		}
		transformed := colDCT.Transform(nil, column)
		for y := 0; y < n; y++ {
			out[y][x] = transformed[y]
		}
	}
	return out
}

func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
