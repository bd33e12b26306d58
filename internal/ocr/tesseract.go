// Package ocr implements a challenge.Solver backed by the tesseract CLI.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
)

const charWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Tesseract decodes challenge images by preprocessing them (grayscale,
// median filter, inverted threshold) and running the tesseract binary in
// single-line mode with an alphanumeric whitelist.
type Tesseract struct {
	binary string
	logger *slog.Logger
}

// New creates a Tesseract solver using the binary found on PATH.
func New() *Tesseract {
	return &Tesseract{binary: "tesseract", logger: slog.Default()}
}

// Available reports whether the tesseract binary can be found. Called at
// preflight so a missing install fails the command, not every attempt.
func (t *Tesseract) Available() error {
	if _, err := exec.LookPath(t.binary); err != nil {
		return fmt.Errorf("tesseract not found on PATH: %w", err)
	}
	return nil
}

// Decode runs OCR over one challenge image and returns the recognized
// text with surrounding whitespace removed.
func (t *Tesseract) Decode(ctx context.Context, imageBytes []byte) (string, error) {
	src, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return "", fmt.Errorf("decoding challenge image: %w", err)
	}

	processed := preprocess(src)

	tmp, err := os.CreateTemp("", "bidwatch-challenge-*.png")
	if err != nil {
		return "", fmt.Errorf("creating temp image: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := png.Encode(tmp, processed); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encoding processed image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, t.binary, tmpPath, "stdout",
		"--psm", "7",
		"--oem", "3",
		"-c", "tessedit_char_whitelist="+charWhitelist,
	)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("running tesseract: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	text := strings.TrimSpace(out.String())
	t.logger.Debug("ocr result", "text", text)
	return text, nil
}

// preprocess converts to grayscale, applies a 3x3 median filter to knock
// out speckle noise, and thresholds inverted: ink (dark pixels) becomes
// white on a black background, which tesseract reads best for these
// challenges.
func preprocess(src image.Image) *image.Gray {
	b := src.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(src.At(x, y)))
		}
	}

	filtered := medianFilter(gray)

	const threshold = 150
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if filtered.GrayAt(x, y).Y > threshold {
				out.SetGray(x, y, color.Gray{Y: 0})
			} else {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

func medianFilter(src *image.Gray) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(b)
	window := make([]int, 0, 9)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			window = window[:0]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < b.Min.X || nx >= b.Max.X || ny < b.Min.Y || ny >= b.Max.Y {
						continue
					}
					window = append(window, int(src.GrayAt(nx, ny).Y))
				}
			}
			sort.Ints(window)
			out.SetGray(x, y, color.Gray{Y: uint8(window[len(window)/2])})
		}
	}
	return out
}
