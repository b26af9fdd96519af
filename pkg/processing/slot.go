package processing

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/menta2k/cat-tagline/internal/utils"
	"github.com/menta2k/cat-tagline/pkg/types"
)

// Slot is a single image file that is overwritten on every successful fetch.
type Slot struct {
	Path     string
	Quality  int
	Lossless bool

	processor *Processor
}

// NewSlot creates a slot writing to path. The output format follows the file
// extension (jpg, png or webp).
func NewSlot(path string, quality int) *Slot {
	return &Slot{
		Path:      path,
		Quality:   quality,
		processor: NewProcessor(),
	}
}

// Save validates the image bytes, re-encodes them into the slot format and
// replaces the previous file. The replacement is atomic: readers see either the
// old image or the new one.
func (s *Slot) Save(cat *types.CatImage) (string, error) {
	if cat == nil {
		return "", fmt.Errorf("save image: %w", ErrUnsupportedImage)
	}

	img, _, err := s.processor.DecodeImage(cat.Data)
	if err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := utils.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".slot-*"+filepath.Ext(s.Path))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := s.processor.Encode(tmp, img, formatFromPath(s.Path), s.Quality, s.Lossless); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return "", fmt.Errorf("failed to replace %s: %w", s.Path, err)
	}

	return s.Path, nil
}

func formatFromPath(path string) string {
	ext := utils.GetFileExtension(path)
	if ext == "" {
		return "jpg"
	}
	return ext
}
