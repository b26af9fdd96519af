package analyzer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/menta2k/cat-tagline/internal/utils"
	"github.com/menta2k/cat-tagline/pkg/processing"
	"github.com/menta2k/cat-tagline/pkg/types"
)

// ImageAnalyzer inspects fetched images and prepares them for display
type ImageAnalyzer struct {
	config    Config
	processor *processing.Processor
}

// Config holds configuration for the image analyzer
type Config struct {
	SupportedFormats []string
	MinImageSize     int
	PreviewMaxDim    int
	PreviewQuality   int
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return NewWithConfig(Config{
		SupportedFormats: []string{"jpeg", "png", "gif", "webp"},
		MinImageSize:     16,
		PreviewMaxDim:    800,
		PreviewQuality:   85,
	})
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config, processor: processing.NewProcessor()}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int
	Height      int
	AspectRatio float64
	Format      string
	Bytes       int
}

func (i ImageInfo) String() string {
	return fmt.Sprintf("%d×%d %s, %s", i.Width, i.Height, i.Format, utils.FormatFileSize(int64(i.Bytes)))
}

// Inspect decodes cat and reports its dimensions and format
func (a *ImageAnalyzer) Inspect(cat *types.CatImage) (ImageInfo, error) {
	img, format, err := a.decode(cat)
	if err != nil {
		return ImageInfo{}, err
	}
	info := a.GetImageInfo(img)
	info.Format = format
	info.Bytes = cat.Size()
	return info, nil
}

// GetImageInfo returns basic information about an image
func (a *ImageAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{Width: width, Height: height}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// ValidateImage checks if an image meets minimum requirements
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), a.config.MinImageSize)
	}
	return nil
}

// Preview returns cat as a JPEG data URL no larger than PreviewMaxDim on
// either side, for embedding in a page
func (a *ImageAnalyzer) Preview(cat *types.CatImage) (string, error) {
	img, _, err := a.decode(cat)
	if err != nil {
		return "", err
	}

	if limit := a.config.PreviewMaxDim; limit > 0 {
		b := img.Bounds()
		if b.Dx() > limit || b.Dy() > limit {
			img = imaging.Fit(img, limit, limit, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := a.processor.Encode(&buf, img, "jpg", a.config.PreviewQuality, false); err != nil {
		return "", fmt.Errorf("failed to encode preview: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (a *ImageAnalyzer) decode(cat *types.CatImage) (image.Image, string, error) {
	if cat == nil || len(cat.Data) == 0 {
		return nil, "", fmt.Errorf("no image data: %w", processing.ErrUnsupportedImage)
	}
	img, format, err := a.processor.DecodeImage(cat.Data)
	if err != nil {
		return nil, "", err
	}
	if !a.isFormatSupported(format) {
		return nil, "", fmt.Errorf("unsupported image format: %s", format)
	}
	if err := a.ValidateImage(img); err != nil {
		return nil, "", err
	}
	return img, format, nil
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}
