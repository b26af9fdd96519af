package types

import "time"

// CatImage is the raw image returned by the image service for a single run
type CatImage struct {
	Data        []byte    `json:"-"`
	ContentType string    `json:"content_type"`
	SourceURL   string    `json:"source_url"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Size returns the number of bytes in the image
func (c *CatImage) Size() int {
	if c == nil {
		return 0
	}
	return len(c.Data)
}

// Description is the vision model's account of a CatImage
type Description string

// Tagline is the caption generated from a Description
type Tagline string

// Result holds the artifacts of one pipeline run. Fields are filled as stages
// complete, so a failed run still carries whatever was produced before it.
type Result struct {
	Image       *CatImage   `json:"image,omitempty"`
	ImagePath   string      `json:"image_path,omitempty"`
	Description Description `json:"description,omitempty"`
	Tagline     Tagline     `json:"tagline,omitempty"`
}

// Complete reports whether every stage produced its artifact
func (r *Result) Complete() bool {
	return r != nil && r.Image != nil && r.Description != "" && r.Tagline != ""
}

// VisionRequest is a single image-to-text request sent to a model backend
type VisionRequest struct {
	Model     string
	Prompt    string
	ImageB64  string
	MIMEType  string
	MaxTokens int
}

// TextRequest is a single text-to-text request sent to a model backend
type TextRequest struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}
