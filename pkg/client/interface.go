package client

import (
	"context"

	"github.com/menta2k/cat-tagline/pkg/types"
)

// ModelClient is a hosted model backend able to describe images and complete text
type ModelClient interface {
	Name() string
	DescribeImage(ctx context.Context, req types.VisionRequest) (string, error)
	Complete(ctx context.Context, req types.TextRequest) (string, error)
}
