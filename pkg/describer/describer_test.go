package describer

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/menta2k/cat-tagline/pkg/client"
	"github.com/menta2k/cat-tagline/pkg/processing"
	"github.com/menta2k/cat-tagline/pkg/types"
)

type fakeClient struct {
	reply string
	err   error
	calls []types.VisionRequest
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) DescribeImage(ctx context.Context, req types.VisionRequest) (string, error) {
	f.calls = append(f.calls, req)
	return f.reply, f.err
}

func (f *fakeClient) Complete(ctx context.Context, req types.TextRequest) (string, error) {
	return "", errors.New("not used")
}

func catImage(t *testing.T, w, h int) *types.CatImage {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{200, uint8(x % 256), uint8(y % 256), 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return &types.CatImage{Data: buf.Bytes(), ContentType: "image/jpeg"}
}

func TestDescribe(t *testing.T) {
	fc := &fakeClient{reply: "  An orange cat judging you from a shelf.\n"}
	d := NewWithConfig(fc, Config{Model: "gpt-4o-mini", SendMaxDim: 64})

	desc, err := d.Describe(context.Background(), catImage(t, 256, 128))
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if desc != "An orange cat judging you from a shelf." {
		t.Errorf("Unexpected description %q", desc)
	}

	if len(fc.calls) != 1 {
		t.Fatalf("Expected exactly one model call, got %d", len(fc.calls))
	}
	req := fc.calls[0]
	if req.Prompt != DefaultPrompt || req.MaxTokens != DefaultMaxTokens || req.Model != "gpt-4o-mini" {
		t.Errorf("Unexpected request settings: %+v", req)
	}
	if req.MIMEType != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %s", req.MIMEType)
	}

	raw, err := base64.StdEncoding.DecodeString(req.ImageB64)
	if err != nil {
		t.Fatal(err)
	}
	sent, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("sent image is not a JPEG: %v", err)
	}
	if sent.Bounds().Dx() != 64 {
		t.Errorf("Expected image downscaled to 64px wide, got %d", sent.Bounds().Dx())
	}
}

func TestDescribePropagatesClientError(t *testing.T) {
	cause := client.Wrap(client.ErrAuth, errors.New("401"))
	fc := &fakeClient{err: cause}
	d := New(fc, "m")

	_, err := d.Describe(context.Background(), catImage(t, 32, 32))
	if !errors.Is(err, client.ErrAuth) {
		t.Errorf("Expected ErrAuth, got %v", err)
	}
}

func TestDescribeEmptyReplyIsMalformed(t *testing.T) {
	d := New(&fakeClient{reply: "   "}, "m")

	if _, err := d.Describe(context.Background(), catImage(t, 32, 32)); !errors.Is(err, client.ErrMalformed) {
		t.Errorf("Expected ErrMalformed, got %v", err)
	}
}

func TestDescribeUndecodableImage(t *testing.T) {
	fc := &fakeClient{reply: "cat"}
	d := New(fc, "m")

	_, err := d.Describe(context.Background(), &types.CatImage{Data: []byte("not an image")})
	if !errors.Is(err, processing.ErrUnsupportedImage) {
		t.Errorf("Expected ErrUnsupportedImage, got %v", err)
	}
	if len(fc.calls) != 0 {
		t.Error("undecodable image must not reach the model")
	}
}
