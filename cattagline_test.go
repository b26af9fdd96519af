package cattagline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/menta2k/cat-tagline/internal/config"
	"github.com/menta2k/cat-tagline/pkg/credentials"
	"github.com/menta2k/cat-tagline/pkg/pipeline"
	"github.com/menta2k/cat-tagline/pkg/types"
)

// createTestImage creates a simple test image with a bright subject in the center
func createTestImage(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/3 && y < 2*height/3 {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.RGBA{64, 64, 64, 255})
			}
		}
	}

	var buf bytes.Buffer
	jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}

func chatCompletion(content string) string {
	return `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",` +
		`"choices":[{"index":0,"message":{"role":"assistant","content":"` + content + `"},"finish_reason":"stop"}]}`
}

type testEnv struct {
	cfg        *config.Config
	imageHits  atomic.Int32
	modelHits  atomic.Int32
	imageBytes int
}

// newTestEnv starts a fake image service and a fake OpenAI server, and writes a
// .env file holding the key when withKey is set
func newTestEnv(t *testing.T, withKey bool) *testEnv {
	t.Helper()
	env := &testEnv{}
	jpg := createTestImage(300, 200)
	env.imageBytes = len(jpg)

	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.imageHits.Add(1)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpg)
	}))
	t.Cleanup(images.Close)

	models := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.modelHits.Add(1)
		if r.Header.Get("Authorization") != "Bearer sk-local" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":{"message":"Incorrect API key provided"}}`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(string(body), "image_url") {
			io.WriteString(w, chatCompletion("A grey cat with a white patch staring into the camera."))
			return
		}
		io.WriteString(w, chatCompletion(`\"Grey-t expectations.\"`))
	}))
	t.Cleanup(models.Close)

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if withKey {
		if err := os.WriteFile(envFile, []byte("OPENAI_API_KEY=sk-local\n"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.Default()
	cfg.Fetch.URL = images.URL
	cfg.Fetch.Timeout = time.Second
	cfg.Provider.BaseURL = models.URL
	cfg.Provider.Timeout = time.Second
	cfg.Image.SavePath = filepath.Join(dir, "current_cat.jpg")
	cfg.Credentials.LocalFile = envFile
	cfg.Credentials.Hosted.Kind = "dir"
	cfg.Credentials.Hosted.SecretsDir = filepath.Join(dir, "secrets")
	env.cfg = cfg
	return env
}

func TestNew(t *testing.T) {
	app, err := New(config.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer app.Close()

	if app.Resolver() == nil || app.Analyzer() == nil || app.Config() == nil {
		t.Error("components should be set")
	}
	if app.Resolver().AcceptsPrompt() {
		t.Error("prompt source should be dropped unless interactive")
	}

	interactive, err := New(config.Default(), Interactive())
	if err != nil {
		t.Fatal(err)
	}
	if !interactive.Resolver().AcceptsPrompt() {
		t.Error("interactive instance should accept a prompt")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Provider.Name = "unknown"
	if _, err := New(cfg); err == nil {
		t.Error("Expected error for invalid config")
	}
}

func TestRunEndToEnd(t *testing.T) {
	env := newTestEnv(t, true)
	app, err := New(env.cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	var stages []pipeline.Stage
	result, res, err := app.Run(context.Background(), app.Resolver(), func(s pipeline.Stage, r *types.Result) {
		stages = append(stages, s)
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Kind != credentials.KindFile {
		t.Errorf("Expected key from the local file, got %s", res.Kind)
	}
	if result.Image.Size() != env.imageBytes {
		t.Errorf("Expected %d bytes, got %d", env.imageBytes, result.Image.Size())
	}
	if result.Description != "A grey cat with a white patch staring into the camera." {
		t.Errorf("Unexpected description %q", result.Description)
	}
	if result.Tagline != "Grey-t expectations." {
		t.Errorf("Unexpected tagline %q", result.Tagline)
	}
	if _, err := os.Stat(result.ImagePath); err != nil {
		t.Errorf("image slot not written: %v", err)
	}
	if len(stages) != 4 {
		t.Errorf("Expected fetch, save, describe and generate, got %v", stages)
	}
	if env.imageHits.Load() != 1 || env.modelHits.Load() != 2 {
		t.Errorf("Expected 1 image and 2 model calls, got %d and %d", env.imageHits.Load(), env.modelHits.Load())
	}
}

func TestRunWithoutCredential(t *testing.T) {
	env := newTestEnv(t, false)
	app, err := New(env.cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	_, res, err := app.Run(context.Background(), app.Resolver(), nil)
	if res.State != credentials.Unavailable {
		t.Errorf("Expected Unavailable, got %s", res.State)
	}
	if err == nil || !strings.Contains(err.Error(), ".env") {
		t.Errorf("Expected message naming the .env file, got %v", err)
	}
	if env.imageHits.Load() != 0 || env.modelHits.Load() != 0 {
		t.Error("no network call may happen without a credential")
	}
}

func TestRunWithRejectedPrompt(t *testing.T) {
	env := newTestEnv(t, false)
	app, err := New(env.cfg, Interactive())
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	result, _, err := app.Run(context.Background(), app.Resolver().WithPrompt("sk-wrong"), nil)
	if !errors.Is(err, credentials.ErrRejected) {
		t.Fatalf("Expected rejected credential, got %v", err)
	}
	if result.Image == nil {
		t.Error("the image should survive a failed describe")
	}
	if env.modelHits.Load() != 1 {
		t.Errorf("Expected a single model call, got %d", env.modelHits.Load())
	}
}

func TestNewSources(t *testing.T) {
	cfg := config.Default()
	cfg.Credentials.Hosted.Kind = "redis"
	cfg.Credentials.Hosted.RedisURL = "redis://localhost:6379/0"

	sources, closers, err := NewSources(cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	defer closeAll(closers)

	var kinds []string
	for _, s := range sources {
		kinds = append(kinds, s.Kind().String())
	}
	if strings.Join(kinds, ",") != "file,hosted,prompt" {
		t.Errorf("Unexpected source order %v", kinds)
	}
	if len(closers) != 1 {
		t.Errorf("redis source should be closed by the caller")
	}

	cfg.Credentials.Hosted.RedisURL = "::not a url"
	if _, _, err := NewSources(cfg, false); err == nil {
		t.Error("Expected error for invalid redis url")
	}
}

func TestClientFactoryProviders(t *testing.T) {
	for _, provider := range []string{"openai", "ollama", "gemini"} {
		cfg := config.Default()
		cfg.Provider.Name = provider

		c, err := NewClientFactory(cfg)(context.Background(), "sk-test")
		if err != nil {
			t.Fatalf("%s: %v", provider, err)
		}
		if c.Name() != provider {
			t.Errorf("Expected %s client, got %s", provider, c.Name())
		}
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version || Version == "" {
		t.Errorf("GetVersion() returned %s, expected %s", GetVersion(), Version)
	}
}
