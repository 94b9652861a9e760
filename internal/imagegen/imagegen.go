// Package imagegen talks to the external character image provider.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/blake2b"
)

// Config holds image provider configuration
type Config struct {
	URL         string        `env:"IMAGEGEN_URL"`
	APIKey      string        `env:"IMAGEGEN_API_KEY"`
	Timeout     time.Duration `env:"IMAGEGEN_TIMEOUT" envDefault:"30s"`
	Attempts    int           `env:"IMAGEGEN_ATTEMPTS" envDefault:"3"`
	BaseBackoff time.Duration `env:"IMAGEGEN_BACKOFF" envDefault:"500ms"`
}

// LoadConfigFromEnv loads image provider configuration from environment variables
func LoadConfigFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse imagegen config: %w", err)
	}
	return cfg, nil
}

// ErrGenerationFailed wraps the last provider error once retries run out.
var ErrGenerationFailed = errors.New("image generation failed")

// Request describes the character to draw.
type Request struct {
	Seed      string `json:"seed"`
	Level     int    `json:"level"`
	Legendary bool   `json:"legendary"`
}

// Image is a generated character image. Data is empty when the provider
// hosts the image itself and only returns URL.
type Image struct {
	Data        []byte
	ContentType string
	URL         string
	Traits      json.RawMessage
}

// Generator produces character images.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Image, error)
}

// HTTPGenerator posts requests to a JSON image API.
type HTTPGenerator struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPGenerator creates a generator for the provider at cfg.URL.
func NewHTTPGenerator(cfg *Config) *HTTPGenerator {
	return &HTTPGenerator{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type generateResponse struct {
	ImageBase64 string          `json:"image_base64"`
	ImageURL    string          `json:"image_url"`
	ContentType string          `json:"content_type"`
	Traits      json.RawMessage `json:"traits"`
}

// Generate calls the provider once.
func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (*Image, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("provider returned %s: %s", strconv.Itoa(resp.StatusCode), strings.TrimSpace(string(msg)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}

	img := &Image{ContentType: out.ContentType, URL: out.ImageURL, Traits: out.Traits}
	if out.ImageBase64 != "" {
		img.Data, err = base64.StdEncoding.DecodeString(out.ImageBase64)
		if err != nil {
			return nil, fmt.Errorf("decode image data: %w", err)
		}
	}
	if len(img.Data) == 0 && img.URL == "" {
		return nil, errors.New("provider returned no image")
	}
	if img.ContentType == "" {
		img.ContentType = "image/png"
	}
	if len(img.Traits) == 0 {
		img.Traits = json.RawMessage(`{}`)
	}
	return img, nil
}

// GenerateWithRetry calls gen up to attempts times, sleeping base, 2*base,
// 4*base and so on between failures.
func GenerateWithRetry(ctx context.Context, gen Generator, req Request, attempts int, base time.Duration) (*Image, error) {
	return generateWithRetry(ctx, gen, req, attempts, base, sleepCtx)
}

func generateWithRetry(ctx context.Context, gen Generator, req Request, attempts int, base time.Duration, sleep func(context.Context, time.Duration) error) (*Image, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	delay := base
	for attempt := 1; attempt <= attempts; attempt++ {
		img, err := gen.Generate(ctx, req)
		if err == nil {
			return img, nil
		}
		lastErr = err
		log.Printf("[ImageGen] Attempt %d/%d failed: %v", attempt, attempts, err)
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		}
		delay *= 2
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrGenerationFailed, attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Seed derives a stable per-user generation seed.
func Seed(userID int64, wallet string) string {
	sum := blake2b.Sum256([]byte(strconv.FormatInt(userID, 10) + ":" + strings.ToLower(wallet)))
	return hex.EncodeToString(sum[:])
}
