package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ayusman/emberguard/internal/response"
)

// ErrBreakerOpen is returned without contacting the endpoint while the
// breaker is open.
var ErrBreakerOpen = errors.New("reporting endpoint unavailable")

// StatusError is a non-201 response from the endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("report rejected: %d %s", e.Code, e.Body)
}

// HTTPConfig configures an HTTPSink.
type HTTPConfig struct {
	Endpoint        string
	Timeout         time.Duration
	BreakerFailures uint32        // consecutive failures that open the breaker
	BreakerTimeout  time.Duration // how long the breaker stays open
}

// HTTPSink posts the episode payload as multipart form data. The form field
// "data" carries the JSON payload and "image" the centered artifact, if any.
// Only 201 Created counts as success. Failures are not retried.
type HTTPSink struct {
	endpoint string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewHTTPSink creates an HTTPSink. A nil client gets one with the
// configured timeout.
func NewHTTPSink(cfg HTTPConfig, client *http.Client, logger *slog.Logger) (*HTTPSink, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("report endpoint is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 3
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "report",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("report breaker state changed", "from", from.String(), "to", to.String())
		},
	})

	return &HTTPSink{
		endpoint: cfg.Endpoint,
		client:   client,
		breaker:  breaker,
		logger:   logger,
	}, nil
}

// State returns the breaker state name.
func (s *HTTPSink) State() string {
	return s.breaker.State().String()
}

// Report sends one episode.
func (s *HTTPSink) Report(ctx context.Context, result *response.EpisodeResult) error {
	body, contentType, err := encode(result)
	if err != nil {
		return err
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.post(ctx, body, contentType)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrBreakerOpen, err)
	}
	if err != nil {
		return err
	}

	s.logger.Info("episode reported", "episode", result.ID, "fire_detected", result.FireDetected)
	return nil
}

func (s *HTTPSink) post(ctx context.Context, body []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// encode builds the multipart body. A missing artifact file sends the data
// part alone.
func encode(result *response.EpisodeResult) ([]byte, string, error) {
	payload, err := json.Marshal(result.Payload())
	if err != nil {
		return nil, "", fmt.Errorf("encode payload: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("data", string(payload)); err != nil {
		return nil, "", err
	}

	if result.ArtifactPath != "" {
		img, err := os.ReadFile(result.ArtifactPath)
		switch {
		case err == nil:
			part, err := mw.CreateFormFile("image", filepath.Base(result.ArtifactPath))
			if err != nil {
				return nil, "", err
			}
			if _, err := part.Write(img); err != nil {
				return nil, "", err
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, "", fmt.Errorf("read artifact: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
