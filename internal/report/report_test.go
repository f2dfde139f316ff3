package report

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/emberguard/internal/log"
	"github.com/ayusman/emberguard/internal/response"
	"github.com/ayusman/emberguard/internal/vision"
)

func episode() *response.EpisodeResult {
	grid := response.Grid()
	return &response.EpisodeResult{
		ID:      "ep-1",
		Trigger: response.TriggerCritical,
		Scan: response.ScanReport{
			{Position: grid[0]},
			{Position: grid[4], Detected: true, Confidence: 0.9, Centroid: &vision.Point{X: 330, Y: 250}},
		},
		Best: &response.BestCandidate{
			Label: response.MM, X: 0.5, Y: 0.5, Confidence: 0.9,
			Centroid: &vision.Point{X: 330, Y: 250},
		},
		FireDetected: true,
	}
}

type received struct {
	payload response.Payload
	image   []byte
	name    string
}

func newEndpoint(t *testing.T, status int, got chan<- received) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var rec received
		if err := json.Unmarshal([]byte(r.FormValue("data")), &rec.payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if f, hdr, err := r.FormFile("image"); err == nil {
			rec.image, _ = io.ReadAll(f)
			rec.name = hdr.Filename
			f.Close()
		}
		if got != nil {
			got <- rec
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPSink_Report(t *testing.T) {
	got := make(chan received, 1)
	srv := newEndpoint(t, http.StatusCreated, got)

	artifact := filepath.Join(t.TempDir(), "fire_centered.jpg")
	require.NoError(t, os.WriteFile(artifact, []byte("jpeg-bytes"), 0o644))

	sink, err := NewHTTPSink(HTTPConfig{Endpoint: srv.URL}, nil, log.Discard())
	require.NoError(t, err)

	ep := episode()
	ep.ArtifactPath = artifact
	require.NoError(t, sink.Report(context.Background(), ep))

	rec := <-got
	assert.True(t, rec.payload.FireDetected)
	require.Len(t, rec.payload.ScanResults, 2)
	assert.Equal(t, "TL", rec.payload.ScanResults[0].Pos)
	assert.Nil(t, rec.payload.ScanResults[0].CX)
	require.NotNil(t, rec.payload.BestDetection)
	assert.Equal(t, "MM", rec.payload.BestDetection.Label)
	assert.Equal(t, 330, *rec.payload.BestDetection.CX)
	assert.Equal(t, []byte("jpeg-bytes"), rec.image)
	assert.Equal(t, "fire_centered.jpg", rec.name)
}

func TestHTTPSink_NoArtifact(t *testing.T) {
	got := make(chan received, 1)
	srv := newEndpoint(t, http.StatusCreated, got)

	sink, err := NewHTTPSink(HTTPConfig{Endpoint: srv.URL}, nil, log.Discard())
	require.NoError(t, err)

	ep := episode()
	ep.Best = nil
	ep.FireDetected = false
	ep.ArtifactPath = filepath.Join(t.TempDir(), "missing.jpg")
	require.NoError(t, sink.Report(context.Background(), ep))

	rec := <-got
	assert.Nil(t, rec.payload.BestDetection)
	assert.Nil(t, rec.image)
}

func TestHTTPSink_Non201IsFailure(t *testing.T) {
	srv := newEndpoint(t, http.StatusOK, nil)

	sink, err := NewHTTPSink(HTTPConfig{Endpoint: srv.URL}, nil, log.Discard())
	require.NoError(t, err)

	err = sink.Report(context.Background(), episode())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusOK, se.Code)
}

func TestHTTPSink_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sink, err := NewHTTPSink(HTTPConfig{
		Endpoint:        srv.URL,
		BreakerFailures: 2,
		BreakerTimeout:  time.Hour,
	}, nil, log.Discard())
	require.NoError(t, err)

	ctx := context.Background()
	assert.Error(t, sink.Report(ctx, episode()))
	assert.Error(t, sink.Report(ctx, episode()))
	assert.Equal(t, "open", sink.State())

	err = sink.Report(ctx, episode())
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not reach the endpoint")
}

func TestNewHTTPSink_RequiresEndpoint(t *testing.T) {
	_, err := NewHTTPSink(HTTPConfig{}, nil, nil)
	assert.Error(t, err)
}

func TestMulti_CallsEverySink(t *testing.T) {
	var order []string
	failing := errors.New("broker down")

	m := NewMulti(log.Discard(),
		Named{"store", SinkFunc(func(ctx context.Context, r *response.EpisodeResult) error {
			order = append(order, "store")
			return nil
		})},
		Named{"mqtt", SinkFunc(func(ctx context.Context, r *response.EpisodeResult) error {
			order = append(order, "mqtt")
			return failing
		})},
		Named{"disabled", nil},
	)
	m.Add("http", SinkFunc(func(ctx context.Context, r *response.EpisodeResult) error {
		order = append(order, "http")
		return nil
	}))

	err := m.Report(context.Background(), episode())
	assert.ErrorIs(t, err, failing)
	assert.Equal(t, []string{"store", "mqtt", "http"}, order)
	assert.Equal(t, 3, m.Len())
}

func TestMulti_Empty(t *testing.T) {
	assert.NoError(t, NewMulti(nil).Report(context.Background(), episode()))
}
