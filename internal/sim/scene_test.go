package sim

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/emberguard/internal/vision"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestScene(t *testing.T, igniteAfter time.Duration) (*Scene, *time.Time) {
	t.Helper()
	now := t0
	cfg := DefaultConfig()
	cfg.IgniteAfter = igniteAfter
	s := NewScene(cfg)
	s.now = func() time.Time { return now }
	s.igniteAt = now.Add(igniteAfter)
	return s, &now
}

func TestScene_Ignites(t *testing.T) {
	s, now := newTestScene(t, time.Minute)

	calm, err := s.Sample(*now)
	require.NoError(t, err)
	assert.Equal(t, 12.0, calm.GasLevel)
	assert.False(t, s.Burning())

	*now = now.Add(time.Minute)
	hot, err := s.Sample(*now)
	require.NoError(t, err)
	assert.Equal(t, 180.0, hot.GasLevel)
	assert.Equal(t, 42.0, hot.Temperature)
	assert.Equal(t, *now, hot.Timestamp)
	assert.True(t, s.Burning())
}

func TestScene_DetectFollowsView(t *testing.T) {
	s, _ := newTestScene(t, 0)
	ctx := context.Background()
	head := s.Actuator()

	// Centre of the grid sees the fire up and to the right
	require.NoError(t, head.SetPosition(0.5, 0.5))
	_, err := s.CaptureToBuffer(ctx)
	require.NoError(t, err)
	dets, err := s.Detect(vision.Frame{})
	require.NoError(t, err)
	require.Len(t, dets, 1)
	c := dets[0].Box.Centroid()
	assert.Equal(t, vision.Point{X: 320 + 77, Y: 240 - 43}, c)
	assert.Greater(t, dets[0].Confidence, 0.8)

	// Bottom left cannot see it
	require.NoError(t, head.SetPosition(0, 1))
	_, err = s.CaptureToBuffer(ctx)
	require.NoError(t, err)
	dets, err = s.Detect(vision.Frame{})
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestScene_RelayOnTargetSuppresses(t *testing.T) {
	s, now := newTestScene(t, time.Minute)
	*now = now.Add(time.Minute)
	require.True(t, s.Burning())
	head := s.Actuator()

	// Off target: nothing happens
	require.NoError(t, head.SetPosition(0, 1))
	require.NoError(t, head.SetRelay(true))
	assert.True(t, s.Burning())

	require.NoError(t, head.SetPosition(0.62, 0.41))
	require.NoError(t, head.SetRelay(true))
	assert.False(t, s.Burning())
	assert.Equal(t, 1, s.Suppressed())
	assert.True(t, head.RelayOn())

	// Reignites after the delay
	*now = now.Add(59 * time.Second)
	assert.False(t, s.Burning())
	*now = now.Add(time.Second)
	assert.True(t, s.Burning())
}

func TestScene_ZeroDelayNeverReignites(t *testing.T) {
	s, now := newTestScene(t, 0)
	head := s.Actuator()
	require.True(t, s.Burning())

	require.NoError(t, head.SetPosition(0.62, 0.41))
	require.NoError(t, head.SetRelay(true))

	*now = now.Add(24 * time.Hour)
	assert.False(t, s.Burning())
}

func TestScene_CaptureWritesJPEG(t *testing.T) {
	s, _ := newTestScene(t, 0)
	path := filepath.Join(t.TempDir(), "scan_MM.jpg")

	require.NoError(t, s.CaptureToFile(context.Background(), path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 2)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.CaptureToFile(ctx, path), context.Canceled)
}
