package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestNewDeviceCamera_NotOpen(t *testing.T) {
	cam := NewDeviceCamera(0, 640, 480, false)

	if cam.IsOpen() {
		t.Error("IsOpen() should return false before the first capture")
	}

	if err := cam.Close(); err != nil {
		t.Errorf("Close() on an unopened camera error = %v", err)
	}
}

func TestDeviceCamera_Capture_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cam := NewDeviceCamera(0, 640, 480, true)
	if err := cam.Open(); err != nil {
		t.Skipf("skipping test - camera not available: %v", err)
	}
	defer cam.Close()

	frame, err := cam.CaptureToBuffer(context.Background())
	if err != nil {
		t.Fatalf("CaptureToBuffer() error = %v", err)
	}
	if frame.Empty() {
		t.Error("CaptureToBuffer() returned an empty frame")
	}

	path := filepath.Join(t.TempDir(), "device.jpg")
	if err := cam.CaptureToFile(context.Background(), path); err != nil {
		t.Fatalf("CaptureToFile() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("captured file missing: %v", err)
	}
}

func TestStillCamera_Args(t *testing.T) {
	cam := NewStillCamera(StillConfig{Warmup: 500 * time.Millisecond})

	var gotName string
	var gotArgs []string
	cam.SetRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName = name
		gotArgs = args
		return nil, nil
	})

	if err := cam.CaptureToFile(context.Background(), "scan_TL.jpg"); err != nil {
		t.Fatalf("CaptureToFile() error = %v", err)
	}

	want := []string{"-t", "500", "-o", "scan_TL.jpg", "--width", "640", "--height", "480", "-n"}
	if gotName != "rpicam-still" {
		t.Errorf("command = %q, want rpicam-still", gotName)
	}
	if !reflect.DeepEqual(gotArgs, want) {
		t.Errorf("args = %v, want %v", gotArgs, want)
	}
}

func TestStillCamera_CaptureToFile_Failure(t *testing.T) {
	cam := NewStillCamera(StillConfig{})
	cam.SetRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	})

	err := cam.CaptureToFile(context.Background(), "x.jpg")
	if !errors.Is(err, ErrCapture) {
		t.Errorf("CaptureToFile() error = %v, want ErrCapture", err)
	}
}

func TestStillCamera_CaptureToBuffer_FlipOnlyForBuffer(t *testing.T) {
	cam := NewStillCamera(StillConfig{Flip: true})

	var flips int
	cam.flip = func(b []byte) ([]byte, error) {
		flips++
		return append([]byte("flipped:"), b...), nil
	}
	cam.SetRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("jpeg"), nil
	})

	frame, err := cam.CaptureToBuffer(context.Background())
	if err != nil {
		t.Fatalf("CaptureToBuffer() error = %v", err)
	}
	if string(frame.Data) != "flipped:jpeg" {
		t.Errorf("frame data = %q, want flipped payload", frame.Data)
	}
	if frame.Width != 640 || frame.Height != 480 {
		t.Errorf("frame size = %dx%d, want 640x480", frame.Width, frame.Height)
	}

	if err := cam.CaptureToFile(context.Background(), filepath.Join(t.TempDir(), "f.jpg")); err != nil {
		t.Fatalf("CaptureToFile() error = %v", err)
	}
	if flips != 1 {
		t.Errorf("flip called %d times, want 1 (file captures are not flipped)", flips)
	}
}

func TestStillCamera_CaptureToBuffer_Empty(t *testing.T) {
	cam := NewStillCamera(StillConfig{})
	cam.SetRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, nil
	})

	if _, err := cam.CaptureToBuffer(context.Background()); !errors.Is(err, ErrCapture) {
		t.Errorf("CaptureToBuffer() error = %v, want ErrCapture", err)
	}
}
