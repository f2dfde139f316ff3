// Package capture provides still-image capture for the scan and tracking loops.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/emberguard/internal/vision"
)

// Default camera settings
const (
	DefaultWidth  = vision.DefaultWidth
	DefaultHeight = vision.DefaultHeight
)

var (
	// ErrCapture is the CaptureFailure class; every capture error wraps it.
	ErrCapture = errors.New("capture failed")
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
)

// Camera is a still-image frame source.
type Camera interface {
	// CaptureToFile writes one JPEG to path. No flip correction is applied.
	CaptureToFile(ctx context.Context, path string) error
	// CaptureToBuffer returns one JPEG in memory, flipped if the camera is configured to.
	CaptureToBuffer(ctx context.Context) (vision.Frame, error)
	// Close releases the device.
	Close() error
}

// DeviceCamera captures from a V4L2/USB device through GoCV.
type DeviceCamera struct {
	deviceID int
	width    int
	height   int
	flip     bool
	capture  *gocv.VideoCapture
}

// NewDeviceCamera creates a DeviceCamera. The device is opened lazily.
func NewDeviceCamera(deviceID, width, height int, flip bool) *DeviceCamera {
	return &DeviceCamera{
		deviceID: deviceID,
		width:    width,
		height:   height,
		flip:     flip,
	}
}

// Open opens the camera and sets the capture resolution.
func (c *DeviceCamera) Open() error {
	if c.capture != nil {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.deviceID)
	if err != nil {
		return fmt.Errorf("%w: open device %d: %v", ErrCapture, c.deviceID, err)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.height))

	c.capture = capture
	return nil
}

// IsOpen returns true if the device is open.
func (c *DeviceCamera) IsOpen() bool {
	return c.capture != nil
}

// Close closes the camera and releases resources.
func (c *DeviceCamera) Close() error {
	if c.capture == nil {
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	return err
}

// readMat reads a single frame. The caller is responsible for closing the returned Mat.
func (c *DeviceCamera) readMat() (gocv.Mat, error) {
	if err := c.Open(); err != nil {
		return gocv.Mat{}, err
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return gocv.Mat{}, fmt.Errorf("%w: failed to read frame from camera", ErrCapture)
	}

	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, fmt.Errorf("%w: captured frame is empty", ErrCapture)
	}

	return mat, nil
}

// CaptureToFile grabs one frame and writes it to path.
func (c *DeviceCamera) CaptureToFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mat, err := c.readMat()
	if err != nil {
		return err
	}
	defer mat.Close()

	if ok := gocv.IMWrite(path, mat); !ok {
		return fmt.Errorf("%w: write %s", ErrCapture, path)
	}
	return nil
}

// CaptureToBuffer grabs one frame and returns it JPEG-encoded.
func (c *DeviceCamera) CaptureToBuffer(ctx context.Context) (vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return vision.Frame{}, err
	}

	mat, err := c.readMat()
	if err != nil {
		return vision.Frame{}, err
	}
	defer mat.Close()

	if c.flip {
		gocv.Flip(mat, &mat, -1)
	}

	data, err := encodeJPEG(mat)
	if err != nil {
		return vision.Frame{}, err
	}

	return vision.Frame{
		Data:     data,
		Width:    mat.Cols(),
		Height:   mat.Rows(),
		Captured: time.Now(),
	}, nil
}

// encodeJPEG copies the encoded bytes out of the native buffer.
func encodeJPEG(mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(".jpg", mat)
	if err != nil {
		return nil, fmt.Errorf("%w: encode frame: %v", ErrCapture, err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Flip180 rotates an encoded image by 180 degrees (both axes).
func Flip180(data []byte) ([]byte, error) {
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: decode frame: %v", ErrCapture, err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("%w: undecodable frame", ErrCapture)
	}

	flipped := gocv.NewMat()
	defer flipped.Close()
	gocv.Flip(img, &flipped, -1)

	return encodeJPEG(flipped)
}
