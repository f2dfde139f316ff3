package detector

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/emberguard/internal/vision"
)

// YOLODetector runs a YOLOv8 ONNX export through the OpenCV DNN module.
type YOLODetector struct {
	net       gocv.Net
	config    Config
	mu        sync.Mutex
	inputSize image.Point
}

// NewYOLO loads the model named in config.
func NewYOLO(config Config) (*YOLODetector, error) {
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", config.ModelPath)
	}
	if len(config.Classes) == 0 {
		return nil, fmt.Errorf("no class names configured")
	}
	if config.InputSize <= 0 {
		config.InputSize = 640
	}

	net := gocv.ReadNetFromONNX(config.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", config.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLODetector{
		net:       net,
		config:    config,
		inputSize: image.Pt(config.InputSize, config.InputSize),
	}, nil
}

// Detect decodes the JPEG frame and runs one forward pass.
func (d *YOLODetector) Detect(frame vision.Frame) ([]vision.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	output := d.net.Forward("")
	defer output.Close()

	return d.parseOutput(output, float32(img.Cols()), float32(img.Rows()))
}

// parseOutput decodes a [1, 4+classes, anchors] tensor, then applies NMS.
func (d *YOLODetector) parseOutput(output gocv.Mat, imgW, imgH float32) ([]vision.Detection, error) {
	sizes := output.Size()
	if len(sizes) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", sizes)
	}
	attrs, anchors := sizes[1], sizes[2]
	if attrs != 4+len(d.config.Classes) {
		return nil, fmt.Errorf("model has %d classes, config names %d", attrs-4, len(d.config.Classes))
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	var boxes []image.Rectangle
	var scores []float32
	var classIDs []int

	scaleX := imgW / float32(d.inputSize.X)
	scaleY := imgH / float32(d.inputSize.Y)
	minConf := float32(d.config.MinConfidence)

	for i := 0; i < anchors; i++ {
		best := float32(0)
		bestClass := 0
		for c := 4; c < attrs; c++ {
			if s := data[c*anchors+i]; s > best {
				best = s
				bestClass = c - 4
			}
		}
		if best < minConf {
			continue
		}

		// Center form to corners, scaled back to the source image
		cx := data[0*anchors+i]
		cy := data[1*anchors+i]
		w := data[2*anchors+i]
		h := data[3*anchors+i]

		boxes = append(boxes, image.Rect(
			int((cx-w/2)*scaleX),
			int((cy-h/2)*scaleY),
			int((cx+w/2)*scaleX),
			int((cy+h/2)*scaleY),
		))
		scores = append(scores, best)
		classIDs = append(classIDs, bestClass)
	}

	if len(boxes) == 0 {
		return nil, nil
	}

	indices := gocv.NMSBoxes(boxes, scores, minConf, float32(d.config.NMSThreshold))

	dets := make([]vision.Detection, 0, len(indices))
	for _, idx := range indices {
		r := boxes[idx]
		dets = append(dets, newDetection(
			d.config.labelFor(classIDs[idx]),
			float64(scores[idx]),
			vision.Box{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y},
		))
	}
	return dets, nil
}

// Close releases the network.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
