// Package response runs one hazard response episode: a nine-position
// scan, fusion of the per-position detections into one candidate, and the
// closed-loop centering that holds the suppression relay on target.
package response

// PositionLabel names one cell of the scan grid.
type PositionLabel string

// Grid cell labels: row (Top, Middle, Bottom) then column (Left, Middle, Right).
const (
	TL PositionLabel = "TL"
	TM PositionLabel = "TM"
	TR PositionLabel = "TR"
	MR PositionLabel = "MR"
	MM PositionLabel = "MM"
	ML PositionLabel = "ML"
	BR PositionLabel = "BR"
	BM PositionLabel = "BM"
	BL PositionLabel = "BL"
)

// GridPosition is a named normalized pan/tilt target.
type GridPosition struct {
	Label PositionLabel `json:"label"`
	X     float64       `json:"x"`
	Y     float64       `json:"y"`
}

// scanGrid is visited in this order. The serpentine through the middle row
// keeps each move short.
var scanGrid = [...]GridPosition{
	{TL, 0.0, 0.0}, {TM, 0.5, 0.0}, {TR, 1.0, 0.0},
	{MR, 1.0, 0.5}, {MM, 0.5, 0.5}, {ML, 0.0, 0.5},
	{BR, 1.0, 1.0}, {BM, 0.5, 1.0}, {BL, 0.0, 1.0},
}

// Grid returns the scan positions in visitation order.
func Grid() []GridPosition {
	out := make([]GridPosition, len(scanGrid))
	copy(out, scanGrid[:])
	return out
}
