package response

// SelectBest returns the detected observation with the highest confidence,
// or nil when nothing was detected. Ties keep the earliest position.
func SelectBest(report ScanReport) *BestCandidate {
	var best *BestCandidate
	for _, o := range report {
		if !o.Detected {
			continue
		}
		if best == nil || o.Confidence > best.Confidence {
			best = &BestCandidate{
				Label:      o.Position.Label,
				X:          o.Position.X,
				Y:          o.Position.Y,
				Confidence: o.Confidence,
				Centroid:   clonePoint(o.Centroid),
			}
		}
	}
	return best
}
