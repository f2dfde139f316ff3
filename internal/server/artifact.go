package server

import (
	"net/http"
	"os"
)

// ArtifactHandler serves the most recent centered-hazard image.
type ArtifactHandler struct {
	path string
}

// NewArtifactHandler creates an ArtifactHandler for the image at path.
func NewArtifactHandler(path string) *ArtifactHandler {
	return &ArtifactHandler{path: path}
}

// ServeHTTP serves the image, or 404 before the first centering.
func (h *ArtifactHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(h.path)
	if err != nil {
		http.Error(w, "No artifact", http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "No artifact", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
