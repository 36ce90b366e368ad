package api

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"github.com/okian/posture/internal/adapters/overlay"
	"github.com/okian/posture/internal/domain/model"
)

const previewQuality = 80

// PreviewDependencies defines the interface for preview reads.
type PreviewDependencies interface {
	Preview(ctx context.Context) (model.Frame, bool)
}

// PreviewHandler serves the latest annotated frame as JPEG.
type PreviewHandler struct {
	deps PreviewDependencies
}

// NewPreviewHandler creates a new preview handler.
func NewPreviewHandler(deps PreviewDependencies) *PreviewHandler {
	return &PreviewHandler{deps: deps}
}

// HandlePreview handles GET /preview requests.
func (h *PreviewHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_preview"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	frame, ok := h.deps.Preview(r.Context())
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", NewKind(op, ErrNoPreview))
		return
	}
	var buf bytes.Buffer
	if err := overlay.EncodeJPEG(&buf, frame, previewQuality); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
