package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/prime-labs/prime-orchestrator/internal/metrics"
	"github.com/prime-labs/prime-orchestrator/internal/research"
)

// Runner is the slice of the pipeline the handler needs.
type Runner interface {
	Run(ctx context.Context, req research.Request, progress research.ProgressFunc) (*research.Report, error)
}

// ResearchHandler serves the synchronous research endpoint.
type ResearchHandler struct {
	pipeline  Runner
	logger    *zap.Logger
	authToken string
}

// NewResearchHandler creates a new handler.
func NewResearchHandler(pipeline Runner, logger *zap.Logger, authToken string) *ResearchHandler {
	return &ResearchHandler{pipeline: pipeline, logger: logger, authToken: authToken}
}

// RegisterRoutes registers research routes on the provided mux.
func (h *ResearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/prime/research/", h.handleResearch)
}

// handleResearch runs the full pipeline inline and returns the report.
// POST /prime/research/
func (h *ResearchHandler) handleResearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !authorized(r, h.authToken) {
		writeDetail(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req research.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Normalize()

	if err := research.ValidateRequest(req); err != nil {
		metrics.ResearchRequests.WithLabelValues("sync", req.Depth, "rejected").Inc()
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	report, err := h.pipeline.Run(r.Context(), req, nil)
	if err != nil {
		metrics.ResearchRequests.WithLabelValues("sync", req.Depth, "error").Inc()
		h.logger.Error("research pipeline failed",
			zap.String("depth", req.Depth),
			zap.Error(err),
		)
		writeDetail(w, http.StatusInternalServerError, "Research pipeline error: "+err.Error())
		return
	}

	metrics.ResearchRequests.WithLabelValues("sync", req.Depth, "ok").Inc()
	metrics.ResearchDuration.WithLabelValues("sync", req.Depth).Observe(time.Since(start).Seconds())
	h.logger.Info("research request served",
		zap.String("depth", req.Depth),
		zap.Int("sub_questions", report.SubQuestionsAnswered),
		zap.Duration("elapsed", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, report)
}
