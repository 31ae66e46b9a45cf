package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prime-labs/prime-orchestrator/internal/streaming"
)

// StreamingHandler serves the SSE progress stream for background tasks.
type StreamingHandler struct {
	mgr       *streaming.Manager
	logger    *zap.Logger
	authToken string
}

func NewStreamingHandler(mgr *streaming.Manager, logger *zap.Logger, authToken string) *StreamingHandler {
	return &StreamingHandler{mgr: mgr, logger: logger, authToken: authToken}
}

// streamAuthorized applies the bearer gate. EventSource cannot set
// request headers, so the token is also accepted as an access_token
// query parameter.
func (h *StreamingHandler) streamAuthorized(r *http.Request) bool {
	if h.authToken == "" {
		return true
	}
	if authorized(r, h.authToken) {
		return true
	}
	return r.URL.Query().Get("access_token") == h.authToken
}

// RegisterRoutes registers SSE routes on the provided mux.
func (h *StreamingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/prime/tasks/stream/", h.handleSSE)
}

// handleSSE streams progress events for a task via Server-Sent Events.
// GET /prime/tasks/stream/{task_id}
func (h *StreamingHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	if !h.streamAuthorized(r) {
		writeDetail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	taskID := strings.TrimPrefix(r.URL.Path, "/prime/tasks/stream/")
	if taskID == "" || strings.Contains(taskID, "/") {
		writeDetail(w, http.StatusBadRequest, "task_id required")
		return
	}

	// Last-Event-ID header or query param to replay from
	var lastID uint64
	if lei := r.Header.Get("Last-Event-ID"); lei != "" {
		if n, err := strconv.ParseUint(lei, 10, 64); err == nil {
			lastID = n
		}
	}
	if q := r.URL.Query().Get("last_event_id"); q != "" && lastID == 0 {
		if n, err := strconv.ParseUint(q, 10, 64); err == nil {
			lastID = n
		}
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch := h.mgr.Subscribe(taskID, 256)
	defer h.mgr.Unsubscribe(taskID, ch)

	fmt.Fprintf(w, ": connected to task %s\n\n", taskID)
	flusher.Flush()

	// Replay backlog since lastID (best-effort)
	for _, ev := range h.mgr.ReplaySince(taskID, lastID) {
		writeSSE(w, ev)
	}
	flusher.Flush()

	hb := time.NewTicker(15 * time.Second)
	defer hb.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("SSE client disconnected", zap.String("task_id", taskID))
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			writeSSE(w, evt)
			flusher.Flush()
			if evt.Type == streaming.TypeTaskCompleted ||
				evt.Type == streaming.TypeTaskFailed ||
				evt.Type == streaming.TypeTaskCancelled {
				return
			}
		case <-hb.C:
			// Keep connections alive through proxies
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev streaming.Event) {
	fmt.Fprintf(w, "id: %d\n", ev.Seq)
	if ev.Type != "" {
		fmt.Fprintf(w, "event: %s\n", ev.Type)
	}
	fmt.Fprintf(w, "data: %s\n\n", string(ev.Marshal()))
}
