package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/prime-labs/prime-orchestrator/internal/metrics"
	"github.com/prime-labs/prime-orchestrator/internal/research"
	"github.com/prime-labs/prime-orchestrator/internal/streaming"
	"github.com/prime-labs/prime-orchestrator/internal/taskstatus"
	"github.com/prime-labs/prime-orchestrator/internal/workflows"
)

// TaskLauncher is the slice of the Temporal client the task API needs.
type TaskLauncher interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	CancelWorkflow(ctx context.Context, workflowID string, runID string) error
}

// TasksHandler serves the background research task API.
type TasksHandler struct {
	temporal  TaskLauncher
	status    *taskstatus.Store
	streams   *streaming.Manager
	taskQueue string
	logger    *zap.Logger
	authToken string
}

// NewTasksHandler creates a new handler. temporal may be nil when the
// worker tier is not deployed; every endpoint then returns 503.
func NewTasksHandler(temporal TaskLauncher, status *taskstatus.Store, streams *streaming.Manager, taskQueue string, logger *zap.Logger, authToken string) *TasksHandler {
	if taskQueue == "" {
		taskQueue = workflows.TaskQueue
	}
	if streams == nil {
		streams = streaming.Get()
	}
	return &TasksHandler{
		temporal:  temporal,
		status:    status,
		streams:   streams,
		taskQueue: taskQueue,
		logger:    logger,
		authToken: authToken,
	}
}

// RegisterRoutes registers task routes on the provided mux.
func (h *TasksHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/prime/tasks/research", h.handleLaunch)
	mux.HandleFunc("/prime/tasks/status/", h.handleStatus)
	mux.HandleFunc("/prime/tasks/result/", h.handleResult)
	mux.HandleFunc("/prime/tasks/", h.handleDelete)
}

// checkQueue returns false after writing a 503 when the task backend is
// unreachable.
func (h *TasksHandler) checkQueue(w http.ResponseWriter, r *http.Request) bool {
	var err error
	if h.temporal == nil {
		err = fmt.Errorf("temporal client not configured")
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		err = h.status.Ping(ctx)
	}
	if err != nil {
		writeDetail(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Task queue unavailable. Ensure Redis and the Temporal worker are running. Error: %v", err))
		return false
	}
	return true
}

// handleLaunch starts a background research workflow.
// POST /prime/tasks/research
func (h *TasksHandler) handleLaunch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !authorized(r, h.authToken) {
		writeDetail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.checkQueue(w, r) {
		return
	}

	var req research.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Normalize()
	if err := research.ValidateRequest(req); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	taskID := uuid.New().String()
	if _, err := h.status.Create(r.Context(), taskID, req.Query, req.Depth); err != nil {
		writeDetail(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Task queue unavailable. Ensure Redis and the Temporal worker are running. Error: %v", err))
		return
	}

	_, err := h.temporal.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:        workflowID(taskID),
		TaskQueue: h.taskQueue,
	}, workflows.ResearchWorkflow, workflows.ResearchInput{
		TaskID:  taskID,
		Query:   req.Query,
		Depth:   req.Depth,
		Context: req.Context,
	})
	if err != nil {
		h.logger.Error("failed to start research workflow",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
		_ = h.status.Delete(r.Context(), taskID)
		writeDetail(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Task queue unavailable. Ensure Redis and the Temporal worker are running. Error: %v", err))
		return
	}

	metrics.TasksSubmitted.Inc()
	h.streams.Publish(taskID, streaming.Event{Type: streaming.TypeTaskStarted})
	h.logger.Info("research task launched",
		zap.String("task_id", taskID),
		zap.String("depth", req.Depth),
	)

	writeJSON(w, http.StatusOK, map[string]string{
		"task_id": taskID,
		"status":  "PENDING",
		"message": "Research task launched. Poll /prime/tasks/status/{task_id} for progress.",
	})
}

// wireState maps stored states onto the status vocabulary the API has
// always exposed.
func wireState(state string) string {
	switch state {
	case taskstatus.StatePending:
		return "PENDING"
	case taskstatus.StateRunning:
		return "STARTED"
	case taskstatus.StateCompleted:
		return "SUCCESS"
	case taskstatus.StateFailed:
		return "FAILURE"
	case taskstatus.StateCancelled:
		return "REVOKED"
	default:
		return state
	}
}

// handleStatus polls task status and progress.
// GET /prime/tasks/status/{task_id}
func (h *TasksHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !authorized(r, h.authToken) {
		writeDetail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	taskID := strings.TrimPrefix(r.URL.Path, "/prime/tasks/status/")
	if taskID == "" || strings.Contains(taskID, "/") {
		writeDetail(w, http.StatusBadRequest, "task_id required")
		return
	}

	st, err := h.status.Get(r.Context(), taskID)
	if err == taskstatus.ErrNotFound {
		writeDetail(w, http.StatusNotFound, "Task not found.")
		return
	} else if err != nil {
		writeDetail(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Task queue unavailable. Ensure Redis and the Temporal worker are running. Error: %v", err))
		return
	}

	state := wireState(st.State)
	response := map[string]interface{}{
		"task_id": taskID,
		"status":  state,
	}
	switch state {
	case "PENDING":
		response["message"] = "Task is waiting in queue."
	case "STARTED":
		response["message"] = "Task is running."
		response["meta"] = map[string]interface{}{
			"stage":    st.Stage,
			"progress": st.Progress,
		}
	case "SUCCESS":
		response["message"] = "Task completed successfully."
		response["result"] = st.Result
	case "FAILURE":
		response["message"] = "Task failed."
		response["error"] = st.Error
	case "REVOKED":
		response["message"] = "Task cancelled."
	default:
		response["message"] = fmt.Sprintf("Unknown state: %s", state)
	}
	writeJSON(w, http.StatusOK, response)
}

// handleResult retrieves a completed task's report.
// GET /prime/tasks/result/{task_id}
func (h *TasksHandler) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !authorized(r, h.authToken) {
		writeDetail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	taskID := strings.TrimPrefix(r.URL.Path, "/prime/tasks/result/")
	if taskID == "" || strings.Contains(taskID, "/") {
		writeDetail(w, http.StatusBadRequest, "task_id required")
		return
	}

	st, err := h.status.Get(r.Context(), taskID)
	if err == taskstatus.ErrNotFound {
		writeDetail(w, http.StatusNotFound, "Task not found.")
		return
	} else if err != nil {
		writeDetail(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Task queue unavailable. Ensure Redis and the Temporal worker are running. Error: %v", err))
		return
	}

	if st.State != taskstatus.StateCompleted {
		writeDetail(w, http.StatusBadRequest,
			fmt.Sprintf("Task not complete. Status: %s", wireState(st.State)))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"task_id": taskID,
		"status":  "SUCCESS",
		"result":  st.Result,
	})
}

// handleDelete cancels a running task and removes its record.
// DELETE /prime/tasks/{task_id}
func (h *TasksHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !authorized(r, h.authToken) {
		writeDetail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	taskID := strings.TrimPrefix(r.URL.Path, "/prime/tasks/")
	if taskID == "" || strings.Contains(taskID, "/") {
		writeDetail(w, http.StatusBadRequest, "task_id required")
		return
	}

	if h.temporal != nil {
		if err := h.temporal.CancelWorkflow(r.Context(), workflowID(taskID), ""); err != nil {
			var notFound *serviceerror.NotFound
			if errors.As(err, &notFound) {
				// Already finished or never started; deletion proceeds.
				h.logger.Debug("workflow already gone", zap.String("task_id", taskID))
			} else {
				h.logger.Warn("workflow cancel failed",
					zap.String("task_id", taskID),
					zap.Error(err),
				)
			}
		}
	}
	if err := h.status.Delete(r.Context(), taskID); err != nil {
		writeDetail(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Task queue unavailable. Ensure Redis and the Temporal worker are running. Error: %v", err))
		return
	}
	h.streams.Publish(taskID, streaming.Event{Type: streaming.TypeTaskCancelled})
	h.streams.Drop(taskID)

	writeJSON(w, http.StatusOK, map[string]string{
		"task_id": taskID,
		"message": "Task cancelled.",
	})
}

func workflowID(taskID string) string {
	return "research-" + taskID
}
