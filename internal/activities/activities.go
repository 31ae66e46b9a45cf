// Package activities holds the Temporal activity implementations for
// background research tasks. Each pipeline stage is its own activity so
// the workflow can fan sub-questions out across worker slots and retry
// stages independently.
package activities

import (
	"go.uber.org/zap"

	"github.com/prime-labs/prime-orchestrator/internal/db"
	"github.com/prime-labs/prime-orchestrator/internal/research"
	"github.com/prime-labs/prime-orchestrator/internal/streaming"
	"github.com/prime-labs/prime-orchestrator/internal/taskstatus"
)

// Activities struct holds dependencies for activities
type Activities struct {
	pipeline *research.Pipeline
	status   *taskstatus.Store
	reports  *db.Client // nil when persistence is disabled
	streams  *streaming.Manager
	logger   *zap.Logger
}

// NewActivities creates a new activities instance with dependencies
func NewActivities(pipeline *research.Pipeline, status *taskstatus.Store, reports *db.Client, streams *streaming.Manager, logger *zap.Logger) *Activities {
	if streams == nil {
		streams = streaming.Get()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Activities{
		pipeline: pipeline,
		status:   status,
		reports:  reports,
		streams:  streams,
		logger:   logger,
	}
}
