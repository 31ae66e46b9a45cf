package db

import (
	"time"

	"github.com/google/uuid"
)

// ResearchReportRow is one persisted pipeline run in research_reports.
type ResearchReportRow struct {
	ID     uuid.UUID `db:"id"`
	TaskID *string   `db:"task_id"`
	Query  string    `db:"query"`
	Depth  string    `db:"depth"`
	Report string    `db:"report"`

	// Denormalized pipeline artifacts, kept as jsonb
	Plan      []byte `db:"plan"`
	Findings  []byte `db:"findings"`
	Citations []byte `db:"citations"`

	SubQuestionsAnswered int `db:"sub_questions_answered"`
	SourcesConsulted     int `db:"sources_consulted"`

	DurationMs *int      `db:"duration_ms"`
	CreatedAt  time.Time `db:"created_at"`
}
