package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prime-labs/prime-orchestrator/internal/research"
)

// SaveReport inserts one finished pipeline run into research_reports.
// taskID is empty for synchronous API runs. Returns the row ID.
func (c *Client) SaveReport(ctx context.Context, taskID string, report *research.Report, duration time.Duration) (uuid.UUID, error) {
	if report == nil {
		return uuid.Nil, fmt.Errorf("report is nil")
	}

	planJSON, err := json.Marshal(report.Plan)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal plan: %w", err)
	}
	findingsJSON, err := json.Marshal(report.Findings)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal findings: %w", err)
	}
	citationsJSON, err := json.Marshal(report.Citations)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal citations: %w", err)
	}

	id := uuid.New()
	durationMs := int(duration.Milliseconds())

	_, err = c.db.ExecContext(ctx, `
        INSERT INTO research_reports (
            id, task_id, query, depth, report,
            plan, findings, citations,
            sub_questions_answered, sources_consulted,
            duration_ms, created_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
    `, id, nullIfEmpty(taskID), report.Query, report.Depth, report.Report,
		planJSON, findingsJSON, citationsJSON,
		report.SubQuestionsAnswered, report.SourcesConsulted,
		durationMs, time.Now().UTC())
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert research report: %w", err)
	}

	c.logger.Info("Research report persisted",
		zap.String("report_id", id.String()),
		zap.String("task_id", taskID),
		zap.String("depth", report.Depth),
		zap.Int("sources", report.SourcesConsulted),
	)
	return id, nil
}

// GetReportByTaskID loads the persisted report for a background task.
// Returns sql.ErrNoRows when the task never persisted one.
func (c *Client) GetReportByTaskID(ctx context.Context, taskID string) (*ResearchReportRow, error) {
	var row ResearchReportRow
	err := c.db.GetContext(ctx, &row, `
        SELECT id, task_id, query, depth, report,
               plan, findings, citations,
               sub_questions_answered, sources_consulted,
               duration_ms, created_at
        FROM research_reports
        WHERE task_id = $1
        ORDER BY created_at DESC
        LIMIT 1
    `, taskID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load research report: %w", err)
	}
	return &row, nil
}

// RecentReports lists the newest runs, without the heavy jsonb columns.
func (c *Client) RecentReports(ctx context.Context, limit int) ([]ResearchReportRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows []ResearchReportRow
	err := c.db.SelectContext(ctx, &rows, `
        SELECT id, task_id, query, depth, report,
               sub_questions_answered, sources_consulted,
               duration_ms, created_at
        FROM research_reports
        ORDER BY created_at DESC
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list research reports: %w", err)
	}
	return rows, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
