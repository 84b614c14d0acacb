package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome 决策结果
type Outcome string

const (
	OutcomeSubmitted        Outcome = "submitted"
	OutcomeNotSubmitted     Outcome = "not_submitted"
	OutcomeRejected         Outcome = "rejected" // 本地校验未通过
	OutcomeFailed           Outcome = "failed"
	OutcomeInvalidAssistant Outcome = "invalid_assistant"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeResolved         Outcome = "resolved"
)

// Decision 一条中断办理记录
type Decision struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"thread_id,omitempty"`
	InterruptID string    `json:"interrupt_id,omitempty"`
	Actions     []string  `json:"actions,omitempty"`
	SubmitType  string    `json:"submit_type,omitempty"`
	Outcome     Outcome   `json:"outcome"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// LogDecision 追加一条记录；ID 与时间为空时自动生成
func (db *DB) LogDecision(d *Decision) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	actions := d.Actions
	if actions == nil {
		actions = []string{}
	}
	actionsJSON, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}

	_, err = db.Exec(
		`INSERT INTO decisions (id, thread_id, interrupt_id, actions, submit_type, outcome, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ThreadID, d.InterruptID, string(actionsJSON), d.SubmitType, string(d.Outcome), d.Detail, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// GetDecision 按 ID 查询
func (db *DB) GetDecision(id string) (*Decision, error) {
	row := db.QueryRow(
		`SELECT id, thread_id, interrupt_id, actions, submit_type, outcome, detail, created_at
		 FROM decisions WHERE id = ?`, id)
	d, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDecisions 返回最近的记录，新的在前；limit <= 0 表示不限制
func (db *DB) ListDecisions(limit int) ([]*Decision, error) {
	query := `SELECT id, thread_id, interrupt_id, actions, submit_type, outcome, detail, created_at
		FROM decisions ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDecision(s scanner) (*Decision, error) {
	var (
		d       Decision
		actions string
		outcome string
	)
	if err := s.Scan(&d.ID, &d.ThreadID, &d.InterruptID, &actions, &d.SubmitType, &outcome, &d.Detail, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.Outcome = Outcome(outcome)
	if err := json.Unmarshal([]byte(actions), &d.Actions); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	return &d, nil
}
