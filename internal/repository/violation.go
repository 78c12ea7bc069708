package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
)

type ViolationRepository struct {
	pool PgxPool
}

func NewViolationRepository(pool PgxPool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

func (r *ViolationRepository) Insert(ctx context.Context, v *domain.Violation) error {
	query := `
		INSERT INTO violations (id, student_id, exam_id, violation_type, confidence, timestamp, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, query,
		v.ID,
		v.StudentID,
		v.ExamID,
		string(v.Type),
		v.Confidence,
		v.Timestamp,
		v.Details,
	)
	if err != nil {
		return fmt.Errorf("insert violation: %w", err)
	}

	return nil
}

// ExistsWithin reports whether a violation of vtype was recorded for the
// pair at or after since.
func (r *ViolationRepository) ExistsWithin(ctx context.Context, studentID, examID string, vtype domain.ViolationType, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM violations
			WHERE student_id = $1 AND exam_id = $2 AND violation_type = $3 AND timestamp >= $4
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, studentID, examID, string(vtype), since).Scan(&exists); err != nil {
		return false, fmt.Errorf("check recent violation: %w", err)
	}

	return exists, nil
}

// ListByStudentExam returns the pair's violations, newest first.
func (r *ViolationRepository) ListByStudentExam(ctx context.Context, studentID, examID string) ([]domain.Violation, error) {
	query := `
		SELECT id, student_id, exam_id, violation_type, confidence, timestamp, details
		FROM violations
		WHERE student_id = $1 AND exam_id = $2
		ORDER BY timestamp DESC
	`

	rows, err := r.pool.Query(ctx, query, studentID, examID)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	defer rows.Close()

	violations := make([]domain.Violation, 0)
	for rows.Next() {
		var v domain.Violation
		var vtype string
		if err := rows.Scan(&v.ID, &v.StudentID, &v.ExamID, &vtype, &v.Confidence, &v.Timestamp, &v.Details); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		v.Type = domain.ViolationType(vtype)
		violations = append(violations, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate violations: %w", err)
	}

	return violations, nil
}
