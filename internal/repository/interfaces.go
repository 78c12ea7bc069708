package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
)

// PgxPool is the subset of *pgxpool.Pool used by repositories (pgxmock implements it too)
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ViolationRepositoryInterface defines operations for violation data access
type ViolationRepositoryInterface interface {
	Insert(ctx context.Context, v *domain.Violation) error
	ExistsWithin(ctx context.Context, studentID, examID string, vtype domain.ViolationType, since time.Time) (bool, error)
	ListByStudentExam(ctx context.Context, studentID, examID string) ([]domain.Violation, error)
}
