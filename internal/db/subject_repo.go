package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"occasions/internal/types"
)

// subjectsSchema is applied by EnsureSchema for local runs.
const subjectsSchema = `CREATE TABLE IF NOT EXISTS subjects (
	id          TEXT PRIMARY KEY,
	first_name  TEXT NOT NULL,
	last_name   TEXT NOT NULL,
	birthday    DATE NOT NULL,
	time_zone   TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ
)`

const subjectColumns = `id, first_name, last_name, birthday, time_zone, created_at, updated_at`

// SubjectRepository provides data access for the subjects table.
type SubjectRepository struct {
	db DBTX
}

// NewSubjectRepository creates a SubjectRepository over db.
func NewSubjectRepository(db DBTX) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// scanSubject scans one row selected with subjectColumns.
func scanSubject(row pgx.Row) (*types.Subject, error) {
	var (
		s        types.Subject
		birthday time.Time
	)
	if err := row.Scan(&s.ID, &s.FirstName, &s.LastName, &birthday, &s.TimeZone, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Birthday = types.OccasionDate{Year: birthday.Year(), Month: birthday.Month(), Day: birthday.Day()}
	return &s, nil
}

func birthdayValue(d types.OccasionDate) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func subjectNotFound(id string) *types.AppError {
	return types.NewAppErrorWithDetails(types.ErrCodeNotFoundSubject, "subject not found", nil,
		map[string]any{"subject_id": id})
}

// EnsureSchema creates the subjects table if it is missing.
func (r *SubjectRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, subjectsSchema); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create subjects table", err)
	}
	return nil
}

// Create inserts a new subject.
func (r *SubjectRepository) Create(ctx context.Context, s *types.Subject) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subjects (`+subjectColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.FirstName, s.LastName, birthdayValue(s.Birthday), s.TimeZone, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create subject", err)
	}
	return nil
}

// Get retrieves a subject by id.
func (r *SubjectRepository) Get(ctx context.Context, id string) (*types.Subject, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subjectColumns+` FROM subjects WHERE id = $1`,
		id,
	)
	s, err := scanSubject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, subjectNotFound(id)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve subject", err)
	}
	return s, nil
}

// Update overwrites the mutable fields of an existing subject.
func (r *SubjectRepository) Update(ctx context.Context, s *types.Subject) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subjects
		 SET first_name = $2, last_name = $3, birthday = $4, time_zone = $5, updated_at = $6
		 WHERE id = $1`,
		s.ID, s.FirstName, s.LastName, birthdayValue(s.Birthday), s.TimeZone, s.UpdatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update subject", err)
	}
	if tag.RowsAffected() == 0 {
		return subjectNotFound(s.ID)
	}
	return nil
}

// Delete removes a subject.
func (r *SubjectRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM subjects WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete subject", err)
	}
	if tag.RowsAffected() == 0 {
		return subjectNotFound(id)
	}
	return nil
}

// List streams every subject ordered by id to fn, stopping at fn's first
// error.
func (r *SubjectRepository) List(ctx context.Context, fn func(*types.Subject) error) error {
	rows, err := r.db.Query(ctx, `SELECT `+subjectColumns+` FROM subjects ORDER BY id`)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to list subjects", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSubject(rows)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to scan subject", err)
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to iterate subjects", err)
	}
	return nil
}

// Ping checks that the database answers queries.
func (r *SubjectRepository) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "database ping failed", err)
	}
	return nil
}
