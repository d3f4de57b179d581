package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Finder looks up a single report.
type Finder interface {
	FindResultsFor(ctx context.Context, studentID string, trimester int) (*Report, error)
}

// Repository stores and lists reports.
type Repository interface {
	Finder
	Save(ctx context.Context, report *Report) error
	List(ctx context.Context, trimester int) ([]Report, error)
}

type reportKey struct {
	studentID string
	trimester int
}

// MemoryRepository keeps reports in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	reports map[reportKey]Report
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{reports: make(map[reportKey]Report)}
}

// Save stores a report, replacing any existing one for the same key.
func (m *MemoryRepository) Save(_ context.Context, report *Report) error {
	if err := report.Validate(); err != nil {
		return err
	}

	r := *report
	r.Notes = append([]Note(nil), report.Notes...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[reportKey{r.StudentID, r.Trimester}] = r
	return nil
}

// FindResultsFor returns a copy of the matching report.
func (m *MemoryRepository) FindResultsFor(_ context.Context, studentID string, trimester int) (*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reports[reportKey{studentID, trimester}]
	if !ok {
		return nil, ErrNotFound
	}
	r.Notes = append([]Note(nil), r.Notes...)
	return &r, nil
}

// List returns every report for a trimester ordered by student id.
func (m *MemoryRepository) List(_ context.Context, trimester int) ([]Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Report{}
	for k, r := range m.reports {
		if k.trimester == trimester {
			r.Notes = append([]Note(nil), r.Notes...)
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

// SQLiteRepository stores reports in the reports and report_notes tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save upserts a report and replaces its notes in one transaction.
func (s *SQLiteRepository) Save(ctx context.Context, report *Report) error {
	if err := report.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reports (student_id, trimester, average, rank, total_students, mention, comment, evolution)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (student_id, trimester) DO UPDATE SET
		   average = excluded.average, rank = excluded.rank, total_students = excluded.total_students,
		   mention = excluded.mention, comment = excluded.comment, evolution = excluded.evolution`,
		report.StudentID, report.Trimester, report.Average, report.Rank, report.TotalStudents,
		report.Mention, report.Comment, report.Evolution,
	)
	if err != nil {
		return fmt.Errorf("saving report %s/T%d: %w", report.StudentID, report.Trimester, err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM report_notes WHERE student_id = ? AND trimester = ?",
		report.StudentID, report.Trimester,
	); err != nil {
		return fmt.Errorf("clearing notes: %w", err)
	}

	for i, n := range report.Notes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO report_notes (student_id, trimester, position, subject, score, appreciation)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			report.StudentID, report.Trimester, i, n.Subject, n.Score, n.Appreciation,
		); err != nil {
			return fmt.Errorf("saving note %s: %w", n.Subject, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing report: %w", err)
	}
	return nil
}

const reportColumns = "student_id, trimester, average, rank, total_students, mention, comment, evolution"

// FindResultsFor returns the report with its notes in their stored order.
func (s *SQLiteRepository) FindResultsFor(ctx context.Context, studentID string, trimester int) (*Report, error) {
	var r Report
	err := s.db.QueryRowContext(ctx,
		"SELECT "+reportColumns+" FROM reports WHERE student_id = ? AND trimester = ?",
		studentID, trimester,
	).Scan(&r.StudentID, &r.Trimester, &r.Average, &r.Rank, &r.TotalStudents, &r.Mention, &r.Comment, &r.Evolution)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying report: %w", err)
	}

	notes, err := s.notes(ctx, studentID, trimester)
	if err != nil {
		return nil, err
	}
	r.Notes = notes
	return &r, nil
}

// List returns every report for a trimester ordered by student id.
// Notes are not loaded.
func (s *SQLiteRepository) List(ctx context.Context, trimester int) ([]Report, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+reportColumns+" FROM reports WHERE trimester = ? ORDER BY student_id ASC", trimester)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	out := []Report{}
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.StudentID, &r.Trimester, &r.Average, &r.Rank, &r.TotalStudents, &r.Mention, &r.Comment, &r.Evolution); err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reports: %w", err)
	}
	return out, nil
}

func (s *SQLiteRepository) notes(ctx context.Context, studentID string, trimester int) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subject, score, appreciation FROM report_notes
		 WHERE student_id = ? AND trimester = ? ORDER BY position ASC`,
		studentID, trimester,
	)
	if err != nil {
		return nil, fmt.Errorf("querying notes: %w", err)
	}
	defer rows.Close()

	notes := []Note{}
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.Subject, &n.Score, &n.Appreciation); err != nil {
			return nil, fmt.Errorf("scanning note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notes: %w", err)
	}
	return notes, nil
}
