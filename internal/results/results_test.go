package results

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/nerrad567/bulles-portal/internal/infrastructure/database"
	"github.com/nerrad567/bulles-portal/migrations"
)

// testDB opens a migrated temp-file database holding two student rows,
// which reports reference.
func testDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "results-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(t.Context(), migrations.FS); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}

	_, err = db.ExecContext(t.Context(), `
		INSERT INTO users (id, username, password_hash, full_name, class, role, created_at) VALUES
		('CE1-001', 'CE1-001', 'x', 'Fifamè', 'CE1', 'student', '2026-03-01T00:00:00.000000Z'),
		('CE1-002', 'CE1-002', 'x', 'Emmanuel', 'CE1', 'student', '2026-03-01T00:00:00.000000Z')`)
	if err != nil {
		t.Fatalf("seeding users: %v", err)
	}
	return db
}

func sampleReport(studentID string, average float64) *Report {
	return &Report{
		StudentID:     studentID,
		Trimester:     1,
		Average:       average,
		Rank:          3,
		TotalStudents: 10,
		Mention:       "Satisfaisant",
		Comment:       "Continue tes efforts en dictée.",
		Evolution:     "+5.2%",
		Notes: []Note{
			{Subject: "Lecture", Score: 19},
			{Subject: "EST", Score: 13.75, Appreciation: "Bien"},
			{Subject: "Dictée", Score: 9},
		},
	}
}

func repositories(t *testing.T) map[string]Repository {
	t.Helper()
	return map[string]Repository{
		"memory": NewMemoryRepository(),
		"sqlite": NewSQLiteRepository(testDB(t).DB),
	}
}

func TestAppreciation(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{20, "Excellent"},
		{18, "Excellent"},
		{17.99, "Très bien"},
		{16, "Très bien"},
		{15, "Bien"},
		{13.5, "Bien"},
		{13.25, "Passable"},
		{10, "Passable"},
		{9, "À améliorer"},
		{5.25, "À améliorer"},
		{5, "Insuffisant"},
		{0, "Insuffisant"},
	}

	for _, tt := range tests {
		if got := Appreciation(tt.score); got != tt.want {
			t.Errorf("Appreciation(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestAverageBadge(t *testing.T) {
	if got := AverageBadge(14.61); got != "Bon" {
		t.Errorf("AverageBadge(14.61) = %q, want Bon", got)
	}
	if got := AverageBadge(10.45); got != "Passable" {
		t.Errorf("AverageBadge(10.45) = %q, want Passable", got)
	}
	if got := AverageBadge(9.99); got != "À améliorer" {
		t.Errorf("AverageBadge(9.99) = %q, want À améliorer", got)
	}
}

func TestReport_Categorize(t *testing.T) {
	r := &Report{Notes: []Note{
		{Subject: "a", Score: 19}, {Subject: "b", Score: 16},
		{Subject: "c", Score: 15}, {Subject: "d", Score: 14},
		{Subject: "e", Score: 13.99}, {Subject: "f", Score: 10},
		{Subject: "g", Score: 9.5},
	}}

	got := r.Categorize()
	want := Breakdown{Excellent: 2, Good: 2, Average: 2, Poor: 1}
	if got != want {
		t.Errorf("Categorize() = %+v, want %+v", got, want)
	}
}

func TestReport_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Report)
	}{
		{"missing student", func(r *Report) { r.StudentID = "" }},
		{"trimester zero", func(r *Report) { r.Trimester = 0 }},
		{"trimester four", func(r *Report) { r.Trimester = 4 }},
		{"average above 20", func(r *Report) { r.Average = 21 }},
		{"note without subject", func(r *Report) { r.Notes[0].Subject = "" }},
		{"negative score", func(r *Report) { r.Notes[1].Score = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sampleReport("CE1-001", 14.61)
			tt.mutate(r)
			if err := r.Validate(); err == nil {
				t.Error("Validate() expected error, got nil")
			}
		})
	}

	r := sampleReport("CE1-001", 14.61)
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if r.Notes[0].Appreciation != "Excellent" || r.Notes[2].Appreciation != "À améliorer" {
		t.Errorf("filled appreciations = %q/%q, want Excellent/À améliorer", r.Notes[0].Appreciation, r.Notes[2].Appreciation)
	}
	if r.Notes[1].Appreciation != "Bien" {
		t.Errorf("explicit appreciation overwritten: %q", r.Notes[1].Appreciation)
	}
}

func TestRepository_SaveAndFind(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()

			if err := repo.Save(ctx, sampleReport("CE1-001", 14.61)); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			got, err := repo.FindResultsFor(ctx, "CE1-001", 1)
			if err != nil {
				t.Fatalf("FindResultsFor() error = %v", err)
			}
			if got.Average != 14.61 || got.Rank != 3 || got.TotalStudents != 10 {
				t.Errorf("report = %+v, want average 14.61 rank 3 of 10", got)
			}
			if got.Evolution != "+5.2%" || got.Mention != "Satisfaisant" {
				t.Errorf("Evolution/Mention = %q/%q", got.Evolution, got.Mention)
			}
			if len(got.Notes) != 3 {
				t.Fatalf("len(Notes) = %d, want 3", len(got.Notes))
			}
			if got.Notes[0].Subject != "Lecture" || got.Notes[2].Subject != "Dictée" {
				t.Errorf("notes order = %s..%s, want Lecture..Dictée", got.Notes[0].Subject, got.Notes[2].Subject)
			}
			if got.Notes[0].Appreciation != "Excellent" {
				t.Errorf("Notes[0].Appreciation = %q, want Excellent", got.Notes[0].Appreciation)
			}
		})
	}
}

func TestRepository_NotFound(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			if err := repo.Save(ctx, sampleReport("CE1-001", 14.61)); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			if _, err := repo.FindResultsFor(ctx, "CE1-001", 2); !errors.Is(err, ErrNotFound) {
				t.Errorf("FindResultsFor(T2) error = %v, want %v", err, ErrNotFound)
			}
			if _, err := repo.FindResultsFor(ctx, "CE1-002", 1); !errors.Is(err, ErrNotFound) {
				t.Errorf("FindResultsFor(CE1-002) error = %v, want %v", err, ErrNotFound)
			}
		})
	}
}

func TestRepository_SaveReplaces(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			if err := repo.Save(ctx, sampleReport("CE1-001", 14.61)); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			updated := sampleReport("CE1-001", 15)
			updated.Notes = updated.Notes[:1]
			if err := repo.Save(ctx, updated); err != nil {
				t.Fatalf("Save() replace error = %v", err)
			}

			got, err := repo.FindResultsFor(ctx, "CE1-001", 1)
			if err != nil {
				t.Fatalf("FindResultsFor() error = %v", err)
			}
			if got.Average != 15 || len(got.Notes) != 1 {
				t.Errorf("after replace: average %v with %d notes, want 15 with 1", got.Average, len(got.Notes))
			}
		})
	}
}

func TestRepository_List(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			for _, r := range []*Report{sampleReport("CE1-002", 10.45), sampleReport("CE1-001", 14.61)} {
				if err := repo.Save(ctx, r); err != nil {
					t.Fatalf("Save() error = %v", err)
				}
			}

			got, err := repo.List(ctx, 1)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != 2 || got[0].StudentID != "CE1-001" {
				t.Fatalf("List() = %+v, want CE1-001 then CE1-002", got)
			}

			empty, err := repo.List(ctx, 3)
			if err != nil {
				t.Fatalf("List(3) error = %v", err)
			}
			if len(empty) != 0 {
				t.Errorf("List(3) = %d reports, want 0", len(empty))
			}
		})
	}
}

func TestMemoryRepository_IsolatesCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := t.Context()

	in := sampleReport("CE1-001", 14.61)
	if err := repo.Save(ctx, in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	in.Notes[0].Score = 0

	got, err := repo.FindResultsFor(ctx, "CE1-001", 1)
	if err != nil {
		t.Fatalf("FindResultsFor() error = %v", err)
	}
	got.Notes[1].Score = 0

	again, _ := repo.FindResultsFor(ctx, "CE1-001", 1) //nolint:errcheck // checked above
	if again.Notes[0].Score != 19 || again.Notes[1].Score != 13.75 {
		t.Errorf("stored notes mutated through a copy: %+v", again.Notes)
	}
}

func TestSummarize(t *testing.T) {
	reports := []Report{
		{StudentID: "CE1-002", Average: 10.45},
		{StudentID: "CE1-001", Average: 14.61},
		{StudentID: "CE1-003", Average: 12.2},
	}

	got := Summarize(reports, 10, 4)
	want := Analytics{TotalStudents: 10, ActiveSessions: 4, AverageScore: 12.42, TopPerformer: "CE1-001"}
	if got != want {
		t.Errorf("Summarize() = %+v, want %+v", got, want)
	}

	tie := Summarize([]Report{{StudentID: "CE1-009", Average: 15}, {StudentID: "CE1-004", Average: 15}}, 2, 0)
	if tie.TopPerformer != "CE1-004" {
		t.Errorf("tie TopPerformer = %q, want CE1-004", tie.TopPerformer)
	}

	empty := Summarize(nil, 10, 1)
	if empty.AverageScore != 0 || empty.TopPerformer != "" || empty.TotalStudents != 10 {
		t.Errorf("Summarize(nil) = %+v", empty)
	}
}
