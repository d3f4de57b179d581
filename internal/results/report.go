package results

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no report exists for a student and trimester.
var ErrNotFound = errors.New("results: report not found")

// Trimesters in a school year.
const (
	FirstTrimester = 1
	LastTrimester  = 3
)

// Note is one subject's score on the 0-20 scale.
type Note struct {
	Subject      string  `json:"subject"`
	Score        float64 `json:"score"`
	Appreciation string  `json:"appreciation"`
}

// Report is a student's report card for one trimester.
type Report struct {
	StudentID     string  `json:"studentId"`
	Trimester     int     `json:"trimester"`
	Average       float64 `json:"average"`
	Rank          int     `json:"rank"`
	TotalStudents int     `json:"totalStudents"`
	Mention       string  `json:"mention"`
	Comment       string  `json:"comment"`
	Evolution     string  `json:"evolution"`
	Notes         []Note  `json:"notes"`
}

// Validate checks the report is storable and fills missing appreciations.
func (r *Report) Validate() error {
	if r.StudentID == "" {
		return errors.New("results: student id is required")
	}
	if r.Trimester < FirstTrimester || r.Trimester > LastTrimester {
		return fmt.Errorf("results: trimester %d out of range", r.Trimester)
	}
	if r.Average < 0 || r.Average > 20 {
		return fmt.Errorf("results: average %.2f out of range", r.Average)
	}
	for i := range r.Notes {
		n := &r.Notes[i]
		if n.Subject == "" {
			return fmt.Errorf("results: note %d has no subject", i)
		}
		if n.Score < 0 || n.Score > 20 {
			return fmt.Errorf("results: %s score %.2f out of range", n.Subject, n.Score)
		}
		if n.Appreciation == "" {
			n.Appreciation = Appreciation(n.Score)
		}
	}
	return nil
}

// Appreciation returns the teacher's wording for a subject score.
func Appreciation(score float64) string {
	switch {
	case score >= 18:
		return "Excellent"
	case score >= 16:
		return "Très bien"
	case score >= 13.5:
		return "Bien"
	case score >= 10:
		return "Passable"
	case score > 5:
		return "À améliorer"
	default:
		return "Insuffisant"
	}
}

// AverageBadge is the short label shown next to a trimester average.
func AverageBadge(average float64) string {
	switch {
	case average >= 14:
		return "Bon"
	case average >= 10:
		return "Passable"
	default:
		return "À améliorer"
	}
}

// Band groups scores for charts.
type Band string

// Score bands.
const (
	BandExcellent Band = "excellent"
	BandGood      Band = "good"
	BandAverage   Band = "average"
	BandPoor      Band = "poor"
)

// BandFor returns the band a score falls in.
func BandFor(score float64) Band {
	switch {
	case score >= 16:
		return BandExcellent
	case score >= 14:
		return BandGood
	case score >= 10:
		return BandAverage
	default:
		return BandPoor
	}
}

// Breakdown counts notes per band.
type Breakdown struct {
	Excellent int `json:"excellent"`
	Good      int `json:"good"`
	Average   int `json:"average"`
	Poor      int `json:"poor"`
}

// Categorize counts the report's notes per band.
func (r *Report) Categorize() Breakdown {
	var b Breakdown
	for _, n := range r.Notes {
		switch BandFor(n.Score) {
		case BandExcellent:
			b.Excellent++
		case BandGood:
			b.Good++
		case BandAverage:
			b.Average++
		case BandPoor:
			b.Poor++
		}
	}
	return b
}
