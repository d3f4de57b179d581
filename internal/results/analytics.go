package results

import "math"

// Analytics is the admin summary of the class.
type Analytics struct {
	TotalStudents  int     `json:"totalStudents"`
	ActiveSessions int     `json:"activeSessions"`
	AverageScore   float64 `json:"averageScore"`
	TopPerformer   string  `json:"topPerformer"`
}

// Summarize computes the class average and top performer from reports.
// Averages are rounded to two decimals; ties for top performer go to the
// lower student id so the result is stable.
func Summarize(reports []Report, totalStudents, activeSessions int) Analytics {
	a := Analytics{
		TotalStudents:  totalStudents,
		ActiveSessions: activeSessions,
	}
	if len(reports) == 0 {
		return a
	}

	var sum float64
	best := -1.0
	for _, r := range reports {
		sum += r.Average
		if r.Average > best || (r.Average == best && r.StudentID < a.TopPerformer) {
			best = r.Average
			a.TopPerformer = r.StudentID
		}
	}
	a.AverageScore = math.Round(sum/float64(len(reports))*100) / 100 //nolint:mnd // two decimals
	return a
}
