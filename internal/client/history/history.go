// Package history derives the history screen's view model from raw
// inspection records. Everything here is pure.
package history

import (
	"time"

	"github.com/dmitrijs2005/vehiclecheck/internal/client/models"
)

// FailThreshold is the number of failed checks that fails the whole
// inspection, regardless of how many passed.
const FailThreshold = 2

// Enrich counts the record's check results and derives its status.
func Enrich(r models.InspectionRecord) models.EnrichedInspection {
	e := models.EnrichedInspection{InspectionRecord: r}
	for _, c := range r.Checks() {
		switch c.Result {
		case models.CheckPass:
			e.Passed++
		case models.CheckFail:
			e.Failed++
		default:
			e.NotInspected++
		}
	}
	e.Status = models.StatusPass
	if e.Failed >= FailThreshold {
		e.Status = models.StatusFail
	}
	return e
}

// MonthLabel names the group a record belongs to, such as "September 2025".
// Records without a resolvable date fall under models.PendingDate.
func MonthLabel(r models.InspectionRecord) string {
	if r.CreatedAt != nil {
		return r.CreatedAt.Format(models.MonthLayout)
	}
	if r.Date == "" || r.Date == models.PendingDate {
		return models.PendingDate
	}
	t, err := time.Parse(models.DateLayout, r.Date)
	if err != nil {
		return models.PendingDate
	}
	return t.Format(models.MonthLayout)
}

// Aggregate enriches records and groups them by month. Groups appear in the
// order their first record appears; records keep their input order. The
// input is expected newest first.
func Aggregate(records []models.InspectionRecord) []models.MonthGroup {
	groups := make([]models.MonthGroup, 0)
	index := make(map[string]int)

	for _, r := range records {
		label := MonthLabel(r)
		i, ok := index[label]
		if !ok {
			i = len(groups)
			index[label] = i
			groups = append(groups, models.MonthGroup{Month: label})
		}
		groups[i].Records = append(groups[i].Records, Enrich(r))
	}
	return groups
}

// Summary is the header shown above the history list.
type Summary struct {
	Inspections int
	Passed      int
	Failed      int

	ChecksPassed       int
	ChecksFailed       int
	ChecksNotInspected int

	// Latest is the first record of the first group, if any.
	Latest *models.EnrichedInspection
}

func Summarize(groups []models.MonthGroup) Summary {
	var s Summary
	for _, g := range groups {
		for i := range g.Records {
			r := g.Records[i]
			if s.Latest == nil {
				latest := r
				s.Latest = &latest
			}
			s.Inspections++
			if r.Status == models.StatusFail {
				s.Failed++
			} else {
				s.Passed++
			}
			s.ChecksPassed += r.Passed
			s.ChecksFailed += r.Failed
			s.ChecksNotInspected += r.NotInspected
		}
	}
	return s
}
