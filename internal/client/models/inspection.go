// Package models defines client-side data models used by the vehiclecheck client.
package models

import "time"

// Display layouts for inspection dates.
const (
	DateLayout  = "January 2, 2006"
	MonthLayout = "January 2006"

	// PendingDate is shown while the backend has not resolved a server timestamp yet.
	PendingDate = "Pending date"
)

// CheckResult is the outcome of a single checklist item. The zero value
// means "not inspected", which is distinct from a failure.
type CheckResult string

const (
	CheckNotInspected CheckResult = ""
	CheckPass         CheckResult = "pass"
	CheckFail         CheckResult = "fail"
)

// ParseCheckResult maps a raw document value to a CheckResult. Anything that
// is not exactly "pass" or "fail" is treated as not inspected.
func ParseCheckResult(v any) CheckResult {
	s, ok := v.(string)
	if !ok {
		return CheckNotInspected
	}
	switch CheckResult(s) {
	case CheckPass:
		return CheckPass
	case CheckFail:
		return CheckFail
	default:
		return CheckNotInspected
	}
}

// Label is the human form used by the terminal screens.
func (c CheckResult) Label() string {
	switch c {
	case CheckPass:
		return "Pass"
	case CheckFail:
		return "Fail"
	default:
		return "Not inspected"
	}
}

// Status is the overall verdict of an inspection.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
)

// Check pairs a checklist item name with its result.
type Check struct {
	Name   string
	Field  string
	Result CheckResult
}

// InspectionRecord is a plain, display-ready copy of an inspections document.
type InspectionRecord struct {
	ID           string
	UserID       string
	Registration string
	Brakes       CheckResult
	Lights       CheckResult
	SeatBelt     CheckResult
	HandBrake    CheckResult
	Comments     string

	// CreatedAt is nil until the backend resolves the server timestamp.
	CreatedAt *time.Time
	// Date is CreatedAt formatted with DateLayout, or PendingDate.
	Date string
}

// Checks returns the four checklist items in display order.
func (r InspectionRecord) Checks() []Check {
	return []Check{
		{Name: "Brakes", Field: FieldBrakes, Result: r.Brakes},
		{Name: "Lights", Field: FieldLights, Result: r.Lights},
		{Name: "Seat Belt", Field: FieldSeatBelt, Result: r.SeatBelt},
		{Name: "Hand Brake", Field: FieldHandBrake, Result: r.HandBrake},
	}
}

// EnrichedInspection adds derived counts and the overall status.
type EnrichedInspection struct {
	InspectionRecord

	Passed       int
	Failed       int
	NotInspected int
	Status       Status
}

// MonthGroup is one section of the history screen.
type MonthGroup struct {
	Month   string
	Records []EnrichedInspection
}
