package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCheckResult(t *testing.T) {
	tests := []struct {
		in   any
		want CheckResult
	}{
		{"pass", CheckPass},
		{"fail", CheckFail},
		{"", CheckNotInspected},
		{nil, CheckNotInspected},
		{"PASS", CheckNotInspected},
		{true, CheckNotInspected},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ParseCheckResult(tc.in), "%v", tc.in)
	}
}

func TestInspectionRecord_Checks_Order(t *testing.T) {
	r := InspectionRecord{Brakes: CheckPass, Lights: CheckFail, HandBrake: CheckPass}

	checks := r.Checks()
	assert.Len(t, checks, 4)
	assert.Equal(t, []string{"Brakes", "Lights", "Seat Belt", "Hand Brake"},
		[]string{checks[0].Name, checks[1].Name, checks[2].Name, checks[3].Name})
	assert.Equal(t, CheckNotInspected, checks[2].Result)
	assert.Equal(t, "Not inspected", checks[2].Result.Label())
}

func TestUserRecord_DisplayName(t *testing.T) {
	assert.Equal(t, "Sophia", UserRecord{Name: "Sophia", Email: "s@x.io"}.DisplayName())
	assert.Equal(t, "s@x.io", UserRecord{Email: "s@x.io"}.DisplayName())
}
