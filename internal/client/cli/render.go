package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/vehiclecheck/internal/client/livesync"
	"github.com/dmitrijs2005/vehiclecheck/internal/client/models"
)

func renderOnboarding(w io.Writer) {
	fmt.Fprintln(w, "vehiclecheck keeps your roadworthiness checks in one place.")
	fmt.Fprintln(w, "Type 'signup' to create an account or 'login' to sign in.")
}

func renderHome(w io.Writer, v livesync.View) {
	name := "there"
	if v.User != nil {
		name = v.User.DisplayName()
	}
	fmt.Fprintf(w, "Hello, %s!\n", name)

	if latest := v.Summary.Latest; latest != nil {
		fmt.Fprintf(w, "Latest inspection: %s\n", recordLine(*latest))
	} else {
		fmt.Fprintln(w, "No inspections yet.")
	}
	fmt.Fprintln(w, "Type 'submit' to record a new inspection.")
}

func renderHistory(w io.Writer, v livesync.View) {
	if len(v.Groups) == 0 {
		fmt.Fprintln(w, "No inspections to show.")
		return
	}

	s := v.Summary
	fmt.Fprintf(w, "%d inspections: %d passed, %d failed (checks: %d pass, %d fail, %d not inspected)\n",
		s.Inspections, s.Passed, s.Failed, s.ChecksPassed, s.ChecksFailed, s.ChecksNotInspected)

	n := 0
	for _, g := range v.Groups {
		fmt.Fprintf(w, "\n%s\n", g.Month)
		for _, r := range g.Records {
			n++
			fmt.Fprintf(w, "  %2d. %s\n", n, recordLine(r))
		}
	}
	fmt.Fprintln(w, "\nType 'details <n>' to open an inspection.")
}

func renderDetails(w io.Writer, r models.EnrichedInspection) {
	fmt.Fprintf(w, "Registration: %s\n", r.Registration)
	fmt.Fprintf(w, "Date:         %s\n", r.Date)
	fmt.Fprintf(w, "Result:       %s\n", statusLabel(r.Status))
	for _, c := range r.Checks() {
		fmt.Fprintf(w, "  %-11s %s\n", c.Name+":", c.Result.Label())
	}
	if r.Comments != "" {
		fmt.Fprintf(w, "Comments:\n  %s\n", strings.ReplaceAll(r.Comments, "\n", "\n  "))
	}
}

func renderProfile(w io.Writer, v livesync.View) {
	u := v.User
	if u == nil {
		fmt.Fprintln(w, "Profile is not available yet.")
		return
	}
	fmt.Fprintf(w, "Name:   %s\n", u.DisplayName())
	fmt.Fprintf(w, "Email:  %s\n", u.Email)
	if u.Image != nil {
		fmt.Fprintf(w, "Image:  %s\n", *u.Image)
	}
	since := models.PendingDate
	if u.CreatedAt != nil {
		since = u.CreatedAt.Format(models.DateLayout)
	}
	fmt.Fprintf(w, "Member since %s, %d inspections\n", since, v.Summary.Inspections)
}

func recordLine(r models.EnrichedInspection) string {
	return fmt.Sprintf("%s  %s  %s (%d passed, %d failed)",
		r.Registration, r.Date, statusLabel(r.Status), r.Passed, r.Failed)
}

func statusLabel(s models.Status) string {
	return strings.ToUpper(string(s))
}

// nthRecord returns the n-th record (1-based) in history display order.
func nthRecord(groups []models.MonthGroup, n int) (models.EnrichedInspection, bool) {
	for _, g := range groups {
		if n <= len(g.Records) {
			if n < 1 {
				break
			}
			return g.Records[n-1], true
		}
		n -= len(g.Records)
	}
	return models.EnrichedInspection{}, false
}
