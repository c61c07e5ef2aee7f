package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dmitrijs2005/vehiclecheck/internal/client/models"
	"github.com/dmitrijs2005/vehiclecheck/internal/client/services"
	"github.com/dmitrijs2005/vehiclecheck/internal/identity"
)

func (a *App) requireLogin() error {
	if !a.isLoggedIn() {
		fmt.Fprintln(a.out, "Please log in first.")
		return identity.ErrNoSession
	}
	return nil
}

func (a *App) requireLogout() error {
	if a.isLoggedIn() {
		fmt.Fprintln(a.out, "You are already signed in. Type 'logout' first.")
		return fmt.Errorf("already signed in")
	}
	return nil
}

func (a *App) Onboarding(ctx context.Context) error {
	a.nav.open(screenOnboarding)
	renderOnboarding(a.out)
	return nil
}

func (a *App) SignUp(ctx context.Context) error {
	if err := a.requireLogout(); err != nil {
		return err
	}
	a.nav.open(screenSignUp)

	name, err := GetSimpleText(a.reader, "Name", a.out)
	if err != nil {
		return err
	}
	email, err := GetSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}
	secret, err := a.secretFn("Password")
	if err != nil {
		return err
	}
	confirm, err := a.secretFn("Confirm password")
	if err != nil {
		return err
	}
	if secret != confirm {
		fmt.Fprintln(a.out, "Passwords do not match.")
		return fmt.Errorf("passwords do not match")
	}

	if _, err := a.auth.SignUp(ctx, name, email, secret); err != nil {
		return err
	}
	return a.Home(ctx)
}

func (a *App) Login(ctx context.Context) error {
	if err := a.requireLogout(); err != nil {
		return err
	}
	a.nav.open(screenLogin)

	email, err := GetSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}
	secret, err := a.secretFn("Password")
	if err != nil {
		return err
	}

	if _, err := a.auth.SignIn(ctx, email, secret); err != nil {
		return err
	}
	return a.Home(ctx)
}

func (a *App) Reset(ctx context.Context) error {
	a.nav.open(screenReset)

	email, err := GetSimpleText(a.reader, "Email of the account", a.out)
	if err != nil {
		return err
	}
	return a.auth.ResetPassword(ctx, email)
}

func (a *App) Home(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	a.nav.open(screenHome)
	renderHome(a.out, a.awaitData(ctx))
	return nil
}

// Submit records an inspection through the home screen's form.
func (a *App) Submit(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	if a.nav.current() != screenHome {
		a.nav.open(screenHome)
	}

	var in services.InspectionInput
	var err error
	if in.Registration, err = GetSimpleText(a.reader, "Vehicle registration", a.out); err != nil {
		return err
	}
	for _, item := range []struct {
		name string
		dst  *models.CheckResult
	}{
		{"Brakes", &in.Brakes},
		{"Lights", &in.Lights},
		{"Seat belt", &in.SeatBelt},
		{"Hand brake", &in.HandBrake},
	} {
		if *item.dst, err = GetCheckResult(a.reader, item.name, a.out); err != nil {
			return err
		}
	}
	if in.Comments, err = GetMultiline(a.reader, "Comments", a.out); err != nil {
		return err
	}

	_, err = a.inspections.Submit(ctx, in)
	return err
}

func (a *App) History(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	a.nav.open(screenHistory)
	renderHistory(a.out, a.awaitData(ctx))
	return nil
}

// Details opens the n-th inspection of the history list.
func (a *App) Details(ctx context.Context, n int) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	a.nav.open(screenDetails)
	v := a.awaitData(ctx)

	r, ok := nthRecord(v.Groups, n)
	if !ok {
		fmt.Fprintf(a.out, "There is no inspection #%d.\n", n)
		a.nav.back()
		return fmt.Errorf("no inspection #%d", n)
	}
	renderDetails(a.out, r)
	return nil
}

func (a *App) Profile(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	a.nav.open(screenProfile)
	renderProfile(a.out, a.awaitData(ctx))
	return nil
}

func (a *App) EditProfile(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	a.nav.open(screenEditProfile)
	v := a.awaitData(ctx)

	var in services.ProfileInput
	prompt := "Name"
	if v.User != nil && v.User.Name != "" {
		in.Name = v.User.Name
		prompt = fmt.Sprintf("Name (Enter to keep %q)", v.User.Name)
	}
	name, err := GetSimpleText(a.reader, prompt, a.out)
	if err != nil {
		return err
	}
	if name != "" {
		in.Name = name
	}

	path, err := GetSimpleText(a.reader, "Image file (Enter to skip)", a.out)
	if err != nil {
		return err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(a.out, "Cannot read %s: %v\n", path, err)
			return err
		}
		in.ImageName = filepath.Base(path)
		in.ImageData = data
	}

	if err := a.profile.Update(ctx, in); err != nil {
		return err
	}
	a.nav.back()
	if a.nav.current() == screenProfile {
		renderProfile(a.out, a.awaitData(ctx))
	}
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	if err := a.auth.SignOut(ctx); err != nil {
		return err
	}
	return a.Onboarding(ctx)
}

// Delete removes the account after an explicit confirmation.
func (a *App) Delete(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	answer, err := GetSimpleText(a.reader, "This deletes your account and every inspection. Type DELETE to confirm", a.out)
	if err != nil {
		return err
	}
	if answer != "DELETE" {
		fmt.Fprintln(a.out, "Cancelled.")
		return nil
	}

	if err := a.accounts.Delete(ctx); err != nil {
		return err
	}
	return a.Onboarding(ctx)
}

// Back returns to the previous screen and shows it again. It reports true
// when the current screen was a root one and the client should exit.
func (a *App) Back(ctx context.Context) bool {
	if a.nav.back() {
		return true
	}

	switch a.nav.current() {
	case screenOnboarding:
		renderOnboarding(a.out)
	case screenHome:
		renderHome(a.out, a.awaitData(ctx))
	case screenHistory:
		renderHistory(a.out, a.awaitData(ctx))
	case screenProfile:
		renderProfile(a.out, a.awaitData(ctx))
	}
	return false
}

// Stats prints the client's sync metrics.
func (a *App) Stats(ctx context.Context) error {
	families, err := a.registry.Gather()
	if err != nil {
		a.log.Warn(ctx, "gather metrics", "error", err)
		return err
	}

	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}

			var value float64
			switch {
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			default:
				continue
			}
			lines = append(lines, fmt.Sprintf("%s %g", name, value))
		}
	}
	sort.Strings(lines)

	if len(lines) == 0 {
		fmt.Fprintln(a.out, "No sync activity yet.")
		return nil
	}
	for _, l := range lines {
		fmt.Fprintln(a.out, l)
	}
	return nil
}
