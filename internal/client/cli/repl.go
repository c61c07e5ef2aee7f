package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Onboarding(ctx context.Context) error
	SignUp(ctx context.Context) error
	Login(ctx context.Context) error
	Reset(ctx context.Context) error
	Home(ctx context.Context) error
	Submit(ctx context.Context) error
	History(ctx context.Context) error
	Details(ctx context.Context, n int) error
	Profile(ctx context.Context) error
	EditProfile(ctx context.Context) error
	Stats(ctx context.Context) error
	Logout(ctx context.Context) error
	Delete(ctx context.Context) error
	// Back navigates to the previous screen and reports whether the client
	// should exit because the current screen was a root one.
	Back(ctx context.Context) bool
}

// runREPL starts a simple read–eval–print loop for the vehiclecheck CLI.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a'. Unknown commands are reported back to the
// user. The loop exits on EOF, on "exit"/"quit", or when "back" is used on
// a root screen.
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Signed out:
//	  - onboarding     - welcome screen
//	  - signup         - create an account
//	  - login          - sign in
//	  - reset          - send a password reset link
//
//	Signed in:
//	  - home           - home screen with the latest inspection
//	  - submit         - record a new inspection
//	  - history        - inspections grouped by month
//	  - details <n>    - one inspection from the history list
//	  - profile        - your profile
//	  - editprofile    - change name and picture
//	  - logout         - sign out
//	  - delete         - delete the account and all inspections
//
//	Always:
//	  - help | stats | back | exit | quit
//
// Errors returned by command handlers are not printed here; handlers report
// their own outcomes. Command arguments are read from the same reader, so
// prompts inside a handler consume the lines that follow the command.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("vc %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: home, submit, history, details <n>, profile, editprofile, stats, logout, delete, back, exit")
			} else {
				printlnFn("Available commands: onboarding, signup, login, reset, stats, back, exit")
			}

		case "onboarding":
			_ = a.Onboarding(ctx)

		case "signup":
			_ = a.SignUp(ctx)

		case "login":
			_ = a.Login(ctx)

		case "reset":
			_ = a.Reset(ctx)

		case "home":
			_ = a.Home(ctx)

		case "submit":
			_ = a.Submit(ctx)

		case "h", "history":
			_ = a.History(ctx)

		case "details":
			if len(parts) < 2 {
				printlnFn("Usage: details <n>")
				continue
			}
			n, err := strconv.Atoi(parts[1])
			if err != nil || n < 1 {
				printlnFn("Usage: details <n>, where n is a number from the history list")
				continue
			}
			_ = a.Details(ctx, n)

		case "profile":
			_ = a.Profile(ctx)

		case "editprofile":
			_ = a.EditProfile(ctx)

		case "stats":
			_ = a.Stats(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "delete":
			_ = a.Delete(ctx)

		case "back":
			if a.Back(ctx) {
				printlnFn("Bye!")
				return
			}

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
