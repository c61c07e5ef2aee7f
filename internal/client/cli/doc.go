// Package cli provides the interactive vehiclecheck terminal client.
//
// It wires configuration, the local session store, the backend (or its
// in-process stand-ins in offline mode), the live-sync pipeline and a REPL
// whose commands stand in for the app's screens:
//
//   - onboarding, signup, login, reset
//   - home and submit (record an inspection)
//   - history and details <n>
//   - profile and editprofile
//   - logout, delete, back, exit
//
// Every screen switch goes through a livesync.LifecycleGuard: the screen
// being left releases its live subscription before the next one opens its
// own. "back" on a root screen exits the client.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App, StartOnlineStatusWatcher and runREPL for details.
package cli
