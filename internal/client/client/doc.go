// Package client contains the client's connection to the vehiclecheck
// backend.
//
// # Overview
//
// GRPCClient talks to the vehiclecheck.v1.Backend service and plays three
// roles at once:
//  1. docstore.Store: point reads, queries, writes and live queries (the
//     Watch stream) against the backend's document database.
//  2. identity.Provider: sign-up, sign-in, reauthentication, account
//     deletion and password reset, with identity changes fanned out to
//     listeners.
//  3. services.Uploader: profile image uploads.
//
// An interceptor injects the access token into every call and transparently
// refreshes it once when the server reports it expired.
//
// InitDatabase opens the local SQLite database and applies the embedded
// goose migrations.
//
// # Error Handling
//
// Transport conditions surface as sentinel errors that callers match with
// errors.Is: ErrUnavailable, ErrUnauthorized, ErrLocalDataNotAvailable.
// Document misses map to docstore.ErrNotFound and identity failures to the
// identity package's errors.
package client
