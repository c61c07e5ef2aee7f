// Package common contains shared constants and sentinel errors used across
// vehiclecheck components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// Collection names of the hosted document database.
const (
	CollectionUsers       = "Users"
	CollectionInspections = "inspections"
)
