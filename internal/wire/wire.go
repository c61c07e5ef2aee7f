// Package wire defines the gRPC contract between the client and the backend.
//
// Messages are google.protobuf.Struct values, so the service needs no
// generated code: requests and responses are flat structs whose keys are
// listed next to each method below. Document data travels through
// EncodeData/DecodeData, which tag times and the server timestamp sentinel
// so they survive the trip.
package wire

import (
	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "vehiclecheck.v1.Backend"

// Unary methods.
const (
	MethodPing                 = "Ping"
	MethodSignUp               = "SignUp"               // email, secret -> session
	MethodSignIn               = "SignIn"               // email, secret -> session
	MethodRefreshToken         = "RefreshToken"         // refreshToken -> session
	MethodReauthenticate       = "Reauthenticate"       // secret
	MethodDeleteAccount        = "DeleteAccount"        //
	MethodRequestPasswordReset = "RequestPasswordReset" // email
	MethodResetPassword        = "ResetPassword"        // token, secret

	MethodGetDocument    = "GetDocument"    // collection, id -> document
	MethodQueryDocuments = "QueryDocuments" // query -> docs
	MethodAddDocument    = "AddDocument"    // collection, data -> id
	MethodSetDocument    = "SetDocument"    // collection, id, data
	MethodUpdateDocument = "UpdateDocument" // collection, id, data
	MethodDeleteDocument = "DeleteDocument" // collection, id

	MethodUploadMedia = "UploadMedia" // name, data (base64) -> url
)

// MethodWatch is the server-streaming live query: the client sends one query
// and receives a snapshot message per change until it cancels.
const MethodWatch = "Watch"

// Message keys.
const (
	KeyEmail        = "email"
	KeySecret       = "secret"
	KeyUserID       = "userId"
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyStatus       = "status"
	KeyCollection   = "collection"
	KeyID           = "id"
	KeyData         = "data"
	KeyDocs         = "docs"
	KeyQuery        = "query"
	KeyReadAt       = "readAt"
	KeyName         = "name"
	KeyURL          = "url"
	KeyToken        = "token"
)

// StatusOK is the Ping response status.
const StatusOK = "OK"

// FullMethod returns the method path used on the wire.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// WatchStreamDesc describes the Watch stream for clients.
var WatchStreamDesc = grpc.StreamDesc{
	StreamName:    MethodWatch,
	ServerStreams: true,
}

// Public reports whether method can be called without an access token.
func Public(fullMethod string) bool {
	switch fullMethod {
	case FullMethod(MethodPing),
		FullMethod(MethodSignUp),
		FullMethod(MethodSignIn),
		FullMethod(MethodRefreshToken),
		FullMethod(MethodRequestPasswordReset),
		FullMethod(MethodResetPassword):
		return true
	}
	return false
}
