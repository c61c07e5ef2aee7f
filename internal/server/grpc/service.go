package grpc

import (
	"context"
	"sort"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/vehiclecheck/internal/wire"
)

type unaryHandler func(s *Server, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

var unaryHandlers = map[string]unaryHandler{
	wire.MethodPing:                 (*Server).Ping,
	wire.MethodSignUp:               (*Server).SignUp,
	wire.MethodSignIn:               (*Server).SignIn,
	wire.MethodRefreshToken:         (*Server).RefreshToken,
	wire.MethodReauthenticate:       (*Server).Reauthenticate,
	wire.MethodDeleteAccount:        (*Server).DeleteAccount,
	wire.MethodRequestPasswordReset: (*Server).RequestPasswordReset,
	wire.MethodResetPassword:        (*Server).ResetPassword,
	wire.MethodGetDocument:          (*Server).GetDocument,
	wire.MethodQueryDocuments:       (*Server).QueryDocuments,
	wire.MethodAddDocument:          (*Server).AddDocument,
	wire.MethodSetDocument:          (*Server).SetDocument,
	wire.MethodUpdateDocument:       (*Server).UpdateDocument,
	wire.MethodDeleteDocument:       (*Server).DeleteDocument,
	wire.MethodUploadMedia:          (*Server).UploadMedia,
}

// ServiceDesc describes the backend service for grpc.Server.RegisterService.
func (s *Server) ServiceDesc() *grpc.ServiceDesc {
	names := make([]string, 0, len(unaryHandlers))
	for name := range unaryHandlers {
		names = append(names, name)
	}
	sort.Strings(names)

	methods := make([]grpc.MethodDesc, 0, len(names))
	for _, name := range names {
		methods = append(methods, unaryMethod(name, unaryHandlers[name]))
	}

	return &grpc.ServiceDesc{
		ServiceName: wire.ServiceName,
		HandlerType: (*any)(nil),
		Methods:     methods,
		Streams: []grpc.StreamDesc{{
			StreamName:    wire.MethodWatch,
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(*Server).Watch(stream)
			},
		}},
		Metadata: "vehiclecheck/v1/backend",
	}
}

func unaryMethod(name string, h unaryHandler) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return h(srv.(*Server), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: wire.FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return h(srv.(*Server), ctx, req.(*structpb.Struct))
			})
		},
	}
}
