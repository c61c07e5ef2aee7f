// Package grpc serves the vehiclecheck.v1.Backend service: identity RPCs
// backed by accounts.Service, document RPCs and the Watch stream backed by a
// docstore.Store, and media uploads.
//
// The service is registered by hand from a grpc.ServiceDesc; every message
// is a google.protobuf.Struct laid out as described in package wire.
package grpc

import (
	"context"
	"net"
	"sync"

	"google.golang.org/grpc"

	"github.com/dmitrijs2005/vehiclecheck/internal/docstore"
	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
	"github.com/dmitrijs2005/vehiclecheck/internal/server/accounts"
)

// Uploader stores media and returns a URL it can be read back from.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

type Server struct {
	address   string
	accounts  accounts.Service
	docs      docstore.Store
	media     Uploader
	logger    logging.Logger
	jwtSecret []byte
	metrics   *Metrics

	// quit ends open Watch streams so GracefulStop does not wait on them.
	quit     chan struct{}
	quitOnce sync.Once
}

// NewServer builds the backend service. media may be nil, in which case
// UploadMedia answers Unimplemented.
func NewServer(a string, l logging.Logger, as accounts.Service, docs docstore.Store, media Uploader, secretKey string, m *Metrics) *Server {
	if m == nil {
		m = NewMetrics(nil)
	}
	return &Server{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		accounts:  as,
		docs:      docs,
		media:     media,
		jwtSecret: []byte(secretKey),
		metrics:   m,
		quit:      make(chan struct{}),
	}
}

// NewGRPCServer returns a grpc.Server with the interceptors installed and the
// service registered. Run uses it; tests serve it over bufconn.
func (s *Server) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(s.metricsInterceptor, s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.streamMetricsInterceptor, s.streamAccessTokenInterceptor),
	)
	srv := grpc.NewServer(opts...)
	srv.RegisterService(s.ServiceDesc(), s)
	return srv
}

func (s *Server) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewGRPCServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.StopWatches()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}

// StopWatches ends every open Watch stream.
func (s *Server) StopWatches() {
	s.quitOnce.Do(func() { close(s.quit) })
}
