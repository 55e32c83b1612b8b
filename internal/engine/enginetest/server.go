package enginetest

import (
	"net"
	"sync"

	"github.com/signalsfoundry/commodity-pathsim/internal/engine"
	"google.golang.org/grpc"
)

// Server is a Backend served over gRPC on a loopback port.
type Server struct {
	Addr    string
	Backend *Backend

	grpcServer *grpc.Server
	serveErr   chan error
	closeOnce  sync.Once
}

// NewServer starts serving b (a fresh Backend when nil) on 127.0.0.1:0.
func NewServer(b *Backend, opts ...grpc.ServerOption) (*Server, error) {
	if b == nil {
		b = NewBackend()
	}
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	gs := grpc.NewServer(opts...)
	engine.RegisterBackend(gs, b)

	s := &Server{
		Addr:       lis.Addr().String(),
		Backend:    b,
		grpcServer: gs,
		serveErr:   make(chan error, 1),
	}
	go func() {
		s.serveErr <- gs.Serve(lis)
	}()
	return s, nil
}

// Close stops the server immediately. It is safe to call more than once.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.grpcServer.Stop()
		<-s.serveErr
	})
}
