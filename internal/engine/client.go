package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/commodity-pathsim/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// DefaultCallTimeout bounds calls that have no caller context (Disconnect).
const DefaultCallTimeout = 30 * time.Second

// livenessTimeout caps the IsAlive round trip made by IsConnected.
const livenessTimeout = 5 * time.Second

// GRPCConnector opens sessions against an engine gRPC endpoint. Each session
// owns its own client connection.
type GRPCConnector struct {
	// Target is the engine address, e.g. "localhost:7443".
	Target string
	// DialOptions are appended to the default insecure transport credentials.
	DialOptions []grpc.DialOption
	// CallTimeout bounds Disconnect and transient Exit connections.
	CallTimeout time.Duration
	// ConnectTimeout bounds the Connect RPC, which may include engine
	// startup. Zero leaves it to the caller's context.
	ConnectTimeout time.Duration
}

// NewGRPCConnector constructs a connector for target.
func NewGRPCConnector(target string, opts ...grpc.DialOption) *GRPCConnector {
	return &GRPCConnector{
		Target:      target,
		DialOptions: opts,
		CallTimeout: DefaultCallTimeout,
	}
}

func (c *GRPCConnector) dial() (*grpc.ClientConn, error) {
	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, c.DialOptions...)
	return grpc.NewClient(c.Target, opts...)
}

// Connect dials the engine and asks it for a session honouring opts.
func (c *GRPCConnector) Connect(ctx context.Context, opts ConnectOptions) (Session, error) {
	if c.Target == "" {
		return nil, fmt.Errorf("engine target is empty")
	}
	conn, err := c.dial()
	if err != nil {
		return nil, fmt.Errorf("dial engine %s: %w", c.Target, err)
	}

	if c.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.ConnectTimeout)
		defer cancel()
	}
	resp := new(structpb.Struct)
	if err := conn.Invoke(ctx, fullMethod(methodConnect), connectRequest(opts), resp); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open engine session at %s: %w", c.Target, err)
	}
	id := stringField(resp, fieldSessionID)
	if id == "" {
		_ = conn.Close()
		return nil, fmt.Errorf("open engine session at %s: empty session id", c.Target)
	}

	timeout := c.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &grpcSession{
		id:          id,
		conn:        conn,
		connector:   c,
		callTimeout: timeout,
	}, nil
}

type grpcSession struct {
	id          string
	conn        *grpc.ClientConn
	connector   *GRPCConnector
	callTimeout time.Duration

	mu     sync.Mutex
	closed bool
	exited bool
}

func (s *grpcSession) ID() string { return s.id }

func (s *grpcSession) liveConn() (*grpc.ClientConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.exited {
		return nil, ErrSessionClosed
	}
	return s.conn, nil
}

func (s *grpcSession) Eval(ctx context.Context, command string) error {
	conn, err := s.liveConn()
	if err != nil {
		return err
	}
	req := sessionRequest(s.id, map[string]*structpb.Value{
		fieldCommand: structpb.NewStringValue(command),
	})
	return conn.Invoke(ctx, fullMethod(methodEval), req, new(emptypb.Empty))
}

func (s *grpcSession) PutMatrix(ctx context.Context, name string, m model.Matrix) error {
	conn, err := s.liveConn()
	if err != nil {
		return err
	}
	req := sessionRequest(s.id, map[string]*structpb.Value{
		fieldName:   structpb.NewStringValue(name),
		fieldMatrix: matrixToValue(m),
	})
	return conn.Invoke(ctx, fullMethod(methodPutMatrix), req, new(emptypb.Empty))
}

func (s *grpcSession) GetMatrix(ctx context.Context, name string) (model.Matrix, error) {
	conn, err := s.liveConn()
	if err != nil {
		return nil, err
	}
	req := sessionRequest(s.id, map[string]*structpb.Value{
		fieldName: structpb.NewStringValue(name),
	})
	resp := new(structpb.Struct)
	if err := conn.Invoke(ctx, fullMethod(methodGetMatrix), req, resp); err != nil {
		return nil, err
	}
	m, err := matrixFromValue(resp.GetFields()[fieldMatrix])
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", name, err)
	}
	return m, nil
}

// IsConnected asks the engine whether the process behind the session is
// still running. A process the engine no longer knows, or an engine that
// cannot be reached, closes the session for good.
func (s *grpcSession) IsConnected() bool {
	conn, err := s.liveConn()
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), min(s.callTimeout, livenessTimeout))
	defer cancel()
	resp := new(wrapperspb.BoolValue)
	if err := conn.Invoke(ctx, fullMethod(methodIsAlive), sessionRequest(s.id, nil), resp); err != nil || !resp.GetValue() {
		s.markGone()
		return false
	}
	return true
}

// markGone closes the local side of a session whose process has gone away.
// Exit still works afterwards over a transient connection.
func (s *grpcSession) markGone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.Close()
}

// Disconnect detaches from the engine and closes the client connection.
// Disconnecting an already disconnected session reports success.
func (s *grpcSession) Disconnect() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true
	}
	s.closed = true
	conn := s.conn
	exited := s.exited
	s.mu.Unlock()

	detached := exited
	if !exited {
		ctx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
		defer cancel()
		resp := new(wrapperspb.BoolValue)
		err := conn.Invoke(ctx, fullMethod(methodDisconnect), sessionRequest(s.id, nil), resp)
		detached = err == nil && resp.GetValue()
	}
	return conn.Close() == nil && detached
}

// Exit terminates the engine process. After Disconnect the request travels
// over a short-lived connection of its own.
func (s *grpcSession) Exit(ctx context.Context) error {
	s.mu.Lock()
	if s.exited {
		s.mu.Unlock()
		return nil
	}
	conn, closed := s.conn, s.closed
	s.mu.Unlock()

	if closed {
		transient, err := s.connector.dial()
		if err != nil {
			return fmt.Errorf("dial engine for exit: %w", err)
		}
		defer transient.Close()
		conn = transient
	}

	if err := conn.Invoke(ctx, fullMethod(methodExit), sessionRequest(s.id, nil), new(emptypb.Empty)); err != nil {
		return err
	}

	s.mu.Lock()
	s.exited = true
	if !s.closed {
		// The process is gone; nothing is left to detach from.
		s.closed = true
		_ = s.conn.Close()
	}
	s.mu.Unlock()
	return nil
}

var _ Session = (*grpcSession)(nil)
