package engine

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/commodity-pathsim/model"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Backend is the engine side of the protocol. Engine adapters implement it
// and expose it with RegisterBackend.
type Backend interface {
	Connect(ctx context.Context, opts ConnectOptions) (sessionID string, err error)
	Eval(ctx context.Context, sessionID, command string) error
	PutMatrix(ctx context.Context, sessionID, name string, m model.Matrix) error
	GetMatrix(ctx context.Context, sessionID, name string) (model.Matrix, error)
	Disconnect(ctx context.Context, sessionID string) (bool, error)
	Exit(ctx context.Context, sessionID string) error
	// IsAlive reports whether the process behind sessionID is still running.
	IsAlive(ctx context.Context, sessionID string) (bool, error)
}

// RegisterBackend registers b as the engine service on s.
func RegisterBackend(s grpc.ServiceRegistrar, b Backend) {
	s.RegisterService(&serviceDesc, b)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Backend)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodConnect, Handler: unaryHandler(methodConnect, handleConnect)},
		{MethodName: methodEval, Handler: unaryHandler(methodEval, handleEval)},
		{MethodName: methodPutMatrix, Handler: unaryHandler(methodPutMatrix, handlePutMatrix)},
		{MethodName: methodGetMatrix, Handler: unaryHandler(methodGetMatrix, handleGetMatrix)},
		{MethodName: methodDisconnect, Handler: unaryHandler(methodDisconnect, handleDisconnect)},
		{MethodName: methodExit, Handler: unaryHandler(methodExit, handleExit)},
		{MethodName: methodIsAlive, Handler: unaryHandler(methodIsAlive, handleIsAlive)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pathsim/engine/v1/engine.proto",
}

type backendCall func(ctx context.Context, b Backend, req *structpb.Struct) (any, error)

// unaryHandler adapts a backendCall to grpc's method handler signature,
// routing through the server interceptor chain when one is installed.
func unaryHandler(method string, call backendCall) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(structpb.Struct)
		if err := dec(req); err != nil {
			return nil, err
		}
		b := srv.(Backend)
		if interceptor == nil {
			return call(ctx, b, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(ctx, b, req.(*structpb.Struct))
		}
		return interceptor(ctx, req, info, handler)
	}
}

func handleConnect(ctx context.Context, b Backend, req *structpb.Struct) (any, error) {
	id, err := b.Connect(ctx, connectOptionsFrom(req))
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldSessionID: structpb.NewStringValue(id),
	}}, nil
}

func handleEval(ctx context.Context, b Backend, req *structpb.Struct) (any, error) {
	if err := b.Eval(ctx, stringField(req, fieldSessionID), stringField(req, fieldCommand)); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func handlePutMatrix(ctx context.Context, b Backend, req *structpb.Struct) (any, error) {
	m, err := matrixFromValue(req.GetFields()[fieldMatrix])
	if err != nil {
		return nil, fmt.Errorf("decode matrix: %w", err)
	}
	if err := b.PutMatrix(ctx, stringField(req, fieldSessionID), stringField(req, fieldName), m); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func handleGetMatrix(ctx context.Context, b Backend, req *structpb.Struct) (any, error) {
	m, err := b.GetMatrix(ctx, stringField(req, fieldSessionID), stringField(req, fieldName))
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldMatrix: matrixToValue(m),
	}}, nil
}

func handleDisconnect(ctx context.Context, b Backend, req *structpb.Struct) (any, error) {
	ok, err := b.Disconnect(ctx, stringField(req, fieldSessionID))
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bool(ok), nil
}

func handleExit(ctx context.Context, b Backend, req *structpb.Struct) (any, error) {
	if err := b.Exit(ctx, stringField(req, fieldSessionID)); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func handleIsAlive(ctx context.Context, b Backend, req *structpb.Struct) (any, error) {
	alive, err := b.IsAlive(ctx, stringField(req, fieldSessionID))
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bool(alive), nil
}
