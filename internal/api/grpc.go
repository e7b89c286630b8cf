package api

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/session"
)

const (
	SessionServiceName = "livequiz.v1.SessionService"

	CreateSessionMethod = "/" + SessionServiceName + "/CreateSession"
	GetSessionMethod    = "/" + SessionServiceName + "/GetSession"
)

// SessionServiceServer carries JSON-shaped messages as structpb.Struct, with the same fields
// as the HTTP API.
type SessionServiceServer interface {
	CreateSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var sessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateSession",
			Handler:    createSessionHandler,
		},
		{
			MethodName: "GetSession",
			Handler:    getSessionHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "livequiz/v1/session.proto",
}

func RegisterSessionServiceServer(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	s.RegisterService(&sessionServiceDesc, srv)
}

func createSessionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServiceServer).CreateSession(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: CreateSessionMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionServiceServer).CreateSession(ctx, req.(*structpb.Struct))
	}

	return interceptor(ctx, in, info, handler)
}

func getSessionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServiceServer).GetSession(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetSessionMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionServiceServer).GetSession(ctx, req.(*structpb.Struct))
	}

	return interceptor(ctx, in, info, handler)
}

func (a *API) CreateSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body CreateSessionBody
	if err := fromStruct(req, &body); err != nil {
		return nil, err
	}

	ss, err := a.ss.CreateSession(ctx, body.toRequest())
	if err != nil {
		return nil, err
	}

	return toStruct(a.sessionResponse(ss, ""))
}

func (a *API) GetSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	code := req.GetFields()["code"].GetStringValue()

	ss, err := a.ss.GetSession(ctx, session.GetSessionRequest{Code: code})
	if err != nil {
		return nil, err
	}

	return toStruct(a.sessionResponse(ss, ""))
}

func fromStruct(s *structpb.Struct, v any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return errors.InvalidArgument("invalid request: %v", err)
	}

	if err := json.Unmarshal(b, v); err != nil {
		return errors.InvalidArgument("invalid request: %v", err)
	}

	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}

	s := new(structpb.Struct)
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return s, nil
}
