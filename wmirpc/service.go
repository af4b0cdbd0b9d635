// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

// Package wmirpc exposes wmi queries to other local processes over gRPC.
// Messages are protobuf well-known types, so no generated code is needed.
package wmirpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName   = "wmiq.v1.Query"
	execMethod    = "/" + serviceName + "/Exec"
	recordsMethod = "/" + serviceName + "/Records"
)

// QueryServer is the server API for the wmiq.v1.Query service.
type QueryServer interface {
	// Exec returns the fields of the latest record.
	Exec(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// Records returns every record, one Struct per record.
	Records(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
}

func RegisterQueryServer(s grpc.ServiceRegistrar, srv QueryServer) {
	s.RegisterService(&queryServiceDesc, srv)
}

var queryServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*QueryServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Exec",
			Handler:    execHandler,
		},
		{
			MethodName: "Records",
			Handler:    recordsHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

func execHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QueryServer).Exec(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: execMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(QueryServer).Exec(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func recordsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QueryServer).Records(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: recordsMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(QueryServer).Records(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// toStruct converts a record mapping. Values are the scalars produced by
// the wmi package; anything else is rendered as a string.
func toStruct(m map[string]any) *structpb.Struct {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(m))}
	for k, v := range m {
		s.Fields[k] = toValue(v)
	}
	return s
}

func toValue(v any) *structpb.Value {
	switch x := v.(type) {
	case nil:
		return structpb.NewNullValue()
	case string:
		return structpb.NewStringValue(x)
	case bool:
		return structpb.NewBoolValue(x)
	case int:
		return structpb.NewNumberValue(float64(x))
	case int8:
		return structpb.NewNumberValue(float64(x))
	case int16:
		return structpb.NewNumberValue(float64(x))
	case int32:
		return structpb.NewNumberValue(float64(x))
	case int64:
		return structpb.NewNumberValue(float64(x))
	case uint:
		return structpb.NewNumberValue(float64(x))
	case uint8:
		return structpb.NewNumberValue(float64(x))
	case uint16:
		return structpb.NewNumberValue(float64(x))
	case uint32:
		return structpb.NewNumberValue(float64(x))
	case uint64:
		return structpb.NewNumberValue(float64(x))
	case float32:
		return structpb.NewNumberValue(float64(x))
	case float64:
		return structpb.NewNumberValue(x)
	case []any:
		l := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(x))}
		for _, e := range x {
			l.Values = append(l.Values, toValue(e))
		}
		return structpb.NewListValue(l)
	case map[string]any:
		return structpb.NewStructValue(toStruct(x))
	default:
		return structpb.NewStringValue(fmt.Sprint(x))
	}
}
