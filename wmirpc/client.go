// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package wmirpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a local wmiq service. The service only listens on
// loopback, so the transport is not encrypted.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) Exec(ctx context.Context) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, execMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func (c *Client) Records(ctx context.Context) ([]map[string]any, error) {
	out := new(structpb.ListValue)
	if err := c.conn.Invoke(ctx, recordsMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		rows = append(rows, v.GetStructValue().AsMap())
	}
	return rows, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
