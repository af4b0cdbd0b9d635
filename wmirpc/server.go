// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package wmirpc

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/runetale/wmiq/semaphore"
	"github.com/runetale/wmiq/wmi"
	"github.com/runetale/wmiq/wmilog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Querier runs one full query cycle per call. *wmi.Client satisfies it.
type Querier interface {
	Run() (*wmi.Result, error)
}

type Server struct {
	querier Querier
	sem     semaphore.Semaphore

	wmilog *wmilog.Wmilog
}

// NewServer returns a server running at most parallel queries at once.
// Every call opens and tears down its own session.
func NewServer(querier Querier, parallel int, wmilog *wmilog.Wmilog) *Server {
	return &Server{
		querier: querier,
		sem:     semaphore.NewSemaphore(parallel),
		wmilog:  wmilog,
	}
}

func (s *Server) Exec(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	res, err := s.run(ctx)
	if err != nil {
		return nil, err
	}
	return toStruct(res.Fields), nil
}

func (s *Server) Records(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	res, err := s.run(ctx)
	if err != nil {
		return nil, err
	}
	l := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(res.Records))}
	for _, row := range res.Records {
		l.Values = append(l.Values, structpb.NewStructValue(toStruct(row)))
	}
	return l, nil
}

func (s *Server) run(ctx context.Context) (*wmi.Result, error) {
	if err := s.sem.Acquire(ctx); err != nil {
		return nil, status.FromContextError(err).Err()
	}
	defer s.sem.Release()
	s.wmilog.Logger.Debugf("%d of %d queries running", s.sem.InUse(), s.sem.Cap())

	res, err := s.querier.Run()
	if err != nil {
		return nil, toStatus(err)
	}
	return res, nil
}

// toStatus keeps the stage message, including the hex status code, as
// the status message seen by the caller.
func toStatus(err error) error {
	var se *wmi.StageError
	switch {
	case errors.Is(err, wmi.ErrNotSupported):
		return status.Error(codes.Unimplemented, err.Error())
	case errors.As(err, &se):
		return status.Error(codes.Unavailable, se.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func (s *Server) logUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		s.wmilog.Logger.Warnf("%s failed after %v, because %v", info.FullMethod, time.Since(start), err)
		return resp, err
	}
	s.wmilog.Logger.Debugf("%s done in %v", info.FullMethod, time.Since(start))
	return resp, nil
}

// Serve accepts connections on ln until ctx is done, then stops
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	gs := grpc.NewServer(grpc.UnaryInterceptor(s.logUnary))
	RegisterQueryServer(gs, s)

	runDone := make(chan struct{})
	defer close(runDone)

	go func() {
		select {
		case <-ctx.Done():
			gs.GracefulStop()
		case <-runDone:
		}
	}()

	s.wmilog.Logger.Infof("serving %s on %s", serviceName, ln.Addr())
	if err := gs.Serve(ln); err != nil {
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
	return nil
}
