package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/md-rashed-zaman/practicepulse/libs/grpcx"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/entitlements"
)

func startGrpcServer(ctx context.Context, logger *slog.Logger, port string, practices entitlements.PracticeReader) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv := grpcx.NewServer(logger)
	entitlements.Register(srv, practices)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcx.Serve(ctx, srv, lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()
	return nil
}
