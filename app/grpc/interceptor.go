package grpc

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-fan-billing/app/factory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const requestIDHeader = "x-request-id"

type requestIDContextKey struct{}

var logger = factory.NewModuleLogger("grpc")

// RequestIDInterceptor propagates the caller's x-request-id or assigns a grpc- prefixed one.
func RequestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		requestID := requestIDFromMetadata(ctx)
		if requestID == "" {
			requestID = "grpc-" + uuid.NewString()
		}

		ctx = context.WithValue(ctx, requestIDContextKey{}, requestID)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDHeader, requestID))

		return handler(ctx, req)
	}
}

func LoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		latency := time.Since(start)

		entry := LoggerFromContext(ctx).WithFields(logrus.Fields{
			"method":     info.FullMethod,
			"grpc_code":  status.Code(err).String(),
			"latency":    latency.String(),
			"latency_ns": latency.Nanoseconds(),
		})
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			entry = entry.WithField("peer", p.Addr.String())
		}

		if err != nil {
			entry.WithError(err).Warn("grpc_request")
		} else {
			entry.Info("grpc_request")
		}
		return resp, err
	}
}

func RecoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (_ interface{}, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				LoggerFromContext(ctx).WithFields(logrus.Fields{
					"method": info.FullMethod,
					"panic":  rec,
					"stack":  string(debug.Stack()),
				}).Error("grpc_panic_recovered")
				err = status.Error(codes.Internal, "internal server error")
			}
		}()

		return handler(ctx, req)
	}
}

func RequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	return requestID
}

func LoggerFromContext(ctx context.Context) logrus.FieldLogger {
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		return logger.WithField("request_id", requestID)
	}
	return logger
}

func requestIDFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(requestIDHeader); len(values) > 0 {
		return values[0]
	}
	return ""
}
