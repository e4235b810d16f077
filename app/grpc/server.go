package grpc

import (
	"context"
	"errors"

	"github.com/vibast-solutions/ms-go-fan-billing/app/service"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type Server struct {
	entitlementService *service.EntitlementService
}

func NewServer(entitlementService *service.EntitlementService) *Server {
	return &Server{entitlementService: entitlementService}
}

func (s *Server) IsEntitled(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	entitled, err := s.entitlementService.IsEntitled(ctx, req.GetValue())
	if err != nil {
		return nil, s.statusFromError(ctx, err, "Is entitled failed")
	}
	return wrapperspb.Bool(entitled), nil
}

// EntitlementExpiry returns NotFound when the user holds no active order.
func (s *Server) EntitlementExpiry(ctx context.Context, req *wrapperspb.StringValue) (*timestamppb.Timestamp, error) {
	entitlement, err := s.entitlementService.Entitlement(ctx, req.GetValue())
	if err != nil {
		return nil, s.statusFromError(ctx, err, "Entitlement expiry failed")
	}
	if !entitlement.Active || entitlement.ExpiresAt == nil {
		return nil, status.Error(codes.NotFound, "no active entitlement")
	}
	return timestamppb.New(*entitlement.ExpiresAt), nil
}

func (s *Server) statusFromError(ctx context.Context, err error, message string) error {
	if errors.Is(err, service.ErrInvalidRequest) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	LoggerFromContext(ctx).WithError(err).Error(message)
	return status.Error(codes.Internal, "internal server error")
}
