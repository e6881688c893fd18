package handler

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/inventory-sync/internal/adapter/handler/rpc"
	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/core/service"
)

type GRPCHandler struct {
	rpc.UnimplementedInventoryServiceServer
	mutations service.InventoryMutator
	queries   *service.QueryService
	log       *zap.Logger
}

func NewGRPCHandler(mutations service.InventoryMutator, queries *service.QueryService, log *zap.Logger) *GRPCHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &GRPCHandler{mutations: mutations, queries: queries, log: log}
}

func (h *GRPCHandler) Increment(ctx context.Context, req *rpc.MutationRequest) (*rpc.InventoryReply, error) {
	rec, err := h.mutations.Increment(ctx, req.StoreID, req.ProductID, int(req.Quantity), req.PublishEvent)
	return h.mutationReply(rec, req.PublishEvent, err)
}

func (h *GRPCHandler) Decrement(ctx context.Context, req *rpc.MutationRequest) (*rpc.InventoryReply, error) {
	rec, err := h.mutations.Decrement(ctx, req.StoreID, req.ProductID, int(req.Quantity), req.PublishEvent)
	return h.mutationReply(rec, req.PublishEvent, err)
}

func (h *GRPCHandler) SetQuantity(ctx context.Context, req *rpc.MutationRequest) (*rpc.InventoryReply, error) {
	rec, err := h.mutations.SetQuantity(ctx, req.StoreID, req.ProductID, int(req.Quantity), req.PublishEvent)
	return h.mutationReply(rec, req.PublishEvent, err)
}

func (h *GRPCHandler) Get(ctx context.Context, req *rpc.GetRequest) (*rpc.InventoryReply, error) {
	rec, err := h.queries.Get(ctx, req.StoreID, req.ProductID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return toReply(*rec, false), nil
}

func (h *GRPCHandler) mutationReply(rec *domain.InventoryRecord, published bool, err error) (*rpc.InventoryReply, error) {
	if err == nil {
		return toReply(*rec, published), nil
	}
	if rec != nil && errors.Is(err, domain.ErrEventPublish) {
		return toReply(*rec, false), nil
	}
	return nil, h.toStatus(err)
}

func (h *GRPCHandler) toStatus(err error) error {
	switch domain.ErrorCode(err) {
	case domain.CodeValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	case domain.CodeInventoryNotFound, domain.CodeStoreNotFound, domain.CodeNotFound:
		return status.Error(codes.NotFound, err.Error())
	case domain.CodeInsufficientInventory:
		return status.Error(codes.FailedPrecondition, err.Error())
	case domain.CodeInventoryConflict:
		return status.Error(codes.Aborted, err.Error())
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	h.log.Error("rpc failed", zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}

func toReply(rec domain.InventoryRecord, published bool) *rpc.InventoryReply {
	return &rpc.InventoryReply{
		StoreID:        rec.StoreID,
		ProductID:      rec.ProductID,
		Quantity:       int32(rec.Quantity),
		LastUpdated:    rec.LastUpdated,
		EventPublished: published,
	}
}
