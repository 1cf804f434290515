// Package handler содержит HTTP-обработчики API аукционного сервиса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/vehicle-auction/internal/auction"
	"github.com/mmeshcher/vehicle-auction/internal/middleware"
	"github.com/mmeshcher/vehicle-auction/internal/model"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateAuction(ctx context.Context, p model.NewAuctionParams) (*model.Auction, error)
	GetAuction(ctx context.Context, id string) (*model.Auction, error)
	GetBids(ctx context.Context, id string) ([]model.Bid, error)
	SubmitBid(ctx context.Context, id string, req auction.BidRequest) (model.Bid, error)
	WithdrawBid(ctx context.Context, id, bidID, bidderID string) (model.Bid, error)
	RegisterBidder(ctx context.Context, id, bidderID string) (model.Registration, error)
	MarkDepositPaid(ctx context.Context, id, bidderID string) (model.Registration, error)
	ToggleWatch(ctx context.Context, id, userID string) (bool, error)
	ExtendAuction(ctx context.Context, id string, hours int) (model.Timing, error)
	CancelAuction(ctx context.Context, id string) error
	CloseAuction(ctx context.Context, id string) error
	ListAuctions(ctx context.Context, f model.AuctionFilter) (model.AuctionList, error)
	ListBids(ctx context.Context, f model.BidFilter) (model.BidList, error)
	HighestBid(ctx context.Context, id string) (model.Leader, error)
}

// Handler реализует HTTP-обработчики API аукционного сервиса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	now            func() time.Time
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		now:            time.Now,
	}
}

// CreateAuction создаёт аукцион от имени текущего пользователя как продавца.
func (h *Handler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "malformed request body")
		return
	}

	params, err := req.params(sellerID, h.now())
	if err != nil {
		h.writeError(w, r, "create auction", err)
		return
	}

	a, err := h.service.CreateAuction(r.Context(), params)
	if err != nil {
		h.writeError(w, r, "create auction", err)
		return
	}

	writeJSON(w, http.StatusCreated, newAuctionResponse(a))
}

// GetAuction возвращает снимок аукциона.
func (h *Handler) GetAuction(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.GetAuction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, "get auction", err)
		return
	}

	writeJSON(w, http.StatusOK, newAuctionResponse(a))
}

// GetBids возвращает журнал ставок аукциона.
func (h *Handler) GetBids(w http.ResponseWriter, r *http.Request) {
	bids, err := h.service.GetBids(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, "get bids", err)
		return
	}

	resp := make([]bidResponse, 0, len(bids))
	for _, b := range bids {
		resp = append(resp, newBidResponse(b))
	}

	writeJSON(w, http.StatusOK, resp)
}

// SubmitBid принимает ставку текущего пользователя.
func (h *Handler) SubmitBid(w http.ResponseWriter, r *http.Request) {
	bidderID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req submitBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "malformed request body")
		return
	}

	bidReq, err := req.bidRequest(bidderID)
	if err != nil {
		h.writeError(w, r, "submit bid", err)
		return
	}

	b, err := h.service.SubmitBid(r.Context(), chi.URLParam(r, "id"), bidReq)
	if err != nil {
		h.writeError(w, r, "submit bid", err)
		return
	}

	writeJSON(w, http.StatusCreated, newBidResponse(b))
}

// WithdrawBid снимает ставку текущего пользователя.
func (h *Handler) WithdrawBid(w http.ResponseWriter, r *http.Request) {
	bidderID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	b, err := h.service.WithdrawBid(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "bidID"), bidderID)
	if err != nil {
		h.writeError(w, r, "withdraw bid", err)
		return
	}

	writeJSON(w, http.StatusOK, newBidResponse(b))
}

// RegisterBidder регистрирует текущего пользователя участником торгов.
func (h *Handler) RegisterBidder(w http.ResponseWriter, r *http.Request) {
	bidderID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id := chi.URLParam(r, "id")
	reg, err := h.service.RegisterBidder(r.Context(), id, bidderID)
	if err != nil {
		h.writeError(w, r, "register bidder", err)
		return
	}

	writeJSON(w, http.StatusCreated, registrationResponse{
		AuctionID:     id,
		BidderID:      bidderID,
		RegisteredAt:  reg.RegisteredAt,
		DepositPaid:   reg.DepositPaid,
		DepositPaidAt: reg.DepositPaidAt,
	})
}

// MarkDepositPaid отмечает залог участника. Доступно оператору.
func (h *Handler) MarkDepositPaid(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BidderID == "" {
		badRequest(w, "bidderId is required")
		return
	}

	id := chi.URLParam(r, "id")
	reg, err := h.service.MarkDepositPaid(r.Context(), id, req.BidderID)
	if err != nil {
		h.writeError(w, r, "mark deposit paid", err)
		return
	}

	writeJSON(w, http.StatusOK, registrationResponse{
		AuctionID:     id,
		BidderID:      req.BidderID,
		RegisteredAt:  reg.RegisteredAt,
		DepositPaid:   reg.DepositPaid,
		DepositPaidAt: reg.DepositPaidAt,
	})
}

// ToggleWatch переключает наблюдение текущего пользователя за аукционом.
func (h *Handler) ToggleWatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	watching, err := h.service.ToggleWatch(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeError(w, r, "toggle watch", err)
		return
	}

	writeJSON(w, http.StatusOK, watchResponse{Watching: watching})
}

// ExtendAuction продлевает аукцион. Доступно оператору.
func (h *Handler) ExtendAuction(w http.ResponseWriter, r *http.Request) {
	var req extendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "malformed request body")
		return
	}

	timing, err := h.service.ExtendAuction(r.Context(), chi.URLParam(r, "id"), req.hours())
	if err != nil {
		h.writeError(w, r, "extend auction", err)
		return
	}

	writeJSON(w, http.StatusOK, extendResponse{AuctionID: timing.AuctionID, EndTime: timing.EndTime})
}

// CancelAuction отменяет аукцион. Доступно оператору.
func (h *Handler) CancelAuction(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CancelAuction(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, "cancel auction", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CloseAuction досрочно завершает аукцион. Доступно оператору.
func (h *Handler) CloseAuction(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CloseAuction(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, "close auction", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
