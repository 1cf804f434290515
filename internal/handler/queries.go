package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/vehicle-auction/internal/middleware"
	"github.com/mmeshcher/vehicle-auction/internal/model"
	"github.com/mmeshcher/vehicle-auction/internal/money"
)

const (
	defaultAuctionPageSize = 12
	defaultBidPageSize     = 20
	maxPageSize            = 100

	// statusAll снимает фильтр по статусу.
	statusAll = "all"
)

// ListAuctions возвращает страницу аукционов. По умолчанию показываются
// активные аукционы, ближайшие к завершению первыми.
func (h *Handler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	f, err := parseAuctionFilter(r.URL.Query(), model.AuctionStatusActive, model.SortByEndTime, false)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	h.listAuctions(w, r, f)
}

// ListCreatedAuctions возвращает аукционы текущего пользователя как продавца.
func (h *Handler) ListCreatedAuctions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	f, err := parseAuctionFilter(r.URL.Query(), "", model.SortByCreatedAt, true)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	f.SellerID = userID
	h.listAuctions(w, r, f)
}

// ListWatchedAuctions возвращает аукционы, за которыми следит текущий пользователь.
func (h *Handler) ListWatchedAuctions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	f, err := parseAuctionFilter(r.URL.Query(), "", model.SortByEndTime, false)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	f.WatcherID = userID
	h.listAuctions(w, r, f)
}

func (h *Handler) listAuctions(w http.ResponseWriter, r *http.Request, f model.AuctionFilter) {
	list, err := h.service.ListAuctions(r.Context(), f)
	if err != nil {
		h.writeError(w, r, "list auctions", err)
		return
	}

	writeJSON(w, http.StatusOK, newAuctionListResponse(list, f.Page))
}

// ListMyBids возвращает ставки текущего пользователя, новые первыми.
func (h *Handler) ListMyBids(w http.ResponseWriter, r *http.Request) {
	bidderID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	page, err := parsePage(q, defaultBidPageSize)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	f := model.BidFilter{BidderID: bidderID, Page: page}
	if s := q.Get("status"); s != "" && s != statusAll {
		f.Status = model.BidStatus(s)
		if !f.Status.Valid() {
			badRequest(w, fmt.Sprintf("unknown bid status %q", s))
			return
		}
	}

	list, err := h.service.ListBids(r.Context(), f)
	if err != nil {
		h.writeError(w, r, "list bids", err)
		return
	}

	writeJSON(w, http.StatusOK, newBidListResponse(list, page))
}

// HighestBid возвращает текущего лидера аукциона.
func (h *Handler) HighestBid(w http.ResponseWriter, r *http.Request) {
	leader, err := h.service.HighestBid(r.Context(), chi.URLParam(r, "auctionID"))
	if err != nil {
		h.writeError(w, r, "highest bid", err)
		return
	}

	writeJSON(w, http.StatusOK, leaderResponse{
		AuctionID: leader.AuctionID,
		BidID:     leader.BidID,
		BidderID:  leader.BidderID,
		Amount:    money.FromMinor(leader.Amount),
		PlacedAt:  leader.PlacedAt,
	})
}

func parseAuctionFilter(q url.Values, status model.AuctionStatus, sortBy model.AuctionSort, desc bool) (model.AuctionFilter, error) {
	f := model.AuctionFilter{Status: status, SortBy: sortBy, Descending: desc}

	switch s := q.Get("status"); s {
	case "":
	case statusAll:
		f.Status = ""
	default:
		f.Status = model.AuctionStatus(s)
		if !f.Status.Valid() {
			return f, fmt.Errorf("unknown auction status %q", s)
		}
	}

	if s := q.Get("sortBy"); s != "" {
		f.SortBy = model.AuctionSort(s)
		if !f.SortBy.Valid() {
			return f, fmt.Errorf("unknown sort field %q", s)
		}
	}

	switch s := q.Get("sortOrder"); s {
	case "":
	case "asc":
		f.Descending = false
	case "desc":
		f.Descending = true
	default:
		return f, fmt.Errorf("sortOrder must be asc or desc, got %q", s)
	}

	page, err := parsePage(q, defaultAuctionPageSize)
	if err != nil {
		return f, err
	}
	f.Page = page
	return f, nil
}

// parsePage читает page и limit. limit больше maxPageSize урезается.
func parsePage(q url.Values, defaultSize int) (model.Page, error) {
	p := model.Page{Number: 1, Size: defaultSize}

	if s := q.Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return p, fmt.Errorf("page must be a positive integer, got %q", s)
		}
		p.Number = n
	}

	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return p, fmt.Errorf("limit must be a positive integer, got %q", s)
		}
		p.Size = min(n, maxPageSize)
	}
	return p, nil
}
