package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/vehicle-auction/internal/auction"
	"github.com/mmeshcher/vehicle-auction/internal/money"
	"github.com/mmeshcher/vehicle-auction/internal/service"
	"github.com/mmeshcher/vehicle-auction/internal/validation"
)

type errorResponse struct {
	Code           string           `json:"code"`
	Message        string           `json:"message"`
	MinimumBid     *decimal.Decimal `json:"minimumBid,omitempty"`
	ExtensionCount *int             `json:"extensionCount,omitempty"`
	Fields         []fieldError     `json:"fields,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var rejectionStatus = map[auction.Reason]int{
	auction.ReasonAuctionNotFound:         http.StatusNotFound,
	auction.ReasonSelfBidForbidden:        http.StatusForbidden,
	auction.ReasonRegistrationRequired:    http.StatusForbidden,
	auction.ReasonDepositRequired:         http.StatusForbidden,
	auction.ReasonAuctionNotActive:        http.StatusConflict,
	auction.ReasonExtensionLimitReached:   http.StatusConflict,
	auction.ReasonBidNotWithdrawable:      http.StatusConflict,
	auction.ReasonAlreadyRegistered:       http.StatusConflict,
	auction.ReasonRegistrationNotRequired: http.StatusConflict,
	auction.ReasonBidTooLow:               http.StatusUnprocessableEntity,
	auction.ReasonNoOpRaise:               http.StatusUnprocessableEntity,
	auction.ReasonInvalidBid:              http.StatusUnprocessableEntity,
	auction.ReasonInvalidExtension:        http.StatusUnprocessableEntity,
}

// writeError переводит ошибку сервиса в HTTP-ответ. Неожиданные ошибки
// журналируются и отдаются как 500 без подробностей.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if rej, ok := auction.AsRejection(err); ok {
		status, known := rejectionStatus[rej.Reason]
		if !known {
			status = http.StatusConflict
		}

		resp := errorResponse{Code: string(rej.Reason), Message: rej.Error()}
		switch rej.Reason {
		case auction.ReasonBidTooLow, auction.ReasonDepositRequired, auction.ReasonNoOpRaise:
			m := money.FromMinor(rej.MinimumBid)
			resp.MinimumBid = &m
		case auction.ReasonExtensionLimitReached:
			n := rej.ExtensionCount
			resp.ExtensionCount = &n
		}

		writeJSON(w, status, resp)
		return
	}

	if fields := validation.Fields(err); len(fields) > 0 {
		resp := errorResponse{Code: "ValidationFailed", Message: "invalid auction parameters"}
		for _, f := range fields {
			resp.Fields = append(resp.Fields, fieldError{Field: f.Field, Message: f.Message})
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	switch {
	case errors.Is(err, money.ErrTooPrecise), errors.Is(err, money.ErrOutOfRange):
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "InvalidAmount", Message: err.Error()})
	case errors.Is(err, service.ErrItemNotOwned):
		writeJSON(w, http.StatusForbidden, errorResponse{Code: "ItemNotOwned", Message: err.Error()})
	case errors.Is(err, service.ErrItemHasOpenAuction):
		writeJSON(w, http.StatusConflict, errorResponse{Code: "ItemHasOpenAuction", Message: err.Error()})
	case errors.Is(err, service.ErrNoBids):
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "NoBids", Message: err.Error()})
	default:
		h.logger.Error(op+" error", zap.Error(err), zap.String("uri", r.RequestURI))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BadRequest", Message: msg})
}
