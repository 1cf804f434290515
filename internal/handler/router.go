package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/vehicle-auction/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware аукционного сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)

	r.Route("/api/auctions", func(r chi.Router) {
		r.Get("/", h.ListAuctions)
		r.Get("/{id}", h.GetAuction)
		r.Get("/{id}/bids", h.GetBids)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/", h.CreateAuction)
			r.Get("/my/created", h.ListCreatedAuctions)
			r.Get("/my/watching", h.ListWatchedAuctions)
			r.Post("/{id}/bids", h.SubmitBid)
			r.Delete("/{id}/bids/{bidID}", h.WithdrawBid)
			r.Post("/{id}/register", h.RegisterBidder)
			r.Post("/{id}/watch", h.ToggleWatch)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.RequireOperator)

				r.Post("/{id}/deposit", h.MarkDepositPaid)
				r.Post("/{id}/extend", h.ExtendAuction)
				r.Post("/{id}/cancel", h.CancelAuction)
				r.Post("/{id}/close", h.CloseAuction)
			})
		})
	})

	r.Route("/api/bids", func(r chi.Router) {
		r.Get("/highest/{auctionID}", h.HighestBid)
		r.With(h.authMiddleware.Middleware).Get("/my-bids", h.ListMyBids)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
