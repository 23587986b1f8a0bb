package ordersapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/arimarlgomes/KleinManager/internal/models"
	"github.com/arimarlgomes/KleinManager/internal/services/orders"
	"github.com/arimarlgomes/KleinManager/internal/storage/pgorders"
	"github.com/arimarlgomes/KleinManager/internal/tracking"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type Service interface {
	CreateFromListing(ctx context.Context, listingURL string) (*models.Order, error)
	GetOrder(ctx context.Context, id uint64) (*models.Order, error)
	ListOrders(ctx context.Context, search, status string, limit int) ([]*models.Order, error)
	ListActiveTracking(ctx context.Context) ([]*models.Order, error)
	UpdateOrder(ctx context.Context, id uint64, patch models.OrderPatch) (*models.Order, error)
	DeleteOrder(ctx context.Context, id uint64) error
	RefreshTracking(ctx context.Context, id uint64) (*models.TrackingSnapshot, error)
	RefreshAll(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*models.Stats, error)
	DetailedStats(ctx context.Context) (*models.DetailedStats, error)
}

type OrdersAPI struct {
	svc Service
}

func New(svc Service) *OrdersAPI {
	return &OrdersAPI{svc: svc}
}

// Routes builds the router for the order surface. Mounted under /api/v1.
func (a *OrdersAPI) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/orders", a.createOrder)
	r.Get("/orders", a.listOrders)
	r.Get("/orders/tracking", a.listTrackingOrders)
	r.Get("/orders/{orderID}", a.getOrder)
	r.Put("/orders/{orderID}", a.updateOrder)
	r.Delete("/orders/{orderID}", a.deleteOrder)
	r.Post("/orders/{orderID}/tracking", a.refreshTracking)
	r.Post("/tracking/update-all", a.updateAllTracking)
	r.Get("/stats", a.stats)
	r.Get("/stats/detail", a.detailedStats)

	return r
}

type orderResponse struct {
	ID               uint64     `json:"id"`
	AdID             *string    `json:"ad_id"`
	Title            string     `json:"title"`
	Price            float64    `json:"price"`
	Description      *string    `json:"description"`
	Category         *string    `json:"category"`
	Location         *string    `json:"location"`
	SellerName       *string    `json:"seller_name"`
	SellerProfileURL *string    `json:"seller_profile_url"`
	SellerSince      *string    `json:"seller_since"`
	SellerIsNew      bool       `json:"seller_is_new"`
	ArticleURL       *string    `json:"article_url"`
	ImageURLs        *string    `json:"image_urls"`
	LocalImages      *string    `json:"local_images"`
	TrackingNumber   *string    `json:"tracking_number"`
	Carrier          *string    `json:"carrier"`
	TrackingDetails  *string    `json:"tracking_details"`
	DHLStatus        *string    `json:"dhl_status"`
	DHLDetails       *string    `json:"dhl_details"`
	DHLLastUpdate    *time.Time `json:"dhl_last_update"`
	Status           string     `json:"status"`
	Notes            *string    `json:"notes"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toResponse(o *models.Order) orderResponse {
	return orderResponse{
		ID:               o.ID,
		AdID:             o.AdID,
		Title:            o.Title,
		Price:            o.Price,
		Description:      o.Description,
		Category:         o.Category,
		Location:         o.Location,
		SellerName:       o.SellerName,
		SellerProfileURL: o.SellerProfileURL,
		SellerSince:      o.SellerSince,
		SellerIsNew:      o.SellerIsNew,
		ArticleURL:       o.ArticleURL,
		ImageURLs:        o.ImageURLs,
		LocalImages:      o.LocalImages,
		TrackingNumber:   o.TrackingNumber,
		Carrier:          o.Carrier,
		TrackingDetails:  o.TrackingDetails,
		DHLStatus:        o.DHLStatus,
		DHLDetails:       o.DHLDetails,
		DHLLastUpdate:    o.DHLLastUpdate,
		Status:           o.Status,
		Notes:            o.Notes,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

func toResponses(list []*models.Order) []orderResponse {
	out := make([]orderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, toResponse(o))
	}
	return out
}

type createOrderRequest struct {
	URL string `json:"url"`
}

type updateOrderRequest struct {
	Title          *string  `json:"title"`
	Price          *float64 `json:"price"`
	TrackingNumber *string  `json:"tracking_number"`
	Carrier        *string  `json:"carrier"`
	Status         *string  `json:"status"`
	Notes          *string  `json:"notes"`
}

func (a *OrdersAPI) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	o, err := a.svc.CreateFromListing(r.Context(), req.URL)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(o))
}

func (a *OrdersAPI) listOrders(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	list, err := a.svc.ListOrders(r.Context(), r.URL.Query().Get("search"), r.URL.Query().Get("status"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponses(list))
}

func (a *OrdersAPI) listTrackingOrders(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.ListActiveTracking(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponses(list))
}

func (a *OrdersAPI) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	o, err := a.svc.GetOrder(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(o))
}

func (a *OrdersAPI) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := a.svc.UpdateOrder(r.Context(), id, models.OrderPatch{
		Title:          req.Title,
		Price:          req.Price,
		TrackingNumber: req.TrackingNumber,
		Carrier:        req.Carrier,
		Status:         req.Status,
		Notes:          req.Notes,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(o))
}

func (a *OrdersAPI) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	if err := a.svc.DeleteOrder(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Order deleted"})
}

func (a *OrdersAPI) refreshTracking(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	snap, err := a.svc.RefreshTracking(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgorders.ErrNotFound) || errors.Is(err, tracking.ErrNoTrackingNumber) {
			writeServiceError(w, err)
			return
		}
		// A transport fault during a manual refresh is the carrier's
		// problem, not ours.
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *OrdersAPI) updateAllTracking(w http.ResponseWriter, r *http.Request) {
	updated, err := a.svc.RefreshAll(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (a *OrdersAPI) stats(w http.ResponseWriter, r *http.Request) {
	st, err := a.svc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *OrdersAPI) detailedStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.svc.DetailedStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func orderID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pgorders.ErrNotFound):
		writeError(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, pgorders.ErrDuplicateAd):
		writeError(w, http.StatusBadRequest, "Order already exists")
	case errors.Is(err, orders.ErrBadListing):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tracking.ErrNoTrackingNumber):
		writeError(w, http.StatusBadRequest, "No tracking number found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}
