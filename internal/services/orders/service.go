package orders

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/arimarlgomes/KleinManager/internal/broker/messages"
	"github.com/arimarlgomes/KleinManager/internal/cache"
	"github.com/arimarlgomes/KleinManager/internal/models"
	"github.com/arimarlgomes/KleinManager/internal/scraper"
	"github.com/arimarlgomes/KleinManager/internal/tracking"
	"github.com/pkg/errors"
)

// ErrBadListing marks a create attempt whose listing page could not be
// scraped. Distinct from storage errors so the API can answer 400.
var ErrBadListing = errors.New("failed to scrape listing")

type Repository interface {
	CreateOrder(ctx context.Context, data models.ListingData) (*models.Order, error)
	GetOrderByID(ctx context.Context, id uint64) (*models.Order, error)
	ListOrders(ctx context.Context, search, status string, limit int) ([]*models.Order, error)
	ListActiveTracking(ctx context.Context) ([]*models.Order, error)
	UpdateOrder(ctx context.Context, o *models.Order) error
	DeleteOrder(ctx context.Context, id uint64) error
	Stats(ctx context.Context) (*models.Stats, error)
	DetailedStats(ctx context.Context) (*models.DetailedStats, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, o models.Order) (models.Order, error)
	ReconcileAll(ctx context.Context, orders []models.Order) ([]models.Order, int)
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

type Service struct {
	repo    Repository
	scraper scraper.Scraper
	rec     Reconciler

	cache      cache.BytesCache
	currentTTL time.Duration

	producer Publisher
}

func New(repo Repository, sc scraper.Scraper, rec Reconciler) *Service {
	return &Service{repo: repo, scraper: sc, rec: rec}
}

func (s *Service) WithCache(c cache.BytesCache, ttl time.Duration) *Service {
	s.cache = c
	s.currentTTL = ttl
	return s
}

func (s *Service) WithPublisher(p Publisher) *Service {
	s.producer = p
	return s
}

// CreateFromListing scrapes the ad page and stores a new order in status
// Ordered. A second order for the same ad is rejected by the repository.
func (s *Service) CreateFromListing(ctx context.Context, listingURL string) (*models.Order, error) {
	data, err := s.scraper.ScrapeListing(ctx, listingURL)
	if err != nil {
		return nil, errors.WithMessage(ErrBadListing, err.Error())
	}

	o, err := s.repo.CreateOrder(ctx, data)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, o.ID)
	return o, nil
}

// GetOrder reads one order, cache first. The legacy-to-current schema upgrade
// is applied to the returned value only; it is never written back here.
func (s *Service) GetOrder(ctx context.Context, id uint64) (*models.Order, error) {
	if s.cache != nil && s.currentTTL > 0 {
		key := cache.OrderKey(id)
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var o models.Order
			if json.Unmarshal(b, &o) == nil {
				return &o, nil
			}
		}
	}

	o, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	up := tracking.Upgrade(*o)

	if s.cache != nil && s.currentTTL > 0 {
		if b, err := json.Marshal(up); err == nil {
			_ = s.cache.Set(ctx, cache.OrderKey(id), b, s.currentTTL)
		}
	}
	return &up, nil
}

func (s *Service) ListOrders(ctx context.Context, search, status string, limit int) ([]*models.Order, error) {
	list, err := s.repo.ListOrders(ctx, search, status, limit)
	if err != nil {
		return nil, err
	}
	return upgradeAll(list), nil
}

func (s *Service) ListActiveTracking(ctx context.Context) ([]*models.Order, error) {
	list, err := s.repo.ListActiveTracking(ctx)
	if err != nil {
		return nil, err
	}
	return upgradeAll(list), nil
}

func upgradeAll(list []*models.Order) []*models.Order {
	out := make([]*models.Order, 0, len(list))
	for _, o := range list {
		up := tracking.Upgrade(*o)
		out = append(out, &up)
	}
	return out
}

// UpdateOrder applies a patch. Attaching or changing the tracking number
// triggers one immediate reconcile with the patched carrier as the hint; a
// transport fault during that poll does not fail the update, the patch is
// saved without a snapshot and the next scheduled pass retries.
func (s *Service) UpdateOrder(ctx context.Context, id uint64, patch models.OrderPatch) (*models.Order, error) {
	stored, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	o := tracking.Upgrade(*stored)

	trackingChanged := patch.TrackingNumber != nil && *patch.TrackingNumber != "" &&
		(o.TrackingNumber == nil || *o.TrackingNumber != *patch.TrackingNumber)

	applyPatch(&o, patch)
	o.UpdatedAt = time.Now().UTC()

	if trackingChanged {
		polled, err := s.rec.Reconcile(ctx, o)
		if err != nil {
			slog.Warn("initial tracking poll failed", "order_id", id, "error", err.Error())
		} else {
			o = polled
		}
	}

	if err := s.repo.UpdateOrder(ctx, &o); err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	if trackingChanged {
		s.publishUpdated(ctx, &o)
	}
	return &o, nil
}

func applyPatch(o *models.Order, p models.OrderPatch) {
	if p.Title != nil {
		o.Title = *p.Title
	}
	if p.Price != nil {
		o.Price = *p.Price
	}
	if p.TrackingNumber != nil {
		v := *p.TrackingNumber
		if v == "" {
			o.TrackingNumber = nil
		} else {
			o.TrackingNumber = &v
		}
	}
	if p.Carrier != nil {
		v := *p.Carrier
		if v == "" {
			o.Carrier = nil
		} else {
			o.Carrier = &v
		}
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.Notes != nil {
		v := *p.Notes
		o.Notes = &v
	}
}

func (s *Service) DeleteOrder(ctx context.Context, id uint64) error {
	if err := s.repo.DeleteOrder(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// RefreshTracking polls the carrier once for a single order, persists the
// result and returns the fresh snapshot.
func (s *Service) RefreshTracking(ctx context.Context, id uint64) (*models.TrackingSnapshot, error) {
	stored, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	o := tracking.Upgrade(*stored)

	polled, err := s.rec.Reconcile(ctx, o)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateOrder(ctx, &polled); err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	s.publishUpdated(ctx, &polled)

	return snapshotOf(&polled), nil
}

// RefreshAll reconciles every active shipment and persists the results.
// Returns the number of meaningfully fresh polls, matching ReconcileAll.
func (s *Service) RefreshAll(ctx context.Context) (int, error) {
	active, err := s.repo.ListActiveTracking(ctx)
	if err != nil {
		return 0, err
	}

	worklist := make([]models.Order, 0, len(active))
	for _, o := range active {
		worklist = append(worklist, *o)
	}

	updated, fresh := s.rec.ReconcileAll(ctx, worklist)
	for i := range updated {
		o := updated[i]
		if err := s.repo.UpdateOrder(ctx, &o); err != nil {
			slog.Error("persist reconciled order", "order_id", o.ID, "error", err.Error())
			continue
		}
		s.invalidate(ctx, o.ID)
		s.publishUpdated(ctx, &o)
	}
	return fresh, nil
}

func (s *Service) Stats(ctx context.Context) (*models.Stats, error) {
	return s.repo.Stats(ctx)
}

func (s *Service) DetailedStats(ctx context.Context) (*models.DetailedStats, error) {
	return s.repo.DetailedStats(ctx)
}

// InvalidateOrder drops the cached state for one order. Called by the API
// when a tracking-updated message arrives from the worker.
func (s *Service) InvalidateOrder(ctx context.Context, id uint64) {
	s.invalidate(ctx, id)
}

func (s *Service) invalidate(ctx context.Context, id uint64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cache.OrderKey(id), cache.StatsKey); err != nil {
		slog.Warn("cache invalidate", "order_id", id, "error", err.Error())
	}
}

func (s *Service) publishUpdated(ctx context.Context, o *models.Order) {
	if s.producer == nil {
		return
	}
	msg := messages.OrderTrackingUpdated{
		OrderID:   o.ID,
		Status:    o.Status,
		UpdatedAt: o.UpdatedAt,
	}
	if o.Carrier != nil {
		msg.Carrier = *o.Carrier
	}
	if snap := snapshotOf(o); snap != nil {
		msg.Progress = snap.Progress
	}
	key := strconv.FormatUint(o.ID, 10)
	if err := s.producer.PublishJSON(ctx, messages.TopicOrderTrackingUpdated, key, msg); err != nil {
		slog.Error("publish tracking update", "order_id", o.ID, "error", err.Error())
	}
}

func snapshotOf(o *models.Order) *models.TrackingSnapshot {
	if o.TrackingDetails == nil || *o.TrackingDetails == "" {
		return nil
	}
	var snap models.TrackingSnapshot
	if err := json.Unmarshal([]byte(*o.TrackingDetails), &snap); err != nil {
		return nil
	}
	return &snap
}
