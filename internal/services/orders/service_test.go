package orders

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/arimarlgomes/KleinManager/internal/cache"
	"github.com/arimarlgomes/KleinManager/internal/models"
	"github.com/arimarlgomes/KleinManager/internal/storage/pgorders"
	"github.com/arimarlgomes/KleinManager/internal/tracking"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

type fakeRepo struct {
	byID    map[uint64]*models.Order
	nextID  uint64
	updated []uint64
	deleted []uint64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: map[uint64]*models.Order{}, nextID: 1}
}

func (r *fakeRepo) add(o models.Order) *models.Order {
	o.ID = r.nextID
	r.nextID++
	cp := o
	r.byID[cp.ID] = &cp
	return &cp
}

func (r *fakeRepo) CreateOrder(ctx context.Context, data models.ListingData) (*models.Order, error) {
	for _, o := range r.byID {
		if o.AdID != nil && *o.AdID == data.AdID {
			return nil, pgorders.ErrDuplicateAd
		}
	}
	adID := data.AdID
	return r.add(models.Order{
		AdID:   &adID,
		Title:  data.Title,
		Price:  data.Price,
		Status: models.OrderStatusOrdered,
	}), nil
}

func (r *fakeRepo) GetOrderByID(ctx context.Context, id uint64) (*models.Order, error) {
	o, ok := r.byID[id]
	if !ok {
		return nil, pgorders.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *fakeRepo) ListOrders(ctx context.Context, search, status string, limit int) ([]*models.Order, error) {
	var out []*models.Order
	for _, o := range r.byID {
		if status != "" && o.Status != status {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeRepo) ListActiveTracking(ctx context.Context) ([]*models.Order, error) {
	var out []*models.Order
	for _, o := range r.byID {
		if o.TrackingNumber != nil && o.Status != models.OrderStatusDelivered {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeRepo) UpdateOrder(ctx context.Context, o *models.Order) error {
	if _, ok := r.byID[o.ID]; !ok {
		return pgorders.ErrNotFound
	}
	cp := *o
	r.byID[o.ID] = &cp
	r.updated = append(r.updated, o.ID)
	return nil
}

func (r *fakeRepo) DeleteOrder(ctx context.Context, id uint64) error {
	if _, ok := r.byID[id]; !ok {
		return pgorders.ErrNotFound
	}
	delete(r.byID, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeRepo) Stats(ctx context.Context) (*models.Stats, error) {
	return &models.Stats{TotalOrders: len(r.byID)}, nil
}

func (r *fakeRepo) DetailedStats(ctx context.Context) (*models.DetailedStats, error) {
	return &models.DetailedStats{ByStatus: map[string]int{}}, nil
}

type fakeScraper struct {
	data models.ListingData
	err  error
}

func (f *fakeScraper) ScrapeListing(ctx context.Context, url string) (models.ListingData, error) {
	if f.err != nil {
		return models.ListingData{}, f.err
	}
	return f.data, nil
}

// fakeReconciler stamps a fixed snapshot into every order it sees.
type fakeReconciler struct {
	snap  models.TrackingSnapshot
	err   error
	calls int
	fresh int
}

func (f *fakeReconciler) apply(o models.Order) models.Order {
	b, _ := json.Marshal(f.snap)
	v := string(b)
	o.TrackingDetails = &v
	o.DHLDetails = &v
	o.DHLStatus = &f.snap.Status
	o.Status = tracking.NextStatus(o.Status, f.snap)
	now := time.Now().UTC()
	o.DHLLastUpdate = &now
	o.UpdatedAt = now
	return o
}

func (f *fakeReconciler) Reconcile(ctx context.Context, o models.Order) (models.Order, error) {
	f.calls++
	if f.err != nil {
		return o, f.err
	}
	return f.apply(o), nil
}

func (f *fakeReconciler) ReconcileAll(ctx context.Context, orders []models.Order) ([]models.Order, int) {
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		f.calls++
		out = append(out, f.apply(o))
	}
	return out, f.fresh
}

type fakeCache struct {
	m       map[string][]byte
	deleted []string
}

func newFakeCache() *fakeCache { return &fakeCache{m: map[string][]byte{}} }

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok := c.m[key]
	return b, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.m[key] = value
	return nil
}

func (c *fakeCache) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.m, k)
		c.deleted = append(c.deleted, k)
	}
	return nil
}

type fakePublisher struct {
	topics []string
	keys   []string
	values [][]byte
}

func (p *fakePublisher) PublishJSON(ctx context.Context, topic, key string, v any) error {
	b, _ := json.Marshal(v)
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	p.values = append(p.values, b)
	return nil
}

func TestCreateFromListing(t *testing.T) {
	repo := newFakeRepo()
	sc := &fakeScraper{data: models.ListingData{AdID: "ad-1", Title: "ThinkPad", Price: 450}}
	svc := New(repo, sc, &fakeReconciler{})

	o, err := svc.CreateFromListing(context.Background(), "https://www.kleinanzeigen.de/s-anzeige/x/123456")
	require.NoError(t, err)
	require.Equal(t, "ThinkPad", o.Title)
	require.Equal(t, models.OrderStatusOrdered, o.Status)

	_, err = svc.CreateFromListing(context.Background(), "https://www.kleinanzeigen.de/s-anzeige/x/123456")
	require.ErrorIs(t, err, pgorders.ErrDuplicateAd)
}

func TestCreateFromListing_ScrapeFailure(t *testing.T) {
	svc := New(newFakeRepo(), &fakeScraper{err: errors.New("listing title not found")}, &fakeReconciler{})

	_, err := svc.CreateFromListing(context.Background(), "https://www.kleinanzeigen.de/s-anzeige/x/123456")
	require.ErrorIs(t, err, ErrBadListing)
	require.Contains(t, err.Error(), "listing title not found")
}

func TestGetOrder_UpgradesLegacyWithoutPersisting(t *testing.T) {
	repo := newFakeRepo()
	stored := repo.add(models.Order{
		Title:      "Monitor",
		Status:     models.OrderStatusShipped,
		DHLDetails: strp(`{"status":"In transit","progress":50}`),
	})
	svc := New(repo, &fakeScraper{}, &fakeReconciler{})

	got, err := svc.GetOrder(context.Background(), stored.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TrackingDetails)
	require.Equal(t, "dhl", *got.Carrier)

	// The upgrade is visible to the caller only; the stored row keeps the
	// legacy shape.
	require.Nil(t, repo.byID[stored.ID].TrackingDetails)
	require.Empty(t, repo.updated)
}

func TestGetOrder_CacheHitSkipsRepo(t *testing.T) {
	repo := newFakeRepo()
	stored := repo.add(models.Order{Title: "Monitor", Status: models.OrderStatusOrdered})
	c := newFakeCache()
	svc := New(repo, &fakeScraper{}, &fakeReconciler{}).WithCache(c, time.Minute)

	first, err := svc.GetOrder(context.Background(), stored.ID)
	require.NoError(t, err)

	// Mutate the repo copy; a second read must come from the cache.
	repo.byID[stored.ID].Title = "changed"
	second, err := svc.GetOrder(context.Background(), stored.ID)
	require.NoError(t, err)
	require.Equal(t, first.Title, second.Title)
}

func TestGetOrder_NotFound(t *testing.T) {
	svc := New(newFakeRepo(), &fakeScraper{}, &fakeReconciler{})
	_, err := svc.GetOrder(context.Background(), 404)
	require.ErrorIs(t, err, pgorders.ErrNotFound)
}

func TestUpdateOrder_AttachingTrackingTriggersReconcile(t *testing.T) {
	repo := newFakeRepo()
	stored := repo.add(models.Order{Title: "Monitor", Status: models.OrderStatusOrdered})
	rec := &fakeReconciler{snap: models.TrackingSnapshot{Carrier: "dhl", Status: "In transit", Progress: 40}}
	pub := &fakePublisher{}
	svc := New(repo, &fakeScraper{}, rec).WithPublisher(pub)

	out, err := svc.UpdateOrder(context.Background(), stored.ID, models.OrderPatch{
		TrackingNumber: strp("00340434161094000001"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, rec.calls)
	require.Equal(t, models.OrderStatusShipped, out.Status)
	require.NotNil(t, out.TrackingDetails)
	require.Len(t, pub.topics, 1)
	require.Equal(t, "order.tracking.updated", pub.topics[0])
	require.Equal(t, "1", pub.keys[0])
}

func TestUpdateOrder_NoTrackingChangeSkipsReconcile(t *testing.T) {
	repo := newFakeRepo()
	stored := repo.add(models.Order{Title: "Monitor", Status: models.OrderStatusOrdered})
	rec := &fakeReconciler{}
	svc := New(repo, &fakeScraper{}, rec)

	out, err := svc.UpdateOrder(context.Background(), stored.ID, models.OrderPatch{
		Notes: strp("picked up friday"),
	})
	require.NoError(t, err)
	require.Zero(t, rec.calls)
	require.Equal(t, "picked up friday", *out.Notes)
	require.Equal(t, "Monitor", out.Title)
}

func TestUpdateOrder_PollFaultDoesNotFailUpdate(t *testing.T) {
	repo := newFakeRepo()
	stored := repo.add(models.Order{Title: "Monitor", Status: models.OrderStatusOrdered})
	rec := &fakeReconciler{err: errors.New("dial timeout")}
	svc := New(repo, &fakeScraper{}, rec)

	out, err := svc.UpdateOrder(context.Background(), stored.ID, models.OrderPatch{
		TrackingNumber: strp("H1234567890"),
		Carrier:        strp("hermes"),
	})
	require.NoError(t, err)
	require.Equal(t, "H1234567890", *out.TrackingNumber)
	require.Equal(t, "hermes", *out.Carrier)
	require.Nil(t, out.TrackingDetails)
	require.Equal(t, models.OrderStatusOrdered, out.Status)
}

func TestDeleteOrder_InvalidatesCache(t *testing.T) {
	repo := newFakeRepo()
	stored := repo.add(models.Order{Title: "Monitor"})
	c := newFakeCache()
	svc := New(repo, &fakeScraper{}, &fakeReconciler{}).WithCache(c, time.Minute)

	_, err := svc.GetOrder(context.Background(), stored.ID)
	require.NoError(t, err)
	require.Contains(t, c.m, cache.OrderKey(stored.ID))

	require.NoError(t, svc.DeleteOrder(context.Background(), stored.ID))
	require.NotContains(t, c.m, cache.OrderKey(stored.ID))
	require.ErrorIs(t, svc.DeleteOrder(context.Background(), stored.ID), pgorders.ErrNotFound)
}

func TestRefreshTracking_PersistsAndReturnsSnapshot(t *testing.T) {
	repo := newFakeRepo()
	stored := repo.add(models.Order{
		Title:          "Monitor",
		Status:         models.OrderStatusOrdered,
		TrackingNumber: strp("00340434161094000001"),
	})
	rec := &fakeReconciler{snap: models.TrackingSnapshot{Carrier: "dhl", Status: "Delivered", Progress: 100}}
	pub := &fakePublisher{}
	svc := New(repo, &fakeScraper{}, rec).WithPublisher(pub)

	snap, err := svc.RefreshTracking(context.Background(), stored.ID)
	require.NoError(t, err)
	require.Equal(t, 100, snap.Progress)
	require.Equal(t, models.OrderStatusDelivered, repo.byID[stored.ID].Status)
	require.Len(t, pub.topics, 1)
}

func TestRefreshTracking_FaultPropagates(t *testing.T) {
	repo := newFakeRepo()
	stored := repo.add(models.Order{
		Title:          "Monitor",
		TrackingNumber: strp("X1"),
		Status:         models.OrderStatusOrdered,
	})
	rec := &fakeReconciler{err: errors.New("dial timeout")}
	svc := New(repo, &fakeScraper{}, rec)

	_, err := svc.RefreshTracking(context.Background(), stored.ID)
	require.Error(t, err)
	require.Empty(t, repo.updated)
}

func TestRefreshAll_PersistsAndPublishesPerOrder(t *testing.T) {
	repo := newFakeRepo()
	repo.add(models.Order{Title: "A", Status: models.OrderStatusOrdered, TrackingNumber: strp("A1")})
	repo.add(models.Order{Title: "B", Status: models.OrderStatusShipped, TrackingNumber: strp("B1")})
	repo.add(models.Order{Title: "C", Status: models.OrderStatusDelivered, TrackingNumber: strp("C1")})
	rec := &fakeReconciler{snap: models.TrackingSnapshot{Carrier: "dhl", Status: "In transit", Progress: 50,
		History: []models.TrackingEvent{{Status: "In transit"}}}, fresh: 2}
	pub := &fakePublisher{}
	c := newFakeCache()
	svc := New(repo, &fakeScraper{}, rec).WithPublisher(pub).WithCache(c, time.Minute)

	fresh, err := svc.RefreshAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, fresh)
	// The delivered order is not part of the worklist.
	require.Equal(t, 2, rec.calls)
	require.Len(t, repo.updated, 2)
	require.Len(t, pub.topics, 2)
}
