package pgorders

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/arimarlgomes/KleinManager/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const orderColumns = `
  id, ad_id, title, price, description, category, location,
  seller_name, seller_profile_url, seller_since, seller_is_new,
  article_url, image_urls, local_images,
  tracking_number, carrier, tracking_details,
  dhl_status, dhl_details, dhl_last_update,
  status, notes, created_at, updated_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	if err := row.Scan(
		&o.ID, &o.AdID, &o.Title, &o.Price, &o.Description, &o.Category, &o.Location,
		&o.SellerName, &o.SellerProfileURL, &o.SellerSince, &o.SellerIsNew,
		&o.ArticleURL, &o.ImageURLs, &o.LocalImages,
		&o.TrackingNumber, &o.Carrier, &o.TrackingDetails,
		&o.DHLStatus, &o.DHLDetails, &o.DHLLastUpdate,
		&o.Status, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &o, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateOrder inserts a new order from scraped listing data. A second order
// for the same ad id is rejected with ErrDuplicateAd.
func (s *Storage) CreateOrder(ctx context.Context, data models.ListingData) (*models.Order, error) {
	now := time.Now().UTC()

	var imageURLs *string
	if len(data.ImageURLs) > 0 {
		b, err := json.Marshal(data.ImageURLs)
		if err != nil {
			return nil, errors.Wrap(err, "marshal image urls")
		}
		v := string(b)
		imageURLs = &v
	}

	var adID *string
	if data.AdID != "" {
		adID = &data.AdID
	}

	row := s.db.QueryRow(ctx, `
INSERT INTO orders (
  ad_id, title, price, description, category, location,
  seller_name, seller_profile_url, seller_since, seller_is_new,
  article_url, image_urls,
  status, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)
RETURNING`+orderColumns, adID, data.Title, data.Price, data.Description, data.Category, data.Location,
		data.SellerName, data.SellerProfileURL, data.SellerSince, data.SellerIsNew,
		data.ArticleURL, imageURLs,
		models.OrderStatusOrdered, now)

	o, err := scanOrder(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateAd
		}
		return nil, errors.Wrap(err, "insert order")
	}
	return o, nil
}

func (s *Storage) GetOrderByID(ctx context.Context, id uint64) (*models.Order, error) {
	row := s.db.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select order")
	}
	return o, nil
}

func (s *Storage) GetOrderByAdID(ctx context.Context, adID string) (*models.Order, error) {
	row := s.db.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE ad_id = $1`, adID)
	o, err := scanOrder(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select order by ad")
	}
	return o, nil
}

// ListOrders returns orders newest first, optionally filtered by a title
// substring and/or an exact status.
func (s *Storage) ListOrders(ctx context.Context, search, status string, limit int) ([]*models.Order, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	q := `SELECT` + orderColumns + ` FROM orders`
	var conds []string
	var args []any
	if search != "" {
		args = append(args, "%"+search+"%")
		conds = append(conds, `title ILIKE $`+strconv.Itoa(len(args)))
	}
	if status != "" {
		args = append(args, status)
		conds = append(conds, `status = $`+strconv.Itoa(len(args)))
	}
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	q += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select orders")
	}
	defer rows.Close()

	return collectOrders(rows)
}

// ListActiveTracking returns orders that have a tracking number and are not
// delivered yet, oldest first so the refresher polls fairly.
func (s *Storage) ListActiveTracking(ctx context.Context) ([]*models.Order, error) {
	rows, err := s.db.Query(ctx, `
SELECT`+orderColumns+`
FROM orders
WHERE tracking_number IS NOT NULL
  AND tracking_number <> ''
  AND status <> $1
ORDER BY dhl_last_update ASC NULLS FIRST, id ASC
`, models.OrderStatusDelivered)
	if err != nil {
		return nil, errors.Wrap(err, "select active tracking")
	}
	defer rows.Close()

	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]*models.Order, error) {
	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// UpdateOrder writes the full mutable row back. Callers pass an order they
// read and modified; there is no partial update at this layer.
func (s *Storage) UpdateOrder(ctx context.Context, o *models.Order) error {
	tag, err := s.db.Exec(ctx, `
UPDATE orders
SET
  title = $2, price = $3, description = $4, category = $5, location = $6,
  seller_name = $7, seller_profile_url = $8, seller_since = $9, seller_is_new = $10,
  article_url = $11, image_urls = $12, local_images = $13,
  tracking_number = $14, carrier = $15, tracking_details = $16,
  dhl_status = $17, dhl_details = $18, dhl_last_update = $19,
  status = $20, notes = $21, updated_at = $22
WHERE id = $1
`, o.ID, o.Title, o.Price, o.Description, o.Category, o.Location,
		o.SellerName, o.SellerProfileURL, o.SellerSince, o.SellerIsNew,
		o.ArticleURL, o.ImageURLs, o.LocalImages,
		o.TrackingNumber, o.Carrier, o.TrackingDetails,
		o.DHLStatus, o.DHLDetails, o.DHLLastUpdate,
		o.Status, o.Notes, o.UpdatedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "update order")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Storage) DeleteOrder(ctx context.Context, id uint64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete order")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

