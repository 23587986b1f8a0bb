package pgorders

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS orders (
  id BIGSERIAL PRIMARY KEY,
  ad_id TEXT NULL,
  title TEXT NOT NULL,
  price DOUBLE PRECISION NOT NULL DEFAULT 0,
  description TEXT NULL,
  category TEXT NULL,
  location TEXT NULL,
  seller_name TEXT NULL,
  seller_profile_url TEXT NULL,
  seller_since TEXT NULL,
  seller_is_new BOOLEAN NOT NULL DEFAULT FALSE,
  article_url TEXT NULL,
  image_urls TEXT NULL,
  local_images TEXT NULL,
  tracking_number TEXT NULL,
  carrier TEXT NULL,
  tracking_details TEXT NULL,
  dhl_status TEXT NULL,
  dhl_details TEXT NULL,
  dhl_last_update TIMESTAMPTZ NULL,
  status TEXT NOT NULL,
  notes TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_orders_ad_id ON orders(ad_id) WHERE ad_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_tracking_number ON orders(tracking_number) WHERE tracking_number IS NOT NULL`,
		// Migrations for rows written before the multi-carrier columns existed.
		`ALTER TABLE orders ADD COLUMN IF NOT EXISTS carrier TEXT NULL`,
		`ALTER TABLE orders ADD COLUMN IF NOT EXISTS tracking_details TEXT NULL`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
