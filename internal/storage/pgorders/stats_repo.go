package pgorders

import (
	"context"

	"github.com/arimarlgomes/KleinManager/internal/models"
	"github.com/pkg/errors"
)

func (s *Storage) Stats(ctx context.Context) (*models.Stats, error) {
	var st models.Stats
	err := s.db.QueryRow(ctx, `
SELECT
  COUNT(*),
  COUNT(*) FILTER (WHERE status = $1),
  COALESCE(SUM(price), 0),
  COUNT(*) FILTER (WHERE seller_is_new)
FROM orders
`, models.OrderStatusShipped).Scan(&st.TotalOrders, &st.InTransit, &st.TotalValue, &st.NewSellers)
	if err != nil {
		return nil, errors.Wrap(err, "select stats")
	}
	return &st, nil
}

func (s *Storage) DetailedStats(ctx context.Context) (*models.DetailedStats, error) {
	out := &models.DetailedStats{ByStatus: map[string]int{}}

	rows, err := s.db.Query(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "select status counts")
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "scan status count")
		}
		out.ByStatus[status] = n
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	catRows, err := s.db.Query(ctx, `
SELECT category, COUNT(*) AS n
FROM orders
WHERE category IS NOT NULL AND category <> ''
GROUP BY category
ORDER BY n DESC, category ASC
LIMIT 5
`)
	if err != nil {
		return nil, errors.Wrap(err, "select category counts")
	}
	defer catRows.Close()
	for catRows.Next() {
		var c models.CategoryCount
		if err := catRows.Scan(&c.Category, &c.Count); err != nil {
			return nil, errors.Wrap(err, "scan category count")
		}
		out.TopCategories = append(out.TopCategories, c)
	}
	if catRows.Err() != nil {
		return nil, errors.Wrap(catRows.Err(), "rows")
	}

	return out, nil
}
