package scraper

import (
	"context"

	"github.com/arimarlgomes/KleinManager/internal/models"
)

// Scraper turns a marketplace listing URL into structured order data.
type Scraper interface {
	ScrapeListing(ctx context.Context, url string) (models.ListingData, error)
}
