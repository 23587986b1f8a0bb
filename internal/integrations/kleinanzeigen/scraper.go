package kleinanzeigen

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/arimarlgomes/KleinManager/internal/models"
	"github.com/pkg/errors"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// Scraper pulls listing data from a Kleinanzeigen ad page. The site serves
// everything needed in the initial HTML, so plain GET plus pattern matching
// is enough; no headless browser.
type Scraper struct {
	http      *http.Client
	userAgent string
}

func New() *Scraper {
	return &Scraper{
		http:      &http.Client{Timeout: 15 * time.Second},
		userAgent: defaultUserAgent,
	}
}

func (s *Scraper) WithHTTPClient(c *http.Client) *Scraper {
	if c != nil {
		s.http = c
	}
	return s
}

var (
	reAdID       = regexp.MustCompile(`(\d{6,})/?$`)
	reMeta       = regexp.MustCompile(`<meta[^>]+property="og:(title|description|image)"[^>]+content="([^"]*)"`)
	rePrice      = regexp.MustCompile(`id="viewad-price"[^>]*>\s*([^<]+)<`)
	reLocality   = regexp.MustCompile(`id="viewad-locality"[^>]*>\s*([^<]+)<`)
	reBreadcrumb = regexp.MustCompile(`class="breadcrump-link"[^>]*>\s*<span[^>]*>([^<]+)</span>`)
	reSeller     = regexp.MustCompile(`class="userprofile-vip"[^>]*href="([^"]+)"[^>]*>\s*([^<]+)<`)
	reSince      = regexp.MustCompile(`Aktiv seit\s+([0-9.]+)`)
	rePriceNum   = regexp.MustCompile(`([\d.]+(?:,\d+)?)`)
)

func (s *Scraper) ScrapeListing(ctx context.Context, listingURL string) (models.ListingData, error) {
	u, err := url.Parse(listingURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return models.ListingData{}, errors.New("invalid listing url")
	}
	m := reAdID.FindStringSubmatch(strings.TrimRight(u.Path, "/"))
	if m == nil {
		return models.ListingData{}, errors.New("listing url carries no ad id")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listingURL, nil)
	if err != nil {
		return models.ListingData{}, errors.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9")

	resp, err := s.http.Do(req)
	if err != nil {
		return models.ListingData{}, errors.Wrap(err, "fetch listing")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ListingData{}, errors.Errorf("fetch listing: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return models.ListingData{}, errors.Wrap(err, "read listing")
	}

	return parseListing(u, m[1], string(body))
}

func parseListing(u *url.URL, adID, html string) (models.ListingData, error) {
	data := models.ListingData{AdID: adID, ArticleURL: u.String()}

	for _, mm := range reMeta.FindAllStringSubmatch(html, -1) {
		val := htmlUnescape(strings.TrimSpace(mm[2]))
		switch mm[1] {
		case "title":
			if data.Title == "" {
				data.Title = stripTitleSuffix(val)
			}
		case "description":
			if val != "" && data.Description == nil {
				data.Description = &val
			}
		case "image":
			if val != "" {
				data.ImageURLs = append(data.ImageURLs, val)
			}
		}
	}
	if data.Title == "" {
		return models.ListingData{}, errors.New("listing title not found")
	}

	if m := rePrice.FindStringSubmatch(html); m != nil {
		data.Price = parsePrice(m[1])
	}
	if m := reLocality.FindStringSubmatch(html); m != nil {
		v := htmlUnescape(strings.TrimSpace(m[1]))
		if v != "" {
			data.Location = &v
		}
	}
	if crumbs := reBreadcrumb.FindAllStringSubmatch(html, -1); len(crumbs) > 0 {
		v := htmlUnescape(strings.TrimSpace(crumbs[len(crumbs)-1][1]))
		if v != "" {
			data.Category = &v
		}
	}
	if m := reSeller.FindStringSubmatch(html); m != nil {
		profile := m[1]
		if strings.HasPrefix(profile, "/") {
			profile = u.Scheme + "://" + u.Host + profile
		}
		name := htmlUnescape(strings.TrimSpace(m[2]))
		if name != "" {
			data.SellerName = &name
			data.SellerProfileURL = &profile
		}
	}
	if m := reSince.FindStringSubmatch(html); m != nil {
		v := m[1]
		data.SellerSince = &v
	}
	data.SellerIsNew = strings.Contains(html, "Neuer Nutzer") || data.SellerSince == nil

	return data, nil
}

// stripTitleSuffix drops the site name the og:title carries after the ad
// title, e.g. "ThinkPad X1 | Kleinanzeigen ist jetzt Kleinanzeigen".
func stripTitleSuffix(title string) string {
	if i := strings.Index(title, " | "); i > 0 {
		return strings.TrimSpace(title[:i])
	}
	return strings.TrimSpace(title)
}

// parsePrice handles German price formats like "450 €", "1.250 € VB", "Zu
// verschenken". Unparseable prices come back as 0.
func parsePrice(raw string) float64 {
	m := rePriceNum.FindStringSubmatch(raw)
	if m == nil {
		return 0
	}
	n := strings.ReplaceAll(m[1], ".", "")
	n = strings.ReplaceAll(n, ",", ".")
	v, err := strconv.ParseFloat(n, 64)
	if err != nil {
		return 0
	}
	return v
}

func htmlUnescape(s string) string {
	r := strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&nbsp;", " ")
	return r.Replace(s)
}
