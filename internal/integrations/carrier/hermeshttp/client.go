package hermeshttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/arimarlgomes/KleinManager/internal/integrations/carrier"
	"github.com/pkg/errors"
)

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.my-deliveries.de"
	}
	return &Client{
		baseURL: baseURL,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type hermesResp struct {
	Parcel struct {
		TrackingID      string `json:"trackingId"`
		Status          string `json:"status"`
		StatusCategory  string `json:"statusCategory"`
		ProgressPercent *int   `json:"progressPercent"`
		History         []struct {
			DateTime    string `json:"dateTime"`
			Status      string `json:"status"`
			City        string `json:"city"`
			Description string `json:"description"`
		} `json:"history"`
	} `json:"parcel"`
	ErrorCode string `json:"errorCode"`
}

func (c *Client) Lookup(ctx context.Context, carrierCode, trackNumber string) (carrier.Result, error) {
	_ = carrierCode // single-carrier client

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return carrier.Result{}, errors.Wrap(err, "parse base url")
	}
	u.Path = "/api/parceldetails/" + url.PathEscape(trackNumber)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return carrier.Result{}, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return carrier.Result{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return carrier.Result{Carrier: carrier.CodeHermes, Failure: carrier.FailureNotFound}, nil
	}
	if resp.StatusCode/100 != 2 {
		return carrier.Result{}, fmt.Errorf("hermes http %d", resp.StatusCode)
	}

	var r hermesResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return carrier.Result{}, errors.Wrap(err, "decode")
	}
	switch r.ErrorCode {
	case "":
	case "PARCEL_NOT_FOUND":
		return carrier.Result{Carrier: carrier.CodeHermes, Failure: carrier.FailureNotFound}, nil
	case "INVALID_TRACKING_ID":
		return carrier.Result{Carrier: carrier.CodeHermes, Failure: carrier.FailureInvalidNumber}, nil
	default:
		return carrier.Result{Carrier: carrier.CodeHermes, Failure: carrier.FailureNotFound}, nil
	}

	res := carrier.Result{
		Carrier:  carrier.CodeHermes,
		Status:   r.Parcel.Status,
		Phase:    phaseFromCategory(r.Parcel.StatusCategory),
		Progress: -1,
	}
	if r.Parcel.ProgressPercent != nil {
		res.Progress = *r.Parcel.ProgressPercent
	}

	// Hermes history is already oldest first.
	for _, h := range r.Parcel.History {
		ev := carrier.Event{
			Status:      h.Status,
			Location:    h.City,
			Description: h.Description,
		}
		if h.DateTime != "" {
			if ts, err := time.Parse(time.RFC3339, h.DateTime); err == nil {
				ev.Time = ts.UTC()
			}
		}
		res.Events = append(res.Events, ev)
	}

	return res, nil
}

func phaseFromCategory(category string) string {
	switch category {
	case "ANNOUNCED":
		return carrier.PhasePreTransit
	case "INTRANSIT", "OUTFORDELIVERY":
		return carrier.PhaseTransit
	case "DELIVERED":
		return carrier.PhaseDelivered
	default:
		return carrier.PhaseUnknown
	}
}
