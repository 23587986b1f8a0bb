package dhlhttp

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
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api-eu.dhl.com"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type dhlResp struct {
	Shipments []struct {
		ID     string `json:"id"`
		Status struct {
			Timestamp   string `json:"timestamp"`
			StatusCode  string `json:"statusCode"`
			Status      string `json:"status"`
			Description string `json:"description"`
		} `json:"status"`
		Events []struct {
			Timestamp   string `json:"timestamp"`
			StatusCode  string `json:"statusCode"`
			Status      string `json:"status"`
			Description string `json:"description"`
			Location    struct {
				Address struct {
					AddressLocality string `json:"addressLocality"`
				} `json:"address"`
			} `json:"location"`
		} `json:"events"`
	} `json:"shipments"`
}

func (c *Client) Lookup(ctx context.Context, carrierCode, trackNumber string) (carrier.Result, error) {
	_ = carrierCode // single-carrier client

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return carrier.Result{}, errors.Wrap(err, "parse base url")
	}
	u.Path = "/track/shipments"
	q := u.Query()
	q.Set("trackingNumber", trackNumber)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return carrier.Result{}, errors.Wrap(err, "new request")
	}
	if c.apiKey != "" {
		req.Header.Set("DHL-API-Key", c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return carrier.Result{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return carrier.Result{Carrier: carrier.CodeDHL, Failure: carrier.FailureNotFound}, nil
	case resp.StatusCode == http.StatusBadRequest:
		return carrier.Result{Carrier: carrier.CodeDHL, Failure: carrier.FailureInvalidNumber}, nil
	case resp.StatusCode/100 != 2:
		return carrier.Result{}, fmt.Errorf("dhl http %d", resp.StatusCode)
	}

	var r dhlResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return carrier.Result{}, errors.Wrap(err, "decode")
	}
	if len(r.Shipments) == 0 {
		return carrier.Result{Carrier: carrier.CodeDHL, Failure: carrier.FailureNotFound}, nil
	}

	sh := r.Shipments[0]
	res := carrier.Result{
		Carrier:  carrier.CodeDHL,
		Status:   sh.Status.Status,
		Phase:    phaseFromCode(sh.Status.StatusCode),
		Progress: -1,
	}
	if res.Status == "" {
		res.Status = sh.Status.Description
	}
	if res.Phase == carrier.PhaseDelivered {
		res.Progress = 100
	}

	// DHL lists events newest first; snapshots keep them oldest first.
	for i := len(sh.Events) - 1; i >= 0; i-- {
		e := sh.Events[i]
		ev := carrier.Event{
			Status:      e.Status,
			Location:    e.Location.Address.AddressLocality,
			Description: e.Description,
		}
		if e.Timestamp != "" {
			if ts, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
				ev.Time = ts.UTC()
			}
		}
		if ev.Status == "" {
			ev.Status = e.StatusCode
		}
		res.Events = append(res.Events, ev)
	}

	return res, nil
}

func phaseFromCode(code string) string {
	switch code {
	case "pre-transit":
		return carrier.PhasePreTransit
	case "transit":
		return carrier.PhaseTransit
	case "delivered":
		return carrier.PhaseDelivered
	default:
		return carrier.PhaseUnknown
	}
}
