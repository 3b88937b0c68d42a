package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
)

const nominatimBaseURL = "https://nominatim.openstreetmap.org"

// nominatimPlace is one element of the search response. Coordinates arrive
// as strings.
type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// search performs one throttled lookup. It returns (nil, nil) when the
// service answered with no candidates.
func (c *Client) search(ctx context.Context, addr string) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	params := url.Values{
		"q":            {addr},
		"format":       {"json"},
		"limit":        {"1"},
		"countrycodes": {c.countryCodes},
	}

	reqURL := c.baseURL + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}
	if len(places) == 0 {
		return nil, nil
	}

	top := places[0]
	lat, err := strconv.ParseFloat(top.Lat, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: parse latitude %q", top.Lat)
	}
	lng, err := strconv.ParseFloat(top.Lon, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: parse longitude %q", top.Lon)
	}

	return &Result{
		Latitude:    lat,
		Longitude:   lng,
		DisplayName: top.DisplayName,
	}, nil
}
