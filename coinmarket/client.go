package coinmarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/coinwatch/crypto-ingestor-go/models"
)

const (
	baseURL = "https://pro-api.coinmarketcap.com/v1"

	defaultStart   = 1
	defaultLimit   = 200
	defaultConvert = "USD"

	requestTimeout = 10 * time.Second
)

// FetchError is any failure talking to the listings endpoint: transport
// errors, non-2xx statuses, or an undecodable body. The job treats it as
// fatal but never retries.
type FetchError struct {
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client calls the CoinMarketCap pro API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// FetchLatestListings issues one GET to /cryptocurrency/listings/latest.
// Zero-valued arguments fall back to start=1, limit=200, convert=USD.
// It never retries and never mutates shared state.
func (c *Client) FetchLatestListings(ctx context.Context, start, limit int, convert string) (*models.ListingsResponse, error) {
	if start < 1 {
		start = defaultStart
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if convert == "" {
		convert = defaultConvert
	}

	endpoint := c.baseURL + "/cryptocurrency/listings/latest"
	params := url.Values{}
	params.Set("start", strconv.Itoa(start))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("convert", convert)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &FetchError{Message: "failed to build listings request", Err: err}
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Message: "listings request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Message: "failed to read listings response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Message: fmt.Sprintf("listings endpoint returned %s", resp.Status)}
	}

	var listings models.ListingsResponse
	if err := json.Unmarshal(body, &listings); err != nil {
		return nil, &FetchError{Message: "failed to decode listings response", Err: err}
	}
	if listings.Status.ErrorCode != 0 {
		return nil, &FetchError{Message: fmt.Sprintf("API error %d: %s", listings.Status.ErrorCode, listings.Status.ErrorMessage)}
	}

	return &listings, nil
}
