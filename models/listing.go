package models

// ListingsResponse is the body of the CoinMarketCap
// /cryptocurrency/listings/latest endpoint.
type ListingsResponse struct {
	Status ResponseStatus `json:"status"`
	Data   []Listing      `json:"data"`
}

// ResponseStatus is the envelope CoinMarketCap wraps every response in.
// ErrorCode is 0 on success.
type ResponseStatus struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	Timestamp    string `json:"timestamp"`
	CreditCount  int    `json:"credit_count"`
}

// Listing is one raw market listing. Rank and the quote fields are optional
// upstream, so they stay pointers until validation.
type Listing struct {
	Name   string           `json:"name"`
	Symbol string           `json:"symbol"`
	Rank   *int             `json:"cmc_rank"`
	Quote  map[string]Quote `json:"quote"`
}

// Quote holds the per-currency conversion block nested under quote.<CODE>.
type Quote struct {
	Price       *float64 `json:"price"`
	Volume24h   *float64 `json:"volume_24h"`
	MarketCap   *float64 `json:"market_cap"`
	LastUpdated string   `json:"last_updated"`
}

// USD returns the USD quote block, or false when it is absent.
func (l Listing) USD() (Quote, bool) {
	q, ok := l.Quote["USD"]
	return q, ok
}

// CryptoRecord is a validated, normalized listing ready for insertion.
// LastUpdated has already been rewritten to "YYYY-MM-DD HH:MM:SS.sss".
type CryptoRecord struct {
	Name        string
	Symbol      string
	Rank        *int
	PriceUSD    float64
	Volume24h   *float64
	MarketCap   *float64
	LastUpdated string
}

// Params returns the record as positional query arguments, in table column
// order: name, symbol, rank, price_usd, volume_24h_usd, market_cap_usd,
// last_updated.
func (r CryptoRecord) Params() []any {
	return []any{r.Name, r.Symbol, r.Rank, r.PriceUSD, r.Volume24h, r.MarketCap, r.LastUpdated}
}
