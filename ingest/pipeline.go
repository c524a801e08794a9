package ingest

import (
	"context"
	"log/slog"
	"strings"

	"github.com/coinwatch/crypto-ingestor-go/models"
	"github.com/coinwatch/crypto-ingestor-go/postgres"
)

const createTableQuery = `
	CREATE TABLE IF NOT EXISTS cryptocurrency_data (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		symbol VARCHAR(10) NOT NULL,
		rank INT,
		price_usd DECIMAL(20, 10),
		volume_24h_usd DECIMAL(20, 10),
		market_cap_usd DECIMAL(20, 10),
		last_updated TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (name, symbol, last_updated)
	)`

const insertQuery = `
	INSERT INTO cryptocurrency_data (name, symbol, rank, price_usd, volume_24h_usd, market_cap_usd, last_updated)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (name, symbol, last_updated) DO NOTHING`

// Store is the slice of postgres.Manager the pipeline needs.
type Store interface {
	Execute(ctx context.Context, query string, mode postgres.FetchMode, args ...any) ([]map[string]any, error)
	ExecuteBatch(ctx context.Context, query string, paramsList [][]any) error
}

// Pipeline validates raw listings and writes them as one batched,
// conflict-ignoring insert.
type Pipeline struct {
	store  Store
	logger *slog.Logger
}

func NewPipeline(store Store, logger *slog.Logger) *Pipeline {
	return &Pipeline{store: store, logger: logger}
}

// EnsureTable creates cryptocurrency_data if it does not exist, including
// the uniqueness constraint the upsert relies on.
func (p *Pipeline) EnsureTable(ctx context.Context) error {
	_, err := p.store.Execute(ctx, createTableQuery, postgres.FetchNone)
	return err
}

// Ingest validates every listing, skips and warns on incomplete ones, and
// inserts the rest in a single transaction. The returned count is the number
// of rows attempted; rows dropped by the conflict policy are not subtracted.
func (p *Pipeline) Ingest(ctx context.Context, resp *models.ListingsResponse) (int, error) {
	p.logger.Info("processing cryptocurrency data for database insertion")

	batch := make([][]any, 0, len(resp.Data))
	for _, item := range resp.Data {
		record, ok := validate(item)
		if !ok {
			name := item.Name
			if name == "" {
				name = "N/A"
			}
			p.logger.Warn("skipping incomplete record", "name", name)
			continue
		}
		batch = append(batch, record.Params())
	}

	if len(batch) == 0 {
		p.logger.Info("no valid data to insert")
		return 0, nil
	}

	if err := p.store.ExecuteBatch(ctx, insertQuery, batch); err != nil {
		return 0, err
	}
	p.logger.Info("inserted records into the database", "count", len(batch))
	return len(batch), nil
}

// validate extracts the fields a row needs. A listing is insertable only if
// name, symbol, price and last_updated are all present.
func validate(item models.Listing) (models.CryptoRecord, bool) {
	quote, ok := item.USD()
	if !ok {
		return models.CryptoRecord{}, false
	}
	if item.Name == "" || item.Symbol == "" || quote.Price == nil || quote.LastUpdated == "" {
		return models.CryptoRecord{}, false
	}
	return models.CryptoRecord{
		Name:        item.Name,
		Symbol:      item.Symbol,
		Rank:        item.Rank,
		PriceUSD:    *quote.Price,
		Volume24h:   quote.Volume24h,
		MarketCap:   quote.MarketCap,
		LastUpdated: NormalizeTimestamp(quote.LastUpdated),
	}, true
}

// NormalizeTimestamp rewrites the API's "2024-01-15T10:30:00.000Z" form to
// the space-separated, zone-stripped form the table stores.
func NormalizeTimestamp(ts string) string {
	ts = strings.Replace(ts, "T", " ", 1)
	return strings.TrimSuffix(ts, "Z")
}
