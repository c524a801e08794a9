package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/coinwatch/crypto-ingestor-go/models"
	"github.com/coinwatch/crypto-ingestor-go/postgres"
)

type fakeStore struct {
	execQueries  []string
	batchQueries []string
	batches      [][][]any
	batchErr     error
	execErr      error
}

func (f *fakeStore) Execute(ctx context.Context, query string, mode postgres.FetchMode, args ...any) ([]map[string]any, error) {
	f.execQueries = append(f.execQueries, query)
	return nil, f.execErr
}

func (f *fakeStore) ExecuteBatch(ctx context.Context, query string, paramsList [][]any) error {
	f.batchQueries = append(f.batchQueries, query)
	f.batches = append(f.batches, paramsList)
	return f.batchErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func listing(name, symbol string, price *float64, lastUpdated string) models.Listing {
	return models.Listing{
		Name:   name,
		Symbol: symbol,
		Rank:   intPtr(1),
		Quote: map[string]models.Quote{
			"USD": {
				Price:       price,
				Volume24h:   floatPtr(1000),
				MarketCap:   floatPtr(2000),
				LastUpdated: lastUpdated,
			},
		},
	}
}

func TestIngestSkipsIncompleteRecords(t *testing.T) {
	tests := []struct {
		name    string
		listing models.Listing
	}{
		{"missing name", listing("", "BTC", floatPtr(50000), "2024-01-15T10:30:00.000Z")},
		{"missing symbol", listing("Bitcoin", "", floatPtr(50000), "2024-01-15T10:30:00.000Z")},
		{"missing price", listing("Bitcoin", "BTC", nil, "2024-01-15T10:30:00.000Z")},
		{"missing last_updated", listing("Bitcoin", "BTC", floatPtr(50000), "")},
		{"missing USD quote", models.Listing{Name: "Bitcoin", Symbol: "BTC"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			p := NewPipeline(store, testLogger())

			count, err := p.Ingest(context.Background(), &models.ListingsResponse{Data: []models.Listing{tt.listing}})
			if err != nil {
				t.Fatalf("Ingest returned error for skippable record: %v", err)
			}
			if count != 0 {
				t.Errorf("expected 0 records attempted, got %d", count)
			}
			if len(store.batchQueries) != 0 {
				t.Errorf("expected no batch call for all-invalid payload, got %d", len(store.batchQueries))
			}
		})
	}
}

func TestIngestMixedPayload(t *testing.T) {
	store := &fakeStore{}
	p := NewPipeline(store, testLogger())

	resp := &models.ListingsResponse{Data: []models.Listing{
		listing("Bitcoin", "BTC", floatPtr(50000), "2024-01-15T10:30:00.000Z"),
		listing("Ethereum", "ETH", floatPtr(3000), "2024-01-15T10:30:00.000Z"),
		listing("Broken", "BRK", nil, "2024-01-15T10:30:00.000Z"),
		listing("Tether", "USDT", floatPtr(1), "2024-01-15T10:30:00.000Z"),
	}}

	count, err := p.Ingest(context.Background(), resp)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 records attempted, got %d", count)
	}
	if len(store.batchQueries) != 1 {
		t.Fatalf("expected exactly one batch call, got %d", len(store.batchQueries))
	}
	if len(store.batches[0]) != 3 {
		t.Errorf("expected 3 tuples in batch, got %d", len(store.batches[0]))
	}
	if !strings.Contains(store.batchQueries[0], "ON CONFLICT (name, symbol, last_updated) DO NOTHING") {
		t.Errorf("insert statement is missing the conflict-ignore clause: %s", store.batchQueries[0])
	}
}

func TestIngestNormalizesTimestamp(t *testing.T) {
	store := &fakeStore{}
	p := NewPipeline(store, testLogger())

	resp := &models.ListingsResponse{Data: []models.Listing{
		listing("Bitcoin", "BTC", floatPtr(50000), "2024-01-15T10:30:00.000Z"),
	}}
	if _, err := p.Ingest(context.Background(), resp); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	params := store.batches[0][0]
	got, ok := params[6].(string)
	if !ok {
		t.Fatalf("last_updated param is not a string: %T", params[6])
	}
	if got != "2024-01-15 10:30:00.000" {
		t.Errorf("expected normalized timestamp %q, got %q", "2024-01-15 10:30:00.000", got)
	}
}

func TestIngestPropagatesBatchError(t *testing.T) {
	wantErr := errors.New("batch execution failed")
	store := &fakeStore{batchErr: wantErr}
	p := NewPipeline(store, testLogger())

	resp := &models.ListingsResponse{Data: []models.Listing{
		listing("Bitcoin", "BTC", floatPtr(50000), "2024-01-15T10:30:00.000Z"),
	}}
	count, err := p.Ingest(context.Background(), resp)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected batch error to propagate, got %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 count on failure, got %d", count)
	}
}

func TestEnsureTable(t *testing.T) {
	store := &fakeStore{}
	p := NewPipeline(store, testLogger())

	if err := p.EnsureTable(context.Background()); err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}
	if len(store.execQueries) != 1 {
		t.Fatalf("expected one Execute call, got %d", len(store.execQueries))
	}
	q := store.execQueries[0]
	if !strings.Contains(q, "CREATE TABLE IF NOT EXISTS cryptocurrency_data") {
		t.Errorf("table creation is not idempotent: %s", q)
	}
	if !strings.Contains(q, "UNIQUE (name, symbol, last_updated)") {
		t.Errorf("table is missing the natural-key constraint: %s", q)
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-01-15T10:30:00.000Z", "2024-01-15 10:30:00.000"},
		{"2024-01-15T10:30:00Z", "2024-01-15 10:30:00"},
		{"2024-01-15 10:30:00", "2024-01-15 10:30:00"},
	}
	for _, tt := range tests {
		if got := NormalizeTimestamp(tt.in); got != tt.want {
			t.Errorf("NormalizeTimestamp(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
