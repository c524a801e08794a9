package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coinwatch/crypto-ingestor-go/config"
	"github.com/coinwatch/crypto-ingestor-go/ingest"
	"github.com/coinwatch/crypto-ingestor-go/models"
	"github.com/coinwatch/crypto-ingestor-go/postgres"
)

// Fetcher is the listings client as the job sees it.
type Fetcher interface {
	FetchLatestListings(ctx context.Context, start, limit int, convert string) (*models.ListingsResponse, error)
}

// Result is the JSON body returned to the HTTP trigger.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CollectionJob runs one fetch-and-store cycle: fetch the latest listings,
// ensure the destination table, insert the snapshot. Every failure mode
// collapses into a Result plus an HTTP status code.
type CollectionJob struct {
	cfg    *config.Config
	client Fetcher
	logger *slog.Logger

	// withStore opens a scoped connection pool around fn. Swapped out in
	// tests for a fake store.
	withStore func(ctx context.Context, fn func(ingest.Store) error) error
}

func NewCollectionJob(cfg *config.Config, client Fetcher, logger *slog.Logger) *CollectionJob {
	creds := postgres.Credentials{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		Name:     cfg.DBName,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
	}
	return &CollectionJob{
		cfg:    cfg,
		client: client,
		logger: logger,
		withStore: func(ctx context.Context, fn func(ingest.Store) error) error {
			return postgres.WithManager(ctx, creds, logger, func(m *postgres.Manager) error {
				return fn(m)
			})
		},
	}
}

// Run executes the job synchronously and reports its outcome. The closing
// summary is logged exactly once, whichever path the job exits by.
func (j *CollectionJob) Run(ctx context.Context) (result Result, code int) {
	j.logger.Info("starting cryptocurrency data collection job")
	defer func() {
		j.logger.Info("cryptocurrency data collection job finished", "status", result.Status)
	}()

	if j.cfg.APIKey == "" {
		j.logger.Error("COINMARKETCAP_API_KEY environment variable not set")
		return Result{Status: "error", Message: "COINMARKETCAP_API_KEY environment variable not set"}, http.StatusInternalServerError
	}

	j.logger.Info("fetching data from CoinMarketCap API")
	listings, err := j.client.FetchLatestListings(ctx, 0, 0, "")
	if err != nil {
		j.logger.Error("API fetch failed", "error", err)
		return Result{Status: "error", Message: err.Error()}, http.StatusInternalServerError
	}

	var count int
	err = j.withStore(ctx, func(store ingest.Store) error {
		pipeline := ingest.NewPipeline(store, j.logger)
		if err := pipeline.EnsureTable(ctx); err != nil {
			return err
		}
		j.logger.Info("database table ensured", "table", "cryptocurrency_data")

		count, err = pipeline.Ingest(ctx, listings)
		return err
	})
	if err != nil {
		j.logger.Error("job failed", "error", err)
		return Result{Status: "error", Message: err.Error()}, http.StatusInternalServerError
	}

	j.logger.Info("job completed successfully", "records", count)
	return Result{
		Status:  "success",
		Message: fmt.Sprintf("Data collection job completed successfully, %d records processed", count),
	}, http.StatusOK
}

// Handler exposes the job as the GET / trigger.
func (j *CollectionJob) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j.logger.Info("received HTTP request to trigger data collection job")
		result, code := j.Run(r.Context())

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(result); err != nil {
			j.logger.Error("failed to encode job result", "error", err)
		}
	}
}
