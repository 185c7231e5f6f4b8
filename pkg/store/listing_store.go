// Package store provides read access to the listing table. Listings are
// owned by an external ingestion pipeline; this service never writes
// them.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/propmatch/propmatch/pkg/apperrors"
	"github.com/propmatch/propmatch/pkg/models"
	"github.com/propmatch/propmatch/pkg/observability"
)

// ListingStore fetches immutable listing records by key.
type ListingStore interface {
	// GetByKey returns one listing or a not_found error.
	GetByKey(ctx context.Context, key int64) (*models.Listing, error)
	// GetBatch returns the found listings in the order of keys; missing
	// keys are omitted.
	GetBatch(ctx context.Context, keys []int64) ([]models.Listing, error)
	// GetSample returns up to n listings in a deterministic
	// pseudo-random order, used to seed the lexical corpus.
	GetSample(ctx context.Context, n int) ([]models.Listing, error)
}

const listingColumns = `listing_key, title, description, price, property_type, status,
	bedrooms, bathrooms, floor_area, listed_at, location, features, images, points_of_interest`

// listingRow is the scan target; document-shaped fields arrive as JSONB.
type listingRow struct {
	ListingKey       int64           `db:"listing_key"`
	Title            string          `db:"title"`
	Description      sql.NullString  `db:"description"`
	Price            int64           `db:"price"`
	PropertyType     string          `db:"property_type"`
	Status           string          `db:"status"`
	Bedrooms         int             `db:"bedrooms"`
	Bathrooms        float64         `db:"bathrooms"`
	FloorArea        sql.NullInt64   `db:"floor_area"`
	ListedAt         sql.NullTime    `db:"listed_at"`
	Location         json.RawMessage `db:"location"`
	Features         json.RawMessage `db:"features"`
	Images           json.RawMessage `db:"images"`
	PointsOfInterest json.RawMessage `db:"points_of_interest"`
}

func (r *listingRow) toListing() (models.Listing, error) {
	l := models.Listing{
		ListingKey:  r.ListingKey,
		Title:       r.Title,
		Description: r.Description.String,
		Price:       r.Price,
		Type:        models.PropertyType(r.PropertyType),
		Status:      models.PropertyStatus(r.Status),
		Bedrooms:    r.Bedrooms,
		Bathrooms:   r.Bathrooms,
		FloorArea:   int(r.FloorArea.Int64),
		ListedAt:    r.ListedAt.Time,
	}
	if len(r.Location) > 0 {
		if err := json.Unmarshal(r.Location, &l.Location); err != nil {
			return l, fmt.Errorf("listing %d: location: %w", r.ListingKey, err)
		}
	}
	if len(r.Features) > 0 {
		if err := json.Unmarshal(r.Features, &l.Features); err != nil {
			return l, fmt.Errorf("listing %d: features: %w", r.ListingKey, err)
		}
	}
	if len(r.Images) > 0 {
		if err := json.Unmarshal(r.Images, &l.Images); err != nil {
			return l, fmt.Errorf("listing %d: images: %w", r.ListingKey, err)
		}
	}
	if len(r.PointsOfInterest) > 0 {
		if err := json.Unmarshal(r.PointsOfInterest, &l.PointsOfInterest); err != nil {
			return l, fmt.Errorf("listing %d: points_of_interest: %w", r.ListingKey, err)
		}
	}
	return l, nil
}

// PostgresListingStore implements ListingStore over Postgres.
type PostgresListingStore struct {
	db     *sqlx.DB
	logger observability.Logger
}

// NewPostgresListingStore opens and pings the database.
func NewPostgresListingStore(ctx context.Context, databaseURL string, maxOpen, maxIdle int, logger observability.Logger) (*PostgresListingStore, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewListingStoreWithDB(db, logger), nil
}

// NewListingStoreWithDB wraps an existing connection, used by tests.
func NewListingStoreWithDB(db *sqlx.DB, logger observability.Logger) *PostgresListingStore {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &PostgresListingStore{db: db, logger: logger.WithPrefix("store")}
}

func (s *PostgresListingStore) GetByKey(ctx context.Context, key int64) (*models.Listing, error) {
	query := fmt.Sprintf("SELECT %s FROM listings WHERE listing_key = $1", listingColumns)
	var row listingRow
	if err := s.db.GetContext(ctx, &row, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("listing %d not found", key)
		}
		return nil, apperrors.Upstream("listing store unavailable", err)
	}
	listing, err := row.toListing()
	if err != nil {
		return nil, apperrors.Internal("malformed listing record", err)
	}
	return &listing, nil
}

func (s *PostgresListingStore) GetBatch(ctx context.Context, keys []int64) ([]models.Listing, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT %s FROM listings WHERE listing_key = ANY($1)", listingColumns)
	var rows []listingRow
	if err := s.db.SelectContext(ctx, &rows, query, pq.Array(keys)); err != nil {
		return nil, apperrors.Upstream("listing store unavailable", err)
	}

	byKey := make(map[int64]models.Listing, len(rows))
	for i := range rows {
		listing, err := rows[i].toListing()
		if err != nil {
			// A single bad record must not sink the batch.
			s.logger.Warn("skipping malformed listing", map[string]interface{}{
				"listing_key": rows[i].ListingKey,
				"error":       err.Error(),
			})
			continue
		}
		byKey[listing.ListingKey] = listing
	}

	out := make([]models.Listing, 0, len(byKey))
	for _, k := range keys {
		if listing, ok := byKey[k]; ok {
			out = append(out, listing)
		}
	}
	return out, nil
}

func (s *PostgresListingStore) GetSample(ctx context.Context, n int) ([]models.Listing, error) {
	if n <= 0 {
		return nil, nil
	}
	// Hash-ordered so repeated builds over the same corpus see the same
	// sample.
	query := fmt.Sprintf(
		"SELECT %s FROM listings ORDER BY md5(listing_key::text) LIMIT $1", listingColumns)
	var rows []listingRow
	if err := s.db.SelectContext(ctx, &rows, query, n); err != nil {
		return nil, apperrors.Upstream("listing store unavailable", err)
	}
	out := make([]models.Listing, 0, len(rows))
	for i := range rows {
		listing, err := rows[i].toListing()
		if err != nil {
			s.logger.Warn("skipping malformed listing", map[string]interface{}{
				"listing_key": rows[i].ListingKey,
				"error":       err.Error(),
			})
			continue
		}
		out = append(out, listing)
	}
	return out, nil
}

// IterateAll walks the whole listing table in key order, handing each
// batch to fn. Used by the index loader; not part of the serving
// interface.
func (s *PostgresListingStore) IterateAll(ctx context.Context, batchSize int, fn func([]models.Listing) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	query := fmt.Sprintf(
		"SELECT %s FROM listings WHERE listing_key > $1 ORDER BY listing_key LIMIT $2", listingColumns)

	var after int64
	for {
		var rows []listingRow
		if err := s.db.SelectContext(ctx, &rows, query, after, batchSize); err != nil {
			return apperrors.Upstream("listing store unavailable", err)
		}
		if len(rows) == 0 {
			return nil
		}

		batch := make([]models.Listing, 0, len(rows))
		for i := range rows {
			listing, err := rows[i].toListing()
			if err != nil {
				s.logger.Warn("skipping malformed listing", map[string]interface{}{
					"listing_key": rows[i].ListingKey,
					"error":       err.Error(),
				})
				continue
			}
			batch = append(batch, listing)
		}
		after = rows[len(rows)-1].ListingKey

		if err := fn(batch); err != nil {
			return err
		}
		if len(rows) < batchSize {
			return nil
		}
	}
}

// Close releases the connection pool.
func (s *PostgresListingStore) Close() error { return s.db.Close() }
