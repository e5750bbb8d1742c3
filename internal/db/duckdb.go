package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/atxgeo/parcelmap/internal/dataset"
)

var (
	instance *sql.DB
	once     sync.Once
	initErr  error
)

// Config holds analytic-store configuration.
type Config struct {
	DataDir string
	DBName  string
}

// Get returns the singleton DuckDB connection, creating the database
// file under <DataDir>/duckdb on first use.
func Get(cfg Config) (*sql.DB, error) {
	once.Do(func() {
		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			initErr = fmt.Errorf("creating duckdb directory: %w", err)
			return
		}

		name := cfg.DBName
		if name == "" {
			name = "parcelmap"
		}
		dbPath := filepath.Join(duckdbDir, name+".duckdb")
		instance, initErr = sql.Open("duckdb", dbPath)
	})
	return instance, initErr
}

// Close closes the database connection.
func Close() error {
	if instance != nil {
		return instance.Close()
	}
	return nil
}

// LoadParcels (re)creates the parcels table and inserts the loaded
// records so the query endpoints can run ad-hoc SQL over valuations.
// Geometry stays out of the table; centroids cover the spatial queries
// the analytics surface needs.
func LoadParcels(ctx context.Context, db *sql.DB, parcels []dataset.Parcel) error {
	if db == nil {
		return fmt.Errorf("loading parcels: no database")
	}

	const schema = `
		CREATE OR REPLACE TABLE parcels (
			id VARCHAR PRIMARY KEY,
			address VARCHAR,
			owner VARCHAR,
			property_type VARCHAR,
			market_value DOUBLE,
			land_value DOUBLE,
			improvement_value DOUBLE,
			year_built INTEGER,
			area DOUBLE,
			bedrooms INTEGER,
			bathrooms DOUBLE,
			centroid_lng DOUBLE,
			centroid_lat DOUBLE
		)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating parcels table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting parcel load: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO parcels VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing parcel insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range parcels {
		center := p.Geometry.Bound().Center()
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.Address, p.Owner, string(p.PropertyType),
			p.MarketValue, p.LandValue, p.ImprovementValue,
			p.YearBuilt, p.Area, p.Bedrooms, p.Bathrooms,
			center[0], center[1],
		); err != nil {
			return fmt.Errorf("inserting parcel %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing parcel load: %w", err)
	}
	return nil
}

// ValuationSummary is one property-type row of the valuation rollup.
type ValuationSummary struct {
	PropertyType string  `json:"propertyType"`
	Count        int     `json:"count"`
	TotalValue   float64 `json:"totalValue"`
	MedianValue  float64 `json:"medianValue"`
}

// SummarizeValuations rolls market value up by property type.
func SummarizeValuations(ctx context.Context, db *sql.DB) ([]ValuationSummary, error) {
	if db == nil {
		return nil, fmt.Errorf("summarizing valuations: no database")
	}

	rows, err := db.QueryContext(ctx, `
		SELECT property_type,
		       COUNT(*),
		       SUM(market_value),
		       MEDIAN(market_value)
		FROM parcels
		GROUP BY property_type
		ORDER BY SUM(market_value) DESC`)
	if err != nil {
		return nil, fmt.Errorf("summarizing valuations: %w", err)
	}
	defer rows.Close()

	var out []ValuationSummary
	for rows.Next() {
		var s ValuationSummary
		if err := rows.Scan(&s.PropertyType, &s.Count, &s.TotalValue, &s.MedianValue); err != nil {
			return nil, fmt.Errorf("scanning valuation row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
