package postgres

import (
	"context"
	"fmt"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
	"github.com/jackc/pgx/v5"
)

// TechnicalRepo implements ports.TechnicalDataRepository with pgx.
type TechnicalRepo struct {
	db *DB
}

// NewTechnicalRepo creates a new TechnicalRepo.
func NewTechnicalRepo(db *DB) *TechnicalRepo {
	return &TechnicalRepo{db: db}
}

// UpsertBatch inserts many transmitter records using pgx.Batch.
func (r *TechnicalRepo) UpsertBatch(ctx context.Context, records []domain.TechnicalData) error {
	batch := &pgx.Batch{}
	for _, t := range records {
		batch.Queue(`
			INSERT INTO technical_data (id, station_name, station_type, owner, latitude, longitude, antenna_type, height_m, power_kw)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
			ON CONFLICT (id) DO UPDATE
			SET station_name = EXCLUDED.station_name,
			    station_type = EXCLUDED.station_type,
			    owner = EXCLUDED.owner,
			    latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
			    antenna_type = EXCLUDED.antenna_type,
			    height_m = EXCLUDED.height_m, power_kw = EXCLUDED.power_kw
		`, t.ID, t.StationName, t.StationType, t.Owner, t.Latitude, t.Longitude,
			t.AntennaType, t.HeightM, t.PowerKW)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// List returns all transmitter records.
func (r *TechnicalRepo) List(ctx context.Context) ([]domain.TechnicalData, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, station_name, station_type, owner, latitude, longitude,
		       COALESCE(antenna_type, ''), height_m, power_kw, created_at
		FROM technical_data
		ORDER BY station_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTechnical(rows)
}

// Search matches station name, owner, and type case-insensitively.
// Records that were never geocoded (0,0) are excluded.
func (r *TechnicalRepo) Search(ctx context.Context, query string, limit int) ([]domain.TechnicalData, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, station_name, station_type, owner, latitude, longitude,
		       COALESCE(antenna_type, ''), height_m, power_kw, created_at
		FROM technical_data
		WHERE (station_name ILIKE '%' || $1 || '%'
		       OR owner ILIKE '%' || $1 || '%'
		       OR station_type ILIKE '%' || $1 || '%')
		  AND NOT (latitude = 0 AND longitude = 0)
		ORDER BY station_name
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTechnical(rows)
}

// ListInBounds returns geocoded transmitter records inside a viewport.
func (r *TechnicalRepo) ListInBounds(ctx context.Context, v domain.Viewport, limit int) ([]domain.TechnicalData, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, station_name, station_type, owner, latitude, longitude,
		       COALESCE(antenna_type, ''), height_m, power_kw, created_at
		FROM technical_data
		WHERE latitude BETWEEN $1 AND $2
		  AND longitude BETWEEN $3 AND $4
		  AND NOT (latitude = 0 AND longitude = 0)
		ORDER BY station_name
		LIMIT $5
	`, v.South, v.North, v.West, v.East, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTechnical(rows)
}

func scanTechnical(rows pgx.Rows) ([]domain.TechnicalData, error) {
	var records []domain.TechnicalData
	for rows.Next() {
		var t domain.TechnicalData
		if err := rows.Scan(
			&t.ID, &t.StationName, &t.StationType, &t.Owner,
			&t.Latitude, &t.Longitude, &t.AntennaType, &t.HeightM, &t.PowerKW, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, t)
	}
	return records, rows.Err()
}
