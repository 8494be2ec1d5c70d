package postgres

import (
	"context"
	"fmt"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
	"github.com/jackc/pgx/v5"
)

// StationRepo implements ports.StationRepository with pgx.
type StationRepo struct {
	db *DB
}

// NewStationRepo creates a new StationRepo.
func NewStationRepo(db *DB) *StationRepo {
	return &StationRepo{db: db}
}

// Upsert inserts or updates a single coverage station.
func (r *StationRepo) Upsert(ctx context.Context, s *domain.Station) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO stations (id, name, sw_lat, sw_lng, ne_lat, ne_lng, image_url, visible, compressed_image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    sw_lat = EXCLUDED.sw_lat, sw_lng = EXCLUDED.sw_lng,
		    ne_lat = EXCLUDED.ne_lat, ne_lng = EXCLUDED.ne_lng,
		    image_url = EXCLUDED.image_url,
		    visible = EXCLUDED.visible
	`, s.ID, s.Name, s.Bounds.SW.Lat, s.Bounds.SW.Lng, s.Bounds.NE.Lat, s.Bounds.NE.Lng,
		s.ImageURL, s.Visible, s.CompressedImageURL)
	return err
}

// UpsertBatch inserts many stations using pgx.Batch.
func (r *StationRepo) UpsertBatch(ctx context.Context, stations []domain.Station) error {
	batch := &pgx.Batch{}
	for _, s := range stations {
		batch.Queue(`
			INSERT INTO stations (id, name, sw_lat, sw_lng, ne_lat, ne_lng, image_url, visible, compressed_image_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name,
			    sw_lat = EXCLUDED.sw_lat, sw_lng = EXCLUDED.sw_lng,
			    ne_lat = EXCLUDED.ne_lat, ne_lng = EXCLUDED.ne_lng,
			    image_url = EXCLUDED.image_url,
			    visible = EXCLUDED.visible
		`, s.ID, s.Name, s.Bounds.SW.Lat, s.Bounds.SW.Lng, s.Bounds.NE.Lat, s.Bounds.NE.Lng,
			s.ImageURL, s.Visible, s.CompressedImageURL)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range stations {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// GetByID returns a station by id.
func (r *StationRepo) GetByID(ctx context.Context, id string) (*domain.Station, error) {
	var s domain.Station
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, name, sw_lat, sw_lng, ne_lat, ne_lng,
		       image_url, visible, COALESCE(compressed_image_url, ''), created_at
		FROM stations WHERE id = $1
	`, id).Scan(
		&s.ID, &s.Name, &s.Bounds.SW.Lat, &s.Bounds.SW.Lng, &s.Bounds.NE.Lat, &s.Bounds.NE.Lng,
		&s.ImageURL, &s.Visible, &s.CompressedImageURL, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns all stations ordered by name.
func (r *StationRepo) List(ctx context.Context) ([]domain.Station, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, name, sw_lat, sw_lng, ne_lat, ne_lng,
		       image_url, visible, COALESCE(compressed_image_url, ''), created_at
		FROM stations
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []domain.Station
	for rows.Next() {
		var s domain.Station
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Bounds.SW.Lat, &s.Bounds.SW.Lng, &s.Bounds.NE.Lat, &s.Bounds.NE.Lng,
			&s.ImageURL, &s.Visible, &s.CompressedImageURL, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		stations = append(stations, s)
	}
	return stations, rows.Err()
}

// SetVisible toggles a station's visibility flag.
func (r *StationRepo) SetVisible(ctx context.Context, id string, visible bool) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE stations SET visible = $2 WHERE id = $1`, id, visible)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("station %s not found", id)
	}
	return nil
}

// SetCompressedImageURL records the output of a compression job.
func (r *StationRepo) SetCompressedImageURL(ctx context.Context, id, url string) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE stations SET compressed_image_url = $2 WHERE id = $1`, id, url)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("station %s not found", id)
	}
	return nil
}
