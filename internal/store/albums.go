package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateAlbum inserts an album and fills in its generated fields.
func (s *Store) CreateAlbum(ctx context.Context, a *Album) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Color == "" {
		a.Color = "#4CAF50"
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO albums (id, user_id, name, description, color)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		a.ID, a.UserID, a.Name, a.Description, a.Color,
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create album: %w", err)
	}
	return nil
}

// ListAlbums returns a user's albums newest first, each with its plant count.
func (s *Store) ListAlbums(ctx context.Context, userID string) ([]AlbumWithCount, error) {
	rows, err := s.db.Query(ctx, `
		SELECT a.id, a.user_id, a.name, COALESCE(a.description,''), a.color, a.created_at,
		       COUNT(p.id)
		FROM albums a
		LEFT JOIN plants p ON p.album_id = a.id
		WHERE a.user_id = $1
		GROUP BY a.id
		ORDER BY a.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list albums: %w", err)
	}
	defer rows.Close()

	albums := []AlbumWithCount{}
	for rows.Next() {
		var a AlbumWithCount
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Description,
			&a.Color, &a.CreatedAt, &a.PlantCount); err != nil {
			return nil, fmt.Errorf("scan album: %w", err)
		}
		albums = append(albums, a)
	}
	return albums, rows.Err()
}

// AlbumUpdate carries the mutable album fields; nil means leave unchanged.
type AlbumUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Color       *string `json:"color"`
}

// UpdateAlbum applies a partial update and returns the updated row.
func (s *Store) UpdateAlbum(ctx context.Context, id string, upd AlbumUpdate) (*Album, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE albums SET
			name        = COALESCE($2, name),
			description = COALESCE($3, description),
			color       = COALESCE($4, color)
		WHERE id = $1
		RETURNING id, user_id, name, COALESCE(description,''), color, created_at`,
		id, upd.Name, upd.Description, upd.Color)

	var a Album
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Description, &a.Color, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update album %s: %w", id, err)
	}
	return &a, nil
}

// DeleteAlbum removes an album; its plants are detached, not deleted.
func (s *Store) DeleteAlbum(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM albums WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete album %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	// plants.album_id is ON DELETE SET NULL, nothing more to do.
	return nil
}
