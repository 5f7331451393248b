package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const plantColumns = `id, user_id, album_id, species, COALESCE(family,''), COALESCE(genus,''),
	COALESCE(confidence,0), common_names, COALESCE(description,''), COALESCE(distribution,''),
	COALESCE(image,''), COALESCE(scanned_image,''), COALESCE(wiki_url,''), COALESCE(notes,''),
	COALESCE(location,''), tags, sort_order, saved_at`

func scanPlant(row pgx.Row) (*Plant, error) {
	var p Plant
	err := row.Scan(
		&p.ID, &p.UserID, &p.AlbumID, &p.Species, &p.Family, &p.Genus,
		&p.Confidence, &p.CommonNames, &p.Description, &p.Distribution,
		&p.Image, &p.ScannedImage, &p.WikiURL, &p.Notes,
		&p.Location, &p.Tags, &p.SortOrder, &p.SavedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.CommonNames == nil {
		p.CommonNames = []string{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return &p, nil
}

// SavePlant stores a plant in the user's collection. When the user already
// has the species and duplicates are not allowed, the existing row is
// returned with duplicate=true and nothing is written.
func (s *Store) SavePlant(ctx context.Context, p *Plant, allowDuplicates bool) (*Plant, bool, error) {
	if !allowDuplicates {
		existing, err := scanPlant(s.db.QueryRow(ctx,
			`SELECT `+plantColumns+` FROM plants WHERE user_id = $1 AND species = $2 LIMIT 1`,
			p.UserID, p.Species))
		if err == nil {
			return existing, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("check duplicate plant: %w", err)
		}
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CommonNames == nil {
		p.CommonNames = []string{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO plants (id, user_id, album_id, species, family, genus, confidence,
			common_names, description, distribution, image, scanned_image, wiki_url,
			notes, location, tags, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING saved_at`,
		p.ID, p.UserID, p.AlbumID, p.Species, p.Family, p.Genus, p.Confidence,
		p.CommonNames, p.Description, p.Distribution, p.Image, p.ScannedImage, p.WikiURL,
		p.Notes, p.Location, p.Tags, p.SortOrder,
	).Scan(&p.SavedAt)
	if err != nil {
		return nil, false, fmt.Errorf("save plant: %w", err)
	}
	return p, false, nil
}

// plantSortColumns whitelists user-supplied sort fields.
var plantSortColumns = map[string]string{
	"savedAt":    "saved_at",
	"species":    "species",
	"confidence": "confidence",
	"sortOrder":  "sort_order",
}

// ListPlants returns a user's saved plants. albumID filters the collection:
// "" or "all" means everything, "none" means plants outside any album.
func (s *Store) ListPlants(ctx context.Context, userID, albumID, sortBy, sortOrder string) ([]*Plant, error) {
	col, ok := plantSortColumns[sortBy]
	if !ok {
		col = "saved_at"
	}
	dir := "DESC"
	if sortOrder == "asc" {
		dir = "ASC"
	}

	query := `SELECT ` + plantColumns + ` FROM plants WHERE user_id = $1`
	args := []interface{}{userID}
	switch albumID {
	case "", "all":
	case "none":
		query += ` AND album_id IS NULL`
	default:
		query += ` AND album_id = $2`
		args = append(args, albumID)
	}
	query += fmt.Sprintf(` ORDER BY %s %s`, col, dir)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list plants: %w", err)
	}
	defer rows.Close()

	plants := []*Plant{}
	for rows.Next() {
		p, err := scanPlant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plant: %w", err)
		}
		plants = append(plants, p)
	}
	return plants, rows.Err()
}

// PlantUpdate carries the mutable plant fields; nil means leave unchanged.
// ClearAlbum moves the plant out of its album.
type PlantUpdate struct {
	AlbumID    *string   `json:"albumId"`
	Notes      *string   `json:"notes"`
	Location   *string   `json:"location"`
	Tags       *[]string `json:"tags"`
	SortOrder  *int      `json:"sortOrder"`
	ClearAlbum bool      `json:"clearAlbum"`
}

// UpdatePlant applies a partial update and returns the updated row.
func (s *Store) UpdatePlant(ctx context.Context, id string, upd PlantUpdate) (*Plant, error) {
	p, err := scanPlant(s.db.QueryRow(ctx, `
		UPDATE plants SET
			album_id   = CASE WHEN $7 THEN NULL ELSE COALESCE($2, album_id) END,
			notes      = COALESCE($3, notes),
			location   = COALESCE($4, location),
			tags       = COALESCE($5, tags),
			sort_order = COALESCE($6, sort_order)
		WHERE id = $1
		RETURNING `+plantColumns,
		id, upd.AlbumID, upd.Notes, upd.Location, upd.Tags, upd.SortOrder, upd.ClearAlbum))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update plant %s: %w", id, err)
	}
	return p, nil
}

// DeletePlant removes a plant from the collection.
func (s *Store) DeletePlant(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM plants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete plant %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
