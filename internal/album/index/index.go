// Package index implements the per-album embedded SQL catalog (spec §4.3):
// schema, upsert, filtered iteration, and search aggregation, backed by
// modernc.org/sqlite so the index is a single file alongside the album's
// tile tree and needs no external database server.
package index

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hamersaw/stip-sub000/internal/model"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS images (
	id INTEGER PRIMARY KEY,
	geocode TEXT NOT NULL,
	platform TEXT NOT NULL,
	source TEXT NOT NULL,
	tile TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	cloud_coverage REAL,
	UNIQUE(geocode, tile, source)
);
CREATE TABLE IF NOT EXISTS files (
	image_id INTEGER NOT NULL,
	subdataset INTEGER NOT NULL,
	pixel_coverage REAL NOT NULL,
	path TEXT NOT NULL,
	PRIMARY KEY(image_id, subdataset)
);
CREATE INDEX IF NOT EXISTS images_timestamp_idx ON images(timestamp);
CREATE INDEX IF NOT EXISTS images_geocode_idx ON images(geocode);
`

// Index is one album's catalog. Writes are serialized by mu (spec §5's
// one-lock-per-album rule); reads run unlocked against the connection pool.
type Index struct {
	db     *sql.DB
	mu     sync.Mutex
	nextID atomic.Int64
}

// Open creates or reopens the index at path, seeding the monotonic image-id
// counter above the highest id already present (spec §4.3).
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer, serialize via mu anyway

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}

	idx := &Index{db: db}
	var maxID sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(id) FROM images`).Scan(&maxID); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: seed id counter: %w", err)
	}
	idx.nextID.Store(maxID.Int64)
	return idx, nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error { return idx.db.Close() }

// NextImageID returns the next process-local monotonic image id.
func (idx *Index) NextImageID() int64 { return idx.nextID.Add(1) }

// Upsert inserts or replaces img and its files in a single transaction,
// under the album's write lock (spec §4.3 step 5).
func (idx *Index) Upsert(img model.Image) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("index: begin upsert: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO images(id, geocode, platform, source, tile, timestamp, cloud_coverage)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(geocode, tile, source) DO UPDATE SET
			timestamp = excluded.timestamp,
			cloud_coverage = excluded.cloud_coverage
	`, img.ID, img.Geocode, img.Platform, string(img.Source), img.TileID, img.Timestamp, img.CloudCoverage)
	if err != nil {
		return fmt.Errorf("index: upsert image: %w", err)
	}

	imageID := img.ID
	if imageID == 0 {
		imageID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("index: resolve image id: %w", err)
		}
	} else {
		// ON CONFLICT path: look up the surviving id by natural key.
		if err := tx.QueryRow(`SELECT id FROM images WHERE geocode = ? AND tile = ? AND source = ?`,
			img.Geocode, img.TileID, string(img.Source)).Scan(&imageID); err != nil {
			return fmt.Errorf("index: resolve upserted image id: %w", err)
		}
	}

	for _, f := range img.Files {
		if _, err := tx.Exec(`
			INSERT INTO files(image_id, subdataset, pixel_coverage, path)
			VALUES(?, ?, ?, ?)
			ON CONFLICT(image_id, subdataset) DO UPDATE SET
				pixel_coverage = excluded.pixel_coverage,
				path = excluded.path
		`, imageID, f.Subdataset, f.PixelCoverage, f.Path); err != nil {
			return fmt.Errorf("index: upsert file subdataset %d: %w", f.Subdataset, err)
		}
	}

	return tx.Commit()
}

// Each streams every image matching filter, ordered by (timestamp, geocode,
// tile, subdataset), invoking fn once per image with its files attached.
func (idx *Index) Each(filter model.Filter, fn func(model.Image) error) error {
	where, args := whereClause(filter)

	rows, err := idx.db.Query(fmt.Sprintf(`
		SELECT id, geocode, platform, source, tile, timestamp, cloud_coverage
		FROM images %s
		ORDER BY timestamp, geocode, tile
	`, where), args...)
	if err != nil {
		return fmt.Errorf("index: query images: %w", err)
	}
	defer rows.Close()

	var images []model.Image
	for rows.Next() {
		var img model.Image
		var source string
		var cc sql.NullFloat64
		if err := rows.Scan(&img.ID, &img.Geocode, &img.Platform, &source, &img.TileID, &img.Timestamp, &cc); err != nil {
			return fmt.Errorf("index: scan image: %w", err)
		}
		img.Source = model.TileSource(source)
		if cc.Valid {
			v := cc.Float64
			img.CloudCoverage = &v
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("index: iterate images: %w", err)
	}

	for i := range images {
		files, err := idx.filesFor(images[i].ID, filter.MinPixelCoverage)
		if err != nil {
			return err
		}
		if filter.MinPixelCoverage != nil && len(files) == 0 {
			continue // every subdataset filtered out by min_pixel_coverage
		}
		images[i].Files = files
		if err := fn(images[i]); err != nil {
			return err
		}
	}
	return nil
}

func (idx *Index) filesFor(imageID int64, minPixelCoverage *float64) ([]model.File, error) {
	query := `SELECT subdataset, pixel_coverage, path FROM files WHERE image_id = ?`
	args := []any{imageID}
	if minPixelCoverage != nil {
		query += ` AND pixel_coverage >= ?`
		args = append(args, *minPixelCoverage)
	}
	query += ` ORDER BY subdataset`

	rows, err := idx.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: query files: %w", err)
	}
	defer rows.Close()

	var files []model.File
	for rows.Next() {
		var f model.File
		if err := rows.Scan(&f.Subdataset, &f.PixelCoverage, &f.Path); err != nil {
			return nil, fmt.Errorf("index: scan file: %w", err)
		}
		f.ImageID = imageID
		files = append(files, f)
	}
	return files, rows.Err()
}

// Search returns one Extent per (platform, source, precision, 2-char
// geocode prefix) with the count of distinct images (spec §4.3).
func (idx *Index) Search(filter model.Filter) ([]model.Extent, error) {
	where, args := whereClause(filter)

	rows, err := idx.db.Query(fmt.Sprintf(`
		SELECT platform, source, length(geocode) AS precision, substr(geocode, 1, 2) AS prefix, COUNT(DISTINCT id)
		FROM images %s
		GROUP BY platform, source, precision, prefix
		ORDER BY platform, source, precision, prefix
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []model.Extent
	for rows.Next() {
		var e model.Extent
		var source string
		if err := rows.Scan(&e.Platform, &source, &e.Precision, &e.GeocodePrefix, &e.Count); err != nil {
			return nil, fmt.Errorf("index: scan extent: %w", err)
		}
		e.Source = model.TileSource(source)
		out = append(out, e)
	}
	return out, rows.Err()
}

func whereClause(f model.Filter) (string, []any) {
	var clauses []string
	var args []any

	if f.StartTimestamp != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, *f.StartTimestamp)
	}
	if f.EndTimestamp != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, *f.EndTimestamp)
	}
	if f.Geocode != "" {
		if f.Recurse {
			clauses = append(clauses, "geocode LIKE ?")
			args = append(args, f.Geocode+"%")
		} else {
			clauses = append(clauses, "geocode = ?")
			args = append(args, f.Geocode)
		}
	}
	if f.MaxCloudCoverage != nil {
		clauses = append(clauses, "(cloud_coverage IS NOT NULL AND cloud_coverage <= ?)")
		args = append(args, *f.MaxCloudCoverage)
	}
	if f.Platform != "" {
		clauses = append(clauses, "platform = ?")
		args = append(args, f.Platform)
	}
	if f.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, string(f.Source))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}
