// Package album implements the per-album on-disk tile tree, its manifest,
// and the write path that lands a received tile on disk and into the
// catalog index (spec §4.3, §9 manifest supplement).
package album

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hamersaw/stip-sub000/internal/album/index"
	"github.com/hamersaw/stip-sub000/internal/apierr"
	"github.com/hamersaw/stip-sub000/internal/model"
	"github.com/hamersaw/stip-sub000/internal/tilecodec"
	"github.com/hamersaw/stip-sub000/internal/transfer"
)

const manifestName = "album.json"

type albumState struct {
	meta model.Album
	dir  string
	mu   sync.Mutex // serializes writes to this album's index, per spec §5
	idx  *index.Index
}

// Store owns every album rooted under dataDir, each a directory named for
// the album id containing album.json, the tile tree, and the index file.
type Store struct {
	dataDir string

	mu     sync.RWMutex
	albums map[string]*albumState
}

// Open scans dataDir for existing album directories (each bearing
// album.json) and opens their indexes, resolving the "album durability on
// restart" question from spec §9 by reading the manifest rather than
// rebuilding from tiles on every boot.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("album: create data dir %s: %w", dataDir, err)
	}

	s := &Store{dataDir: dataDir, albums: make(map[string]*albumState)}

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("album: read data dir %s: %w", dataDir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(dataDir, e.Name())
		manifestPath := filepath.Join(dir, manifestName)
		data, err := os.ReadFile(manifestPath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("album: read manifest %s: %w", manifestPath, err)
		}
		var meta model.Album
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("album: parse manifest %s: %w", manifestPath, err)
		}
		idx, err := index.Open(filepath.Join(dir, "index.sqlite"))
		if err != nil {
			return nil, fmt.Errorf("album: open index for %s: %w", meta.ID, err)
		}
		s.albums[meta.ID] = &albumState{meta: meta, dir: dir, idx: idx}
	}
	return s, nil
}

// Create registers a new album, writing its manifest and opening a fresh
// index (spec §4.3; manifest write is the spec §9 supplement).
func (s *Store) Create(meta model.Album, precisionChars int) error {
	if err := meta.Validate(precisionChars); err != nil {
		return apierr.New(apierr.InvalidConfig, "album.Create", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.albums[meta.ID]; exists {
		return apierr.New(apierr.AlreadyExists, "album.Create", fmt.Errorf("album %q already exists", meta.ID))
	}

	dir := filepath.Join(s.dataDir, meta.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apierr.New(apierr.StorageFailure, "album.Create", err)
	}

	meta.CreatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return apierr.New(apierr.StorageFailure, "album.Create", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestName), data, 0644); err != nil {
		return apierr.New(apierr.StorageFailure, "album.Create", err)
	}

	idx, err := index.Open(filepath.Join(dir, "index.sqlite"))
	if err != nil {
		return apierr.New(apierr.StorageFailure, "album.Create", err)
	}

	s.albums[meta.ID] = &albumState{meta: meta, dir: dir, idx: idx}
	return nil
}

// List returns every known album's current metadata.
func (s *Store) List() []model.Album {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Album, 0, len(s.albums))
	for _, a := range s.albums {
		out = append(out, a.meta)
	}
	return out
}

// Get returns album meta and its policy for callers needing dht_key_length
// or geocode scheme (e.g. the tiling pipeline).
func (s *Store) Get(id string) (model.Album, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.albums[id]
	if !ok {
		return model.Album{}, apierr.New(apierr.NotFound, "album.Get", fmt.Errorf("album %q not found", id))
	}
	return a.meta, nil
}

func (s *Store) resolve(id string) (*albumState, error) {
	s.mu.RLock()
	a, ok := s.albums[id]
	s.mu.RUnlock()
	if !ok {
		return nil, apierr.New(apierr.NotFound, "album.resolve", fmt.Errorf("unknown album %q", id))
	}
	if a.meta.Status == model.AlbumClosed {
		return nil, apierr.New(apierr.InvalidConfig, "album.resolve", fmt.Errorf("album %q is closed", id))
	}
	return a, nil
}

// tilePath computes the canonical on-disk location for a tile (spec §3).
func tilePath(dir, platform, geocode, source, tileID string, subdataset uint8) string {
	return filepath.Join(dir, platform, geocode, source, fmt.Sprintf("%s_%d.tif", tileID, subdataset))
}

// WriteTile implements transfer.Handler: it lands one received tile on
// disk (atomic rename, idempotent pre-existence check) and upserts the
// catalog index, per the exact write sequence of spec §4.3.
func (s *Store) WriteTile(ctx context.Context, f transfer.Frame) error {
	a, err := s.resolve(f.Album)
	if err != nil {
		return err
	}

	path := tilePath(a.dir, f.Platform, f.Geocode, string(f.Source), f.TileID, f.Subdataset)
	if _, err := os.Stat(path); err == nil {
		return nil // already stored: idempotent no-op per spec §4.3 step 1
	}

	raster, err := tilecodec.DecodeRaw(f.RasterPayload)
	if err != nil {
		return apierr.New(apierr.DecoderFailure, "album.WriteTile", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apierr.New(apierr.StorageFailure, "album.WriteTile", err)
	}

	cloudCoverage := model.NoCloudCoverage
	if f.CloudCoverage != nil {
		cloudCoverage = *f.CloudCoverage
	}
	meta := tilecodec.Metadata{
		Platform:      f.Platform,
		Geocode:       f.Geocode,
		Source:        f.Source,
		Subdataset:    f.Subdataset,
		TileID:        f.TileID,
		Timestamp:     f.Timestamp,
		PixelCoverage: f.PixelCoverage,
		CloudCoverage: cloudCoverage,
	}

	tmpPath := filepath.Join(filepath.Dir(path), fmt.Sprintf(".tmp-%d-%d", time.Now().UnixNano(), rand.Int63()))
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return apierr.New(apierr.StorageFailure, "album.WriteTile", err)
	}
	if err := tilecodec.Encode(tmp, raster, meta); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return apierr.New(apierr.StorageFailure, "album.WriteTile", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return apierr.New(apierr.StorageFailure, "album.WriteTile", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return apierr.New(apierr.StorageFailure, "album.WriteTile", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	img := model.Image{
		ID:            a.idx.NextImageID(),
		Geocode:       f.Geocode,
		Platform:      f.Platform,
		Source:        f.Source,
		TileID:        f.TileID,
		Timestamp:     f.Timestamp,
		Files: []model.File{{
			Subdataset:    f.Subdataset,
			PixelCoverage: f.PixelCoverage,
			Path:          path,
		}},
	}
	if f.CloudCoverage != nil {
		img.CloudCoverage = f.CloudCoverage
	}
	if err := a.idx.Upsert(img); err != nil {
		return apierr.New(apierr.StorageFailure, "album.WriteTile", err)
	}
	return nil
}

// Each streams every image of album matching filter to fn, in the order
// defined by the index (spec §4.3 list).
func (s *Store) Each(albumID string, filter model.Filter, fn func(model.Image) error) error {
	a, err := s.resolve(albumID)
	if err != nil {
		return err
	}
	return a.idx.Each(filter, fn)
}

// Search returns the Extent summary rows for album matching filter.
func (s *Store) Search(albumID string, filter model.Filter) ([]model.Extent, error) {
	a, err := s.resolve(albumID)
	if err != nil {
		return nil, err
	}
	return a.idx.Search(filter)
}

// Rebuild walks an album's on-disk tile tree and replays write_tile in
// metadata-only mode, reconstructing the index from the tiles' embedded
// STIP domain (spec §4.3).
func (s *Store) Rebuild(albumID string) error {
	s.mu.RLock()
	a, ok := s.albums[albumID]
	s.mu.RUnlock()
	if !ok {
		return apierr.New(apierr.NotFound, "album.Rebuild", fmt.Errorf("unknown album %q", albumID))
	}

	return filepath.Walk(a.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".tif" {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("album: rebuild open %s: %w", path, err)
		}
		_, meta, err := tilecodec.Decode(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("album: rebuild decode %s: %w", path, err)
		}

		a.mu.Lock()
		img := model.Image{
			ID:        a.idx.NextImageID(),
			Geocode:   meta.Geocode,
			Platform:  meta.Platform,
			Source:    meta.Source,
			TileID:    meta.TileID,
			Timestamp: meta.Timestamp,
			Files: []model.File{{
				Subdataset:    meta.Subdataset,
				PixelCoverage: meta.PixelCoverage,
				Path:          path,
			}},
		}
		if meta.CloudCoverage != model.NoCloudCoverage {
			cc := meta.CloudCoverage
			img.CloudCoverage = &cc
		}
		err = a.idx.Upsert(img)
		a.mu.Unlock()
		return err
	})
}
