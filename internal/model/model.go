// Package model defines the data types shared across the cluster fabric,
// album catalog, task engine, and tiling pipeline: nodes, albums, tiles,
// filters, and task handles.
package model

import (
	"fmt"
	"math"
	"time"
)

// GeocodeScheme identifies the hierarchical coordinate encoding an album uses.
type GeocodeScheme string

const (
	Geohash  GeocodeScheme = "geohash"
	QuadTile GeocodeScheme = "quadtile"
)

// AlbumStatus gates writes to an album.
type AlbumStatus string

const (
	AlbumOpen   AlbumStatus = "open"
	AlbumClosed AlbumStatus = "closed"
)

// TileSource tags the provenance of a stored tile.
type TileSource string

const (
	SourceRaw    TileSource = "raw"
	SourceSplit  TileSource = "split"
	SourceFilled TileSource = "filled"
)

// TaskStatus is the lifecycle state of a TaskHandle.
type TaskStatus string

const (
	TaskRunning  TaskStatus = "running"
	TaskComplete TaskStatus = "complete"
	TaskFailure  TaskStatus = "failure"
)

// NoCloudCoverage is the sentinel written to the on-disk STIP metadata
// domain when a tile carries no cloud-coverage estimate (spec §6.2).
const NoCloudCoverage = math.MaxFloat64

// Node is a peer's identity and addressing as advertised over gossip.
type Node struct {
	ID        uint32            `json:"id"`
	GossipAddr string           `json:"gossip_addr"`
	RPCAddr   string            `json:"rpc_addr"`
	XferAddr  string            `json:"xfer_addr"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Tokens    []uint64          `json:"tokens"`
}

// Album is a named tile container with immutable tiling policy.
type Album struct {
	ID            string        `json:"id"`
	Geocode       GeocodeScheme `json:"geocode"`
	DHTKeyLength  int           `json:"dht_key_length"`
	Status        AlbumStatus   `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Validate checks the album policy invariants from spec §3.
func (a Album) Validate(precisionChars int) error {
	if a.Geocode != Geohash && a.Geocode != QuadTile {
		return fmt.Errorf("unknown geocode scheme %q", a.Geocode)
	}
	abs := a.DHTKeyLength
	if abs < 0 {
		abs = -abs
	}
	if abs >= precisionChars {
		return fmt.Errorf("dht_key_length %d out of range for code length %d", a.DHTKeyLength, precisionChars)
	}
	return nil
}

// Image is a tile's identity and attributes, composite-keyed by
// (Geocode, Platform, Source, TileID).
type Image struct {
	ID             int64      `json:"id"`
	Geocode        string     `json:"geocode"`
	Platform       string     `json:"platform"`
	Source         TileSource `json:"source"`
	TileID         string     `json:"tile_id"`
	Timestamp      int64      `json:"timestamp"`
	CloudCoverage  *float64   `json:"cloud_coverage,omitempty"`
	Files          []File     `json:"files,omitempty"`
}

// File is one subdataset slot of an Image.
type File struct {
	ImageID        int64   `json:"image_id,omitempty"`
	Subdataset     uint8   `json:"subdataset"`
	PixelCoverage  float64 `json:"pixel_coverage"`
	Path           string  `json:"path"`
}

// Filter constrains a list/search query over an album's index (spec §4.3).
type Filter struct {
	StartTimestamp   *int64   `json:"start_timestamp,omitempty"`
	EndTimestamp     *int64   `json:"end_timestamp,omitempty"`
	Geocode          string   `json:"geocode,omitempty"`
	MaxCloudCoverage *float64 `json:"max_cloud_coverage,omitempty"`
	MinPixelCoverage *float64 `json:"min_pixel_coverage,omitempty"`
	Platform         string   `json:"platform,omitempty"`
	Source           TileSource `json:"source,omitempty"`
	Recurse          bool     `json:"recurse"`
}

// Extent is one aggregate row returned by a search query.
type Extent struct {
	Platform      string     `json:"platform"`
	GeocodePrefix string     `json:"geocode_prefix"`
	Source        TileSource `json:"source"`
	Precision     int        `json:"precision"`
	Count         int        `json:"count"`
}

// TaskHandle reports a task's live progress and terminal status.
type TaskHandle struct {
	ID        uint64     `json:"id"`
	Completed uint64     `json:"completed"`
	Skipped   uint64     `json:"skipped"`
	Total     uint64     `json:"total"`
	Status    TaskStatus `json:"status"`
	Message   string     `json:"message,omitempty"`
}
