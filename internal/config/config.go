// Package config holds the runtime tunables that aren't part of the
// wire-visible schema: chunk sizing, the deleted-bitmap LRU capacity, and
// search fan-out. Populated via envconfig the way cmd/longbow's Config is,
// under a SEGCORE_ prefix instead of LONGBOW_.
package config

import (
	"errors"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Runtime is segcore's process-wide tunable set. None of these fields are
// part of any wire format; a segment's behavior given the same inserts and
// plan must not depend on which Runtime constructed it, only on how fast
// growth/eviction happen internally.
type Runtime struct {
	// SizePerChunk is the row count of each ConcurrentVector chunk. Spec
	// default is 32768; any positive value works, since row offsets are
	// split into chunk and position by division and modulo.
	SizePerChunk int `envconfig:"SIZE_PER_CHUNK" default:"32768"`

	// BitmapCacheCapacity bounds the deleted-bitmap LRU by entry count, per
	// SUPPLEMENTED FEATURES item 2 (original_source bounds by count, not bytes).
	BitmapCacheCapacity int `envconfig:"BITMAP_CACHE_CAPACITY" default:"16"`

	// SearchFanOut is the max number of chunks a growing-segment brute-force
	// search evaluates concurrently via errgroup.
	SearchFanOut int `envconfig:"SEARCH_FAN_OUT" default:"8"`

	// DefaultTopKCap is loaded with the other tunables, but no code in this
	// module reads it; topk requests are not capped by it.
	DefaultTopKCap int `envconfig:"DEFAULT_TOPK_CAP" default:"16384"`
}

// ErrInvalidSizePerChunk indicates SizePerChunk is non-positive.
var ErrInvalidSizePerChunk = errors.New("size_per_chunk must be positive")

// ErrInvalidBitmapCacheCapacity indicates BitmapCacheCapacity is non-positive.
var ErrInvalidBitmapCacheCapacity = errors.New("bitmap_cache_capacity must be positive")

// ErrInvalidSearchFanOut indicates SearchFanOut is non-positive.
var ErrInvalidSearchFanOut = errors.New("search_fan_out must be positive")

// Validate checks r for the constraints the rest of the module assumes
// without re-checking on every call.
func (r Runtime) Validate() error {
	if r.SizePerChunk <= 0 {
		return ErrInvalidSizePerChunk
	}
	if r.BitmapCacheCapacity <= 0 {
		return ErrInvalidBitmapCacheCapacity
	}
	if r.SearchFanOut <= 0 {
		return ErrInvalidSearchFanOut
	}
	return nil
}

// Default returns Runtime's zero-env defaults without touching the process
// environment, for library callers that don't want envconfig involved.
func Default() Runtime {
	return Runtime{SizePerChunk: 32768, BitmapCacheCapacity: 16, SearchFanOut: 8, DefaultTopKCap: 16384}
}

// Load populates a Runtime from the process environment under the
// SEGCORE_ prefix (e.g. SEGCORE_SIZE_PER_CHUNK).
func Load() (Runtime, error) {
	var r Runtime
	if err := envconfig.Process("SEGCORE", &r); err != nil {
		return Runtime{}, err
	}
	return r, r.Validate()
}

// LoadDotEnv seeds the process environment from a .env file at path before
// any Load call, wrapping godotenv the way cmd/longbow's main sets up but
// never wired to godotenv itself — used by cmd/segcore-bench and
// integration tests that want a fixture-local override file.
func LoadDotEnv(path string) error {
	return godotenv.Load(path)
}
