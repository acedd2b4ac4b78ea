// Package config loads yarrd's optional yarrd.jsonc file, per spec.md
// §4.11 (EXPANSION). Grounded on the pack's config.go
// (calvinalkan-agent-task): standardize JSONC to JSON with
// github.com/tailscale/hujson, then encoding/json.Unmarshal into the
// typed Config struct, with defaults applied before the file is read
// so a missing file is not an error.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"

	"github.com/daniilsunyaev/yarrd/internal/dberrors"
	"github.com/daniilsunyaev/yarrd/internal/index"
	"github.com/daniilsunyaev/yarrd/internal/pager"
)

// FileName is the default config file name, read from the current
// working directory unless overridden by --config.
const FileName = "yarrd.jsonc"

// Config holds yarrd's tunable parameters.
type Config struct {
	PagerCacheSize      int    `json:"pager_cache_size,omitempty"`
	TablesDir           string `json:"tables_dir,omitempty"`
	IndexInitialBuckets int    `json:"index_initial_buckets,omitempty"`
}

// Default returns Config's zero-value-free defaults, read straight from
// pager.DefaultCapacity and index.InitialBuckets so the two can never
// drift apart.
func Default() Config {
	return Config{
		PagerCacheSize:      pager.DefaultCapacity,
		TablesDir:           "tables",
		IndexInitialBuckets: int(index.InitialBuckets),
	}
}

// Load reads path (if it exists) as JSONC, overlaying it on Default().
// A missing file is not an error: Load returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("%w: read config: %v", dberrors.ErrIO, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w: invalid JSONC in %s: %v", dberrors.ErrParse, path, err)
	}

	var overlay Config
	if err := json.Unmarshal(standardized, &overlay); err != nil {
		return Config{}, fmt.Errorf("%w: invalid config JSON in %s: %v", dberrors.ErrParse, path, err)
	}

	return merge(cfg, overlay), nil
}

func merge(base, overlay Config) Config {
	if overlay.PagerCacheSize != 0 {
		base.PagerCacheSize = overlay.PagerCacheSize
	}
	if overlay.TablesDir != "" {
		base.TablesDir = overlay.TablesDir
	}
	if overlay.IndexInitialBuckets != 0 {
		base.IndexInitialBuckets = overlay.IndexInitialBuckets
	}
	return base
}
