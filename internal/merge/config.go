package merge

import (
	"log/slog"

	"github.com/Aman-CERP/mosaicwatch/internal/config"
	"github.com/Aman-CERP/mosaicwatch/internal/raster"
)

// FromConfig builds a Merger from the merge section of the configuration.
// An empty policy argument uses the configured one. A positive cache size
// gets a decoded-raster cache.
func FromConfig(mc config.MergeConfig, policy Policy, logger *slog.Logger) (Merger, error) {
	if policy == "" {
		p, err := ParsePolicy(mc.Policy)
		if err != nil {
			return nil, err
		}
		policy = p
	}

	opts := Options{Driver: mc.Driver, Logger: logger}
	if v, ok := mc.NoDataValue(); ok {
		opts.NoData = &v
	}
	if mc.CacheSize > 0 {
		cache, err := raster.NewCache(mc.CacheSize)
		if err != nil {
			return nil, err
		}
		opts.Cache = cache
	}
	return New(policy, opts)
}
