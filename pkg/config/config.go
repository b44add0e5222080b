// Package config holds the tunables spec.md leaves as constants
// (bucket capacity, bucket ceiling, response timeout, store TTL, sweep
// interval, wire buffer sizes) and decodes overrides the way a
// Viper-style layer would, via mapstructure, without pulling in file
// watching this module has no use for.
package config

import (
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/mod/kadnet/pkg/routing"
	"github.com/mod/kadnet/pkg/store"
)

// Config collects every tunable named across spec.md §3-§5.
type Config struct {
	// Address is the UDP endpoint this node binds, "host:port".
	Address string `mapstructure:"address"`

	// BucketCapacity is k as used for the size of FindNode replies and
	// lookup results (spec.md default 20). The per-bucket peer cap is the
	// constant kbucket.Capacity and does not follow this field.
	BucketCapacity int `mapstructure:"bucket_capacity"`

	// MaxBuckets is L, the routing table's bucket-count ceiling. See
	// SPEC_FULL.md §7 for the 15-vs-160 deviation this module takes.
	MaxBuckets int `mapstructure:"max_buckets"`

	// Alpha is the lookup concurrency parameter used by pkg/lookup.
	Alpha int `mapstructure:"alpha"`

	// ResponseTimeout bounds how long Node.Send waits for a correlated
	// response (spec.md default 1s).
	ResponseTimeout time.Duration `mapstructure:"response_timeout"`

	// StoreTTL is the freshness window store.Store sweeps on (spec.md
	// default 24h).
	StoreTTL time.Duration `mapstructure:"store_ttl"`

	// SweepInterval is the sweeper's tick period (spec.md default 1h).
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// ReceiveChannelCapacity bounds the receive-to-dispatch channel
	// (spec.md default 50; the intended backpressure mechanism).
	ReceiveChannelCapacity int `mapstructure:"receive_channel_capacity"`

	// DatagramBufferSize is the fixed per-datagram read buffer (spec.md
	// default 2000 bytes).
	DatagramBufferSize int `mapstructure:"datagram_buffer_size"`
}

// Default returns the spec.md-mandated defaults.
func Default() Config {
	return Config{
		Address:                "127.0.0.1:0",
		BucketCapacity:         20,
		MaxBuckets:             routing.DefaultMaxBuckets,
		Alpha:                  3,
		ResponseTimeout:        time.Second,
		StoreTTL:               store.DefaultTTL,
		SweepInterval:          time.Hour,
		ReceiveChannelCapacity: 50,
		DatagramBufferSize:     2000,
	}
}

// Load starts from Default and decodes overrides out of a generic map
// (e.g. parsed flags or env vars) via mapstructure, the same decode
// step a Viper-backed config loader performs internally.
func Load(overrides map[string]any) (Config, error) {
	cfg := Default()
	if len(overrides) == 0 {
		return cfg, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return Config{}, err
	}
	if err := decoder.Decode(overrides); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
