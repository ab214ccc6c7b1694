// Package config loads runtime configuration for both the kv node and
// the feed node from a config file and environment variables, in that
// increasing order of precedence, via Viper. The cmd binaries apply
// their own flags on top of the loaded Config.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full configuration envelope. Not every field applies
// to every binary: cmd/kvserver reads Node/Quorum, cmd/feedserver reads
// Node/IDGen/Redis/Feed. Ring and Gossip are loaded but neither binary
// reads them: the ring and membership run on the package cluster
// defaults (DefaultVirtualReplicas, DefaultGossipInterval,
// DefaultGossipFanout, DefaultFailAfter).
type Config struct {
	Node   NodeConfig   `mapstructure:"node"`
	IDGen  IDGenConfig  `mapstructure:"idgen"`
	Ring   RingConfig   `mapstructure:"ring"`
	Quorum QuorumConfig `mapstructure:"quorum"`
	Gossip GossipConfig `mapstructure:"gossip"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Feed   FeedConfig   `mapstructure:"feed"`
}

type NodeConfig struct {
	ID      string `mapstructure:"id"`
	Addr    string `mapstructure:"addr"`
	DataDir string `mapstructure:"data_dir"`
	Peers   string `mapstructure:"peers"` // comma-separated id=host:port; not read by cmd/kvserver, which joins through --seed
}

type IDGenConfig struct {
	EpochMs      int64 `mapstructure:"epoch_ms"`
	DatacenterID int   `mapstructure:"datacenter_id"`
	MachineID    int   `mapstructure:"machine_id"`
}

type RingConfig struct {
	Replicas int `mapstructure:"replicas"`
}

type QuorumConfig struct {
	N int `mapstructure:"n"`
	W int `mapstructure:"w"`
	R int `mapstructure:"r"`
}

type GossipConfig struct {
	IntervalMs         int `mapstructure:"interval_ms"`
	Fanout             int `mapstructure:"fanout"`
	FailureThresholdMs int `mapstructure:"failure_threshold_ms"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

type FeedConfig struct {
	CelebrityThreshold int `mapstructure:"celebrity_threshold"`
	FanoutBatchSize    int `mapstructure:"fanout_batch_size"`
	FanoutWorkers      int `mapstructure:"fanout_workers"`
	MaxFeedSize        int `mapstructure:"max_feed_size"`
}

// GossipInterval and FailureThreshold convert the millisecond fields
// into durations for direct use by package cluster.
func (g GossipConfig) GossipInterval() time.Duration {
	return time.Duration(g.IntervalMs) * time.Millisecond
}

func (g GossipConfig) FailureThreshold() time.Duration {
	return time.Duration(g.FailureThresholdMs) * time.Millisecond
}

// defaults mirror the package-level defaults in cluster/idgen/feed so a
// node with no config file still behaves sensibly.
func defaults(v *viper.Viper) {
	v.SetDefault("node.addr", ":8080")
	v.SetDefault("node.data_dir", "/tmp/distsys")

	v.SetDefault("idgen.epoch_ms", int64(0)) // 0 means idgen.DefaultEpochMs
	v.SetDefault("idgen.datacenter_id", 1)
	v.SetDefault("idgen.machine_id", 1)

	v.SetDefault("ring.replicas", 3)

	v.SetDefault("quorum.n", 3)
	v.SetDefault("quorum.w", 2)
	v.SetDefault("quorum.r", 2)

	v.SetDefault("gossip.interval_ms", 300)
	v.SetDefault("gossip.fanout", 3)
	v.SetDefault("gossip.failure_threshold_ms", 2000)

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("feed.celebrity_threshold", 5000)
	v.SetDefault("feed.fanout_batch_size", 100)
	v.SetDefault("feed.fanout_workers", 10)
	v.SetDefault("feed.max_feed_size", 1000)
}

// Load reads configuration from cfgFile (if non-empty; searched as-is),
// else ./config.yaml or $HOME/.distsys/config.yaml, then DISTSYS_-prefixed
// environment variables, with defaults filling in anything unset.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("distsys")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.distsys")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
