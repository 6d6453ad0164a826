package registry

import (
	"time"

	"github.com/dig-network/digproxy/internal/log"
)

// Default config constants, per spec §2-§5.
const (
	DefaultSeedSize                = 50
	DefaultEntryTTL                = 10 * time.Minute
	DefaultOfflineTTL              = 5 * time.Minute
	DefaultPeriodicRefreshInterval = 30 * time.Minute
	DefaultGCInterval              = time.Minute
)

// Name is used in log fields to identify this component, mirroring the
// storage driver Name constants the teacher registers under.
const Name = "registry"

// Config holds the tunables of the Peer Registry.
type Config struct {
	// SeedSize is k in sampleCurrentEpoch(storeId, k).
	SeedSize int `yaml:"seed_size"`
	// EntryTTL is how long a PeerRegistryEntry survives without being
	// touched before it is evicted.
	EntryTTL time.Duration `yaml:"entry_ttl"`
	// OfflineTTL is how long a blacklisted IP stays in the OfflinePeersSet.
	OfflineTTL time.Duration `yaml:"offline_ttl"`
	// PeriodicRefreshInterval is the per-store background refresh period.
	PeriodicRefreshInterval time.Duration `yaml:"periodic_refresh_interval"`
	// GCInterval is how often expired entries and offline-set members are
	// swept.
	GCInterval time.Duration `yaml:"gc_interval"`
}

// LogFields renders cfg as Logrus fields.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{
		"name":                    Name,
		"seedSize":                cfg.SeedSize,
		"entryTTL":                cfg.EntryTTL,
		"offlineTTL":              cfg.OfflineTTL,
		"periodicRefreshInterval": cfg.PeriodicRefreshInterval,
		"gcInterval":              cfg.GCInterval,
	}
}

// Validate sanity-checks cfg and returns a copy with defaults substituted
// for anything invalid, warning to the logger when it does so.
func (cfg Config) Validate() Config {
	valid := cfg

	if cfg.SeedSize <= 0 {
		valid.SeedSize = DefaultSeedSize
		log.Warn("falling back to default configuration", log.Fields{
			"name": Name + ".SeedSize", "provided": cfg.SeedSize, "default": valid.SeedSize,
		})
	}
	if cfg.EntryTTL <= 0 {
		valid.EntryTTL = DefaultEntryTTL
		log.Warn("falling back to default configuration", log.Fields{
			"name": Name + ".EntryTTL", "provided": cfg.EntryTTL, "default": valid.EntryTTL,
		})
	}
	if cfg.OfflineTTL <= 0 {
		valid.OfflineTTL = DefaultOfflineTTL
		log.Warn("falling back to default configuration", log.Fields{
			"name": Name + ".OfflineTTL", "provided": cfg.OfflineTTL, "default": valid.OfflineTTL,
		})
	}
	if cfg.PeriodicRefreshInterval <= 0 {
		valid.PeriodicRefreshInterval = DefaultPeriodicRefreshInterval
		log.Warn("falling back to default configuration", log.Fields{
			"name": Name + ".PeriodicRefreshInterval", "provided": cfg.PeriodicRefreshInterval, "default": valid.PeriodicRefreshInterval,
		})
	}
	if cfg.GCInterval <= 0 {
		valid.GCInterval = DefaultGCInterval
		log.Warn("falling back to default configuration", log.Fields{
			"name": Name + ".GCInterval", "provided": cfg.GCInterval, "default": valid.GCInterval,
		})
	}

	return valid
}
