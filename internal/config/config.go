// Package config loads the proxy's YAML configuration file, the way
// chihaya.OpenConfigFile and cmd/trakr's ParseConfigFile do: ExpandEnv the
// path, read it whole, and unmarshal into a typed Config with per-section
// defaults.
package config

import (
	"io/ioutil"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/dig-network/digproxy/internal/registry"
	"github.com/dig-network/digproxy/internal/resolver"
	"github.com/dig-network/digproxy/internal/selector"
)

// DefaultPort is the listen port absent an override, per spec §6.
const DefaultPort = "4162"

// DefaultConcurrentJobs is the worker-process count absent an override.
const DefaultConcurrentJobs = 1

// DefaultPrometheusAddr is where /metrics is served when enabled.
const DefaultPrometheusAddr = ":9090"

// DefaultChainBaseURL is the local chain RPC façade consulted for
// sampleCurrentEpoch/getCurrentEpoch/fetchCoinInfo, absent an override.
const DefaultChainBaseURL = "http://localhost:8575"

// DefaultReadTimeout/WriteTimeout bound the front-facing HTTP server, the
// way server/http.httpConfig does for the teacher's tracker listener.
const (
	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 0 // unbounded: proxy responses may stream for a while
)

// Config is the root configuration of a digproxy process.
type Config struct {
	Addr           string `yaml:"addr"`
	ConcurrentJobs int    `yaml:"concurrent_jobs"`
	PrometheusAddr string `yaml:"prometheus_addr"`
	ChainBaseURL   string `yaml:"chain_base_url"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	Registry registry.Config `yaml:"registry"`
	Selector selector.Config `yaml:"selector"`
	Resolver resolver.Config `yaml:"resolver"`
}

// DefaultConfig is used as a fallback when no config file path is given,
// mirroring chihaya.DefaultConfig.
var DefaultConfig = Config{
	Addr:           ":" + DefaultPort,
	ConcurrentJobs: DefaultConcurrentJobs,
	PrometheusAddr: DefaultPrometheusAddr,
	ChainBaseURL:   DefaultChainBaseURL,
	ReadTimeout:    DefaultReadTimeout,
	WriteTimeout:   DefaultWriteTimeout,
}

// Validate fills in defaults for anything unset across all sub-configs.
func (cfg Config) Validate() Config {
	valid := cfg
	if valid.Addr == "" {
		valid.Addr = ":" + DefaultPort
	}
	if valid.ConcurrentJobs <= 0 {
		valid.ConcurrentJobs = DefaultConcurrentJobs
	}
	if valid.PrometheusAddr == "" {
		valid.PrometheusAddr = DefaultPrometheusAddr
	}
	if valid.ChainBaseURL == "" {
		valid.ChainBaseURL = DefaultChainBaseURL
	}
	if valid.ReadTimeout <= 0 {
		valid.ReadTimeout = DefaultReadTimeout
	}
	valid.Registry = valid.Registry.Validate()
	valid.Selector = valid.Selector.Validate()
	valid.Resolver = valid.Resolver.Validate()
	return valid
}

// OpenFile returns a new Config given the path to a YAML configuration
// file. It supports relative and absolute paths and environment variables.
// Given "", it returns DefaultConfig.
func OpenFile(path string) (*Config, error) {
	if path == "" {
		cfg := DefaultConfig.Validate()
		return &cfg, nil
	}

	f, err := os.Open(os.ExpandEnv(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	contents, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, err
	}

	var cfgFile struct {
		DigProxy Config `yaml:"digproxy"`
	}
	if err := yaml.Unmarshal(contents, &cfgFile); err != nil {
		return nil, err
	}

	validated := cfgFile.DigProxy.Validate()
	return &validated, nil
}

// ApplyEnv overrides cfg's Addr and ConcurrentJobs from the PORT and
// CONCURRENT_JOBS environment variables, per spec §6.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if port := getenv("PORT"); port != "" {
		cfg.Addr = ":" + port
	}
	if jobs := getenv("CONCURRENT_JOBS"); jobs != "" {
		if n, err := strconv.Atoi(jobs); err == nil && n > 0 {
			cfg.ConcurrentJobs = n
		}
	}
}
