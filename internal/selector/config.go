package selector

import "time"

// Name identifies this component in log fields.
const Name = "selector"

// DefaultProbeTimeout is the hard deadline on each Head Probe call.
const DefaultProbeTimeout = 5 * time.Second

// Default override probabilities for the blended selection policy. All
// three are independent; see blendedPick for how they compose.
const (
	DefaultLeastConnOverrideProb = 0.5
	DefaultLatencyOverrideProb   = 0.5
	DefaultSuccessOverrideProb   = 0.5
)

// DefaultProbeRateLimit bounds how many Head Probes per second the
// Selector will send at any single peer IP; DefaultProbeBurst is the
// matching burst size.
const (
	DefaultProbeRateLimit = 5.0
	DefaultProbeBurst     = 5
)

// Config holds the tunables of the Peer Selector.
type Config struct {
	ProbeTimeout          time.Duration `yaml:"probe_timeout"`
	LeastConnOverrideProb float64       `yaml:"least_conn_override_prob"`
	LatencyOverrideProb   float64       `yaml:"latency_override_prob"`
	SuccessOverrideProb   float64       `yaml:"success_override_prob"`
	ProbeRateLimit        float64       `yaml:"probe_rate_limit"`
	ProbeBurst            int           `yaml:"probe_burst"`
}

// Validate returns a copy of cfg with invalid fields replaced by defaults.
func (cfg Config) Validate() Config {
	valid := cfg
	if valid.ProbeTimeout <= 0 {
		valid.ProbeTimeout = DefaultProbeTimeout
	}
	if valid.LeastConnOverrideProb <= 0 {
		valid.LeastConnOverrideProb = DefaultLeastConnOverrideProb
	}
	if valid.LatencyOverrideProb <= 0 {
		valid.LatencyOverrideProb = DefaultLatencyOverrideProb
	}
	if valid.SuccessOverrideProb <= 0 {
		valid.SuccessOverrideProb = DefaultSuccessOverrideProb
	}
	if valid.ProbeRateLimit <= 0 {
		valid.ProbeRateLimit = DefaultProbeRateLimit
	}
	if valid.ProbeBurst <= 0 {
		valid.ProbeBurst = DefaultProbeBurst
	}
	return valid
}
