package taskmgr

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	yaml "go.yaml.in/yaml/v3"

	"github.com/vnykmshr/taskmgr/pkg/clock"
	"github.com/vnykmshr/taskmgr/pkg/common/validation"
	"github.com/vnykmshr/taskmgr/pkg/logging"
	"github.com/vnykmshr/taskmgr/pkg/metrics"
)

const (
	// DefaultCapacity is the pool size used when Config.Capacity is zero.
	DefaultCapacity = 16

	// DefaultMinPollMicros is the shortest interval an event is re-polled at.
	DefaultMinPollMicros = 100

	// DefaultLoopBudgetMicros is the budget Run passes to each RunForBudget call.
	DefaultLoopBudgetMicros = 10000

	defaultName = "default"
)

// Config holds manager configuration.
type Config struct {
	// Name labels logs and metrics (default: "default").
	Name string

	// Capacity is the fixed number of task slots (default: 16, max: MaxCapacity).
	Capacity int

	// Clock supplies the micros and millis counters (default: clock.NewSystemClock()).
	Clock clock.Clock

	// Idler suspends the pump while nothing is due (default: clock.NewSleepIdler()).
	Idler clock.Idler

	// MinPollMicros is the floor applied to an event's reported poll delay,
	// so an event answering 0 cannot monopolise the pump (default: 100).
	MinPollMicros uint32

	// LoopBudgetMicros is the per-iteration budget used by Run (default: 10000).
	LoopBudgetMicros uint32

	// ClockToleranceMicros is how far the micros counter may step backwards
	// before it is reported as a clock anomaly (default: 0).
	ClockToleranceMicros uint32

	// Logger receives diagnostics. Nil disables logging.
	Logger *zerolog.Logger

	// Metrics configures Prometheus instrumentation. Disabled unless Enabled is set.
	Metrics metrics.Config

	// OnError is called on the scheduling goroutine for callback faults and
	// clock anomalies.
	OnError func(err error)
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = defaultName
	}
	if c.Capacity == 0 {
		c.Capacity = DefaultCapacity
	}
	if c.Clock == nil {
		c.Clock = clock.NewSystemClock()
	}
	if c.Idler == nil {
		c.Idler = clock.NewSleepIdler()
	}
	if c.MinPollMicros == 0 {
		c.MinPollMicros = DefaultMinPollMicros
	}
	if c.LoopBudgetMicros == 0 {
		c.LoopBudgetMicros = DefaultLoopBudgetMicros
	}
	return c
}

func (c Config) validate() error {
	if err := validation.ValidatePositive("taskmgr", "capacity", c.Capacity); err != nil {
		return err
	}
	return validation.ValidateAtMost("taskmgr", "capacity", c.Capacity, MaxCapacity)
}

// FileConfig is the on-disk form of Config.
type FileConfig struct {
	Name           string `yaml:"name"`
	Capacity       int    `yaml:"capacity"`
	MinPoll        string `yaml:"min_poll"`
	LoopBudget     string `yaml:"loop_budget"`
	ClockTolerance string `yaml:"clock_tolerance"`

	Log struct {
		Level   string `yaml:"level"`
		Console bool   `yaml:"console"`
	} `yaml:"log"`

	Metrics struct {
		Enabled   bool   `yaml:"enabled"`
		Namespace string `yaml:"namespace"`
	} `yaml:"metrics"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML, rejecting unknown keys.
func ParseConfig(data []byte) (FileConfig, error) {
	var fc FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return FileConfig{}, fmt.Errorf("yaml unmarshal: %w", err)
	}
	for path, raw := range map[string]string{
		"min_poll":        fc.MinPoll,
		"loop_budget":     fc.LoopBudget,
		"clock_tolerance": fc.ClockTolerance,
	} {
		if _, err := parseMicros(path, raw); err != nil {
			return FileConfig{}, err
		}
	}
	return fc, nil
}

// Config converts the file form into a Config. Clock, Idler and OnError are
// left for the caller to fill in.
func (fc FileConfig) Config() (Config, error) {
	minPoll, err := parseMicros("min_poll", fc.MinPoll)
	if err != nil {
		return Config{}, err
	}
	budget, err := parseMicros("loop_budget", fc.LoopBudget)
	if err != nil {
		return Config{}, err
	}
	tolerance, err := parseMicros("clock_tolerance", fc.ClockTolerance)
	if err != nil {
		return Config{}, err
	}

	logger := logging.New(logging.Config{Level: fc.Log.Level, Console: fc.Log.Console}).
		With().Str("scheduler", fc.Name).Logger()

	mc := metrics.Config{Enabled: fc.Metrics.Enabled, Namespace: fc.Metrics.Namespace}
	if mc.Enabled {
		mc = metrics.DefaultConfig()
		if fc.Metrics.Namespace != "" {
			mc.Namespace = fc.Metrics.Namespace
		}
	}

	return Config{
		Name:                 fc.Name,
		Capacity:             fc.Capacity,
		MinPollMicros:        minPoll,
		LoopBudgetMicros:     budget,
		ClockToleranceMicros: tolerance,
		Logger:               &logger,
		Metrics:              mc,
	}, nil
}

// parseMicros accepts Go duration strings ("250us", "10ms"); empty means zero.
func parseMicros(path, raw string) (uint32, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	us := d.Microseconds()
	if us > int64(^uint32(0)) {
		return 0, fmt.Errorf("%s: duration %q too large", path, raw)
	}
	return uint32(us), nil
}
