package ledger

import (
	"maps"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/birthmark-protocol/birthmark/pkg/errclass"
)

// Backend names accepted by Resolve.
const (
	BackendMemory  = "memory"
	BackendMock    = "mock"
	BackendGateway = "gateway"
)

// MockNetworkTag is the network a "mock" backend reports unless configured.
const MockNetworkTag = "testnet"

// Config is the free-form, backend-specific option map.
type Config map[string]string

type constructor func(Config) (Backend, error)

var constructors = map[string]constructor{
	BackendMemory:  newMemoryFromConfig,
	BackendMock:    newMockFromConfig,
	BackendGateway: newGatewayFromConfig,
}

// KnownBackends lists the names Resolve accepts, sorted.
func KnownBackends() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve builds a fresh backend for name. Names match case-insensitively.
// Nothing is cached: each call returns a new instance.
func Resolve(name string, cfg Config) (Backend, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	ctor, ok := constructors[key]
	if !ok {
		return nil, errclass.ErrUnknownBackend.WithMessagef(
			"unknown backend %q (known: %s)", name, strings.Join(KnownBackends(), ", "))
	}
	return ctor(cfg)
}

func newMemoryFromConfig(cfg Config) (Backend, error) {
	latency, err := cfg.boolOption("simulate_latency", false)
	if err != nil {
		return nil, err
	}
	blockSize, err := cfg.intOption("block_size", DefaultBlockSize)
	if err != nil {
		return nil, err
	}
	if blockSize <= 0 {
		return nil, errclass.ErrInvalidConfiguration.WithMessagef("block_size must be positive, got %d", blockSize)
	}
	return NewMemoryLedger(MemoryOptions{
		NetworkTag:      cfg.option("network"),
		SimulateLatency: latency,
		BlockSize:       blockSize,
	}), nil
}

// newMockFromConfig is the memory ledger under its older name, defaulting
// to the testnet network.
func newMockFromConfig(cfg Config) (Backend, error) {
	if cfg.option("network") == "" {
		cfg = maps.Clone(cfg)
		if cfg == nil {
			cfg = Config{}
		}
		cfg["network"] = MockNetworkTag
	}
	return newMemoryFromConfig(cfg)
}

func newGatewayFromConfig(cfg Config) (Backend, error) {
	endpoint := cfg.option("endpoint")
	if endpoint == "" {
		return nil, errclass.ErrMissingConfiguration.WithMessage("gateway backend requires \"endpoint\"")
	}
	timeout, err := cfg.durationOption("timeout", DefaultGatewayTimeout)
	if err != nil {
		return nil, err
	}
	attempts, err := cfg.intOption("max_attempts", 1)
	if err != nil {
		return nil, err
	}
	backoff, err := cfg.durationOption("retry_backoff", DefaultRetryBackoff)
	if err != nil {
		return nil, err
	}
	return NewGatewayLedger(GatewayOptions{
		Endpoint:     endpoint,
		NetworkTag:   cfg.option("network"),
		APIKey:       cfg.option("api_key"),
		Timeout:      timeout,
		MaxAttempts:  attempts,
		RetryBackoff: backoff,
	})
}

func (c Config) option(key string) string {
	return strings.TrimSpace(c[key])
}

func (c Config) boolOption(key string, def bool) (bool, error) {
	v := c.option(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errclass.ErrInvalidConfiguration.WithMessagef("%s: %q is not a boolean", key, v)
	}
	return b, nil
}

func (c Config) intOption(key string, def int) (int, error) {
	v := c.option(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errclass.ErrInvalidConfiguration.WithMessagef("%s: %q is not an integer", key, v)
	}
	return n, nil
}

func (c Config) durationOption(key string, def time.Duration) (time.Duration, error) {
	v := c.option(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, errclass.ErrInvalidConfiguration.WithMessagef("%s: %q is not a positive duration", key, v)
	}
	return d, nil
}
