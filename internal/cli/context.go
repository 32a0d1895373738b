package cli

import (
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/birthmark-protocol/birthmark/internal/audit"
	"github.com/birthmark-protocol/birthmark/internal/capture"
	"github.com/birthmark-protocol/birthmark/internal/fingerprint"
	"github.com/birthmark-protocol/birthmark/internal/ledger"
	"github.com/birthmark-protocol/birthmark/internal/sidecar"
	"github.com/birthmark-protocol/birthmark/pkg/color"
	"github.com/birthmark-protocol/birthmark/pkg/config"
	"github.com/birthmark-protocol/birthmark/pkg/errclass"
	"github.com/birthmark-protocol/birthmark/pkg/logging"
	"github.com/birthmark-protocol/birthmark/pkg/metrics"
	"github.com/birthmark-protocol/birthmark/pkg/model"
)

// loadConfig reads the config file and applies the global flags over it,
// then configures the global logger to stderr.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if backendName != "" {
		cfg.Backend.Name = backendName
	}
	if len(backendOpts) > 0 {
		merged := make(map[string]string, len(cfg.Backend.Options)+len(backendOpts))
		maps.Copy(merged, cfg.Backend.Options)
		maps.Copy(merged, backendOpts)
		cfg.Backend.Options = merged
	}

	logger, err := logging.Configure(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		return nil, err
	}
	logging.SetGlobal(logger)
	return cfg, nil
}

// openBackend resolves and instruments the configured backend.
func openBackend(cfg *config.Config) (ledger.Backend, error) {
	b, err := ledger.Resolve(cfg.Backend.Name, ledger.Config(cfg.Backend.Options))
	if err != nil {
		return nil, err
	}
	name := strings.ToLower(strings.TrimSpace(cfg.Backend.Name))
	if name == ledger.BackendMemory || name == ledger.BackendMock {
		logging.Debug("memory backend is per-process; use serve + gateway to share records")
	}
	return ledger.Instrument(b, name, metrics.Default()), nil
}

// resolveAlgorithm prefers an explicit flag over the config value.
func resolveAlgorithm(flag string, cfg *config.Config) (model.Algorithm, error) {
	if flag != "" {
		return fingerprint.ParseAlgorithm(flag)
	}
	return fingerprint.ParseAlgorithm(cfg.Fingerprint.Algorithm)
}

func newEngine() *fingerprint.Engine {
	return fingerprint.New(fingerprint.WithMetrics(metrics.Default()))
}

// sessionFlags are shared by record, capture and verify.
type sessionFlags struct {
	submitter string
	algorithm string
	sidecar   string
	lat, lon  float64
}

// newSession builds a capture session from config plus per-command flags.
// The submitter id is only required when requireSubmitter is set.
func newSession(cfg *config.Config, f *sessionFlags, requireSubmitter bool) (*capture.Session, error) {
	b, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}
	alg, err := resolveAlgorithm(f.algorithm, cfg)
	if err != nil {
		return nil, err
	}
	format := cfg.Sidecar.Format
	if f.sidecar != "" {
		format = f.sidecar
	}
	sidecarFormat, err := sidecar.ParseFormat(format)
	if err != nil {
		return nil, err
	}

	submitter := cfg.Submitter.ID
	if f.submitter != "" {
		submitter = f.submitter
	}
	if submitter == "" {
		if requireSubmitter {
			return nil, errclass.ErrMissingConfiguration.WithMessage("submitter id required: pass --submitter or set submitter.id")
		}
		submitter = "verifier"
	}

	opts := []capture.Option{capture.WithEngine(newEngine())}
	if cfg.Journal.Path != "" {
		opts = append(opts, capture.WithJournal(audit.NewFileAppender(cfg.Journal.Path)))
	}
	s, err := capture.NewSession(submitter, b, opts...)
	if err != nil {
		return nil, err
	}
	s.Algorithm = alg
	s.SidecarFormat = sidecarFormat
	return s, nil
}

// geolocation returns the --lat/--lon pair, nil when neither is given.
func (f *sessionFlags) geolocation(latSet, lonSet bool) (*model.Geolocation, error) {
	switch {
	case !latSet && !lonSet:
		return nil, nil
	case latSet != lonSet:
		return nil, errclass.ErrInvalidRecord.WithMessage("--lat and --lon must be given together")
	}
	geo := model.NewGeolocation(f.lat, f.lon)
	if err := geo.Validate(); err != nil {
		return nil, err
	}
	return geo, nil
}

func fmtErr(format string, args ...any) {
	prefix := "birthmark: "
	if color.Enabled() {
		prefix = color.Error("birthmark:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
