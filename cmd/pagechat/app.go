package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vinayprograms/pagechat/admission"
	"github.com/vinayprograms/pagechat/cache"
	"github.com/vinayprograms/pagechat/config"
	"github.com/vinayprograms/pagechat/credentials"
	"github.com/vinayprograms/pagechat/fetch"
	"github.com/vinayprograms/pagechat/langdetect"
	"github.com/vinayprograms/pagechat/llm"
	"github.com/vinayprograms/pagechat/logging"
	"github.com/vinayprograms/pagechat/relay"
	"github.com/vinayprograms/pagechat/telemetry"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg       config.Config
	logger    *logging.Logger
	store     *cache.MemoryStore
	fetcher   *fetch.Fetcher
	detector  *langdetect.Whatlang
	gate      *admission.Gate
	generator llm.Generator
	relay     *relay.Service
	telemetry *telemetry.Provider
}

func loadConfig(flags *globalFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return cfg, err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig) *logging.Logger {
	l := logging.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logging.ParseLevel(cfg.Level))
	if cfg.Format == string(logging.FormatJSON) {
		l.SetFormat(logging.FormatJSON)
	}
	return l
}

// buildApp wires the pipeline. The generator is only built when
// withGenerator is set, so commands that never call the model need no key.
func buildApp(ctx context.Context, cfg config.Config, withGenerator bool) (*app, error) {
	a := &app{cfg: cfg, logger: newLogger(cfg.Logging)}

	if cfg.Telemetry.Enabled {
		tp, err := telemetry.InitProvider(ctx, telemetry.ProviderConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: version,
			Endpoint:       cfg.Telemetry.Endpoint,
			Protocol:       cfg.Telemetry.Protocol,
			Insecure:       cfg.Telemetry.Insecure,
			Debug:          cfg.Telemetry.Debug,
			SampleRatio:    cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		a.telemetry = tp
	}

	a.store = cache.NewMemoryStore(cache.Config{
		MaxEntries: cfg.Cache.MaxEntries,
		TTL:        cfg.Cache.TTL,
	})
	a.fetcher = fetch.New(fetch.Config{
		Timeout:      cfg.Fetch.Timeout,
		MaxChars:     cfg.Fetch.MaxChars,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		UserAgent:    cfg.Fetch.UserAgent,
	}, a.store, fetch.WithLogger(a.logger.WithComponent("fetch")))
	a.detector = langdetect.New()
	a.gate = admission.New(admission.Config{
		Capacity:    cfg.Admission.Capacity,
		WaitTimeout: cfg.Admission.WaitTimeout,
	})

	if !withGenerator {
		return a, nil
	}

	gen, err := newGenerator(cfg.LLM, a.logger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.generator = gen

	rcfg := relay.DefaultConfig()
	rcfg.RequireLanguage = cfg.Server.RequireLanguage
	rcfg.Provider = cfg.LLM.Provider
	a.relay = relay.New(rcfg, a.fetcher, a.detector, a.gate, a.generator,
		relay.WithLogger(a.logger.WithComponent("relay")))
	return a, nil
}

func newGenerator(cfg config.LLMConfig, logger *logging.Logger) (llm.Generator, error) {
	creds, path, err := credentials.Load()
	if err != nil {
		return nil, err
	}
	if path != "" {
		logger.Debug("credentials_loaded", map[string]interface{}{"path": path})
	}

	apiKey := creds.GetAPIKey(cfg.Provider)
	if apiKey == "" {
		return nil, fmt.Errorf("no API key for %s: set one of %v or add it to credentials.toml",
			cfg.Provider, credentials.EnvVars(cfg.Provider))
	}

	gen, err := llm.New(llm.Config{
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		APIKey:    apiKey,
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.Timeout,
		MaxTokens: cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return llm.WithTracing(gen, cfg.Provider), nil
}

// close releases everything buildApp opened. Used by the one-shot commands;
// serve tears down through the shutdown coordinator instead.
func (a *app) close(ctx context.Context) {
	if a.gate != nil {
		a.gate.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Warn("telemetry_shutdown_failed", map[string]interface{}{"error": err.Error()})
		}
	}
}
