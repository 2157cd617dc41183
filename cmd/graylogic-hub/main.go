// Gray Logic Hub - entity registry cache and intent resolver.
//
// The hub keeps an enriched snapshot of a Home Assistant style registry,
// refreshes it within the host's memory budget and resolves natural
// language intent descriptors against it.
//
// Usage:
//
//	graylogic-hub          run the hub (config from GRAYLOGIC_CONFIG)
//	graylogic-hub worker   build one snapshot from stdin to stdout
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-hub/migrations"

	"github.com/nerrad567/gray-logic-hub/internal/api"
	"github.com/nerrad567/gray-logic-hub/internal/cache"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-hub/internal/intent"
	"github.com/nerrad567/gray-logic-hub/internal/process"
	"github.com/nerrad567/gray-logic-hub/internal/registry"
	"github.com/nerrad567/gray-logic-hub/internal/resource"
	"github.com/nerrad567/gray-logic-hub/internal/snapshot"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// workerCommand runs the isolated snapshot builder.
	workerCommand = "worker"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == workerCommand {
		// stdout carries the result; diagnostics go to stderr.
		if err := resource.ServeWorker(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "worker: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application body, separated from main for testability. It
// returns nil on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Hub",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "registry_source", cfg.Registry.Source)

	checks := make(map[string]api.HealthChecker)

	// Snapshot persistence (optional)
	var store cache.Store
	if cfg.Cache.Persist {
		db, openErr := database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if openErr != nil {
			return fmt.Errorf("opening database: %w", openErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database ready", "path", cfg.Database.Path)
		store = snapshot.NewSQLiteRepository(db.DB)
		checks["database"] = db
	}

	// Upstream registry
	src, closeSrc := openSource(cfg.Registry, log)
	defer closeSrc()
	breaker := registry.NewBreaker(src, registry.BreakerConfig{
		MaxFailures: cfg.Registry.Breaker.MaxFailures,
		OpenTimeout: cfg.Registry.Breaker.OpenTimeout,
	}, log)

	// Tier policy
	executor, env, err := buildExecutor(cfg, breaker, log)
	if err != nil {
		return err
	}

	m := metrics.New()
	m.SetConstrained(env.Constrained)

	manager := cache.New(executor, cache.Options{
		Timeout:          cfg.Cache.Timeout,
		MaxAge:           cfg.MaxAge(env.Constrained),
		FailureThreshold: cfg.Cache.FailureThreshold,
		Store:            store,
	})
	manager.SetLogger(log)
	manager.AddObserver(m)

	var vocab *intent.Vocabulary
	if cfg.Matcher.VocabularyFile != "" {
		vocab, err = intent.LoadVocabulary(cfg.Matcher.VocabularyFile)
		if err != nil {
			return fmt.Errorf("loading vocabulary: %w", err)
		}
		log.Info("vocabulary loaded", "path", cfg.Matcher.VocabularyFile)
	}
	matcher, err := intent.NewMatcher(manager, vocab)
	if err != nil {
		return fmt.Errorf("creating intent matcher: %w", err)
	}
	matcher.SetLogger(log)
	matcher.AddObserver(m)

	// Telemetry (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Site.ID)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		manager.AddObserver(influxClient)
		matcher.AddObserver(influxClient)
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	if cfg.MQTT.Enabled {
		mqttClient, connErr := connectMQTT(cfg, manager, matcher, log)
		if connErr != nil {
			return connErr
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		checks["mqtt"] = mqttClient
	}

	// Warm start, then periodic refresh
	if seeded, seedErr := manager.Seed(ctx); seedErr != nil {
		log.Warn("could not seed snapshot from store", "error", seedErr)
	} else if seeded {
		log.Info("serving stored snapshot until the first refresh completes")
	}

	scheduler := cache.NewScheduler(manager, cfg.RefreshInterval(env.Constrained))
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("starting refresh scheduler: %w", err)
	}
	defer func() {
		log.Info("stopping refresh scheduler")
		<-scheduler.Stop().Done()
	}()
	log.Info("refresh scheduler started", "interval", scheduler.Interval())

	server, err := api.New(api.Deps{
		Config:     cfg.API,
		Security:   cfg.Security,
		Logger:     log,
		Cache:      manager,
		Matcher:    matcher,
		Metrics:    m,
		Checks:     checks,
		RetryAfter: cfg.Resources.RetryAfter,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openSource builds the configured registry source. The returned func
// releases it.
func openSource(cfg config.RegistryConfig, log *logging.Logger) (registry.Source, func()) {
	if cfg.Source == config.SourceFile {
		log.Info("using registry file", "path", cfg.File.Path)
		return registry.NewFile(cfg.File.Path), func() {}
	}

	ha := registry.NewHomeAssistant(registry.HomeAssistantConfig{
		URL:            cfg.HomeAssistant.URL,
		Token:          cfg.HomeAssistant.Token,
		DialTimeout:    cfg.HomeAssistant.DialTimeout,
		RequestTimeout: cfg.HomeAssistant.RequestTimeout,
	})
	ha.SetLogger(log)
	log.Info("using Home Assistant registry", "url", cfg.HomeAssistant.URL)
	return ha, func() {
		if err := ha.Close(); err != nil {
			log.Error("error closing Home Assistant session", "error", err)
		}
	}
}

// buildExecutor classifies the host and assembles the full and legacy
// strategies behind the memory guard.
func buildExecutor(cfg *config.Config, src registry.Source, log *logging.Logger) (*resource.Executor, resource.Environment, error) {
	probe := resource.NewProcProbe()
	sample, err := probe.Sample()
	if err != nil {
		log.Warn("memory probe failed, assuming an unconstrained host", "error", err)
	}
	env := resource.DetectEnvironment(cfg.Resources.Constrained, sample)

	profile := cfg.Resources.Profiles.Normal
	if env.Constrained {
		profile = cfg.Resources.Profiles.Constrained
	}
	thresholds := resource.ThresholdsFromMB(profile.CeilingMB, profile.FullHeadroomMB, profile.DegradedHeadroomMB)

	var builder resource.Builder = resource.InProcessBuilder{}
	if cfg.Resources.Worker.Enabled {
		binary := cfg.Resources.Worker.Binary
		if binary == "" {
			if binary, err = os.Executable(); err != nil {
				return nil, env, fmt.Errorf("locating worker binary: %w", err)
			}
		}
		runner := process.NewRunner(process.Config{
			Name:    "snapshot-builder",
			Binary:  binary,
			Args:    []string{workerCommand},
			Timeout: cfg.Resources.Worker.Timeout,
		})
		runner.SetLogger(log)
		builder = resource.NewWorkerBuilder(runner)
	}

	executor := resource.NewExecutor(resource.Options{
		Probe:       probe,
		Environment: env,
		Thresholds:  thresholds,
		RetryAfter:  cfg.Resources.RetryAfter,
	},
		resource.NewFullStrategy(src, builder, cfg.Resources.FetchAttempts),
		resource.NewLegacyStrategy(src, cfg.Resources.LegacyDomains),
	)
	executor.SetLogger(log)

	log.Info("host classified",
		"constrained", env.Constrained,
		"reason", env.Reason,
		"worker", cfg.Resources.Worker.Enabled,
		"ceiling_mb", profile.CeilingMB,
	)
	return executor, env, nil
}

// connectMQTT connects to the broker and mirrors cache and match events
// onto it. A message on the refresh topic starts a background refresh.
func connectMQTT(cfg *config.Config, manager *cache.Manager, matcher *intent.Matcher, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	pub := mqtt.NewPublisher(client, cfg.Site.ID, byte(cfg.MQTT.QoS))
	pub.SetLogger(log)
	manager.AddObserver(pub)
	matcher.AddObserver(pub)

	err = pub.ListenForRefresh(func(reason string) {
		log.Info("refresh requested over MQTT", "reason", reason)
		go manager.RefreshBackground()
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("subscribing to refresh requests: %w", err)
	}

	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client, nil
}
