// Package tenancy parses tenancy command flags and launches the tenancy runtime.
package tenancy

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/tenantcore/internal/platform/cmd"
	tenancyapp "github.com/louisbranch/tenantcore/internal/services/tenancy/app"
)

// Config holds tenancy command configuration.
type Config struct {
	Port               int           `env:"TENANTCORE_PORT" envDefault:"8095"`
	EventsDBPath       string        `env:"TENANTCORE_EVENTS_DB_PATH" envDefault:"data/tenancy-events.db"`
	ProjectionsDBPath  string        `env:"TENANTCORE_PROJECTIONS_DB_PATH" envDefault:"data/tenancy-projections.db"`
	ReservationBackend string        `env:"TENANTCORE_RESERVATION_BACKEND" envDefault:"sqlite"`
	PostgresDSN        string        `env:"TENANTCORE_POSTGRES_DSN"`
	PollInterval       time.Duration `env:"TENANTCORE_POLL_INTERVAL" envDefault:"2s"`
	StopTimeout        time.Duration `env:"TENANTCORE_STOP_TIMEOUT" envDefault:"5s"`
	MaxRunners         int           `env:"TENANTCORE_MAX_RUNNERS" envDefault:"8"`
	BatchSize          int           `env:"TENANTCORE_BATCH_SIZE" envDefault:"256"`
}

// Validate checks cross-field rules.
func (c Config) Validate() error {
	switch c.ReservationBackend {
	case tenancyapp.BackendSQLite:
	case tenancyapp.BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres reservation backend requires TENANTCORE_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("reservation backend %q is not one of sqlite, postgres", c.ReservationBackend)
	}
	if c.MaxRunners <= 0 {
		return fmt.Errorf("max runners must be positive, got %d", c.MaxRunners)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.PollInterval <= 0 || c.StopTimeout <= 0 {
		return fmt.Errorf("poll interval and stop timeout must be positive")
	}
	return nil
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The tenancy health gRPC server port")
	fs.StringVar(&cfg.EventsDBPath, "events-db-path", cfg.EventsDBPath, "The event log SQLite database path")
	fs.StringVar(&cfg.ProjectionsDBPath, "projections-db-path", cfg.ProjectionsDBPath, "The read model SQLite database path")
	fs.StringVar(&cfg.ReservationBackend, "reservation-backend", cfg.ReservationBackend, "Reservation store: sqlite or postgres")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "Postgres DSN for the reservation store")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Projection runner poll interval")
	fs.DurationVar(&cfg.StopTimeout, "stop-timeout", cfg.StopTimeout, "Projection runner graceful stop bound")
	fs.IntVar(&cfg.MaxRunners, "max-runners", cfg.MaxRunners, "Maximum number of projection runners")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Events read per projection batch")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the tenancy runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceTenancy, func(ctx context.Context) error {
		return tenancyapp.Run(ctx, tenancyapp.Config{
			Port:               cfg.Port,
			EventsDBPath:       cfg.EventsDBPath,
			ProjectionsDBPath:  cfg.ProjectionsDBPath,
			ReservationBackend: cfg.ReservationBackend,
			PostgresDSN:        cfg.PostgresDSN,
			PollInterval:       cfg.PollInterval,
			StopTimeout:        cfg.StopTimeout,
			MaxRunners:         cfg.MaxRunners,
			BatchSize:          cfg.BatchSize,
		})
	})
}
