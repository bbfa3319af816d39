package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	applog "fintrack/internal/log"
	"fintrack/internal/ports"
	"fintrack/internal/services"
)

var errAMQPDisabled = errors.New("AMQP_URL is not configured")

// environment holds what every subcommand needs, opened lazily so migrate
// can run before the store is usable.
type environment struct {
	cfg     *config.Config
	logger  *applog.Logger
	backend *cli.Backend
	client  *amqp.Client
	now     func() time.Time
}

func (e *environment) load() error {
	cli.LoadEnvFile()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg
	e.logger = cli.SetupLogger(cfg, "ctl")
	if e.now == nil {
		e.now = time.Now
	}
	return nil
}

func (e *environment) store() (ports.LedgerStore, error) {
	if e.backend == nil {
		backend, err := cli.InitStore(e.cfg)
		if err != nil {
			return nil, err
		}
		e.backend = backend
	}
	return e.backend.Store, nil
}

func (e *environment) amqpClient() (*amqp.Client, error) {
	if e.client == nil {
		if !e.cfg.AMQPEnabled() {
			return nil, errAMQPDisabled
		}
		e.client = cli.InitAMQP(e.logger, e.cfg)
		if e.client == nil {
			return nil, fmt.Errorf("connect to %s", e.cfg.AMQPExchange)
		}
	}
	return e.client, nil
}

// materializer builds a materializer that publishes notifications when a
// broker is configured. A broker that cannot be reached is not fatal here.
func (e *environment) materializer(cmd *cobra.Command) (*services.RecurringMaterializer, error) {
	store, err := e.store()
	if err != nil {
		return nil, err
	}
	exporter, err := cli.InitExporter(cmd.Context(), e.logger, e.cfg)
	if err != nil {
		return nil, err
	}
	opts := []services.MaterializerOption{
		services.WithExporter(exporter),
		services.WithClock(e.now),
	}
	if client, err := e.amqpClient(); err == nil {
		opts = append(opts, services.WithPublisher(client))
	}
	return services.NewRecurringMaterializer(store, opts...), nil
}

func (e *environment) close() error {
	var errs []error
	if e.client != nil {
		errs = append(errs, e.client.Close())
		e.client = nil
	}
	if e.backend != nil {
		errs = append(errs, e.backend.Close())
		e.backend = nil
	}
	return errors.Join(errs...)
}

// parseAt resolves the --at flag. Empty means now; a bare date is midnight
// in now's location.
func parseAt(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, value, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q: expected YYYY-MM-DD or RFC3339", value)
	}
	return t, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
