package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sestoltzf/strava-integration-at/internal/auth"
	"github.com/sestoltzf/strava-integration-at/internal/config"
	"github.com/sestoltzf/strava-integration-at/internal/events"
	"github.com/sestoltzf/strava-integration-at/internal/export"
	"github.com/sestoltzf/strava-integration-at/internal/logging"
	"github.com/sestoltzf/strava-integration-at/internal/service"
	"github.com/sestoltzf/strava-integration-at/internal/store"
	"github.com/sestoltzf/strava-integration-at/internal/store/airtable"
	"github.com/sestoltzf/strava-integration-at/internal/store/postgres"
	"github.com/sestoltzf/strava-integration-at/internal/strava"
	httptransport "github.com/sestoltzf/strava-integration-at/internal/transport/http"
)

const usage = `usage: strava-sync [-config file] [command]

commands:
  serve              run the HTTP service (default)
  refresh            run one scheduled refresh and print the summary
  export -o FILE     write athletes and activities to an XLSX workbook
`

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional config file (yaml, json or toml)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}
	defer st.Close()

	command := flag.Arg(0)
	if command == "export" {
		return runExport(ctx, st, flag.Args()[1:])
	}

	publisher := newPublisher(cfg)
	defer publisher.Close()

	httpClient := &http.Client{Timeout: cfg.HTTP.Timeout}
	syncSvc := service.NewSyncService(
		auth.NewClient(auth.Config{
			ClientID:     cfg.Strava.ClientID,
			ClientSecret: cfg.Strava.ClientSecret,
			RedirectURL:  cfg.Strava.RedirectURL,
			Scope:        cfg.Strava.Scope,
			StateSecret:  cfg.Strava.StateSecret,
		}, httpClient),
		strava.NewClient(httpClient),
		st,
		publisher,
		logger,
		service.Options{ActivityPageSize: cfg.Strava.ActivityPageSize},
	)

	switch command {
	case "", "serve":
		return serve(ctx, cfg, syncSvc, logger)
	case "refresh":
		result, err := syncSvc.ScheduledRefresh(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		return postgres.Open(ctx, cfg.Store.PostgresURL)
	case config.BackendAirtable:
		return airtable.New(airtable.Config{
			URL:              cfg.Store.AirtableURL,
			Token:            cfg.Store.AirtableToken,
			BaseID:           cfg.Store.AirtableBaseID,
			CredentialsTable: cfg.Store.AirtableCredentialsTable,
			ActivitiesTable:  cfg.Store.AirtableActivitiesTable,
			Columns:          airtable.DefaultColumns(),
		}, &http.Client{Timeout: cfg.HTTP.Timeout})
	default:
		return store.Open(cfg.Store.SQLitePath)
	}
}

func newPublisher(cfg *config.Config) events.Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.Nop{}
	}
	return events.NewKafkaPublisher(events.NewKafkaProducer(cfg.Kafka.Brokers), cfg.Kafka.Topic)
}

func serve(ctx context.Context, cfg *config.Config, pipeline httptransport.Pipeline, logger logging.Logger) error {
	router := httptransport.NewRouter(httptransport.RouterConfig{
		LandingURL:      cfg.HTTP.LandingURL,
		SchedulerHeader: cfg.Scheduler.Header,
		SchedulerValue:  cfg.Scheduler.Value,
		AllowedOrigins:  cfg.HTTP.AllowedOrigins,
	}, pipeline, logger)

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTP.Address), router)

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", "address", cfg.HTTP.Address, "store", cfg.Store.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger.Info(shutdownCtx, "shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func runExport(ctx context.Context, st store.Store, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fs.String("o", "strava-export.xlsx", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", *out, err)
	}
	if err := export.WriteWorkbook(ctx, st, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Printf("Exported to %s\n", *out)
	return nil
}
