package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/classbook/internal/httpserver"
	"github.com/MarkoPoloResearchLab/classbook/internal/notify"
	"github.com/MarkoPoloResearchLab/classbook/internal/oplog"
	"github.com/MarkoPoloResearchLab/classbook/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/classbook/pkg/booking"
	"github.com/MarkoPoloResearchLab/classbook/pkg/memlock"
	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagDatabaseURL      = "database-url"
	flagListenAddr       = "listen-addr"
	flagAMQPURL          = "amqp-url"
	flagSigningKey       = "auth-signing-key"
	flagIssuer           = "auth-issuer"
	flagAllowedOrigins   = "allowed-origins"
	flagSweepPeriod      = "sweep-period"
	configKeyDatabaseURL = "database_url"
	configKeyListenAddr  = "listen_addr"
	configKeyAMQPURL     = "amqp_url"
	configKeySigningKey  = "auth_signing_key"
	configKeyIssuer      = "auth_issuer"
	configKeyOrigins     = "allowed_origins"
	configKeySweepPeriod = "sweep_period"
	defaultDatabaseURL   = "sqlite:///tmp/classbook.db"
	defaultListenAddr    = ":8080"
	defaultSweepPeriod   = 15 * time.Minute
	eventsExchange       = "classbook.events"
)

type runtimeConfig struct {
	DatabaseURL    string
	ListenAddr     string
	AMQPURL        string
	SigningKey     string
	Issuer         string
	AllowedOrigins string
	SweepPeriod    time.Duration
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "classbookd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "classbookd",
		Short:         "Class booking HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagAMQPURL, "", "RabbitMQ URL for booking events (optional)")
	cmd.Flags().String(flagSigningKey, "", "HS256 signing key for bearer tokens")
	cmd.Flags().String(flagIssuer, "", "expected token issuer")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated CORS origins")
	cmd.Flags().Duration(flagSweepPeriod, defaultSweepPeriod, "waitlist refund sweep period")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyDatabaseURL: "DATABASE_URL",
		configKeyListenAddr:  "HTTP_LISTEN_ADDR",
		configKeyAMQPURL:     "AMQP_URL",
		configKeySigningKey:  "AUTH_SIGNING_KEY",
		configKeyIssuer:      "AUTH_ISSUER",
		configKeyOrigins:     "ALLOWED_ORIGINS",
		configKeySweepPeriod: "SWEEP_PERIOD",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}
	flags := map[string]string{
		configKeyDatabaseURL: flagDatabaseURL,
		configKeyListenAddr:  flagListenAddr,
		configKeyAMQPURL:     flagAMQPURL,
		configKeySigningKey:  flagSigningKey,
		configKeyIssuer:      flagIssuer,
		configKeyOrigins:     flagAllowedOrigins,
		configKeySweepPeriod: flagSweepPeriod,
	}
	for key, flag := range flags {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	cfg.AMQPURL = viper.GetString(configKeyAMQPURL)
	cfg.SigningKey = viper.GetString(configKeySigningKey)
	cfg.Issuer = viper.GetString(configKeyIssuer)
	cfg.AllowedOrigins = viper.GetString(configKeyOrigins)
	cfg.SweepPeriod = viper.GetDuration(configKeySweepPeriod)
	if cfg.SweepPeriod <= 0 {
		cfg.SweepPeriod = defaultSweepPeriod
	}
	if cfg.SigningKey == "" {
		return fmt.Errorf("auth signing key is required")
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	if err := prepareSchema(gormDB, driver); err != nil {
		return err
	}

	store := gormstore.New(gormDB)
	clock := func() time.Time { return time.Now().UTC() }

	// A sqlite file serves exactly one process, so the in-process lock is
	// enough; postgres deployments share lock rows across replicas.
	var locks booking.ResourceLock
	if driver == "postgres" {
		locks = gormstore.NewLockStore(gormDB, clock)
	} else {
		locks = memlock.New()
	}

	var notifier booking.Notifier = notify.Noop{}
	if cfg.AMQPURL != "" {
		publisher, err := notify.NewPublisher(cfg.AMQPURL, eventsExchange)
		if err != nil {
			return fmt.Errorf("notifier init: %w", err)
		}
		defer func() { _ = publisher.Close() }()
		notifier = publisher
	}

	operationLogger := oplog.NewAuditSink(gormDB, oplog.NewZapLogger(logger))

	service, err := booking.NewService(store, locks, clock,
		booking.WithOperationLogger(operationLogger),
		booking.WithNotifier(notifier),
		booking.WithPaymentCharger(booking.MockCharger{}),
		booking.WithSweepPeriod(cfg.SweepPeriod),
	)
	if err != nil {
		return fmt.Errorf("booking service init: %w", err)
	}

	go service.RunSweepLoop(ctx)

	return httpserver.Run(ctx, httpserver.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: httpserver.ParseAllowedOrigins(cfg.AllowedOrigins),
		SigningKey:     cfg.SigningKey,
		Issuer:         cfg.Issuer,
	}, service, logger)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	cfg := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), cfg)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "classbook.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func prepareSchema(db *gorm.DB, driver string) error {
	if driver != "sqlite" {
		return nil
	}
	if err := db.AutoMigrate(gormstore.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
