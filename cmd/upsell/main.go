package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/topup/upsell/internal/catalog"
	internalcli "github.com/topup/upsell/internal/cli"
	"github.com/topup/upsell/internal/config"
	"github.com/topup/upsell/internal/database"
	"github.com/topup/upsell/internal/handlers"
	"github.com/topup/upsell/internal/models"
	"github.com/topup/upsell/internal/repository"
	"github.com/topup/upsell/internal/services"
)

var version = "0.1.0"

// newLogger builds the application logger
func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openStorage returns the session repository for the configured driver and a
// cleanup function releasing it
func openStorage(cfg *config.StorageConfig, logger *zap.Logger) (services.SessionRepository, internalcli.Purger, func(), error) {
	switch cfg.Driver {
	case config.StorageDriverPostgres:
		if err := database.Connect(cfg.Postgres); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		logger.Info("connected to database", zap.String("dsn", cfg.Postgres.Redacted()))

		if err := database.RunMigrations(logger); err != nil {
			database.Close()
			return nil, nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		repo := repository.NewSessionRepository()
		return repo, repo, func() { database.Close() }, nil
	default:
		logger.Warn("using in-memory session storage; values are lost on restart")
		repo := repository.NewMemorySessionRepository()
		return repo, repo, func() {}, nil
	}
}

// buildServerDependencies creates all dependencies needed for the server
func buildServerDependencies(serverConfig config.ServerConfig, getenv func(string) string, logger *zap.Logger) (internalcli.ServerDependencies, func(), error) {
	var deps internalcli.ServerDependencies
	noop := func() {}

	deps.ServerConfig = serverConfig
	deps.Logger = logger

	checkoutConfig, err := config.LoadCheckoutConfig(getenv)
	if err != nil {
		return deps, noop, fmt.Errorf("missing required checkout configuration: %w", err)
	}

	storageConfig, err := config.LoadStorageConfig(getenv)
	if err != nil {
		return deps, noop, fmt.Errorf("invalid storage configuration: %w", err)
	}

	variants, err := catalog.Load(serverConfig.CatalogFile)
	if err != nil {
		return deps, noop, fmt.Errorf("failed to load offer catalog: %w", err)
	}

	repo, purger, cleanup, err := openStorage(storageConfig, logger)
	if err != nil {
		return deps, noop, err
	}
	deps.Purger = purger
	deps.Sessions = handlers.NewSessionCodec(serverConfig.SessionSecret, serverConfig.CookieSecure)

	// Create service layer
	checkoutClient := services.NewCheckoutClient(checkoutConfig, logger)
	sessionData := services.NewSessionDataService(logger)

	upsellHandler, err := handlers.NewUpsellHandler(serverConfig.TemplatesDir, handlers.UpsellDependencies{
		Variants: variants,
		Repo:     repo,
		Client:   checkoutClient,
		Checkout: checkoutConfig,
		Logger:   logger,
		BasePath: "/upsell",
	})
	if err != nil {
		cleanup()
		return deps, noop, fmt.Errorf("failed to create upsell handler: %w", err)
	}
	deps.UpsellHandler = upsellHandler.Routes()

	sessionHandler := handlers.NewSessionDataHandler(sessionData, repo, logger)
	deps.CheckoutDataHandler = http.HandlerFunc(sessionHandler.SaveCheckoutData)
	deps.PaymentSessionHandler = http.HandlerFunc(sessionHandler.PaymentSession)

	logger.Info("upsell variants loaded", zap.Strings("slugs", variants.Slugs()))
	return deps, cleanup, nil
}

// ServeCommand returns the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the upsell web server",
		Action: func(c *cli.Context) error {
			serverConfig, err := config.LoadServerConfig(os.Getenv)
			if err != nil {
				return fmt.Errorf("invalid server configuration: %w", err)
			}

			logger, err := newLogger(serverConfig.LogDev)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			defer logger.Sync()

			deps, cleanup, err := buildServerDependencies(serverConfig, os.Getenv, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			return internalcli.RunServe(deps)
		},
	}
}

// MigrateCommand returns the migrate command
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the session storage tables",
		Action: func(c *cli.Context) error {
			logger, err := newLogger(true)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			defer logger.Sync()

			pgConfig, err := config.LoadPostgresConfig(os.Getenv)
			if err != nil {
				return fmt.Errorf("missing required database configuration: %w", err)
			}
			if err := database.Connect(pgConfig); err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer database.Close()

			return database.RunMigrations(logger)
		},
	}
}

// CatalogsCommand returns the catalogs command
func CatalogsCommand() *cli.Command {
	return &cli.Command{
		Name:  "catalogs",
		Usage: "Validate and list the upsell variants",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Usage:   "catalog YAML file (defaults to the built-in catalog)",
				EnvVars: []string{"CATALOG_FILE"},
			},
		},
		Action: func(c *cli.Context) error {
			variants, err := catalog.Load(c.String("file"))
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SLUG\tMODE\tITEMS\tCOUNTDOWN\tFULL PRICE")
			for _, slug := range variants.Slugs() {
				v, _ := variants.Get(slug)
				countdown := "-"
				if v.HasCountdown() {
					countdown = fmt.Sprintf("%ds", v.CountdownSeconds)
				}
				full := models.SumPrices(v.Catalog().Items())
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\tR$ %s\n", v.Slug, v.Mode, v.Catalog().Len(), countdown, models.FormatPrice(full))
			}
			return w.Flush()
		},
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	app := &cli.App{
		Name:    "upsell",
		Usage:   "Post-purchase upsell pages",
		Version: version,
		Commands: []*cli.Command{
			ServeCommand(),
			MigrateCommand(),
			CatalogsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
