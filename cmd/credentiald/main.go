package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"
	"github.com/tendant/simple-credential/pkg/bootstrap"
	"github.com/tendant/simple-credential/pkg/config"
	"github.com/tendant/simple-credential/pkg/db"
)

func main() {
	configPath := flag.String("config", "", "optional configuration file; environment variables take precedence")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed loading configuration", "err", err)
		os.Exit(-1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbConfig := cfg.Database.ToDbConfig()
	pool, err := dbutils.NewDbPool(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
		os.Exit(-1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		slog.Error("Failed applying migrations", "err", err)
		os.Exit(-1)
	}

	services, err := bootstrap.NewServices(cfg, bootstrap.PostgresRepositories(pool))
	if err != nil {
		slog.Error("Failed creating credential services", "err", err)
		os.Exit(-1)
	}
	services.Start(ctx)

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	services.Routes(server.R)

	tag, _ := services.Registry.Default()
	slog.Info("Starting credential service",
		"env", cfg.Environment(),
		"algorithm", tag,
		"identifier_field", services.Identities.IdentifierField(),
		"lockout_threshold", cfg.Lockout.Threshold,
	)
	server.Run()
}
