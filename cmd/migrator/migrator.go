package main

import (
	"flag"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/NordCoder/pingerus-adhoc/internal/obs"
	"github.com/NordCoder/pingerus-adhoc/migrations"
)

func main() {
	cmd := flag.String("cmd", "up", "goose command: up, down, status")
	flag.Parse()

	logger, err := obs.NewLogger(obs.LogConfig{Level: "info", App: "adhoc-migrator"})
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	dbURL := os.Getenv("DB_DSN")
	if dbURL == "" {
		logger.Fatal("DB_DSN is empty")
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		logger.Fatal("set dialect", zap.Error(err))
	}
	db, err := goose.OpenDBWithDriver("pgx", dbURL)
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	defer db.Close()

	switch *cmd {
	case "up":
		err = goose.Up(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "status":
		err = goose.Status(db, ".")
	default:
		logger.Fatal("unknown command", zap.String("cmd", *cmd))
	}
	if err != nil {
		logger.Fatal("migrate", zap.String("cmd", *cmd), zap.Error(err))
	}
	logger.Info("migrations done", zap.String("cmd", *cmd))
}
