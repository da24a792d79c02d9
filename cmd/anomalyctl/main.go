package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"weather-anomaly-server/internal/config"
	"weather-anomaly-server/internal/db"
	"weather-anomaly-server/internal/logging"
	"weather-anomaly-server/internal/migrate"
	"weather-anomaly-server/internal/modules/anomaly/detector"
	"weather-anomaly-server/internal/modules/anomaly/repository"
	"weather-anomaly-server/internal/modules/anomaly/sampledata"
	"weather-anomaly-server/internal/modules/anomaly/types"
)

const (
	appName = "anomalyctl"
	version = "dev"
)

const usage = `usage: %s <command> [args]
  migrate                      apply pending audit-log migrations
  runs [limit]                 list recent detection runs as JSON
  detect <file> [threshold]    score a JSON observation file offline
`

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(os.Stderr, cfg, version, appName))

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, os.Args[0])
		os.Exit(2)
	}

	ctx := context.Background()
	if err := run(ctx, cfg, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "migrate":
		return runMigrate(ctx, cfg, out)
	case "runs":
		return runList(ctx, cfg, args, out)
	case "detect":
		return runDetect(cfg, args, out)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runMigrate(ctx context.Context, cfg config.Config, out io.Writer) error {
	conn, err := db.Open(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			slog.Error("db close", "err", closeErr)
		}
	}()

	if err := migrate.Run(ctx, conn); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, "migrations applied")
	return err
}

func runList(ctx context.Context, cfg config.Config, args []string, out io.Writer) error {
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid limit %q", args[0])
		}
		limit = n
	}

	conn, err := db.Open(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			slog.Error("db close", "err", closeErr)
		}
	}()

	runs, err := repository.NewRepository(conn).ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	return writeJSON(out, runs)
}

func runDetect(cfg config.Config, args []string, out io.Writer) error {
	if len(args) < 1 {
		return errors.New("missing observation file")
	}
	threshold := types.DefaultThreshold
	if len(args) > 1 {
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil || v < types.MinThreshold || v > types.MaxThreshold {
			return fmt.Errorf("invalid threshold %q (allowed: %.1f-%.1f)", args[1], types.MinThreshold, types.MaxThreshold)
		}
		threshold = v
	}

	ds, err := sampledata.Load(args[0])
	if err != nil {
		return err
	}
	obs := ds.Observations()
	if len(obs) < types.MinObservations {
		return fmt.Errorf("%d observations, need at least %d", len(obs), types.MinObservations)
	}

	anomalies := detector.New(cfg.Location).Detect(obs, threshold)
	slog.Info("offline detection done", "observations", len(obs), "anomalies", len(anomalies), "threshold", threshold)
	return writeJSON(out, anomalies)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
