package main

import (
	"flag"
	"fmt"
	"os"

	"trade_engine/internal/bootstrap"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/engine.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("engine version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}

	app.Logger.Info("Starting trade engine",
		"version", version,
		"pairs", len(app.Cfg.Engine.Pairs),
		"oracle", app.Cfg.Oracle.Source,
	)

	runners := []bootstrap.Runner{app.Scanner}
	if app.Strategy != nil {
		runners = append(runners, app.Strategy)
	}
	if err := app.Run(runners...); err != nil {
		os.Exit(1)
	}
}
