// Package main is the entry point for the polydrum API server
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/james-see/polydrum/pkg/api"
	"github.com/james-see/polydrum/pkg/config"
	"github.com/james-see/polydrum/pkg/render"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "Server port (default from config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	logger := cfg.NewLogger(os.Stderr)

	fmt.Printf("Starting polydrum API server on port %d...\n", cfg.Server.Port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", cfg.Server.Port)

	renderer := render.New(cfg.RenderOptions(logger), nil)
	if err := api.NewServer(renderer, cfg.KitValue(), logger).Run(cfg.Server.Port); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
