package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/lk2023060901/chat-bridge/internal/conf"
	"github.com/lk2023060901/chat-bridge/internal/pkg/logger"
	"github.com/lk2023060901/chat-bridge/internal/proxy/registry"
	proxytypes "github.com/lk2023060901/chat-bridge/internal/proxy/types"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
	timeout    = flag.Duration("timeout", 30*time.Second, "request timeout")
)

func main() {
	flag.Parse()

	cfg, err := conf.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(&logger.Config{Level: "warn", Format: "console", Output: "console"})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	proxyCfg := &proxytypes.Config{
		BaseURL: cfg.Proxy.BaseURL,
		APIKey:  cfg.Proxy.APIKey,
		Model:   cfg.Proxy.Model,
		Timeout: *timeout,
	}
	if err := proxyCfg.Validate(); err != nil {
		log.Fatalf("invalid proxy config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	models, err := registry.New(cfg.Registry.TTL, zl).Models(ctx, proxyCfg)
	if err != nil {
		log.Fatalf("failed to list models: %v", err)
	}

	fmt.Printf("%d models served by %s\n\n", len(models), proxyCfg.BaseURL)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tOWNED BY\tACTIVE")
	for _, m := range models {
		active := ""
		if m.ID == cfg.Proxy.Model {
			active = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, m.OwnedBy, active)
	}
	w.Flush()
}
