package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plutus/pkg/agent"
	"plutus/pkg/channels"
	_ "plutus/pkg/channels/autoload" // registers web and telegram
	"plutus/pkg/config"
	"plutus/pkg/control"
	"plutus/pkg/gateway"
	"plutus/pkg/llm"
	_ "plutus/pkg/llm/autoload" // registers the engine providers
	"plutus/pkg/monitor"
	"plutus/pkg/provider"
	"plutus/pkg/relay"
	"plutus/pkg/store"
	"plutus/pkg/tools"
	"plutus/pkg/tools/cookie"
	"plutus/pkg/tools/lido"
	"plutus/pkg/tools/stakingrewards"
)

func main() {
	monitor.PrintBanner()

	// --- 0. Configuration ---
	cfg, sysCfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v\n", err)
	}
	secrets, err := config.LoadSecrets(".env")
	if err != nil {
		log.Fatalf("❌ Missing environment: %v\n", err)
	}
	monitor.SetupSlog(sysCfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	system := config.NewSystemHolder(sysCfg)

	// --- 1. Reasoning engine ---
	client, err := llm.NewFromConfig(cfg.LLM, sysCfg)
	if err != nil {
		log.Fatalf("❌ Failed to init LLM client: %v\n", err)
	}

	// --- 2. Wallet providers and tools ---
	providers := provider.NewRegistry()

	toolReg := tools.NewRegistry()
	for _, t := range []tools.Tool{
		stakingrewards.New(cfg.Tools.StakingRewardsURL, secrets.StakingRewardsAPIKey),
		cookie.New(cfg.Tools.CookieURL, secrets.CookieAPIKey),
		lido.New(cfg.Tools.Lido, providers, lido.WithProviderWait(func() time.Duration {
			return time.Duration(system.Get().ProviderWaitMs) * time.Millisecond
		})),
	} {
		if err := toolReg.Register(t); err != nil {
			log.Fatalf("❌ Failed to register tool %s: %v\n", t.Name(), err)
		}
	}

	// --- 3. Records ---
	records, err := store.Open(ctx, cfg.Store, secrets.Redis)
	if err != nil {
		log.Fatalf("❌ Failed to open record store: %v\n", err)
	}
	if records == nil {
		slog.Info("User records disabled")
	}

	// --- 4. Relay ---
	rel, err := relay.New(ctx, func(connID string) relay.Turner {
		return agent.NewSession(connID, client, toolReg, system, cfg.SystemPrompt)
	}, system)
	if err != nil {
		log.Fatalf("❌ Failed to init relay: %v\n", err)
	}

	system.Watch(ctx, "system.json", func(next *config.SystemConfig) {
		monitor.SetLevel(next.LogLevel)
		if err := rel.SetCardOrder(next.CardOrder); err != nil {
			slog.Warn("Card order not applied", "error", err)
		}
	})

	// --- 5. Gateway ---
	deps := channels.Deps{System: system, Secrets: secrets}
	gw, err := gateway.NewGatewayBuilder().
		WithMonitor(monitor.NewCLIMonitor(os.Stdout)).
		WithRelay(rel).
		WithRoutes(control.New(providers, records).Routes()...).
		WithChannel(channels.LoadFromConfig(cfg.Channels, deps)...).
		Build(ctx)
	if err != nil {
		log.Fatalf("Failed to build gateway: %v\n", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	slog.Info("Received shutdown signal. Stopping services...")

	cancel()
	gw.StopAll()
	if records != nil {
		if err := records.Close(); err != nil {
			slog.Warn("Failed to close record store", "error", err)
		}
	}
	slog.Info("Bye!")
}
