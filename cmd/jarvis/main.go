package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"

	"github.com/dotsetgreg/jarvis/pkg/agent"
	"github.com/dotsetgreg/jarvis/pkg/bus"
	"github.com/dotsetgreg/jarvis/pkg/channels"
	"github.com/dotsetgreg/jarvis/pkg/config"
	"github.com/dotsetgreg/jarvis/pkg/digest"
	"github.com/dotsetgreg/jarvis/pkg/httpapi"
	"github.com/dotsetgreg/jarvis/pkg/logger"
	"github.com/dotsetgreg/jarvis/pkg/memory"
	"github.com/dotsetgreg/jarvis/pkg/notify"
	"github.com/dotsetgreg/jarvis/pkg/providers"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
)

const appName = "jarvis"

func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func printVersion() {
	fmt.Printf("%s %s\n", appName, formatVersion())
	if buildTime != "" {
		fmt.Printf("  Build: %s\n", buildTime)
	}
	fmt.Printf("  Go: %s\n", runtime.Version())
}

func main() {
	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getConfigPath() string {
	if path := strings.TrimSpace(os.Getenv("JARVIS_CONFIG")); path != "" {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".jarvis", "config.json")
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(getConfigPath())
}

func runOnboard() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists at %s\n", configPath)
		fmt.Print("Overwrite? (y/n): ")
		reader := bufio.NewReader(os.Stdin)
		response, readErr := reader.ReadString('\n')
		if readErr != nil {
			fmt.Println("Aborted.")
			return nil
		}
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(configPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("%s is ready!\n", appName)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Add your API key to", configPath)
	fmt.Println("  2. Add bot credentials under channels.telegram / channels.discord / channels.sms")
	fmt.Println("  3. Chat locally: jarvis chat")
	fmt.Println("  4. Run the bot: jarvis gateway")
	fmt.Println("  5. Check readiness: jarvis status")
	return nil
}

func buildMemory(ctx context.Context, cfg *config.Config) (memory.Store, *memory.Manager, error) {
	store, err := memory.NewStore(ctx, cfg.Memory.DatabaseURL, cfg.StorePath(), cfg.Memory.FactLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("open memory store: %w", err)
	}
	manager := memory.NewManager(store, memory.ManagerConfig{HistoryWindow: cfg.Memory.HistoryWindow})
	return store, manager, nil
}

func runGateway(debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("Debug mode enabled")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := providers.ValidateProviderConfig(cfg); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, manager, err := buildMemory(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	provider, err := providers.CreateProvider(cfg)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}

	msgBus := bus.NewMessageBus()

	var memNotifier memory.Notifier
	if n := notify.NewNotifier(cfg.Notify, msgBus); n != nil {
		memNotifier = n
	}
	extractor := memory.NewExtractor(provider, manager, memNotifier)
	loop := agent.NewLoop(cfg, msgBus, provider, manager, extractor)

	channelManager, err := channels.NewManager(cfg, msgBus)
	if err != nil {
		return fmt.Errorf("create channel manager: %w", err)
	}

	var digestSvc *digest.Service
	if cfg.Digest.Enabled {
		if memNotifier == nil {
			fmt.Println("Digest enabled but notify target is not configured; skipping")
		} else {
			digestSvc, err = digest.NewService(cfg.Digest.Cron, manager, memNotifier)
			if err != nil {
				return fmt.Errorf("configure digest: %w", err)
			}
		}
	}

	server := httpapi.NewServer(cfg, loop, manager)

	if err := channelManager.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("gateway", "HTTP server error", map[string]interface{}{"error": err.Error()})
		}
	}()

	go func() { _ = loop.Run(ctx) }()

	if digestSvc != nil {
		digestSvc.Start()
	}

	fmt.Printf("Provider: %s (%s)\n", providers.ActiveProviderName(cfg), cfg.Agent.Model)
	fmt.Printf("Channels enabled: %s\n", strings.Join(channelManager.GetEnabledChannels(), ", "))
	fmt.Printf("Gateway started on %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	cancel()
	if digestSvc != nil {
		digestSvc.Stop()
	}
	loop.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WarnCF("gateway", "HTTP shutdown error", map[string]interface{}{"error": err.Error()})
	}
	_ = channelManager.StopAll(shutdownCtx)
	msgBus.Close()
	fmt.Println("Gateway stopped")
	return nil
}

func runChat(debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := providers.ValidateProviderConfig(cfg); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	ctx := context.Background()
	store, manager, err := buildMemory(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	provider, err := providers.CreateProvider(cfg)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}

	msgBus := bus.NewMessageBus()
	defer msgBus.Close()
	extractor := memory.NewExtractor(provider, manager, nil)
	loop := agent.NewLoop(cfg, msgBus, provider, manager, extractor)

	fmt.Printf("%s Interactive mode (Ctrl+C to exit)\n\n", appName)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "You: ",
		HistoryFile:     filepath.Join(os.TempDir(), ".jarvis_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return nil
		}

		reply, err := loop.Process(ctx, agent.Request{
			Platform: memory.Platform("cli"),
			SenderID: "local",
			ChatID:   "local",
			Content:  input,
		})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		fmt.Printf("\n%s: %s\n\n", appName, reply)
	}
}

func runStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	configPath := getConfigPath()

	fmt.Printf("%s Status\n", appName)
	fmt.Printf("Version: %s\n\n", formatVersion())

	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("Config:", configPath, "found")
	} else {
		fmt.Println("Config:", configPath, "missing")
	}

	providerName, configured, mode, err := providers.ProviderCredentialStatus(cfg)
	if err != nil {
		fmt.Println("Provider:", err)
	} else {
		state := "not set"
		if configured {
			state = "configured (" + mode + ")"
		}
		fmt.Printf("Provider: %s %s\n", providerName, state)
	}
	fmt.Printf("Model: %s\n", cfg.Agent.Model)

	if cfg.Memory.DatabaseURL != "" {
		fmt.Println("Memory: postgres")
	} else {
		fmt.Println("Memory:", cfg.StorePath())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, manager, err := buildMemory(ctx, cfg)
	if err != nil {
		fmt.Println("Store:", err)
		return nil
	}
	defer func() { _ = store.Close() }()

	users, turns, facts := manager.Counts(ctx)
	fmt.Printf("Users: %d  Turns: %d  Facts: %d\n", users, turns, facts)

	var enabled []string
	if strings.TrimSpace(cfg.Channels.Telegram.Token) != "" {
		enabled = append(enabled, "telegram")
	}
	if strings.TrimSpace(cfg.Channels.Discord.Token) != "" {
		enabled = append(enabled, "discord")
	}
	if strings.TrimSpace(cfg.Channels.SMS.AccountSID) != "" {
		enabled = append(enabled, "sms")
	}
	if len(enabled) == 0 {
		fmt.Println("Channels: none configured")
	} else {
		fmt.Println("Channels:", strings.Join(enabled, ", "))
	}
	return nil
}

func runPurge(userID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, manager, err := buildMemory(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := manager.Purge(ctx, userID); err != nil {
		return fmt.Errorf("purge %s: %w", userID, err)
	}
	fmt.Printf("Purged all memory for %s\n", userID)
	return nil
}
