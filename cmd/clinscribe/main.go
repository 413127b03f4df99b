// clinscribe server — the AI-orchestration core of the clinical
// documentation assistant: meaningful-change gating, prompt construction,
// the compose pipeline, and per-encounter delta streams.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/clinscribe/clinscribe/pkg/api"
	"github.com/clinscribe/clinscribe/pkg/compose"
	"github.com/clinscribe/clinscribe/pkg/config"
	"github.com/clinscribe/clinscribe/pkg/embedding"
	embeddingopenai "github.com/clinscribe/clinscribe/pkg/embedding/openai"
	"github.com/clinscribe/clinscribe/pkg/gate"
	llmopenai "github.com/clinscribe/clinscribe/pkg/llm/openai"
	"github.com/clinscribe/clinscribe/pkg/prompt"
	"github.com/clinscribe/clinscribe/pkg/scrub"
	"github.com/clinscribe/clinscribe/pkg/stream"
	"github.com/clinscribe/clinscribe/pkg/version"
)

// Stream channels served over /ws/:channel.
var streamChannels = []string{"codes", "compliance", "compose"}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	httpPort := getEnv("HTTP_PORT", cfg.HTTP.Port)

	slog.Info("Starting clinscribe",
		"version", version.Full(),
		"http_port", httpPort,
		"config_dir", *configDir)

	// 2. PHI scrubber and prompt builder
	scrubber := scrub.New(scrub.Policy(cfg.Scrub.Policy))
	prompts := prompt.NewBuilder(cfg.Prompt.SchemaVersion, cfg.Prompt.PolicyVersion,
		cfg.Prompt.StableCacheSize, scrubber, nil)

	// 3. Gate with a lazily constructed embedding client; the API key is
	// only required once the first evaluation needs a semantic distance.
	apiKey := os.Getenv("OPENAI_API_KEY")
	g := gate.New(cfg.Gate, cfg.Models.ByIntent, func() (embedding.Client, error) {
		return embeddingopenai.New(apiKey, cfg.Gate.EmbeddingModel)
	})

	// 4. Stream hubs, one per channel
	hubs := make(map[string]*stream.Hub, len(streamChannels))
	for _, channel := range streamChannels {
		hubs[channel] = stream.NewHub(channel, cfg.Stream.MinInterval)
	}

	// 5. Compose pipeline and manager
	llmClient, err := llmopenai.New(apiKey)
	if err != nil {
		slog.Error("Failed to create LLM client", "error", err)
		os.Exit(1)
	}
	pipeline := compose.NewPipeline(llmClient, nil, nil, compose.RuleValidator{},
		cfg.Compose.BeautifyModel, cfg.Compose.Temperature)
	composeMgr := compose.NewManager(pipeline, hubs["compose"])
	slog.Info("Services initialized", "stream_channels", streamChannels)

	// 6. HTTP server (non-blocking)
	httpServer := api.NewServer(cfg, g, prompts, composeMgr, hubs, nil)
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	slog.Info("clinscribe stopped")
}
