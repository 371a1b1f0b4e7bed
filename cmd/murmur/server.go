package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/murmurhq/murmur/internal/api"
	"github.com/murmurhq/murmur/internal/config"
	"github.com/murmurhq/murmur/internal/dispatch"
	"github.com/murmurhq/murmur/internal/extract"
	"github.com/murmurhq/murmur/internal/ollama"
	"github.com/murmurhq/murmur/internal/pipeline"
	"github.com/murmurhq/murmur/internal/reconcile"
	"github.com/murmurhq/murmur/internal/search"
	"github.com/murmurhq/murmur/internal/storage"
	"github.com/murmurhq/murmur/internal/transcribe"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the murmur server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running murmur server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show murmur system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "murmur.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// envTokens supplies the calendar provider bearer token. A single local
// deployment shares one token across owners.
type envTokens struct{}

func (envTokens) Token(_ context.Context, _ int64) (string, error) {
	token := os.Getenv("MURMUR_CALENDAR_TOKEN")
	if token == "" {
		return "", fmt.Errorf("no calendar token, set MURMUR_CALENDAR_TOKEN")
	}
	return token, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "murmur version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if cfg.Server.AuthToken == "" {
		return fmt.Errorf("no API token configured, set MURMUR_AUTH_TOKEN")
	}

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("murmur is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("murmur is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check Ollama readiness: running, model present, warmed up.
	ollamaClient := ollama.New(cfg.Ollama.BaseURL)
	if err := ollama.EnsureReady(ctx, ollamaClient, cfg.Ollama.Model, os.Stderr); err != nil {
		return err
	}
	if cfg.Ollama.SearchModel != cfg.Ollama.Model {
		if err := ollama.EnsureReady(ctx, ollamaClient, cfg.Ollama.SearchModel, os.Stderr); err != nil {
			return err
		}
	}

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the note processing pipeline.
	transcriber := transcribe.New(cfg.Whisper.BaseURL)
	extractor := extract.NewExtractor(ollamaClient, cfg.Ollama.Model)
	engine := reconcile.NewEngine(store)
	searcher := search.NewSearcher(search.Config{
		APIKey:   cfg.Search.APIKey,
		EngineID: cfg.Search.EngineID,
	}, ollamaClient, cfg.Ollama.SearchModel)
	webhook := dispatch.NewWebhook(cfg.Webhook.EmailURL)

	var calendar *dispatch.Calendar
	var calClient pipeline.CalendarClient
	if cfg.Calendar.BaseURL != "" {
		calendar = dispatch.NewCalendar(cfg.Calendar.BaseURL, envTokens{})
		calClient = calendar
	}

	proc := pipeline.NewProcessor(store, transcriber, extractor, engine, searcher, webhook, calClient)
	worker := pipeline.NewWorker(store, proc, cfg.Pipeline.Workers, 500*time.Millisecond)
	go worker.Run(ctx)

	// Build HTTP handler and server.
	appHandler := api.NewAppHandler(api.AppDeps{
		Store:    store,
		Engine:   engine,
		Calendar: calendar,
		Token:    cfg.Server.AuthToken,
		DataDir:  cfg.Storage.DataDir,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	// Build and start the MCP server on its own port.
	mcpSrv := api.NewMCPServer(api.MCPDeps{Store: store})
	mcpAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort)
	mcpHTTP := server.NewStreamableHTTPServer(mcpSrv)
	go func() {
		slog.Info("MCP server listening", "addr", mcpAddr)
		if err := mcpHTTP.Start(mcpAddr); err != nil && err != http.ErrServerClosed {
			slog.Error("MCP server error", "error", err)
		}
	}()

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "murmur listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout. In-flight note jobs get to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mcpHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Warn("MCP server shutdown", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	worker.Wait()
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("murmur is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop murmur (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to murmur (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Check Ollama and Whisper backends.
	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}
	whisperResp, err := client.Get(cfg.Whisper.BaseURL + "/health")
	if err != nil {
		printStatus("Whisper", "not running")
	} else {
		whisperResp.Body.Close()
		printStatus("Whisper", "running at %s", cfg.Whisper.BaseURL)
	}

	printStatus("Extract model", "%s", cfg.Ollama.Model)
	printStatus("Search model", "%s", cfg.Ollama.SearchModel)
	if cfg.Search.APIKey == "" || cfg.Search.EngineID == "" {
		printStatus("Web search", "not configured")
	} else {
		printStatus("Web search", "configured")
	}

	// Show pending item count if the server is running.
	if cfg.Server.AuthToken != "" && resp != nil && resp.StatusCode == 200 {
		itemsResp, err := apiGet(client, serverURL+"/items?status=Pending", cfg.Server.AuthToken)
		if err == nil {
			var items []json.RawMessage
			if json.NewDecoder(itemsResp.Body).Decode(&items) == nil {
				printStatus("Pending items", "%d", len(items))
			}
			itemsResp.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
