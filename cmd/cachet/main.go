// ABOUTME: Entry point for the cachet caching proxy daemon
// ABOUTME: Dispatches serve, health, purge and version subcommands

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/taciturnaxolotl/cachet/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                    _          _
   ___ __ _  ___| |__   ___| |_
  / __/ _' |/ __| '_ \ / _ \ __|
 | (_| (_| | (__| | | |  __/ |_
  \___\__,_|\___|_| |_|\___|\__|
`

// getConfigPath returns the path to the cachet config file.
// Priority: CACHET_CONFIG env var > XDG_CONFIG_HOME/cachet/config.yaml > ~/.config/cachet/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CACHET_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "cachet", "config.yaml")
}

func main() {
	// A local .env is optional; absence is not an error.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: cachet <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the cache server")
		fmt.Println("  health    Check server health")
		fmt.Println("  purge     Drop all cached users and emojis")
		fmt.Println("  version   Print the build version")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			color.Red("error: %v", err)
			os.Exit(1)
		}
	case "health":
		if err := runHealth(); err != nil {
			color.Red("unhealthy: %v", err)
			os.Exit(1)
		}
		color.Green("ok")
	case "purge":
		if err := runPurge(); err != nil {
			color.Red("error: %v", err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version)
	default:
		color.Red("unknown command: %s", os.Args[1])
		os.Exit(1)
	}
}

// loadConfig reads the config file from the resolved path.
func loadConfig() (*config.Config, error) {
	path := getConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}
	return cfg, nil
}

// setupLogging configures the process-wide slog default from config.
func setupLogging(cfg config.LoggingConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// serverBaseURL derives a local URL from the configured listen address.
func serverBaseURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func runHealth() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(serverBaseURL(cfg.Server.HTTPAddr) + "/health")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func runPurge() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(serverBaseURL(cfg.Server.HTTPAddr)+"/purge", "application/json", nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Users  int64 `json:"users"`
		Emojis int64 `json:"emojis"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return err
	}
	color.Green("purged %d users, %d emojis", result.Users, result.Emojis)
	return nil
}
