package main

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"nextedit/logger"
	"nextedit/types"
)

type Config struct {
	ProviderURL         string  `json:"provider_url"`
	ProviderAPIKey      string  `json:"provider_api_key"`
	ProviderModel       string  `json:"provider_model"`
	FallbackModel       string  `json:"fallback_model"`
	PredictorModel      string  `json:"predictor_model"`
	ProviderTemperature float64 `json:"provider_temperature"`
	ProviderMaxTokens   int     `json:"provider_max_tokens"`
	CompressRequests    bool    `json:"compress_requests"`

	ResponseFormat     string `json:"response_format"`
	Aggressiveness     string `json:"aggressiveness"`
	LinesAbove         int    `json:"lines_above"`
	LinesBelow         int    `json:"lines_below"`
	MaxContextTokens   int    `json:"max_context_tokens"`
	TextChangeDebounce int    `json:"text_change_debounce"` // in milliseconds
	IdleEditDelay      int    `json:"idle_edit_delay"`      // in milliseconds
	CursorJump         string `json:"cursor_jump"`          // off, jump_only, jump_and_edit

	MetricsURL             string `json:"metrics_url"`
	DataDir                string `json:"data_dir"`
	LogLevel               string `json:"log_level"` // trace, debug, info, warn, error
	DebugImmediateShutdown bool   `json:"debug_immediate_shutdown"`
}

type ServerMode string

const (
	ModeDaemon ServerMode = "daemon"
	ModeClient ServerMode = "client"
)

// Options translates the external config into engine options.
func (c *Config) Options() *types.Options {
	opts := types.DefaultOptions()
	if c.ProviderModel != "" {
		opts.Model = c.ProviderModel
	}
	opts.FallbackModel = c.FallbackModel
	if c.ProviderMaxTokens > 0 {
		opts.MaxTokens = c.ProviderMaxTokens
	}
	opts.Temperature = c.ProviderTemperature
	if c.ResponseFormat != "" {
		opts.Format = types.ParseResponseFormat(c.ResponseFormat)
	}
	switch c.Aggressiveness {
	case "low":
		opts.Aggressiveness = types.AggressivenessLow
	case "high":
		opts.Aggressiveness = types.AggressivenessHigh
	case "", "medium":
		// default
	}
	if c.LinesAbove > 0 {
		opts.LinesAbove = c.LinesAbove
	}
	if c.LinesBelow > 0 {
		opts.LinesBelow = c.LinesBelow
	}
	if c.MaxContextTokens > 0 {
		opts.WindowTokenCap = c.MaxContextTokens
	}
	if c.TextChangeDebounce > 0 {
		opts.DebounceMs = c.TextChangeDebounce
	}
	if c.IdleEditDelay > 0 {
		opts.ArtificialDelayMs = c.IdleEditDelay
	}
	switch c.CursorJump {
	case "off":
		opts.CursorJump = types.CursorJumpOff
	case "jump_only":
		opts.CursorJump = types.CursorJumpOnly
	case "", "jump_and_edit":
		opts.CursorJump = types.CursorJumpOnlyWithEdit
	}
	return opts
}

// Setup logger to log to a file in the same directory as the executable.
// Caller must defer logger.Close()
func setupLogger(logLevel string) *logger.Logger {
	execPath, err := os.Executable()
	if err != nil {
		log.Fatalf("error getting executable path: %v", err)
	}
	logPath := filepath.Join(filepath.Dir(execPath), "nextedit.log")

	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening file: %v", err)
	}

	l := logger.Init(f, logger.ParseLevel(logLevel))
	log.SetOutput(l)
	return l
}

func getSocketPath() string {
	execPath, err := os.Executable()
	if err != nil {
		log.Fatalf("error getting executable path: %v", err)
	}
	return filepath.Join(filepath.Dir(execPath), "nextedit.sock")
}

func getPidPath() string {
	execPath, err := os.Executable()
	if err != nil {
		log.Fatalf("error getting executable path: %v", err)
	}
	return filepath.Join(filepath.Dir(execPath), "nextedit.pid")
}

func isDaemonRunning() (bool, int) {
	data, err := os.ReadFile(getPidPath())
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return false, 0
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}

	// On Unix, Signal(0) checks if process exists
	err = process.Signal(syscall.Signal(0))
	return err == nil, pid
}

func loadConfig() Config {
	var config Config
	if err := json.Unmarshal([]byte(os.Getenv("NEXTEDIT_CONFIG")), &config); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: %+v", config)
	return config
}

func runDaemon() {
	config := loadConfig()

	logLevel := config.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}

	l := setupLogger(logLevel)
	defer l.Close()

	daemon, err := NewDaemon(config)
	if err != nil {
		log.Fatalf("error creating daemon: %v", err)
	}

	if err := daemon.Start(); err != nil {
		log.Fatalf("error starting daemon: %v", err)
	}
}

func runClient() {
	if err := NewRelay().Run(); err != nil {
		log.Fatalf("error relaying to daemon: %v", err)
	}
}

func main() {
	var mode ServerMode = ModeClient

	if len(os.Args) > 1 && os.Args[1] == "--daemon" {
		mode = ModeDaemon
	}

	switch mode {
	case ModeDaemon:
		runDaemon()
	case ModeClient:
		runClient()
	}
}
