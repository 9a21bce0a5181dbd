package main

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-review/internal/review"
	"github.com/zombor/receipt-review/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A .env file is optional; real environment variables take precedence
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	fs := ff.NewFlagSet("receipt-review")
	var (
		port         = fs.IntLong("port", 8080, "HTTP server port")
		dbPath       = fs.StringLong("db", "receipt-review.db", "Database file path")
		storagePath  = fs.StringLong("storage", "./captures", "Directory for captured receipt images")
		exportPath   = fs.StringLong("exports", "./exports", "Directory exported results are written to")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (stored in settings on startup)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.0-flash", "Google Gemini model name")
		claudeKey    = fs.StringLong("claude-key", "", "Anthropic Claude API key (stored in settings on startup)")
		claudeURL    = fs.StringLong("claude-url", "https://api.anthropic.com", "Anthropic API base URL")
		claudeModel  = fs.StringLong("claude-model", "claude-3-7-sonnet-20250219", "Claude model name")
		openaiKey    = fs.StringLong("openai-key", "", "OpenAI API key for ChatGPT (stored in settings on startup)")
		openaiURL    = fs.StringLong("openai-url", "https://api.openai.com", "OpenAI API base URL")
		chatgptModel = fs.StringLong("chatgpt-model", "gpt-4o", "ChatGPT model name")
		authUser     = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass     = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_REVIEW"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	db, err := review.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize storage
	slog.Info("Initializing storage...", "captures", *storagePath, "exports", *exportPath)
	captures, err := review.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize capture storage", "error", err)
		os.Exit(1)
	}
	exports, err := review.NewLocalStorage(*exportPath)
	if err != nil {
		slog.Error("Failed to initialize export storage", "error", err)
		os.Exit(1)
	}

	// Every vendor is available; the API key is picked per request from settings
	recognizers := []scanning.Recognizer{
		scanning.NewGemini(*geminiModel),
		scanning.NewClaude(*claudeURL, *claudeModel),
		scanning.NewChatGPT(*openaiURL, *chatgptModel),
	}
	for _, r := range recognizers {
		slog.Info("Recognizer available", "vendor", r.Vendor().DisplayName())
	}

	service := review.NewService(db, captures, exports, recognizers...)
	if err := service.SeedAPIKeys(map[scanning.Vendor]string{
		scanning.VendorGemini:  *geminiKey,
		scanning.VendorClaude:  *claudeKey,
		scanning.VendorChatGPT: *openaiKey,
	}); err != nil {
		slog.Error("Failed to store API keys", "error", err)
		os.Exit(1)
	}

	// Initialize server
	basicAuth := review.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := review.NewServer(service, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
