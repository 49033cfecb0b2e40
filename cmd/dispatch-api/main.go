package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/dispatch-prep/internal/dispatch"
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

	// A missing .env is fine, real deployments use the environment
	_ = godotenv.Load()

	fs := ff.NewFlagSet("dispatch-api")
	var (
		port         = fs.IntLong("port", 8080, "HTTP server port")
		dbPath       = fs.StringLong("db", "dispatch.db", "Database file path")
		archivePath  = fs.StringLong("archive", "./archive", "Directory for closed order snapshots")
		seedPath     = fs.StringLong("seed", "", "JSON file with orders to import at startup (optional)")
		authUser     = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authHash     = fs.StringLong("auth-hash", "", "Bcrypt hash of the basic auth password")
		hashPassword = fs.StringLong("hash-password", "", "Print the bcrypt hash of a password and exit")
		suppliedOnly = fs.BoolLong("supplied-only", "Refuse scans of lines with no supplied quantity instead of using the ordered one")
		logLevel     = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("DISPATCH_API"),
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

	if *hashPassword != "" {
		hash, err := dispatch.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		os.Exit(0)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if (*authUser == "") != (*authHash == "") {
		slog.Error("Basic auth needs both --auth-user and --auth-hash")
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	db, err := dispatch.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize archive
	archive, err := dispatch.NewLocalArchive(*archivePath)
	if err != nil {
		slog.Error("Failed to initialize archive", "error", err)
		os.Exit(1)
	}

	service := dispatch.NewService(db, archive)
	if *suppliedOnly {
		service.SetTargetPolicy(dispatch.TargetSuppliedOnly)
	}

	if *seedPath != "" {
		if err := seed(service, *seedPath); err != nil {
			slog.Error("Failed to import seed orders", "path", *seedPath, "error", err)
			os.Exit(1)
		}
	}

	basicAuth := dispatch.BasicAuth{
		Username:     *authUser,
		PasswordHash: *authHash,
	}
	server := dispatch.NewServer(service, basicAuth)
	if basicAuth.Enabled() {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", *port)
	if err := server.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutting down...")
}

// seed imports every order in a JSON array file
func seed(service *dispatch.Service, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}
	var orders []*dispatch.Order
	if err := json.Unmarshal(data, &orders); err != nil {
		return fmt.Errorf("decoding seed file: %w", err)
	}
	for _, order := range orders {
		if err := service.ImportOrder(order); err != nil {
			return fmt.Errorf("importing %s: %w", order.Key, err)
		}
	}
	slog.Info("Seed orders imported", "count", len(orders))
	return nil
}
