package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/dispatch-prep/internal/picking"
	"github.com/zombor/dispatch-prep/internal/remote"
	"github.com/zombor/dispatch-prep/internal/scanning"
	"github.com/zombor/dispatch-prep/internal/station"
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

	fs := ff.NewFlagSet("scan-station")
	var (
		apiURL        = fs.StringLong("api-url", "http://localhost:8080", "Dispatch API base URL")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		orderID       = fs.StringLong("order", "", "Order to prepare")
		subOrderID    = fs.StringLong("sub-order", "", "Sub order to prepare")
		timeout       = fs.DurationLong("timeout", 10*time.Second, "Request timeout, 0 for none")
		keystrokeGap  = fs.DurationLong("keystroke-gap", scanning.DefaultKeystrokeGap, "Longest pause between keystrokes of one scan")
		finishPolicy  = fs.StringLong("finish-policy", "started", "What finishing requires: 'started' or 'complete'")
		acceptForeign = fs.BoolLong("accept-foreign-labels", "Accept labels printed for another order")
		logLevel      = fs.StringLong("log-level", "warn", "Log level: debug, info, warn or error")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SCAN_STATION"),
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

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *orderID == "" || *subOrderID == "" {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintln(os.Stderr, "error: --order and --sub-order are required")
		os.Exit(1)
	}

	var policy picking.FinishPolicy
	switch *finishPolicy {
	case "started":
		policy = picking.FinishWhenStarted
	case "complete":
		policy = picking.FinishWhenComplete
	default:
		slog.Error("Invalid finish policy", "policy", *finishPolicy, "valid", "started or complete")
		os.Exit(1)
	}

	client, err := remote.NewClient(*apiURL,
		remote.WithBasicAuth(*authUser, *authPass),
		remote.WithTimeout(*timeout),
	)
	if err != nil {
		slog.Error("Failed to create API client", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console := station.NewConsole(os.Stdout)
	controller := picking.NewController(client,
		picking.OrderKey{OrderID: *orderID, SubOrderID: *subOrderID},
		picking.WithFinishPolicy(policy),
		picking.WithNotifier(console),
		picking.WithConfirm(func(ctx context.Context, prompt string) bool {
			if *acceptForeign {
				console.Notify(picking.LevelWarning, prompt+" Accepted.")
				return true
			}
			return false
		}),
		picking.WithAuthFailureHandler(func() {
			// Reading stdin cannot be interrupted, so leave right away
			console.Notify(picking.LevelError, "Credentials rejected, check --auth-user and --auth-pass")
			os.Exit(2)
		}),
	)
	console.Attach(controller)
	defer controller.Close()

	if err := controller.Open(ctx); err != nil {
		slog.Error("Failed to open order", "order", *orderID, "sub_order", *subOrderID, "error", err)
		os.Exit(1)
	}
	console.Render()
	console.Help()

	wedge := scanning.NewWedge(*keystrokeGap)
	wedge.Start()
	defer wedge.Stop()

	// Run returns on EOF or cancellation
	runCtx, quit := context.WithCancel(ctx)
	defer quit()
	err = wedge.Run(runCtx, os.Stdin, func(raw string) {
		if console.Handle(runCtx, raw) {
			quit()
		}
	})
	if err != nil && runCtx.Err() == nil {
		slog.Error("Scanner input failed", "error", err)
		os.Exit(1)
	}
}
