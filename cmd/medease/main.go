package main

import (
	"bufio"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/murshidmujeeb/MedEase-App/internal/capture"
	"github.com/murshidmujeeb/MedEase-App/internal/collab"
	"github.com/murshidmujeeb/MedEase-App/internal/inventory"
	"github.com/murshidmujeeb/MedEase-App/internal/workflow"
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

	fs := ff.NewFlagSet("medease")
	var (
		apiURL      = fs.StringLong("api-url", "http://localhost:8000", "MedEase server base URL")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		cameraURLs  = fs.StringLong("camera-url", "", "Snapshot cameras as facing=url pairs, e.g. back=http://phone:8080/shot.jpg")
		debounce    = fs.DurationLong("debounce", inventory.DefaultDebounce, "Delay after the last keystroke before searching inventory")
		timeout     = fs.DurationLong("timeout", 2*time.Minute, "Timeout for a scan or confirmation")
		verbose     = fs.BoolLong("verbose", "Log debug messages")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("MEDEASE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var devices capture.MediaDevices
	if *cameraURLs != "" {
		cameras, err := capture.ParseSnapshotCameras(*cameraURLs)
		if err != nil {
			slog.Error("Invalid camera configuration", "error", err)
			os.Exit(1)
		}
		devices = capture.NewSnapshotDevices(cameras)
	}

	client := collab.NewClient(*apiURL, collab.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	})

	session := workflow.NewSession(client, devices)
	defer session.Close()

	out := newConsole(os.Stdout)
	stock := inventory.NewControllerWithDebounce(client, *debounce)
	defer stock.Close()
	stock.OnChange(out.inventoryChanged)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	op := &operator{
		session: session,
		stock:   stock,
		out:     out,
		timeout: *timeout,
	}

	out.printf("MedEase %s connected to %s. Type 'help' for commands.\n", version, *apiURL)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		out.prompt(session.Stage())
		select {
		case <-ctx.Done():
			out.printf("\n")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := op.run(ctx, line); quit {
				return
			}
		}
	}
}
