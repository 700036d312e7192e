package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/murshidmujeeb/MedEase-App/internal/backend"
	"github.com/murshidmujeeb/MedEase-App/internal/extraction"
	"github.com/murshidmujeeb/MedEase-App/internal/pharmacy"
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

	fs := ff.NewFlagSet("medease-server")
	var (
		port           = fs.IntLong("port", 8000, "HTTP server port")
		dbPath         = fs.StringLong("db", "medease.db", "Database file path")
		storagePath    = fs.StringLong("storage", "./prescriptions", "Prescription upload directory")
		scannerType    = fs.StringLong("scanner", "gemini", "Extractor type: 'gemini' or 'ollama'")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", extraction.DefaultGeminiModel, "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama vision model name")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		seedPath       = fs.StringLong("seed", "", "JSON file of inventory records to load into an empty inventory")
		pharmacistName = fs.StringLong("pharmacist-name", "Admin Pharmacist", "Name of the pharmacist created at startup")
		pharmacistPIN  = fs.StringLong("pharmacist-pin", "", "PIN of the pharmacist created at startup (optional)")
		scanRate       = fs.IntLong("scan-rate", 30, "Maximum prescription scans per minute, 0 for no limit")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("MEDEASE_SERVER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	slog.Info("Initializing database...")
	db, err := backend.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var extractor extraction.Extractor
	switch *scannerType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini extractor...", "model", *geminiModel)
		extractor, err = extraction.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama extractor...", "url", *ollamaURL, "model", *ollamaModel)
		extractor, err = extraction.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer extractor.Close()

	slog.Info("Initializing storage...")
	store, err := backend.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	service := backend.NewService(db, extractor, store)

	var medicines []pharmacy.Medicine
	if *seedPath != "" {
		medicines, err = backend.LoadSeedFile(*seedPath)
		if err != nil {
			slog.Error("Failed to load seed file", "path", *seedPath, "error", err)
			os.Exit(1)
		}
	} else {
		medicines = backend.DefaultMedicines()
	}
	added, err := service.SeedMedicines(medicines)
	if err != nil {
		slog.Error("Failed to seed inventory", "error", err)
		os.Exit(1)
	}
	if added > 0 {
		slog.Info("Seeded inventory", "medicines", added)
	}

	if *pharmacistPIN != "" {
		pharmacist, err := service.EnsurePharmacist(*pharmacistName, "", *pharmacistPIN)
		if err != nil {
			slog.Error("Failed to create pharmacist", "error", err)
			os.Exit(1)
		}
		slog.Info("Pharmacist ready", "name", pharmacist.Name)
	}

	basicAuth := backend.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := backend.NewServer(service, basicAuth, backend.NewScanLimiter(*scanRate))

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
