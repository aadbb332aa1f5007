package main

import (
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

	"github.com/jdsanchez93/costco-receipt-parser/internal/ocr"
	"github.com/jdsanchez93/costco-receipt-parser/internal/receipt"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	fs := ff.NewFlagSet("receipt-parser")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "receipt-parser.db", "Database file path")
		storagePath   = fs.StringLong("storage", "./receipts", "Storage directory path")
		engineType    = fs.StringLong("engine", "tesseract", "OCR engine: 'tesseract' or 'azure'")
		tesseractLang = fs.StringLong("tesseract-lang", "eng", "Tesseract language")
		azureEndpoint = fs.StringLong("azure-endpoint", "", "Azure Computer Vision endpoint")
		azureKey      = fs.StringLong("azure-key", "", "Azure Computer Vision API key (or set AZURE_VISION_KEY env var)")
		urlSecret     = fs.StringLong("url-secret", "", "Secret for signed download/upload URL tokens")
		urlLifetime   = fs.DurationLong("url-lifetime", time.Hour, "Signed URL token lifetime")
		jwtSecret     = fs.StringLong("jwt-secret", "", "Secret for verifying caller JWTs (empty trusts an upstream gateway)")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_PARSER"),
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
	db, err := receipt.NewBoltStore(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var engine ocr.Engine
	switch *engineType {
	case "tesseract":
		slog.Info("Initializing Tesseract engine...", "language", *tesseractLang)
		engine, err = ocr.NewTesseract(*tesseractLang)
		if err != nil {
			slog.Error("Failed to initialize Tesseract", "error", err)
			os.Exit(1)
		}
	case "azure":
		apiKey := *azureKey
		if apiKey == "" {
			apiKey = os.Getenv("AZURE_VISION_KEY")
		}
		slog.Info("Initializing Azure Read engine...", "endpoint", *azureEndpoint)
		engine, err = ocr.NewAzureRead(*azureEndpoint, apiKey)
		if err != nil {
			slog.Error("Failed to initialize Azure Read", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid engine type", "type", *engineType, "valid", "tesseract or azure")
		os.Exit(1)
	}
	defer engine.Close()

	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	secret := *urlSecret
	if secret == "" {
		slog.Error("A url-secret is required. Set --url-secret or RECEIPT_PARSER_URL_SECRET")
		os.Exit(1)
	}
	signer, err := receipt.NewURLSigner([]byte(secret), *urlLifetime)
	if err != nil {
		slog.Error("Failed to initialize URL signer", "error", err)
		os.Exit(1)
	}

	service := receipt.NewService(db, engine, store)
	auth := receipt.NewAuthenticator([]byte(*jwtSecret))
	server := receipt.NewServer(service, auth, signer)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "engine", *engineType)
	if *jwtSecret == "" {
		slog.Info("JWT signature verification disabled; trusting upstream gateway")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
