// Package main is the kotae CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kotae/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory takes precedence; when neither exists the built-in defaults are
// used. Returns the config and the path it came from ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	var err error
	switch command {
	case "server":
		err = runServer(args)
	case "ingest":
		err = runIngest(args)
	case "ask":
		err = runAsk(args)
	case "history":
		err = runHistory(args)
	case "clear":
		err = runClear(args)
	case "documents":
		err = runDocuments(args)
	case "status":
		err = runStatus(args)
	case "init":
		err = runInit(args)
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", command, err)
		os.Exit(1)
	}
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	var inbox *watcher.Inbox
	if len(cfg.Watch.Directories) > 0 {
		p := components.Pipeline
		inbox = watcher.NewInbox(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			func(ctx context.Context, path string) error {
				_, err := p.IngestFile(ctx, path)
				return err
			},
			watcher.WithLogger(logger),
		)
		if err := inbox.Start(ctx); err != nil {
			return fmt.Errorf("start inbox: %w", err)
		}
		logger.Info("Syncing inbox", zap.Strings("directories", inbox.Directories()))
		inbox.SyncInBackground()
	}

	srv := server.NewServer(components.Pipeline, components.Index, cfg, logger)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("Server failed", zap.Error(err))
	}

	stop()
	logger.Info("Shutting down...")
	if inbox != nil {
		inbox.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
	components.SaveSnapshot(cfg, logger)
	return nil
}

// runIngest uploads files to a running server, or ingests them in process when
// --server is empty. In-process ingestion persists through the index snapshot or a
// remote vector backend.
func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (in-process mode)")
	serverURL := fs.String("server", defaultServerURL, `server URL ("" ingests in process)`)
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(args))

	if fs.NArg() < 1 {
		return errors.New("usage: kotae ingest [flags] <file>...")
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		return err
	}

	if *serverURL != "" {
		client := newAPIClient(*serverURL)
		for _, path := range fs.Args() {
			res, err := client.Upload(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if err := cli.WriteUpload(os.Stdout, res, format); err != nil {
				return err
			}
		}
		return nil
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()
	defer components.SaveSnapshot(cfg, logger)

	for _, path := range fs.Args() {
		res, err := components.Pipeline.IngestFile(ctx, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		out := &models.UploadResponse{Message: "Ingested " + res.Filename, DocumentID: res.DocumentID, Chunks: res.Chunks}
		if err := cli.WriteUpload(os.Stdout, out, format); err != nil {
			return err
		}
	}
	return nil
}

func runAsk(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(args))

	question := joinArgs(fs.Args())
	if question == "" {
		return errors.New("usage: kotae ask [flags] <question>")
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		return err
	}
	resp, err := newAPIClient(*serverURL).Ask(question)
	if err != nil {
		return err
	}
	return cli.WriteAnswer(os.Stdout, resp, format)
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		return err
	}
	resp, err := newAPIClient(*serverURL).History()
	if err != nil {
		return err
	}
	return cli.WriteHistory(os.Stdout, resp, format)
}

func runClear(args []string) error {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(args)

	if err := newAPIClient(*serverURL).ClearHistory(); err != nil {
		return err
	}
	fmt.Println("Conversation history cleared")
	return nil
}

func runDocuments(args []string) error {
	fs := flag.NewFlagSet("documents", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	offset := fs.Int("offset", 0, "number of documents to skip")
	limit := fs.Int("limit", 50, "maximum number of documents")
	_ = fs.Parse(args)

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		return err
	}
	docs, err := newAPIClient(*serverURL).Documents(*offset, *limit)
	if err != nil {
		return err
	}
	return cli.WriteDocuments(os.Stdout, docs, format)
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		return err
	}
	st, err := newAPIClient(*serverURL).Status()
	if err != nil {
		return err
	}
	return cli.WriteStatus(os.Stdout, st, format)
}

// runInit writes a config file with every default filled in.
func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "config file to create")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(args)

	if _, err := os.Stat(*configPath); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", *configPath)
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if err := os.MkdirAll(filepath.Dir(*configPath), 0o755); err != nil {
		return err
	}
	if err := config.Save(*configPath, cfg); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", *configPath)
	return nil
}

// joinArgs joins positional args with spaces so multi-word questions work with or without quotes.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// reorderArgs moves flags that follow the positional arguments to the front, since
// the flag package stops at the first non-flag argument.
func reorderArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func printUsage() {
	fmt.Println(`kotae - question answering over your documents

Usage:
  kotae server [flags]             Start the HTTP server
  kotae ingest [flags] <file>...   Ingest documents (clears the conversation)
  kotae ask [flags] <question>     Ask a question
  kotae history [flags]            Show the conversation so far
  kotae clear [flags]              Clear the conversation
  kotae documents [flags]          List stored uploads
  kotae status [flags]             Show index and storage status
  kotae init [flags]               Write a default config file
  kotae version                    Show version
  kotae help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging

Client Flags (ingest, ask, history, clear, documents, status):
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

Ingest Flags:
  --server ""        Ingest in process instead of uploading to a server
  --config string    Config file path for in-process ingestion

Examples:
  kotae server
  kotae ingest report.pdf
  kotae ask What does the report conclude?
  kotae ask --output json "What color is the sky?"
  kotae history
  kotae status --output json`)
}
