// Package main is the docmind CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/docmind/docmind-core/internal/cli"
	"github.com/docmind/docmind-core/internal/config"
	"github.com/docmind/docmind-core/internal/core"
	"github.com/docmind/docmind-core/internal/fileid"
	"github.com/docmind/docmind-core/internal/models"
	"github.com/docmind/docmind-core/internal/server"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/docmind/config.json"

// loadConfig loads config from path. If path is the default and the file does
// not exist, it tries config.json in the current directory (for development).
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if path == defaultConfigPath {
			if unwrap := errors.Unwrap(err); unwrap != nil && os.IsNotExist(unwrap) {
				if cwd, cwdErr := os.Getwd(); cwdErr == nil {
					fallback := filepath.Join(cwd, "config.json")
					if _, statErr := os.Stat(fallback); statErr == nil {
						return config.Load(fallback)
					}
				}
			}
		}
		return nil, err
	}
	return cfg, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "index":
		runIndex()
	case "delete":
		runDelete()
	case "rebuild":
		runRebuild()
	case "version", "--version", "-v":
		fmt.Printf("docmind version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	addr := fs.String("addr", "localhost:8080", "HTTP listen address")
	_ = fs.Parse(os.Args[2:])

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, err := core.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize core", zap.Error(err))
	}
	defer ctx.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := ctx.Start(watchCtx); err != nil {
		logger.Fatal("failed to start watcher", zap.Error(err))
	}

	srv := server.New(ctx, logger)
	go func() {
		if err := srv.Start(*addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	watchCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

// searchArgsReorder moves everything from the first flag onward to the front
// when the arguments begin with the query, so flag.Parse sees flags written
// after the query; Go's flag package stops parsing at the first non-flag
// argument. Arguments that already begin with a flag are returned unchanged,
// so in that case any flag placed after the query is still not parsed.
func searchArgsReorder(args []string) []string {
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

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	limit := fs.Int("limit", 10, "number of results")
	mode := fs.String("mode", "hybrid", "search mode: full_text, semantic, hybrid")
	fullTextWeight := fs.Float64("full-text-weight", 0, "full-text weight (0 = use config default)")
	semanticWeight := fs.Float64("semantic-weight", 0, "semantic weight (0 = use config default)")
	searchArgs := searchArgsReorder(os.Args[2:])
	_ = fs.Parse(searchArgs)

	if fs.NArg() < 1 {
		fmt.Println("Usage: docmind search [flags] <query>")
		os.Exit(1)
	}
	queryStr := fs.Arg(0)

	query := &models.Query{
		Text:  queryStr,
		Mode:  models.SearchMode(*mode),
		Limit: *limit,
	}
	if *fullTextWeight > 0 || *semanticWeight > 0 {
		w := models.NormalizeWeights(*fullTextWeight, *semanticWeight)
		query.Weights = &w
	}

	if *serverURL != "" {
		resp, err := searchViaHTTP(*serverURL, query)
		if err != nil {
			fmt.Printf("Search failed: %v\n", err)
			os.Exit(1)
		}
		cli.PrintSearchResults(resp)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, err := core.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize core", zap.Error(err))
	}
	defer ctx.Close()

	resp, _, err := ctx.Search.Search(context.Background(), query)
	if err != nil {
		fmt.Printf("Search failed: %v\n", err)
		os.Exit(1)
	}
	cli.PrintSearchResults(resp)
}

func searchViaHTTP(serverURL string, query *models.Query) (*models.Response, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out models.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: docmind index [flags] <file>")
		os.Exit(1)
	}
	filePath := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, err := core.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize core", zap.Error(err))
	}
	defer ctx.Close()

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		fmt.Printf("Invalid path: %v\n", err)
		os.Exit(1)
	}
	if err := ctx.Pipeline.ProcessSingleFile(context.Background(), absPath); err != nil {
		fmt.Printf("Indexing failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document indexed successfully: %s\n", fileid.FromPath(absPath))
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: docmind delete [flags] <file>")
		os.Exit(1)
	}
	filePath := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, err := core.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize core", zap.Error(err))
	}
	defer ctx.Close()

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		fmt.Printf("Invalid path: %v\n", err)
		os.Exit(1)
	}
	if err := ctx.Pipeline.RemoveFile(context.Background(), absPath); err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", absPath)
}

func runRebuild() {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: docmind rebuild [flags] <folder-path>")
		os.Exit(1)
	}
	folderPath, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		fmt.Printf("Invalid path: %v\n", err)
		os.Exit(1)
	}

	body, _ := json.Marshal(map[string]string{"folder_path": folderPath})
	resp, err := http.Post(*serverURL+"/api/v1/rebuild", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Printf("Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		fmt.Printf("Rebuild failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	fmt.Printf("Rebuild started: %s\n", folderPath)
}

func printUsage() {
	fmt.Println(`docmind - Local hybrid document search core

Usage:
  docmind server [flags]           Start the HTTP server
  docmind search [flags] <query>   Search documents
  docmind index [flags] <file>     Index a single document
  docmind delete [flags] <file>    Remove a document from all stores
  docmind rebuild [flags] <dir>    Trigger a full directory rebuild
  docmind version                  Show version
  docmind help                     Show this help

Server Flags:
  --config string   Config file path (default: /usr/local/etc/docmind/config.json)
  --addr string      HTTP listen address (default: localhost:8080)

Search Flags:
  --config string             Config file path (for direct storage mode)
  --server string              Server URL (default: http://localhost:8080). Use empty to access storage directly.
  --limit int                  Number of results (default: 10)
  --mode string                full_text, semantic, or hybrid (default: hybrid)
  --full-text-weight float     Full-text weight (0 = config default)
  --semantic-weight float      Semantic weight (0 = config default)

Rebuild Flags:
  --server string    Server URL (default: http://localhost:8080)

Examples:
  docmind server
  docmind search "quarterly budget"
  docmind search --mode full_text "invoice 2024"
  docmind index ./report.pdf
  docmind delete ./report.pdf
  docmind rebuild ~/Documents`)
}
