// Package main is the Mirip CLI entry point.
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
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mirip/internal/cli"
	"github.com/hyperjump/mirip/internal/config"
	"github.com/hyperjump/mirip/internal/lifecycle"
	"github.com/hyperjump/mirip/internal/models"
	"github.com/hyperjump/mirip/internal/server"
	"github.com/hyperjump/mirip/internal/storage"
	"github.com/hyperjump/mirip/internal/watcher"
	"github.com/hyperjump/mirip/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/mirip/config.yaml"
	defaultServerURL  = "http://localhost:8000"
)

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory takes precedence if it exists, so running from a
// project directory uses the project's config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
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
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "add":
		runAdd()
	case "delete":
		runDelete()
	case "rebuild":
		runRebuild()
	case "build":
		runBuild()
	case "status":
		runStatus()
	case "builds":
		runBuilds()
	case "dump":
		runDump()
	case "version", "--version", "-v":
		fmt.Printf("mirip version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// direct loads the config and initializes every component in-process, for
// commands that run without a server.
func direct(configPath string, debug bool) (*config.Config, *zap.Logger, *Components) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	return cfg, logger, components
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	components.Manager.InitializeInBackground(ctx)

	var watchSvc *watcher.Watcher
	if cfg.Watch.Enabled {
		watchSvc = startSourceWatcher(ctx, cfg, components.Manager, logger)
	}

	var history storage.History
	if components.History != nil {
		history = components.History
	}
	srv := server.NewServer(components.Catalog, history, components.Persister, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = srv.Stop(stopCtx)
}

// startSourceWatcher rebuilds the index in the background whenever the dump
// or workbook changes. Returns nil when there is nothing to watch.
func startSourceWatcher(ctx context.Context, cfg *config.Config, manager *lifecycle.Manager, logger *zap.Logger) *watcher.Watcher {
	var files []string
	for _, p := range []string{cfg.Source.DumpPath, cfg.Source.XLSXPath} {
		if p != "" {
			files = append(files, p)
		}
	}
	if len(files) == 0 {
		logger.Warn("Watch enabled but no source files configured")
		return nil
	}

	w := watcher.NewWatcher(files, func(path string) {
		err := manager.RebuildInBackground(ctx)
		switch {
		case errors.Is(err, lifecycle.ErrRebuildInProgress):
			logger.Info("Source changed during a build; skipping rebuild", zap.String("path", path))
		case err != nil:
			logger.Warn("Rebuild on source change failed", zap.String("path", path), zap.Error(err))
		default:
			logger.Info("Source changed; rebuilding index", zap.String("path", path))
		}
	}, watcher.WithLogger(logger), watcher.WithDebounce(cfg.Watch.Debounce))

	if err := w.Start(ctx); err != nil {
		logger.Error("Failed to start watcher", zap.Error(err))
		return nil
	}
	return w
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: mirip search [flags] <query or image URL>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  mirip search red running shoes
  mirip search --top-k 10 "leather bag"
  mirip search https://cdn.example.com/images/shoe.jpg
  mirip search --server "" --output json denim jacket   # without a running server
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. The flag package
// stops at the first non-flag argument.
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
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = search in-process)")
	topK := fs.Int("top-k", 0, "number of results (0 = configured default)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}
	query := &models.SearchQuery{Query: queryStr, TopK: *topK}

	var response *models.SearchResponse
	if *serverURL != "" {
		response, err = searchViaHTTP(*serverURL, query)
	} else {
		_, logger, components := direct(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		ctx := context.Background()
		if err := components.Manager.Initialize(ctx); err != nil {
			fail("Index initialization failed: %v", err)
		}
		response, err = components.Catalog.Search(ctx, query)
	}
	if err != nil {
		fail("Search failed: %v", err)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fail("Output failed: %v", err)
	}
}

// parseProductID parses a positive integer product id.
func parseProductID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid product id %q", s)
	}
	return id, nil
}

// productCommand parses the flags and id argument shared by add and delete.
func productCommand(name string) (configPath, serverURL string, id int64) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cp := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	su := fs.String("server", defaultServerURL, "server URL (empty = update the index in-process)")
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))
	if fs.NArg() < 1 {
		fmt.Printf("Usage: mirip %s [flags] <product-id>\n", name)
		os.Exit(1)
	}
	id, err := parseProductID(fs.Arg(0))
	if err != nil {
		fail("%v", err)
	}
	return *cp, *su, id
}

func runAdd() {
	configPath, serverURL, id := productCommand("add")
	if serverURL != "" {
		if err := addViaHTTP(serverURL, id); err != nil {
			fail("Add failed: %v", err)
		}
		fmt.Printf("Product indexed: %d\n", id)
		return
	}

	_, logger, components := direct(configPath, false)
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()
	if err := components.Manager.Initialize(ctx); err != nil {
		fail("Index initialization failed: %v", err)
	}
	if _, err := components.Catalog.AddProduct(ctx, id); err != nil {
		fail("Add failed: %v", err)
	}
	fmt.Printf("Product indexed: %d\n", id)
}

func runDelete() {
	configPath, serverURL, id := productCommand("delete")
	if serverURL != "" {
		if err := deleteViaHTTP(serverURL, id); err != nil {
			fail("Delete failed: %v", err)
		}
		fmt.Printf("Product removed: %d\n", id)
		return
	}

	_, logger, components := direct(configPath, false)
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()
	if err := components.Manager.Initialize(ctx); err != nil {
		fail("Index initialization failed: %v", err)
	}
	if err := components.Catalog.DeleteProduct(ctx, id); err != nil {
		fail("Delete failed: %v", err)
	}
	fmt.Printf("Product removed: %d\n", id)
}

func runRebuild() {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[2:])

	if err := rebuildViaHTTP(*serverURL); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			fail("A build is already running")
		}
		fail("Rebuild failed: %v", err)
	}
	fmt.Println("Rebuild started; follow progress with: mirip status")
}

// runBuild builds or loads the index in-process and persists it, so a server
// can start from the saved artifacts.
func runBuild() {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	force := fs.Bool("force", false, "rebuild from the source even if a persisted index exists")
	debug := fs.Bool("debug", false, "enable debug logging")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}
	cfg, logger, components := direct(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	if *force {
		err = components.Manager.RebuildFromSource(ctx)
	} else {
		err = components.Manager.Initialize(ctx)
	}
	if err != nil {
		logger.Warn("Build finished with error", zap.Error(err))
	}
	disk, diskErr := components.Persister.DiskUsage()
	if diskErr != nil {
		disk = -1
	}
	if err := cli.WriteStatus(os.Stdout, components.Manager.Status(), disk, cfg.Summary(), format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = load the persisted index in-process)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}

	var st server.StatusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fail("Status failed: %v", err)
		}
		st = *res
	} else {
		cfg, logger, components := direct(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		if s, ok := components.Persister.LoadIfExists(context.Background(), components.Embedder.Dimensions()); ok {
			st.Status = lifecycle.Status{
				State:      lifecycle.StateReady,
				IndexSize:  s.Count(),
				Dimensions: s.Dimensions(),
				IndexType:  s.IndexType(),
			}
			_ = s.Close()
		} else {
			st.Status = components.Manager.Status()
		}
		st.DiskUsageBytes = -1
		if n, err := components.Persister.DiskUsage(); err == nil {
			st.DiskUsageBytes = n
		}
		st.Config = cfg.Summary()
	}
	if err := cli.WriteStatus(os.Stdout, st.Status, st.DiskUsageBytes, st.Config, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runBuilds() {
	fs := flag.NewFlagSet("builds", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the history database)")
	limit := fs.Int("limit", 20, "number of builds")
	offset := fs.Int("offset", 0, "builds to skip")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}

	var builds []*lifecycle.BuildReport
	if *serverURL != "" {
		builds, _, err = buildsViaHTTP(*serverURL, *offset, *limit)
	} else {
		cfg, _, lerr := loadConfig(*configPath)
		if lerr != nil {
			fail("Failed to load config: %v", lerr)
		}
		if cfg.Storage.HistoryPath == "" {
			fail("Build history is disabled (storage.history_path is empty)")
		}
		history, herr := storage.NewSQLiteStorage(cfg.Storage.HistoryPath)
		if herr != nil {
			fail("Failed to open build history: %v", herr)
		}
		defer history.Close()
		builds, err = history.ListBuilds(context.Background(), *offset, *limit)
	}
	if err != nil {
		fail("Listing builds failed: %v", err)
	}
	if err := cli.WriteBuilds(os.Stdout, builds, format); err != nil {
		fail("Output failed: %v", err)
	}
}

// dumpTarget returns where a dump of the given format is written when no
// --out is given.
func dumpTarget(cfg *config.Config, format, out string) (string, error) {
	var def string
	switch format {
	case "sql":
		def = cfg.Source.DumpPath
		if def == "" {
			def = "product_details.sql"
		}
	case "xlsx":
		def = cfg.Source.XLSXPath
		if def == "" {
			def = "products.xlsx"
		}
	default:
		return "", fmt.Errorf("unknown dump format %q; use sql or xlsx", format)
	}
	if out != "" {
		return out, nil
	}
	return def, nil
}

// runDump exports the database table to the fallback files so the index can
// be rebuilt while the database is down.
func runDump() {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	format := fs.String("format", "sql", "dump format: sql or xlsx")
	out := fs.String("out", "", "output path (default: the configured dump or workbook path)")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	target, err := dumpTarget(cfg, *format, *out)
	if err != nil {
		fail("%v", err)
	}
	if cfg.Source.DatabaseURL == "" {
		fail("No database configured (source.database_url or MYSQL_URL)")
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fail("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	_, sqlProvider := newSourceChain(cfg, logger)
	if sqlProvider == nil {
		fail("Database unavailable")
	}
	defer sqlProvider.Close()

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		fail("Failed to create output directory: %v", err)
	}
	ext := filepath.Ext(target)
	tmp := filepath.Join(filepath.Dir(target), "."+strings.TrimSuffix(filepath.Base(target), ext)+".tmp"+ext)

	ctx := context.Background()
	var n int
	switch *format {
	case "sql":
		f, ferr := os.Create(tmp)
		if ferr != nil {
			fail("Failed to create dump: %v", ferr)
		}
		n, err = sqlProvider.Export(ctx, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	case "xlsx":
		n, err = sqlProvider.ExportXLSX(ctx, tmp, cfg.Source.XLSXSheet)
	}
	if err != nil {
		_ = os.Remove(tmp)
		fail("Dump failed: %v", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		fail("Failed to write dump: %v", err)
	}
	fmt.Printf("Dumped %d product(s) to %s\n", n, target)
}

func printUsage() {
	fmt.Println(`mirip - Product similarity search over a vector index

Usage:
  mirip server [flags]            Start the HTTP server
  mirip search [flags] <query>    Search products by text or image URL
  mirip add [flags] <id>          Index one product from the source
  mirip delete [flags] <id>       Remove one product from the index
  mirip rebuild [flags]           Rebuild the index in the background (server)
  mirip build [flags]             Build or load the index in-process and save it
  mirip status [flags]            Show index state and configuration
  mirip builds [flags]            List recent index builds
  mirip dump [flags]              Export the product table to a SQL dump or workbook
  mirip version                   Show version
  mirip help                      Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/mirip/config.yaml,
                     or ./config.yaml when present)
  --server string    Server URL (default: http://localhost:8000). Use --server ""
                     to run search, add, delete, status and builds in-process.
  --output string    Output format: text, compact (search only) or json

Search Flags:
  --top-k int        Number of results (default from config)

Build Flags:
  --force            Rebuild from the source even if a persisted index exists

Builds Flags:
  --limit int        Number of builds (default: 20)
  --offset int       Builds to skip

Dump Flags:
  --format string    sql or xlsx (default: sql)
  --out string       Output path (default: the configured source path)

Examples:
  mirip server
  mirip search "red running shoes"
  mirip search --top-k 10 --output json leather bag
  mirip add 42
  mirip delete 42
  mirip rebuild
  mirip build --force
  mirip status --output json
  mirip dump --format xlsx --out /tmp/products.xlsx`)
}
