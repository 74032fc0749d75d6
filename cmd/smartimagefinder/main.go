// Package main is the SmartImageFinder CLI entry point.
package main

import (
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
	"sort"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/cli"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/config"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/embedding"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/export"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/identity"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/indexer"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/maintenance"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/server"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/storage"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/vectorstore"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/watcher"
	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/smartimagefinder/config.yaml"
	defaultServerURL  = "http://localhost:8000"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded (for saving, etc.).
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
	case "similar":
		runSimilar()
	case "ingest":
		runIngest()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "compact":
		runCompact()
	case "reembed":
		runReembed()
	case "export":
		runExport()
	case "version", "--version", "-v":
		fmt.Printf("smartimagefinder version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// setup loads config, builds the logger and initializes components for the direct
// (serverless) commands.
func setup(configPath string, debug bool) (*config.Config, string, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		fatalf("Failed to initialize: %v", err)
	}
	return cfg, resolved, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (watch events, request logs, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug || *debug),
	)

	if n, err := components.Indexer.SyncKeywords(context.Background()); err != nil {
		logger.Warn("keyword index sync failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("keyword index synced", zap.Int("records", n))
	}

	sched, err := maintenance.New(cfg.Maintenance, components.Vectors, logger)
	if err != nil {
		logger.Fatal("Failed to create maintenance scheduler", zap.Error(err))
	}
	if sched != nil {
		sched.Start()
	}

	idx := components.Indexer
	watchSvc := watcher.New(
		cfg.Watch.Directories,
		cfg.Watch.Patterns,
		cfg.Watch.RecursiveOrDefault(),
		watcher.HandlerFuncs{
			Changed: func(path string) {
				res, skipped, err := idx.IngestFile(context.Background(), path)
				if err != nil && !errors.Is(err, vectorstore.ErrNotPersisted) {
					logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
					return
				}
				if !skipped && res != nil {
					logger.Debug("watch ingested file", zap.String("path", path), zap.String("uuid", res.Image.UUID))
				}
			},
			Removed: func(path string) {
				if _, err := idx.RemoveFile(context.Background(), path); err != nil && !errors.Is(err, vectorstore.ErrNotPersisted) {
					logger.Warn("watch remove failed", zap.String("path", path), zap.Error(err))
				}
			},
		},
		watcher.WithLogger(logger),
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	watchSvc.SyncExistingFiles()

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithWatch(watchSvc, resolvedConfigPath),
		server.WithVersion(version),
	}
	if sched != nil {
		opts = append(opts, server.WithScheduler(sched))
	}
	if components.Analyzer != nil {
		opts = append(opts, server.WithAnalyzer(components.Analyzer))
	}
	srv := server.NewServer(components.Engine, components.Indexer, components.Storage, components.Vectors, cfg, opts...)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchSvc.Stop()
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if sched != nil {
		if err := sched.Stop(ctx); err != nil {
			logger.Warn("maintenance scheduler stop timed out", zap.Error(err))
		}
	}
	if err := srv.Stop(ctx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	if err := components.Vectors.PersistAll(); err != nil {
		logger.Warn("final checkpoint failed", zap.Error(err))
	}
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: smartimagefinder search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Modes:
  • text    exact matches on title and description, best tier first
  • vector  semantic matches over the title, description and image indices
  • hybrid  both, fused by weighted score (default)

Examples:
  smartimagefinder search sunset over mountains
  smartimagefinder search --mode text "red car"
  smartimagefinder search --mode vector --vector-type image beach
  smartimagefinder search --tags travel,2023 --start 2023-01-01 --end 2023-12-31 harbor
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchConfigPathFromArgs returns the value of -config/--config from args if present, else defaultPath.
func searchConfigPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return defaultPath
}

// searchLimitDefaultFromConfig returns the configured default result limit, or 20 when
// the config cannot be loaded.
func searchLimitDefaultFromConfig(path string) int {
	cfg, _, err := loadConfig(path)
	if err != nil || cfg == nil || cfg.Search.DefaultLimit <= 0 {
		return 20
	}
	return cfg.Search.DefaultLimit
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
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

// searchFlags are the flags shared by search and similar.
type searchFlags struct {
	configPath *string
	serverURL  *string
	limit      *int
	tags       *string
	start      *string
	end        *string
	output     *string
}

func addSearchFlags(fs *flag.FlagSet, defaultLimit int) *searchFlags {
	return &searchFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		serverURL:  fs.String("server", defaultServerURL, "server URL (empty = use direct storage when server is not running)"),
		limit:      fs.Int("limit", defaultLimit, "number of results"),
		tags:       fs.String("tags", "", "comma separated tags; results must carry at least one"),
		start:      fs.String("start", "", "earliest creation date (YYYY-MM-DD or RFC 3339)"),
		end:        fs.String("end", "", "latest creation date (YYYY-MM-DD or RFC 3339)"),
		output:     fs.String("output", "text", "output format: text (human-readable), compact (one result per line), or json (parseable)"),
	}
}

// apply copies the shared filters onto req.
func (f *searchFlags) apply(req *models.SearchRequest) error {
	rng, err := models.ParseDateRange(*f.start, *f.end)
	if err != nil {
		return err
	}
	req.Range = rng
	req.Limit = *f.limit
	req.Tags = utils.SplitList(*f.tags)
	return nil
}

// execSearch runs req against the server when serverURL is set and directly otherwise.
func execSearch(f *searchFlags, req *models.SearchRequest) {
	format, err := cli.ParseOutputFormat(*f.output)
	if err != nil {
		fatalf("%v", err)
	}
	if err := f.apply(req); err != nil {
		fatalf("%v", err)
	}

	var response *models.SearchResponse
	if *f.serverURL != "" {
		// Use HTTP API when server is running (avoids SQLite and index lock conflicts).
		response, err = searchViaHTTP(*f.serverURL, req)
		if err != nil {
			fatalf("Search failed: %v", err)
		}
	} else {
		_, _, logger, components := setup(*f.configPath, false)
		defer logger.Sync()
		defer components.Close()
		response, err = components.Engine.Search(context.Background(), req)
		if err != nil {
			components.Close()
			fatalf("Search failed: %v", err)
		}
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])
	defaultLimit := searchLimitDefaultFromConfig(searchConfigPathFromArgs(searchArgs, defaultConfigPath))

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	f := addSearchFlags(fs, defaultLimit)
	mode := fs.String("mode", "", "search mode: text, vector or hybrid (default hybrid)")
	textMatch := fs.String("text-match", "", "text fields: title, description or combined")
	vectorType := fs.String("vector-type", "", "vector indices: title, description, image or combined")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	execSearch(f, &models.SearchRequest{
		Query:       queryStr,
		Type:        models.SearchType(*mode),
		TextMatch:   models.TextMatchMode(*textMatch),
		VectorMatch: models.VectorMatchMode(*vectorType),
	})
}

func runSimilar() {
	args := searchArgsReorder(os.Args[2:])
	defaultLimit := searchLimitDefaultFromConfig(searchConfigPathFromArgs(args, defaultConfigPath))

	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	f := addSearchFlags(fs, defaultLimit)
	searchType := fs.String("search-type", "", "vector indices: title, description, image or combined")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Println("Usage: smartimagefinder similar [flags] <uuid>")
		os.Exit(1)
	}
	execSearch(f, &models.SearchRequest{
		SimilarTo:   fs.Arg(0),
		Type:        models.SearchVector,
		VectorMatch: models.VectorMatchMode(*searchType),
	})
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	patterns := fs.String("patterns", "", "comma separated doublestar patterns for directories (default: watch.patterns)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: smartimagefinder ingest [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		return
	}
	if info.IsDir() {
		pats := utils.SplitList(*patterns)
		if pats == nil {
			pats = cfg.Watch.Patterns
		}
		stats, err := components.Indexer.IngestDirectory(ctx, path, pats)
		fmt.Printf("Ingested %d file(s) from %s (%d skipped, %d failed)\n", stats.Added, path, stats.Skipped, stats.Failed)
		if err != nil {
			fmt.Printf("Ingest stopped: %v\n", err)
		}
		return
	}
	res, skipped, err := components.Indexer.IngestFile(ctx, path)
	if err != nil && (res == nil || !errors.Is(err, vectorstore.ErrNotPersisted)) {
		fmt.Printf("Ingest failed: %v\n", err)
		return
	}
	if skipped {
		fmt.Printf("Already in catalogue: %s\n", res.Image.UUID)
		return
	}
	fmt.Printf("Image ingested: %s\n", res.Image.UUID)
	if !res.VectorsIndexed {
		fmt.Println("warning: vectors not indexed; run `smartimagefinder reembed --missing` once the embedder is available")
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: smartimagefinder delete [flags] <uuid> [uuid...]")
		os.Exit(1)
	}

	_, _, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	res, err := components.Indexer.DeleteBatch(context.Background(), fs.Args())
	if err != nil && (res == nil || !errors.Is(err, vectorstore.ErrNotPersisted)) {
		fmt.Printf("Deletion failed: %v\n", err)
		return
	}
	for _, id := range res.Deleted {
		fmt.Printf("Image deleted: %s\n", id)
	}
	for _, id := range res.NotFound {
		fmt.Printf("Not found: %s\n", id)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status map[string]interface{}
	if *serverURL != "" {
		st, err := statusViaHTTP(*serverURL)
		if err != nil {
			fatalf("Status failed: %v", err)
		}
		status = st
	} else {
		cfg, _, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		st, err := directStatus(context.Background(), cfg, components)
		if err != nil {
			components.Close()
			fatalf("Status failed: %v", err)
		}
		// Match the server's JSON shape so both paths print the same.
		b, err := json.Marshal(st)
		if err == nil {
			err = json.Unmarshal(b, &status)
		}
		if err != nil {
			components.Close()
			fatalf("Status failed: %v", err)
		}
	}

	switch *outputFormat {
	case "json":
		if err := cli.WriteJSON(os.Stdout, status); err != nil {
			fatalf("Output failed: %v", err)
		}
	case "text":
		writeStatusText(os.Stdout, status, "")
	default:
		fatalf("Unknown output format %q; use text or json", *outputFormat)
	}
}

func directStatus(ctx context.Context, cfg *config.Config, c *Components) (map[string]interface{}, error) {
	count, err := c.Storage.CountImages(ctx)
	if err != nil {
		return nil, err
	}
	st := map[string]interface{}{
		"images":             count,
		"vectors":            c.Vectors.Stats(),
		"embedder_available": embedding.Available(c.Vectors.Embedder()),
		"version":            version,
	}
	if t := c.Vectors.LastPersist(); !t.IsZero() {
		st["last_checkpoint"] = t.UTC().Format(time.RFC3339)
	}
	s := cfg.Storage
	if n, err := storage.DiskUsageBytes(s.DatabasePath, s.UploadDir, s.TitleIndexPath,
		s.DescriptionIndexPath, s.ImageIndexPath, s.IdentityMapPath, s.BleveIndexPath); err == nil {
		st["disk_usage_bytes"] = n
	}
	return st, nil
}

// writeStatusText prints nested status maps as indented key: value lines in key order.
func writeStatusText(w io.Writer, v interface{}, indent string) {
	m, ok := toMap(v)
	if !ok {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		val := m[k]
		if _, nested := toMap(val); nested {
			fmt.Fprintf(w, "%s%s:\n", indent, k)
			writeStatusText(w, val, indent+"  ")
			continue
		}
		if k == "disk_usage_bytes" {
			if n, ok := val.(float64); ok {
				val = cli.HumanBytes(int64(n))
			}
		}
		fmt.Fprintf(w, "%s%s: %v\n", indent, k, val)
	}
}

// toMap reports whether v is a decoded JSON object.
func toMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

func runCompact() {
	fs := flag.NewFlagSet("compact", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	threshold := fs.Float64("threshold", 0, "only compact when the orphan ratio exceeds this (0 = always)")
	_ = fs.Parse(os.Args[2:])

	_, _, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	before := components.Vectors.OrphanRatio()
	if *threshold > 0 {
		_, ran, err := components.Vectors.MaybeCompact(ctx, *threshold)
		if err != nil {
			fmt.Printf("Compaction failed: %v\n", err)
			return
		}
		if !ran {
			fmt.Printf("Orphan ratio %.3f is below %.3f; nothing to do\n", before, *threshold)
			return
		}
	} else if _, err := components.Vectors.Compact(ctx); err != nil {
		fmt.Printf("Compaction failed: %v\n", err)
		return
	}
	fmt.Printf("Compacted: orphan ratio %.3f -> %.3f\n", before, components.Vectors.OrphanRatio())
}

func runReembed() {
	fs := flag.NewFlagSet("reembed", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	missing := fs.Bool("missing", false, "only embed fields that have no vector")
	fields := fs.String("fields", "", "comma separated fields to embed: title, description, image (default all)")
	batch := fs.Int("batch-size", 0, "records per storage batch")
	_ = fs.Parse(os.Args[2:])

	opts := indexer.ReembedOptions{MissingOnly: *missing, BatchSize: *batch}
	for _, f := range utils.SplitList(*fields) {
		field := identity.Field(f)
		if !field.Valid() {
			fatalf("Unknown field %q; use title, description or image", f)
		}
		opts.Fields = append(opts.Fields, field)
	}

	_, _, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := components.Indexer.Reembed(ctx, opts)
	if res != nil {
		fmt.Printf("Scanned %d, updated %d, skipped %d, failed %d (persisted: %t)\n",
			res.Scanned, res.Updated, res.Skipped, res.Failed, res.Persisted)
	}
	if err != nil {
		fmt.Printf("Re-embed stopped: %v\n", err)
	}
}

func runExport() {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	out := fs.String("out", "images.xlsx", "output .xlsx path")
	_ = fs.Parse(os.Args[2:])

	_, _, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	rows := 0
	err := utils.WriteFileAtomic(*out, func(w io.Writer) error {
		n, err := export.WriteXLSX(context.Background(), w, components.Storage)
		rows = n
		return err
	})
	if err != nil {
		fmt.Printf("Export failed: %v\n", err)
		return
	}
	fmt.Printf("Exported %d image(s) to %s\n", rows, *out)
}

func printUsage() {
	fmt.Println(`smartimagefinder - Local image catalogue with hybrid search

Usage:
  smartimagefinder server [flags]            Start the HTTP server
  smartimagefinder search [flags] <query>    Search images by text
  smartimagefinder similar [flags] <uuid>    Find images similar to a catalogued one
  smartimagefinder ingest [flags] <path>     Add an image file or directory
  smartimagefinder delete [flags] <uuid>...  Delete images
  smartimagefinder status [flags]            Show catalogue and index status
  smartimagefinder compact [flags]           Reclaim orphaned vector slots
  smartimagefinder reembed [flags]           Recompute vectors
  smartimagefinder export [flags]            Export the catalogue to .xlsx
  smartimagefinder version                   Show version
  smartimagefinder help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/smartimagefinder/config.yaml)
  --debug            Enable debug logging

Search and Similar Flags:
  --config string       Config file path (for direct storage mode)
  --server string       Server URL (default: http://localhost:8000). Use --server "" for direct storage.
  --limit int           Number of results (default from config, or 20)
  --tags string         Comma separated tags
  --start, --end        Creation date bounds (YYYY-MM-DD or RFC 3339)
  --output string       text, compact or json (default: text)
  --mode string         search only: text, vector or hybrid
  --text-match string   search only: title, description or combined
  --vector-type string  search only: title, description, image or combined
  --search-type string  similar only: title, description, image or combined

Reembed Flags:
  --missing             Only fill in missing vectors
  --fields string       Comma separated fields (title, description, image)
  --batch-size int      Records per storage batch

Examples:
  smartimagefinder server
  smartimagefinder search "sunset over mountains"
  smartimagefinder search --mode text --output json harbor
  smartimagefinder similar --search-type image 3f1c...
  smartimagefinder ingest ~/Pictures/holiday
  smartimagefinder reembed --missing
  smartimagefinder compact --threshold 0.3
  smartimagefinder export --out catalogue.xlsx`)
}
