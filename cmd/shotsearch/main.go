// Package main is the shotsearch CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shotsearch/internal/app"
	"github.com/hyperjump/shotsearch/internal/bus"
	"github.com/hyperjump/shotsearch/internal/cli"
	"github.com/hyperjump/shotsearch/internal/config"
	"github.com/hyperjump/shotsearch/internal/models"
	"github.com/hyperjump/shotsearch/internal/server"
	"github.com/hyperjump/shotsearch/internal/shot"
	"github.com/hyperjump/shotsearch/internal/transcript"
	"github.com/hyperjump/shotsearch/internal/watcher"
	"github.com/hyperjump/shotsearch/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/shotsearch/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory wins if it exists, so running from a checkout uses the
// project's config. Returns the config and the path actually loaded.
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
	case "ingest":
		runIngest()
	case "submit":
		runSubmit()
	case "job":
		runJob()
	case "segment":
		runSegment()
	case "sample":
		runSample()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("shotsearch version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads the config, creates the logger and builds the application.
func setup(configPath string, debugFlag bool) (*app.App, string) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return a, resolved
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	a, resolved := setup(*configPath, *debug)
	defer a.Close()
	logger := a.Logger
	defer logger.Sync()
	cfg := a.Config
	logger.Info("config loaded",
		zap.String("config_path", resolved),
		zap.String("store", cfg.Storage.Backend),
		zap.String("catalog", cfg.Catalog.Backend),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var watch *watcher.Watcher
	if cfg.Ingest.WatchDir != "" {
		watch = watcher.NewWatcher(cfg.Ingest.WatchDir,
			func(ctx context.Context, path string, m *models.Manifest) error {
				_, err := a.Pipeline.Ingest(ctx, m)
				return err
			},
			watcher.WithLogger(utils.Named(logger, "watcher")),
		)
		if err := watch.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
	}

	var consumer *bus.Consumer
	if cfg.Ingest.NATS.URL != "" {
		nc, err := bus.Connect(cfg.Ingest.NATS.URL, utils.Named(logger, "nats"))
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer nc.Close()
		consumer = bus.NewConsumer(nc, cfg.Ingest.NATS.Subject, a.Pipeline, bus.WithLogger(utils.Named(logger, "bus")))
		if err := consumer.Start(); err != nil {
			logger.Fatal("Failed to subscribe", zap.Error(err))
		}
	}

	srv := server.NewServer(a.Engine, a.Pipeline, a.Catalog, cfg, utils.Named(logger, "server"),
		server.WithVersion(version))
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watch != nil {
		watch.Stop()
	}
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.Warn("nats drain failed", zap.Error(err))
		}
	}
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = srv.Stop(stopCtx)
	a.Pipeline.Wait()
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: shotsearch search [flags] <query>\n")
	fmt.Fprintf(fs.Output(), "       shotsearch search [flags] --image <file>\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Double-quoted phrases must appear verbatim in a shot's names, description or transcript.

Examples:
  shotsearch search press conference outside city hall
  shotsearch search '"Jane Doe" at a podium'
  shotsearch search --image still.png --output json
`)
}

// buildSearchQuery joins positional args so multi-word queries work with or
// without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves flags that follow the query to the front so that
// flag.Parse sees them; the flag package stops at the first non-flag argument.
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

// imagePayload reads an image file and returns it base64 encoded.
func imagePayload(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("image %s is empty", path)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = search the configured store directly)")
	imagePath := fs.String("image", "", "search by this image instead of text")
	index := fs.String("index", "", "shot index to search (default from config)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var query *models.SearchQuery
	if *imagePath != "" {
		payload, err := imagePayload(*imagePath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		query = models.NewImageQuery(payload)
	} else {
		text := buildSearchQuery(fs.Args())
		if text == "" {
			printSearchUsage(fs)
			os.Exit(1)
		}
		query = models.NewTextQuery(text)
	}
	query.Index = *index

	var response *models.SearchResponse
	if *serverURL != "" {
		// The server holds the local store open; go through it.
		response = new(models.SearchResponse)
		err = postJSON(*serverURL+"/api/v1/search", query, response)
	} else {
		a, _ := setup(*configPath, false)
		defer a.Close()
		response, err = a.Engine.Search(context.Background(), query)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// runIngest runs a manifest to completion in this process.
func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: shotsearch ingest [flags] <manifest.json>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	m, err := watcher.LoadManifest(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid manifest: %v\n", err)
		os.Exit(1)
	}

	a, _ := setup(*configPath, *debug)
	defer a.Close()
	defer a.Logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	job, err := a.Pipeline.Ingest(ctx, m)
	if job != nil {
		_ = cli.WriteJob(os.Stdout, job, format)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
}

// runSubmit hands a manifest to a running server, over HTTP or the job bus.
func runSubmit() {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	natsURL := fs.String("nats", "", "publish to this NATS server instead of calling the HTTP API")
	subject := fs.String("subject", bus.DefaultSubject, "NATS subject for jobs")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: shotsearch submit [flags] <manifest.json>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	m, err := watcher.LoadManifest(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid manifest: %v\n", err)
		os.Exit(1)
	}

	if *natsURL != "" {
		nc, err := bus.Connect(*natsURL, zap.NewNop())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
			os.Exit(1)
		}
		defer nc.Close()
		if err := bus.Submit(context.Background(), nc, *subject, m); err != nil {
			fmt.Fprintf(os.Stderr, "Publish failed: %v\n", err)
			os.Exit(1)
		}
		if err := nc.Flush(); err != nil {
			fmt.Fprintf(os.Stderr, "Publish failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Published manifest for %s on %s\n", m.VideoName, *subject)
		return
	}

	var job models.Job
	if err := postJSON(*serverURL+"/api/v1/jobs", m, &job); err != nil {
		fmt.Fprintf(os.Stderr, "Submit failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteJob(os.Stdout, &job, format)
}

// runJob shows a job, or its transcript with --transcript.
func runJob() {
	fs := flag.NewFlagSet("job", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	showTranscript := fs.Bool("transcript", false, "print the job's transcript sentences")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: shotsearch job [flags] <job-id>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	base := *serverURL + "/api/v1/jobs/" + url.PathEscape(fs.Arg(0))

	if *showTranscript {
		var out struct {
			Sentences []models.Sentence `json:"sentences"`
		}
		if err := getJSON(base+"/transcript", &out); err != nil {
			fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
			os.Exit(1)
		}
		_ = cli.WriteSentences(os.Stdout, out.Sentences, format)
		return
	}
	var job models.Job
	if err := getJSON(base, &job); err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteJob(os.Stdout, &job, format)
}

// runSegment prints the sentences of an SRT file.
func runSegment() {
	fs := flag.NewFlagSet("segment", flag.ExitOnError)
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: shotsearch segment [flags] <captions.srt>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	raw, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read captions: %v\n", err)
		os.Exit(1)
	}
	sentences, err := transcript.Segment(string(raw))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Segment failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteSentences(os.Stdout, sentences, format)
}

// parseFrameRange reads the start and end frame arguments of the sample command.
func parseFrameRange(args []string) (models.ShotSegment, error) {
	if len(args) != 2 {
		return models.ShotSegment{}, fmt.Errorf("expected <start-frame> <end-frame>")
	}
	start, err := strconv.Atoi(args[0])
	if err != nil {
		return models.ShotSegment{}, fmt.Errorf("invalid start frame %q", args[0])
	}
	end, err := strconv.Atoi(args[1])
	if err != nil {
		return models.ShotSegment{}, fmt.Errorf("invalid end frame %q", args[1])
	}
	if start < 0 || end < start {
		return models.ShotSegment{}, fmt.Errorf("invalid frame range %d-%d", start, end)
	}
	return models.ShotSegment{StartFrame: start, EndFrame: end}, nil
}

// runSample prints the frames sampled for a shot.
func runSample() {
	fs := flag.NewFlagSet("sample", flag.ExitOnError)
	n := fs.Int("n", shot.DefaultSampleCount, "frames to sample")
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	seg, err := parseFrameRange(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\nUsage: shotsearch sample [-n N] <start-frame> <end-frame>\n", err)
		os.Exit(1)
	}
	frames, err := shot.SampleFrames(seg, *n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sample failed: %v\n", err)
		os.Exit(1)
	}
	strs := make([]string, len(frames))
	for i, f := range frames {
		strs[i] = strconv.Itoa(f)
	}
	fmt.Println(strings.Join(strs, " "))
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var status struct {
		Version string         `json:"version"`
		Jobs    int64          `json:"jobs"`
		Config  map[string]any `json:"config,omitempty"`
	}
	if err := getJSON(*serverURL+"/api/v1/status", &status); err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if format == cli.OutputJSON {
		_ = cli.WriteJSON(os.Stdout, status)
		return
	}
	fmt.Printf("version:  %s\n", status.Version)
	fmt.Printf("jobs:     %d\n", status.Jobs)
	if len(status.Config) > 0 {
		fmt.Println()
		fmt.Println("# configuration")
		keys := make([]string, 0, len(status.Config))
		for k := range status.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%-18s %v\n", k+":", status.Config[k])
		}
	}
}

func postJSON(u string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := http.Post(u, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return decodeResponse(resp, out)
}

func getJSON(u string, out any) error {
	resp, err := http.Get(u)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func printUsage() {
	fmt.Println(`shotsearch - search video shots by text, phrase or image

Usage:
  shotsearch <command> [flags] [arguments]

Commands:
  server                   Start the HTTP server (with manifest watcher and job bus when configured)
  search <query>           Search shots by text; use --image <file> for image search
  ingest <manifest.json>   Index a video's shots and transcript in this process
  submit <manifest.json>   Submit a manifest to a running server or the job bus
  job <job-id>             Show a job, or its transcript with --transcript
  segment <captions.srt>   Print the sentences built from an SRT file
  sample <start> <end>     Print the frames sampled for a shot
  status                   Show server status
  version                  Show version
  help                     Show this help

Run 'shotsearch <command> -h' for command flags.`)
}
