package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"multidl/internal/config"
	"multidl/internal/domain"
	"multidl/internal/downloader"
	"multidl/internal/history"
	"multidl/internal/pathutil"
	"multidl/internal/progress"
)

const (
	version         = "0.1.0"
	renderPrecision = 10 * time.Millisecond
)

var (
	flagURLs    string
	flagDest    string
	flagWorkers int
	flagClean   bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "multidl [urls...]",
		Short:         "A concurrent and configurable multi-file downloader with progress tracking",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBatch,
	}

	root.Flags().StringVarP(&flagURLs, "urls", "u", "", "Comma-separated list of URLs to download")
	root.Flags().StringVarP(&flagDest, "dest", "d", ".", "Destination folder")
	root.Flags().IntVarP(&flagWorkers, "workers", "w", 0, "Number of concurrent workers (default: CPU count)")
	root.Flags().BoolVarP(&flagClean, "clean", "c", false, "Clean destination folder if it exists")

	root.AddCommand(newCompletionCmd(root), newHistoryCmd())
	return root
}

func runBatch(cmd *cobra.Command, args []string) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlags(cmd, &cfg)

	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}

	urls := parseURLs(flagURLs)
	for _, a := range args {
		urls = append(urls, parseURLs(a)...)
	}
	urls = dedupe(urls)
	if len(urls) == 0 {
		return fmt.Errorf("no URLs provided")
	}

	dest, err := pathutil.PrepareDest(cfg.Download.Dest, cfg.Download.Clean)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := downloader.NewManager(downloader.Config{
		DestDir: dest,
		Workers: cfg.Download.Workers,
		Logger:  logger,
	})
	startedAt := manager.Aggregator().StartedAt()

	renderer := progress.NewRenderer(manager.Aggregator())
	renderer.Start()
	summary, err := manager.Run(ctx, urls)
	renderer.Stop()
	if err != nil {
		return err
	}

	logger.Infof("downloaded %d/%d files (%s) to %s in %s, %s/s average",
		summary.Completed, len(urls),
		humanize.Bytes(uint64(summary.TotalBytes)),
		dest,
		summary.Elapsed.Round(renderPrecision),
		humanize.Bytes(uint64(summary.Throughput())))

	for _, f := range summary.Failures {
		logger.Errorf("failed: %s: %v", f.URL, f.Err)
	}

	if cfg.History.Path != "" {
		// the signal context may already be cancelled; the journal write
		// should still land
		if err := recordHistory(context.Background(), cfg.History.Path, startedAt, summary, manager); err != nil {
			logger.Warnf("record history: %v", err)
		}
	}

	// partial failures are reported, not fatal: the batch ran to completion
	return nil
}

func recordHistory(ctx context.Context, path string, startedAt time.Time, summary *domain.Summary, manager *downloader.Manager) error {
	store, err := history.Open(pathutil.Expand(path))
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Init(ctx); err != nil {
		return err
	}
	_, err = store.RecordBatch(ctx, startedAt, summary, manager.Tasks())
	return err
}

// applyFlags lets explicitly set command-line flags override config values.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("dest") {
		cfg.Download.Dest = flagDest
	}
	if cmd.Flags().Changed("workers") {
		cfg.Download.Workers = flagWorkers
	}
	if cmd.Flags().Changed("clean") {
		cfg.Download.Clean = flagClean
	}
}

// parseURLs splits a comma-separated list, dropping blanks and anything that
// does not parse as an absolute http(s) URL.
func parseURLs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		u, err := url.Parse(part)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		out = append(out, u.String())
	}
	return out
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	var out []string
	for _, u := range urls {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}
