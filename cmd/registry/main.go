package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/joho/godotenv"

	"github.com/ceramicnetwork/go-registry/common/config"
	"github.com/ceramicnetwork/go-registry/common/credits"
	"github.com/ceramicnetwork/go-registry/common/db"
	"github.com/ceramicnetwork/go-registry/common/gateway"
	"github.com/ceramicnetwork/go-registry/common/ipfs"
	"github.com/ceramicnetwork/go-registry/common/ledger"
	"github.com/ceramicnetwork/go-registry/common/loggers"
	"github.com/ceramicnetwork/go-registry/common/metrics"
	"github.com/ceramicnetwork/go-registry/common/notifs"
	"github.com/ceramicnetwork/go-registry/models"
	"github.com/ceramicnetwork/go-registry/services"
)

type lsCmd struct {
	Refresh bool `arg:"--refresh" help:"bypass the cached listing"`
}

type uploadCmd struct {
	Paths []string `arg:"positional,required" help:"files to upload"`
}

type registerCmd struct {
	Files []string `arg:"positional,required" help:"cid=name pairs of content already in the network"`
}

type unpinCmd struct {
	Files []string `arg:"positional,required" help:"cid=name pairs to stop storing"`
}

type watchCmd struct{}

type cliArgs struct {
	Ls       *lsCmd       `arg:"subcommand:ls" help:"list the account's files"`
	Upload   *uploadCmd   `arg:"subcommand:upload" help:"upload files and register them with the ledger"`
	Register *registerCmd `arg:"subcommand:register" help:"register existing CIDs with the ledger"`
	Unpin    *unpinCmd    `arg:"subcommand:unpin" help:"remove files from storage"`
	Watch    *watchCmd    `arg:"subcommand:watch" help:"keep the account's listing fresh until interrupted"`
	Account  string       `arg:"--account" help:"account to list (defaults to the signer's account)"`
	EnvFile  string       `arg:"--env-file" default:".env" help:"dotenv file to load"`
}

func main() {
	var args cliArgs
	parser := arg.MustParse(&args)
	if parser.Subcommand() == nil {
		parser.Fail("missing subcommand")
	}

	if err := godotenv.Load(args.EnvFile); err != nil && !os.IsNotExist(err) {
		log.Fatalf("registry: error loading %s: %v", args.EnvFile, err)
	}
	logger := loggers.NewLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("registry: invalid configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(ctx, cfg, args.Account, logger)
	if err != nil {
		logger.Fatalf("registry: startup failed: %v", err)
	}
	defer app.close()

	switch {
	case args.Ls != nil:
		err = app.ls(ctx, args.Ls.Refresh)
	case args.Upload != nil:
		err = app.upload(ctx, args.Upload.Paths)
	case args.Register != nil:
		err = app.register(ctx, args.Register.Files)
	case args.Unpin != nil:
		err = app.unpin(ctx, args.Unpin.Files)
	case args.Watch != nil:
		app.registry.Run(ctx)
	}
	if err != nil {
		if errors.Is(err, models.ErrInsufficientCredits) {
			logger.Errorf("registry: out of credits, top up the account and retry")
		}
		logger.Errorf("registry: %v", err)
		app.close()
		logger.Sync()
		os.Exit(1)
	}
}

type app struct {
	account       string
	logger        models.Logger
	metricService models.MetricService
	ledgerClient  *ledger.Client
	snapshotDb    *db.SnapshotDatabase
	registry      *services.RegistryService
	uploader      *services.UploadService
	unpinner      *services.UnpinService
	staleAfter    time.Duration
	closed        bool
}

func newApp(ctx context.Context, cfg *config.Config, account string, logger models.Logger) (*app, error) {
	metricService, err := metrics.NewOtelMetricService(ctx, loggers.Named(logger, "metrics"))
	if err != nil {
		return nil, err
	}
	a := &app{logger: logger, metricService: metricService, staleAfter: cfg.PendingStaleAfter}

	if a.ledgerClient, err = ledger.Dial(ctx, cfg.LedgerRpcUrl, cfg.LedgerSignerKey); err != nil {
		return nil, err
	}
	a.account = account
	if len(a.account) == 0 {
		a.account = a.ledgerClient.Account()
	}

	var store models.ContentStore
	if len(cfg.IpfsApiMultiaddr) > 0 {
		if store, err = ipfs.NewIpfsApi(loggers.Named(logger, "ipfs"), cfg.IpfsApiMultiaddr); err != nil {
			return nil, err
		}
	} else {
		store = gateway.NewClient(loggers.Named(logger, "gateway"), cfg.GatewayUrl, &http.Client{})
	}

	var snapshots models.SnapshotStore = services.NewMemorySnapshotStore()
	if len(cfg.SnapshotDbPath) > 0 {
		if a.snapshotDb, err = db.NewSnapshotDb(cfg.SnapshotDbPath); err != nil {
			return nil, err
		}
		snapshots = a.snapshotDb
	}

	notifier, err := notifs.NewDiscordHandler(loggers.Named(logger, "notifs"))
	if err != nil {
		return nil, err
	}

	registryLogger := loggers.Named(logger, "registry")
	pending := services.NewPendingTracker(cfg.PendingStaleAfter)
	reconciler := services.NewReconciliationService(
		services.NewChainIndexService(a.ledgerClient, loggers.Named(logger, "ledger"), metricService),
		services.NewManifestService(store, loggers.Named(logger, "manifest"), metricService),
		snapshots,
		pending,
		registryLogger,
		metricService,
	)
	a.registry = services.NewRegistryService(
		reconciler,
		services.NewSnapshotCache(cfg.CacheSize, cfg.CacheTtl),
		pending,
		cfg.CacheRefreshInterval,
		notifier,
		registryLogger,
		metricService,
	)
	a.uploader = services.NewUploadService(services.UploadServiceOpts{
		Account:       a.account,
		Store:         store,
		Ledger:        a.ledgerClient,
		Credits:       services.NewCreditsGate(credits.NewClient(cfg.CreditsUrl, a.account, &http.Client{}), loggers.Named(logger, "credits"), metricService),
		Invalidator:   a.registry,
		Pending:       pending,
		Concurrency:   cfg.UploadConcurrency,
		OnEvent:       a.logEvent,
		Notifier:      notifier,
		Logger:        loggers.Named(logger, "upload"),
		MetricService: metricService,
	})
	a.unpinner = services.NewUnpinService(a.account, a.ledgerClient, a.registry, loggers.Named(logger, "unpin"), metricService)
	return a, nil
}

func (a *app) close() {
	if a.closed {
		return
	}
	a.closed = true
	a.metricService.Shutdown(context.Background())
	if a.snapshotDb != nil {
		if err := a.snapshotDb.Close(); err != nil {
			a.logger.Warnf("registry: error closing snapshot db: %v", err)
		}
	}
	a.ledgerClient.Close()
}

func (a *app) ls(ctx context.Context, refresh bool) error {
	snapshot, err := a.registry.Files(ctx, a.account, refresh)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCID\tSIZE\tCREATED\tSTATUS")
	for _, file := range snapshot.Files {
		size := "-"
		if file.SizeBytes != nil {
			size = fmt.Sprint(*file.SizeBytes)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", file.Name, file.Cid, size, file.CreatedAt, a.status(file))
	}
	fmt.Fprintf(w, "\ntotal stored bytes: %d\n", snapshot.TotalStoredBytes)
	return w.Flush()
}

func (a *app) status(file models.FileEntry) string {
	switch {
	case services.IsStale(file, time.Now(), a.staleAfter):
		return "failed"
	case file.IsPending():
		return "pending"
	case file.IsAssigned:
		return "stored"
	default:
		return "unassigned"
	}
}

func (a *app) upload(ctx context.Context, paths []string) error {
	items := make([]models.UploadItem, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}
		items = append(items, models.UploadItem{Name: filepath.Base(path), Reader: f, Size: info.Size()})
	}
	return a.submit(ctx, items)
}

func (a *app) register(ctx context.Context, pairs []string) error {
	items := make([]models.UploadItem, 0, len(pairs))
	for _, pair := range pairs {
		cid, name, err := splitPair(pair)
		if err != nil {
			return err
		}
		items = append(items, models.UploadItem{Name: name, Cid: cid})
	}
	return a.submit(ctx, items)
}

func (a *app) submit(ctx context.Context, items []models.UploadItem) error {
	result, err := a.uploader.Upload(ctx, items)
	if err != nil {
		return err
	}
	for _, file := range result.Files {
		fmt.Printf("%s\t%s\n", file.Cid, file.FileName)
	}
	fmt.Printf("manifest\t%s\n", result.ManifestCid)
	return nil
}

func (a *app) unpin(ctx context.Context, pairs []string) error {
	requests := make([]models.UnpinRequest, 0, len(pairs))
	for _, pair := range pairs {
		cid, name, err := splitPair(pair)
		if err != nil {
			return err
		}
		requests = append(requests, models.UnpinRequest{Cid: cid, FileName: name})
	}
	return a.unpinner.Unpin(ctx, requests)
}

func (a *app) logEvent(event models.UploadEvent) {
	if event.Err != nil {
		return
	}
	a.logger.Infof("upload %s: %s %d%%", event.JobId, event.State, event.Progress)
}

func splitPair(pair string) (string, string, error) {
	cid, name, found := strings.Cut(pair, "=")
	if !found || len(cid) == 0 || len(name) == 0 {
		return "", "", fmt.Errorf("expected cid=name, got %q", pair)
	}
	return cid, name, nil
}
