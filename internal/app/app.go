// Package app wires the processing components into one Runtime.
//
// A Runtime is built once per process from a validated configuration and
// owns everything the pipeline touches: the store, the template store,
// the remote client, the trigger watcher and the backfill worker. There is
// no process-wide state; commands build a Runtime and pass it down.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/roach88/docpost/internal/backfill"
	"github.com/roach88/docpost/internal/config"
	"github.com/roach88/docpost/internal/docstore"
	"github.com/roach88/docpost/internal/fault"
	"github.com/roach88/docpost/internal/gate"
	"github.com/roach88/docpost/internal/logs"
	"github.com/roach88/docpost/internal/pipeline"
	"github.com/roach88/docpost/internal/proxy"
	"github.com/roach88/docpost/internal/remote"
	"github.com/roach88/docpost/internal/taskqueue"
	"github.com/roach88/docpost/internal/template"
	"github.com/roach88/docpost/internal/trigger"
	"github.com/roach88/docpost/internal/updater"
)

// Options are the process-level settings that are not part of Config.
type Options struct {
	// DBPath is the SQLite database file.
	DBPath string

	Logger     *slog.Logger
	HTTPClient *http.Client

	// Clock defaults to time.Now.
	Clock func() time.Time

	// PollInterval overrides how often watchers poll the database.
	PollInterval time.Duration

	// Worker overrides the backfill worker configuration.
	Worker *taskqueue.WorkerConfig
}

// Runtime holds the wired components.
type Runtime struct {
	Config config.Config
	Logs   *logs.Logger

	Store *docstore.Store

	// Templates is nil when results are written without a template.
	Templates *template.Store

	Remote   *remote.Client
	Pipeline *pipeline.Pipeline
	Updater  *updater.Updater

	Trigger *trigger.Handler
	Watcher *trigger.Watcher

	Queue      *taskqueue.Queue
	Worker     *taskqueue.Worker
	Dispatcher *backfill.Dispatcher
	Backfill   *backfill.Handler

	opts   Options
	cancel context.CancelFunc
}

// New validates cfg and builds a Runtime. Any configuration problem is an
// INVALID_CONFIGURATION fault. Close releases the runtime.
func New(ctx context.Context, cfg config.Config, opts Options) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.DBPath == "" {
		return nil, fault.New(fault.CodeInvalidConfiguration, "database path is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	lg := logs.New(opts.Logger)
	lg.Init(cfg)

	strategy, err := gate.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInvalidConfiguration, err, "update strategy")
	}
	url, err := cfg.EndpointURL()
	if err != nil {
		return nil, err
	}
	src, err := cfg.TemplateSource()
	if err != nil {
		return nil, err
	}

	retry := docstore.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.TransactionMaxAttempts
	storeOpts := []docstore.Option{docstore.WithRetryPolicy(retry), docstore.WithClock(opts.Clock)}
	if opts.PollInterval > 0 {
		storeOpts = append(storeOpts, docstore.WithPollInterval(opts.PollInterval))
	}
	store, err := docstore.Open(opts.DBPath, storeOpts...)
	if err != nil {
		return nil, err
	}

	rctx, cancel := context.WithCancel(ctx)
	rt := &Runtime{Config: cfg, Logs: lg, Store: store, opts: opts, cancel: cancel}

	if src.Kind != config.TemplateNone {
		rt.Templates, err = template.FromSource(rctx, src, store, opts.Logger)
		if err != nil {
			rt.Close()
			return nil, err
		}
	}

	var clientOpts []remote.Option
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, remote.WithHTTPClient(opts.HTTPClient))
	}
	rt.Remote = remote.New(url, cfg.BearerToken, clientOpts...)

	rt.Pipeline = pipeline.New(rt.Remote, pipeline.Options{
		InputField:    cfg.InputField,
		OutputField:   cfg.OutputField,
		VersionField:  cfg.VersionField,
		ResponseField: cfg.ResponseField,
		Strategy:      strategy,
		Templates:     rt.Templates,
	})
	rt.Updater = updater.New(store, cfg.OutputField, cfg.VersionField, lg)

	rt.Trigger = trigger.NewHandler(rt.Pipeline, rt.Updater, cfg.InputField, cfg.OutputField, lg)
	rt.Watcher = trigger.NewWatcher(store, rt.Trigger, trigger.WatcherConfig{
		Collection:  cfg.Collection,
		Consumer:    cfg.InstanceID + ":trigger",
		Concurrency: cfg.TriggerConcurrency,
	}, opts.Logger)

	rt.Queue = taskqueue.New(store, cfg.InstanceID+":"+backfill.QueueName)
	rt.Dispatcher = backfill.NewDispatcher(store, rt.Pipeline, rt.Updater, backfill.Config{
		Enabled:     cfg.DoBackfill,
		Collection:  cfg.Collection,
		BatchSize:   cfg.BatchSize,
		Concurrency: cfg.TriggerConcurrency,
	}, backfill.WithClock(opts.Clock), backfill.WithLogger(lg))
	rt.Backfill = backfill.NewHandler(rt.Dispatcher, rt.Queue, store, cfg.InstanceID, lg)

	workerCfg := taskqueue.DefaultWorkerConfig()
	if opts.Worker != nil {
		workerCfg = *opts.Worker
	}
	if opts.PollInterval > 0 {
		workerCfg.PollInterval = opts.PollInterval
	}
	rt.Worker = taskqueue.NewWorker(rt.Queue, rt.Backfill, workerCfg, opts.Logger)

	return rt, nil
}

// Run watches the collection and works the backfill queue until ctx is
// done. Returns nil on cancellation, or the first component error.
func (rt *Runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	var wg sync.WaitGroup
	for name, run := range map[string]func(context.Context) error{
		"watcher": rt.Watcher.Run,
		"worker":  rt.Worker.Run,
	} {
		name, run := name, run
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errc <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}
	wg.Wait()
	close(errc)
	return <-errc
}

// StartBackfill enqueues the first dispatch of a new backfill job.
func (rt *Runtime) StartBackfill(ctx context.Context) (backfill.Progress, error) {
	return rt.Backfill.Start(ctx)
}

// DrainBackfill works the backfill queue until no dispatch is pending.
func (rt *Runtime) DrainBackfill(ctx context.Context) error {
	return rt.Worker.Drain(ctx)
}

// Proxy builds the proxy server from the proxy configuration.
func (rt *Runtime) Proxy() (*proxy.Server, error) {
	pc := rt.Config.Proxy
	if pc.APIURL == "" {
		return nil, fault.New(fault.CodeInvalidConfiguration, "proxy api_url is required")
	}
	var clientOpts []remote.Option
	if rt.opts.HTTPClient != nil {
		clientOpts = append(clientOpts, remote.WithHTTPClient(rt.opts.HTTPClient))
	}
	client := remote.New(pc.APIURL, pc.APIKey, clientOpts...)

	defaults := proxy.Defaults{Method: pc.HTTPMethod, Headers: pc.Headers}
	if pc.Body != "" {
		defaults.Body = pc.Body
	}
	var serverOpts []proxy.Option
	if pc.ConfigDocument != "" {
		path, err := docstore.CleanPath(pc.ConfigDocument)
		if err != nil {
			return nil, fault.Wrap(fault.CodeInvalidConfiguration, err, "proxy config_document")
		}
		serverOpts = append(serverOpts, proxy.WithConfigDocument(rt.Store, path))
	}
	return proxy.New(client, defaults, rt.opts.Logger, serverOpts...), nil
}

// Close stops the template subscription and closes the store.
func (rt *Runtime) Close() error {
	rt.cancel()
	return rt.Store.Close()
}
