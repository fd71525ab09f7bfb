package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/tempuscache/cachekit"
	"github.com/tempuscache/cachekit/config"
)

// rootOptions holds the flags every subcommand shares. AddFlags takes a
// *pflag.FlagSet directly, the same shape jessesanford-kcp's
// TMCControllerOptions.AddFlags uses for its controller options, rather than
// relying on cobra to hide pflag behind Command.Flags().
type rootOptions struct {
	diskDir    string
	configPath string
}

func (o *rootOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.diskDir, "disk-dir", "", "overflow-to-disk directory for caches not covered by --config (empty disables the disk tier)")
	fs.StringVar(&o.configPath, "config", "", "path to a HuJSON cache configuration file; overrides --disk-dir for any cache it configures")
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "cachectl",
		Short: "Exercise a cachekit cache from the command line",
	}
	opts.AddFlags(cmd.PersistentFlags())

	cmd.AddCommand(newDemoCommand(opts))
	cmd.AddCommand(newPutCommand(opts))
	cmd.AddCommand(newGetCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	return cmd
}

// buildManager constructs a Manager for name, rooted either at --disk-dir or,
// when --config names a cache or a default_cache section, at the config's
// resolved disk path. This is the bridge review comment called for: without
// it config.Load/ResolvedCacheConfig were never reachable from anything but
// their own package tests.
func buildManager(opts *rootOptions, name string, logger *zap.Logger) (*cachekit.Manager, []cachekit.Option, error) {
	mgr := cachekit.NewManager(logger)

	if opts.configPath == "" {
		if opts.diskDir != "" {
			mgr.SetDiskStorePath(opts.diskDir)
		}
		return mgr, nil, nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config %q: %w", opts.configPath, err)
	}

	cc, ok := cfg.ResolvedCacheConfig(name)
	if !ok {
		cc, err = cfg.ResolveDefault()
		if err != nil {
			return nil, nil, fmt.Errorf("resolving configuration for cache %q: %w", name, err)
		}
		cc.Name = name
	}

	diskCachePath, err := cfg.ResolveDiskCachePath()
	if err != nil {
		return nil, nil, fmt.Errorf("resolving disk cache path: %w", err)
	}

	// Unlike the --disk-dir path, the config's disk root is applied only to
	// caches that actually ask for overflow-to-disk (cacheOptionsFromConfig
	// already does this explicitly), not as a Manager-wide default — a
	// config entry with overflow_to_disk=false must stay memory-only.
	return mgr, cacheOptionsFromConfig(cc, diskCachePath), nil
}

// cacheOptionsFromConfig translates a resolved config.CacheConfig into the
// functional Options the engine actually understands.
func cacheOptionsFromConfig(cc config.CacheConfig, diskCachePath string) []cachekit.Option {
	opts := []cachekit.Option{
		cachekit.WithEternal(cc.Eternal),
		cachekit.WithTimeToIdleSeconds(cc.TimeToIdleSeconds),
		cachekit.WithTimeToLiveSeconds(cc.TimeToLiveSeconds),
	}
	if cc.MaxElementsInMemory != 0 {
		opts = append(opts, cachekit.WithMaxElementsInMemory(cc.MaxElementsInMemory))
	}
	if cc.OverflowToDisk {
		opts = append(opts,
			cachekit.WithOverflowToDisk(diskCachePath),
			cachekit.WithDiskPersistent(cc.DiskPersistent),
			cachekit.WithDiskExpiryIntervalSeconds(cc.DiskExpiryThreadIntervalSeconds),
		)
	}
	return opts
}

// getOrCreateCache first checks whether name is already registered with mgr
// (exercising Manager.GetCacheErr) and otherwise adds it with opts; every
// subcommand below goes through this instead of calling AddCache directly.
func getOrCreateCache(mgr *cachekit.Manager, name string, opts []cachekit.Option) (*cachekit.Cache, error) {
	c, err := mgr.GetCacheErr(name)
	if errors.Is(err, cachekit.ErrNotFound) {
		return mgr.AddCache(name, opts...)
	}
	return c, err
}

// newDemoCommand reproduces the teacher's standalone walkthrough (set a
// value, read it back, wait past expiry, observe the resulting miss) against
// the two-tier cachekit.Cache API instead of a single-tier map.
func newDemoCommand(opts *rootOptions) *cobra.Command {
	var ttlSeconds int64

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a short put/get/expire walkthrough against a throwaway cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewDevelopment()
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			cacheOpts := []cachekit.Option{
				cachekit.WithMaxElementsInMemory(100),
				cachekit.WithTimeToLiveSeconds(ttlSeconds),
				cachekit.WithLogger(logger),
			}
			if opts.diskDir != "" {
				cacheOpts = append(cacheOpts, cachekit.WithOverflowToDisk(opts.diskDir))
			}

			c, err := cachekit.New("cachectl-demo", cacheOpts...)
			if err != nil {
				return fmt.Errorf("creating cache: %w", err)
			}
			defer c.Dispose() //nolint:errcheck

			key := "greeting"
			if err := c.Put(cachekit.NewElement(key, []byte("hello, cache"))); err != nil {
				return fmt.Errorf("put: %w", err)
			}
			fmt.Printf("put %q\n", key)

			if e, ok, err := c.Get(key); err != nil {
				return fmt.Errorf("get: %w", err)
			} else if ok {
				fmt.Printf("get %q -> %q (hit count %d)\n", key, e.Value(), e.HitCount())
			}

			wait := time.Duration(ttlSeconds+1) * time.Second
			fmt.Printf("sleeping %s past the configured ttl...\n", wait)
			time.Sleep(wait)

			if _, ok, err := c.Get(key); err != nil {
				return fmt.Errorf("get after expiry: %w", err)
			} else if ok {
				fmt.Println("unexpected hit after expiry")
			} else {
				fmt.Println("expired as expected: miss")
			}

			stats := c.Stats()
			fmt.Printf("stats: hits=%d memory_hits=%d disk_hits=%d miss_not_found=%d miss_expired=%d\n",
				stats.HitCount, stats.MemoryStoreHitCount, stats.DiskStoreHitCount, stats.MissCountNotFound, stats.MissCountExpired)

			return nil
		},
	}
	cmd.Flags().Int64Var(&ttlSeconds, "ttl-seconds", 2, "time-to-live for the demo key, in seconds")
	return cmd
}

// newPutCommand stores a single key/value pair in a named, disk-persistent
// cache so a later `cachectl get` invocation (a fresh process) can observe
// it.
func newPutCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <cache> <key> <value>",
		Short: "Store a value under key in the named cache",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, key, value := args[0], args[1], args[2]

			logger := zap.NewNop()
			mgr, cacheOpts, err := buildManager(opts, name, logger)
			if err != nil {
				return err
			}
			defer mgr.Shutdown() //nolint:errcheck

			// WithDiskPersistent is a no-op unless a disk tier is also
			// configured (via --config or --disk-dir), so this is safe to
			// always append.
			cacheOpts = append(cacheOpts, cachekit.WithDiskPersistent(true))

			c, err := getOrCreateCache(mgr, name, cacheOpts)
			if err != nil {
				return fmt.Errorf("opening cache %q: %w", name, err)
			}

			if err := c.Put(cachekit.NewElement(key, []byte(value))); err != nil {
				return fmt.Errorf("put: %w", err)
			}
			fmt.Printf("put %q into %q\n", key, name)
			return nil
		},
	}
}

// newGetCommand looks a key up in a named cache, reporting a miss with exit
// code 1 rather than treating it as a command error.
func newGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <cache> <key>",
		Short: "Look a key up in the named cache",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, key := args[0], args[1]

			logger := zap.NewNop()
			mgr, cacheOpts, err := buildManager(opts, name, logger)
			if err != nil {
				return err
			}
			defer mgr.Shutdown() //nolint:errcheck

			c, err := getOrCreateCache(mgr, name, append(cacheOpts, cachekit.WithDiskPersistent(true)))
			if err != nil {
				return fmt.Errorf("opening cache %q: %w", name, err)
			}

			e, ok, err := c.Get(key)
			if err != nil {
				return fmt.Errorf("get: %w", err)
			}
			if !ok {
				fmt.Printf("miss: %q not found in %q\n", key, name)
				os.Exit(1)
			}
			fmt.Printf("%s\n", e.Value())
			return nil
		},
	}
}

// newStatsCommand prints a named cache's hit/miss counters as a one-shot
// snapshot; for a continuously running process, prefer `serve`'s /metrics.
func newStatsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <cache>",
		Short: "Print hit/miss counters for the named cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			logger := zap.NewNop()
			mgr, cacheOpts, err := buildManager(opts, name, logger)
			if err != nil {
				return err
			}
			defer mgr.Shutdown() //nolint:errcheck

			c, err := getOrCreateCache(mgr, name, append(cacheOpts, cachekit.WithDiskPersistent(true)))
			if err != nil {
				return fmt.Errorf("opening cache %q: %w", name, err)
			}

			stats := c.Stats()
			fmt.Printf("cache=%s hits=%d memory_hits=%d disk_hits=%d miss_not_found=%d miss_expired=%d\n",
				name, stats.HitCount, stats.MemoryStoreHitCount, stats.DiskStoreHitCount, stats.MissCountNotFound, stats.MissCountExpired)
			return nil
		},
	}
}

// newServeCommand keeps a named cache alive behind a Prometheus /metrics
// endpoint until interrupted, exercising Cache.Collector() and Manager's
// signal-driven Shutdown together in one long-running process.
func newServeCommand(opts *rootOptions) *cobra.Command {
	var name, addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a long-lived named cache behind an HTTP /metrics endpoint until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewDevelopment()
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			mgr, cacheOpts, err := buildManager(opts, name, logger)
			if err != nil {
				return err
			}
			defer mgr.Shutdown() //nolint:errcheck

			c, err := getOrCreateCache(mgr, name, cacheOpts)
			if err != nil {
				return fmt.Errorf("opening cache %q: %w", name, err)
			}

			reg := prometheus.NewRegistry()
			if err := reg.Register(c.Collector()); err != nil {
				return fmt.Errorf("registering collector: %w", err)
			}

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			srv := &http.Server{Addr: addr, Handler: mux}

			serveErr := make(chan error, 1)
			go func() { serveErr <- srv.ListenAndServe() }()
			logger.Info("cachectl serve listening", zap.String("addr", addr), zap.String("cache", name))

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case <-sigCh:
				logger.Info("received shutdown signal")
			case err := <-serveErr:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("metrics server: %w", err)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&name, "name", "cachectl-serve", "name of the cache to serve")
	cmd.Flags().StringVar(&addr, "addr", ":9090", "address to serve /metrics on")
	return cmd
}
