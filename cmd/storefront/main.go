// Command storefront is a terminal client for the clinic's online store.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/vetclinic/storefront/internal/cache"
	"github.com/vetclinic/storefront/internal/cart"
	"github.com/vetclinic/storefront/internal/cartsync"
	"github.com/vetclinic/storefront/internal/cli"
	"github.com/vetclinic/storefront/internal/config"
	serrors "github.com/vetclinic/storefront/internal/errors"
	"github.com/vetclinic/storefront/internal/metrics"
	"github.com/vetclinic/storefront/internal/middleware"
	"github.com/vetclinic/storefront/internal/remote"
	"github.com/vetclinic/storefront/internal/session"
	"github.com/vetclinic/storefront/pkg/logger"
)

const program = "storefront"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		cli.NewPrinter(os.Stderr).Error("%s", serrors.UserMessage(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet(program, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { cli.Usage(stderr, program) }

	var (
		configPath  = fs.String("config", "", "Path to YAML configuration (default ./storefront.yaml if present)")
		envFile     = fs.String("env", ".env", "Path to .env file")
		apiURL      = fs.String("api-url", "", "Storefront API base URL")
		demo        = fs.Bool("demo", false, "Use the built-in catalog and keep the cart locally")
		logLevel    = fs.String("log-level", "", "Log level: debug|info|warn|error")
		logFormat   = fs.String("log-format", "", "Log format: text|json")
		metricsAddr = fs.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		return err
	}
	if *apiURL != "" {
		cfg.API.BaseURL = *apiURL
	}
	if *demo {
		cfg.Demo = true
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	lc := cfg.Logger(program)
	lc.Output = stderr
	log := logger.New(lc)

	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	a, err := newApp(ctx, cfg, log, cli.NewPrinter(stdout))
	if err != nil {
		return err
	}
	defer a.close()

	return a.dispatch(ctx, fs.Args())
}

func serveMetrics(addr string, log *logger.Logger) *http.Server {
	r := mux.NewRouter()
	r.Use(middleware.Logging(log.Named("metrics")))
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	log.WithField("addr", addr).Info("serving metrics")
	return srv
}

// catalog is the product source: the remote catalog or the demo one.
type catalog interface {
	List(ctx context.Context) ([]remote.Product, error)
	Get(ctx context.Context, productID string) (remote.Product, error)
}

type app struct {
	cfg     *config.Config
	log     *logger.Logger
	out     *cli.Printer
	cache   cache.Cache
	svc     *remote.Services
	catalog catalog
	session *session.Manager
	sync    *cartsync.Synchronizer
	demo    *demoCartFile
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger, out *cli.Printer) (*app, error) {
	a := &app{cfg: cfg, log: log, out: out}
	c := cart.NewManager()

	if cfg.Demo {
		a.catalog = newDemoCatalog()
		a.demo = &demoCartFile{path: filepath.Join(filepath.Dir(cfg.Session.File), "demo-cart.json")}
		if err := a.demo.load(c); err != nil {
			return nil, err
		}
		a.session = session.NewManager(nil, session.FileStore{Path: cfg.Session.File}, c, log.Named("session"))
		a.sync = cartsync.New(c, cartsync.Config{MaxPerAdd: cfg.Cart.MaxPerAdd, Logger: log.Named("cartsync")})
		return a, nil
	}

	if cfg.Cache.RedisURL != "" {
		r, err := cache.NewRedis(ctx, cfg.Cache.RedisURL, cfg.Cache.Prefix)
		if err != nil {
			return nil, err
		}
		a.cache = r
	} else {
		a.cache = cache.NewMemory()
	}

	var sess *session.Manager
	svc, err := remote.NewServices(cfg.HTTP(func() string { return sess.Token() }, log.Named("http")), cfg.Endpoints(), a.cache, cfg.Cache.CatalogTTL)
	if err != nil {
		return nil, err
	}
	sess = session.NewManager(svc.Auth, session.FileStore{Path: cfg.Session.File}, c, log.Named("session"))
	if _, err := sess.Load(); err != nil {
		log.WithError(err).Warn("could not restore session")
	}

	a.svc = svc
	a.catalog = svc.Catalog
	a.session = sess
	a.sync = cartsync.New(c, cartsync.Config{
		Cart:      svc.Cart,
		Orders:    svc.Orders,
		Catalog:   svc.Catalog,
		MaxPerAdd: cfg.Cart.MaxPerAdd,
		Logger:    log.Named("cartsync"),
	})
	return a, nil
}

func (a *app) close() {
	if closer, ok := a.cache.(io.Closer); ok {
		_ = closer.Close()
	}
}
