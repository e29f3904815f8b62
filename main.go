package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"smartlauncher/internal/api"
	"smartlauncher/internal/auth"
	"smartlauncher/internal/config"
	"smartlauncher/internal/destination"
	"smartlauncher/internal/launcher"
	"smartlauncher/internal/models"
	"smartlauncher/internal/redis"
	"smartlauncher/internal/serializer"
	"smartlauncher/internal/storage"
	"smartlauncher/internal/store"
	"smartlauncher/internal/tabs"
	"smartlauncher/internal/transfer"
)

func main() {
	root := &cobra.Command{
		Use:           "smartlauncher",
		Short:         "Hand PDFs from the desktop to the LocalPDF web app",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var (
		headless    bool
		skipWelcome bool
	)
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the launcher daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(headless, skipWelcome)
		},
	}
	serve.Flags().BoolVar(&headless, "headless", false, "run the chromedp browser without a window")
	serve.Flags().BoolVar(&skipWelcome, "no-welcome", false, "do not open the first-run page")

	root.AddCommand(serve)
	addClientCommands(root)

	if err := root.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

func runServe(headless, skipWelcome bool) error {
	cfg, err := config.Load(os.Getenv("SMARTLAUNCHER_CONFIG"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	sealer, err := store.NewSealerFromEnv()
	if err != nil {
		return fmt.Errorf("init store sealer: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := transfer.NewMetrics(reg)

	opts := []store.Option{store.WithSweepHook(metrics.ObserveSwept)}
	if sealer != nil {
		opts = append(opts, store.WithSealer(sealer))
	}
	ttl := time.Duration(cfg.Transfer.SessionTTLSeconds) * time.Second
	st := store.New(backend, ttl, opts...)
	defer st.Close()
	st.StartSweeper(ctx, time.Duration(cfg.BasicConfig.SweepIntervalSeconds)*time.Second)

	urls, err := destination.NewBuilder(cfg.BasicConfig.DestinationURL, cfg.BasicConfig.Language)
	if err != nil {
		return err
	}
	origins := append([]string{cfg.BasicConfig.DestinationURL}, cfg.BasicConfig.AllowedOrigins...)
	authService := auth.NewService(cfg.BasicConfig.APIToken, origins)
	if !authService.Enabled() {
		log.Printf("api_token is not set; launch gestures are accepted from any local process")
	}

	var (
		browser   tabs.Browser
		tabServer api.TabServer
	)
	switch cfg.BasicConfig.BrowserDriver {
	case "chromedp":
		chrome, err := tabs.NewChrome(ctx, headless)
		if err != nil {
			return fmt.Errorf("start chrome: %w", err)
		}
		defer chrome.Close()
		browser = chrome
	default:
		hub := tabs.NewHub(
			tabs.WithForgetAfter(4*time.Duration(cfg.Transfer.TabReadyTimeoutSeconds)*time.Second),
			tabs.WithCheckOrigin(func(r *http.Request) bool {
				return authService.OriginAllowed(r.Header.Get("Origin"))
			}),
		)
		browser, tabServer = hub, hub
	}

	ser := serializer.New(models.PayloadEncoding(cfg.Transfer.PayloadEncoding))
	manager := transfer.NewManager(st, ser, browser, urls, transfer.ConfigFrom(cfg.Transfer), transfer.WithMetrics(metrics))
	fetcher := launcher.NewFetcher(nil, ser, cfg.Transfer.MaxBatchBytes)
	controller := launcher.New(browser, urls, manager, st, cfg.BasicConfig.DefaultTool, fetcher)

	handlers := api.NewHandler(controller, manager, tabServer, authService,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), cfg.Transfer.MaxBatchBytes)
	router := gin.Default()
	handlers.RegisterRoutes(router)

	srv := &http.Server{Addr: cfg.BasicConfig.ServerAddress, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("smartlauncher listening on %s (store=%s, browser=%s)", srv.Addr, cfg.BasicConfig.StoreBackend, cfg.BasicConfig.BrowserDriver)
		errCh <- srv.ListenAndServe()
	}()

	if !skipWelcome {
		go func() {
			if _, err := controller.Welcome(ctx); err != nil {
				log.Printf("welcome page: %v", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openBackend(cfg *config.Config) (store.Backend, error) {
	switch driver := cfg.BasicConfig.StoreBackend; driver {
	case "memory":
		return store.NewMemoryBackend(), nil
	case "redis":
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("create redis client: %w", err)
		}
		return store.NewRedisBackend(rdb), nil
	default:
		db, err := storage.Open(driver, cfg)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := storage.Migrate(db, driver); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		return store.NewSQLBackend(db, driver), nil
	}
}

func serverURL(cfg *config.Config) string {
	if u := os.Getenv("SMARTLAUNCHER_URL"); u != "" {
		return u
	}
	host := cfg.BasicConfig.ServerAddress
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	u := url.URL{Scheme: "http", Host: host}
	return u.String()
}
