package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.ngrok.com/ngrok"
	ngrokconfig "golang.ngrok.com/ngrok/config"

	"setlistify/auth"
	appConfig "setlistify/config"
	"setlistify/database"
	"setlistify/gemini"
	"setlistify/handlers"
	"setlistify/pipeline"
	"setlistify/sentry"
	"setlistify/sentryhelper"
	"setlistify/setlistfm"
	"setlistify/spotify"
)

const sessionMaxAge = 30 * 24 * time.Hour

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debugf("No .env file loaded: %v", err)
	}
	appConfig.NewConfig()
	setupLogging(appConfig.Config.Options.LogLevel)

	if err := sentry.Init(appConfig.Config.Sentry); err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		sentry.ReportFatal(err)
		log.Fatal(err)
	}
}

func setupLogging(level string) {
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		TimestampFormat: time.RFC3339,
		FieldsOrder:     []string{"module", "run", "path", "status"},
	})
	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}

func run(ctx context.Context) error {
	cfg := appConfig.Config

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	go purgeSessions(ctx, db)

	cookies := auth.CookieOptions{Secure: cfg.Session.CookieSecure}
	oauthConfig := auth.NewOAuthConfig(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.Spotify.RedirectURI, cfg.Spotify.AccountsURL)
	httpClient := &http.Client{Timeout: 15 * time.Second}
	refresher := auth.NewOAuthRefresher(oauthConfig, httpClient)

	var extractor pipeline.Extractor
	if cfg.Gemini.IsEnabled() {
		client, err := gemini.NewClient(ctx, cfg.Gemini.APIKey)
		if err != nil {
			return err
		}
		extractor = gemini.NewExtractor(client, cfg.Gemini.Models, cfg.Gemini.Backoff)
		log.Infof("Image recognition enabled with models %v", cfg.Gemini.Models)
	} else {
		log.Warn("GEMINI_API_KEY not set, image input disabled")
	}

	p := pipeline.New(pipeline.Options{
		Extractor: extractor,
		Setlists:  setlistfm.NewScraper(cfg.Setlist.AllowedHosts, nil),
		History:   db,
		APIURL:    cfg.Spotify.APIURL,
		Matcher: spotify.MatcherOptions{
			Market:        cfg.Spotify.Market,
			Limit:         cfg.Spotify.SearchLimit,
			Concurrency:   cfg.Spotify.SearchConcurrency,
			RatePerSecond: 10,
		},
	})

	sessions := handlers.CookieSessions(cookies, nil)
	if cfg.Session.Backend == appConfig.SessionBackendSQLite {
		sessions = handlers.SQLiteSessions(db, cookies)
	}

	opts := handlers.Options{
		Pipeline:  p,
		Login:     auth.NewLogin(oauthConfig, cookies, httpClient),
		Refresher: refresher,
		Sessions:  sessions,
		APIURL:    cfg.Spotify.APIURL,
		History:   db,
		Health:    db,
	}
	if cfg.Service.IsEnabled() {
		opts.Service = auth.NewServiceTokens(auth.NewMemoryCache(nil), serviceRefresher(cfg, refresher, httpClient), cfg.Service.RefreshToken)
		opts.AdminPassword = cfg.Service.AdminPassword
		opts.ServiceUserID = cfg.Service.UserID
		log.Info("Service account playlists enabled")
	}

	router := gin.New()
	router.Use(gin.Recovery(), sentry.GetSentryGin())
	handlers.NewManager(opts).Register(router)

	if cfg.Tunnel.IsEnabled() {
		listener, err := ngrok.Listen(ctx,
			ngrokconfig.HTTPEndpoint(
				ngrokconfig.WithDomain(cfg.Tunnel.NgrokDomain),
			),
			ngrok.WithAuthtokenFromEnv(), // defaults to NGROK_AUTHTOKEN
		)
		if err != nil {
			return err
		}

		log.Infof("Ngrok URL: %s", listener.URL())
		return serve(ctx, &http.Server{Handler: router}, func(s *http.Server) error { return s.Serve(listener) })
	}

	port := cfg.Options.Port
	if port == "" {
		port = "8080"
	}
	log.Infof("Starting server on :%s", port)
	srv := &http.Server{Addr: ":" + port, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	return serve(ctx, srv, (*http.Server).ListenAndServe)
}

// serviceRefresher uses the service account's own app credentials when set.
func serviceRefresher(cfg *appConfig.ConfigStruct, fallback auth.Refresher, httpClient *http.Client) auth.Refresher {
	if cfg.Service.ClientID == "" {
		return fallback
	}
	oauthConfig := auth.NewOAuthConfig(cfg.Service.ClientID, cfg.Service.ClientSecret, cfg.Spotify.RedirectURI, cfg.Spotify.AccountsURL)
	return auth.NewOAuthRefresher(oauthConfig, httpClient)
}

func serve(ctx context.Context, srv *http.Server, start func(*http.Server) error) error {
	errCh := make(chan error, 1)
	go func() { errCh <- start(srv) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// purgeSessions drops server-side sessions untouched for longer than a
// refresh token cookie would live.
func purgeSessions(ctx context.Context, db *database.Database) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		taskCtx, tx := sentryhelper.StartTaskTransaction(ctx, "sessions.purge", "task.purge")
		n, err := db.PurgeSessions(taskCtx, time.Now().Add(-sessionMaxAge))
		if err != nil {
			log.Errorf("Failed to purge sessions: %v", err)
			sentryhelper.CaptureException(taskCtx, err)
		} else if n > 0 {
			log.Debugf("Purged %d stale sessions", n)
		}
		tx.Finish()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
