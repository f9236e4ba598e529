package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/csrf"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sfaptracker/auth"
	"sfaptracker/catalog"
	"sfaptracker/config"
	"sfaptracker/db"
	"sfaptracker/directory"
	"sfaptracker/handlers"
	"sfaptracker/mail"
	"sfaptracker/progress"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.AppConfig
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.InitDB(ctx, cfg.DatabasePath, cfg.BuiltinAdmins)
	if err != nil {
		return err
	}
	defer conn.Close()

	seeded, err := catalog.EnsureSeeded(ctx, conn)
	if err != nil {
		return err
	}
	if seeded {
		logger.Info("seeded the built-in competency catalog")
	}

	auth.InitStore()
	if cfg.GeneratedSessionKey() {
		logger.Warn("no session_key configured; generated one, sessions will not survive a restart")
	}

	users := directory.NewService(conn, logger, mail.New(cfg.SMTP, logger), directory.Options{
		AppName:  cfg.AppName,
		BaseURL:  cfg.BaseURL,
		ResetTTL: cfg.ResetTokenTTL,
	})
	h := handlers.NewHandler(conn, users, progress.NewService(conn, logger), logger)
	h.CaptchaEnabled = cfg.CaptchaEnabled

	mux := http.NewServeMux()
	handlers.RegisterHandlers(mux, h)
	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           buildHandler(cfg, mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("app", cfg.AppName))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildHandler wraps the mux with the middleware stack, outermost first:
// request id, access log, CORS, CSRF, security headers.
func buildHandler(cfg config.Config, mux http.Handler) http.Handler {
	var h http.Handler = handlers.SecurityHeadersMiddleware(mux)

	if cfg.CSRFEnabled {
		protect := csrf.Protect(
			csrfKey(cfg.SessionKey),
			csrf.Secure(cfg.SecureCookies),
			csrf.Path("/"),
			csrf.SameSite(csrf.SameSiteLaxMode),
			csrf.TrustedOrigins(trustedOrigins(cfg.AllowedOrigins)),
			csrf.ErrorHandler(handlers.CSRFFailureHandler(logger)),
		)
		h = protect(h)
		if !cfg.SecureCookies {
			inner := h
			h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				inner.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
			})
		}
	}

	h = handlers.NewCORS(cfg.AllowedOrigins).Handler(h)
	h = handlers.RequestLogger(logger)(h)
	return handlers.RequestID(h)
}

// trustedOrigins reduces the configured origins to the host[:port] form
// gorilla/csrf compares against.
func trustedOrigins(origins []string) []string {
	var hosts []string
	for _, o := range origins {
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}

// csrfKey derives the 32-byte CSRF key from the session key.
func csrfKey(sessionKey string) []byte {
	sum := sha256.Sum256([]byte(sessionKey + "csrf"))
	return sum[:]
}
