package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/bandcoach/internal/attempt"
	"github.com/pavelanni/bandcoach/internal/content"
	"github.com/pavelanni/bandcoach/internal/gate"
	"github.com/pavelanni/bandcoach/internal/handler"
	appI18n "github.com/pavelanni/bandcoach/internal/i18n"
	"github.com/pavelanni/bandcoach/internal/llm"
	"github.com/pavelanni/bandcoach/internal/model"
	"github.com/pavelanni/bandcoach/internal/report"
	"github.com/pavelanni/bandcoach/internal/store"
)

const (
	shutdownTimeout = 15 * time.Second
	pruneInterval   = time.Minute
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bandcoach",
		Short: "IELTS Writing practice server with model-based band scoring",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP practice server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "bandcoach.db", "SQLite database path")
	f.String("llm-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the model endpoint (or set BANDCOACH_LLM_KEY)")
	f.String("llm-model", "gpt-4o-mini", "Chat model used for grading and tools")
	f.String("llm-speech-model", "tts-1", "Speech synthesis model")
	f.String("llm-voice", "alloy", "Speech synthesis voice")
	f.Duration("llm-timeout", attempt.DefaultTimeout, "Timeout for one evaluation call")
	f.Int("llm-rate-limit-retries", 0, "Retries after a rate-limited model call")
	f.StringP("lang", "l", "en", "Default UI language (en, ru)")
	f.String("access-code", "", "Access code, plain or bcrypt hash (empty disables unlocking)")
	f.Bool("require-access", false, "Require an unlocked profile to submit")
	f.Bool("credits-enabled", true, "Spend one credit per successful evaluation")
	f.Int("initial-credits", gate.DefaultInitialCredits, "Credit balance after creation or refill")
	f.Int("history-cap", store.DefaultHistoryCap, "Maximum submissions kept per profile")
	f.String("session-secret", "", "Secret signing profile cookies (default: generated and stored in the database)")
	f.Bool("secure-cookies", true, "Set Secure flag on profile cookies")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /ru)")
	f.StringSlice("cors-origins", nil, "Allowed CORS origins for a separately hosted front end")
	f.String("content-dir", "", "Directory with faq.yaml, contact.yaml or updates.yaml overrides")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a profile's submission history",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "bandcoach.db", "SQLite database path")
	f.String("profile", "", "Profile identifier (required)")
	f.String("format", "json", "Output format (json, markdown)")
	f.StringP("lang", "l", "en", "Language of markdown output (en, ru)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("BANDCOACH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("bandcoach")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/bandcoach")
	v.AddConfigPath("/etc/bandcoach")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// normalizeBasePath returns "" or a path with a leading and no trailing slash.
func normalizeBasePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	catalog, err := content.Load(v.GetString("content-dir"))
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}

	llmClient := llm.New(llm.Config{
		BaseURL:          v.GetString("llm-url"),
		APIKey:           v.GetString("llm-key"),
		Model:            v.GetString("llm-model"),
		SpeechModel:      v.GetString("llm-speech-model"),
		Voice:            v.GetString("llm-voice"),
		RateLimitRetries: v.GetInt("llm-rate-limit-retries"),
	})
	if llmClient.Configured() {
		pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := llmClient.Ping(pingCtx)
		cancel()
		if err != nil {
			// Submissions report the failure per attempt; the server still starts.
			slog.Warn("LLM health check failed", "url", v.GetString("llm-url"), "error", err)
		} else {
			slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
		}
	} else {
		slog.Warn("no LLM API key configured; evaluations will fail until llm-key is set")
	}

	cfg := model.AppConfig{
		RequireAccess:  v.GetBool("require-access"),
		CreditsEnabled: v.GetBool("credits-enabled"),
		InitialCredits: v.GetInt("initial-credits"),
		HistoryCap:     v.GetInt("history-cap"),
		BasePath:       normalizeBasePath(v.GetString("base-path")),
		SecureCookies:  v.GetBool("secure-cookies"),
		AllowedOrigins: v.GetStringSlice("cors-origins"),
	}

	g, err := gate.New(db, v.GetString("access-code"), cfg.InitialCredits)
	if err != nil {
		return fmt.Errorf("create gate: %w", err)
	}
	if cfg.RequireAccess && v.GetString("access-code") == "" {
		slog.Warn("require-access is set but no access code is configured; no profile can unlock")
	}

	registry := attempt.NewRegistry(attempt.Deps{
		Drafts:    db,
		Ledger:    db,
		Gate:      g,
		Evaluator: llmClient,
	}, attempt.Options{
		RequireAccess:  cfg.RequireAccess,
		CreditsEnabled: cfg.CreditsEnabled,
		HistoryCap:     cfg.HistoryCap,
		Timeout:        v.GetDuration("llm-timeout"),
	})
	defer registry.Close()

	secret := v.GetString("session-secret")
	if secret == "" {
		if secret, err = db.SessionSecret(); err != nil {
			return fmt.Errorf("session secret: %w", err)
		}
	}

	h, err := handler.New(handler.Deps{
		Store:    db,
		LLM:      llmClient,
		Gate:     g,
		Attempts: registry,
		Content:  catalog,
		Secret:   secret,
	}, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Accept-Language", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Content-Language", "Retry-After", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	basePath := cfg.BasePath
	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	eg, egCtx := errgroup.WithContext(ctx)

	profiles, err := db.ProfileCount()
	if err != nil {
		return fmt.Errorf("count profiles: %w", err)
	}

	eg.Go(func() error {
		return registry.Run(egCtx, pruneInterval, attempt.DefaultIdleTTL)
	})
	eg.Go(func() error {
		slog.Info("starting server",
			"addr", addr,
			"model", v.GetString("llm-model"),
			"llm_url", v.GetString("llm-url"),
			"lang", lang,
			"require_access", cfg.RequireAccess,
			"credits_enabled", cfg.CreditsEnabled,
			"initial_credits", cfg.InitialCredits,
			"history_cap", cfg.HistoryCap,
			"base_path", basePath,
			"profiles", profiles,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return eg.Wait()
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	profileID := v.GetString("profile")
	export, err := db.ExportHistory(profileID)
	if err != nil {
		return fmt.Errorf("export history: %w", err)
	}
	if export.Count == 0 {
		slog.Warn("profile has no submissions", "profile", profileID)
	}

	var data []byte
	switch strings.ToLower(v.GetString("format")) {
	case "json":
		data, err = json.MarshalIndent(export, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
	case "markdown", "md":
		lang := v.GetString("lang")
		if err := appI18n.Init(lang); err != nil {
			return fmt.Errorf("init i18n: %w", err)
		}
		subs, err := db.ListSubmissions(profileID)
		if err != nil {
			return fmt.Errorf("list submissions: %w", err)
		}
		ctx := appI18n.WithLang(context.Background(), lang)
		ctx = appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(lang))
		data = []byte(report.HistoryMarkdown(ctx, export, subs))
	default:
		return fmt.Errorf("unknown format %q (want json or markdown)", v.GetString("format"))
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)

	slog.Info("history exported", "profile", profileID, "count", export.Count)
	return nil
}
