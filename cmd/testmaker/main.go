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
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/testmaker/internal/activity"
	"github.com/pavelanni/testmaker/internal/auth"
	"github.com/pavelanni/testmaker/internal/handler"
	appI18n "github.com/pavelanni/testmaker/internal/i18n"
	"github.com/pavelanni/testmaker/internal/llm"
	"github.com/pavelanni/testmaker/internal/store"
	"github.com/pavelanni/testmaker/internal/webhook"
)

const shutdownTimeout = 10 * time.Second

// sessionClaimsNote is appended to the token flag help. Default provider
// session tokens carry no email, so the template must add it.
const sessionClaimsNote = "tokens must carry an email claim (and optionally name) for /api/auth/sync"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "testmaker",
		Short: "AI test generation and grading backend",
	}

	serve := serveCmd()
	root.AddCommand(serve, statsCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `testmaker --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":3000", "HTTP listen address")
	f.String("db", "testmaker.db", "SQLite database path")
	f.String("llm-url", llm.DefaultBaseURL, "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for LLM (or set TESTMAKER_LLM_KEY)")
	f.String("llm-model", llm.DefaultModel, "LLM model name")
	f.Duration("llm-timeout", 60*time.Second, "Timeout for each generation or grading call")
	f.Bool("skip-llm-ping", false, "Skip the LLM health check at startup")
	f.String("jwt-public-key", "", "RS256 public key for session tokens (PEM text or file path); "+sessionClaimsNote)
	f.String("jwt-secret", "", "HS256 secret for session tokens (local development); "+sessionClaimsNote)
	f.String("jwt-issuer", "", "Required iss claim of session tokens")
	f.StringSlice("jwt-authorized-parties", nil, "Allowed azp claims of session tokens (repeatable); tokens without azp are rejected when set")
	f.String("webhook-secret", "", "Signing secret for user webhooks (whsec_...)")
	f.String("frontend-url", "", "Additional frontend origin allowed by CORS")
	f.StringP("lang", "l", "en", "Default response language (en, ru)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the activity summary of one user as JSON",
		RunE:  runStats,
	}
	f := cmd.Flags()
	f.String("db", "testmaker.db", "SQLite database path")
	f.String("user", "", "External (identity provider) user ID (required)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("user")

	return cmd
}

// configPaths are searched in order for testmaker.{yaml,toml,json}.
var configPaths = []string{".", "$HOME/.config/testmaker", "/etc/testmaker"}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)
	level := parseLogLevel(v.GetString("log-level"))
	slog.SetDefault(slog.New(newLogHandler(v.GetString("log-format"), os.Stderr, level)))
}

// parseLogLevel accepts slog level names, case-insensitively. Anything else
// is treated as info.
func parseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func newLogHandler(format string, w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// viperForCmd layers flags, TESTMAKER_* environment variables and an optional
// config file for one command.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("TESTMAKER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("testmaker")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	case !errors.As(err, &notFound):
		slog.Warn("error reading config file", "error", err)
	}
	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	// Open database.
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	users, err := db.UserCount(cmd.Context())
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	slog.Info("database ready", "path", v.GetString("db"), "users", users)

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Create LLM client.
	llmClient := llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"))
	if v.GetBool("skip-llm-ping") {
		slog.Warn("skipping LLM health check")
	} else {
		pingCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := llmClient.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	}

	identity, err := auth.NewVerifier(auth.Config{
		PublicKeyPEM:      v.GetString("jwt-public-key"),
		Secret:            v.GetString("jwt-secret"),
		Issuer:            v.GetString("jwt-issuer"),
		AuthorizedParties: v.GetStringSlice("jwt-authorized-parties"),
	})
	if err != nil {
		return fmt.Errorf("create token verifier: %w", err)
	}

	var hooks handler.WebhookVerifier
	if secret := v.GetString("webhook-secret"); secret != "" {
		wv, err := webhook.NewVerifier(secret)
		if err != nil {
			return fmt.Errorf("create webhook verifier: %w", err)
		}
		hooks = wv
	} else {
		slog.Warn("webhook secret not configured, user webhooks will be rejected")
	}

	h := handler.New(db, llmClient, identity, hooks, handler.Config{
		LLMTimeout: v.GetDuration("llm-timeout"),
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(handler.CORS(v.GetString("frontend-url")))
	r.Use(appI18n.Middleware)
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"model", v.GetString("llm-model"),
			"llm_url", v.GetString("llm-url"),
			"llm_timeout", v.GetDuration("llm-timeout"),
			"lang", lang,
			"frontend_url", v.GetString("frontend-url"),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	externalID := v.GetString("user")
	user, err := db.GetUserByExternalID(ctx, externalID)
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user %q not found", externalID)
	}

	summary, err := activity.ForOwner(ctx, db, user.ID, time.Now())
	if err != nil {
		return fmt.Errorf("build summary: %w", err)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(data)); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
