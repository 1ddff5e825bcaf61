package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hanamilabs/admin-promoter-bot/internal/app"
	"github.com/hanamilabs/admin-promoter-bot/internal/config"
	"github.com/hanamilabs/admin-promoter-bot/internal/logging"
	"github.com/hanamilabs/admin-promoter-bot/internal/service"
	"github.com/hanamilabs/admin-promoter-bot/internal/storage"
	"github.com/hanamilabs/admin-promoter-bot/internal/telegram"
)

const maxRetryDelay = 30 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "promoter: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if len(args) == 0 {
		return runServe()
	}

	if args[0] == "--migrate" {
		return runMigrate()
	}

	switch args[0] {
	case "serve":
		return runServe()
	case "migrate":
		return runMigrate()
	case "bootstrap":
		return runBootstrap(args[1:])
	case "import-json":
		return runImportJSON(args[1:])
	case "resolve":
		return runResolve(args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runServe() error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer registry.Close()

	telegramAPI := telegram.NewAPI(cfg.BotToken, cfg.HTTPTimeout, time.Duration(cfg.BotPollingIntervalS)*time.Second)
	self, err := telegramAPI.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("identify bot: %w", err)
	}
	logger.Info("bot identified", "bot_user_id", self.ID, "bot_username", self.Username)

	retry := service.NewRetryPolicy(cfg.ProbeMaxRetries, retryBackoff(cfg))
	invites := service.NewInviteTracker(logger, cfg.InviteTimeout)
	prober := service.NewPrivilegeProber(logger, telegramAPI, self.ID, retry, cfg.ProbeReferenceUserID)
	resolver := service.NewMembershipResolver(logger, telegramAPI, invites, cfg.InviteLinkTTL)
	promotions := service.NewPromotionService(logger, telegramAPI, registry, prober, resolver, invites, retry)
	registryService := service.NewRegistryService(logger, telegramAPI, registry, self.ID)
	sweeper := service.NewAdminSweeper(logger, registryService, cfg.AdminSweepInterval)

	events := service.NewMemberEvents()
	events.Subscribe(registryService)
	events.Subscribe(invites)

	controlService := service.NewControlService(ctx, service.NewResolveService(telegramAPI), registryService, promotions, invites, sweeper)
	commandService := service.NewCommandService(logger, telegramAPI, controlService, events, cfg.AdminUserIDs, cfg.InviteTimeout)

	if cfg.AdminSweepAutoStart {
		controlService.StartSweep()
	}

	server := app.NewHealthServer(cfg, logger, func(ctx context.Context) error {
		return telegram.CheckConnectivity(ctx, cfg.BotToken, cfg.HTTPTimeout)
	})
	server.SetControlService(controlService)
	var webhookServer *http.Server

	errCh := make(chan error, 3)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	if cfg.BotTransport == "polling" {
		if err := telegramAPI.DeleteWebhook(ctx); err != nil {
			logger.Warn("delete webhook failed before polling", "error", err)
		}
		go func() {
			errCh <- telegramAPI.PollUpdates(ctx, commandService.HandleUpdate)
		}()
	} else {
		if err := telegramAPI.SetupWebhook(ctx, cfg.WebhookURL); err != nil {
			return err
		}
		webhookPath := telegramAPI.WebhookPath(cfg.WebhookURL)
		mux := http.NewServeMux()
		mux.HandleFunc(webhookPath, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "invalid body", http.StatusBadRequest)
				return
			}
			update, err := telegramAPI.ParseWebhookUpdate(body)
			if err != nil {
				http.Error(w, "invalid update", http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusOK)
			// Detached from the request so long promotions do not hold the webhook open.
			go commandService.HandleUpdate(ctx, update)
		})
		webhookServer = &http.Server{Addr: cfg.WebhookListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			errCh <- webhookServer.ListenAndServe()
		}()
	}

	logger.Info("promoter serving",
		"transport", cfg.BotTransport,
		"registry_backend", cfg.RegistryBackend,
		"control_endpoint", fmt.Sprintf("127.0.0.1:%d", cfg.HealthPort),
		"operators", len(cfg.AdminUserIDs),
	)

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		logger.Info("shutting down promoter", "pending_invites", len(invites.List()))
		if webhookServer != nil {
			if err := webhookServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil && !app.IsServerClosed(err) {
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) || app.IsServerClosed(err) {
			return nil
		}
		return err
	}
}

func retryBackoff(cfg config.Config) func(int) time.Duration {
	if cfg.ProbeBackoff == "exponential" {
		return service.ExponentialBackoff(cfg.ProbeRetryDelay, maxRetryDelay)
	}
	return service.FixedBackoff(cfg.ProbeRetryDelay)
}

func runMigrate() error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	registry, err := storage.Open(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer registry.Close()

	chats, err := registry.ListChats(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("migration complete (backend=%s chats=%d)\n", cfg.RegistryBackend, len(chats))
	return nil
}

func runImportJSON(args []string) error {
	fs := flag.NewFlagSet("import-json", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var path string
	fs.StringVar(&path, "path", "", "chat registry JSON file to import (defaults to REGISTRY_JSON_PATH)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(path) == "" {
		path = cfg.RegistryJSONPath
	}
	if cfg.RegistryBackend == "json" {
		return errors.New("import-json needs REGISTRY_BACKEND=sqlite or mongo")
	}

	registry, err := storage.Open(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer registry.Close()

	stats, err := storage.ImportJSON(context.Background(), path, registry)
	if err != nil {
		return err
	}

	fmt.Printf("import complete: chats=%d skipped=%d\n", stats.Chats, stats.Skipped)
	return nil
}

func runBootstrap(args []string) error {
	fs := flag.NewFlagSet("bootstrap", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var envPath string
	fs.StringVar(&envPath, "env-file", ".env", "path to output .env file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	values := map[string]string{
		"BOT_TOKEN":                    cfg.BotToken,
		"ADMIN_USER_IDS":               joinInt64(cfg.AdminUserIDs),
		"BOT_TRANSPORT":                cfg.BotTransport,
		"WEBHOOK_URL":                  cfg.WebhookURL,
		"WEBHOOK_LISTEN_ADDR":          cfg.WebhookListenAddr,
		"BOT_POLLING_INTERVAL_SECONDS": strconv.Itoa(cfg.BotPollingIntervalS),
		"DATA_DIR":                     cfg.DataDir,
		"REGISTRY_BACKEND":             cfg.RegistryBackend,
		"REGISTRY_JSON_PATH":           cfg.RegistryJSONPath,
		"MONGO_URI":                    cfg.MongoURI,
		"MONGO_DB_NAME":                cfg.MongoDBName,
		"HTTP_TIMEOUT_MS":              strconv.FormatInt(cfg.HTTPTimeout.Milliseconds(), 10),
		"HEALTH_PORT":                  strconv.Itoa(cfg.HealthPort),
		"LOG_LEVEL":                    cfg.LogLevel,
		"PROBE_MAX_RETRIES":            strconv.Itoa(cfg.ProbeMaxRetries),
		"PROBE_RETRY_DELAY_MS":         strconv.FormatInt(cfg.ProbeRetryDelay.Milliseconds(), 10),
		"PROBE_BACKOFF":                cfg.ProbeBackoff,
		"PROBE_REFERENCE_USER_ID":      formatOptionalID(cfg.ProbeReferenceUserID),
		"INVITE_TIMEOUT_SECONDS":       strconv.Itoa(int(cfg.InviteTimeout / time.Second)),
		"INVITE_LINK_TTL_SECONDS":      strconv.Itoa(int(cfg.InviteLinkTTL / time.Second)),
		"ADMIN_SWEEP_INTERVAL_MINUTES": strconv.Itoa(int(cfg.AdminSweepInterval / time.Minute)),
		"ADMIN_SWEEP_AUTOSTART":        strconv.FormatBool(cfg.AdminSweepAutoStart),
	}

	if err := godotenv.Write(values, envPath); err != nil {
		return err
	}
	if err := os.Chmod(envPath, 0o600); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", envPath)
	return nil
}

func formatOptionalID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func joinInt64(values []int64) string {
	if len(values) == 0 {
		return ""
	}
	parts := make([]string, 0, len(values))
	for _, value := range values {
		parts = append(parts, strconv.FormatInt(value, 10))
	}
	return strings.Join(parts, ",")
}

func runResolve(args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var usernamesValue string
	fs.StringVar(&usernamesValue, "usernames", "", "comma or space separated @usernames")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(usernamesValue) == "" {
		return errors.New("--usernames is required")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	telegramAPI := telegram.NewAPI(cfg.BotToken, cfg.HTTPTimeout, 0)
	resolveService := service.NewResolveService(telegramAPI)
	unresolved := 0
	for _, username := range splitUsernames(usernamesValue) {
		user, err := resolveService.Target(context.Background(), username)
		if err != nil {
			unresolved++
			fmt.Printf("unresolved %s: %v\n", username, err)
			continue
		}
		fmt.Printf("resolved %s -> %d\n", username, user.ID)
	}

	if unresolved > 0 {
		fmt.Println("manual steps:")
		fmt.Println("1) Ask the user to message the bot, then retry")
		fmt.Println("2) Use @userinfobot to get the numeric ID")
		fmt.Println("3) Pass the numeric ID to /promote instead of the username")
	}

	return nil
}

func splitUsernames(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	usernames := make([]string, 0, len(fields))
	for _, raw := range fields {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "@") {
			trimmed = "@" + trimmed
		}
		usernames = append(usernames, strings.ToLower(trimmed))
	}
	return usernames
}

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))
}
