// Package main is the entry point for the mail-to-Telegram relay. Each
// invocation processes the unread mail once and exits; run it from cron or
// a systemd timer.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata"

	"golang.org/x/term"

	"github.com/shineum/mail2telegram/internal/config"
	"github.com/shineum/mail2telegram/internal/credential"
	"github.com/shineum/mail2telegram/internal/email"
	"github.com/shineum/mail2telegram/internal/forwarder"
	"github.com/shineum/mail2telegram/internal/mailbox"
	"github.com/shineum/mail2telegram/internal/metrics"
	"github.com/shineum/mail2telegram/internal/parser"
	"github.com/shineum/mail2telegram/internal/relay"
	"github.com/shineum/mail2telegram/internal/telegram"
	"github.com/shineum/mail2telegram/internal/telegram/botapi"
	"github.com/shineum/mail2telegram/internal/telegram/stdout"
	mtls "github.com/shineum/mail2telegram/internal/tls"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	envPath := flag.String("env", ".env", "path to a .env file loaded into the environment (ignored if missing)")
	dryRun := flag.Bool("dry-run", false, "print Telegram requests instead of sending them and leave mail unread")
	storeSecret := flag.String("store-secret", "", "read a secret from stdin, store it in the keyring under this key and exit")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		slog.Error("failed to load env file", "path", *envPath, "error", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.Relay.DryRun = true
	}

	// Setup structured logging
	setupLogger(cfg.Logging.Level)

	if *storeSecret != "" {
		if err := storeSecretFromStdin(cfg, *storeSecret); err != nil {
			slog.Error("failed to store secret", "key", *storeSecret, "error", err)
			os.Exit(1)
		}
		slog.Info("secret stored in keyring", "key", *storeSecret, "service", cfg.Credentials.Service)
		return
	}

	if cfg.Credentials.Keyring {
		store, err := credential.Open(cfg.Credentials.Service, cfg.Credentials.FilePassword)
		if err != nil {
			slog.Error("failed to open keyring", "error", err)
			os.Exit(1)
		}
		if err := cfg.ResolveSecrets(store.Get); err != nil {
			slog.Error("failed to resolve secrets", "error", err)
			os.Exit(1)
		}
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	loc, _ := cfg.Location()

	tlsConfig, err := mtls.ClientConfig(mtls.ClientOptions{
		ServerName:         cfg.IMAPHost(),
		CAFile:             cfg.IMAP.CAFile,
		InsecureSkipVerify: cfg.IMAP.InsecureSkipVerify,
	})
	if err != nil {
		slog.Error("failed to setup TLS", "error", err)
		os.Exit(1)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, stopping after the current step", "signal", sig)
		cancel()
	}()

	m := metrics.New()
	sender := selectSender(cfg)
	fwd := forwarder.New(sender, forwarder.Config{
		Destination:       cfg.Destination(),
		MaxAttempts:       cfg.Relay.MaxAttempts,
		DefaultRetryAfter: cfg.Relay.DefaultRetryAfter,
		Metrics:           m,
	})

	slog.Info("starting mail2telegram",
		"imap_server", cfg.IMAPAddress(),
		"mailbox", cfg.IMAP.Mailbox,
		"sender", sender.Name(),
		"chat_id", cfg.Telegram.GroupID,
		"topic_id", cfg.Telegram.TopicID,
		"dry_run", cfg.Relay.DryRun,
	)

	mb, err := mailbox.Dial(ctx, mailbox.Config{
		Address:   cfg.IMAPAddress(),
		Username:  cfg.IMAP.Account,
		Password:  cfg.IMAP.Password,
		Mailbox:   cfg.IMAP.Mailbox,
		StartTLS:  cfg.IMAP.StartTLS,
		TLSConfig: tlsConfig,
	})
	if err != nil {
		slog.Error("failed to open mailbox",
			"error", err,
			"auth_failure", errors.Is(err, mailbox.ErrAuth),
		)
		os.Exit(1)
	}

	var source relay.Source = mb
	if cfg.Relay.DryRun {
		source = relay.KeepUnread(mb)
	}
	parse := func(raw []byte) (*email.Message, error) {
		return parser.Parse(raw, loc)
	}

	summary, runErr := relay.New(source, parse, fwd, m).Run(ctx)

	if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		slog.Warn("failed to export metrics", "path", cfg.Metrics.Textfile, "error", err)
	}

	if runErr != nil {
		slog.Error("relay run failed", "error", runErr)
		os.Exit(1)
	}

	slog.Info("mail2telegram finished",
		"found", summary.Found,
		"delivered", summary.Delivered,
		"failed", summary.Failed,
	)
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// selectSender chooses the Telegram backend: the Bot API, or stdout for dry
// runs.
func selectSender(cfg *config.Config) telegram.Sender {
	if cfg.Relay.DryRun {
		slog.Info("dry run, printing Telegram requests to stdout")
		return stdout.New()
	}
	return botapi.New(botapi.ClientConfig{
		Token:   cfg.Telegram.Token,
		BaseURL: cfg.Telegram.APIURL,
		Timeout: cfg.Telegram.Timeout,
	})
}

// storeSecretFromStdin reads one secret, without echo when stdin is a
// terminal, and saves it in the configured keyring service.
func storeSecretFromStdin(cfg *config.Config, key string) error {
	switch key {
	case config.KeyEmailPassword, config.KeyBotToken:
	default:
		return fmt.Errorf("unknown secret key %q, want %s or %s", key, config.KeyEmailPassword, config.KeyBotToken)
	}

	var value string
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprintf(os.Stderr, "%s: ", key)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to read secret: %w", err)
		}
		value = string(b)
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read secret: %w", err)
		}
		value = line
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return errors.New("secret is empty")
	}

	store, err := credential.Open(cfg.Credentials.Service, cfg.Credentials.FilePassword)
	if err != nil {
		return err
	}
	return store.Set(key, value)
}
