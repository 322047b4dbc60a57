package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/smstask/internal/api"
	"github.com/nhle/smstask/internal/credential"
	"github.com/nhle/smstask/internal/dispatch"
	"github.com/nhle/smstask/internal/logging"
	"github.com/nhle/smstask/internal/mailbox"
	"github.com/nhle/smstask/internal/metrics"
	"github.com/nhle/smstask/internal/model"
	"github.com/nhle/smstask/internal/reminder"
	"github.com/nhle/smstask/internal/reply"
	"github.com/nhle/smstask/internal/store"
)

const banner = `
                 _            _
  ___ _ __ ___  ___| |_ __ _ ___| | __
 / __| '_ ' _ \/ __| __/ _' / __| |/ /
 \__ \ | | | | \__ \ || (_| \__ \   <
 |___/_| |_| |_|___/\__\__,_|___/_|\_\
`

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the task API and answer text messages",
		Long: `Start the HTTP task API, poll the mailbox for texts from the configured
phone, and reply to each command. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg)

	password, err := mailPassword(cfg, logger)
	if err != nil {
		return err
	}

	printBanner(cfg)

	m := metrics.New()

	backend, err := store.OpenBackend(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store.Driver, err)
	}
	tasks, err := store.Open(ctx, backend, cfg.Store.Table,
		store.WithPIN(cfg.Store.PIN),
		store.WithLogger(logger),
		store.WithObserver(func(s store.Stats) { m.SlotsInUse(s.Used) }),
	)
	if err != nil {
		backend.Close()
		return err
	}
	defer tasks.Close()

	// Bind before starting the dispatcher so its first request finds the API.
	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.ListenAddr(), err)
	}
	srv := api.New(tasks, api.WithLogger(logger), api.WithMetrics(m))

	listener := mailbox.NewListener(
		mailbox.IMAPDialer{
			Host:     cfg.Mail.IMAPHost,
			Port:     cfg.Mail.IMAPPort,
			Username: cfg.Mail.Address,
			Password: password,
			TLS:      cfg.Mail.ImplicitTLS(cfg.Mail.IMAPPort),
			Folder:   cfg.Mail.Folder,
		},
		mailbox.Config{
			Sender:        cfg.SenderAddress(),
			PollInterval:  cfg.Mail.PollInterval,
			CutoffPhrases: cfg.Mail.CutoffPhrases,
		},
		mailbox.WithLogger(logger),
		mailbox.WithMetrics(m),
	)
	defer listener.Close()

	channel := reply.NewChannel(
		reply.SMTPRelay{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.Address,
			Password: password,
			TLS:      cfg.Mail.ImplicitTLS(cfg.Mail.SMTPPort),
		},
		cfg.Mail.Address,
		cfg.RecipientAddress(),
		reply.WithLogger(logger),
		reply.WithMetrics(m),
	)

	c := apiClient(cfg)
	dispatcher := dispatch.New(c, cfg.Owner(), dispatch.WithLogger(logger), dispatch.WithMetrics(m))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx, ln) })
	g.Go(func() error { return dispatcher.Run(gctx, listener, channel) })
	if cfg.Reminder.Enabled {
		r := reminder.New(c, channel, cfg.Owner(), cfg.Reminder.Interval, reminder.WithLogger(logger))
		g.Go(func() error { return r.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("serve stopped", logging.Err(err))
		return err
	}
	logger.Info("serve stopped")
	return nil
}

// mailPassword prefers the configured password and falls back to the
// keyring entry for the mail account.
func mailPassword(cfg *model.AppConfig, logger *slog.Logger) (string, error) {
	var vault *credential.Vault
	if cfg.Mail.Password == "" {
		v, err := credential.Open()
		if err != nil {
			logger.Warn("keyring unavailable", logging.Err(err))
		} else {
			vault = v
		}
	}

	password, err := vault.ResolvePassword(cfg.Mail.Address, cfg.Mail.Password)
	if err != nil {
		return "", fmt.Errorf("no mail password: set mail.password, %s_MAIL_PASSWORD, or run 'smstask credential set': %w",
			model.EnvPrefix, err)
	}
	return password, nil
}

func printBanner(cfg *model.AppConfig) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("API:       http://%s\n", cfg.ListenAddr())
	green.Print("    ▶ ")
	fmt.Printf("Mailbox:   %s (%s)\n", cfg.Mail.Address, cfg.Mail.IMAPHost)
	green.Print("    ▶ ")
	fmt.Printf("Phone:     %s\n", logging.MaskOwner(cfg.Owner()))
	green.Print("    ▶ ")
	fmt.Printf("Store:     %s ", cfg.Store.Path)
	gray.Printf("(%s)\n", cfg.Store.Driver)
	if cfg.Reminder.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Reminder:  every %s\n", cfg.Reminder.Interval)
	}
	if cfg.Store.PIN == "" {
		yellow.Println("    ! no store.pin set; wipe is disabled")
	}
	fmt.Println()
}
