// Command portfolia is the terminal client for the portfolio backend.
//
// Usage:
//
//	portfolia                 # interactive home view with chat
//	portfolia login -u admin  # store an admin token
//	portfolia chat "What projects have you built?"
//	portfolia upload cv.pdf
//	portfolia reset --yes
//
// Configuration comes from the environment (PORTFOLIA_*), optionally loaded
// from a .env file in the working directory.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/portfolia/console/pkg/admin"
	"github.com/portfolia/console/pkg/auth"
	"github.com/portfolia/console/pkg/chat"
	"github.com/portfolia/console/pkg/config"
	"github.com/portfolia/console/pkg/gateway"
	"github.com/portfolia/console/pkg/profile"
	"github.com/portfolia/console/pkg/store"
	"github.com/portfolia/console/pkg/store/file"
	"github.com/portfolia/console/pkg/store/jsonl"
	"github.com/portfolia/console/pkg/store/sqlite"
	"github.com/portfolia/console/pkg/tui"
)

type rootFlags struct {
	baseURL  string
	stateDir string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "portfolia",
		Short: "Terminal client for the Portfolia backend",
		Long: `portfolia talks to the portfolio backend: chat with the assistant about the
owner's work, and as admin, upload documents to or reset the knowledge base.

Run without arguments to start the interactive interface.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, flags)
		},
	}
	root.PersistentFlags().StringVar(&flags.baseURL, "base-url", "", "backend base URL (overrides PORTFOLIA_API_BASE_URL)")
	root.PersistentFlags().StringVar(&flags.stateDir, "state-dir", "", "directory for the session token, transcripts and logs")

	root.AddCommand(
		&cobra.Command{
			Use:   "tui",
			Short: "Start the interactive interface",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTUI(cmd, flags)
			},
		},
		newLoginCmd(flags),
		newLogoutCmd(flags),
		newWhoamiCmd(flags),
		newChatCmd(flags),
		newUploadCmd(flags),
		newResetCmd(flags),
		newStatsCmd(flags),
		newTranscriptsCmd(flags),
	)
	return root
}

// app holds everything a command needs, built from configuration.
type app struct {
	cfg         *config.Config
	logFile     *os.File
	prevLogger  *slog.Logger
	slot        store.Store
	gw          *gateway.Client
	session     *auth.Session
	console     *admin.Console
	transcripts store.TranscriptManager
	transcript  store.Transcript
}

func setup(ctx context.Context, flags *rootFlags) (*app, error) {
	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyFlags(flags.baseURL, flags.stateDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	a := &app{cfg: cfg, prevLogger: slog.Default()}

	// Logs go to a file so they never draw over the terminal UI.
	if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	a.logFile, err = os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	handler := slog.NewTextHandler(a.logFile, &slog.HandlerOptions{Level: cfg.LogLevel()})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	logger.Info("Logging initialized", "level", cfg.LogLevel(), "baseURL", cfg.APIBaseURL, "store", cfg.Store)

	slot, err := openSlot(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open state store: %w", err)
	}
	a.slot = slot

	a.gw = gateway.New(cfg.APIBaseURL,
		gateway.WithTimeout(cfg.HTTPTimeout),
		gateway.WithLogger(logger),
	)
	a.session = auth.NewSession(a.gw, a.slot, logger)
	a.gw.SetTokenSource(a.session)
	if err := a.session.Restore(ctx); err != nil {
		logger.Warn("Failed to restore session", "error", err)
	}
	a.console = admin.NewConsole(a.gw, a.session, logger)

	a.transcripts, err = jsonl.NewManager(cfg.TranscriptDir())
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func openSlot(cfg *config.Config) (store.Store, error) {
	if cfg.Store == config.StoreSQLite {
		return sqlite.New(cfg.StatePath())
	}
	return file.New(cfg.StatePath())
}

// newChat starts a conversation, recording it when transcripts are enabled.
func (a *app) newChat(greeting bool) *chat.Session {
	opts := []chat.Option{chat.WithLogger(slog.Default())}
	if greeting {
		opts = append(opts, chat.WithGreeting(a.cfg.Greeting))
	}
	if a.cfg.Transcripts {
		tr, err := a.transcripts.NewTranscript(a.cfg.APIBaseURL)
		if err != nil {
			slog.Warn("Failed to start transcript", "error", err)
		} else {
			a.transcript = tr
			opts = append(opts, chat.WithTranscript(tr))
		}
	}
	return chat.New(a.gw, opts...)
}

func (a *app) Close() {
	if a.transcript != nil {
		a.transcript.Close()
	}
	if a.slot != nil {
		a.slot.Close()
	}
	slog.SetDefault(a.prevLogger)
	if a.logFile != nil {
		a.logFile.Close()
	}
}

func runTUI(cmd *cobra.Command, flags *rootFlags) error {
	ctx := cmd.Context()
	a, err := setup(ctx, flags)
	if err != nil {
		return err
	}
	defer a.Close()

	prof, err := profile.Load(a.cfg.Profile)
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	model := tui.New(ctx, tui.Options{
		Chat:     a.newChat(true),
		Auth:     a.session,
		Admin:    a.console,
		Profile:  prof,
		BaseURL:  a.cfg.APIBaseURL,
		StartDir: cwd,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run interface: %w", err)
	}
	return nil
}
