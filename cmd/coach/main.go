// coach is the terminal host for the Quality Coach widget: the same
// controller a web page would embed, rendered with a CLI.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"coachwidget/cmd/coach/config"
	"coachwidget/cmd/coach/ui"
	"coachwidget/internal/persona"
	"coachwidget/internal/store"
	"coachwidget/internal/transport"
	"coachwidget/internal/widget"
)

var (
	// Global flags
	verbose    bool
	configPath string
	apiBase    string
	email      string
	skipAccess bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "coach",
	Short: "Quality Coach - chat with the handbook",
	Long: `coach is a terminal client for the Quality Coach assistant.

It checks your access, keeps a conversation thread across runs, and tailors
answers to your professional role. Run without arguments to start chatting.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Check whether you currently have access",
	RunE:  runAccessCheck,
}

var personaCmd = &cobra.Command{
	Use:   "personas",
	Short: "List the personas answers can be tailored for",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, id := range persona.All() {
			fmt.Printf("  %-22s %s\n", string(id), id.DisplayName())
		}
		return nil
	},
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback [message]",
	Short: "Send feedback about the coach",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFeedback,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default .coach/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiBase, "api", "", "Backend base URL")
	rootCmd.PersistentFlags().StringVar(&email, "email", "", "Member email identity")
	rootCmd.PersistentFlags().BoolVar(&skipAccess, "skip-access", false, "Skip the access check (local testing)")

	rootCmd.AddCommand(accessCmd)
	rootCmd.AddCommand(personaCmd)
	rootCmd.AddCommand(feedbackCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if apiBase != "" {
		cfg.API.BaseURL = apiBase
	}
	if email != "" {
		cfg.Member.Email = email
	}
	if skipAccess {
		cfg.SkipAccessCheck = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildWidget assembles the controller over a SQLite-backed long store and
// an in-memory session store, mirroring localStorage vs sessionStorage.
func buildWidget(cfg *config.Config, term *ui.Terminal) (*widget.Controller, func(), error) {
	long, err := store.NewSQLite(filepath.Join(cfg.DataDir, "coach.db"), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open local store: %w", err)
	}
	stores := store.Pair{Long: long, Session: store.NewMemory()}

	trCfg := transport.DefaultConfig()
	trCfg.Timeout = time.Duration(cfg.API.TimeoutSeconds) * time.Second

	wcfg := widget.Config{
		APIBase:         cfg.API.BaseURL,
		MemberIdentity:  cfg.Member.Email,
		IsPaidMember:    cfg.Member.IsPaidMember,
		Post:            widget.PostContext{Slug: cfg.Post.Slug, Title: cfg.Post.Title},
		SkipAccessCheck: cfg.SkipAccessCheck,
	}
	ctrl := widget.New(wcfg, widget.Tuning{Transport: &trCfg}, stores, term, logger)

	cleanup := func() {
		ctrl.Shutdown()
		_ = long.Close()
	}
	return ctrl, cleanup, nil
}

func runChat() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	term := ui.NewTerminal(os.Stdout)
	ctrl, cleanup, err := buildWidget(cfg, term)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !ctrl.Init(ctx) {
		return fmt.Errorf("access not granted")
	}
	ctrl.Open()
	fmt.Println("Type a question, /help for commands, /quit to leave.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := handleCommand(ctx, ctrl, line); quit {
				break
			}
			continue
		}
		ctrl.SendMessage(ctx, line, widget.SendOptions{})
	}
	return scanner.Err()
}

// handleCommand dispatches slash commands. Returns true to exit the REPL.
func handleCommand(ctx context.Context, ctrl *widget.Controller, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Println(`Commands:
  /persona confirm       accept the suggested persona
  /persona set <id>      switch persona (see 'coach personas')
  /feedback <text>       send feedback
  /open, /close          toggle the chat window
  /quit                  leave`)
	case "/open":
		ctrl.Open()
	case "/close":
		ctrl.CloseWindow()
	case "/feedback":
		ctrl.SubmitFeedback(ctx, 0, strings.TrimSpace(strings.TrimPrefix(line, "/feedback")))
	case "/persona":
		if len(fields) < 2 {
			fmt.Println("usage: /persona confirm | /persona set <id>")
			return false
		}
		switch fields[1] {
		case "confirm":
			if id, ok := ctrl.CurrentPersona(); ok {
				ctrl.ConfirmPersona(id)
			} else {
				fmt.Println("no persona suggested yet")
			}
		case "set":
			if len(fields) < 3 {
				fmt.Println("usage: /persona set <id>")
				return false
			}
			id := persona.ID(strings.ToUpper(fields[2]))
			if !id.Valid() {
				fmt.Println("unknown persona; see 'coach personas'")
				return false
			}
			ctrl.CorrectPersona(ctx, id, persona.ReasonManualSwitch)
		default:
			fmt.Println("usage: /persona confirm | /persona set <id>")
		}
	default:
		fmt.Println("unknown command; /help lists them")
	}
	return false
}

func runAccessCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	term := ui.NewTerminal(os.Stdout)
	ctrl, cleanup, err := buildWidget(cfg, term)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.API.TimeoutSeconds)*time.Second)
	defer cancel()

	if !ctrl.Init(ctx) {
		fmt.Println("access: denied")
		return nil
	}
	snap := ctrl.Snapshot()
	fmt.Printf("access: granted via %s, expires %s\n",
		snap.GrantedVia, snap.AccessExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func runFeedback(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	term := ui.NewTerminal(os.Stdout)
	ctrl, cleanup, err := buildWidget(cfg, term)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.API.TimeoutSeconds)*time.Second)
	defer cancel()

	if !ctrl.Init(ctx) {
		return fmt.Errorf("access not granted")
	}
	ctrl.SubmitFeedback(ctx, 0, strings.Join(args, " "))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
