package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cabot/internal/config"
	"cabot/internal/domain"
	"cabot/internal/logger"
	"cabot/internal/prompt"
	"cabot/internal/service"
	"cabot/internal/session"
	"cabot/internal/terminal"
	"cabot/internal/tui"
	"cabot/internal/watcher"
	"cabot/internal/web"
)

type rootOptions struct {
	configPath string
	cfg        *config.AppConfig
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, domain.UserMessage(err))
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "cabot",
		Short:         "Retrieval-augmented assistant for Chartered Accountancy questions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			config.LoadEnv()
			var err error
			if opts.configPath == "" {
				opts.cfg, _, err = config.LoadDefault()
			} else {
				opts.cfg, err = config.Load(opts.configPath)
			}
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to YAML config file (optional; uses ./config.yaml or ~/.config/cabot/config.yaml)")
	root.AddCommand(newIngestCmd(opts), newChatCmd(opts), newServeCmd(opts))
	return root
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var dir string
	var watch bool
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index every PDF in the resources folder into the vector collection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if dir != "" {
				cfg.Ingest.ResourcesDir = dir
			}
			cfg.Log.Console = true
			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if cfg.VectorStore.Type == "memory" {
				return errors.New("ingest needs a persistent vector store; the memory store is filled by chat/serve at startup")
			}
			comps, err := buildComponents(cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = comps.close() }()
			svc, err := comps.ingestService()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			run := func(ctx context.Context) error {
				report, err := svc.Ingest(ctx, cfg.Ingest.ResourcesDir)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Indexed %d pages as %d chunks from %s into %q in %s\n",
					report.Pages, report.Chunks, cfg.Ingest.ResourcesDir, cfg.VectorStore.Qdrant.Collection, report.Took.Round(time.Millisecond))
				return nil
			}
			if err := run(cmd.Context()); err != nil {
				return err
			}
			if !watch {
				return nil
			}

			w, err := watcher.New(2*time.Second, log.Named("watcher"))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Watching %s for PDF changes (ctrl+c to stop)\n", cfg.Ingest.ResourcesDir)
			return w.Run(cmd.Context(), cfg.Ingest.ResourcesDir, func(ctx context.Context) {
				if err := run(ctx); err != nil {
					log.Error("re-ingestion failed", zap.Error(err))
				}
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Folder of PDFs to index (overrides ingest.resources_dir)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-index whenever a PDF in the folder changes")
	return cmd
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			// the full-screen UI owns the terminal, so logs go to the file only
			cfg.Log.Console = false
			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			comps, err := buildComponents(cfg, log)
			if err != nil {
				return fmt.Errorf("failed to initialize CA Bot: %w", err)
			}
			defer func() { _ = comps.close() }()
			svc, err := readyChatService(cmd.Context(), comps)
			if err != nil {
				return fmt.Errorf("failed to initialize CA Bot: %w", err)
			}
			sess := session.New(cfg.History.MaxMessages)
			if plain {
				return terminal.NewREPL(svc, sess, cmd.InOrStdin(), cmd.OutOrStdout()).Run(cmd.Context())
			}
			m := tui.New(cmd.Context(), svc, sess, prompt.SampleQuestions)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Use a line-oriented prompt instead of the full-screen UI")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser chat form",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}
			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			comps, err := buildComponents(cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = comps.close() }()
			svc, err := comps.chatService(cmd.Context())
			if err != nil {
				return err
			}
			store := session.NewStore(time.Duration(cfg.Server.SessionTTLMinutes)*time.Minute, cfg.History.MaxMessages)
			fmt.Fprintf(cmd.OutOrStdout(), "CA Bot listening on %s\n", cfg.Server.Addr)
			return web.New(svc, store, prompt.SampleQuestions, log.Named("web")).Run(cmd.Context(), cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func readyChatService(ctx context.Context, comps *components) (*service.ChatService, error) {
	svc, err := comps.chatService(ctx)
	if err != nil {
		return nil, err
	}
	if err := svc.Ready(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}
