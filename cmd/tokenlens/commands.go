package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/songzhibin97/tokenlens/internal/configs"
	"github.com/songzhibin97/tokenlens/internal/data/storage"
	"github.com/songzhibin97/tokenlens/internal/models"
	"github.com/songzhibin97/tokenlens/internal/present"
	"github.com/songzhibin97/tokenlens/internal/server"
	"github.com/songzhibin97/tokenlens/internal/trigger"
)

type rootOptions struct {
	confPath string
	envFile  string
	style    string
	width    int
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "tokenlens",
		Short: "TokenLens - AI token risk analysis",
		Long: `TokenLens resolves a crypto ticker or contract address, gathers market data,
asks a language model for a risk-focused analysis and keeps a short history of results.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.confPath, "conf", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file (default .env)")
	rootCmd.PersistentFlags().StringVar(&opts.style, "style", "", "glamour style for terminal output (auto when empty)")
	rootCmd.PersistentFlags().IntVar(&opts.width, "width", 80, "terminal output width")

	rootCmd.AddCommand(newAnalyzeCmd(opts))
	rootCmd.AddCommand(newClickCmd(opts))
	rootCmd.AddCommand(newLatestCmd(opts))
	rootCmd.AddCommand(newHistoryCmd(opts))
	rootCmd.AddCommand(newClearCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))

	return rootCmd
}

func (o *rootOptions) envFiles() []string {
	if o.envFile == "" {
		return nil
	}
	return []string{o.envFile}
}

// withApp loads config, wires the app and runs fn with it.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, app *App) error) error {
	config, err := configs.Load(opts.confPath, opts.envFiles()...)
	if err != nil {
		return err
	}

	app, err := NewApp(config, stderrLogger(config.Debug))
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app.Sweep(ctx)
	return fn(ctx, app)
}

func (o *rootOptions) renderer() (*present.TerminalRenderer, error) {
	return present.NewTerminalRenderer(o.width, o.style)
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "analyze [TOKEN]",
		Short: "Analyze a ticker ($BNB, eth) or contract address",
		Example: `  tokenlens analyze '$BNB'
  tokenlens analyze 0x2170ed0880ac9a755fd29b2688956bd959f933f8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App) error {
				stop := app.EchoNotifications(cmd.ErrOrStderr())
				rec, err := app.analyzer.Analyze(ctx, args[0], models.TriggerSource(source))
				stop()
				if err != nil {
					return err
				}
				return printRecord(cmd, opts, rec, present.OriginLatest)
			})
		},
	}

	cmd.Flags().StringVar(&source, "source", string(models.SourceManual), "trigger source: selection, cursor or manual")
	return cmd
}

func newClickCmd(opts *rootOptions) *cobra.Command {
	var click trigger.Click

	cmd := &cobra.Command{
		Use:   "click",
		Short: "Simulate a context-menu click, prompting when input is needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App) error {
				dispatcher := trigger.NewDispatcher(app.detections, app.logger)

				stop := app.EchoNotifications(cmd.ErrOrStderr())
				rec, err := dispatcher.Dispatch(ctx, click, trigger.SurveyPrompter{}, app.analyzer)
				stop()
				if err != nil {
					return err
				}
				if rec == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to analyze.")
					return nil
				}
				return printRecord(cmd, opts, rec, present.OriginLatest)
			})
		},
	}

	cmd.Flags().StringVar(&click.MenuItemID, "menu-item", trigger.MenuDirect, "menu item id")
	cmd.Flags().StringVar(&click.SelectionText, "selection", "", "selected text")
	cmd.Flags().StringVar(&click.TabID, "tab", "", "tab id for cursor detection")
	return cmd
}

func newLatestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Show the latest analysis if it is recent enough",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App) error {
				rec, err := app.store.LatestForDisplay(ctx, time.Now())
				if err != nil && !errors.Is(err, storage.ErrNotFound) {
					return err
				}
				r, err := opts.renderer()
				if err != nil {
					return err
				}
				out, err := r.Latest(rec, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history [ID]",
		Short: "List past analyses, or show one by id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App) error {
				if len(args) == 1 {
					rec, err := app.store.HistoryRecord(ctx, args[0])
					if err != nil {
						return fmt.Errorf("history record %s: %w", args[0], err)
					}
					return printRecord(cmd, opts, rec, present.OriginHistory)
				}

				records, err := app.store.History(ctx)
				if err != nil {
					return err
				}
				r, err := opts.renderer()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), r.History(records, time.Now()))
				return nil
			})
		},
	}
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the analysis history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App) error {
				if err := app.store.ClearHistory(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
				return nil
			})
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and signal stream for popup surfaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App) error {
				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				if err := app.analyzer.CheckConfiguration(); err != nil {
					app.logger.Warn("completion API key not set, analyses will be refused", "err", err)
				}

				swept := app.store.RunSweeper(ctx, app.config.SweepInterval())

				// SIGHUP re-reads risk thresholds from the config
				hup := make(chan os.Signal, 1)
				signal.Notify(hup, syscall.SIGHUP)
				defer signal.Stop(hup)
				go func() {
					for {
						select {
						case <-ctx.Done():
							return
						case <-hup:
							if err := app.ReloadThresholds(ctx, opts.confPath, opts.envFiles()...); err != nil {
								app.logger.Error("reload risk thresholds failed", "err", err)
							}
						}
					}
				}()

				srv := server.New(server.Deps{
					Analyzer:   app.analyzer,
					Storage:    app.store,
					Detections: app.detections,
					Hub:        app.hub,
					Gatherer:   app.registry,
					Logger:     app.logger,
				})

				if addr == "" {
					addr = app.config.ListenAddr
				}
				err := srv.Run(ctx, addr)
				stop()
				<-swept
				return err
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides listen_addr)")
	return cmd
}

func printRecord(cmd *cobra.Command, opts *rootOptions, rec *models.AnalysisRecord, origin present.Origin) error {
	r, err := opts.renderer()
	if err != nil {
		return err
	}
	out, err := r.Record(rec, origin, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
