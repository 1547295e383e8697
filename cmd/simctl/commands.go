package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	app "github.com/okian/vitalstream/internal/app"
	"github.com/okian/vitalstream/internal/config"
	"github.com/okian/vitalstream/pkg/logger"
)

const (
	defaultRequestTimeout = 10 * time.Second
	shutdownTimeout       = 30 * time.Second
)

var (
	errNeedURL = errors.New("start needs --url; use run to simulate in this process")
	errRequest = errors.New("control request failed")
)

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath string
	logLevel   string
	url        string
	timeout    time.Duration

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "simctl",
		Short:        "Run or control the vitals simulation",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (overrides $VITALSTREAM_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to log_level from config")
	root.PersistentFlags().StringVar(&opts.url, "url", "", "Base URL of a running control API; when empty, act on the run-state store directly")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultRequestTimeout, "Timeout for control requests")

	root.AddCommand(newRunCmd(opts), newStartCmd(opts), newStopCmd(opts), newStatusCmd(opts))
	return root
}

// setup loads configuration and initializes logging on stderr so stdout
// carries only command output.
func (o *options) setup(cmd *cobra.Command) error {
	if o.configPath != "" {
		if err := os.Setenv(config.EnvConfigPath, o.configPath); err != nil {
			return err
		}
	}
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return err
	}
	o.cfg = cfg

	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithOutput(cmd.ErrOrStderr())); err != nil {
		return err
	}
	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	return logger.SetLevelString(level)
}

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the simulation in this process until stopped or interrupted",
		Long: "Run loads the roster, sets the shared running flag and generates samples until " +
			"the flag is cleared (for example by 'simctl stop') or the process is interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc := app.New(
				app.WithConfig(opts.cfg),
				app.WithLogger(logger.Get()),
				app.WithBaseContext(ctx),
			)
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				svc.Stop(sctx)
			}()

			if err := svc.StartSimulation(ctx); err != nil {
				return err
			}
			svc.Wait()

			st, err := svc.SimulationStatus(context.Background())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st.Loop)
		},
	}
}

func newStartCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Ask a running service to launch a simulation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.url == "" {
				return errNeedURL
			}
			body, err := opts.call(cmd.Context(), http.MethodPost, "/simulation/start")
			if body != nil {
				_, _ = cmd.OutOrStdout().Write(body)
			}
			return err
		},
	}
}

func newStopCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Clear the running flag; every loop sharing it stops at its next check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if opts.url != "" {
				body, err := opts.call(ctx, http.MethodPost, "/simulation/stop")
				if body != nil {
					_, _ = cmd.OutOrStdout().Write(body)
				}
				return err
			}

			store, release := app.OpenRunState(opts.cfg)
			defer func() { _ = release() }()

			ctx, cancel := context.WithTimeout(ctx, opts.timeout)
			defer cancel()
			if err := store.Set(ctx, false); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"status": "stopping"})
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a simulation is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if opts.url != "" {
				body, err := opts.call(ctx, http.MethodGet, "/simulation/status")
				if body != nil {
					_, _ = cmd.OutOrStdout().Write(body)
				}
				return err
			}

			store, release := app.OpenRunState(opts.cfg)
			defer func() { _ = release() }()

			ctx, cancel := context.WithTimeout(ctx, opts.timeout)
			defer cancel()
			running, err := store.Get(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]bool{"running": running})
		},
	}
}

// call sends a control request and returns the response body. Non-2xx
// responses return the body together with an error.
func (o *options) call(ctx context.Context, method, path string) ([]byte, error) {
	client := resty.New().
		SetBaseURL(o.url).
		SetTimeout(o.timeout).
		SetHeader("Accept", "application/json")

	resp, err := client.R().SetContext(ctx).Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", errRequest, method, path, err)
	}
	if resp.IsError() {
		return resp.Body(), fmt.Errorf("%w: %s %s: status %d", errRequest, method, path, resp.StatusCode())
	}
	return resp.Body(), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
