package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const Version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := newViper()
	var cfgFile string

	root := &cobra.Command{
		Use:           "blocksim",
		Short:         "Interactive proof-of-work blockchain simulator",
		Long:          "Mine blocks, tamper with history and watch the chain reject it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return readConfigFile(v, cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCLI(v, false)
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./blocksim.{yaml,toml,json})")
	if err := bindConfigFlags(v, root.PersistentFlags()); err != nil {
		panic(err)
	}

	root.AddCommand(
		newDaemonCmd(v),
		newClientCmd(v),
		newVersionCmd(),
	)
	return root
}

func newDaemonCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run headless with only the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCLI(v, true)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "blocksim v%s\n", Version)
		},
	}
}

func runCLI(v *viper.Viper, daemonMode bool) error {
	cfg, err := LoadConfig(v)
	if err != nil {
		return err
	}
	if daemonMode && cfg.LogFormat == "console" && !v.IsSet("log_format") {
		cfg.LogFormat = "json"
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cli, err := NewCLI(CLIConfig{Config: cfg, DaemonMode: daemonMode}, logger)
	if err != nil {
		return err
	}
	return cli.Run()
}

func newClientCmd(v *viper.Viper) *cobra.Command {
	var timeout time.Duration

	client := func() (*Client, error) {
		cfg, err := LoadConfig(v)
		if err != nil {
			return nil, err
		}
		return NewClientFromDataDir(cfg.APIAddr, cfg.DataDir, timeout)
	}
	run := func(fn func(ctx context.Context, c *Client) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			out, err := fn(ctx, c)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
	}

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Talk to a running daemon",
	}
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Request timeout")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show daemon status",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, c *Client) (any, error) {
				return c.Status(ctx)
			}),
		},
		newClientTxCmd(run),
		&cobra.Command{
			Use:   "mine",
			Short: "Mine one block and wait for it",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, c *Client) (any, error) {
				return c.Mine(ctx)
			}),
		},
		newClientTamperCmd(run),
		&cobra.Command{
			Use:   "path [tip]",
			Short: "Show and validate the path to a tip (default: active)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(func(ctx context.Context, c *Client) (any, error) {
					if len(args) == 0 {
						return c.Validation(ctx)
					}
					return c.Path(ctx, args[0])
				})(cmd, args)
			},
		},
		&cobra.Command{
			Use:   "tips",
			Short: "List chain tips",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, c *Client) (any, error) {
				return c.Tips(ctx)
			}),
		},
		&cobra.Command{
			Use:   "select <tip|longest>",
			Short: "Choose the active tip",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				tip := args[0]
				if tip == "longest" {
					tip = ""
				}
				return run(func(ctx context.Context, c *Client) (any, error) {
					return c.Select(ctx, tip)
				})(cmd, args)
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Start over from genesis",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, c *Client) (any, error) {
				return c.Reset(ctx)
			}),
		},
	)
	return cmd
}

type clientRunner func(fn func(ctx context.Context, c *Client) (any, error)) func(*cobra.Command, []string) error

func newClientTxCmd(run clientRunner) *cobra.Command {
	var idemKey string
	cmd := &cobra.Command{
		Use:   "tx <from> <to> <amount>",
		Short: "Add a transaction to the mempool",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			return run(func(ctx context.Context, c *Client) (any, error) {
				return c.AddTransaction(ctx, args[0], args[1], amount, idemKey)
			})(cmd, args)
		},
	}
	cmd.Flags().StringVar(&idemKey, "idempotency-key", "", "Make retries of this request safe")
	return cmd
}

func newClientTamperCmd(run clientRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "tamper <block> <amount> [tx-index]",
		Short: "Change a transaction amount inside a block",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			idx := 0
			if len(args) == 3 {
				if idx, err = strconv.Atoi(args[2]); err != nil {
					return fmt.Errorf("invalid tx index %q", args[2])
				}
			}
			return run(func(ctx context.Context, c *Client) (any, error) {
				return c.Tamper(ctx, args[0], idx, amount)
			})(cmd, args)
		},
	}
}
