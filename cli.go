package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/blocknetprivacy/blocksim/debug"
)

// CLI handles the interactive command-line interface
type CLI struct {
	daemon       *Daemon
	logger       *zap.Logger
	ctx          context.Context
	cancel       context.CancelFunc
	reader       *bufio.Reader
	out          io.Writer
	startTime    time.Time
	daemonMode   bool
	noColor      bool
	width        int
	api          *APIServer
	apiAddr      string
	explorer     *Explorer
	explorerAddr string
	dataDir      string
}

// CLIConfig holds CLI configuration
type CLIConfig struct {
	Config
	DaemonMode bool // If true, run headless (no interactive prompts)
	NoAPI      bool // If true, don't start the API server
}

// NewCLI creates the daemon and, unless disabled, the API server.
func NewCLI(cfg CLIConfig, logger *zap.Logger) (*CLI, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	debug.SetTracing(cfg.LockTrace)

	daemon, err := NewDaemon(daemonConfigFrom(cfg.Config), logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	cli := &CLI{
		daemon:     daemon,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		reader:     bufio.NewReader(os.Stdin),
		out:        os.Stdout,
		startTime:  time.Now(),
		daemonMode: cfg.DaemonMode,
		noColor:    cfg.NoColor,
		width:      80,
		apiAddr:    cfg.APIAddr,
		dataDir:    cfg.DataDir,
	}

	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		cli.noColor = true
	} else if w, _, err := term.GetSize(fd); err == nil && w > 0 {
		cli.width = w
	}

	if cfg.ExplorerAddr != "" {
		cli.explorer = NewExplorer(daemon, logger)
		cli.explorerAddr = cfg.ExplorerAddr
	}

	if !cfg.NoAPI && cfg.APIAddr != "" {
		cli.api = NewAPIServer(daemon, cfg.DataDir, APIServerConfig{
			Rate:  cfg.APIRate,
			Burst: cfg.APIBurst,
		}, logger)
	}

	return cli, nil
}

// Run starts the CLI
func (c *CLI) Run() error {
	// Handle Ctrl+C gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(c.out, "\nShutting down...")
			c.cancel()
			if !c.daemonMode {
				if err := c.shutdown(); err != nil {
					fmt.Fprintf(c.out, "Warning: shutdown encountered errors: %v\n", err)
				}
				os.Exit(0)
			}
		case <-c.ctx.Done():
		}
	}()

	if err := c.daemon.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Start API server if configured
	if c.api != nil {
		if err := c.api.Start(c.apiAddr); err != nil {
			return fmt.Errorf("failed to start API: %w", err)
		}
	}

	if c.explorer != nil {
		c.explorer.Start(c.explorerAddr)
	}

	// Daemon mode: just wait for shutdown signal
	if c.daemonMode {
		fmt.Fprintln(c.out, "Running in daemon mode (no interactive shell)")
		if c.api != nil {
			fmt.Fprintf(c.out, "  API: http://%s\n", c.apiAddr)
		}
		fmt.Fprintln(c.out, "Press Ctrl+C to stop")

		g, ctx := errgroup.WithContext(c.ctx)
		g.Go(func() error {
			c.heartbeat(ctx, time.Minute)
			return nil
		})
		g.Go(func() error {
			return c.watchEvents(ctx)
		})
		if err := g.Wait(); err != nil && ctx.Err() == nil {
			c.logger.Warn("daemon worker failed", zap.Error(err))
		}
		return c.shutdown()
	}

	c.printWelcome()

	// Main command loop
	for {
		select {
		case <-c.ctx.Done():
			return c.shutdown()
		default:
		}

		fmt.Fprint(c.out, "\n> ")

		line, err := c.reader.ReadString('\n')
		if err != nil {
			// EOF means stdin closed
			return c.shutdown()
		}

		line = sanitizeInput(strings.TrimSpace(line))
		if line == "" {
			continue
		}

		if err := c.executeCommand(line); err != nil {
			if err.Error() == "quit" {
				return c.shutdown()
			}
			fmt.Fprintf(c.out, "%s %v\n", c.red("Error:"), err)
		}
	}
}

// heartbeat logs a status line every interval until ctx is done.
func (c *CLI) heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := c.daemon.Stats()
			c.logger.Info("status",
				zap.Int("blocks", st.Blocks),
				zap.Int("tips", st.Tips),
				zap.String("active_tip", st.ActiveTip),
				zap.Bool("valid", st.Valid),
				zap.Int("mempool", st.MempoolSize),
				zap.Bool("attacking", st.Attack.Running),
			)
		}
	}
}

// watchEvents logs chain events while running headless.
func (c *CLI) watchEvents(ctx context.Context) error {
	events := c.daemon.Session().Subscribe()
	defer c.daemon.Session().Unsubscribe(events)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if ev.Type == EventProgress {
				continue
			}
			c.logger.Debug("event", zap.String("type", ev.Type), zap.Any("data", ev.Data))
		}
	}
}

func (c *CLI) printWelcome() {
	logo := []string{
		`   ┌──────┐   ┌──────┐   ┌──────┐`,
		`   │ 0000 │──▶│ 00a1 │──▶│ 00f3 │`,
		`   └──────┘   └──────┘   └──────┘`,
		``,
		fmt.Sprintf(`   BLOCKSIM v%s`, Version),
	}

	fmt.Fprintln(c.out)
	for _, line := range logo {
		fmt.Fprintln(c.out, c.green(line))
	}

	v := c.daemon.Session().View()
	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "  Blocks:     %d\n", v.BlockCount)
	fmt.Fprintf(c.out, "  Difficulty: %d\n", v.Difficulty)
	fmt.Fprintf(c.out, "  Tutorial:   %s\n", c.daemon.Tutorial().Stage())
	if c.api != nil {
		fmt.Fprintf(c.out, "  API:        http://%s\n", c.apiAddr)
	}
	if c.explorer != nil {
		fmt.Fprintf(c.out, "  Explorer:   http://%s\n", c.explorerAddr)
	}
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "Type 'help' for available commands")
}

func (c *CLI) executeCommand(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.cmdHelp(args)
	case "status":
		c.cmdStatus()
	case "tx", "send":
		return c.cmdTx(args)
	case "mempool", "pool":
		return c.cmdMempool(args)
	case "mine":
		return c.cmdMine()
	case "tamper":
		return c.cmdTamper(args)
	case "path", "chain":
		return c.cmdPath(args)
	case "tips":
		c.cmdTips()
	case "tree":
		c.cmdTree()
	case "select":
		return c.cmdSelect(args)
	case "difficulty", "diff":
		return c.cmdDifficulty(args)
	case "hash":
		return c.cmdHash(args)
	case "attack":
		return c.cmdAttack(args)
	case "tutorial", "learn":
		return c.cmdTutorial(args)
	case "reset":
		c.cmdReset()
	case "save":
		return c.cmdSave()
	case "version":
		c.cmdVersion()
	case "about":
		c.cmdAbout()
	case "quit", "exit", "q":
		return fmt.Errorf("quit")
	default:
		return fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
	}

	return nil
}

func (c *CLI) shutdown() error {
	c.cancel()

	// Stop API server first (removes cookie file)
	if c.api != nil {
		if err := c.api.Stop(); err != nil {
			fmt.Fprintf(c.out, "Warning: API shutdown: %v\n", err)
		}
	}

	if c.explorer != nil {
		c.explorer.Stop()
	}

	fmt.Fprintln(c.out, "Stopping daemon...")
	if err := c.daemon.Stop(); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	fmt.Fprintln(c.out, "Goodbye!")
	return nil
}

// sanitizeInput removes control characters from user input (fixes tmux copy-paste issues)
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 32 && r != 127 {
			return r
		}
		return -1 // drop the rune
	}, s)
}

// ============================================================================
// Output helpers
// ============================================================================

func (c *CLI) paint(code, s string) string {
	if c.noColor {
		return s
	}
	return code + s + "\033[0m"
}

func (c *CLI) green(s string) string  { return c.paint("\033[38;2;170;255;0m", s) }
func (c *CLI) red(s string) string    { return c.paint("\033[38;2;255;68;68m", s) }
func (c *CLI) orange(s string) string { return c.paint("\033[38;2;255;170;0m", s) }
func (c *CLI) dim(s string) string    { return c.paint("\033[2m", s) }

func (c *CLI) sectionHead(title string) string {
	return c.paint("\033[1m\033[38;2;170;255;0m", "# "+title)
}

// truncate shortens s to fit the terminal width.
func (c *CLI) truncate(s string, reserve int) string {
	max := c.width - reserve
	if max < 8 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

func shortHash(h string) string {
	if len(h) <= 16 {
		return h
	}
	return h[:8] + "…" + h[len(h)-6:]
}
