package main

import (
	"fmt"
	"strconv"
	"time"
)

func (c *CLI) cmdVersion() {
	fmt.Fprintf(c.out, "\n%s\n", c.sectionHead("Version "+Version))
}

func (c *CLI) cmdAbout() {
	fmt.Fprintf(c.out, "\n%s\n", c.sectionHead("About"))
	fmt.Fprintf(c.out, "  Blocksim v%s\n", Version)
	fmt.Fprintln(c.out, "  A proof-of-work blockchain you can break on purpose.")
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "  Mine blocks, tamper with history and watch validation")
	fmt.Fprintln(c.out, "  fail from the edited block to the tip.")
	fmt.Fprintf(c.out, "\n%s\n", c.sectionHead("Third-Party Libraries"))
	fmt.Fprintln(c.out, "  etcd-io/bbolt                MIT          Key-value storage")
	fmt.Fprintln(c.out, "  uber-go/zap                  MIT          Logging")
	fmt.Fprintln(c.out, "  btcsuite/btcutil             ISC          Base58 encoding")
	fmt.Fprintln(c.out, "  spf13/cobra                  Apache-2.0   Commands")
	fmt.Fprintln(c.out, "  spf13/viper                  MIT          Configuration")
	fmt.Fprintln(c.out, "  go-resty/resty               MIT          HTTP client")
	fmt.Fprintln(c.out, "  pkg/errors                   BSD-2-Clause Error wrapping")
	fmt.Fprintln(c.out, "  schollz/progressbar          MIT          Progress display")
	fmt.Fprintln(c.out, "  golang.org/x/crypto          BSD-3-Clause SHA-3")
	fmt.Fprintln(c.out, "  golang.org/x/sync            BSD-3-Clause errgroup")
	fmt.Fprintln(c.out, "  golang.org/x/term            BSD-3-Clause Terminal I/O")
	fmt.Fprintln(c.out, "  golang.org/x/time            BSD-3-Clause Rate limiting")
	fmt.Fprintln(c.out, "  prometheus/client_golang     Apache-2.0   Metrics")
	fmt.Fprintln(c.out, "  hashicorp/golang-lru         MPL-2.0      LRU cache")
}

func (c *CLI) cmdStatus() {
	stats := c.daemon.Stats()

	validity := c.green("valid")
	if !stats.Valid {
		validity = c.red("INVALID from " + shortID(stats.FirstInvalid))
	}
	mining := "stopped"
	if stats.Mining {
		mining = fmt.Sprintf("active (%.0f H/s)", stats.HashRate)
	}
	attack := "idle"
	if stats.Attack.Running {
		attack = c.orange(fmt.Sprintf("running (%d%% power, %d blocks)", stats.Attack.Power, stats.Attack.Blocks))
	}
	storage := "memory only"
	if stats.Persist {
		storage = c.dataDir
	}

	fmt.Fprintf(c.out, `
%s
  Blocks:      %d
  Tips:        %d
  Active Tip:  %s (height %d)
  Longest Tip: %s
  Chain:       %s
  Difficulty:  %d
  Mempool:     %d
  Mining:      %s
  Attack:      %s
  Tutorial:    %s
  Storage:     %s
  Uptime:      %s
`,
		c.sectionHead("Chain"),
		stats.Blocks,
		stats.Tips,
		shortID(stats.ActiveTip), stats.ActiveHeight,
		shortID(stats.LongestTip),
		validity,
		stats.Difficulty,
		stats.MempoolSize,
		mining,
		attack,
		stats.Tutorial,
		storage,
		time.Since(c.startTime).Round(time.Second),
	)
}

func (c *CLI) cmdDifficulty(args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(c.out, "Difficulty: %d\n", c.daemon.Session().Difficulty())
		return nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("usage: difficulty [N]")
	}
	if err := c.daemon.Session().SetDifficulty(n); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Difficulty set to %d (new blocks need %d leading zeros)\n", n, n)
	return nil
}

func (c *CLI) cmdSave() error {
	if c.daemon.storage == nil {
		return fmt.Errorf("persistence is disabled")
	}
	if err := c.daemon.Session().Save(); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Saved")
	return nil
}

func (c *CLI) cmdReset() {
	c.daemon.Reset()
	fmt.Fprintf(c.out, "Chain reset to genesis %s\n", shortID(c.daemon.Session().GenesisID()))
}
