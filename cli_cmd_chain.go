package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/blocknetprivacy/blocksim/chain"
	"github.com/blocknetprivacy/blocksim/pow"
)

// resolveBlockID accepts a full block id or a unique prefix of one.
func (c *CLI) resolveBlockID(ref string) (string, error) {
	switch strings.ToLower(ref) {
	case "genesis":
		return c.daemon.Session().GenesisID(), nil
	case "tip", "active":
		return c.daemon.Session().View().ActiveTip, nil
	case "longest":
		return c.daemon.Session().View().LongestTip, nil
	}

	blocks := c.daemon.Session().Blocks()
	if _, ok := blocks[ref]; ok {
		return ref, nil
	}
	var match string
	for id := range blocks {
		if strings.HasPrefix(id, ref) {
			if match != "" {
				return "", fmt.Errorf("block prefix %q is ambiguous", ref)
			}
			match = id
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownBlock, ref)
	}
	return match, nil
}

func parseAmount(s string) (float64, error) {
	amt, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(amt) || math.IsInf(amt, 0) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return amt, nil
}

func (c *CLI) cmdTx(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: tx <from> <to> <amount>")
	}
	amt, err := parseAmount(args[2])
	if err != nil {
		return err
	}
	tx, err := c.daemon.Session().AddTransaction(args[0], args[1], amt)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Queued %s: %s -> %s %v\n", tx.ID, tx.From, tx.To, tx.Amount)
	fmt.Fprintf(c.out, "  Mempool: %d pending\n", len(c.daemon.Session().Mempool()))
	return nil
}

func (c *CLI) cmdMempool(args []string) error {
	if len(args) > 0 {
		if args[0] != "clear" {
			return fmt.Errorf("usage: mempool [clear]")
		}
		c.daemon.Session().ClearMempool()
		fmt.Fprintln(c.out, "Mempool cleared")
		return nil
	}

	txs := c.daemon.Session().Mempool()
	fmt.Fprintf(c.out, "\n%s (%d)\n", c.sectionHead("Mempool"), len(txs))
	if len(txs) == 0 {
		fmt.Fprintln(c.out, "  Empty. Add one with: tx <from> <to> <amount>")
		return nil
	}
	for _, tx := range txs {
		fmt.Fprintf(c.out, "  %s  %s -> %s  %v\n", c.dim(shortID(tx.ID)), tx.From, tx.To, tx.Amount)
	}
	return nil
}

func (c *CLI) cmdMine() error {
	sess := c.daemon.Session()
	view := sess.View()
	if !view.Result.Valid {
		return fmt.Errorf("%w: fix or abandon block %s first (try 'select longest' or 'reset')",
			ErrChainBroken, shortID(view.Result.FirstInvalidID))
	}

	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionSetDescription(fmt.Sprintf("Mining at difficulty %d", view.Difficulty)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("nonce"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionEnableColorCodes(!c.noColor),
	)

	events := sess.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if p, ok := ev.Data.(pow.Progress); ok && ev.Type == EventProgress {
				bar.Set64(int64(p.Nonce))
			}
		}
	}()

	b, err := sess.MineBlock(c.ctx)
	sess.Unsubscribe(events)
	close(events)
	<-done
	bar.Finish()
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "%s block %s at height %d\n", c.green("Mined"), b.ID, b.Index)
	fmt.Fprintf(c.out, "  Nonce: %d\n", b.Nonce)
	fmt.Fprintf(c.out, "  Hash:  %s\n", b.Hash)
	fmt.Fprintf(c.out, "  Txs:   %d\n", len(b.Transactions))
	return nil
}

func (c *CLI) cmdTamper(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("usage: tamper <block> <amount> [tx-index]")
	}
	id, err := c.resolveBlockID(args[0])
	if err != nil {
		return err
	}
	amt, err := parseAmount(args[1])
	if err != nil {
		return err
	}
	idx := 0
	if len(args) == 3 {
		if idx, err = strconv.Atoi(args[2]); err != nil {
			return fmt.Errorf("invalid tx index %q", args[2])
		}
	}

	b, err := c.daemon.Session().TamperAmount(id, idx, amt)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s block %s: tx %d amount is now %v\n", c.orange("Tampered"), shortID(b.ID), idx, amt)
	fmt.Fprintf(c.out, "  New hash: %s\n", b.Hash)

	res := c.daemon.Session().Validation()
	if res.Valid {
		fmt.Fprintln(c.out, "  Active chain is still valid")
		return nil
	}
	fmt.Fprintf(c.out, "  Active chain is %s, %d block(s) affected\n", c.red("INVALID"), len(res.Errors))
	if ve := res.Errors[res.FirstInvalidID]; ve != nil {
		fmt.Fprintf(c.out, "  %s\n", ve.Explanation)
	}
	return nil
}

func (c *CLI) cmdPath(args []string) error {
	tip := c.daemon.Session().View().ActiveTip
	if len(args) > 0 {
		id, err := c.resolveBlockID(args[0])
		if err != nil {
			return err
		}
		tip = id
	}

	path, err := c.daemon.Session().Path(tip)
	if err != nil {
		return err
	}
	res, err := c.daemon.Session().ValidateTip(tip)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n%s (%d blocks)\n", c.sectionHead("Path to "+shortID(tip)), len(path))
	for _, b := range path {
		mark := c.green("✓")
		if _, bad := res.Errors[b.ID]; bad {
			mark = c.red("✗")
		}
		who := ""
		if b.IsAttacker {
			who = c.orange(" [attacker]")
		}
		line := fmt.Sprintf("  %s #%-3d %s  %s  txs:%d nonce:%d%s",
			mark, b.Index, shortID(b.ID), shortHash(b.Hash), len(b.Transactions), b.Nonce, who)
		fmt.Fprintln(c.out, line)
		if ve := res.Errors[b.ID]; ve != nil {
			fmt.Fprintf(c.out, "        %s\n", c.truncate(ve.Explanation, 8))
			fmt.Fprintf(c.out, "        %s\n", c.dim(c.truncate(ve.Technical, 8)))
		}
	}
	if res.Valid {
		fmt.Fprintf(c.out, "\n  Chain is %s\n", c.green("valid"))
	} else {
		fmt.Fprintf(c.out, "\n  Chain is %s from block %s\n", c.red("INVALID"), shortID(res.FirstInvalidID))
	}
	return nil
}

func (c *CLI) cmdTips() {
	sess := c.daemon.Session()
	view := sess.View()
	tips := sess.Tips()
	blocks := sess.Blocks()

	fmt.Fprintf(c.out, "\n%s (%d)\n", c.sectionHead("Tips"), len(tips))
	for _, id := range tips {
		var flags []string
		if id == view.ActiveTip {
			flags = append(flags, c.green("active"))
		}
		if id == view.LongestTip {
			flags = append(flags, "longest")
		}
		length := chain.PathLength(blocks, id)
		if b, ok := blocks[id]; ok && b.IsAttacker {
			flags = append(flags, c.orange("attacker"))
		}
		fmt.Fprintf(c.out, "  %s  length %-3d %s\n", shortID(id), length, strings.Join(flags, " "))
	}
}

// cmdTree prints every block grouped by height, marking the active path.
func (c *CLI) cmdTree() {
	sess := c.daemon.Session()
	view := sess.View()

	onActive := make(map[string]bool)
	for _, b := range sess.ActivePath() {
		onActive[b.ID] = true
	}

	fmt.Fprintf(c.out, "\n%s\n", c.sectionHead("Block Tree"))
	for _, level := range sess.BlocksByHeight() {
		if len(level) == 0 {
			continue
		}
		cells := make([]string, 0, len(level))
		for _, b := range level {
			label := shortID(b.ID)
			if b.Parent() != "" {
				label += c.dim("←" + shortID(b.Parent()))
			}
			switch {
			case view.Result.Errors[b.ID] != nil:
				label = c.red(label)
			case b.IsAttacker:
				label = c.orange(label)
			case onActive[b.ID]:
				label = c.green(label)
			}
			cells = append(cells, label)
		}
		fmt.Fprintf(c.out, "  #%-3d %s\n", level[0].Index, strings.Join(cells, "  "))
	}
}

func (c *CLI) cmdSelect(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: select <block|longest>")
	}
	sess := c.daemon.Session()
	if strings.EqualFold(args[0], "longest") {
		tip := sess.SelectLongest()
		fmt.Fprintf(c.out, "Following the longest chain (tip %s)\n", shortID(tip))
		return nil
	}
	id, err := c.resolveBlockID(args[0])
	if err != nil {
		return err
	}
	if err := sess.SelectTip(id); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Active tip is now %s\n", shortID(id))
	return nil
}

func (c *CLI) cmdHash(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: hash <text>")
	}
	text := strings.Join(args, " ")
	fmt.Fprintf(c.out, "  %q\n  %s\n", text, c.daemon.Tutorial().HashText(text))
	return nil
}
