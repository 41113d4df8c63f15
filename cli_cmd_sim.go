package main

import (
	"errors"
	"fmt"
	"strconv"
)

func (c *CLI) cmdAttack(args []string) error {
	a := c.daemon.Attacker()
	if len(args) == 0 || args[0] == "status" {
		st := a.Status()
		state := "idle"
		if st.Running {
			state = c.orange("running")
		}
		fmt.Fprintf(c.out, `
%s
  State:       %s
  Power:       %d%%
  Difficulty:  %d
  Delay:       %dms between blocks
  Fork Base:   %s
  Tip:         %s
  Blocks:      %d
`,
			c.sectionHead("Attack"),
			state, st.Power, st.Difficulty, st.DelayMS,
			shortID(st.ForkBase), shortID(st.Tip), st.Blocks)
		return nil
	}

	switch args[0] {
	case "start":
		if err := a.Start(c.ctx); err != nil {
			if errors.Is(err, ErrAttackRunning) {
				fmt.Fprintln(c.out, "Attack already running")
				return nil
			}
			return err
		}
		st := a.Status()
		fmt.Fprintf(c.out, "%s with %d%% hash power, forking from %s\n",
			c.orange("Attack started"), st.Power, shortID(st.ForkBase))
		fmt.Fprintln(c.out, "  Watch 'tips' to see the private branch grow")
	case "stop":
		if !a.Running() {
			fmt.Fprintln(c.out, "Attack not running")
			return nil
		}
		a.Stop()
		fmt.Fprintf(c.out, "Attack stopped after %d block(s)\n", a.Status().Blocks)
	case "power":
		if len(args) < 2 {
			fmt.Fprintf(c.out, "Attacker power: %d%%\n", a.Power())
			return nil
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("usage: attack power <1-99>")
		}
		if err := a.SetPower(n); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Attacker power set to %d%% (one block every %s)\n", n, a.Delay())
	default:
		return fmt.Errorf("usage: attack [start|stop|status|power <N>]")
	}
	return nil
}

func (c *CLI) cmdTutorial(args []string) error {
	t := c.daemon.Tutorial()
	cp := c.daemon.Session().Progress()

	if len(args) > 0 {
		switch args[0] {
		case "next":
			stage, err := t.Next(cp)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s %s\n", c.green("Stage complete!"), stage)
		case "reset":
			t.Reset()
			fmt.Fprintln(c.out, "Tutorial restarted")
		default:
			return fmt.Errorf("usage: tutorial [next|reset]")
		}
	}

	p := t.Progress(cp)
	fmt.Fprintf(c.out, "\n%s\n", c.sectionHead("Tutorial: "+t.Stage().String()))
	fmt.Fprintf(c.out, "  %s\n", t.Hint())
	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "  Hash experiments: %d\n", p.HashExperiments)
	fmt.Fprintf(c.out, "  Pending txs:      %d\n", p.MempoolSize)
	fmt.Fprintf(c.out, "  Mined blocks:     %d\n", p.MinedBlocks)
	fmt.Fprintf(c.out, "  Broken blocks:    %d\n", p.BrokenBlocks)
	if t.CanAdvance(cp) {
		fmt.Fprintf(c.out, "\n  Ready! Type %s to continue\n", c.green("tutorial next"))
	}
	return nil
}
