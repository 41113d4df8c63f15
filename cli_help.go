package main

import (
	"fmt"
	"strings"
)

type helpEntry struct {
	usage         []string
	aliases       []string
	description   []string
	useWhen       []string
	exampleInput  []string
	exampleOutput []string
	notes         []string
}

func normalizeHelpTopic(topic string) string {
	switch strings.ToLower(topic) {
	case "help", "?":
		return "help"
	case "status":
		return "status"
	case "tx", "send":
		return "tx"
	case "mempool", "pool":
		return "mempool"
	case "mine":
		return "mine"
	case "tamper":
		return "tamper"
	case "path", "chain":
		return "path"
	case "tips":
		return "tips"
	case "tree":
		return "tree"
	case "select":
		return "select"
	case "difficulty", "diff":
		return "difficulty"
	case "hash":
		return "hash"
	case "attack":
		return "attack"
	case "tutorial", "learn":
		return "tutorial"
	case "reset":
		return "reset"
	case "save":
		return "save"
	case "version":
		return "version"
	case "about":
		return "about"
	case "quit", "exit", "q":
		return "quit"
	default:
		return ""
	}
}

func helpCommandDetails() map[string]helpEntry {
	return map[string]helpEntry{
		"help": {
			usage:         []string{"help", "help <command>"},
			aliases:       []string{"?"},
			description:   []string{"Shows all commands or detailed help for one command."},
			useWhen:       []string{"you are not sure what command to run next"},
			exampleInput:  []string{"> help tamper"},
			exampleOutput: []string{"# Help: tamper", "  What it does:", "    Edits a transaction inside an existing block."},
		},
		"status": {
			usage:         []string{"status"},
			description:   []string{"Shows block count, tips, active chain validity, mining and attack state."},
			useWhen:       []string{"you want an overview of the simulator"},
			exampleInput:  []string{"> status"},
			exampleOutput: []string{"# Chain", "  Blocks:      4", "  Chain:       valid"},
		},
		"tx": {
			usage:         []string{"tx <from> <to> <amount>"},
			aliases:       []string{"send"},
			description:   []string{"Adds a transaction to the mempool. It is included in the next mined block."},
			useWhen:       []string{"you want something to put in a block"},
			exampleInput:  []string{"> tx Alice Bob 10"},
			exampleOutput: []string{"Queued 4f9Kx2...: Alice -> Bob 10"},
			notes:         []string{"amount must be a positive number", "names are free text; there are no balances"},
		},
		"mempool": {
			usage:         []string{"mempool", "mempool clear"},
			aliases:       []string{"pool"},
			description:   []string{"Lists pending transactions, or drops them all."},
			exampleInput:  []string{"> mempool"},
			exampleOutput: []string{"# Mempool (1)", "  4f9Kx2...  Alice -> Bob  10"},
		},
		"mine": {
			usage:       []string{"mine"},
			description: []string{"Searches for a nonce whose block hash starts with enough zeros, then appends the block to the active tip."},
			useWhen:     []string{"you want to confirm pending transactions"},
			exampleInput: []string{
				"> mine",
			},
			exampleOutput: []string{
				"Mined block 7cW1... at height 1",
				"  Nonce: 24",
				"  Hash:  0dd9c2f8...",
			},
			notes: []string{
				"mining refuses to build on an invalid chain",
				"each extra difficulty digit makes mining ~16x slower",
			},
		},
		"tamper": {
			usage:       []string{"tamper <block> <amount> [tx-index]"},
			description: []string{"Edits a transaction inside an existing block and recomputes only that block's hash."},
			useWhen:     []string{"you want to see why rewriting history breaks the chain"},
			exampleInput: []string{
				"> tamper 7cW1 999",
			},
			exampleOutput: []string{
				"Tampered block 7cW1...: tx 0 amount is now 999",
				"  Active chain is INVALID, 2 block(s) affected",
			},
			notes: []string{
				"blocks can be named by a unique id prefix, or genesis/tip/longest",
				"every later block becomes invalid because its parent is invalid",
			},
		},
		"path": {
			usage:         []string{"path [block]"},
			aliases:       []string{"chain"},
			description:   []string{"Shows the chain from genesis to a block with the validation status of each block."},
			exampleInput:  []string{"> path", "> path longest"},
			exampleOutput: []string{"  ✓ #0   genesis", "  ✗ #1   7cW1...", "        The hash doesn't match the block data."},
		},
		"tips": {
			usage:       []string{"tips"},
			description: []string{"Lists the ends of every branch, with length and which one is active."},
		},
		"tree": {
			usage:       []string{"tree"},
			description: []string{"Draws every block grouped by height, with forks side by side."},
		},
		"select": {
			usage:        []string{"select <block>", "select longest"},
			description:  []string{"Chooses which tip is active. 'longest' follows the longest chain again."},
			useWhen:      []string{"you want to mine on a different branch"},
			exampleInput: []string{"> select atk-3vQ", "> select longest"},
		},
		"difficulty": {
			usage:        []string{"difficulty [N]"},
			aliases:      []string{"diff"},
			description:  []string{"Shows or sets how many leading zero hex digits new blocks need."},
			exampleInput: []string{"> difficulty 3"},
			notes:        []string{"existing blocks keep the difficulty they were mined with"},
		},
		"hash": {
			usage:         []string{"hash <text>"},
			description:   []string{"Prints the SHA-256 of any text. Try changing one letter."},
			exampleInput:  []string{"> hash hello"},
			exampleOutput: []string{"  \"hello\"", "  2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
		},
		"attack": {
			usage:       []string{"attack", "attack start", "attack stop", "attack power <1-99>"},
			description: []string{"Runs a simulated majority attacker that mines a private branch from just behind the longest chain."},
			useWhen:     []string{"you want to see a longer branch take over"},
			notes: []string{
				"attacker blocks are marked in tips and tree",
				"higher power means shorter delays between attacker blocks",
			},
		},
		"tutorial": {
			usage:       []string{"tutorial", "tutorial next", "tutorial reset"},
			aliases:     []string{"learn"},
			description: []string{"Shows the current lesson and moves to the next one once its goal is met."},
		},
		"reset": {
			usage:       []string{"reset"},
			description: []string{"Throws away every block and transaction and starts over from genesis."},
			notes:       []string{"difficulty is kept"},
		},
		"save": {
			usage:       []string{"save"},
			description: []string{"Writes the current state to the data directory."},
			notes:       []string{"state is also saved after every change"},
		},
		"version": {
			usage:       []string{"version"},
			description: []string{"Prints the version."},
		},
		"about": {
			usage:       []string{"about"},
			description: []string{"Shows project and library information."},
		},
		"quit": {
			usage:       []string{"quit"},
			aliases:     []string{"exit", "q"},
			description: []string{"Stops mining and the attacker, saves, and exits."},
		},
	}
}

func (c *CLI) cmdHelp(args []string) {
	labelColor := "\033[38;2;170;255;0m"
	resetColor := "\033[0m"
	if c.noColor {
		labelColor = ""
		resetColor = ""
	}

	if len(args) > 0 {
		topic := normalizeHelpTopic(args[0])
		entry, ok := helpCommandDetails()[topic]
		if topic == "" || !ok {
			fmt.Fprintf(c.out, "No help for %q. Type 'help' for commands.\n", args[0])
			return
		}

		fmt.Fprintf(c.out, "\n%s\n\n", c.sectionHead("Help: "+topic))
		fmt.Fprintf(c.out, "  %sUsage%s:\n", labelColor, resetColor)
		for _, line := range entry.usage {
			fmt.Fprintf(c.out, "    %s\n", line)
		}
		fmt.Fprintln(c.out)

		if len(entry.aliases) > 0 {
			fmt.Fprintf(c.out, "  %sAliases%s:\n", labelColor, resetColor)
			fmt.Fprintf(c.out, "    %s\n", strings.Join(entry.aliases, ", "))
			fmt.Fprintln(c.out)
		}

		fmt.Fprintf(c.out, "  %sWhat it does%s:\n", labelColor, resetColor)
		for _, line := range entry.description {
			fmt.Fprintf(c.out, "    %s\n", line)
		}

		if len(entry.useWhen) > 0 {
			fmt.Fprintln(c.out)
			fmt.Fprintf(c.out, "  %sUse this when%s:\n", labelColor, resetColor)
			for _, line := range entry.useWhen {
				fmt.Fprintf(c.out, "    %s\n", line)
			}
		}

		if len(entry.exampleInput) > 0 {
			fmt.Fprintln(c.out)
			fmt.Fprintf(c.out, "  %sExample input%s:\n", labelColor, resetColor)
			for _, line := range entry.exampleInput {
				fmt.Fprintf(c.out, "    %s\n", line)
			}
		}

		if len(entry.exampleOutput) > 0 {
			fmt.Fprintln(c.out)
			fmt.Fprintf(c.out, "  %sexample output%s:\n", labelColor, resetColor)
			for _, line := range entry.exampleOutput {
				fmt.Fprintf(c.out, "    %s\n", line)
			}
		}

		if len(entry.notes) > 0 {
			fmt.Fprintln(c.out)
			fmt.Fprintf(c.out, "  %sNotes%s:\n", labelColor, resetColor)
			for _, line := range entry.notes {
				fmt.Fprintf(c.out, "    %s-%s %s\n", labelColor, resetColor, line)
			}
		}
		return
	}

	fmt.Fprintf(c.out, `
%s
  tx <from> <to> <amt>   Add a transaction to the mempool
  mempool [clear]        Show or clear pending transactions
  mine                   Mine a block on the active tip
  tamper <blk> <amt> [i] Change a transaction amount inside a block
  path [block]           Show and validate the chain up to a block
  tips                   List branch tips
  tree                   Draw all blocks by height
  select <blk|longest>   Choose the active tip
  difficulty [N]         Show or set mining difficulty
  hash <text>            SHA-256 playground

%s
  attack [start|stop|power N] Simulate a majority attacker
  tutorial [next|reset]  Guided lessons
  status                 Show simulator status
  reset                  Start over from genesis
  save                   Save state to disk
  version                Print version
  about                  About this software
  quit                   Exit (saves automatically)
  help <command>         Show detailed help for a command

  Need more info on any command? Type: help <command>
  Example: help tamper
`, c.sectionHead("Chain"), c.sectionHead("Simulator"))
}
