package app

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"evidencebot/internal/config"
	"evidencebot/internal/evidence"
)

func keywordsCommand() *cli.Command {
	return &cli.Command{
		Name:  "keywords",
		Usage: "Show or extend the pass/fail keywords and ticket prefixes",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "Print the effective keyword lists",
				Action: func(c *cli.Context) error {
					cfg, err := config.Load()
					if err != nil {
						return err
					}
					kw, err := evidence.LoadKeywords(cfg.KeywordsPath)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "success: %s\n", strings.Join(kw.Success, ", "))
					fmt.Fprintf(c.App.Writer, "fail:    %s\n", strings.Join(kw.Fail, ", "))
					fmt.Fprintf(c.App.Writer, "prefix:  %s\n", strings.Join(kw.TicketPrefixes, ", "))
					return nil
				},
			},
			{
				Name:      "add",
				Usage:     "Append a keyword to the keywords file",
				ArgsUsage: "<success|fail|prefix> <word>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return cli.Exit("usage: evidencebot keywords add <success|fail|prefix> <word>", 2)
					}
					cfg, err := config.Load()
					if err != nil {
						return err
					}
					if cfg.KeywordsPath == "" {
						return cli.Exit("keywords_path is not set", 2)
					}
					if err := evidence.AppendKeyword(cfg.KeywordsPath, c.Args().Get(0), c.Args().Get(1)); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "added %q to %s\n", c.Args().Get(1), cfg.KeywordsPath)
					return nil
				},
			},
		},
	}
}
