package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hp77-creator/clipkeep/internal/search"
	"github.com/hp77-creator/clipkeep/pkg/types"
)

// lineWidth is the cell budget for one entry in human output
const lineWidth = 80

// newCLIApp creates the CLI application with all commands.
func newCLIApp() *cli.App {
	app := &cli.App{
		Name:    "clipkeep",
		Usage:   "Clipboard history with search",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data-dir", Aliases: []string{"d"}, EnvVars: []string{"CLIPKEEP_DATA_DIR"}, Usage: "Data directory (default ~/.clipkeep)"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Config file (default <data-dir>/config.toml)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "API port override"},
			&cli.StringFlag{Name: "api", Usage: "Daemon base URL (default http://127.0.0.1:<port>)"},
		},
		Commands: []*cli.Command{
			runCmd(),
			stopCmd(),
			listCmd(),
			searchCmd(),
			pinCmd(true),
			pinCmd(false),
			tagCmd(),
			deleteCmd(),
			clearCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// clientFor builds an API client from global flags and config
func clientFor(c *cli.Context) (*apiClient, error) {
	if base := c.String("api"); base != "" {
		return newAPIClient(strings.TrimRight(base, "/")), nil
	}
	cfg, _, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return newAPIClient(fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)), nil
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Print raw JSON"}
}

// listCmd creates the list command.
func listCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List history, newest first (pinned on top)",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Maximum entries"},
			jsonFlag(),
		},
		Action: func(c *cli.Context) error {
			client, err := clientFor(c)
			if err != nil {
				return err
			}
			entries, err := client.list(c.Context, c.Int("limit"))
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, entries)
			}
			for _, e := range entries {
				printEntry(c.App.Writer, e, search.Display(search.SearchText(e), lineWidth), "")
			}
			return nil
		},
	}
}

// searchCmd creates the search command.
func searchCmd() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search history (supports tag:, -tag:, type:, has:ocr, pinned:)",
		ArgsUsage: "<query...>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "exact|fuzzy (default from config)"},
			&cli.Float64Flag{Name: "threshold", Aliases: []string{"t"}, Usage: "Fuzzy threshold 0.1-0.9"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Maximum results"},
			jsonFlag(),
		},
		Action: func(c *cli.Context) error {
			query := strings.Join(c.Args().Slice(), " ")
			client, err := clientFor(c)
			if err != nil {
				return err
			}
			results, err := client.search(c.Context, query, c.String("mode"), c.Float64("threshold"), c.Int("limit"))
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, results)
			}
			for _, r := range results {
				printEntry(c.App.Writer, r.Entry, emphasize(r.Display, r.Highlights), fmt.Sprintf("%.2f", r.Score))
			}
			return nil
		},
	}
}

// pinCmd creates the pin and unpin commands.
func pinCmd(pinned bool) *cli.Command {
	name, usage := "pin", "Pin an entry to the top of the history"
	if !pinned {
		name, usage = "unpin", "Unpin an entry"
	}
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireID(c)
			if err != nil {
				return err
			}
			client, err := clientFor(c)
			if err != nil {
				return err
			}
			return client.setPinned(c.Context, id, pinned)
		},
	}
}

// tagCmd creates the tag command.
func tagCmd() *cli.Command {
	return &cli.Command{
		Name:      "tag",
		Usage:     "Replace an entry's tags",
		ArgsUsage: "<id> [tag...]",
		Action: func(c *cli.Context) error {
			id, err := requireID(c)
			if err != nil {
				return err
			}
			client, err := clientFor(c)
			if err != nil {
				return err
			}
			tags := parseTags(c.Args().Tail())
			return client.setTags(c.Context, id, tags)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete an entry",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireID(c)
			if err != nil {
				return err
			}
			client, err := clientFor(c)
			if err != nil {
				return err
			}
			return client.remove(c.Context, id)
		},
	}
}

// clearCmd creates the clear command.
func clearCmd() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Delete the whole history",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Skip the safety check"},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("yes") {
				return fmt.Errorf("refusing to clear history without --yes")
			}
			client, err := clientFor(c)
			if err != nil {
				return err
			}
			return client.clear(c.Context)
		},
	}
}

func requireID(c *cli.Context) (string, error) {
	if c.NArg() == 0 || strings.TrimSpace(c.Args().First()) == "" {
		return "", fmt.Errorf("entry id is required")
	}
	return c.Args().First(), nil
}

// parseTags accepts tags as separate arguments or comma-separated
func parseTags(args []string) []string {
	tags := []string{}
	for _, arg := range args {
		for _, tag := range strings.Split(arg, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printEntry(w io.Writer, e types.Entry, text, score string) {
	marker := " "
	if e.Pinned {
		marker = "*"
	}
	kind := "txt"
	if e.Type == types.TypeImage {
		kind = "img"
	}
	line := fmt.Sprintf("%s %s %s", marker, e.ID, kind)
	if score != "" {
		line += " " + score
	}
	if len(e.Tags) > 0 {
		line += " #" + strings.Join(e.Tags, " #")
	}
	fmt.Fprintf(w, "%s  %s\n", line, text)
}

// emphasize brackets highlighted runes of an already truncated display string
func emphasize(display string, highlights []int) string {
	marked := make(map[int]bool, len(highlights))
	for _, h := range highlights {
		marked[h] = true
	}

	var b strings.Builder
	open := false
	for i, r := range []rune(display) {
		if marked[i] && !open {
			b.WriteByte('[')
			open = true
		} else if !marked[i] && open {
			b.WriteByte(']')
			open = false
		}
		b.WriteRune(r)
	}
	if open {
		b.WriteByte(']')
	}
	return b.String()
}
