// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/poiesic/kbase"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/ingestion"
	"github.com/poiesic/kbase/notify"
	"github.com/poiesic/kbase/search"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "kbase",
		Usage: "Local knowledge bases for files, web pages and notes",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "TOML configuration file, may be repeated (later files win)",
			},
			&cli.StringFlag{
				Name:  "root",
				Usage: "Storage root directory, overrides the configuration",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Also write JSON logs to this file",
			},
		},
		DisableSliceFlagSeparator: true,
		Before:                    setupLogger,
		After:                     teardownLogger,
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a knowledge base",
				ArgsUsage: "<base>",
				Action:    createCommand,
			},
			{
				Name:      "add",
				Usage:     "Ingest files, directories, web pages, sitemaps or notes",
				ArgsUsage: "<base>",
				Action:    addCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "file", Aliases: []string{"f"}, Usage: "Local file"},
					&cli.StringSliceFlag{Name: "dir", Aliases: []string{"d"}, Usage: "Local directory, walked recursively"},
					&cli.StringSliceFlag{Name: "url", Aliases: []string{"u"}, Usage: "Web page"},
					&cli.StringSliceFlag{Name: "sitemap", Usage: "Sitemap whose pages are crawled"},
					&cli.StringSliceFlag{Name: "note", Aliases: []string{"n"}, Usage: "Inline text"},
					&cli.BoolFlag{Name: "force", Usage: "Re-ingest sources that were already loaded"},
					&cli.StringFlag{Name: "item-id", Usage: "Identifier shown in progress output"},
				},
			},
			{
				Name:      "search",
				Usage:     "Search a knowledge base",
				ArgsUsage: "<base> <query...>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "explain", Usage: "Print each search stage to stderr"},
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove loaded sources by unique id",
				ArgsUsage: "<base> <unique-id...>",
				Action:    removeCommand,
			},
			{
				Name:      "loaders",
				Usage:     "List the sources loaded into a knowledge base",
				ArgsUsage: "<base>",
				Action:    loadersCommand,
			},
			{
				Name:      "reset",
				Usage:     "Remove every source from a knowledge base",
				ArgsUsage: "<base>",
				Action:    resetCommand,
			},
			{
				Name:      "delete",
				Usage:     "Delete a knowledge base and its directory",
				ArgsUsage: "<base>",
				Action:    deleteCommand,
			},
			{
				Name:   "config",
				Usage:  "Print the effective configuration",
				Action: configCommand,
			},
		},
	}
}

func loadConfig(c *cli.Context) (*kbase.Config, error) {
	cfg, err := kbase.LoadConfig(c.StringSlice("config")...)
	if err != nil {
		return nil, err
	}
	if root := c.String("root"); root != "" {
		cfg.StorageRoot = root
	}
	return cfg, nil
}

func openService(c *cli.Context) (*kbase.Service, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return kbase.NewService(cfg,
		kbase.WithNotifier(notify.NewProgressPrinter(c.App.ErrWriter)),
		kbase.WithLogger(slog.Default()))
}

func baseArg(c *cli.Context) (string, error) {
	id := c.Args().First()
	if id == "" {
		return "", errors.New("knowledge base id is required")
	}
	return id, nil
}

func createCommand(c *cli.Context) error {
	id, err := baseArg(c)
	if err != nil {
		return err
	}
	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Create(c.Context, svc.Config().BaseParams(id)); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Created %s in %s\n", id, svc.Config().StorageRoot)
	return nil
}

// descriptors collects the add command's sources in flag order.
func descriptors(c *cli.Context) []core.ContentDescriptor {
	var ds []core.ContentDescriptor
	for _, path := range c.StringSlice("file") {
		ds = append(ds, core.File(path, 0))
	}
	for _, path := range c.StringSlice("dir") {
		ds = append(ds, core.Directory(path))
	}
	for _, address := range c.StringSlice("url") {
		ds = append(ds, core.URL(address))
	}
	for _, address := range c.StringSlice("sitemap") {
		ds = append(ds, core.Sitemap(address))
	}
	for _, text := range c.StringSlice("note") {
		ds = append(ds, core.Note(text))
	}

	itemID := c.String("item-id")
	for i := range ds {
		id := itemID
		if id == "" {
			id = ds[i].Source()
		}
		ds[i] = ds[i].WithItemID(id)
	}
	return ds
}

func addCommand(c *cli.Context) error {
	id, err := baseArg(c)
	if err != nil {
		return err
	}
	ds := descriptors(c)
	if len(ds) == 0 {
		return errors.New("nothing to add: use --file, --dir, --url, --sitemap or --note")
	}

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	params := svc.Config().BaseParams(id)
	pending := make([]*ingestion.Pending, len(ds))
	for i, d := range ds {
		if pending[i], err = svc.AddAsync(params, d, c.Bool("force")); err != nil {
			return fmt.Errorf("%s %s: %w", d.Kind, label(d), err)
		}
	}

	start := time.Now()
	var total uint
	for i, p := range pending {
		outcome, err := p.Wait(c.Context)
		if err != nil {
			return err
		}
		total += outcome.EntriesAdded
		printOutcome(c.App.Writer, ds[i], outcome)
	}
	fmt.Fprintf(c.App.Writer, "Added %d entries to %s in %s\n", total, id, time.Since(start).Truncate(time.Millisecond))
	return nil
}

// label shortens notes for display.
func label(d core.ContentDescriptor) string {
	s := d.Source()
	if d.Kind == core.KindNote {
		s = strings.Join(strings.Fields(s), " ")
		if r := []rune(s); len(r) > 40 {
			s = string(r[:40]) + "..."
		}
	}
	return s
}

func printOutcome(w io.Writer, d core.ContentDescriptor, o core.IngestionOutcome) {
	switch {
	case o.IsZero():
		fmt.Fprintf(w, "%-9s %s: failed, see log\n", d.Kind, label(d))
	case d.Kind == core.KindDirectory:
		fmt.Fprintf(w, "%-9s %s: %d entries from %d sources\n", d.Kind, label(d), o.EntriesAdded, len(o.UniqueIDs))
	case o.EntriesAdded == 0:
		fmt.Fprintf(w, "%-9s %s: already loaded (%s)\n", d.Kind, label(d), o.UniqueID)
	default:
		fmt.Fprintf(w, "%-9s %s: %d entries (%s)\n", d.Kind, label(d), o.EntriesAdded, o.UniqueID)
	}
}

func searchCommand(c *cli.Context) error {
	id, err := baseArg(c)
	if err != nil {
		return err
	}
	query := strings.Join(c.Args().Tail(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("query is required")
	}

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	var monitor search.SearchMonitor
	if c.Bool("explain") {
		monitor = &explainMonitor{w: c.App.ErrWriter}
	}
	results := svc.SearchWithMonitor(c.Context, svc.Config().BaseParams(id), query, monitor)
	if len(results) == 0 {
		fmt.Fprintln(c.App.Writer, "No results")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(c.App.Writer, "%d. [%.3f] %s\n", i+1, r.Score, r.Source)
		fmt.Fprintf(c.App.Writer, "   %s\n\n", strings.ReplaceAll(strings.TrimSpace(r.Content), "\n", "\n   "))
	}
	return nil
}

// explainMonitor prints each search stage.
type explainMonitor struct {
	w io.Writer
}

var _ search.SearchMonitor = (*explainMonitor)(nil)

func (m *explainMonitor) Start(baseID, query string) {
	fmt.Fprintf(m.w, "search %s for %q\n", baseID, query)
}

func (m *explainMonitor) IndexChecked(path string, sizeBytes int64) {
	fmt.Fprintf(m.w, "  index %s (%d bytes)\n", path, sizeBytes)
}

func (m *explainMonitor) EngineOpened(elapsed time.Duration) {
	fmt.Fprintf(m.w, "  opened in %s\n", elapsed.Truncate(time.Microsecond))
}

func (m *explainMonitor) Queried(hits []core.Chunk, elapsed time.Duration) {
	fmt.Fprintf(m.w, "  %d candidates in %s\n", len(hits), elapsed.Truncate(time.Microsecond))
}

func (m *explainMonitor) VerbatimHit(chunk core.Chunk) {
	fmt.Fprintf(m.w, "  verbatim match boosted: %s #%d\n", chunk.Source, chunk.Position)
}

func (m *explainMonitor) Failed(err error) {
	fmt.Fprintf(m.w, "  failed: %v\n", err)
}

func (m *explainMonitor) Finish(results []core.Chunk) {
	fmt.Fprintf(m.w, "  %d results\n", len(results))
}

func removeCommand(c *cli.Context) error {
	id, err := baseArg(c)
	if err != nil {
		return err
	}
	ids := c.Args().Tail()
	if len(ids) == 0 {
		return errors.New("at least one unique id is required")
	}

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	removed := svc.Remove(c.Context, svc.Config().BaseParams(id), ids...)
	fmt.Fprintf(c.App.Writer, "Removed %d of %d sources from %s\n", removed, len(ids), id)
	if removed < len(ids) {
		return fmt.Errorf("%d sources could not be removed", len(ids)-removed)
	}
	return nil
}

func loadersCommand(c *cli.Context) error {
	id, err := baseArg(c)
	if err != nil {
		return err
	}
	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	records, err := svc.Loaders(c.Context, id)
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Fprintf(c.App.Writer, "%s\t%s\t%d\t%s\t%s\n", r.UniqueID, r.LoaderType, r.EntriesAdded, r.AddedAt.Format(time.RFC3339), r.Source)
	}
	return nil
}

func resetCommand(c *cli.Context) error {
	id, err := baseArg(c)
	if err != nil {
		return err
	}
	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Reset(c.Context, svc.Config().BaseParams(id)); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Reset %s\n", id)
	return nil
}

func deleteCommand(c *cli.Context) error {
	id, err := baseArg(c)
	if err != nil {
		return err
	}
	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Delete(c.Context, id); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Deleted %s\n", id)
	return nil
}

func configCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Embedding.APIKey != "" {
		cfg.Embedding.APIKey = "********"
	}
	return toml.NewEncoder(c.App.Writer).Encode(cfg)
}
