package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/pders01/fxdigest/internal/config"
	"github.com/pders01/fxdigest/internal/debuglog"
	"github.com/pders01/fxdigest/internal/fetch"
	"github.com/pders01/fxdigest/internal/storage"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EE964B"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// maxTitleWidth is measured in terminal cells.
const maxTitleWidth = 96

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run a digest cycle on every watch interval until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			return a.watch(cmd.Context(), cmd.OutOrStdout())
		})
	},
}

func (a *app) watch(ctx context.Context, out io.Writer) error {
	if addr := a.cfg.Metrics.ListenAddr; addr != "" {
		go func() {
			if err := a.metrics.Serve(ctx, addr); err != nil {
				debuglog.Errorf("metrics server: %v", err)
			}
		}()
		debuglog.Infof("serving metrics on %s", addr)
	}

	ticker := time.NewTicker(a.cfg.Pipeline.WatchInterval)
	defer ticker.Stop()

	for {
		if err := a.runCycle(ctx, out); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Credential and persistence failures end the loop.
			if !errors.Is(err, errDelivery) {
				return err
			}
			debuglog.Errorf("digest cycle failed, retrying on next tick: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

var pagesCmd = &cobra.Command{
	Use:   "pages [n]",
	Short: "Fetch listing pages 1..n and store new articles",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n := -1
		if len(args) == 1 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 0 {
				return fmt.Errorf("invalid page count %q", args[0])
			}
			n = v
		}
		return withApp(cmd.Context(), func(a *app) error {
			if n < 0 {
				n = a.cfg.Pipeline.ListingPageCount
			}
			return a.printPages(cmd.Context(), cmd.OutOrStdout(), n)
		})
	},
}

func (a *app) printPages(ctx context.Context, out io.Writer, n int) error {
	pages, err := a.manager.FetchPages(ctx, n)
	if err != nil {
		return err
	}
	for i, page := range pages {
		fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Page %d (%d articles)", i+1, len(page))))
		for _, article := range page {
			fmt.Fprintf(out, "  %s\n  %s\n", runewidth.Truncate(article.Title, maxTitleWidth, "…"), dimStyle.Render(article.Link))
		}
	}
	return nil
}

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search stored articles",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			return a.printSearch(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "), searchLimit)
		})
	},
}

func (a *app) printSearch(ctx context.Context, out io.Writer, query string, limit int) error {
	if a.index == nil {
		return errors.New("search index is disabled (database.search_index is empty)")
	}

	count, err := a.index.DocCount()
	if err != nil {
		return err
	}
	if count == 0 {
		n, err := a.index.Reindex(ctx, a.store)
		if err != nil {
			return fmt.Errorf("building search index: %w", err)
		}
		debuglog.Infof("indexed %d stored articles", n)
	}

	results, err := a.index.Search(query, limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "No matching articles.")
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(out, "%s %s\n  %s\n", titleStyle.Render(r.Title), dimStyle.Render(fmt.Sprintf("(%.2f)", r.Score)), r.Link)
	}
	return nil
}

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "Manage stored articles",
}

var articlesRmCmd = &cobra.Command{
	Use:   "rm <url>",
	Short: "Delete a stored article so it is fetched again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			return a.removeArticle(cmd.Context(), cmd.OutOrStdout(), args[0])
		})
	},
}

func (a *app) removeArticle(ctx context.Context, out io.Writer, link string) error {
	canonical, err := a.manager.Canonicalize(link)
	if err != nil {
		return err
	}

	stored, err := a.store.Get(ctx, canonical)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no stored article for %s", canonical)
	}
	if err != nil {
		return err
	}

	if err := a.store.Delete(ctx, canonical); err != nil {
		return err
	}
	if a.index != nil {
		if err := a.index.Delete(stored.ID); err != nil {
			debuglog.Warnf("removing %s from search index: %v", canonical, err)
		}
	}

	fmt.Fprintf(out, "Removed %s\n", canonical)
	return nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configGenCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate default config and user agent files",
	Run: func(cmd *cobra.Command, args []string) {
		home, _ := os.UserHomeDir()
		configFile := filepath.Join(home, ".config", "fxdigest", "config.toml")
		if configPath != "" {
			configFile = configPath
		}

		if err := config.GenerateDefaultConfig(configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			return
		}
		fmt.Printf("Generated default configuration at: %s\n", configFile)

		headersFile := config.DefaultHeadersFile()
		if err := fetch.WriteUserAgents(headersFile, fetch.DefaultUserAgents); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write user agents: %v\n", err)
			return
		}
		fmt.Printf("Generated user agent list at: %s\n", headersFile)
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "Maximum number of results")
	articlesCmd.AddCommand(articlesRmCmd)
	configCmd.AddCommand(configGenCmd)
}
