package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pders01/fxdigest/internal/config"
	"github.com/pders01/fxdigest/internal/debuglog"
)

// Version is the version of the application, set at build time
var Version = "dev"

var (
	configPath string
	dbPath     string
	logLevel   string
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "fxdigest",
	Short: "Forex news and economic calendar digest",
	Long: `fxdigest scrapes the latest forex news and the economic calendar for the
coming days, stores new articles, and asks a language model for a briefing.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !quiet {
			showBanner()
		}
		return withApp(cmd.Context(), func(a *app) error {
			return a.runCycle(cmd.Context(), cmd.OutOrStdout())
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fxdigest %s\n", Version)
		fmt.Println("Forex news and calendar digest")
		fmt.Println("github.com/pders01/fxdigest")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to database file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error, off (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Skip startup banner")

	rootCmd.AddCommand(versionCmd, watchCmd, pagesCmd, searchCmd, articlesCmd, configCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig applies the persistent flag overrides and starts the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if dbPath != "" {
		cfg.Database.Path = expandTilde(dbPath)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	level := debuglog.ParseLogLevel(cfg.Log.Level)
	if cfg.Log.File == "-" {
		debuglog.SetOutput(level, os.Stderr)
	} else if err := debuglog.Setup(level, cfg.Log.File); err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	return cfg, nil
}

func expandTilde(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

func showBanner() {
	colors := []lipgloss.Color{
		lipgloss.Color("#F4D35E"),
		lipgloss.Color("#EE964B"),
		lipgloss.Color("#0D3B66"),
	}

	lines := []string{
		"┏━╸╻ ╻╺┳┓╻┏━╸┏━╸┏━┓╺┳╸",
		"┣╸ ┏╋┛ ┃┃┃┃╺┓┣╸ ┗━┓ ┃ ",
		"╹  ╹ ╹╺┻┛╹┗━┛┗━╸┗━┛ ╹ ",
		"",
		"news + calendar briefing",
	}

	var coloredLines []string
	for i, line := range lines {
		if line == "" {
			coloredLines = append(coloredLines, line)
			continue
		}
		style := lipgloss.NewStyle().
			Foreground(colors[i%len(colors)]).
			Bold(i < 3)
		coloredLines = append(coloredLines, style.Render(line))
	}

	borderStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(lipgloss.Color("#EE964B")).
		Padding(0, 2).
		MarginBottom(1)

	fmt.Fprintln(os.Stderr, borderStyle.Render(lipgloss.JoinVertical(lipgloss.Center, coloredLines...)))
}
