// cmd/pantry/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mcp-pantry/internal/ai"
	"mcp-pantry/internal/classify"
	"mcp-pantry/internal/config"
	"mcp-pantry/internal/logging"
	"mcp-pantry/internal/models"
	"mcp-pantry/internal/server"
	"mcp-pantry/internal/units"
)

const version = "1.0.0"

var (
	configPath string
	host       string
	port       int
	dbPath     string
	rulesPath  string
	logLevel   string
	category   string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "pantry",
	Short:         "Household food inventory and recipe assistant",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd)
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err = logging.New(cfg.Logging.Level, cfg.Logging.Development)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP tool server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var classifyCmd = &cobra.Command{
	Use:   "classify <name>",
	Short: "Show category, storage location, shelf life and unit for a food",
	Args:  cobra.ExactArgs(1),
	RunE:  runClassify,
}

var formatCmd = &cobra.Command{
	Use:   "format <quantity> <unit>",
	Short: "Format a quantity the way the inventory displays it",
	Args:  cobra.ExactArgs(2),
	RunE:  runFormat,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "pantry.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "Classification rules file (defaults to built-in rules)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	serveCmd.Flags().StringVar(&host, "host", "", "Host address")
	serveCmd.Flags().IntVar(&port, "port", 0, "Port for HTTP transport")
	serveCmd.Flags().StringVar(&dbPath, "db-path", "", "Database path")

	classifyCmd.Flags().StringVar(&category, "category", "", "Known category; skips detection")

	rootCmd.AddCommand(serveCmd, classifyCmd, formatCmd)
}

// applyFlags lets explicitly set flags win over file and environment.
func applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = host
	}
	if flags.Changed("port") {
		cfg.Server.Port = port
	}
	if flags.Changed("db-path") {
		cfg.Storage.DBPath = dbPath
	}
	if flags.Changed("rules") {
		cfg.Rules.Path = rulesPath
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	generator, err := ai.NewGenerator(ctx, cfg.Generator(), logger)
	if err != nil {
		return fmt.Errorf("failed to create recipe generator: %w", err)
	}

	srv, err := server.NewPantryServer(&server.Config{
		Host:       cfg.Server.Host,
		Port:       cfg.Server.Port,
		DBPath:     cfg.Storage.DBPath,
		RulesPath:  cfg.Rules.Path,
		WatchRules: cfg.Rules.Watch,
	}, generator, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("pantry server starting",
		zap.String("addr", cfg.Addr()),
		zap.String("db_path", cfg.Storage.DBPath),
		zap.String("ai_provider", cfg.AI.Provider))

	err = srv.Start(ctx)
	logger.Info("shutting down")
	if stopErr := srv.Stop(); stopErr != nil {
		logger.Warn("error during shutdown", zap.Error(stopErr))
	}
	return err
}

func newClassifier() (*classify.Classifier, error) {
	if cfg.Rules.Path == "" {
		return classify.NewDefault()
	}
	rules, err := classify.LoadRules(cfg.Rules.Path)
	if err != nil {
		return nil, err
	}
	return classify.New(rules), nil
}

func runClassify(cmd *cobra.Command, args []string) error {
	classifier, err := newClassifier()
	if err != nil {
		return err
	}

	var cat models.Category
	if category != "" {
		if cat, err = models.ParseCategory(category); err != nil {
			return err
		}
	}

	c := classifier.Classify(args[0], cat)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-12s %s\n", "name:", c.Name)
	fmt.Fprintf(out, "%-12s %s\n", "category:", c.Category)
	fmt.Fprintf(out, "%-12s %s\n", "storage:", c.StorageLocation)
	fmt.Fprintf(out, "%-12s %d days\n", "shelf life:", c.ShelfLifeDays)
	fmt.Fprintf(out, "%-12s %s\n", "unit:", c.DefaultUnit)
	return nil
}

func runFormat(cmd *cobra.Command, args []string) error {
	q, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid quantity %q: %w", args[0], err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), units.FormatQuantityWithUnit(q, args[1]))
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
