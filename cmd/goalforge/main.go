package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"goalforge/internal/chat"
	"goalforge/internal/config"
	"goalforge/internal/engine"
	"goalforge/internal/gateway"
	"goalforge/internal/logging"
	"goalforge/internal/plan"
	"goalforge/internal/store"
	"goalforge/internal/taxonomy"
	"goalforge/internal/vote"
)

var (
	// Global flags
	verbose    bool
	configPath string
	asJSON     bool

	// Logger
	logger *zap.Logger

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "goalforge",
	Short: "goalforge - structured goal decomposition",
	Long: `goalforge turns a free-form goal into a validated plan: compliance-screened
goal candidates, a five-phase structured solution of conditions of
satisfaction, and typed conditional elements deduplicated in the entity store.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if err := logging.Initialize("."); err != nil {
			logger.Warn("categorized logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// decomposeCmd runs the full pipeline for a goal
var decomposeCmd = &cobra.Command{
	Use:   "decompose [goal]",
	Short: "Decompose a goal into a five-phase structured solution",
	Long: `Runs the full pipeline:
  1. Generate three candidate goal phrasings (compliance-screened by vote)
  2. Generate 2-5 conditions of satisfaction per phase
  3. Extract and classify the conditional elements of each condition
  4. Persist everything with content-level dedup`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecompose,
}

// goalsCmd lists stored goals
var goalsCmd = &cobra.Command{
	Use:   "goals",
	Short: "List stored goals",
	RunE:  runGoals,
}

// solutionCmd shows one structured solution
var solutionCmd = &cobra.Command{
	Use:   "solution [id]",
	Short: "Show a structured solution with its conditional elements",
	Args:  cobra.ExactArgs(1),
	RunE:  runSolution,
}

// initCmd writes a starter config
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config already exists at %s", configPath)
		}
		if err := config.DefaultConfig().Save(configPath); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", configPath)
		return nil
	},
}

func runDecompose(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	input := joinArgs(args)
	logger.Info("decomposing goal", zap.String("input", input))

	client, err := gateway.NewClient(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create gateway client: %w", err)
	}
	defer client.Close()

	repo, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer repo.Close()

	catalog, err := taxonomy.Load(cfg.Taxonomy.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load taxonomy: %w", err)
	}

	orch := chat.New(client,
		chat.WithMaxAttempts(cfg.Retry.MaxAttempts),
		chat.WithBackoffFactor(cfg.Retry.BackoffFactor),
	)
	voter := vote.New(orch, cfg.Vote.Calls, cfg.Vote.Threshold)
	eng := engine.New(orch, voter, repo, catalog)

	sol, err := eng.Run(ctx, input)
	if err != nil {
		return err
	}

	if asJSON {
		return printJSON(sol)
	}
	printSolution(repo, sol)
	return nil
}

func runGoals(cmd *cobra.Command, args []string) error {
	repo, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer repo.Close()

	goals, err := repo.ListGoals()
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(goals)
	}
	if len(goals) == 0 {
		fmt.Println("No goals stored yet.")
		return nil
	}
	for _, g := range goals {
		mark := "ok"
		if !g.Compliant {
			mark = "rejected"
		}
		fmt.Printf("%s  [%s]  %s\n", g.ID, mark, g.Title)
		if g.Reason != "" {
			fmt.Printf("    %s\n", g.Reason)
		}
	}
	return nil
}

func runSolution(cmd *cobra.Command, args []string) error {
	repo, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer repo.Close()

	sol, err := repo.GetSolution(args[0])
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no solution with id %s", args[0])
	}
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(sol)
	}
	printSolution(repo, sol)
	return nil
}

func printSolution(repo store.Repository, sol *plan.StructuredSolution) {
	fmt.Printf("Goal: %s\n", sol.Goal.Title)
	fmt.Printf("Solution: %s\n", sol.ID)
	for _, phase := range plan.Phases {
		fmt.Printf("\n== %s ==\n", phase)
		for _, c := range sol.Phases[phase] {
			fmt.Printf("  [%s] %s\n", c.Status, c.Content)
			ces, err := repo.CEsForCOS(c.ID)
			if err != nil {
				continue
			}
			for _, ce := range ces {
				fmt.Printf("      - (%s) %s\n", ce.CEType, ce.Content)
			}
		}
	}
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}

// signalContext cancels on SIGINT/SIGTERM so a long pipeline run can be
// interrupted cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".goalforge/config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print results as JSON")

	rootCmd.AddCommand(decomposeCmd)
	rootCmd.AddCommand(goalsCmd)
	rootCmd.AddCommand(solutionCmd)
	rootCmd.AddCommand(initCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
