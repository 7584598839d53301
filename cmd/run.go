package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/evofit/evofit/internal/evolve"
	"github.com/evofit/evofit/internal/phrase"
	"github.com/spf13/cobra"
)

var (
	target        string
	popSize       int
	generations   int
	eliteFraction float64
	minError      float64
	seed          uint64
	parallelism   int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run single-shot optimization",
	Long:  `Evolves a population of random letter strings toward the target phrase and prints the surviving elite.`,
	RunE:  runOptimization,
}

func init() {
	runCmd.Flags().StringVar(&target, "target", "", "Target phrase (required)")
	runCmd.Flags().IntVar(&popSize, "pop", 256, "Population size")
	runCmd.Flags().IntVar(&generations, "generations", 1000, "Max generations")
	runCmd.Flags().Float64Var(&eliteFraction, "elite", 0.1, "Elite fraction of the population")
	runCmd.Flags().Float64Var(&minError, "min-error", 0.08, "Error threshold for early stop")
	runCmd.Flags().Uint64Var(&seed, "seed", 42, "Random seed")
	runCmd.Flags().IntVar(&parallelism, "parallelism", 0, "Worker count (0 = GOMAXPROCS)")

	runCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(runCmd)
}

// logObserver reports the elite's best score once per generation.
type logObserver struct{}

func (logObserver) Visit(generation int, elite []*phrase.Text, scores []float64) {
	slog.Debug("Generation complete", "generation", generation, "best_score", scores[0], "best", elite[0].String())
}

func runOptimization(cmd *cobra.Command, args []string) error {
	slog.Info("Starting optimization", "target", target, "pop", popSize, "generations", generations)

	env, err := phrase.NewEnvironment(target, seed)
	if err != nil {
		return fmt.Errorf("failed to create environment: %w", err)
	}

	engine, err := evolve.New[*phrase.Text](popSize)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	eliteCount := int(float64(popSize) * eliteFraction)
	if eliteCount < 0 {
		eliteCount = 0
	}
	out := make([]*phrase.Text, eliteCount)

	start := time.Now()
	result, err := engine.Run(cmd.Context(), evolve.RunConfig{
		MaxGenerations: generations,
		MinError:       minError,
		EliteFraction:  eliteFraction,
		Seed:           seed,
		Parallelism:    parallelism,
	}, env, logObserver{}, phrase.DefaultStrategies(), out)
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}
	elapsed := time.Since(start)

	gps := float64(result.Generations) / elapsed.Seconds()

	slog.Info("Optimization complete",
		"elapsed", elapsed,
		"generations", result.Generations,
		"best_score", result.BestScore,
		"generations_per_second", fmt.Sprintf("%.0f", gps),
	)

	fmt.Printf("Finished after %d generation(s) (score: %.4f, %.0f gen/sec)\n", result.Generations, result.BestScore, gps)
	for i := 0; i < result.Count; i++ {
		fmt.Printf("#%d %s\n", i, out[i].String())
	}

	return nil
}
