package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/bebuch/localmin/internal/brent"
	"github.com/bebuch/localmin/internal/objective"
	"github.com/bebuch/localmin/internal/solve"
	"github.com/bebuch/localmin/internal/store"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	runExpr               string
	runLow                float64
	runHigh               float64
	runMaxEvals           int
	runDataDir            string
	runJobID              string
	runCheckpointInterval int
	runQuiet              bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single minimization to convergence",
	Long: `Minimizes an expression objective on [low, high] in process.
With --data-dir, the evaluation trace and a resumable checkpoint are written
under <data-dir>/jobs/<job-id>/.`,
	RunE: runMinimization,
}

func init() {
	runCmd.Flags().StringVar(&runExpr, "expr", "", "Objective expression in x, e.g. '(x-2)*(x-2)' (required)")
	runCmd.Flags().Float64Var(&runLow, "low", 0, "Left endpoint of the interval")
	runCmd.Flags().Float64Var(&runHigh, "high", 1, "Right endpoint of the interval")
	runCmd.Flags().IntVar(&runMaxEvals, "max-evals", 0, "Evaluation budget (0 = run to convergence)")
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "", "Base directory for trace and checkpoint output")
	runCmd.Flags().StringVar(&runJobID, "job-id", "", "Job ID for artifacts (default: random)")
	runCmd.Flags().IntVar(&runCheckpointInterval, "checkpoint-interval", 0, "Checkpoint every N evaluations (0 = only on exit)")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "Suppress the progress bar")

	runCmd.MarkFlagRequired("expr")
	rootCmd.AddCommand(runCmd)
}

func runMinimization(cmd *cobra.Command, args []string) error {
	f, err := objective.Parse(runExpr)
	if err != nil {
		return err
	}

	slog.Info("Starting minimization", "expr", runExpr, "low", runLow, "high", runHigh, "max_evals", runMaxEvals)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	jobID := runJobID
	if jobID == "" {
		jobID = uuid.New().String()
	}
	config := store.JobConfig{
		Expr:     runExpr,
		Low:      runLow,
		High:     runHigh,
		MaxEvals: runMaxEvals,
	}

	var checkpointStore *store.FSStore
	var trace *store.TraceWriter
	if runDataDir != "" {
		checkpointStore, err = store.NewFSStore(runDataDir)
		if err != nil {
			return err
		}
		trace, err = store.NewTraceWriter(runDataDir, jobID, false)
		if err != nil {
			return err
		}
		defer trace.Close()
	}

	var bar *progressbar.ProgressBar
	if !runQuiet {
		if runMaxEvals > 0 {
			bar = progressbar.Default(int64(runMaxEvals), "minimizing")
		} else {
			// Unknown total: spinner with an evaluation counter.
			bar = progressbar.Default(-1, "minimizing")
		}
		defer bar.Close()
	}

	var lastState brent.State
	var haveState bool

	opts := solve.Options{
		MaxEvals: runMaxEvals,
		OnEval: func(p solve.Progress) error {
			lastState = p.Solver
			haveState = true
			if bar != nil {
				bar.Add(1)
			}
			if trace != nil {
				entry := store.TraceEntry{
					Eval:      p.Evaluations,
					X:         p.X,
					FX:        p.FX,
					Low:       p.Solver.Low,
					High:      p.Solver.High,
					Timestamp: time.Now(),
				}
				if err := trace.Write(entry); err != nil {
					slog.Warn("Failed to write trace entry", "error", err)
				}
			}
			if checkpointStore != nil && runCheckpointInterval > 0 && p.Evaluations%runCheckpointInterval == 0 {
				cp := store.NewCheckpoint(jobID, p.Solver, p.Evaluations, config)
				if err := checkpointStore.SaveCheckpoint(jobID, cp); err != nil {
					slog.Warn("Failed to save checkpoint", "error", err)
				}
			}
			return nil
		},
	}

	start := time.Now()
	result, err := solve.Minimize(ctx, f, runLow, runHigh, opts)
	elapsed := time.Since(start)

	if bar != nil {
		bar.Finish()
	}

	interrupted := errors.Is(err, context.Canceled)
	if err != nil && !interrupted {
		return err
	}

	if checkpointStore != nil && haveState && !result.Converged {
		// Leave a resumable checkpoint behind for `localmin resume`.
		cp := store.NewCheckpoint(jobID, lastState, result.Evaluations, config)
		if err := checkpointStore.SaveCheckpoint(jobID, cp); err != nil {
			slog.Warn("Failed to save final checkpoint", "error", err)
		} else {
			fmt.Printf("Checkpoint saved, resume with: localmin resume %s --data-dir %s\n", jobID, runDataDir)
		}
	}

	slog.Info("Minimization finished",
		"minimizer", result.Minimizer,
		"value", result.Value,
		"evaluations", result.Evaluations,
		"converged", result.Converged,
		"elapsed", elapsed,
	)

	if result.Converged {
		fmt.Printf("x* = %.10g  f(x*) = %.10g  (%d evaluations, %s)\n",
			result.Minimizer, result.Value, result.Evaluations, elapsed.Round(time.Millisecond))
	} else {
		fmt.Printf("Best so far: x = %.10g  f(x) = %.10g  (%d evaluations, not converged)\n",
			result.Minimizer, result.Value, result.Evaluations)
	}

	return nil
}
