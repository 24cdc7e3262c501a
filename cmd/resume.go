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
	"github.com/spf13/cobra"
)

var (
	resumeDataDir  string
	resumeMaxEvals int
)

var resumeCmd = &cobra.Command{
	Use:   "resume [job-id]",
	Short: "Resume a suspended search from its checkpoint",
	Long: `Restores the minimizer state saved under <data-dir>/jobs/<job-id>/ and
continues the search exactly where it stopped: the checkpoint captures the
complete state machine, so the resumed search proposes the same points an
uninterrupted one would have.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeDataDir, "data-dir", "./data", "Base directory for checkpoint storage")
	resumeCmd.Flags().IntVar(&resumeMaxEvals, "max-evals", 0, "Additional evaluation budget (0 = run to convergence)")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	checkpointStore, err := store.NewFSStore(resumeDataDir)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}

	cp, err := checkpointStore.LoadCheckpoint(jobID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("checkpoint is not usable: %w", err)
	}

	m, err := brent.Restore(cp.Solver)
	if err != nil {
		return fmt.Errorf("failed to restore solver state: %w", err)
	}

	f, err := objective.Parse(cp.Config.Expr)
	if err != nil {
		return fmt.Errorf("failed to parse checkpointed expression: %w", err)
	}

	slog.Info("Resuming search",
		"job_id", jobID,
		"expr", cp.Config.Expr,
		"evaluations_done", cp.Evaluations,
		"bracket_low", cp.Solver.Low,
		"bracket_high", cp.Solver.High,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	trace, err := store.NewTraceWriter(resumeDataDir, jobID, true)
	if err != nil {
		slog.Warn("Trace disabled", "error", err)
		trace = nil
	} else {
		defer trace.Close()
	}

	opts := solve.Options{
		MaxEvals: resumeMaxEvals,
		OnEval: func(p solve.Progress) error {
			if trace != nil {
				entry := store.TraceEntry{
					Eval:      cp.Evaluations + p.Evaluations,
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
			return nil
		},
	}

	start := time.Now()
	result, err := solve.Resume(ctx, m, f, opts)
	elapsed := time.Since(start)

	interrupted := errors.Is(err, context.Canceled)
	if err != nil && !interrupted {
		return err
	}

	totalEvals := cp.Evaluations + result.Evaluations

	// Record the terminal state either way: a converged checkpoint documents
	// the finished search, a suspended one stays resumable.
	if result.Evaluations > 0 {
		next := store.NewCheckpoint(jobID, m.State(), totalEvals, cp.Config)
		next.BestX = result.Minimizer
		next.BestValue = result.Value
		if err := checkpointStore.SaveCheckpoint(jobID, next); err != nil {
			slog.Warn("Failed to save checkpoint", "error", err)
		}
	}

	if result.Converged {
		fmt.Printf("x* = %.10g  f(x*) = %.10g  (%d evaluations total, %s resumed)\n",
			result.Minimizer, result.Value, totalEvals, elapsed.Round(time.Millisecond))
	} else {
		fmt.Printf("Best so far: x = %.10g  f(x) = %.10g  (%d evaluations total, not converged)\n",
			result.Minimizer, result.Value, totalEvals)
	}
	return nil
}
