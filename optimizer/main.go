package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/brensch/unrolled/advisor"
	"github.com/brensch/unrolled/logging"
	"github.com/brensch/unrolled/store"
)

func main() {
	input := flag.String("input", getEnvOrDefault("INPUT", ""), "Input .ll module to optimize")
	rollouts := flag.Int("rollouts", getEnvIntOrDefault("ROLLOUTS", 100), "Rollout budget for the search")
	c := flag.Float64("c", 0, "UCT exploration constant (0 = sqrt(2))")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed for the session")
	opt := flag.String("opt", getEnvOrDefault("OPT", "opt"), "Compiler binary")
	dbPath := flag.String("db", getEnvOrDefault("SESSION_DB", ""), "Optional session store path")
	baseline := flag.Bool("baseline", true, "Compile once with the compiler's heuristic first")
	tui := flag.Bool("tui", false, "Show live search progress")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "-input is required")
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(logging.NewHandler(os.Stderr, level))

	module, err := os.ReadFile(*input)
	if err != nil {
		log.Fatalf("Failed to read input module: %v", err)
	}

	comm, err := advisor.NewCommunicator(*opt, logger)
	if err != nil {
		log.Fatalf("Failed to create channel: %v", err)
	}
	defer comm.Close()

	var db *store.DB
	sessionID := ""
	if *dbPath != "" {
		db, err = store.New(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open session store: %v", err)
		}
		defer db.Close()
		sessionID, err = db.CreateSession(*input)
		if err != nil {
			log.Fatalf("Failed to create session: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := advisor.New(comm, advisor.Config{C: *c, Seed: *seed, Logger: logger})

	// Reward: smaller optimized module wins.
	scoring := func(optimized []byte) (float64, error) {
		return -float64(len(optimized)), nil
	}

	if *baseline {
		score, err := a.GetDefaultScore(ctx, module, scoring)
		if err != nil {
			log.Fatalf("Baseline compile failed: %v", err)
		}
		logger.Info("baseline", "score", score)
	}

	observe := func(r advisor.RolloutResult) {
		if db != nil {
			if err := db.RecordRollout(sessionID, r.Seq, r.Decisions, r.Score, !r.Failed); err != nil {
				logger.Warn("record rollout", "err", err)
			}
		}
	}

	var best int
	if *tui {
		best, err = runWithTUI(ctx, a, module, scoring, *rollouts, observe)
	} else {
		best, err = a.Search(ctx, module, scoring, *rollouts, func(r advisor.RolloutResult) {
			observe(r)
			logger.Info("rollout", "seq", r.Seq, "score", r.Score,
				"decisions", fmt.Sprint(r.Decisions), "ok", !r.Failed)
		})
	}
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}

	tree := a.Tree()
	bestScore := 0.0
	for _, child := range tree.Children(tree.Root()) {
		if tree.LastDecision(child) == best && tree.Visits(child) > 0 {
			bestScore = tree.Value(child) / float64(tree.Visits(child))
		}
	}
	if db != nil {
		if err := db.FinishSession(sessionID, best, bestScore); err != nil {
			logger.Warn("finish session", "err", err)
		}
	}

	logger.Info("recommendation", "unroll_factor", best, "avg_score", bestScore,
		"rollouts", *rollouts, "nodes", tree.Len())
	fmt.Println(best)
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
