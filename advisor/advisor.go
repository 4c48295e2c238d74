package advisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	"github.com/brensch/unrolled/mcts"
	"github.com/brensch/unrolled/protocol"
)

// ScoringFunc converts an optimized module into a reward. Policy belongs
// to the caller; the advisor only maximizes it.
type ScoringFunc func(optimized []byte) (float64, error)

// Compiler is the slice of Communicator the advisor needs; tests swap in
// a fake.
type Compiler interface {
	OptArgs() []string
	CompileOnce(ctx context.Context, args []string, advise AdviseFunc, onAction ActionFunc) error
}

// Config holds advisor parameters.
type Config struct {
	// C is the UCT exploration constant (default sqrt(2)).
	C float64
	// Seed drives all random choices in the session.
	Seed int64
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// RolloutResult summarizes one completed rollout for observers (TUI,
// session store, viewer feed).
type RolloutResult struct {
	Seq       int
	Decisions []int
	Score     float64
	Failed    bool
}

// Advisor negotiates unroll decisions with the compiler, one rollout per
// compile. A session is single-threaded: the advisor blocks on every
// compiler exchange and the tree is not safe for concurrent mutation.
type Advisor struct {
	comm Compiler
	tree *mcts.Tree
	rng  *rand.Rand
	log  *slog.Logger

	current   int
	inRollout bool
}

// New creates an advisor with a fresh search tree.
func New(comm Compiler, cfg Config) *Advisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	return &Advisor{
		comm: comm,
		tree: mcts.NewTree(mcts.Config{C: cfg.C, Rng: rng}),
		rng:  rng,
		log:  logger,
	}
}

// Tree exposes the search tree for inspection after a session.
func (a *Advisor) Tree() *mcts.Tree { return a.tree }

// adviseFromTree answers one decision point during a rollout compile:
// advance the tree (selection or expansion) and encode the new node's
// decision. Crossing the tree frontier switches the session into rollout
// mode for the rest of the compile.
func (a *Advisor) adviseFromTree(obs protocol.Observation) ([]float64, error) {
	if a.tree.IsLeaf(a.current) {
		a.inRollout = true
		a.current = a.tree.AddChild(a.current, RolloutDecision(a.rng))
	} else {
		before := a.tree.Len()
		a.current = a.tree.NextState(a.current, LegalFactors())
		if a.tree.Len() > before {
			a.inRollout = true
		}
	}
	return AdviceForFactor(a.tree.LastDecision(a.current))
}

// adviseDefault answers decision points from the compiler's own heuristic,
// used when no tree recommendation is active.
func (a *Advisor) adviseDefault(obs protocol.Observation) ([]float64, error) {
	var heuristic int64
	if tv, ok := obs.Feature(HeuristicFeature); ok && tv.Len() > 0 {
		heuristic = tv.Int(0)
	}
	return AdviceForFactor(DefaultDecision(heuristic))
}

// checkAction validates the compiler's action report for the decision the
// tree last issued.
func (a *Advisor) checkAction(action bool) error {
	if a.current == a.tree.Root() {
		// No decision issued yet; nothing to confirm.
		return nil
	}
	err := CheckUnrollSuccess(action, a.inRollout, a.tree.LastDecision(a.current))
	if err != nil {
		a.log.Warn("unsuccessful unrolling",
			"decisions", a.tree.Decisions(a.current))
	}
	return err
}

// GetScore runs one compile with the tree-driven advice and scores the
// optimized artifact. The temporary input/output files are released on
// every exit path.
func (a *Advisor) GetScore(ctx context.Context, inputModule []byte, scoring ScoringFunc) (float64, error) {
	return a.compileAndScore(ctx, inputModule, scoring, a.adviseFromTree, a.checkAction)
}

// GetDefaultScore compiles with the compiler's heuristic decisions only,
// giving the baseline the search has to beat.
func (a *Advisor) GetDefaultScore(ctx context.Context, inputModule []byte, scoring ScoringFunc) (float64, error) {
	return a.compileAndScore(ctx, inputModule, scoring, a.adviseDefault, nil)
}

func (a *Advisor) compileAndScore(ctx context.Context, inputModule []byte, scoring ScoringFunc, advise AdviseFunc, onAction ActionFunc) (float64, error) {
	input, err := os.CreateTemp("", "unrolled-*.ll")
	if err != nil {
		return 0, fmt.Errorf("create input file: %w", err)
	}
	defer os.Remove(input.Name())
	output, err := os.CreateTemp("", "unrolled-*.bc")
	if err != nil {
		input.Close()
		return 0, fmt.Errorf("create output file: %w", err)
	}
	defer os.Remove(output.Name())
	output.Close()

	if _, err := input.Write(inputModule); err != nil {
		input.Close()
		return 0, fmt.Errorf("write input module: %w", err)
	}
	if err := input.Close(); err != nil {
		return 0, fmt.Errorf("close input module: %w", err)
	}

	args := append(a.comm.OptArgs(), "-o", output.Name(), input.Name())
	if err := a.comm.CompileOnce(ctx, args, advise, onAction); err != nil {
		return 0, err
	}

	optimized, err := os.ReadFile(output.Name())
	if err != nil {
		return 0, fmt.Errorf("read optimized module: %w", err)
	}
	return scoring(optimized)
}

// Search runs the rollout budget and returns the recommended root unroll
// factor, the root child with the best average reward. A rollout aborted
// by an unsuccessful mandatory unroll backpropagates a zero reward so the
// visit accounting stays intact; every other error ends the session.
func (a *Advisor) Search(ctx context.Context, inputModule []byte, scoring ScoringFunc, rollouts int, observe func(RolloutResult)) (int, error) {
	for i := 0; i < rollouts; i++ {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		a.current = a.tree.Root()
		a.inRollout = false

		score, err := a.GetScore(ctx, inputModule, scoring)
		failed := false
		if err != nil {
			if !errors.Is(err, ErrUnsuccessfulAction) {
				return 0, fmt.Errorf("rollout %d: %w", i, err)
			}
			score, failed = 0, true
		}
		a.tree.Backpropagate(a.current, score)

		result := RolloutResult{
			Seq:       i,
			Decisions: a.tree.Decisions(a.current),
			Score:     score,
			Failed:    failed,
		}
		a.log.Debug("rollout complete",
			"seq", result.Seq, "score", result.Score, "decisions", result.Decisions)
		if observe != nil {
			observe(result)
		}
	}

	best, ok := a.tree.Best(a.tree.Root())
	if !ok {
		return 0, errors.New("no rollouts completed")
	}
	return best, nil
}
