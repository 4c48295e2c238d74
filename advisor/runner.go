package advisor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/brensch/unrolled/protocol"
)

// Well-known feature names on the interactive channel.
const (
	// ActionFeature reports whether the compiler applied the previous
	// advice (non-zero means it did).
	ActionFeature = "action"
	// HeuristicFeature carries the compiler's own unroll decision for the
	// current loop.
	HeuristicFeature = "unroll_heuristic"
)

// AdviseFunc produces the advice payload for one decision point.
type AdviseFunc func(obs protocol.Observation) ([]float64, error)

// ActionFunc is invoked once per decision point with the compiler's report
// of whether the previous advice was honored. Returning an error aborts
// the compile.
type ActionFunc func(action bool) error

// Communicator drives one compiler process at a time over a pair of named
// pipes. The handshake is a strict synchronous rendezvous: the compiler
// blocks reading exactly one advice tensor after each observation it
// writes, so every write goes to the pipe unbuffered and whole.
type Communicator struct {
	// Opt is the compiler binary.
	Opt string

	channelBase string
	dir         string
	log         *slog.Logger
}

// NewCommunicator allocates the channel directory. Close releases it.
func NewCommunicator(opt string, logger *slog.Logger) (*Communicator, error) {
	if opt == "" {
		opt = "opt"
	}
	if logger == nil {
		logger = slog.Default()
	}
	dir, err := os.MkdirTemp("", "unrolled-channel-")
	if err != nil {
		return nil, fmt.Errorf("create channel dir: %w", err)
	}
	return &Communicator{
		Opt:         opt,
		channelBase: filepath.Join(dir, "channel"),
		dir:         dir,
		log:         logger,
	}, nil
}

// ChannelBase returns the path prefix both sides derive the pipe names from.
func (c *Communicator) ChannelBase() string { return c.channelBase }

func (c *Communicator) Close() error {
	return os.RemoveAll(c.dir)
}

// OptArgs returns the compiler flags that enable the interactive unroll
// advisor against our channel. The echo-reply flag makes the compiler
// repeat every advice tensor it receives on its stderr debug stream, not
// on the channel, so the exchange loop never sees it.
func (c *Communicator) OptArgs() []string {
	return []string{
		"-passes=default<O3>,loop-unroll",
		fmt.Sprintf("--mlgo-loop-unroll-interactive-channel-base=%s.channel-basename", c.channelBase),
		"--mlgo-loop-unroll-advisor-mode=development",
		"--interactive-model-runner-echo-reply",
		"-debug-only=loop-unroll-development-advisor,loop-unroll",
	}
}

// CompileOnce runs one full compile: launch the compiler, read the stream
// header, then answer every decision point with advise until the compiler
// closes its channel. onAction errors and advise errors kill the compile.
func (c *Communicator) CompileOnce(ctx context.Context, args []string, advise AdviseFunc, onAction ActionFunc) error {
	toCompiler := c.channelBase + ".channel-basename.in"
	fromCompiler := c.channelBase + ".channel-basename.out"

	for _, p := range []string{toCompiler, fromCompiler} {
		_ = os.Remove(p)
		if err := unix.Mkfifo(p, 0o600); err != nil {
			return fmt.Errorf("mkfifo %s: %w", p, err)
		}
	}
	defer os.Remove(toCompiler)
	defer os.Remove(fromCompiler)

	cmd := exec.CommandContext(ctx, c.Opt, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.Opt, err)
	}

	// Open order mirrors the compiler: it opens its outbound side first,
	// so we open our read side first. Both opens block until the peer
	// arrives; that is the rendezvous.
	exchangeErr := c.exchange(fromCompiler, toCompiler, advise, onAction)
	if exchangeErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return exchangeErr
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%s: %w: %s", c.Opt, err, lastLine(stderr.Bytes()))
	}
	return nil
}

func (c *Communicator) exchange(fromCompiler, toCompiler string, advise AdviseFunc, onAction ActionFunc) error {
	out, err := os.OpenFile(fromCompiler, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", fromCompiler, err)
	}
	defer out.Close()

	in, err := os.OpenFile(toCompiler, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", toCompiler, err)
	}
	defer in.Close()

	reader, err := protocol.NewReader(out)
	if err != nil {
		return err
	}
	header := reader.Header()
	if header.Advice == nil {
		return fmt.Errorf("%w: interactive header missing advice spec", protocol.ErrFormat)
	}

	for {
		obs, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		c.log.Debug("decision point", "context", obs.Context, "observation", obs.ID)

		if tv, ok := obs.Feature(ActionFeature); ok && onAction != nil {
			if err := onAction(tv.Int(0) != 0); err != nil {
				return err
			}
		}

		advice, err := advise(obs)
		if err != nil {
			return err
		}
		if err := protocol.WriteTensor(in, *header.Advice, advice); err != nil {
			return err
		}
	}
}

func lastLine(out []byte) []byte {
	out = bytes.TrimRight(out, "\n")
	if i := bytes.LastIndexByte(out, '\n'); i >= 0 {
		return out[i+1:]
	}
	return out
}
