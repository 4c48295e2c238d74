package advisor

import (
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestOptArgs(t *testing.T) {
	c, err := NewCommunicator("opt", slog.Default())
	if err != nil {
		t.Fatalf("NewCommunicator failed: %v", err)
	}
	defer c.Close()

	args := c.OptArgs()
	want := []string{
		"-passes=default<O3>,loop-unroll",
		fmt.Sprintf("--mlgo-loop-unroll-interactive-channel-base=%s.channel-basename", c.ChannelBase()),
		"--mlgo-loop-unroll-advisor-mode=development",
		"--interactive-model-runner-echo-reply",
		"-debug-only=loop-unroll-development-advisor,loop-unroll",
	}
	if len(args) != len(want) {
		t.Fatalf("expected %d args, got %d: %v", len(want), len(args), args)
	}
	for i, w := range want {
		if args[i] != w {
			t.Errorf("arg %d: expected %q, got %q", i, w, args[i])
		}
	}
}

func TestChannelBaseUnique(t *testing.T) {
	a, err := NewCommunicator("", nil)
	if err != nil {
		t.Fatalf("NewCommunicator failed: %v", err)
	}
	defer a.Close()
	b, err := NewCommunicator("", nil)
	if err != nil {
		t.Fatalf("NewCommunicator failed: %v", err)
	}
	defer b.Close()

	if a.ChannelBase() == b.ChannelBase() {
		t.Errorf("two communicators share channel base %q", a.ChannelBase())
	}
	if !strings.HasSuffix(a.ChannelBase(), "channel") {
		t.Errorf("unexpected channel base %q", a.ChannelBase())
	}
}
