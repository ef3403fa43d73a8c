package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"csrelay/internal/transport"
	logx "csrelay/pkg/logx"
)

type sentMsg struct {
	at   time.Time
	to   transport.ChatTarget
	text string
	opt  transport.SendOptions
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sentMsg
	failOn map[int]error // 1-based call index
	calls  int
}

func (f *fakeSender) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.failOn[f.calls]; err != nil {
		return transport.MessageRef{}, err
	}
	m := sentMsg{at: time.Now(), to: to, text: text}
	if opt != nil {
		m.opt = *opt
	}
	f.sent = append(f.sent, m)
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: f.calls}, nil
}

func TestDeliverSingleSegmentHasNoPrefix(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	n := New(Config{Pacing: -1}, fs, transport.ChatTarget{ChatID: 7, ThreadID: 3},
		transport.SendOptions{ParseMode: "HTML", DisablePreview: true}, logx.Nop())

	rep := n.Deliver(context.Background(), []string{"hello"})
	if !rep.Complete() || rep.Sent != 1 || rep.Failed != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if len(fs.sent) != 1 || fs.sent[0].text != "hello" {
		t.Fatalf("unexpected sends: %+v", fs.sent)
	}
	got := fs.sent[0]
	if got.to.ChatID != 7 || got.to.ThreadID != 3 || got.opt.ParseMode != "HTML" || !got.opt.DisablePreview {
		t.Fatalf("target/options not propagated: %+v", got)
	}
}

func TestDeliverPrefixesAndOrder(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	n := New(Config{Pacing: -1}, fs, transport.ChatTarget{ChatID: 1}, transport.SendOptions{}, logx.Nop())

	rep := n.Deliver(context.Background(), []string{"a", "b", "c"})
	if rep.Sent != 3 || !rep.Complete() {
		t.Fatalf("unexpected report: %+v", rep)
	}
	want := []string{"(Part 1/3)\na", "(Part 2/3)\nb", "(Part 3/3)\nc"}
	for i, w := range want {
		if fs.sent[i].text != w {
			t.Fatalf("send %d = %q, want %q", i, fs.sent[i].text, w)
		}
	}
}

func TestDeliverContinuesAfterFailure(t *testing.T) {
	t.Parallel()
	boom := errors.New("telegram: bad request (400)")
	fs := &fakeSender{failOn: map[int]error{2: boom}}
	n := New(Config{Pacing: -1}, fs, transport.ChatTarget{ChatID: 1}, transport.SendOptions{}, logx.Nop())

	rep := n.Deliver(context.Background(), []string{"a", "b", "c"})
	if rep.Total != 3 || rep.Sent != 2 || rep.Failed != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if rep.Complete() {
		t.Fatal("partial delivery reported complete")
	}
	if !errors.Is(rep.Err(), boom) {
		t.Fatalf("report error does not wrap send error: %v", rep.Err())
	}
	if fs.calls != 3 {
		t.Fatalf("calls = %d, want 3", fs.calls)
	}
	if !strings.HasPrefix(fs.sent[1].text, "(Part 3/3)") {
		t.Fatalf("third segment not delivered: %+v", fs.sent)
	}
}

func TestDeliverPacing(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	pacing := 40 * time.Millisecond
	n := New(Config{Pacing: pacing}, fs, transport.ChatTarget{ChatID: 1}, transport.SendOptions{}, logx.Nop())

	start := time.Now()
	rep := n.Deliver(context.Background(), []string{"a", "b", "c"})
	if rep.Sent != 3 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if d := fs.sent[0].at.Sub(start); d > pacing/2 {
		t.Fatalf("first segment delayed by %s", d)
	}
	// The limiter allows a little slack; demand most of the gap.
	for i := 1; i < len(fs.sent); i++ {
		if gap := fs.sent[i].at.Sub(fs.sent[i-1].at); gap < pacing*3/4 {
			t.Fatalf("gap %d = %s, want >= ~%s", i, gap, pacing)
		}
	}
}

func TestDeliverCancelledContextFailsRemaining(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	n := New(Config{Pacing: time.Hour}, fs, transport.ChatTarget{ChatID: 1}, transport.SendOptions{}, logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rep := n.Deliver(ctx, []string{"a", "b", "c"})
	if rep.Sent != 1 || rep.Failed != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if rep.Err() == nil {
		t.Fatal("expected interruption error")
	}
}

func TestDeliverEmptyAndNoSender(t *testing.T) {
	t.Parallel()
	n := New(Config{}, nil, transport.ChatTarget{ChatID: 1}, transport.SendOptions{}, logx.Nop())
	if rep := n.Deliver(context.Background(), nil); rep.Total != 0 || rep.Complete() {
		t.Fatalf("empty delivery: %+v", rep)
	}
	rep := n.Deliver(context.Background(), []string{"x", "y"})
	if rep.Failed != 2 || !errors.Is(rep.Err(), ErrNoSender) {
		t.Fatalf("nil sender: %+v", rep)
	}
}
