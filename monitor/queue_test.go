package monitor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/chatgrep/chat"
)

func mustMessage(t *testing.T, channel, nick, text string) chat.Message {
	t.Helper()
	f, err := chat.NewFilter(`.+`)
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	m, ok := f.Apply(chat.ChannelName(channel), nick, text)
	if !ok {
		t.Fatalf("message %q did not match", text)
	}
	return m
}

func TestQueue_FIFOAndClose(t *testing.T) {
	q := NewQueue(4)
	ctx := context.Background()
	for _, text := range []string{"one", "two", "three"} {
		if err := q.Send(ctx, mustMessage(t, "c", "u", text)); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	if q.Len() != 3 || q.Cap() != 4 {
		t.Fatalf("Len/Cap = %d/%d, want 3/4", q.Len(), q.Cap())
	}
	q.Close()
	q.Close()

	var got []string
	for m := range q.Messages() {
		got = append(got, m.Text())
	}
	if strings.Join(got, ",") != "one,two,three" {
		t.Errorf("drained %v", got)
	}
	if err := q.Send(ctx, mustMessage(t, "c", "u", "late")); !errors.Is(err, chat.ErrQueueClosed) {
		t.Errorf("Send() after Close = %v, want ErrQueueClosed", err)
	}
}

func TestQueue_StopReleasesBlockedSender(t *testing.T) {
	q := NewQueue(1)
	ctx := context.Background()
	if err := q.Send(ctx, mustMessage(t, "c", "u", "fill")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- q.Send(ctx, mustMessage(t, "c", "u", "blocked")) }()
	select {
	case err := <-done:
		t.Fatalf("Send() on full queue returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	q.Stop()
	select {
	case err := <-done:
		if !errors.Is(err, chat.ErrQueueClosed) {
			t.Errorf("blocked Send() = %v, want ErrQueueClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Send() not released by Stop")
	}
	if err := q.Send(ctx, mustMessage(t, "c", "u", "after")); !errors.Is(err, chat.ErrQueueClosed) {
		t.Errorf("Send() after Stop = %v, want ErrQueueClosed", err)
	}
}

func TestQueue_SendHonoursContext(t *testing.T) {
	q := NewQueue(1)
	_ = q.Send(context.Background(), mustMessage(t, "c", "u", "fill"))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.Send(ctx, mustMessage(t, "c", "u", "x")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Send() = %v, want deadline exceeded", err)
	}
}

func TestNewQueue_DefaultSize(t *testing.T) {
	if got := NewQueue(0).Cap(); got != DefaultQueueSize {
		t.Errorf("Cap() = %d, want %d", got, DefaultQueueSize)
	}
}

type failingEmitter struct{ after int }

func (f *failingEmitter) Emit(chat.Message) error {
	if f.after == 0 {
		return errors.New("broken pipe")
	}
	f.after--
	return nil
}

func TestAggregator_DrainsInOrder(t *testing.T) {
	var buf bytes.Buffer
	q := NewQueue(8)
	for _, text := range []string{"https://a", "https://b", "https://c"} {
		_ = q.Send(context.Background(), mustMessage(t, "rust", "ferris", text))
	}
	q.Close()

	agg := NewAggregator(NewLineEmitter(&buf, ColorNever))
	if err := agg.Run(context.Background(), q); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := "rust | ferris: https://a\nrust | ferris: https://b\nrust | ferris: https://c\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
	if agg.Emitted() != 3 {
		t.Errorf("Emitted() = %d", agg.Emitted())
	}
	if err := q.Send(context.Background(), mustMessage(t, "rust", "ferris", "x")); !errors.Is(err, chat.ErrQueueClosed) {
		t.Errorf("Send() after aggregator stop = %v, want ErrQueueClosed", err)
	}
}

func TestAggregator_OutputErrorStopsQueue(t *testing.T) {
	q := NewQueue(8)
	for range 3 {
		_ = q.Send(context.Background(), mustMessage(t, "c", "u", "https://x"))
	}
	err := NewAggregator(&failingEmitter{after: 1}).Run(context.Background(), q)
	if err == nil {
		t.Fatal("expected output error")
	}
	if err := q.Send(context.Background(), mustMessage(t, "c", "u", "y")); !errors.Is(err, chat.ErrQueueClosed) {
		t.Errorf("Send() = %v, want ErrQueueClosed", err)
	}
}

func TestLineEmitter(t *testing.T) {
	msg := mustMessage(t, "rust", "ferris", "check https://example.com")

	var plain bytes.Buffer
	e := NewLineEmitter(&plain, ColorAuto)
	if e.Colored() {
		t.Fatalf("auto mode colored a non-terminal writer")
	}
	if err := e.Emit(msg); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if plain.String() != "rust | ferris: check https://example.com\n" {
		t.Errorf("plain output = %q", plain.String())
	}

	var colored bytes.Buffer
	e = NewLineEmitter(&colored, ColorAlways)
	if err := e.Emit(msg); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	out := colored.String()
	if !strings.Contains(out, "\x1b[") || !strings.Contains(out, "rust") || !strings.HasSuffix(out, " | ferris: check https://example.com\n") {
		t.Errorf("colored output = %q", out)
	}
}

func TestParseColorMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ColorMode
		wantErr bool
	}{
		{"", ColorAuto, false},
		{"auto", ColorAuto, false},
		{"ALWAYS", ColorAlways, false},
		{" never ", ColorNever, false},
		{"rainbow", "", true},
	}
	for _, tt := range tests {
		got, err := ParseColorMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseColorMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}
