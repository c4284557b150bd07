package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sekia-ai/calremind/internal/reminder"
)

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	mu     sync.Mutex
	calls  []call
	output string
	err    error
	done   chan struct{}
}

func newFakeRunner(output string, err error) *fakeRunner {
	return &fakeRunner{output: output, err: err, done: make(chan struct{}, 4)}
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{name: name, args: args})
	f.mu.Unlock()
	f.done <- struct{}{}
	return []byte(f.output), f.err
}

func (f *fakeRunner) last(t *testing.T) call {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("notify-send was not run")
	}
	return f.calls[len(f.calls)-1]
}

func sample() reminder.Notification {
	return reminder.Notification{
		ID:       "evt1",
		Title:    "Standup",
		Start:    time.Date(2026, 10, 19, 9, 0, 0, 0, time.Local),
		Location: "Room 4",
		Link:     "https://calendar.example/evt1",
	}
}

func TestBody(t *testing.T) {
	n := sample()
	if got := Body(n); got != "09:00 start\nRoom 4" {
		t.Errorf("Body = %q", got)
	}
	n.Location = ""
	n.Start = time.Time{}
	if got := Body(n); got != "Starting soon" {
		t.Errorf("Body = %q", got)
	}
}

func TestDesktopShow(t *testing.T) {
	runner := newFakeRunner("", nil)
	d := NewDesktop(false, zerolog.Nop())
	d.run = runner.run

	if err := d.Show(context.Background(), sample()); err != nil {
		t.Fatalf("Show: %v", err)
	}
	c := runner.last(t)
	if c.name != "notify-send" {
		t.Errorf("command = %q", c.name)
	}
	want := []string{"--app-name=calremind", "--urgency=critical", "Standup", "09:00 start\nRoom 4"}
	if strings.Join(c.args, "|") != strings.Join(want, "|") {
		t.Errorf("args = %q, want %q", c.args, want)
	}
}

func TestDesktopShowError(t *testing.T) {
	runner := newFakeRunner("no display", errors.New("exit status 1"))
	d := NewDesktop(false, zerolog.Nop())
	d.run = runner.run

	err := d.Show(context.Background(), sample())
	if err == nil || !strings.Contains(err.Error(), "no display") {
		t.Fatalf("err = %v, want notify-send output", err)
	}
}

func TestDesktopActionOpensLink(t *testing.T) {
	runner := newFakeRunner("default\n", nil)
	opened := make(chan string, 1)
	d := NewDesktop(true, zerolog.Nop())
	d.run = runner.run
	d.open = func(url string) error {
		opened <- url
		return nil
	}

	if err := d.Show(context.Background(), sample()); err != nil {
		t.Fatalf("Show: %v", err)
	}
	select {
	case url := <-opened:
		if url != "https://calendar.example/evt1" {
			t.Errorf("opened %q", url)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("browser was not opened")
	}
	c := runner.last(t)
	if !strings.Contains(strings.Join(c.args, " "), "--wait") {
		t.Errorf("args %q missing --wait", c.args)
	}
}

func TestDesktopActionDismissed(t *testing.T) {
	runner := newFakeRunner("", nil)
	d := NewDesktop(true, zerolog.Nop())
	d.run = runner.run
	d.open = func(url string) error {
		t.Errorf("unexpected open of %q", url)
		return nil
	}

	if err := d.Show(context.Background(), sample()); err != nil {
		t.Fatalf("Show: %v", err)
	}
	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notify-send was not run")
	}
}

func TestLogPresenter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(zerolog.New(&buf))
	if err := l.Show(context.Background(), sample()); err != nil {
		t.Fatalf("Show: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if line["title"] != "Standup" || line["location"] != "Room 4" || line["message"] != "reminder" {
		t.Errorf("log line = %v", line)
	}
}

type stubPresenter struct {
	shown int
	err   error
}

func (s *stubPresenter) Show(context.Context, reminder.Notification) error {
	s.shown++
	return s.err
}

func TestMultiContinuesPastFailure(t *testing.T) {
	failing := &stubPresenter{err: errors.New("boom")}
	ok := &stubPresenter{}

	err := Multi{failing, ok}.Show(context.Background(), sample())
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v, want boom", err)
	}
	if failing.shown != 1 || ok.shown != 1 {
		t.Errorf("shown = %d, %d; want 1, 1", failing.shown, ok.shown)
	}
}
