package stream

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/droplets-realm/api/internal/events"
)

// fakeClock hands out tickers driven by Advance.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Duration
	tickers []*fakeTicker
	created chan struct{}
}

type fakeTicker struct {
	period time.Duration
	next   time.Duration
	ch     chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               {}

func newFakeClock() *fakeClock {
	return &fakeClock{created: make(chan struct{}, 8)}
}

func (c *fakeClock) newTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{period: d, next: c.now + d, ch: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	c.created <- struct{}{}
	return t
}

// Advance moves the clock in one-second steps, delivering every tick that
// falls due. Each send blocks until the handler takes it.
func (c *fakeClock) Advance(ctx context.Context, d time.Duration) {
	end := c.now + d
	for c.now < end {
		c.now += time.Second
		for _, t := range c.tickers {
			for t.next <= c.now {
				select {
				case t.ch <- time.Unix(0, 0).Add(c.now):
				case <-ctx.Done():
					return
				}
				t.next += t.period
			}
		}
	}
}

type syncRecorder struct {
	mu     sync.Mutex
	header http.Header
	buf    bytes.Buffer
	status int
}

func newSyncRecorder() *syncRecorder {
	return &syncRecorder{header: make(http.Header)}
}

func (r *syncRecorder) Header() http.Header { return r.header }
func (r *syncRecorder) WriteHeader(status int) {
	r.mu.Lock()
	r.status = status
	r.mu.Unlock()
}
func (r *syncRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}
func (r *syncRecorder) Flush() {}

func (r *syncRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

type memorySource struct {
	mu     sync.Mutex
	events []events.Event
	since  []int64
}

func (s *memorySource) EventsSince(_ context.Context, afterID int64, _ time.Time) ([]events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.since = append(s.since, afterID)
	var out []events.Event
	for _, evt := range s.events {
		if evt.ID > afterID {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (s *memorySource) add(evt events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

type streamRun struct {
	rec    *syncRecorder
	clock  *fakeClock
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func startStream(t *testing.T, source Source, target string, header http.Header) *streamRun {
	t.Helper()
	clock := newFakeClock()
	h := NewHandler(source)
	h.newTicker = clock.newTicker

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, target, nil).WithContext(ctx)
	for k, v := range header {
		req.Header[k] = v
	}
	run := &streamRun{rec: newSyncRecorder(), clock: clock, ctx: ctx, cancel: cancel, done: make(chan struct{})}
	go func() {
		h.ServeHTTP(run.rec, req)
		close(run.done)
	}()
	for i := 0; i < 2; i++ {
		select {
		case <-clock.created:
		case <-time.After(2 * time.Second):
			t.Fatalf("handler did not start its tickers")
		}
	}
	t.Cleanup(cancel)
	return run
}

func (s *streamRun) stop(t *testing.T) string {
	t.Helper()
	s.cancel()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler did not return after cancel")
	}
	return s.rec.String()
}

type frame struct {
	id, event, data string
}

func parseFrames(body string) []frame {
	var frames []frame
	var cur frame
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur.event != "" {
				frames = append(frames, cur)
			}
			cur = frame{}
		case strings.HasPrefix(line, "id: "):
			cur.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			cur.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		}
	}
	return frames
}

func countEvents(frames []frame, name string) int {
	n := 0
	for _, f := range frames {
		if f.event == name {
			n++
		}
	}
	return n
}

func TestQuietStreamSendsOneHeartbeatIn35Seconds(t *testing.T) {
	run := startStream(t, &memorySource{}, "/stream/world", nil)
	run.clock.Advance(run.ctx, 35*time.Second)
	frames := parseFrames(run.stop(t))

	if len(frames) == 0 || frames[0].event != "connected" {
		t.Fatalf("expected connected first, got %+v", frames)
	}
	if n := countEvents(frames, "heartbeat"); n != 1 {
		t.Fatalf("expected exactly one heartbeat, got %d", n)
	}
	if len(frames) != 2 {
		t.Fatalf("expected only connected and heartbeat, got %+v", frames)
	}
	if run.rec.header.Get("Content-Type") != "text/event-stream" {
		t.Fatalf("unexpected content type %q", run.rec.header.Get("Content-Type"))
	}
}

func TestStreamForwardsOnlyNewerEvents(t *testing.T) {
	now := time.Now()
	source := &memorySource{}
	first := events.New(events.Spawn{CharacterID: 1}, now)
	source.add(first)

	run := startStream(t, source, "/stream/world", nil)
	run.clock.Advance(run.ctx, 2*time.Second)

	second := events.New(events.Water{CharacterID: 1, WateredBy: "0xabc", WaterCount: 1, Level: 1}, now)
	source.add(second)
	run.clock.Advance(run.ctx, 3*time.Second)
	frames := parseFrames(run.stop(t))

	if n := countEvents(frames, "spawn"); n != 1 {
		t.Fatalf("expected spawn forwarded once, got %d", n)
	}
	if n := countEvents(frames, "water"); n != 1 {
		t.Fatalf("expected water forwarded once, got %d", n)
	}
	for _, f := range frames {
		if f.event == "water" && !strings.Contains(f.data, `"watered_by":"0xabc"`) {
			t.Fatalf("unexpected water payload: %s", f.data)
		}
	}

	source.mu.Lock()
	defer source.mu.Unlock()
	last := source.since[len(source.since)-1]
	if last != second.ID {
		t.Fatalf("expected high-water mark %d, got %d", second.ID, last)
	}
}

func TestStreamResumesFromLastEventID(t *testing.T) {
	now := time.Now()
	source := &memorySource{}
	old := events.New(events.Spawn{CharacterID: 1}, now)
	newer := events.New(events.Spawn{CharacterID: 2}, now)
	source.add(old)
	source.add(newer)

	header := http.Header{"Last-Event-Id": []string{itoa(old.ID)}}
	run := startStream(t, source, "/stream/world", header)
	run.clock.Advance(run.ctx, time.Second)
	frames := parseFrames(run.stop(t))

	if n := countEvents(frames, "spawn"); n != 1 {
		t.Fatalf("expected only the newer spawn, got %d", n)
	}
	if frames[1].id != itoa(newer.ID) {
		t.Fatalf("expected id %d, got %s", newer.ID, frames[1].id)
	}
}

func TestStartingID(t *testing.T) {
	cases := []struct {
		name   string
		target string
		header string
		want   int64
	}{
		{"default", "/stream/world", "", 0},
		{"query", "/stream/world?since=42", "", 42},
		{"header wins", "/stream/world?since=42", "77", 77},
		{"garbage", "/stream/world?since=abc", "", 0},
		{"negative", "/stream/world?since=-5", "", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Last-Event-ID", tc.header)
			}
			if got := startingID(req); got != tc.want {
				t.Fatalf("startingID = %d, want %d", got, tc.want)
			}
		})
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
