package stream_test

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jrsteele09/go-lichess-client/internal/errors"
	"github.com/jrsteele09/go-lichess-client/stream"
	"github.com/stretchr/testify/require"
)

// chunkBody yields each chunk from a separate Read, then end, then blocks
// until the context is cancelled when end is nil.
type chunkBody struct {
	ctx    context.Context
	chunks [][]byte
	end    error
}

func (b *chunkBody) Read(p []byte) (int, error) {
	if len(b.chunks) > 0 {
		n := copy(p, b.chunks[0])
		if n < len(b.chunks[0]) {
			b.chunks[0] = b.chunks[0][n:]
		} else {
			b.chunks = b.chunks[1:]
		}
		return n, nil
	}
	if b.end != nil {
		return 0, b.end
	}
	<-b.ctx.Done()
	return 0, b.ctx.Err()
}

func (b *chunkBody) Close() error { return nil }

// connection scripts one Open call.
type connection struct {
	chunks  []string
	end     error // nil blocks until the stream is closed
	openErr error
}

type scriptedOpener struct {
	lock    sync.Mutex
	script  []connection
	opens   int
	headers []http.Header
}

func (o *scriptedOpener) Open(ctx context.Context, _ string, headers http.Header) (io.ReadCloser, error) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.headers = append(o.headers, headers)
	idx := o.opens
	o.opens++
	if idx >= len(o.script) {
		idx = len(o.script) - 1
	}
	conn := o.script[idx]
	if conn.openErr != nil {
		return nil, conn.openErr
	}
	chunks := make([][]byte, 0, len(conn.chunks))
	for _, c := range conn.chunks {
		chunks = append(chunks, []byte(c))
	}
	return &chunkBody{ctx: ctx, chunks: chunks, end: conn.end}, nil
}

func (o *scriptedOpener) openCount() int {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.opens
}

type collector struct {
	lock    sync.Mutex
	records []string
}

func (c *collector) sink(record json.RawMessage) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.records = append(c.records, string(record))
}

func (c *collector) snapshot() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]string(nil), c.records...)
}

func waitDone(t *testing.T, h *stream.Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not finish")
	}
}

func readAll(t *testing.T, format stream.Format, chunks ...string) []string {
	t.Helper()
	opener := &scriptedOpener{script: []connection{{chunks: chunks, end: io.EOF}}}
	c := &collector{}
	h := stream.NewReader(opener, stream.WithFormat(format)).Open("/api/stream", nil, c.sink)
	waitDone(t, h)
	require.Equal(t, stream.StateClosed, h.State())
	return c.snapshot()
}

func splitAt(body string, cuts []int) []string {
	var chunks []string
	prev := 0
	for _, cut := range cuts {
		if cut > prev && cut < len(body) {
			chunks = append(chunks, body[prev:cut])
			prev = cut
		}
	}
	return append(chunks, body[prev:])
}

func TestChunkBoundaryInvariance(t *testing.T) {
	body := "{\"type\":\"gameFull\",\"id\":\"a\"}\r\n\n{\"moves\":\"e2e4 e7e5\"}\n{\"text\":\"héllo\\nworld\"}\n[1,2,3]\n"
	want := readAll(t, stream.FormatNDJSON, body)
	require.Equal(t, []string{
		`{"type":"gameFull","id":"a"}`,
		`{"moves":"e2e4 e7e5"}`,
		`{"text":"h` + "é" + `llo\nworld"}`,
		`[1,2,3]`,
	}, want)

	t.Run("every single cut", func(t *testing.T) {
		for cut := 1; cut < len(body); cut++ {
			require.Equal(t, want, readAll(t, stream.FormatNDJSON, splitAt(body, []int{cut})...), "cut at %d", cut)
		}
	})

	t.Run("byte at a time", func(t *testing.T) {
		chunks := make([]string, 0, len(body))
		for i := range body {
			chunks = append(chunks, body[i:i+1])
		}
		require.Equal(t, want, readAll(t, stream.FormatNDJSON, chunks...))
	})

	t.Run("random splits", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 50; i++ {
			cuts := make([]int, 0, 6)
			for j := 0; j < 6; j++ {
				cuts = append(cuts, rng.Intn(len(body)))
			}
			for a := 1; a < len(cuts); a++ {
				for b := a; b > 0 && cuts[b] < cuts[b-1]; b-- {
					cuts[b], cuts[b-1] = cuts[b-1], cuts[b]
				}
			}
			require.Equal(t, want, readAll(t, stream.FormatNDJSON, splitAt(body, cuts)...))
		}
	})
}

func TestMalformedLineIsDropped(t *testing.T) {
	// Scenario B, split across the bad record.
	records := readAll(t, stream.FormatNDJSON, "{\"id\":1}\n{\"ba", "d\"\n{\"id\":2}\n")
	require.Equal(t, []string{`{"id":1}`, `{"id":2}`}, records)
}

func TestMalformedLineKeepsStreamOpen(t *testing.T) {
	opener := &scriptedOpener{script: []connection{{chunks: []string{"{\"id\":1}\n{\"bad\"\n{\"id\":2}\n"}}}}
	c := &collector{}
	h := stream.NewReader(opener).Open("/api/stream", nil, c.sink)
	defer h.Close()

	require.Eventually(t, func() bool { return len(c.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, stream.StateOpen, h.State())
	require.NoError(t, h.Err())
}

func TestResidualRecordFlushedAtEOF(t *testing.T) {
	require.Equal(t, []string{`{"id":1}`, `{"id":2}`}, readAll(t, stream.FormatNDJSON, "{\"id\":1}\n{\"id\":2}"))
	require.Equal(t, []string{`{"id":1}`}, readAll(t, stream.FormatNDJSON, "{\"id\":1}\n{\"id\""))
}

func TestEventStreamFormat(t *testing.T) {
	body := ": keep-alive\n\n" +
		"data: {\"id\":1}\n\n" +
		"event: ping\ndata: {\"ignored\":true}\n\n" +
		"event: message\r\ndata: {\"id\":\r\ndata: 2}\r\n\r\n" +
		"data: {\"id\":3}"
	want := []string{`{"id":1}`, "{\"id\":\n2}", `{"id":3}`}
	require.Equal(t, want, readAll(t, stream.FormatSSE, body))
	require.Equal(t, want, readAll(t, stream.FormatSSE, splitAt(body, []int{3, 17, 40, 60, 77})...))
}

func TestAcceptHeader(t *testing.T) {
	opener := &scriptedOpener{script: []connection{{end: io.EOF}}}
	waitDone(t, stream.NewReader(opener, stream.WithFormat(stream.FormatSSE)).Open("/x", nil, func(json.RawMessage) {}))
	require.Equal(t, "text/event-stream", opener.headers[0].Get("Accept"))

	opener = &scriptedOpener{script: []connection{{end: io.EOF}}}
	waitDone(t, stream.NewReader(opener).Open("/x", http.Header{"Accept": {"application/json"}}, func(json.RawMessage) {}))
	require.Equal(t, "application/json", opener.headers[0].Get("Accept"))
}

func TestCloseIsIdempotent(t *testing.T) {
	opener := &scriptedOpener{script: []connection{{chunks: []string{"{\"id\":1}\n"}}}}
	c := &collector{}
	h := stream.NewReader(opener).Open("/api/stream", nil, c.sink)
	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	h.Close()
	h.Close()

	select {
	case <-h.Done():
	default:
		t.Fatal("done not signalled after Close returned")
	}
	require.Equal(t, stream.StateClosed, h.State())
	require.Len(t, c.snapshot(), 1)
}

func TestNoDeliveryAfterClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; ; i++ {
			if _, err := io.WriteString(w, "{\"n\":1}\n"); err != nil {
				return
			}
			flusher.Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(time.Millisecond):
			}
		}
	}))
	defer srv.Close()

	var lock sync.Mutex
	closed := false
	late := 0
	h := stream.NewReader(httpOpener{}).Open(srv.URL, nil, func(json.RawMessage) {
		lock.Lock()
		defer lock.Unlock()
		if closed {
			late++
		}
	})

	time.Sleep(30 * time.Millisecond)
	h.Close()
	lock.Lock()
	closed = true
	lock.Unlock()
	time.Sleep(30 * time.Millisecond)

	lock.Lock()
	defer lock.Unlock()
	require.Zero(t, late)
}

// httpOpener is a minimal unauthenticated opener over net/http.
type httpOpener struct{}

func (httpOpener) Open(ctx context.Context, endpoint string, headers http.Header) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header = headers
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func TestReconnectAfterTransportFailure(t *testing.T) {
	// Scenario D: the first connection dies mid-record, the second resends.
	opener := &scriptedOpener{script: []connection{
		{chunks: []string{"{\"id\":1}\n{\"id\""}, end: io.ErrUnexpectedEOF},
		{chunks: []string{"{\"id\":1}\n", "{\"id\":2}\n"}},
	}}
	c := &collector{}
	h := stream.NewReader(opener, stream.WithReconnectDelay(20*time.Millisecond)).Open("/api/stream", nil, c.sink)
	defer h.Close()

	require.Eventually(t, func() bool { return len(c.snapshot()) == 3 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []string{`{"id":1}`, `{"id":1}`, `{"id":2}`}, c.snapshot())
	require.Equal(t, 2, opener.openCount())
	require.Equal(t, stream.StateOpen, h.State())
}

func TestReconnectAfterFailedOpen(t *testing.T) {
	opener := &scriptedOpener{script: []connection{
		{openErr: &errors.RequestError{Status: http.StatusServiceUnavailable}},
		{openErr: &errors.TransportError{Endpoint: "/api/stream", Err: io.ErrUnexpectedEOF}},
		{chunks: []string{"{\"id\":1}\n"}},
	}}
	c := &collector{}
	h := stream.NewReader(opener, stream.WithExponentialBackoff(5*time.Millisecond, 20*time.Millisecond)).Open("/api/stream", nil, c.sink)
	defer h.Close()

	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 3, opener.openCount())
}

func TestErroredStateBetweenAttempts(t *testing.T) {
	failure := &errors.TransportError{Endpoint: "/api/stream", Err: io.ErrUnexpectedEOF}
	opener := &scriptedOpener{script: []connection{{openErr: failure}}}
	h := stream.NewReader(opener, stream.WithReconnectDelay(time.Hour)).Open("/api/stream", nil, func(json.RawMessage) {})

	require.Eventually(t, func() bool { return h.State() == stream.StateErrored }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, h.Err(), errors.ErrConnectFailed)

	// Close cancels the pending hour-long delay.
	start := time.Now()
	h.Close()
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, stream.StateClosed, h.State())
	require.Equal(t, 1, opener.openCount())
}

func TestReconnectAfterSessionRecovers(t *testing.T) {
	opener := &scriptedOpener{script: []connection{
		{openErr: errors.ErrNotAuthenticated},
		{openErr: errors.ErrSessionClosed},
		{chunks: []string{"{\"id\":1}\n"}, end: io.EOF},
	}}
	c := &collector{}
	h := stream.NewReader(opener, stream.WithReconnectDelay(5*time.Millisecond)).Open("/api/stream", nil, c.sink)
	waitDone(t, h)

	require.Equal(t, []string{`{"id":1}`}, c.snapshot())
	require.Equal(t, 3, opener.openCount())
	require.Equal(t, stream.StateClosed, h.State())
}

func TestCloseEndsInClosedState(t *testing.T) {
	opener := &scriptedOpener{script: []connection{{openErr: errors.ErrNotAuthenticated}}}
	h := stream.NewReader(opener, stream.WithReconnectDelay(time.Hour)).Open("/api/stream", nil, func(json.RawMessage) {})

	require.Eventually(t, func() bool { return h.State() == stream.StateErrored }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, h.Err(), errors.ErrNotAuthenticated)
	h.Close()
	require.Equal(t, stream.StateClosed, h.State())
	require.Equal(t, 1, opener.openCount())

	// A handle whose policy gave up still reports closed after Close.
	stopped := stream.NewReader(opener, stream.WithBackOff(func() backoff.BackOff { return &backoff.StopBackOff{} })).Open("/api/stream", nil, func(json.RawMessage) {})
	waitDone(t, stopped)
	require.Equal(t, stream.StateErrored, stopped.State())
	stopped.Close()
	require.Equal(t, stream.StateClosed, stopped.State())
}

func TestLongLinesAcrossReads(t *testing.T) {
	long := `{"pgn":"` + strings.Repeat("e4 e5 ", 2000) + `"}`
	records := readAll(t, stream.FormatNDJSON, long[:5000], long[5000:]+"\n")
	require.Equal(t, []string{long}, records)
}
