// Package stream reads long-lived NDJSON and event-stream responses and
// delivers each record in order, reconnecting after transport failures until
// closed.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-lichess-client/internal/errors"
	"github.com/jrsteele09/go-lichess-client/internal/logging"
	"github.com/rs/zerolog"
)

const (
	DefaultReconnectDelay    = 5 * time.Second
	DefaultMaxReconnectDelay = time.Minute

	readChunkSize = 4096
)

// Format selects the framing of the response body.
type Format int

const (
	FormatNDJSON Format = iota
	FormatSSE
)

// Accept is the content type requested for the format.
func (f Format) Accept() string {
	if f == FormatSSE {
		return "text/event-stream"
	}
	return "application/x-ndjson"
}

// State of a stream connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateErrored
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateErrored:
		return "errored"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Opener starts the HTTP exchange for a stream. httpclient.Client satisfies it.
type Opener interface {
	Open(ctx context.Context, endpoint string, headers http.Header) (io.ReadCloser, error)
}

// Sink receives each decoded record. It is called from a single goroutine,
// one record at a time, and must not call Close on its own handle.
type Sink func(record json.RawMessage)

// Reader opens streams over an Opener.
type Reader struct {
	opener     Opener
	format     Format
	newBackOff func() backoff.BackOff
	logger     zerolog.Logger
}

type ReaderOption func(*Reader)

func WithFormat(format Format) ReaderOption {
	return func(r *Reader) {
		r.format = format
	}
}

// WithReconnectDelay waits a fixed delay between reconnect attempts.
func WithReconnectDelay(delay time.Duration) ReaderOption {
	return func(r *Reader) {
		r.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(delay) }
	}
}

// WithExponentialBackoff grows the reconnect delay from initial up to maxDelay.
// Attempts never stop on elapsed time.
func WithExponentialBackoff(initial, maxDelay time.Duration) ReaderOption {
	return func(r *Reader) {
		r.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = maxDelay
			b.MaxElapsedTime = 0
			b.Reset()
			return b
		}
	}
}

// WithBackOff installs a custom delay policy. Returning backoff.Stop ends the
// stream in the errored state.
func WithBackOff(newBackOff func() backoff.BackOff) ReaderOption {
	return func(r *Reader) {
		r.newBackOff = newBackOff
	}
}

func WithLogger(logger zerolog.Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = logger
	}
}

func NewReader(opener Opener, opts ...ReaderOption) *Reader {
	r := &Reader{
		opener: opener,
		format: FormatNDJSON,
		logger: logging.Silent(),
	}
	WithReconnectDelay(DefaultReconnectDelay)(r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open starts reading endpoint in the background. Records go to sink until
// the server ends the stream or the handle is closed.
func (r *Reader) Open(endpoint string, headers http.Header, sink Sink) *Handle {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Handle{
		ID:       uuid.NewString(),
		endpoint: endpoint,
		headers:  withAccept(headers, r.format),
		reader:   r,
		sink:     sink,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	h.logger = r.logger.With().Str("stream_id", h.ID).Str("endpoint", endpoint).Logger()
	h.state.Store(int32(StateConnecting))

	go h.run(ctx)
	return h
}

func withAccept(headers http.Header, format Format) http.Header {
	merged := headers.Clone()
	if merged == nil {
		merged = http.Header{}
	}
	if merged.Get("Accept") == "" {
		merged.Set("Accept", format.Accept())
	}
	return merged
}

// Handle controls one open stream.
type Handle struct {
	ID string

	endpoint string
	headers  http.Header
	reader   *Reader
	sink     Sink
	logger   zerolog.Logger

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	state atomic.Int32
	mu    sync.RWMutex
	err   error
}

// Close stops the stream, aborting any read in progress and any pending
// reconnect delay. It returns once the reader goroutine has exited, so no
// record is delivered after it returns. The handle ends in StateClosed.
// Further calls do nothing.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.cancel()
	})
	<-h.done
	h.state.Store(int32(StateClosed))
}

// Done is closed when the stream has terminated.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) State() State {
	return State(h.state.Load())
}

// Err reports the most recent transport error, or nil.
func (h *Handle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

func (h *Handle) setState(state State, err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	h.state.Store(int32(state))
}

func (h *Handle) run(ctx context.Context) {
	defer close(h.done)

	policy := h.reader.newBackOff()
	for attempt := 1; ; attempt++ {
		h.setState(StateConnecting, h.Err())
		err := h.connect(ctx, policy)
		if ctx.Err() != nil {
			h.setState(StateClosed, nil)
			return
		}
		if err == nil {
			h.logger.Debug().Msg("stream ended by server")
			h.setState(StateClosed, nil)
			return
		}

		h.setState(StateErrored, err)

		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			h.logger.Warn().Err(err).Int("attempt", attempt).Msg("stream gave up reconnecting")
			return
		}
		msg := "stream interrupted, reconnecting"
		if errors.Is(err, errors.ErrNotAuthenticated) || errors.Is(err, errors.ErrSessionClosed) {
			// Keeps retrying so the stream resumes once the user logs in again.
			msg = "stream waiting for a valid session"
		}
		h.logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg(msg)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			h.setState(StateClosed, nil)
			return
		case <-timer.C:
		}
	}
}

// connect runs one connection to completion. It returns nil when the server
// ends the body cleanly.
func (h *Handle) connect(ctx context.Context, policy backoff.BackOff) error {
	body, err := h.reader.opener.Open(ctx, h.endpoint, h.headers)
	if err != nil {
		return err
	}
	defer body.Close()

	policy.Reset()
	h.setState(StateOpen, nil)
	h.logger.Debug().Msg("stream open")

	// A fresh decoder per connection; the server resends a full snapshot.
	dec := newDecoder(h.reader.format)
	buf := make([]byte, readChunkSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			dec.feed(buf[:n], h.deliver)
		}
		if readErr == io.EOF {
			dec.flush(h.deliver)
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("%w: %w", errors.ErrUnexpectedClose, readErr)
		}
	}
}

func (h *Handle) deliver(record []byte) {
	if h.closed.Load() {
		return
	}
	if !json.Valid(record) {
		h.logger.Warn().Err(errors.ErrParse).Bytes("record", truncate(record, 200)).Msg("dropping malformed record")
		return
	}
	h.sink(json.RawMessage(append([]byte(nil), record...)))
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
