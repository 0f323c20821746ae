package finnhub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"trade_ingest/internal/domain"
	"trade_ingest/internal/infra"
)

var _ domain.FeedWorker = (*Worker)(nil)

// Worker supervises the single feed connection: it dials, runs the subscriber
// against the session's writer, and persists every decoded trade in wire order.
type Worker struct {
	endpoint     string
	symbols      []string
	sink         domain.TradeSink
	dialOpts     DialOptions
	interval     time.Duration
	sinkTimeout  time.Duration
	drainTimeout time.Duration
	reconnect    bool
	backoff      func(retry int) time.Duration
	logger       *slog.Logger
	metrics      *infra.Metrics

	subscriber *Subscriber

	mu        sync.RWMutex
	session   *Session
	connected bool
	err       error
	cancel    context.CancelFunc
	done      chan struct{}
	wg        sync.WaitGroup
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger routes the worker's diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics overrides infra.GlobalMetrics.
func WithMetrics(m *infra.Metrics) Option {
	return func(w *Worker) {
		if m != nil {
			w.metrics = m
		}
	}
}

// WithDialOptions sets handshake and read/write deadlines.
func WithDialOptions(opts DialOptions) Option {
	return func(w *Worker) {
		w.dialOpts = opts
	}
}

// WithSubscribeInterval overrides the 60s re-subscription cadence.
func WithSubscribeInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithSinkTimeout bounds each Insert call. Zero means no bound.
func WithSinkTimeout(d time.Duration) Option {
	return func(w *Worker) {
		w.sinkTimeout = d
	}
}

// WithDrainTimeout bounds how long Disconnect waits for in-flight inserts.
func WithDrainTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.drainTimeout = d
		}
	}
}

// WithReconnect redials after a lost session instead of stopping.
func WithReconnect(enabled bool) Option {
	return func(w *Worker) {
		w.reconnect = enabled
	}
}

// WithBackoff replaces infra.CalculateBackoff for redial delays.
func WithBackoff(fn func(retry int) time.Duration) Option {
	return func(w *Worker) {
		if fn != nil {
			w.backoff = fn
		}
	}
}

// NewWorker creates a feed worker persisting trades into sink.
func NewWorker(endpoint string, symbols []string, sink domain.TradeSink, opts ...Option) (*Worker, error) {
	w := &Worker{
		endpoint: endpoint,
		symbols:  symbols,
		sink:     sink,
		dialOpts: DialOptions{
			HandshakeTimeout: DefaultHandshakeTimeout,
			WriteTimeout:     DefaultWriteTimeout,
		},
		interval:     DefaultSubscribeInterval,
		sinkTimeout:  DefaultSinkTimeout,
		drainTimeout: DefaultDrainTimeout,
		backoff:      infra.CalculateBackoff,
		logger:       slog.Default(),
		metrics:      infra.GlobalMetrics,
	}
	for _, opt := range opts {
		opt(w)
	}

	sub, err := NewSubscriber(symbols, w.interval, w.logger, w.metrics)
	if err != nil {
		return nil, err
	}
	w.subscriber = sub
	return w, nil
}

// Connect performs the handshake and starts the session in the background.
// A handshake failure is returned as *domain.ConnectionError and nothing is started.
func (w *Worker) Connect(ctx context.Context) error {
	sess, err := w.dial(ctx)
	if err != nil {
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	w.wg.Add(1)
	go w.connectionLoop(ctx, sess)

	return nil
}

func (w *Worker) dial(ctx context.Context) (*Session, error) {
	sess, err := Dial(ctx, w.endpoint, w.dialOpts)
	if err != nil {
		return nil, err
	}
	w.logger.Info("Connected to feed",
		slog.String("endpoint", sess.Endpoint()),
		slog.Int("symbols", len(w.symbols)),
	)
	return sess, nil
}

// connectionLoop runs sessions until ctx is cancelled, redialing only when enabled
func (w *Worker) connectionLoop(ctx context.Context, sess *Session) {
	defer w.wg.Done()
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Feed worker panic recovered", slog.Any("panic", r))
			w.setErr(errors.New("feed worker panicked"))
		}
	}()

	for {
		err := w.runSession(ctx, sess)
		if ctx.Err() != nil {
			return
		}
		w.setErr(err)

		if !w.reconnect || !domain.IsRetriable(err) {
			w.logger.Error("Feed session ended", slog.Any("error", err))
			return
		}
		w.logger.Warn("Feed session lost, reconnecting", slog.Any("error", err))

		sess = w.redial(ctx)
		if sess == nil {
			return
		}
		w.metrics.RecordReconnect()
		w.setErr(nil)
	}
}

// redial retries with exponential backoff. Returns nil when ctx ends or the error is fatal.
func (w *Worker) redial(ctx context.Context) *Session {
	retryCount := 0
	for {
		delay := w.backoff(retryCount)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		sess, err := w.dial(ctx)
		if err == nil {
			return sess
		}
		if ctx.Err() != nil {
			return nil
		}
		w.setErr(err)
		if !domain.IsRetriable(err) {
			w.logger.Error("Feed redial failed permanently", slog.Any("error", err))
			return nil
		}

		retryCount++
		if retryCount > infra.BackoffMaxRetries {
			w.logger.Error("Feed max retries exceeded, resetting counter")
			retryCount = 0
		}
		w.logger.Warn("Feed redial failed", slog.Any("error", err), slog.Int("retry", retryCount))
	}
}

// runSession drives one connection: subscriber in the background, frames in the foreground.
func (w *Worker) runSession(ctx context.Context, sess *Session) error {
	w.setSession(sess)
	w.metrics.IncrementConnections()

	subCtx, cancelSub := context.WithCancel(ctx)
	var subWg sync.WaitGroup
	subWg.Add(1)
	go func() {
		defer subWg.Done()
		w.subscriber.Run(subCtx, sess)
	}()

	defer func() {
		cancelSub()
		sess.Close()
		subWg.Wait()
		w.clearSession()
		w.metrics.DecrementConnections()
	}()

	for {
		// Buffered frames are not started once shutdown begins.
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-sess.Inbound():
			if !ok {
				return sess.Err()
			}
			w.handleFrame(ctx, frame)
		}
	}
}

// handleFrame decodes one frame and inserts its trades. Every discard logs exactly once.
func (w *Worker) handleFrame(ctx context.Context, frame Frame) {
	w.metrics.RecordFrame()

	if !frame.IsText() {
		w.metrics.RecordDecodeError()
		w.logger.Warn("Discarding non-text frame",
			slog.Int("opcode", frame.Type),
			slog.Int("bytes", len(frame.Payload)),
		)
		return
	}

	msg, err := Decode(frame.Payload)
	if err != nil {
		w.metrics.RecordDecodeError()
		w.logger.Warn("Discarding undecodable frame",
			slog.Any("error", err),
			slog.Int("bytes", len(frame.Payload)),
		)
		return
	}

	if !msg.IsTrade() {
		w.metrics.RecordSkipped()
		w.logger.Info("Skipping non-trade envelope", slog.String("type", msg.Type))
		return
	}

	for _, ev := range msg.Trades {
		w.persist(ctx, ev)
	}
}

// persist inserts one trade. The insert is detached from ctx so shutdown lets it finish.
func (w *Worker) persist(ctx context.Context, ev domain.TradeEvent) {
	insertCtx := context.WithoutCancel(ctx)
	if w.sinkTimeout > 0 {
		var cancel context.CancelFunc
		insertCtx, cancel = context.WithTimeout(insertCtx, w.sinkTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := w.sink.Insert(insertCtx, ev); err != nil {
		w.metrics.RecordSinkError()
		w.logger.Error("Failed to persist trade",
			slog.Any("error", &domain.StorageError{Symbol: ev.Symbol, Err: err}),
			slog.Float64("price", ev.Price),
			slog.Float64("ts", ev.TimestampSeconds),
		)
		return
	}
	w.metrics.RecordPersisted(time.Since(start))
}

func (w *Worker) setSession(sess *Session) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.session = sess
	w.connected = true
}

func (w *Worker) clearSession() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.session = nil
	w.connected = false
}

func (w *Worker) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

// closeSession closes the current connection, unblocking the read pump.
func (w *Worker) closeSession() {
	w.mu.RLock()
	sess := w.session
	w.mu.RUnlock()

	if sess != nil {
		sess.Close()
	}
}

// Done is closed when the worker stops for good. Nil before Connect.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Err returns the last session or redial error.
func (w *Worker) Err() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.err
}

// Disconnect cancels both tasks and waits, bounded by the drain timeout,
// for the frame being processed to finish its inserts.
func (w *Worker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}

	finished := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(w.drainTimeout):
		w.logger.Warn("Feed drain timed out", slog.Duration("timeout", w.drainTimeout))
		w.closeSession()
	}
	w.logger.Info("Feed WebSocket disconnected")
}

// IsConnected returns connection status
func (w *Worker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}
