// Package relay implements the per-relay supervised WebSocket client:
// a four-task state machine that dials a relay, multiplexes outbound
// commands onto the socket, forwards inbound messages to a pool, and
// reconnects on a fixed tick until told to terminate.
package relay

import (
	"context"
	"sync"
	"time"

	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"github.com/shugur-labs/relaycore/errs"
	"github.com/shugur-labs/relaycore/internal/logger"
	"github.com/shugur-labs/relaycore/internal/metrics"
)

const (
	supervisorTick = 20 * time.Second
	pingInterval   = 60 * time.Second
)

// PostConnectHook lets the owning pool re-establish state lost across a
// reconnect. The core does not replay previously active subscription
// filters on its own; a pool wires this hook to re-subscribe instead.
type PostConnectHook func(r *Relay)

// Relay owns one supervised connection to a single relay URL. It is
// shared as a *Relay pointer: status, the termination flag, and the
// command channel are shared by every holder of the pointer and by the
// four tasks. Copying the Relay value itself does not share that state.
type Relay struct {
	url   string
	proxy string

	status      *statusCell
	terminating *terminationFlag

	inbound Inbound
	dialer  Dialer

	commands  chan Event
	closeOnce sync.Once

	dedup *eventDedup

	tickInterval time.Duration
	pingInterval time.Duration

	postConnect PostConnectHook

	supervisorWG sync.WaitGroup
	taskWG       sync.WaitGroup
}

// closeCommands closes the command channel exactly once. Afterward
// every enqueueSafe call fails with RelayEventSender.
func (r *Relay) closeCommands() {
	r.closeOnce.Do(func() { close(r.commands) })
}

// New creates a Relay bound to url, with a clone of the pool's inbound
// sender. The Relay starts Initialized; no task runs until Connect.
func New(url string, proxyAddr string, inbound Inbound, dialer Dialer) *Relay {
	if dialer == nil {
		dialer = NewWebsocketDialer()
	}
	return &Relay{
		url:          url,
		proxy:        proxyAddr,
		status:       newStatusCell(Initialized),
		terminating:  &terminationFlag{},
		inbound:      inbound,
		dialer:       dialer,
		commands:     make(chan Event, eventChannelCapacity),
		dedup:        newEventDedup(),
		tickInterval: supervisorTick,
		pingInterval: pingInterval,
	}
}

// URL returns the relay's URL.
func (r *Relay) URL() string { return r.url }

// Status returns the current FSM state.
func (r *Relay) Status() Status { return r.status.Get() }

// SetPostConnectHook installs the hook invoked after every successful
// dial, once status has moved to Connected.
func (r *Relay) SetPostConnectHook(hook PostConnectHook) {
	r.postConnect = hook
}

// SetIntervals overrides the supervisor tick and ping intervals. Call
// before Connect; the supervisor and ping tasks read these once, at
// their own startup.
func (r *Relay) SetIntervals(tick, ping time.Duration) {
	r.tickInterval = tick
	r.pingInterval = ping
}

// Connect gates on status ∈ {Initialized, Terminated}; any other call
// is a no-op. If waitForConnection, an inline tryConnect runs before
// returning so the caller observes Connected/Disconnected immediately.
// Otherwise status moves to Disconnected and the supervisor dials on
// its first tick.
func (r *Relay) Connect(ctx context.Context, waitForConnection bool) {
	switch r.status.Get() {
	case Initialized:
	case Terminated:
		// Re-entering from Terminated: the command channel was closed
		// on the way out, so callers must get a fresh one along with a
		// fresh close guard.
		r.commands = make(chan Event, eventChannelCapacity)
		r.closeOnce = sync.Once{}
	default:
		return
	}

	if waitForConnection {
		r.tryConnect(ctx)
	} else {
		r.status.Set(Disconnected)
	}

	r.supervisorWG.Add(1)
	go r.superviseLoop(ctx)
}

// Wait blocks until the supervisor task (and thus the whole relay) has
// exited, which only happens once status reaches Terminated.
func (r *Relay) Wait() {
	r.supervisorWG.Wait()
}

// SendMsg enqueues a SendMsg command carrying env. Fails with
// RelayEventSender if the channel is closed. A full channel suspends
// the caller until space is available, the channel's only backpressure
// mechanism.
func (r *Relay) SendMsg(env nostr.Envelope) error {
	return r.enqueueSafe(SendMsg{Envelope: env})
}

// Terminate sets the termination flag before enqueuing Terminate, so
// even if the writer task is already gone the supervisor's next tick
// finalizes Terminated.
func (r *Relay) Terminate() error {
	r.terminating.Set()
	return r.enqueueSafe(Terminate{})
}

// Disconnect enqueues Close, dropping to Disconnected without setting
// the termination flag; the supervisor will redial on its next tick.
func (r *Relay) Disconnect() error {
	return r.enqueueSafe(Close{})
}

func (r *Relay) ping() error {
	return r.enqueueSafe(Ping{})
}

// enqueueSafe enqueues e, translating a send-on-closed-channel panic
// into the RelayEventSender error kind instead of propagating the panic.
func (r *Relay) enqueueSafe(e Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errs.New(errs.RelayEventSender, nil)
		}
	}()
	r.commands <- e
	return nil
}

func (r *Relay) superviseLoop(ctx context.Context) {
	defer r.supervisorWG.Done()
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.closeCommands()
			r.status.Set(Terminated)
			metrics.RelayStatus.WithLabelValues(r.url).Set(float64(Terminated))
			return
		case <-ticker.C:
			if r.terminating.TestAndClear() {
				r.closeCommands()
				r.status.Set(Terminated)
				metrics.RelayStatus.WithLabelValues(r.url).Set(float64(Terminated))
				return
			}
			switch r.status.Get() {
			case Disconnected:
				r.tryConnect(ctx)
			case Terminated:
				return
			}
		}
	}
}

// tryConnect dials and, on success, starts one generation of the three
// connection tasks. It first waits for the previous generation (if any)
// to have fully drained, so two generations of tasks never run against
// the same command channel at once.
func (r *Relay) tryConnect(ctx context.Context) {
	r.taskWG.Wait()
	r.status.Set(Connecting)
	metrics.RelayStatus.WithLabelValues(r.url).Set(float64(Connecting))

	sink, stream, err := r.dialer.Dial(ctx, r.url, r.proxy)
	if err != nil {
		metrics.RelayDialFailuresTotal.WithLabelValues(r.url).Inc()
		logger.Warn("relay dial failed", zap.String("url", r.url), zap.Error(err))
		r.status.Set(Disconnected)
		metrics.RelayStatus.WithLabelValues(r.url).Set(float64(Disconnected))
		return
	}

	r.status.Set(Connected)
	metrics.RelayReconnectsTotal.WithLabelValues(r.url).Inc()
	metrics.RelayStatus.WithLabelValues(r.url).Set(float64(Connected))
	r.dedup.Reset()

	r.taskWG.Add(3)
	go r.writerTask(sink, &r.taskWG)
	go r.readerTask(stream, &r.taskWG)
	go r.pingTask(&r.taskWG)

	if r.postConnect != nil {
		r.postConnect(r)
	}
}

func (r *Relay) writerTask(sink Sink, wg *sync.WaitGroup) {
	defer wg.Done()
	for cmd := range r.commands {
		switch c := cmd.(type) {
		case SendMsg:
			data, err := encodeFrame(c.Envelope)
			if err != nil {
				logger.Warn("failed to encode outbound message", zap.String("url", r.url), zap.Error(err))
				continue
			}
			if err := sink.Write(Frame{Kind: FrameText, Data: data}); err != nil {
				logger.Warn("failed to write outbound message", zap.String("url", r.url), zap.Error(err))
				continue
			}
			metrics.MessagesSentTotal.WithLabelValues(r.url).Inc()
		case Ping:
			if err := sink.Write(Frame{Kind: FramePing}); err != nil {
				logger.Warn("failed to write ping", zap.String("url", r.url), zap.Error(err))
				return
			}
		case Close:
			_ = sink.Write(Frame{Kind: FrameClose})
			_ = sink.Close()
			r.status.Set(Disconnected)
			metrics.RelayStatus.WithLabelValues(r.url).Set(float64(Disconnected))
			return
		case Terminate:
			_ = sink.Write(Frame{Kind: FrameClose})
			_ = sink.Close()
			r.closeCommands()
			r.status.Set(Terminated)
			metrics.RelayStatus.WithLabelValues(r.url).Set(float64(Terminated))
			r.terminating.TestAndClear()
			return
		}
	}
}

func (r *Relay) readerTask(stream Stream, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		data, err := stream.Read()
		if err != nil {
			if r.status.Get() != Terminated {
				_ = r.enqueueSafe(Close{})
			}
			return
		}

		env, err := decodeFrame(data)
		if err != nil {
			metrics.DecodeErrorsTotal.WithLabelValues(r.url).Inc()
			logger.Warn("failed to decode inbound frame", zap.String("url", r.url), zap.Error(err))
			continue
		}

		if evEnv, ok := env.(*nostr.EventEnvelope); ok {
			if r.dedup.Seen(evEnv.Event.ID) {
				metrics.DuplicateEventsTotal.WithLabelValues(r.url).Inc()
				continue
			}
		}

		metrics.MessagesReceivedTotal.WithLabelValues(r.url).Inc()
		sendInbound(r.inbound, ReceivedMsg{RelayURL: r.url, Envelope: env})
	}
}

func (r *Relay) pingTask(wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(r.pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		if r.status.Get() != Connected {
			return
		}
		metrics.PingsTotal.WithLabelValues(r.url).Inc()
		if err := r.ping(); err != nil {
			logger.Warn("failed to enqueue ping", zap.String("url", r.url), zap.Error(err))
			if r.status.Get() != Terminated {
				_ = r.enqueueSafe(Close{})
			}
			return
		}
	}
}
