package relay

import "github.com/shugur-labs/relaycore/internal/logger"

// Inbound is the pool-owned sink a Relay holds a producer handle to.
// The only event emitted through it is ReceivedMsg. Send failure is
// logged and dropped by sendInbound below — pool congestion must never
// propagate back into the reader loop beyond that log line.
type Inbound interface {
	Send(ReceivedMsg)
}

// ChanInbound is the default Inbound backed by a buffered channel,
// owned and drained by the pool.
type ChanInbound chan ReceivedMsg

func NewChanInbound(capacity int) ChanInbound {
	return make(ChanInbound, capacity)
}

func (c ChanInbound) Send(msg ReceivedMsg) {
	select {
	case c <- msg:
	default:
		logger.Warn("pool inbound channel full, dropping message", msg.logFields()...)
	}
}

func sendInbound(inbound Inbound, msg ReceivedMsg) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("pool inbound send panicked, dropping message", msg.logFields()...)
		}
	}()
	inbound.Send(msg)
}
