package relay

import nostr "github.com/nbd-wtf/go-nostr"

// Event is a command enqueued on a relay's bounded command channel.
// Exactly one of the concrete kinds below is carried at a time.
type Event interface {
	isRelayEvent()
}

// SendMsg asks the writer task to serialize and write Envelope as a
// text frame.
type SendMsg struct {
	Envelope nostr.Envelope
}

// Ping asks the writer task to write an empty ping frame.
type Ping struct{}

// Close asks the writer task to send a close frame and move to
// Disconnected.
type Close struct{}

// Terminate asks the writer task to send a close frame and move to
// Terminated, clearing the termination flag.
type Terminate struct{}

func (SendMsg) isRelayEvent()   {}
func (Ping) isRelayEvent()      {}
func (Close) isRelayEvent()     {}
func (Terminate) isRelayEvent() {}

// eventChannelCapacity is the bounded command queue's fixed size.
// Multiple producers (sender clones), single consumer (the writer task).
const eventChannelCapacity = 64
