package relay

import (
	"errors"
	"unicode/utf8"

	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"
)

// errDecodeFrame is a decode-only sentinel: transport/decode failures
// are logged and the frame dropped, never propagated to a caller, so
// this never needs to join the public error taxonomy.
var errDecodeFrame = errors.New("relay: could not decode inbound frame")

// ReceivedMsg is the sole event the Relay emits to the pool's inbound
// channel: one successfully decoded relay message, tagged with the
// relay it arrived from.
type ReceivedMsg struct {
	RelayURL string
	Envelope nostr.Envelope
}

func (m ReceivedMsg) logFields() []zap.Field {
	return []zap.Field{zap.String("relay_url", m.RelayURL)}
}

// decodeFrame validates data is UTF-8 and parses it as a relay-protocol
// message. Decode failures are logged by the caller and the frame is
// dropped; they never tear down the reader task.
func decodeFrame(data []byte) (nostr.Envelope, error) {
	if !utf8.Valid(data) {
		return nil, errDecodeFrame
	}
	env := nostr.ParseMessage(data)
	if env == nil {
		return nil, errDecodeFrame
	}
	return env, nil
}

// encodeFrame serializes an outbound envelope to its wire JSON form.
func encodeFrame(env nostr.Envelope) ([]byte, error) {
	return env.MarshalJSON()
}
