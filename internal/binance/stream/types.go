package stream

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrControlFrame is returned for subscription acknowledgements such as
// {"result":null,"id":1}. Callers skip these frames silently.
var ErrControlFrame = errors.New("control frame")

// DecodeFault reports a frame that could not be turned into an event.
type DecodeFault struct {
	Reason string // short description, e.g. "malformed json" or "unknown event type"
	Stream string // stream name from the envelope, empty for bare payloads
	Err    error
}

func (f *DecodeFault) Error() string {
	msg := "decode"
	if f.Stream != "" {
		msg += " " + f.Stream
	}
	msg += ": " + f.Reason
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *DecodeFault) Unwrap() error { return f.Err }

func fault(stream, reason string, err error) *DecodeFault {
	return &DecodeFault{Reason: reason, Stream: stream, Err: err}
}

func missing(stream, field string) *DecodeFault {
	return fault(stream, "missing field", fmt.Errorf("%q", field))
}

// frame is the union of the combined-stream envelope and the control acknowledgement.
type frame struct {
	Stream string          `json:"stream"` // e.g. "btcusdt@trade"
	Data   json.RawMessage `json:"data"`   // event payload
	Result json.RawMessage `json:"result"` // set on acknowledgements
	ID     *uint64         `json:"id"`     // set on acknowledgements
}
