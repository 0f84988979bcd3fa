// Package messenger implements the dispatcher<->sheep wire protocol
// (spec.md §4.1): a tagged-message protocol over a stream-oriented duplex
// socket in router/dealer topology. The dispatcher binds one Socket per
// sheep; the sheep process connects as a dealer with the fixed peer
// identity "runner".
package messenger

import "fmt"

// Kind tags a message's wire type.
type Kind string

const (
	// KindInput is sent dispatcher -> sheep to hand off a job.
	KindInput Kind = "input"
	// KindDone is sent sheep -> dispatcher once outputs are durably written.
	KindDone Kind = "done"
	// KindError is sent sheep -> dispatcher; terminal.
	KindError Kind = "error"
)

// PeerIdentity is the fixed byte sequence a sheep process identifies itself
// with when it connects (spec.md §6).
const PeerIdentity = "runner"

// Envelope is the wire frame for every message kind. Fields not relevant to
// Kind are left zero.
type Envelope struct {
	Kind      Kind   `json:"kind"`
	MessageID uint64 `json:"message_id"`
	// Incarnation identifies which connection lifetime produced this
	// message, so the dispatcher can ignore stale replies from a previous
	// incarnation of a sheep (spec.md §4.1).
	Incarnation uint64 `json:"incarnation"`
	JobID       string `json:"job_id"`

	// KindInput fields.
	IODataRoot string `json:"io_data_root,omitempty"`

	// KindError fields.
	ShortMessage  string `json:"short_message,omitempty"`
	LongTrace     string `json:"long_trace,omitempty"`
	ExceptionType string `json:"exception_type,omitempty"`
}

// Validate reports whether e is a well-formed frame for its Kind. Malformed
// frames are logged and dropped by the receiver rather than surfaced as a
// protocol error (spec.md §4.1).
func (e Envelope) Validate() error {
	if e.JobID == "" {
		return fmt.Errorf("missing job_id")
	}
	switch e.Kind {
	case KindInput:
		if e.IODataRoot == "" {
			return fmt.Errorf("input message missing io_data_root")
		}
	case KindDone:
		// no additional required fields
	case KindError:
		if e.ShortMessage == "" {
			return fmt.Errorf("error message missing short_message")
		}
	default:
		return fmt.Errorf("unknown message kind %q", e.Kind)
	}
	return nil
}

// InputMessage builds a dispatcher -> sheep job handoff.
func InputMessage(jobID, ioDataRoot string) Envelope {
	return Envelope{Kind: KindInput, JobID: jobID, IODataRoot: ioDataRoot}
}

// DoneMessage builds a sheep -> dispatcher completion notice.
func DoneMessage(jobID string) Envelope {
	return Envelope{Kind: KindDone, JobID: jobID}
}

// ErrorMessage builds a sheep -> dispatcher failure notice.
func ErrorMessage(jobID, shortMessage, longTrace, exceptionType string) Envelope {
	return Envelope{
		Kind:          KindError,
		JobID:         jobID,
		ShortMessage:  shortMessage,
		LongTrace:     longTrace,
		ExceptionType: exceptionType,
	}
}
