package escrow

import "strconv"

// EventType names one recorded transition.
type EventType string

const (
	EventAgreementCreated    EventType = "agreement.created"
	EventAgreementFunded     EventType = "agreement.funded"
	EventMilestoneVerified   EventType = "milestone.verified"
	EventMilestoneReleased   EventType = "milestone.released"
	EventAgreementRefunded   EventType = "agreement.refunded"
	EventFeeRecipientChanged EventType = "fee_recipient.changed"
)

// Event is one committed transition. Seq increases strictly from 1 within an
// agreement; administrative events use agreement id 0 with their own
// sequence. Amounts travel in payloads as decimal strings so they survive
// JSON round trips at full uint64 range.
type Event struct {
	Type        EventType
	AgreementID AgreementID
	Seq         uint64
	Tick        uint64
	Payload     map[string]any
}

// Recorder receives events after their transition has committed, while the
// engine holds its write lock. Record must not block on I/O and must not call
// back into the Engine; durable sinks buffer and drain on their own schedule.
type Recorder interface {
	Record(ev Event)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ev Event)

func (f RecorderFunc) Record(ev Event) { f(ev) }

func amountString(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// ParseAmount reads a decimal string payload amount back into a uint64.
func ParseAmount(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
