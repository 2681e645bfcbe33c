package ledger

import (
	"fmt"

	apperrors "cashflow/internal/errors"
)

// Replay rebuilds a ledger by folding events in order over an empty state.
func Replay(events []Event) (*Ledger, error) {
	if len(events) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrLedgerNotFound, "no events to replay")
	}
	l := &Ledger{}
	for i, evt := range events {
		if err := l.Apply(evt); err != nil {
			return nil, fmt.Errorf("replay event %d (%s): %w", i+1, evt.EventType(), err)
		}
	}
	return l, nil
}

// ReplayEnvelopes decodes and replays a stored event log. Envelopes must be
// contiguous from seq 1 and carry the checksum of their payload.
func ReplayEnvelopes(envs []Envelope) (*Ledger, error) {
	events := make([]Event, 0, len(envs))
	for i, env := range envs {
		if want := uint64(i + 1); env.Seq != want {
			return nil, apperrors.WithMessage(apperrors.ErrEventSequenceGap,
				"ledger %s: expected seq %d, got %d", env.LedgerID, want, env.Seq)
		}
		if !env.VerifyChecksum() {
			return nil, fmt.Errorf("ledger %s seq %d: checksum mismatch", env.LedgerID, env.Seq)
		}
		evt, err := Decode(env)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return Replay(events)
}
