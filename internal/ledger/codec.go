package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cashflow/internal/core"
)

// Envelope is the persisted and published form of an event.
type Envelope struct {
	EventID    string          `json:"event_id"`
	LedgerID   core.LedgerID   `json:"ledger_id"`
	Seq        uint64          `json:"seq"`
	Type       Type            `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Checksum   string          `json:"checksum"`
	Payload    json.RawMessage `json:"payload"`
}

// Checksum fingerprints an event: hex SHA-256 over "<type>:<json payload>".
// The forecast computes the same value for every event it applies, so equal
// checksums at equal versions mean both sides saw the same stream.
func Checksum(evt Event) (string, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", evt.EventType(), err)
	}
	return checksumOf(evt.EventType(), payload), nil
}

func checksumOf(t Type, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(t))
	h.Write([]byte(":"))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Encode wraps evt in an envelope at position seq of its ledger's log.
func Encode(seq uint64, evt Event) (Envelope, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", evt.EventType(), err)
	}
	return Envelope{
		EventID:    uuid.NewString(),
		LedgerID:   evt.AggregateID(),
		Seq:        seq,
		Type:       evt.EventType(),
		OccurredAt: evt.OccurredOn(),
		Checksum:   checksumOf(evt.EventType(), payload),
		Payload:    payload,
	}, nil
}

// Decode turns an envelope back into its typed event.
func Decode(env Envelope) (Event, error) {
	var (
		evt Event
		err error
	)
	switch env.Type {
	case TypeLedgerCreated:
		evt, err = decodeAs[LedgerCreated](env.Payload)
	case TypeTransactionAppended:
		evt, err = decodeAs[TransactionAppended](env.Payload)
	case TypeTransactionConfirmed:
		evt, err = decodeAs[TransactionConfirmed](env.Payload)
	case TypeTransactionRejected:
		evt, err = decodeAs[TransactionRejected](env.Payload)
	case TypeTransactionEdited:
		evt, err = decodeAs[TransactionEdited](env.Payload)
	case TypeCategoryCreated:
		evt, err = decodeAs[CategoryCreated](env.Payload)
	case TypeCategoryArchived:
		evt, err = decodeAs[CategoryArchived](env.Payload)
	case TypeCategoryUnarchived:
		evt, err = decodeAs[CategoryUnarchived](env.Payload)
	case TypeBudgetingSet:
		evt, err = decodeAs[BudgetingSet](env.Payload)
	case TypeHistoricalTransactionImported:
		evt, err = decodeAs[HistoricalTransactionImported](env.Payload)
	case TypeHistoricalImportAttested:
		evt, err = decodeAs[HistoricalImportAttested](env.Payload)
	case TypeMonthRolledOver:
		evt, err = decodeAs[MonthRolledOver](env.Payload)
	case TypeMonthAttested:
		evt, err = decodeAs[MonthAttested](env.Payload)
	case TypeLedgerClosed:
		evt, err = decodeAs[LedgerClosed](env.Payload)
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s seq %d: %w", env.Type, env.Seq, err)
	}
	return evt, nil
}

func decodeAs[T Event](payload []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// VerifyChecksum recomputes the checksum of the envelope payload.
func (e Envelope) VerifyChecksum() bool {
	return checksumOf(e.Type, e.Payload) == e.Checksum
}
