package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Reasons attached to recalculation requests.
const (
	ReasonIncomeCreated = "income_created"
	ReasonIncomeUpdated = "income_updated"
	ReasonIncomeDeleted = "income_deleted"
	ReasonSlabsChanged  = "slabs_changed"
	ReasonManual        = "manual"
)

// RecalculationMessage asks the worker to recompute tax. The worker reads the
// current incomes and slabs itself, so only the target is carried.
type RecalculationMessage struct {
	// TaxpayerID is empty when every taxpayer must be recalculated.
	TaxpayerID string    `json:"taxpayerId,omitempty"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewRecalculationMessage(taxpayerID, reason string) *RecalculationMessage {
	return &RecalculationMessage{
		TaxpayerID: taxpayerID,
		Reason:     reason,
		Timestamp:  time.Now().UTC(),
	}
}

// AllTaxpayers reports whether the message targets the whole ledger.
func (m *RecalculationMessage) AllTaxpayers() bool {
	return m.TaxpayerID == ""
}

// Taxpayer parses the target id. Call only when AllTaxpayers is false.
func (m *RecalculationMessage) Taxpayer() (uuid.UUID, error) {
	return uuid.Parse(m.TaxpayerID)
}

func (m *RecalculationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecalculationMessageFromJSON decodes and validates a message body.
func RecalculationMessageFromJSON(data []byte) (*RecalculationMessage, error) {
	var msg RecalculationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.AllTaxpayers() {
		if _, err := msg.Taxpayer(); err != nil {
			return nil, fmt.Errorf("invalid taxpayer id %q: %w", msg.TaxpayerID, err)
		}
	}
	return &msg, nil
}
