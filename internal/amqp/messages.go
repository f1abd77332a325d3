package amqp

import (
	"encoding/json"
	"time"
)

// ExpenseRecordedMessage announces that an expense was appended to the
// ledger. It carries identifiers only; the worker re-reads the full record
// from the database, so the queue never holds monetary state.
type ExpenseRecordedMessage struct {
	ExpenseID int64     `json:"expense_id"`
	GroupID   int64     `json:"group_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseRecordedMessage(expenseID, groupID int64) *ExpenseRecordedMessage {
	return &ExpenseRecordedMessage{
		ExpenseID: expenseID,
		GroupID:   groupID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseRecordedMessageFromJSON creates a message from JSON bytes
func ExpenseRecordedMessageFromJSON(data []byte) (*ExpenseRecordedMessage, error) {
	var msg ExpenseRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
