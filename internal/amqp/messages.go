package amqp

import (
	"encoding/json"
	"time"
)

// ContributionSyncMessage asks the worker to (re)export one ledger row.
// It carries only the ID; the worker fetches the full row from the database
// so edits between publish and consume are never exported stale.
type ContributionSyncMessage struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// ContributionDeleteMessage asks the worker to remove an exported row.
// The row is already gone from the database, so the message carries what the
// worker needs to locate it in the sheet.
type ContributionDeleteMessage struct {
	ID         int64     `json:"id"`
	MemberName string    `json:"member_name"`
	Year       int       `json:"year"`
	Month      int       `json:"month"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewContributionSyncMessage(id int64) *ContributionSyncMessage {
	return &ContributionSyncMessage{ID: id, Timestamp: time.Now()}
}

func NewContributionDeleteMessage(id int64, memberName string, year, month int) *ContributionDeleteMessage {
	return &ContributionDeleteMessage{
		ID:         id,
		MemberName: memberName,
		Year:       year,
		Month:      month,
		Timestamp:  time.Now(),
	}
}

func (m *ContributionSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func (m *ContributionDeleteMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ContributionSyncMessageFromJSON(data []byte) (*ContributionSyncMessage, error) {
	var msg ContributionSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func ContributionDeleteMessageFromJSON(data []byte) (*ContributionDeleteMessage, error) {
	var msg ContributionDeleteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
