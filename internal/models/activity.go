package models

import "time"

// ActivityRecord is one append-only audit entry. Records are write-once:
// nothing updates or deletes them, and they are read back only by account.
// Time and Date carry preformatted display strings alongside the raw
// timestamp, matching what the activity page renders.
type ActivityRecord struct {
	AccountID int64     `bson:"account_id" json:"account_id"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Time      string    `bson:"time" json:"time"`
	Date      string    `bson:"date" json:"date"`
	Details   string    `bson:"details" json:"details"`
}

// NewActivityRecord stamps a record with the current time.
func NewActivityRecord(accountID int64, details string) ActivityRecord {
	now := time.Now().UTC()
	return ActivityRecord{
		AccountID: accountID,
		Timestamp: now,
		Time:      now.Format("15:04:05"),
		Date:      now.Format("01/02/06"),
		Details:   details,
	}
}
