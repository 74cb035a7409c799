package models

import "time"

// MaxDatagramBytes is the largest payload a single IPv4 UDP datagram can
// carry, and so the largest submission that can be relayed intact.
const MaxDatagramBytes = 65507

// TimestampLayout formats store keys, e.g. "2024-01-01 12:00:00.000000".
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Field is one decoded form field.
type Field struct {
	Name  string
	Value string
}

// SubmissionRecord is the ordered list of fields decoded from one form body.
type SubmissionRecord []Field

// Entry flattens the record into a StoreEntry. When a field name repeats,
// the last value wins.
func (r SubmissionRecord) Entry() Entry {
	entry := make(Entry, len(r))
	for _, f := range r {
		entry[f.Name] = f.Value
	}
	return entry
}

// Entry maps submitted field names to their trimmed values.
type Entry map[string]string

// Document is the whole persisted store: timestamp key -> entry.
type Document map[string]Entry

// TimestampKey renders t as a store key.
func TimestampKey(t time.Time) string {
	return t.Format(TimestampLayout)
}
