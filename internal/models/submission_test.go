package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubmissionRecord_Entry(t *testing.T) {
	record := SubmissionRecord{
		{Name: "username", Value: "alice"},
		{Name: "message", Value: "hi there"},
	}

	assert.Equal(t, Entry{"username": "alice", "message": "hi there"}, record.Entry())
}

func TestSubmissionRecord_EntryDuplicateLastWins(t *testing.T) {
	record := SubmissionRecord{
		{Name: "tag", Value: "first"},
		{Name: "tag", Value: "second"},
	}

	assert.Equal(t, Entry{"tag": "second"}, record.Entry())
}

func TestSubmissionRecord_EntryEmpty(t *testing.T) {
	entry := SubmissionRecord(nil).Entry()
	assert.NotNil(t, entry)
	assert.Empty(t, entry)
}

func TestTimestampKey(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 123456789, time.UTC)
	assert.Equal(t, "2024-01-01 12:00:00.123456", TimestampKey(ts))
}
