package models

import (
	"encoding/json"
	"time"
)

// DeadLetterSuffix is appended to the originating topic to derive the
// dead-letter destination.
const DeadLetterSuffix = ".dlt"

// DeadLetterRecord wraps a fact whose consumer-side processing exhausted the
// retry budget. The original payload is carried verbatim so out-of-band
// tooling can replay it.
type DeadLetterRecord struct {
	OriginalTopic     string          `json:"original_topic"`
	OriginalPartition int32           `json:"original_partition"`
	OriginalOffset    int64           `json:"original_offset"`
	Key               string          `json:"key"`
	Payload           json.RawMessage `json:"payload"`
	Attempts          int             `json:"attempts"`
	LastError         string          `json:"last_error"`
	FailedAt          time.Time       `json:"failed_at"`
}

// DeadLetterTopic derives the dead-letter destination for a topic.
func DeadLetterTopic(topic string) string {
	return topic + DeadLetterSuffix
}
