// Package modelaudit provides types describing external audit records.
package modelaudit

import "strconv"

type (
	Detail struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	Record struct {
		ID        string   `json:"id"`
		Caller    string   `json:"caller"`
		Operation string   `json:"operation"`
		Details   []Detail `json:"details"`
		Timestamp int64    `json:"timestamp"`
	}
	SequenceResponse struct {
		Sequence uint64 `json:"sequence"`
	}
)

// NewRecord assembles an audit record for one balance-affecting operation.
func NewRecord(id, caller, operation, from, to, amount, fee string, timestamp int64) Record {
	return Record{
		ID:        id,
		Caller:    caller,
		Operation: operation,
		Details: []Detail{
			{Key: "from", Value: from},
			{Key: "to", Value: to},
			{Key: "amount", Value: amount},
			{Key: "fee", Value: fee},
			{Key: "timestamp", Value: strconv.FormatInt(timestamp, 10)},
		},
		Timestamp: timestamp,
	}
}
