package model

import "time"

// DecisionRecord is one audited AllowEntry evaluation.
type DecisionRecord struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Allowed     bool      `json:"allowed"`
	Gate        string    `json:"gate"`
	Reason      string    `json:"reason"`
	DateUTC     string    `json:"date_utc"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}
