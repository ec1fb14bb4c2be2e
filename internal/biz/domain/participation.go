package domain

import "time"

// ParticipationRecord is the per-participant message accounting of a chatroom
type ParticipationRecord struct {
	Username        string    `json:"username"`
	MessageCount    int       `json:"message_count"`
	QualityScoreSum float64   `json:"quality_score_sum"`
	LastActivity    time.Time `json:"last_activity"`
	Ratio           float64   `json:"ratio"`
}
