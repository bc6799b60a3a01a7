package jobs

import "time"

// Event は認証に関する監査イベントです。
type Event struct {
	Action   string    `json:"action"`
	Subject  string    `json:"subject"`
	ClientIP string    `json:"clientIp,omitempty"`
	At       time.Time `json:"at"`
}
