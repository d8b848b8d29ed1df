package domain

import "time"

// Cursor records the highest block already processed for one network so the
// next run fetches only newer data. Absence means fetch from genesis.
type Cursor struct {
	Network     Network   `json:"network"`
	BlockNumber uint64    `json:"block_number"`
	Timestamp   int64     `json:"timestamp"`
	TxHash      string    `json:"tx_hash"`
	UpdatedAt   time.Time `json:"updated_at"`
}
