package streaming

import (
	"encoding/json"
	"errors"

	"feeindex/internal/domain"
)

// Message is the wire shape published for every collected fee transfer.
type Message struct {
	Network      domain.Network         `json:"network"`
	TxHash       string                 `json:"tx_hash"`
	BlockNumber  uint64                 `json:"block_number,omitempty"`
	Timestamp    int64                  `json:"timestamp"`
	Value        string                 `json:"value"`
	TokenSymbol  string                 `json:"token_symbol"`
	TokenDecimal int                    `json:"token_decimal"`
	From         string                 `json:"from"`
	To           string                 `json:"to"`
	Type         domain.TransactionType `json:"type,omitempty"`
	Category     domain.FeeCategory     `json:"category,omitempty"`
	Internal     bool                   `json:"internal,omitempty"`
}

func FromTransaction(tx domain.Transaction) Message {
	return Message{
		Network:      tx.Network,
		TxHash:       tx.Hash,
		BlockNumber:  tx.BlockNumber,
		Timestamp:    tx.Timestamp,
		Value:        tx.Value,
		TokenSymbol:  tx.TokenSymbol,
		TokenDecimal: tx.TokenDecimal,
		From:         tx.From,
		To:           tx.To,
		Type:         tx.Type,
		Category:     tx.Category,
		Internal:     tx.InternalNative,
	}
}

func Encode(msg Message) ([]byte, error) {
	if msg.Network == "" {
		return nil, errors.New("network is required")
	}
	if msg.TxHash == "" {
		return nil, errors.New("tx_hash is required")
	}
	return json.Marshal(msg)
}

func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if msg.Network == "" {
		return Message{}, errors.New("network is missing")
	}
	if msg.TxHash == "" {
		return Message{}, errors.New("tx_hash is missing")
	}
	return msg, nil
}
