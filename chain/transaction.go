package chain

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrEmptyLabel    = errors.New("sender and recipient must not be empty")
	ErrInvalidAmount = errors.New("amount must be a positive finite number")
)

// NewTransaction builds a transaction with a fresh identifier. Labels are
// trimmed; amounts must be positive and finite.
func NewTransaction(from, to string, amount float64, timestamp int64) (Transaction, error) {
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" || to == "" {
		return Transaction{}, ErrEmptyLabel
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return Transaction{}, fmt.Errorf("%w: got %v", ErrInvalidAmount, amount)
	}
	return Transaction{
		ID:        NewID(),
		From:      from,
		To:        to,
		Amount:    amount,
		Timestamp: timestamp,
	}, nil
}
