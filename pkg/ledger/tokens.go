package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Tokens is a non-negative fixed-point amount with two fractional digits.
type Tokens struct {
	value decimal.Decimal
}

// PositiveTokens is a strictly positive Tokens amount.
type PositiveTokens struct {
	value decimal.Decimal
}

// TokenDelta is a signed change applied to a balance.
type TokenDelta struct {
	value decimal.Decimal
}

// MaxTokens is the largest amount or balance the ledger accepts (99,999,999.99).
var MaxTokens = Tokens{value: decimal.New(maxTokenCents, -tokenScale)}

// NewTokens validates a non-negative amount.
func NewTokens(raw decimal.Decimal) (Tokens, error) {
	if raw.IsNegative() {
		return Tokens{}, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	if !hasTokenScale(raw) {
		return Tokens{}, fmt.Errorf("%w: at most %d fractional digits", ErrInvalidAmount, tokenScale)
	}
	if raw.GreaterThan(MaxTokens.value) {
		return Tokens{}, fmt.Errorf("%w: must not exceed %s", ErrInvalidAmount, MaxTokens)
	}
	return Tokens{value: raw}, nil
}

// ParseTokens parses a decimal string such as "12.50".
func ParseTokens(raw string) (Tokens, error) {
	parsed, err := parseDecimal(raw)
	if err != nil {
		return Tokens{}, err
	}
	return NewTokens(parsed)
}

// TokensFromCents converts a persisted hundredths value. Stored sums may
// exceed MaxTokens, so only the sign is checked.
func TokensFromCents(cents int64) (Tokens, error) {
	if cents < 0 {
		return Tokens{}, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return Tokens{value: decimal.New(cents, -tokenScale)}, nil
}

// Decimal returns the underlying decimal value.
func (tokens Tokens) Decimal() decimal.Decimal {
	return tokens.value
}

// Cents returns the amount in hundredths.
func (tokens Tokens) Cents() int64 {
	return tokens.value.Shift(tokenScale).IntPart()
}

// String renders the amount with exactly two fractional digits.
func (tokens Tokens) String() string {
	return tokens.value.StringFixed(tokenScale)
}

// IsZero reports whether the amount is zero.
func (tokens Tokens) IsZero() bool {
	return tokens.value.IsZero()
}

// Equal compares two amounts by value.
func (tokens Tokens) Equal(other Tokens) bool {
	return tokens.value.Equal(other.value)
}

// Add sums two amounts.
func (tokens Tokens) Add(other Tokens) Tokens {
	return Tokens{value: tokens.value.Add(other.value)}
}

// Covers reports whether the amount is at least the requested amount.
func (tokens Tokens) Covers(requested PositiveTokens) bool {
	return tokens.value.GreaterThanOrEqual(requested.value)
}

// Shortfall returns how much is missing to cover requested, or zero.
func (tokens Tokens) Shortfall(requested PositiveTokens) Tokens {
	missing := requested.value.Sub(tokens.value)
	if missing.IsNegative() {
		return Tokens{}
	}
	return Tokens{value: missing}
}

// ExceedsLimit reports whether the amount is above MaxTokens.
func (tokens Tokens) ExceedsLimit() bool {
	return tokens.value.GreaterThan(MaxTokens.value)
}

// Apply returns the amount after delta; ok is false when the result would be negative.
func (tokens Tokens) Apply(delta TokenDelta) (Tokens, bool) {
	result := tokens.value.Add(delta.value)
	if result.IsNegative() {
		return tokens, false
	}
	return Tokens{value: result}, true
}

// NewPositiveTokens validates a strictly positive amount.
func NewPositiveTokens(raw decimal.Decimal) (PositiveTokens, error) {
	if !raw.IsPositive() {
		return PositiveTokens{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if !hasTokenScale(raw) {
		return PositiveTokens{}, fmt.Errorf("%w: at most %d fractional digits", ErrInvalidAmount, tokenScale)
	}
	if raw.GreaterThan(MaxTokens.value) {
		return PositiveTokens{}, fmt.Errorf("%w: must not exceed %s", ErrInvalidAmount, MaxTokens)
	}
	return PositiveTokens{value: raw}, nil
}

// ParsePositiveTokens parses a strictly positive decimal string.
func ParsePositiveTokens(raw string) (PositiveTokens, error) {
	parsed, err := parseDecimal(raw)
	if err != nil {
		return PositiveTokens{}, err
	}
	return NewPositiveTokens(parsed)
}

// PositiveTokensFromCents converts a persisted hundredths value.
func PositiveTokensFromCents(cents int64) (PositiveTokens, error) {
	return NewPositiveTokens(decimal.New(cents, -tokenScale))
}

// Tokens widens the amount.
func (amount PositiveTokens) Tokens() Tokens {
	return Tokens{value: amount.value}
}

// Decimal returns the underlying decimal value.
func (amount PositiveTokens) Decimal() decimal.Decimal {
	return amount.value
}

// Cents returns the amount in hundredths.
func (amount PositiveTokens) Cents() int64 {
	return amount.value.Shift(tokenScale).IntPart()
}

// String renders the amount with exactly two fractional digits.
func (amount PositiveTokens) String() string {
	return amount.value.StringFixed(tokenScale)
}

// Equal compares two amounts by value.
func (amount PositiveTokens) Equal(other PositiveTokens) bool {
	return amount.value.Equal(other.value)
}

func (amount PositiveTokens) isZero() bool {
	return !amount.value.IsPositive()
}

// CreditOf returns a delta that adds amount.
func CreditOf(amount PositiveTokens) TokenDelta {
	return TokenDelta{value: amount.value}
}

// DebitOf returns a delta that removes amount.
func DebitOf(amount PositiveTokens) TokenDelta {
	return TokenDelta{value: amount.value.Neg()}
}

// IsDebit reports whether the delta lowers a balance.
func (delta TokenDelta) IsDebit() bool {
	return delta.value.IsNegative()
}

// Magnitude returns the absolute value of a non-zero delta.
func (delta TokenDelta) Magnitude() (PositiveTokens, bool) {
	if delta.value.IsZero() {
		return PositiveTokens{}, false
	}
	return PositiveTokens{value: delta.value.Abs()}, true
}

// Decimal returns the underlying signed value.
func (delta TokenDelta) Decimal() decimal.Decimal {
	return delta.value
}

// String renders the signed amount with exactly two fractional digits.
func (delta TokenDelta) String() string {
	return delta.value.StringFixed(tokenScale)
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: empty value", ErrInvalidAmount)
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return parsed, nil
}

func hasTokenScale(raw decimal.Decimal) bool {
	return raw.Equal(raw.Truncate(tokenScale))
}
