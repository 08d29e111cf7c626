package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MicrosPerUnit is the number of stored micro-units in one currency unit.
const MicrosPerUnit = 1_000_000

// Money is an amount in micro-units of the account currency.
// Rates such as 0.0045/min need sub-cent precision, so cents are not enough.
type Money int64

// NewMoney builds an amount from whole units and micro-units.
func NewMoney(units, micros int64) Money {
	return Money(units*MicrosPerUnit + micros)
}

// maxMoneyUnits is the largest whole part that still fits in int64 micro-units
const maxMoneyUnits = (math.MaxInt64 - (MicrosPerUnit - 1)) / MicrosPerUnit

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ParseMoney parses a decimal string such as "12.5", "-0.0045" or "10".
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" && (!hasFrac || frac == "") {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if len(frac) > 6 {
		return 0, fmt.Errorf("amount %q has more than 6 decimal places", s)
	}

	if !allDigits(whole) || !allDigits(frac) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}

	var units int64
	if whole != "" {
		v, err := strconv.ParseInt(whole, 10, 64)
		if err != nil || v > maxMoneyUnits {
			return 0, fmt.Errorf("amount %q is out of range", s)
		}
		units = v
	}

	var micros int64
	if frac != "" {
		micros, _ = strconv.ParseInt(frac+strings.Repeat("0", 6-len(frac)), 10, 64)
	}

	m := NewMoney(units, micros)
	if negative {
		m = -m
	}
	return m, nil
}

// String formats the amount with at least two and at most six decimals.
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	frac := fmt.Sprintf("%06d", v%MicrosPerUnit)
	frac = strings.TrimRight(frac, "0")
	for len(frac) < 2 {
		frac += "0"
	}
	return fmt.Sprintf("%s%d.%s", sign, v/MicrosPerUnit, frac)
}

// MarshalJSON encodes money as a decimal string to keep precision in JavaScript clients.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts both "12.50" and 12.5.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}

	text := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
	}

	v, err := ParseMoney(text)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// PerSecond returns the cost of billsec seconds at m per minute, rounded up to the micro-unit.
func (m Money) PerSecond(billsec int) Money {
	if billsec <= 0 || m == 0 {
		return 0
	}
	total := int64(m) * int64(billsec)
	if total > 0 {
		return Money((total + 59) / 60)
	}
	return Money(total / 60)
}
