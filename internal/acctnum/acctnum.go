// Package acctnum validates account numbers arriving over the ATM network
// and generates retrieval reference numbers.
package acctnum

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Validate checks length, digits and the trailing Luhn check digit of an
// account number. Numbers are 8 to 19 digits.
func Validate(number string) error {
	if number == "" {
		return fmt.Errorf("account number is required")
	}
	if !IsDigits(number) {
		return fmt.Errorf("account number must contain digits only")
	}
	if l := len(number); l < 8 || l > 19 {
		return fmt.Errorf("account number length must be 8..19 digits (got %d)", l)
	}

	body := number[:len(number)-1]
	if number[len(number)-1] != CheckDigit(body) {
		return fmt.Errorf("invalid check digit")
	}
	return nil
}

// CheckDigit computes the Luhn check digit for body.
func CheckDigit(body string) byte {
	sum, dbl := 0, true
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		if dbl {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		dbl = !dbl
	}
	return '0' + byte((10-(sum%10))%10)
}

// RandomDigits generates count uniformly distributed decimal digits using
// rejection sampling: only bytes below 250 are accepted before taking the
// value mod 10, so no digit is favored.
func RandomDigits(count int) (string, error) {
	if count <= 0 {
		return "", nil
	}
	const threshold = 250 // 256 - (256 % 10)
	var sb strings.Builder
	sb.Grow(count)
	buf := make([]byte, 64)
	for sb.Len() < count {
		n, err := rand.Read(buf)
		if err != nil {
			return "", err
		}
		for i := 0; i < n && sb.Len() < count; i++ {
			b := buf[i]
			if b < threshold {
				sb.WriteByte('0' + (b % 10))
			}
		}
	}
	return sb.String(), nil
}

func IsDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
