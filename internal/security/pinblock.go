package security

import (
	"encoding/hex"
	"fmt"

	"github.com/bankops/balance-dispense/internal/acctnum"
)

// ISO 9564 format-0 PIN block codec. The ATM XORs a PIN field with an
// account field derived from the account number; both verifier backends
// need the clear PIN recovered before checking it.

// EncodeISO0 builds a format-0 PIN block. Used by tests and demo tooling,
// production blocks come from the ATM's encrypting PIN pad.
func EncodeISO0(accountNumber, pin string) (string, error) {
	if l := len(pin); l < 4 || l > 12 || !acctnum.IsDigits(pin) {
		return "", fmt.Errorf("pin must be 4..12 digits")
	}
	pinField := fmt.Sprintf("0%X%s", len(pin), pin)
	for len(pinField) < 16 {
		pinField += "F"
	}
	acctField, err := iso0AccountField(accountNumber)
	if err != nil {
		return "", err
	}
	return xorHex(pinField, acctField)
}

// DecodeISO0 recovers the clear PIN from a format-0 PIN block.
func DecodeISO0(accountNumber, pinBlockHex string) (string, error) {
	if len(pinBlockHex) != 16 {
		return "", fmt.Errorf("pin block must be 16 hex chars (got %d)", len(pinBlockHex))
	}
	acctField, err := iso0AccountField(accountNumber)
	if err != nil {
		return "", err
	}
	pinField, err := xorHex(pinBlockHex, acctField)
	if err != nil {
		return "", err
	}
	if pinField[0] != '0' {
		return "", fmt.Errorf("not an ISO-0 pin block")
	}
	length := hexNibble(pinField[1])
	if length < 4 || length > 12 || 2+length > len(pinField) {
		return "", fmt.Errorf("invalid pin length nibble")
	}
	pin := pinField[2 : 2+length]
	if !acctnum.IsDigits(pin) {
		return "", fmt.Errorf("invalid pin digits")
	}
	return pin, nil
}

// iso0AccountField is "0000" plus the rightmost 12 digits of the account
// number excluding its check digit, left-padded with zeros.
func iso0AccountField(accountNumber string) (string, error) {
	if !acctnum.IsDigits(accountNumber) || len(accountNumber) < 2 {
		return "", fmt.Errorf("invalid account number")
	}
	body := accountNumber[:len(accountNumber)-1]
	if len(body) > 12 {
		body = body[len(body)-12:]
	}
	for len(body) < 12 {
		body = "0" + body
	}
	return "0000" + body, nil
}

func hexNibble(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}

func xorHex(a, b string) (string, error) {
	ab, err := hex.DecodeString(a)
	if err != nil {
		return "", fmt.Errorf("decode hex: %w", err)
	}
	bb, err := hex.DecodeString(b)
	if err != nil {
		return "", fmt.Errorf("decode hex: %w", err)
	}
	if len(ab) != len(bb) {
		return "", fmt.Errorf("length mismatch")
	}
	out := make([]byte, len(ab))
	for i := range ab {
		out[i] = ab[i] ^ bb[i]
	}
	return fmt.Sprintf("%X", out), nil
}
