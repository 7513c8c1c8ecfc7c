//go:build demo

package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"os"
)

// Demo verifier for offline development only. PINs are derived from the
// account number with an HMAC instead of being stored, so any environment
// sharing PVK_DEMO agrees on the expected PIN. Never use in production;
// real deployments use the PKCS#11 provider.

type DemoPINVerifier struct {
	key []byte
}

// NewDemoPINVerifier reads the demo PIN verification key from PVK_DEMO.
func NewDemoPINVerifier() (*DemoPINVerifier, error) {
	key := []byte(os.Getenv("PVK_DEMO"))
	if len(key) == 0 {
		return nil, fmt.Errorf("PVK_DEMO not set; provide a demo key in dev (never use in prod)")
	}
	return &DemoPINVerifier{key: key}, nil
}

func (v *DemoPINVerifier) VerifyPINBlock(accountNumber, pinBlockHex string) (bool, error) {
	pin, err := DecodeISO0(accountNumber, pinBlockHex)
	if err != nil {
		return false, err
	}
	want := v.NaturalPIN(accountNumber)
	return subtle.ConstantTimeCompare([]byte(pin), []byte(want)) == 1, nil
}

// NaturalPIN derives the 4-digit demo PIN for an account number.
func (v *DemoPINVerifier) NaturalPIN(accountNumber string) string {
	h := hmac.New(sha256.New, v.key)
	h.Write([]byte("pin-v1|" + accountNumber))
	sum := h.Sum(nil)
	off := sum[len(sum)-1] & 0x0f
	code := (uint32(sum[off])&0x7f)<<24 |
		(uint32(sum[off+1])&0xff)<<16 |
		(uint32(sum[off+2])&0xff)<<8 |
		(uint32(sum[off+3]) & 0xff)
	return fmt.Sprintf("%04d", code%10000)
}
