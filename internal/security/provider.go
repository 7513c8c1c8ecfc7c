package security

// PINVerifier checks the PIN data an ATM captured for a withdrawal. The
// demo implementation (build tag "demo") derives PINs with an HMAC; the HSM
// implementation (build tag "softhsm") verifies against a PVK held in a
// PKCS#11 token. When no verifier is configured the ISO 8583 endpoint skips
// PIN checking.
type PINVerifier interface {
	// VerifyPINBlock checks pinBlockHex (an ISO-0 format PIN block, hex
	// encoded) against the PIN on record for the account number.
	VerifyPINBlock(accountNumber, pinBlockHex string) (bool, error)
}
