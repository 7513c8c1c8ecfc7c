//go:build softhsm

package hsm

import (
	"fmt"

	"github.com/miekg/pkcs11"

	"github.com/bankops/balance-dispense/internal/security"
)

// SoftHSMPINVerifier verifies PINs against a PVK held in a PKCS#11 token:
// the clear PIN recovered from the ATM's PIN block is compared with a
// 3DES-MAC-derived natural PIN. Enabled via the softhsm build tag so the
// default build has no pkcs11 dependency.
type SoftHSMPINVerifier struct {
	libPath  string
	slotID   uint
	pin      string
	pvkLabel string
	p11      *pkcs11.Ctx
	sess     pkcs11.SessionHandle
	pvk      pkcs11.ObjectHandle
}

var _ security.PINVerifier = (*SoftHSMPINVerifier)(nil)

func NewSoftHSMPINVerifier(libPath string, slotID uint, pin, pvkLabel string) *SoftHSMPINVerifier {
	return &SoftHSMPINVerifier{libPath: libPath, slotID: slotID, pin: pin, pvkLabel: pvkLabel}
}

func (p *SoftHSMPINVerifier) Open() error {
	p.p11 = pkcs11.New(p.libPath)
	if p.p11 == nil {
		return fmt.Errorf("load pkcs11 lib failed")
	}
	if err := p.p11.Initialize(); err != nil {
		return err
	}
	sess, err := p.p11.OpenSession(pkcs11.SlotID(p.slotID), pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		_ = p.p11.Finalize()
		return err
	}
	p.sess = sess
	if err := p.p11.Login(p.sess, pkcs11.CKU_USER, p.pin); err != nil {
		_ = p.p11.CloseSession(p.sess)
		_ = p.p11.Finalize()
		return err
	}

	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, p.pvkLabel),
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_SECRET_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_DES3),
	}
	if err := p.p11.FindObjectsInit(p.sess, template); err != nil {
		return err
	}
	objs, _, err := p.p11.FindObjects(p.sess, 1)
	_ = p.p11.FindObjectsFinal(p.sess)
	if err != nil {
		return err
	}
	if len(objs) == 0 {
		return fmt.Errorf("pvk not found by label=%s", p.pvkLabel)
	}
	p.pvk = objs[0]
	return nil
}

func (p *SoftHSMPINVerifier) Close() {
	if p.p11 != nil {
		if p.sess != 0 {
			_ = p.p11.Logout(p.sess)
			_ = p.p11.CloseSession(p.sess)
		}
		_ = p.p11.Finalize()
		p.p11.Destroy()
	}
}

func (p *SoftHSMPINVerifier) VerifyPINBlock(accountNumber, pinBlockHex string) (bool, error) {
	pin, err := security.DecodeISO0(accountNumber, pinBlockHex)
	if err != nil {
		return false, err
	}
	want, err := p.naturalPIN(accountNumber)
	if err != nil {
		return false, err
	}
	return pin == want, nil
}

// naturalPIN runs a 3DES MAC over the account number with the token-held
// PVK and decimalizes the first 4 bytes.
func (p *SoftHSMPINVerifier) naturalPIN(accountNumber string) (string, error) {
	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_DES3_MAC, nil)}
	if err := p.p11.SignInit(p.sess, mech, p.pvk); err != nil {
		return "", fmt.Errorf("sign init: %w", err)
	}
	mac, err := p.p11.Sign(p.sess, []byte(accountNumber))
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	if len(mac) < 4 {
		return "", fmt.Errorf("short mac")
	}
	out := make([]byte, 4)
	for i := 0; i < 4; i++ {
		out[i] = '0' + mac[i]%10
	}
	return string(out), nil
}
