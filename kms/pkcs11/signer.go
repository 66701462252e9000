package pkcs11

import (
	"crypto"
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjwt/es256"
	"github.com/effective-security/xjwt/metricskey"
	"github.com/effective-security/xlog"
	p11 "github.com/miekg/pkcs11"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// DER encoded OID of P-256 curve, 1.2.840.10045.3.1.7
var oidP256 = []byte{0x06, 0x08, 0x2a, 0x86, 0x48, 0xce, 0x3d, 0x03, 0x01, 0x07}

// Signer implements crypto.Signer interface
type Signer struct {
	keyID  string
	pubKey *ecdsa.PublicKey
	ctx    Context
	priv   p11.ObjectHandle

	// PKCS#11 session must not be used concurrently
	lock    sync.Mutex
	session p11.SessionHandle
}

// NewSigner creates new signer for EC P-256 key on the slot.
// The session is kept open until Close is called.
func NewSigner(c Context, slot uint, pin, keyID string) (*Signer, error) {
	defer metricskey.PerfCryptoOperation.MeasureSince(time.Now(), ProviderName, "getkey")

	session, err := c.OpenSession(slot, p11.CKF_SERIAL_SESSION)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to open session on slot %d", slot)
	}
	if pin != "" {
		err = c.Login(session, p11.CKU_USER, pin)
		if err != nil && !errors.Is(err, p11.Error(p11.CKR_USER_ALREADY_LOGGED_IN)) {
			_ = c.CloseSession(session)
			return nil, errors.WithMessagef(err, "unable to login to slot %d", slot)
		}
	}

	s, err := newSigner(c, session, keyID)
	if err != nil {
		_ = c.CloseSession(session)
		return nil, err
	}
	logger.KV(xlog.DEBUG, "slot", slot, "id", keyID)
	return s, nil
}

func newSigner(c Context, session p11.SessionHandle, keyID string) (*Signer, error) {
	priv, err := findKey(c, session, p11.CKO_PRIVATE_KEY, keyID)
	if err != nil {
		return nil, err
	}
	attrs, err := c.GetAttributeValue(session, priv, []*p11.Attribute{
		p11.NewAttribute(p11.CKA_KEY_TYPE, nil),
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to get key type")
	}
	if kt := bytesToUlong(attrs[0].Value); kt != p11.CKK_EC {
		return nil, errors.Errorf("unsupported key type: %d", kt)
	}

	pubHandle, err := findKey(c, session, p11.CKO_PUBLIC_KEY, keyID)
	if err != nil {
		return nil, err
	}
	attrs, err = c.GetAttributeValue(session, pubHandle, []*p11.Attribute{
		p11.NewAttribute(p11.CKA_EC_PARAMS, nil),
		p11.NewAttribute(p11.CKA_EC_POINT, nil),
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to get public key")
	}
	pub, err := parsePublicKey(attrs[0].Value, attrs[1].Value)
	if err != nil {
		return nil, err
	}

	return &Signer{
		keyID:   keyID,
		pubKey:  pub.ECDSA(),
		ctx:     c,
		priv:    priv,
		session: session,
	}, nil
}

// findKey returns the object of the class with CKA_ID, or CKA_LABEL equal to keyID
func findKey(c Context, session p11.SessionHandle, class uint, keyID string) (p11.ObjectHandle, error) {
	for _, attr := range []uint{p11.CKA_ID, p11.CKA_LABEL} {
		template := []*p11.Attribute{
			p11.NewAttribute(p11.CKA_CLASS, class),
			p11.NewAttribute(attr, []byte(keyID)),
		}
		h, err := findObject(c, session, template)
		if err != nil {
			return 0, err
		}
		if h != 0 {
			return h, nil
		}
	}
	return 0, errors.Errorf("key not found: %s", keyID)
}

func findObject(c Context, session p11.SessionHandle, template []*p11.Attribute) (p11.ObjectHandle, error) {
	if err := c.FindObjectsInit(session, template); err != nil {
		return 0, errors.WithMessagef(err, "unable to find objects")
	}
	defer func() {
		_ = c.FindObjectsFinal(session)
	}()

	handles, _, err := c.FindObjects(session, 1)
	if err != nil {
		return 0, errors.WithMessagef(err, "unable to find objects")
	}
	if len(handles) == 0 {
		return 0, nil
	}
	return handles[0], nil
}

// parsePublicKey returns P-256 key from CKA_EC_PARAMS and CKA_EC_POINT.
// CKA_EC_POINT is DER encoded OCTET STRING, some modules return the raw point.
func parsePublicKey(params, point []byte) (*es256.PublicKey, error) {
	if string(params) != string(oidP256) {
		return nil, errors.Errorf("unsupported curve: %x", params)
	}
	var raw cryptobyte.String
	input := cryptobyte.String(point)
	if input.ReadASN1(&raw, asn1.OCTET_STRING) && input.Empty() {
		point = raw
	}
	return es256.ParsePublicKey(point)
}

func bytesToUlong(b []byte) uint {
	switch len(b) {
	case 8:
		return uint(binary.NativeEndian.Uint64(b))
	case 4:
		return uint(binary.NativeEndian.Uint32(b))
	}
	return ^uint(0)
}

// KeyID returns key id of the signer
func (s *Signer) KeyID() string {
	return s.keyID
}

// Public returns public key for the signer
func (s *Signer) Public() crypto.PublicKey {
	return s.pubKey
}

func (s *Signer) String() string {
	return fmt.Sprintf("provider=%s, id=%s", ProviderName, s.keyID)
}

// Sign implements signing operation.
// The digest must be SHA-256, the signature is ASN.1 encoded.
func (s *Signer) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	defer metricskey.PerfCryptoOperation.MeasureSince(time.Now(), ProviderName, "sign")

	if opts == nil || opts.HashFunc() != crypto.SHA256 {
		return nil, errors.Errorf("unsupported hash: %v", opts)
	}
	if len(digest) != crypto.SHA256.Size() {
		return nil, errors.Errorf("invalid digest size: %d", len(digest))
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	err := s.ctx.SignInit(s.session, []*p11.Mechanism{p11.NewMechanism(p11.CKM_ECDSA, nil)}, s.priv)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to sign")
	}
	// CKM_ECDSA returns r||s
	raw, err := s.ctx.Sign(s.session, digest)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to sign")
	}
	sig, err := es256.SignatureFromBytes(raw)
	if err != nil {
		return nil, err
	}
	return sig.ASN1(), nil
}

// Close closes the session
func (s *Signer) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return errors.WithStack(s.ctx.CloseSession(s.session))
}
