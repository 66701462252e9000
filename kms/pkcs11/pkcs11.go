// Package pkcs11 provides ES256 signing with EC P-256 keys stored in
// PKCS#11 devices, such as HSM or SoftHSM.
package pkcs11

import (
	"context"
	"crypto"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	xkms "github.com/effective-security/xjwt/kms"
	"github.com/effective-security/xlog"
	p11 "github.com/miekg/pkcs11"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xjwt", "pkcs11")

// ProviderName specifies a provider name
const ProviderName = "PKCS11"

func init() {
	_ = xkms.Register(ProviderName, Loader)
}

// Context is a subset of PKCS#11 functions used by Signer,
// implemented by *pkcs11.Ctx
type Context interface {
	GetSlotList(tokenPresent bool) ([]uint, error)
	GetTokenInfo(slotID uint) (p11.TokenInfo, error)
	OpenSession(slotID uint, flags uint) (p11.SessionHandle, error)
	CloseSession(sh p11.SessionHandle) error
	Login(sh p11.SessionHandle, userType uint, pin string) error
	FindObjectsInit(sh p11.SessionHandle, temp []*p11.Attribute) error
	FindObjects(sh p11.SessionHandle, max int) ([]p11.ObjectHandle, bool, error)
	FindObjectsFinal(sh p11.SessionHandle) error
	GetAttributeValue(sh p11.SessionHandle, o p11.ObjectHandle, a []*p11.Attribute) ([]*p11.Attribute, error)
	SignInit(sh p11.SessionHandle, m []*p11.Mechanism, o p11.ObjectHandle) error
	Sign(sh p11.SessionHandle, message []byte) ([]byte, error)
}

var (
	lockModules sync.Mutex
	modules     = map[string]Context{}
)

// Open returns initialized PKCS#11 module.
// The module is loaded once per process.
var Open = func(module string) (Context, error) {
	lockModules.Lock()
	defer lockModules.Unlock()

	if c, ok := modules[module]; ok {
		return c, nil
	}

	c := p11.New(module)
	if c == nil {
		return nil, errors.Errorf("unable to load PKCS#11 module: %s", module)
	}
	err := c.Initialize()
	if err != nil && !errors.Is(err, p11.Error(p11.CKR_CRYPTOKI_ALREADY_INITIALIZED)) {
		c.Destroy()
		return nil, errors.WithMessagef(err, "unable to initialize PKCS#11 module: %s", module)
	}

	logger.KV(xlog.DEBUG, "module", module)
	modules[module] = c
	return c, nil
}

// Loader returns signer for the configured key.
// Supported attributes are Module, Token, Slot and Pin.
// The key is found by CKA_ID, or by CKA_LABEL.
func Loader(_ context.Context, cfg *xkms.Config) (crypto.Signer, error) {
	attrs := xkms.ParseAttributes(cfg.Attributes)
	module := attrs["Module"]
	if module == "" {
		return nil, errors.New("missing Module attribute")
	}

	c, err := Open(module)
	if err != nil {
		return nil, err
	}

	var slot uint
	if s := attrs["Slot"]; s != "" {
		id, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return nil, errors.Errorf("invalid Slot attribute: %q", s)
		}
		slot = uint(id)
	} else {
		slot, err = FindSlot(c, attrs["Token"])
		if err != nil {
			return nil, err
		}
	}
	return NewSigner(c, slot, attrs["Pin"], cfg.KeyID)
}

// FindSlot returns ID of the slot with the token label
func FindSlot(c Context, token string) (uint, error) {
	if token == "" {
		return 0, errors.New("missing Token or Slot attribute")
	}
	slots, err := c.GetSlotList(true)
	if err != nil {
		return 0, errors.WithMessagef(err, "unable to list slots")
	}
	for _, id := range slots {
		ti, err := c.GetTokenInfo(id)
		if err != nil {
			logger.KV(xlog.DEBUG, "reason", "token_info", "slot", id, "err", err.Error())
			continue
		}
		if strings.TrimSpace(ti.Label) == token {
			return id, nil
		}
	}
	return 0, errors.Errorf("token not found: %s", token)
}
