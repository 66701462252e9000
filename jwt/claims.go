package jwt

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjwt/canonical"
)

// NewClaims returns claims merged from the values in order,
// later values replace members of earlier ones.
// Values can be *canonical.Object, maps or structs with json tags.
func NewClaims(vals ...any) (*canonical.Object, error) {
	c := canonical.NewObject()
	for _, val := range vals {
		if err := AddClaims(c, val); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// AddClaims merges members of the value into the claims
func AddClaims(c *canonical.Object, val any) error {
	if val == nil {
		return nil
	}
	v, err := canonical.FromGo(val)
	if err != nil {
		return err
	}
	o, ok := v.(*canonical.Object)
	if !ok {
		return errors.Wrapf(ErrSerialization, "claims must be an object, got %s", v.Kind())
	}
	o.Range(func(key string, v canonical.Value) bool {
		c.Set(key, v)
		return true
	})
	return nil
}

// CreateClaims returns claims with registered "jti", "sub", "iss", "aud",
// "iat" and "exp" members, followed by the extra claims.
// Empty values are omitted.
func CreateClaims(id, subject, issuer string, audience []string, expiry time.Duration, extra any) (*canonical.Object, error) {
	c := canonical.NewObject()
	setString := func(k, v string) {
		if v != "" {
			c.Set(k, canonical.String(v))
		}
	}
	setString("jti", id)
	setString("sub", subject)
	setString("iss", issuer)
	switch len(audience) {
	case 0:
	case 1:
		c.Set("aud", canonical.String(audience[0]))
	default:
		aud := make(canonical.Array, len(audience))
		for i, a := range audience {
			aud[i] = canonical.String(a)
		}
		c.Set("aud", aud)
	}

	now := TimeNowFn().Unix()
	c.Set("iat", canonical.Int(now))
	if expiry > 0 {
		c.Set("exp", canonical.Int(now+int64(expiry/time.Second)))
	}

	if err := AddClaims(c, extra); err != nil {
		return nil, err
	}
	return c, nil
}

// TimeNowFn to override in unit tests
var TimeNowFn = time.Now
