package jwt_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjwt/canonical"
	"github.com/effective-security/xjwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type extraClaims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

func TestNewClaims(t *testing.T) {
	c, err := jwt.NewClaims(
		map[string]any{"sub": "1", "n": 1},
		extraClaims{Email: "a@b.c"},
		canonical.NewObject().Set("n", canonical.Int(2)),
		nil,
	)
	require.NoError(t, err)
	b, err := canonical.Serialize(c)
	require.NoError(t, err)
	assert.Equal(t, `{"n":2,"sub":"1","email":"a@b.c"}`, string(b))

	_, err = jwt.NewClaims([]string{"a"})
	assert.True(t, errors.Is(err, jwt.ErrSerialization))
	assert.EqualError(t, err, "claims must be an object, got array: serialization error")

	_, err = jwt.NewClaims(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestCreateClaims(t *testing.T) {
	now := time.Unix(1516239022, 0)
	jwt.TimeNowFn = func() time.Time { return now }
	defer func() { jwt.TimeNowFn = time.Now }()

	c, err := jwt.CreateClaims("id1", "sub1", "iss1", []string{"aud1"}, time.Hour, extraClaims{Roles: []string{"admin"}})
	require.NoError(t, err)
	b, err := canonical.Serialize(c)
	require.NoError(t, err)
	assert.Equal(t, `{"jti":"id1","sub":"sub1","iss":"iss1","aud":"aud1","iat":1516239022,"exp":1516242622,"roles":["admin"]}`, string(b))
	assert.Equal(t, now.Add(time.Hour).UTC(), c.GetTime("exp").UTC())

	c, err = jwt.CreateClaims("", "sub1", "", []string{"a", "b"}, 0, nil)
	require.NoError(t, err)
	b, err = canonical.Serialize(c)
	require.NoError(t, err)
	assert.Equal(t, `{"sub":"sub1","aud":["a","b"],"iat":1516239022}`, string(b))
	assert.Equal(t, []string{"a", "b"}, c.GetStrings("aud"))
}

func TestEncodeBatch(t *testing.T) {
	ctx := context.Background()
	key := newKey(t)

	var list []*canonical.Object
	for i := 0; i < 50; i++ {
		list = append(list, canonical.NewObject().Set("n", canonical.Int(int64(i))))
	}

	tokens, err := jwt.EncodeBatch(ctx, list, key, 4)
	require.NoError(t, err)
	require.Len(t, tokens, len(list))
	for i, token := range tokens {
		expected, err := jwt.Encode(list[i], key, jwt.ES256)
		require.NoError(t, err)
		assert.Equal(t, expected, token)

		c, err := jwt.DecodeAndVerify(token, key.Public())
		require.NoError(t, err)
		assert.Equal(t, int64(i), c.GetInt("n"))
	}

	tokens, err = jwt.EncodeBatch(ctx, nil, key, 0)
	require.NoError(t, err)
	assert.Empty(t, tokens)

	_, err = jwt.EncodeBatch(ctx, []*canonical.Object{list[0], nil}, key, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, jwt.ErrSerialization))
	assert.Contains(t, err.Error(), "claims[1]")

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = jwt.EncodeBatch(cctx, list, key, 2)
	assert.True(t, errors.Is(err, context.Canceled))
}
