package auth

import (
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
)

func buildToken(t *testing.T, mutate func(b *jwt.Builder) *jwt.Builder) jwt.Token {
	t.Helper()
	now := time.Now()
	b := jwt.NewBuilder().
		Issuer("greenmart").
		Audience([]string{"greenmart-web"}).
		Subject("shopper-1").
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(time.Minute))
	if mutate != nil {
		b = mutate(b)
	}
	tok, err := b.Build()
	require.NoError(t, err)
	return tok
}

func TestTokenValidator(t *testing.T) {
	validator := TokenValidator{Issuer: "greenmart", Audience: "greenmart-web", ClockSkew: time.Second, Algorithm: jwa.HS256}
	now := time.Now()

	cases := []struct {
		name    string
		mutate  func(b *jwt.Builder) *jwt.Builder
		alg     jwa.SignatureAlgorithm
		wantErr bool
	}{
		{name: "valid", alg: jwa.HS256},
		{name: "issuer mismatch", alg: jwa.HS256, wantErr: true, mutate: func(b *jwt.Builder) *jwt.Builder { return b.Issuer("other") }},
		{name: "audience mismatch", alg: jwa.HS256, wantErr: true, mutate: func(b *jwt.Builder) *jwt.Builder { return b.Audience([]string{"admin-web"}) }},
		{name: "expired", alg: jwa.HS256, wantErr: true, mutate: func(b *jwt.Builder) *jwt.Builder {
			return b.IssuedAt(now.Add(-2 * time.Hour)).NotBefore(now.Add(-2 * time.Hour)).Expiration(now.Add(-time.Minute))
		}},
		{name: "not yet valid", alg: jwa.HS256, wantErr: true, mutate: func(b *jwt.Builder) *jwt.Builder {
			return b.NotBefore(now.Add(5 * time.Minute)).Expiration(now.Add(10 * time.Minute))
		}},
		{name: "missing subject", alg: jwa.HS256, wantErr: true, mutate: func(b *jwt.Builder) *jwt.Builder { return b.Subject("") }},
		{name: "algorithm mismatch", alg: jwa.RS256, wantErr: true},
		{name: "algorithm missing", alg: "", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.Validate(buildToken(t, tc.mutate), tc.alg, now)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTokenValidatorNilToken(t *testing.T) {
	require.Error(t, TokenValidator{}.Validate(nil, jwa.HS256, time.Now()))
}
