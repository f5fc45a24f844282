package kernel

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// badgeClaims is the payload of a kernel badge assertion, modeled on the
// service layer's own service-to-service JWT claims
// (infrastructure/serviceauth).
type badgeClaims struct {
	Badge     uint64 `json:"badge"`
	ThreadCap uint64 `json:"thread_cap"`
	jwt.RegisteredClaims
}

// SignBadgeAssertion mints an RS256 JWT asserting that badge was stamped
// for threadCap. Only the simulated kernel (internal/kernel/fake.go in
// tests, or the real kernel process in production) ever calls this;
// Policy Service code only verifies.
func SignBadgeAssertion(priv *rsa.PrivateKey, badge, threadCap uint64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := badgeClaims{
		Badge:     badge,
		ThreadCap: threadCap,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "kozo-kernel",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(priv)
}

// VerifyBadgeAssertion checks that tokenString is a validly signed
// assertion (by pub) for exactly the given badge and threadCap. A nil
// pub disables this check entirely (used when no kernel signing key is
// configured — the cap_verify syscall result alone is still enforced by
// internal/identity).
func VerifyBadgeAssertion(pub *rsa.PublicKey, tokenString string, badge, threadCap uint64) error {
	if pub == nil {
		return nil
	}
	if tokenString == "" {
		return fmt.Errorf("kernel: badge assertion missing")
	}

	token, err := jwt.ParseWithClaims(tokenString, &badgeClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("kernel: unexpected signing method %v", t.Header["alg"])
		}
		return pub, nil
	})
	if err != nil {
		return fmt.Errorf("kernel: badge assertion invalid: %w", err)
	}
	claims, ok := token.Claims.(*badgeClaims)
	if !ok || !token.Valid {
		return fmt.Errorf("kernel: badge assertion claims malformed")
	}
	if claims.Badge != badge || claims.ThreadCap != threadCap {
		return fmt.Errorf("kernel: badge assertion does not match claimed identity")
	}
	return nil
}
