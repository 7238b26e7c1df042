package app

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"plantatlas/internal/usertoken"
)

// IdentityVerifier validates an external identity token and returns the
// provider-scoped subject it asserts.
type IdentityVerifier interface {
	Verify(provider, token string) (subject string, err error)
}

// jwksIdentityVerifier verifies provider tokens against each provider's
// published JWKS. The "dev" provider, when configured, accepts a shared
// access code checked against a bcrypt hash instead; it exists for local
// and staging builds where no real provider is reachable.
type jwksIdentityVerifier struct {
	verifiers         map[string]*usertoken.Verifier
	devAccessCodeHash string
}

// NewIdentityVerifier builds a verifier for the given provider JWKS URLs.
// issuers maps a provider name to the issuer claim its tokens carry; a
// provider absent from issuers is expected to use its own name. audience
// is the client id the provider tokens must be issued for.
func NewIdentityVerifier(providers, issuers map[string]string, audience, devAccessCodeHash string) (IdentityVerifier, error) {
	verifiers := make(map[string]*usertoken.Verifier, len(providers))
	for name, jwksURL := range providers {
		issuer := issuers[name]
		if issuer == "" {
			issuer = name
		}
		v, err := usertoken.NewVerifier(usertoken.Config{
			JWKSURL:  jwksURL,
			Issuer:   issuer,
			Audience: audience,
		})
		if err != nil {
			return nil, fmt.Errorf("init %s identity verifier: %w", name, err)
		}
		verifiers[name] = v
	}
	return &jwksIdentityVerifier{
		verifiers:         verifiers,
		devAccessCodeHash: strings.TrimSpace(devAccessCodeHash),
	}, nil
}

func (j *jwksIdentityVerifier) Verify(provider, token string) (string, error) {
	if provider == "dev" && j.devAccessCodeHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(j.devAccessCodeHash), []byte(token)) != nil {
			return "", ErrInvalidIdentityToken
		}
		return "dev-user", nil
	}
	v, ok := j.verifiers[provider]
	if !ok {
		return "", ErrUnknownProvider
	}
	subject, err := v.VerifySubject(token)
	if err != nil {
		return "", ErrInvalidIdentityToken
	}
	return subject, nil
}
