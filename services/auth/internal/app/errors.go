package app

import "errors"

var (
	ErrProviderAndTokenRequired = errors.New("provider and identityToken are required")
	ErrUnknownProvider          = errors.New("unknown identity provider")
	ErrInvalidIdentityToken     = errors.New("invalid identity token")
)
