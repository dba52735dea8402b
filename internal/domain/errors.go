package domain

import "errors"

var (
	// ErrClientNotFound signals an unknown or not-owned client application.
	ErrClientNotFound = errors.New("client application not found")
	// ErrCodeNotFound indicates the authorization code is unknown, already
	// redeemed, or expired.
	ErrCodeNotFound = errors.New("authorization code not found")
	// ErrTokenNotFound indicates the token value has no stored record.
	ErrTokenNotFound = errors.New("token not found")
)
