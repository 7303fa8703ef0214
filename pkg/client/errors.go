package client

import "fmt"

// Authorization failure codes. These are terminal for the attempted call:
// retrying without new input cannot succeed.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeAccountLocked      = "account_locked"
	CodeInvalidToken       = "invalid_or_expired_token"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
)

// AuthError is a definitive refusal from the session authority. It is never
// retried automatically.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error %s: %s", e.Code, e.Message)
}

// NetworkError wraps a transport-level failure of a one-shot call. Unlike
// AuthError it is retryable.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is worth retrying without user input.
func IsRetryable(err error) bool {
	switch err.(type) {
	case *NetworkError:
		return true
	case *AuthError:
		return false
	}
	return false
}
