package service

import "errors"

// Business outcomes.  Their messages are shown to the client verbatim.
var (
	ErrInvalidCredentials  = errors.New("incorrect username or password")
	ErrAccountDisabled     = errors.New("account is disabled")
	ErrInvalidRequest      = errors.New("refresh token must not be empty")
	ErrRefreshTokenInvalid = errors.New("refresh token is invalid or expired, please log in again")
	ErrUserUnavailable     = errors.New("user does not exist or is disabled")
	ErrUsernameTaken       = errors.New("username already exists")
	ErrOldPasswordMismatch = errors.New("old password is incorrect")
)

// Infrastructure failures.  They are logged with their cause and shown to
// the client only as a generic retry message.
var (
	ErrSessionPersistFailure = errors.New("session could not be persisted")
	ErrStoreTimeout          = errors.New("credential store timed out")
	ErrStoreUnavailable      = errors.New("credential store unavailable")
)

var business = []error{
	ErrInvalidCredentials, ErrAccountDisabled, ErrInvalidRequest,
	ErrRefreshTokenInvalid, ErrUserUnavailable, ErrUsernameTaken,
	ErrOldPasswordMismatch,
}

// PublicMessage returns the client-facing message of a business error found
// anywhere in err's chain.
func PublicMessage(err error) (string, bool) {
	for _, target := range business {
		if errors.Is(err, target) {
			return target.Error(), true
		}
	}
	return "", false
}

// IsBusiness reports whether err is an expected outcome whose message may be
// returned to the caller.
func IsBusiness(err error) bool {
	_, ok := PublicMessage(err)
	return ok
}
