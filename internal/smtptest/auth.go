package smtptest

import (
	"encoding/base64"
	"errors"
	"strings"
)

var errAuthFailed = errors.New("authentication failed")

// credentials checks SMTP AUTH responses against one configured account.
type credentials struct {
	username string
	password string
}

func (c credentials) enabled() bool {
	return c.username != "" || c.password != ""
}

// verifyPlain checks an AUTH PLAIN response: base64(authzid \0 user \0 pass).
// The authorization identity is ignored.
func (c credentials) verifyPlain(encoded string) error {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return errors.New("invalid base64 encoding")
	}

	parts := strings.SplitN(string(decoded), "\x00", 3)
	if len(parts) != 3 {
		return errors.New("invalid AUTH PLAIN format")
	}

	return c.check(parts[1], parts[2])
}

// verifyLogin checks the base64 username and password collected by the
// AUTH LOGIN challenge-response exchange.
func (c credentials) verifyLogin(encodedUser, encodedPass string) error {
	user, err := base64.StdEncoding.DecodeString(encodedUser)
	if err != nil {
		return errors.New("invalid base64 username")
	}
	pass, err := base64.StdEncoding.DecodeString(encodedPass)
	if err != nil {
		return errors.New("invalid base64 password")
	}

	return c.check(string(user), string(pass))
}

func (c credentials) check(user, pass string) error {
	if user != c.username || pass != c.password {
		return errAuthFailed
	}
	return nil
}
