// Package person defines the validated address values that take part in a
// message: the sender, reply-to contacts and recipients.
package person

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidEmail is returned when an address fails syntactic validation.
var ErrInvalidEmail = errors.New("invalid email address")

var validate = validator.New()

// Person is an immutable email address with an optional display name.
type Person struct {
	email string
	name  string
}

// New validates email and returns a Person. An empty or blank name is
// treated as absent.
func New(email, name string) (Person, error) {
	email = strings.TrimSpace(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return Person{}, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}

	return Person{
		email: email,
		name:  strings.TrimSpace(name),
	}, nil
}

// Email returns the address.
func (p Person) Email() string {
	return p.email
}

// Name returns the display name, or "" when absent.
func (p Person) Name() string {
	return p.name
}

// HasName reports whether a display name was given.
func (p Person) HasName() bool {
	return p.name != ""
}

// IsZero reports whether p was not built by New.
func (p Person) IsZero() bool {
	return p.email == ""
}

// Domain returns the part of the address after the last "@".
func (p Person) Domain() string {
	i := strings.LastIndex(p.email, "@")
	if i < 0 {
		return ""
	}
	return p.email[i+1:]
}

// String formats p as "Name <email>", or just the address when no name is set.
func (p Person) String() string {
	if p.name == "" {
		return p.email
	}
	return fmt.Sprintf("%s <%s>", p.name, p.email)
}

// Address formats p for use in a mail header, RFC 2047 encoding the name
// when it is not plain ASCII.
func (p Person) Address() string {
	return (&mail.Address{Name: p.name, Address: p.email}).String()
}
