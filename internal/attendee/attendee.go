// Package attendee identifies who an attendance record belongs to.
package attendee

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind tags which table an attendee id points into.
type Kind string

const (
	KindStudent Kind = "student"
	KindTutor   Kind = "tutor"
)

// Valid reports whether k is a supported attendee kind.
func (k Kind) Valid() bool {
	return k == KindStudent || k == KindTutor
}

// Ref is a student or a tutor; exactly one kind per reference.
type Ref struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// Student builds a student reference.
func Student(id string) Ref { return Ref{Kind: KindStudent, ID: id} }

// Tutor builds a tutor reference.
func Tutor(id string) Ref { return Ref{Kind: KindTutor, ID: id} }

// Validate checks the kind and that the id is a UUID.
func (r Ref) Validate() error {
	_, err := r.Normalize()
	return err
}

// Normalize validates r and returns it with the id in canonical form
// (lowercase, hyphenated). Refs are compared as strings, so every ref taken
// from input goes through here first.
func (r Ref) Normalize() (Ref, error) {
	if !r.Kind.Valid() {
		return Ref{}, fmt.Errorf("unknown attendee kind %q", r.Kind)
	}
	id, err := CanonicalID(r.ID)
	if err != nil {
		return Ref{}, fmt.Errorf("attendee id %q is not a uuid", r.ID)
	}
	return Ref{Kind: r.Kind, ID: id}, nil
}

// CanonicalID parses any UUID form (uppercase, braced, urn:uuid:) and returns
// its canonical string.
func CanonicalID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (r Ref) String() string {
	return string(r.Kind) + ":" + r.ID
}
