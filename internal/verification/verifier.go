// Package verification confirms attendance records, either from a scanned QR
// token or from an admin's manual action, and appends a verification entry.
package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/attendee"
)

// Method is how a record was verified.
type Method string

const (
	MethodQRCode Method = "qr_code"
	MethodManual Method = "manual"
)

const (
	// SystemActor attributes manual entries when no admin identity is known.
	SystemActor = "system"
	// DefaultManualNote is stored when an admin gives no notes.
	DefaultManualNote = "Manual verification by admin"
)

const (
	metadataType  = "type"
	metadataTutor = "tutor"
)

// Entry is one append-only verification of a record.
type Entry struct {
	ID         string            `json:"id"`
	RecordID   string            `json:"record_id"`
	Method     Method            `json:"method"`
	VerifiedBy string            `json:"verified_by"`
	VerifiedAt time.Time         `json:"verified_at"`
	Notes      string            `json:"notes"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Result is the outcome of a verification attempt.
type Result struct {
	Success bool   `json:"success"`
	Method  Method `json:"method"`
	Message string `json:"message,omitempty"`
	Entry   *Entry `json:"entry,omitempty"`
}

// EntryWriter appends entries; the attendance store passes its open transaction.
type EntryWriter interface {
	InsertEntry(ctx context.Context, e Entry) (Entry, error)
}

// Target is the record being verified and the attendee it belongs to.
type Target struct {
	RecordID string
	Attendee attendee.Ref
}

// Verifier checks proofs against records.
type Verifier struct {
	tokens *Tokens
	now    func() time.Time
}

// NewVerifier creates a verifier using tokens for QR proofs.
func NewVerifier(tokens *Tokens) *Verifier {
	return &Verifier{tokens: tokens, now: time.Now}
}

// WithClock overrides the time source.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	if v.tokens != nil {
		v.tokens.now = now
	}
	return v
}

// VerifyByCode validates a QR token for a student record. A rejected token is
// reported in the result, not as an error; errors are storage failures.
func (v *Verifier) VerifyByCode(ctx context.Context, w EntryWriter, target Target, token, note string) (Result, error) {
	return v.verifyCode(ctx, w, target, token, note, nil)
}

// VerifyTutorByCode is VerifyByCode for tutor records; the entry is tagged as tutor.
func (v *Verifier) VerifyTutorByCode(ctx context.Context, w EntryWriter, target Target, token, note string) (Result, error) {
	return v.verifyCode(ctx, w, target, token, note, TutorMetadata())
}

func (v *Verifier) verifyCode(ctx context.Context, w EntryWriter, target Target, token, note string, metadata map[string]string) (Result, error) {
	ref, err := v.tokens.Parse(token)
	if err != nil {
		return reject(err), nil
	}
	if want, err := target.Attendee.Normalize(); err != nil || ref != want {
		return reject(apperr.InvalidQRToken.WithMessage("QR token belongs to a different attendee")), nil
	}

	entry, err := w.InsertEntry(ctx, Entry{
		RecordID:   target.RecordID,
		Method:     MethodQRCode,
		VerifiedBy: "qr:" + ref.String(),
		VerifiedAt: v.now(),
		Notes:      note,
		Metadata:   metadata,
	})
	if err != nil {
		return Result{}, fmt.Errorf("insert qr verification: %w", err)
	}
	return Result{Success: true, Method: MethodQRCode, Message: "Verified by QR code", Entry: &entry}, nil
}

// RecordManualEntry appends a manual verification by actor.
func (v *Verifier) RecordManualEntry(ctx context.Context, w EntryWriter, recordID, actor, notes string, metadata map[string]string) (Result, error) {
	if actor == "" {
		actor = SystemActor
	}
	if notes == "" {
		notes = DefaultManualNote
	}
	entry, err := w.InsertEntry(ctx, Entry{
		RecordID:   recordID,
		Method:     MethodManual,
		VerifiedBy: actor,
		VerifiedAt: v.now(),
		Notes:      notes,
		Metadata:   metadata,
	})
	if err != nil {
		return Result{}, fmt.Errorf("insert manual verification: %w", err)
	}
	return Result{Success: true, Method: MethodManual, Message: "Verified manually", Entry: &entry}, nil
}

// TutorMetadata marks an entry as tutor attendance.
func TutorMetadata() map[string]string {
	return map[string]string{metadataType: metadataTutor}
}

func reject(err error) Result {
	msg := apperr.InvalidQRToken.Message
	var def apperr.Definition
	if errors.As(err, &def) {
		msg = def.Message
	}
	return Result{Success: false, Method: MethodQRCode, Message: msg}
}
