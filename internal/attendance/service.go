package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"backoffice/internal/apperr"
	"backoffice/internal/attendee"
	"backoffice/internal/store"
	"backoffice/internal/verification"
)

// DefaultQRNote is attached to QR verifications without a caller note.
const DefaultQRNote = "Attendance recorded via QR code"

// errDuplicateFound aborts a transaction that found an existing record.
var errDuplicateFound = errors.New("duplicate found")

// Service records attendance and reports on it.
type Service struct {
	store    Store
	verifier *verification.Verifier
	cache    StatsCache
	loc      *time.Location
	now      func() time.Time
	log      *zap.Logger
}

// NewService creates a service. Calendar days are evaluated in loc.
func NewService(store Store, verifier *verification.Verifier, loc *time.Location, log *zap.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, verifier: verifier, loc: loc, now: time.Now, log: log}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithStatsCache enables caching of GenerateStats results.
func (s *Service) WithStatsCache(c StatsCache) *Service {
	s.cache = c
	return s
}

type recordMode int

const (
	modeQR recordMode = iota
	modeManual
)

type recordRequest struct {
	mode       recordMode
	attendee   attendee.Ref
	activityID string
	status     *Status
	arrival    *time.Time
	token      string
	note       string
	actor      string
}

// RecordByQR records attendance and verifies it with a QR token. A token that
// fails verification leaves the record pending; the rejection is reported in
// Result.Verification.
func (s *Service) RecordByQR(ctx context.Context, in QRInput) (*Result, error) {
	ref, activityID, err := validateTarget(in.Attendee, in.ActivityID, in.ManualStatus)
	if err != nil {
		return failed(err), err
	}
	note := in.Note
	if note == "" {
		note = DefaultQRNote
	}
	return s.record(ctx, recordRequest{
		mode:       modeQR,
		attendee:   ref,
		activityID: activityID,
		status:     in.ManualStatus,
		arrival:    in.ArrivalTime,
		token:      in.Token,
		note:       note,
	})
}

// RecordManual records attendance entered by an admin; the record is verified
// on creation.
func (s *Service) RecordManual(ctx context.Context, in ManualInput) (*Result, error) {
	ref, activityID, err := validateTarget(in.Attendee, in.ActivityID, in.Status)
	if err != nil {
		return failed(err), err
	}
	return s.record(ctx, recordRequest{
		mode:       modeManual,
		attendee:   ref,
		activityID: activityID,
		status:     in.Status,
		arrival:    in.ArrivalTime,
		note:       in.Notes,
		actor:      in.Actor,
	})
}

// RecordTutorManual is RecordManual restricted to tutor attendees.
func (s *Service) RecordTutorManual(ctx context.Context, in ManualInput) (*Result, error) {
	if in.Attendee.Kind != attendee.KindTutor {
		err := apperr.InvalidRequest.WithMessage("attendee must be a tutor")
		return failed(err), err
	}
	return s.RecordManual(ctx, in)
}

// validateTarget checks the input and returns the attendee and activity ids
// in canonical form.
func validateTarget(ref attendee.Ref, activityID string, status *Status) (attendee.Ref, string, error) {
	ref, err := ref.Normalize()
	if err != nil {
		return attendee.Ref{}, "", apperr.InvalidRequest.WithMessage(err.Error())
	}
	activityID, err = attendee.CanonicalID(activityID)
	if err != nil {
		return attendee.Ref{}, "", apperr.InvalidRequest.WithMessage("activity_id must be a uuid")
	}
	if status != nil && !status.Valid() {
		return attendee.Ref{}, "", apperr.InvalidRequest.WithMessage(fmt.Sprintf("unknown status %q", *status))
	}
	return ref, activityID, nil
}

func (s *Service) record(ctx context.Context, req recordRequest) (*Result, error) {
	var res *Result
	err := s.store.WithTx(ctx, func(tx Tx) error {
		existing, err := hasExisting(ctx, tx, req.attendee, req.activityID)
		if err != nil {
			return fmt.Errorf("duplicate check: %w", err)
		}
		if existing != nil {
			res = duplicate(existing)
			return errDuplicateFound
		}

		ok, err := tx.AttendeeExists(ctx, req.attendee)
		if err != nil {
			return fmt.Errorf("load attendee: %w", err)
		}
		if !ok {
			return apperr.AttendeeNotFound
		}
		activity, err := tx.GetActivity(ctx, req.activityID)
		if err != nil {
			return fmt.Errorf("load activity: %w", err)
		}
		if activity == nil {
			return apperr.ActivityNotFound
		}
		if req.attendee.Kind == attendee.KindTutor && !activity.AssignedTo(req.attendee.ID) {
			return apperr.TutorNotAssigned
		}

		subject, err := tx.EnsureSubject(ctx, req.attendee)
		if err != nil {
			return err
		}

		now := s.now()
		arrival := now
		if req.arrival != nil {
			arrival = *req.arrival
		}
		status, err := DetermineStatus(*activity, arrival, req.status, now, s.loc)
		if err != nil {
			return err
		}

		rec := Record{
			SubjectID:          subject.ID,
			ActivityID:         activity.ID,
			Attendee:           req.attendee,
			Status:             status,
			ArrivedAt:          arrival,
			VerificationStatus: VerificationPending,
			ActivityTitle:      activity.Title,
			ActivityDate:       &activity.Date,
		}
		if req.mode == modeManual {
			rec.Verified = true
			rec.VerificationStatus = VerificationManual
		}
		if rec, err = tx.InsertRecord(ctx, rec); err != nil {
			return err
		}

		var vr verification.Result
		switch req.mode {
		case modeManual:
			var meta map[string]string
			if req.attendee.Kind == attendee.KindTutor {
				meta = verification.TutorMetadata()
			}
			if vr, err = s.verifier.RecordManualEntry(ctx, tx, rec.ID, req.actor, req.note, meta); err != nil {
				return err
			}
		default:
			target := verification.Target{RecordID: rec.ID, Attendee: req.attendee}
			if req.attendee.Kind == attendee.KindTutor {
				vr, err = s.verifier.VerifyTutorByCode(ctx, tx, target, req.token, req.note)
			} else {
				vr, err = s.verifier.VerifyByCode(ctx, tx, target, req.token, req.note)
			}
			if err != nil {
				return err
			}
			if vr.Success {
				verified, err := tx.MarkVerified(ctx, rec.ID)
				if err != nil {
					return err
				}
				rec.Verified = verified.Verified
				rec.VerificationStatus = verified.VerificationStatus
				rec.UpdatedAt = verified.UpdatedAt
			}
		}

		res = &Result{Success: true, Message: "Attendance recorded", Record: &rec, Verification: &vr}
		return nil
	})

	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, errDuplicateFound):
		return res, nil
	case errors.Is(err, ErrDuplicateRecord):
		// A concurrent request won the insert; report its record.
		existing, ferr := s.store.FindExisting(ctx, req.attendee, req.activityID)
		if ferr != nil {
			ferr = storageErr(ferr)
			return failed(ferr), ferr
		}
		if existing == nil {
			// The winning transaction rolled back after our insert lost.
			ferr = fmt.Errorf("duplicate record for %s vanished: %w", req.attendee, err)
			return failed(ferr), ferr
		}
		return duplicate(existing), nil
	default:
		err = storageErr(err)
		s.log.Debug("attendance not recorded",
			zap.String("attendee", req.attendee.String()),
			zap.String("activity_id", req.activityID),
			zap.Error(err))
		return failed(err), err
	}
}

// storageErr marks database connectivity failures so callers can tell them
// apart from rejected input.
func storageErr(err error) error {
	if store.IsUnavailable(err) && !errors.Is(err, apperr.StorageUnavailable) {
		return apperr.StorageUnavailable.Wrap(err)
	}
	return err
}

func hasExisting(ctx context.Context, tx Tx, ref attendee.Ref, activityID string) (*Record, error) {
	subject, err := tx.FindSubject(ctx, ref)
	if err != nil || subject == nil {
		return nil, err
	}
	return tx.FindRecord(ctx, subject.ID, activityID)
}

func duplicate(existing *Record) *Result {
	return &Result{
		Success:   false,
		Duplicate: true,
		Message:   apperr.DuplicateAttendance.Message,
		Existing:  existing,
	}
}

func failed(err error) *Result {
	_, msg := apperr.CodeAndMessage(err)
	return &Result{Success: false, Message: msg}
}
