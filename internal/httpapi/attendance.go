package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backoffice/internal/apperr"
	"backoffice/internal/attendance"
	"backoffice/internal/attendee"
	"backoffice/internal/auth"
	"backoffice/internal/queue"
	"backoffice/internal/response"
)

type qrRequest struct {
	AttendeeKind attendee.Kind      `json:"attendee_kind" binding:"required"`
	AttendeeID   string             `json:"attendee_id" binding:"required"`
	ActivityID   string             `json:"activity_id" binding:"required"`
	Status       *attendance.Status `json:"status"`
	Token        string             `json:"token" binding:"required"`
	Note         string             `json:"note"`
	ArrivalTime  *time.Time         `json:"arrival_time"`
}

type manualRequest struct {
	AttendeeID  string             `json:"attendee_id" binding:"required"`
	ActivityID  string             `json:"activity_id" binding:"required"`
	Status      *attendance.Status `json:"status"`
	ArrivalTime *time.Time         `json:"arrival_time"`
	Notes       string             `json:"notes"`
}

func (h *Handler) recordByQR(c *gin.Context) {
	var req qrRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	ref := attendee.Ref{Kind: req.AttendeeKind, ID: req.AttendeeID}
	res, err := h.attendance.RecordByQR(c.Request.Context(), attendance.QRInput{
		Attendee:     ref,
		ActivityID:   req.ActivityID,
		ManualStatus: req.Status,
		Token:        req.Token,
		Note:         req.Note,
		ArrivalTime:  req.ArrivalTime,
	})
	h.writeResult(c, ref, res, err)
}

func (h *Handler) recordManual(kind attendee.Kind) gin.HandlerFunc {
	record := h.attendance.RecordManual
	if kind == attendee.KindTutor {
		record = h.attendance.RecordTutorManual
	}
	return func(c *gin.Context) {
		var req manualRequest
		if err := bindJSON(c, &req); err != nil {
			response.Error(c, err)
			return
		}
		ref := attendee.Ref{Kind: kind, ID: req.AttendeeID}
		res, err := record(c.Request.Context(), attendance.ManualInput{
			Attendee:    ref,
			ActivityID:  req.ActivityID,
			Status:      req.Status,
			ArrivalTime: req.ArrivalTime,
			Actor:       auth.ActorFrom(c),
			Notes:       req.Notes,
		})
		h.writeResult(c, ref, res, err)
	}
}

// writeResult renders a recording outcome: 201 for a new record, 409 for a
// duplicate, the mapped error status otherwise.
func (h *Handler) writeResult(c *gin.Context, ref attendee.Ref, res *attendance.Result, err error) {
	kind := string(ref.Kind)
	if err != nil {
		if h.metrics != nil {
			code, _ := apperr.CodeAndMessage(err)
			h.metrics.Failures.WithLabelValues(kind, code).Inc()
		}
		response.Error(c, err)
		return
	}
	if res.Duplicate {
		if h.metrics != nil {
			h.metrics.Duplicates.WithLabelValues(kind).Inc()
		}
		c.JSON(http.StatusConflict, res)
		return
	}

	method := ""
	if res.Verification != nil {
		method = string(res.Verification.Method)
	}
	if h.metrics != nil && res.Record != nil {
		h.metrics.Recorded.WithLabelValues(kind, string(res.Record.Status), method).Inc()
	}
	h.publishRecorded(c, res.Record, method)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) publishRecorded(c *gin.Context, rec *attendance.Record, method string) {
	if h.events == nil || rec == nil {
		return
	}
	evt := queue.AttendanceRecorded{
		RecordID:     rec.ID,
		ActivityID:   rec.ActivityID,
		AttendeeKind: string(rec.Attendee.Kind),
		AttendeeID:   rec.Attendee.ID,
		Status:       string(rec.Status),
		Method:       method,
	}
	// The record is committed; a lost event only delays cache invalidation.
	if err := queue.PublishRecorded(c.Request.Context(), h.events, evt); err != nil {
		h.log.Warn("publish attendance event failed", zap.String("record_id", rec.ID), zap.Error(err))
	}
}

func (h *Handler) listByActivity(c *gin.Context) {
	f, err := recordFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	records, err := h.attendance.ListByActivity(c.Request.Context(), c.Param("id"), f)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, records, f.Limit, f.Offset)
}

func (h *Handler) listByAttendee(kind attendee.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := recordFilter(c)
		if err != nil {
			response.Error(c, err)
			return
		}
		ref := attendee.Ref{Kind: kind, ID: c.Param("id")}
		records, err := h.attendance.ListByAttendee(c.Request.Context(), ref, f)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Page(c, records, f.Limit, f.Offset)
	}
}

func (h *Handler) stats(c *gin.Context) {
	start, err := requiredDate(c, "start")
	if err != nil {
		response.Error(c, err)
		return
	}
	end, err := requiredDate(c, "end")
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, err := h.attendance.GenerateStats(c.Request.Context(), attendance.StatsQuery{
		Start:     start,
		End:       end,
		ShelterID: c.Query("shelter_id"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}

func (h *Handler) tutorStats(c *gin.Context) {
	start, err := requiredDate(c, "start")
	if err != nil {
		response.Error(c, err)
		return
	}
	end, err := requiredDate(c, "end")
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, err := h.attendance.TutorStats(c.Request.Context(), c.Param("id"), start, end)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}

func (h *Handler) attendeeExists(ctx context.Context, kind attendee.Kind, id string) error {
	if kind == attendee.KindTutor {
		_, err := h.directory.GetTutor(ctx, id)
		return err
	}
	_, err := h.directory.GetStudent(ctx, id)
	return err
}

type qrTokenResponse struct {
	Token     string       `json:"token"`
	Attendee  attendee.Ref `json:"attendee"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
}

func (h *Handler) qrToken(kind attendee.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.Param("id")
		if err := h.attendeeExists(ctx, kind, id); err != nil {
			response.Error(c, err)
			return
		}

		ref, err := attendee.Ref{Kind: kind, ID: id}.Normalize()
		if err != nil {
			response.Error(c, apperr.NotFound)
			return
		}
		token, exp, err := h.tokens.Issue(ref)
		if err != nil {
			response.Error(c, err)
			return
		}
		out := qrTokenResponse{Token: token, Attendee: ref}
		if !exp.IsZero() {
			out.ExpiresAt = &exp
		}
		response.OK(c, out)
	}
}
