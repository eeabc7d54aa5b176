package httpapi

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backoffice/internal/apperr"
	"backoffice/internal/attendee"
	"backoffice/internal/cloudinary"
	"backoffice/internal/directory"
	"backoffice/internal/response"
)

// maxPhotoBytes bounds multipart photo uploads.
const maxPhotoBytes = 5 << 20

func createHandler[In, Out any](create func(context.Context, In) (Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in In
		if err := bindJSON(c, &in); err != nil {
			response.Error(c, err)
			return
		}
		out, err := create(c.Request.Context(), in)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Created(c, out)
	}
}

func getHandler[Out any](get func(context.Context, string) (Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := get(c.Request.Context(), c.Param("id"))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, out)
	}
}

func updateHandler[In, Out any](update func(context.Context, string, In) (Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in In
		if err := bindJSON(c, &in); err != nil {
			response.Error(c, err)
			return
		}
		out, err := update(c.Request.Context(), c.Param("id"), in)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, out)
	}
}

func deleteHandler(del func(context.Context, string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := del(c.Request.Context(), c.Param("id")); err != nil {
			response.Error(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func listHandler[Out any](list func(context.Context, directory.ListParams) ([]Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := listParams(c)
		if err != nil {
			response.Error(c, err)
			return
		}
		out, err := list(c.Request.Context(), p)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Page(c, out, p.Limit, p.Offset)
	}
}

func (h *Handler) listActivities(c *gin.Context) {
	base, err := listParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	p := directory.ActivityListParams{ListParams: base, TutorID: c.Query("tutor_id")}
	if p.From, err = queryDate(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if p.To, err = queryDate(c, "to"); err != nil {
		response.Error(c, err)
		return
	}
	activities, err := h.directory.ListActivities(c.Request.Context(), p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, activities, p.Limit, p.Offset)
}

type photoResponse struct {
	PhotoURL string `json:"photo_url"`
	PublicID string `json:"public_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Bytes    int    `json:"bytes"`
}

// uploadPhoto accepts a multipart "file" field or a JSON {"data": "<base64 data URL>"}
// body, stores the image and saves its URL on the attendee.
func (h *Handler) uploadPhoto(kind attendee.Kind) gin.HandlerFunc {
	save := h.directory.SetStudentPhoto
	if kind == attendee.KindTutor {
		save = h.directory.SetTutorPhoto
	}
	return func(c *gin.Context) {
		if h.photos == nil {
			response.Error(c, apperr.PhotoStorageDisabled)
			return
		}
		ctx := c.Request.Context()
		id := c.Param("id")
		if err := h.attendeeExists(ctx, kind, id); err != nil {
			response.Error(c, err)
			return
		}

		publicID := string(kind) + "-" + id
		var (
			result *cloudinary.UploadResult
			err    error
		)
		if strings.Contains(c.ContentType(), "multipart/form-data") {
			file, header, ferr := c.Request.FormFile("file")
			if ferr != nil {
				response.Error(c, apperr.InvalidRequest.WithMessage("file field required"))
				return
			}
			defer file.Close()
			data, ferr := io.ReadAll(io.LimitReader(file, maxPhotoBytes+1))
			if ferr != nil {
				response.Error(c, apperr.InvalidRequest.WithMessage("read file failed"))
				return
			}
			if len(data) > maxPhotoBytes {
				response.Error(c, apperr.InvalidRequest.WithMessage("photo exceeds 5MB"))
				return
			}
			result, err = h.photos.UploadBytes(ctx, data, header.Filename, publicID)
		} else {
			var body struct {
				Data string `json:"data" binding:"required"`
			}
			if berr := c.ShouldBindJSON(&body); berr != nil {
				response.Error(c, apperr.InvalidRequest.WithMessage(`provide {"data": "<base64 data URL>"}`))
				return
			}
			result, err = h.photos.UploadBase64(ctx, body.Data, publicID)
		}
		if err != nil {
			h.log.Error("photo upload failed", zap.String("attendee", publicID), zap.Error(err))
			response.Error(c, apperr.PhotoUploadFailed)
			return
		}

		if err := save(ctx, id, result.SecureURL); err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, photoResponse{
			PhotoURL: result.SecureURL,
			PublicID: result.PublicID,
			Width:    result.Width,
			Height:   result.Height,
			Bytes:    result.Bytes,
		})
	}
}
