package httpapi

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"backoffice/internal/apperr"
	"backoffice/internal/attendance"
	"backoffice/internal/directory"
	"backoffice/internal/store"
)

func queryInt(c *gin.Context, name string, fallback int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.InvalidRequest.WithMessage(name + " must be an integer")
	}
	return n, nil
}

func queryDate(c *gin.Context, name string) (*directory.Date, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	d, err := directory.ParseDate(v)
	if err != nil {
		return nil, apperr.InvalidRequest.WithMessage(name + " must be a YYYY-MM-DD date")
	}
	return &d, nil
}

func requiredDate(c *gin.Context, name string) (directory.Date, error) {
	d, err := queryDate(c, name)
	if err != nil {
		return directory.Date{}, err
	}
	if d == nil {
		return directory.Date{}, apperr.InvalidRequest.WithMessage(name + " is required")
	}
	return *d, nil
}

func queryBool(c *gin.Context, name string) (*bool, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, apperr.InvalidRequest.WithMessage(name + " must be true or false")
	}
	return &b, nil
}

func paging(c *gin.Context) (int, int, error) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return 0, 0, err
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	limit, offset = store.Page(limit, offset)
	return limit, offset, nil
}

func listParams(c *gin.Context) (directory.ListParams, error) {
	limit, offset, err := paging(c)
	if err != nil {
		return directory.ListParams{}, err
	}
	return directory.ListParams{
		Search:    c.Query("search"),
		ShelterID: c.Query("shelter_id"),
		Limit:     limit,
		Offset:    offset,
	}, nil
}

func recordFilter(c *gin.Context) (attendance.Filter, error) {
	var f attendance.Filter
	var err error
	if f.Limit, f.Offset, err = paging(c); err != nil {
		return f, err
	}
	if f.Verified, err = queryBool(c, "verified"); err != nil {
		return f, err
	}
	if f.From, err = queryDate(c, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryDate(c, "to"); err != nil {
		return f, err
	}
	f.Status = attendance.Status(c.Query("status"))
	f.VerificationStatus = attendance.VerificationStatus(c.Query("verification_status"))
	return f, nil
}

func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperr.InvalidRequest.WithMessage(err.Error())
	}
	return nil
}
