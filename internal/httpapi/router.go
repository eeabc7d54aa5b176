package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backoffice/internal/attendee"
	"backoffice/internal/auth"
	"backoffice/internal/httpmiddleware"
	"backoffice/internal/metrics"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// RouterConfig holds the cross-cutting settings of the HTTP surface.
type RouterConfig struct {
	JWTSigningKey   string
	JWTIssuer       string
	CORSOrigins     []string
	RateLimitPerMin int
	Metrics         *metrics.Metrics
	MetricsHandler  http.Handler
	Health          map[string]HealthCheck
	Log             *zap.Logger
}

// NewRouter wires middleware, health and metrics endpoints and the /v1 API.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(log, "/healthz", "/metrics"))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.GinMiddleware())
	}

	if cfg.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}
	r.GET("/healthz", healthz(cfg.Health))

	v1 := r.Group("/v1", auth.AdminAuth(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleAdmin, auth.RoleStaff))
	h.Register(v1)
	return r
}

// Register mounts the API routes on g.
func (h *Handler) Register(g *gin.RouterGroup) {
	d := h.directory

	g.POST("/attendance/qr", h.recordByQR)
	g.POST("/attendance/manual", h.recordManual(attendee.KindStudent))
	g.POST("/attendance/tutors/manual", h.recordManual(attendee.KindTutor))
	g.GET("/attendance/stats", h.stats)

	g.GET("/shelters", listHandler(d.ListShelters))
	g.POST("/shelters", createHandler(d.CreateShelter))
	g.GET("/shelters/:id", getHandler(d.GetShelter))
	g.PUT("/shelters/:id", updateHandler(d.UpdateShelter))
	g.DELETE("/shelters/:id", deleteHandler(d.DeleteShelter))

	g.GET("/students", listHandler(d.ListStudents))
	g.POST("/students", createHandler(d.CreateStudent))
	g.GET("/students/:id", getHandler(d.GetStudent))
	g.PUT("/students/:id", updateHandler(d.UpdateStudent))
	g.DELETE("/students/:id", deleteHandler(d.DeleteStudent))
	g.GET("/students/:id/attendance", h.listByAttendee(attendee.KindStudent))
	g.GET("/students/:id/qr-token", h.qrToken(attendee.KindStudent))
	g.POST("/students/:id/photo", h.uploadPhoto(attendee.KindStudent))

	g.GET("/tutors", listHandler(d.ListTutors))
	g.POST("/tutors", createHandler(d.CreateTutor))
	g.GET("/tutors/:id", getHandler(d.GetTutor))
	g.PUT("/tutors/:id", updateHandler(d.UpdateTutor))
	g.DELETE("/tutors/:id", deleteHandler(d.DeleteTutor))
	g.GET("/tutors/:id/attendance", h.listByAttendee(attendee.KindTutor))
	g.GET("/tutors/:id/attendance/stats", h.tutorStats)
	g.GET("/tutors/:id/qr-token", h.qrToken(attendee.KindTutor))
	g.POST("/tutors/:id/photo", h.uploadPhoto(attendee.KindTutor))

	g.GET("/activities", h.listActivities)
	g.POST("/activities", createHandler(d.CreateActivity))
	g.GET("/activities/:id", getHandler(d.GetActivity))
	g.PUT("/activities/:id", updateHandler(d.UpdateActivity))
	g.DELETE("/activities/:id", deleteHandler(d.DeleteActivity))
	g.GET("/activities/:id/attendance", h.listByActivity)
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func healthz(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := gin.H{}
		for name, check := range checks {
			ok := check(ctx)
			body[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
			}
		}
		if status == http.StatusOK {
			body["status"] = "ok"
		} else {
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	}
}
