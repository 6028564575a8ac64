package httpapi

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eduface/internal/auth"
	"eduface/internal/httpmiddleware"
	"eduface/internal/logging"
	"eduface/internal/portal"
)

// RouterOptions configures the cross-cutting middleware.
type RouterOptions struct {
	AllowOrigins    []string
	RateLimitPerMin int
}

// NewRouter mounts h under /api together with /healthz and /metrics.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	if err := registerValidators(); err != nil {
		logging.FromContext(context.Background()).Error("register validators", "error", err)
	}
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", httpmiddleware.RequestIDHeader},
		ExposeHeaders: []string{httpmiddleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(opts.AllowOrigins) == 0 || (len(opts.AllowOrigins) == 1 && opts.AllowOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = opts.AllowOrigins
		corsCfg.AllowCredentials = true
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.AccessLog())
	r.Use(cors.New(corsCfg))
	r.Use(httpmiddleware.Security())

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := httpmiddleware.NewRateLimiter(opts.RateLimitPerMin)
	api := r.Group("/api")

	public := api.Group("/auth", limiter.GinMiddleware())
	public.POST("/register", h.Register)
	public.POST("/login", h.Login)
	public.POST("/refresh", h.Refresh)

	authed := api.Group("", auth.Bearer(h.tokens), limiter.GinMiddleware())
	admin := authed.Group("", auth.RequireRole(portal.RoleAdmin), h.ActiveAdmin)

	authed.GET("/auth/verify-token", h.VerifyToken)

	admin.GET("/users", h.ListUsers)
	authed.GET("/users/:id", h.GetUser)
	authed.PUT("/users/:id", h.UpdateUser)

	authed.GET("/routines", h.ListRoutines)
	authed.GET("/routines/:id", h.GetRoutine)
	admin.POST("/routines", h.CreateRoutine)
	admin.DELETE("/routines/:id", h.DeleteRoutine)

	authed.GET("/attendance", h.ListAttendance)
	authed.GET("/attendance/subjects", h.Subjects)
	admin.POST("/attendance", h.MarkAttendance)
	admin.POST("/attendance/batch", h.MarkAttendanceBatch)

	authed.GET("/results", h.ListResults)
	admin.GET("/results/student/:id", h.StudentResults)
	admin.POST("/results", h.UploadResult)

	return r
}
