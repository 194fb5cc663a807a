package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clockwork/internal/attendance"
	"clockwork/internal/auth"
	"clockwork/internal/httpmiddleware"
	"clockwork/internal/queue"
	"clockwork/internal/users"
)

// Options configures the router.
type Options struct {
	SigningKey    string
	Issuer        string
	TokenTTL      time.Duration
	AllowedOrigin string
	Limiter       httpmiddleware.Limiter
	// Health maps a dependency name to its probe, reported on /healthz.
	Health map[string]func(ctx context.Context) bool
}

// Server holds the handler dependencies.
type Server struct {
	attendance  *attendance.Service
	users       *users.Service
	photoChecks attendance.PhotoCheckStore
	events      queue.Queue
	opts        Options
}

// NewServer creates a server. events may be nil to disable clock event publishing.
func NewServer(att *attendance.Service, us *users.Service, checks attendance.PhotoCheckStore, events queue.Queue, opts Options) *Server {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	return &Server{attendance: att, users: us, photoChecks: checks, events: events, opts: opts}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware(s.opts.AllowedOrigin))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.health)

	authed := auth.UserAuth(s.opts.SigningKey, s.opts.Issuer)
	limited := []gin.HandlerFunc{}
	if s.opts.Limiter != nil {
		limited = append(limited, httpmiddleware.Middleware(s.opts.Limiter))
	}

	public := r.Group("/api/auth", limited...)
	public.POST("/register", s.register)
	public.POST("/login", s.login)

	private := r.Group("/api", append([]gin.HandlerFunc{authed}, limited...)...)
	private.GET("/auth/me", s.me)
	private.GET("/auth/users", auth.RequireRole(users.RoleAdmin), s.listUsers)

	att := private.Group("/attendance")
	att.POST("/clock-in", s.clockIn)
	att.POST("/clock-in-with-selfie", s.clockInWithSelfie)
	att.POST("/clock-out", s.clockOut)
	att.GET("/current", s.current)
	att.GET("/selfie/:sessionId", s.selfie)
	att.GET("/users/:userId", s.userReport)
	att.GET("/users/:userId/:sessionId", s.userSession)

	loc := private.Group("/location")
	loc.PUT("/set-location/:userId", auth.RequireRole(users.RoleAdmin), s.setLocation)
	loc.GET("/verify/:userId", s.verifyLocation)

	return r
}

func (s *Server) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, probe := range s.opts.Health {
		ok := probe(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// corsMiddleware echoes the configured origin, or the request origin when none is set.
func corsMiddleware(allowed string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := allowed
		if origin == "" {
			origin = c.Request.Header.Get("Origin")
		}
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
