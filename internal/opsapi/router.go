// Package opsapi – router and handlers.
package opsapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-coffee-bot/internal/repo"
	"github.com/tbourn/go-coffee-bot/internal/services"
)

// Deps bundles everything the ops surface needs. All dependencies are
// injected; the router does no construction of its own.
type Deps struct {
	DB         *gorm.DB
	Matching   *services.MatchingService
	FollowUp   *services.FollowUpService
	Inactivity *services.InactivityService

	// Grace is the unanswered-follow-up grace used by the inactivity trigger.
	Grace time.Duration

	// Token guards the /admin routes. Empty disables them entirely.
	Token string

	Log zerolog.Logger
}

// NewRouter builds the ops Gin engine.
//
// Middleware order: RequestID → Logger → Recovery → Metrics, so panics and
// errors are logged with their correlation ID and every request is counted.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(RequestID())
	r.Use(Logger(d.Log))
	r.Use(Recovery(d.Log))
	r.Use(Metrics())

	r.GET("/healthz", d.healthz)
	r.GET("/status", d.status)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if d.Token != "" {
		admin := r.Group("/admin", bearerAuth(d.Token))
		admin.POST("/match", d.triggerMatch)
		admin.POST("/followup", d.triggerFollowUp)
		admin.POST("/inactivity", d.triggerInactivity)
	}

	return r
}

// bearerAuth requires "Authorization: Bearer <token>" with a constant
// expected token. The comparison is constant-time; the token is an
// operator-chosen secret.
func bearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// healthz reports liveness plus a database ping.
func (d Deps) healthz(c *gin.Context) {
	sqlDB, err := d.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// status reports the roster size and the most recent round, if any.
func (d Deps) status(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := repo.CountSubscribers(ctx, d.DB)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	body := gin.H{"subscribers": count}
	round, err := repo.LatestRound(ctx, d.DB)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		body["latest_round"] = nil
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	default:
		body["latest_round"] = gin.H{
			"period_key":        round.PeriodKey,
			"total_subscribers": round.TotalSubscribers,
			"total_groups":      round.TotalGroups,
			"created_at":        round.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, body)
}

// triggerMatch runs a matching round now. Safe to race the scheduled run;
// the round ledger makes the second trigger report already_done.
func (d Deps) triggerMatch(c *gin.Context) {
	sum, err := d.Matching.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// triggerFollowUp sends the current period's follow-up prompts now.
func (d Deps) triggerFollowUp(c *gin.Context) {
	sum, err := d.FollowUp.SendPrompts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// triggerInactivity sweeps unanswered follow-ups, then prunes members past
// the miss threshold. Same order as the scheduled job.
func (d Deps) triggerInactivity(c *gin.Context) {
	ctx := c.Request.Context()
	swept, err := d.FollowUp.SweepUnanswered(ctx, d.Grace)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	sum, err := d.Inactivity.RemoveInactive(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"swept": swept, "removed": sum.Removed, "notified": sum.Notified})
}
