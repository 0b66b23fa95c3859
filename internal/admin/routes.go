package admin

import (
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/pipectl/internal/observability"
	"github.com/danmuck/pipectl/internal/pipe"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": Version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/pipes", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"pipes": s.reg.Snapshot(),
		})
	})

	// :name is the short name; the \\.\pipe\ prefix does not survive a URL.
	s.router.GET("/pipes/:"+observability.PipeParam, func(c *gin.Context) {
		info, err := s.reg.Lookup(pipe.FullName(c.Param(observability.PipeParam)))
		if err != nil {
			_ = c.Error(err)
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, info)
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipe.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipe.ErrNameInvalid), errors.Is(err, pipe.ErrPathNotFound):
		return http.StatusBadRequest
	case errors.Is(err, pipe.ErrRegistryClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
