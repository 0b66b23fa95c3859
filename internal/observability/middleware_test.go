package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func newLoggedRouter(t *testing.T, out *bytes.Buffer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(out).Level(zerolog.DebugLevel)))
	r.GET("/pipes/:"+PipeParam, func(c *gin.Context) {
		if c.Param(PipeParam) == "missing" {
			_ = c.Error(errors.New("pipe: not found"))
			c.Status(http.StatusNotFound)
			return
		}
		c.Status(http.StatusOK)
	})
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func decodeLine(t *testing.T, out *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	if err := json.Unmarshal(out.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", out.String(), err)
	}
	out.Reset()
	return line
}

func TestRequestLoggerTagsPipeRoutes(t *testing.T) {
	var out bytes.Buffer
	r := newLoggedRouter(t, &out)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/pipes/echo_disconnect", nil))
	line := decodeLine(t, &out)
	if line["pipe"] != "echo_disconnect" || line["path"] != "/pipes/:name" || line["level"] != "debug" {
		t.Fatalf("unexpected pipe request line: %v", line)
	}
	if _, ok := line["error"]; ok {
		t.Fatalf("successful lookup should not log an error: %v", line)
	}

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/pipes/missing", nil))
	line = decodeLine(t, &out)
	if line["pipe"] != "missing" || line["error"] != "pipe: not found" || line["level"] != "warn" {
		t.Fatalf("unexpected failed lookup line: %v", line)
	}

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	line = decodeLine(t, &out)
	if _, ok := line["pipe"]; ok {
		t.Fatalf("non-pipe route should carry no pipe field: %v", line)
	}
	if line["message"] != "admin_request" {
		t.Fatalf("unexpected message: %v", line)
	}
}
