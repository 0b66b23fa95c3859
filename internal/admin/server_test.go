package admin

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/pipectl/internal/pipe"
	"github.com/danmuck/pipectl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func newTestServer(t *testing.T) (*Server, *pipe.Registry) {
	t.Helper()
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	reg := pipe.NewRegistry(pipe.WithLogger(testlog.Logger(t)))
	t.Cleanup(func() { reg.Close() })
	return New("pipectl-test", nil, reg, testlog.Logger(t)), reg
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rr := get(t, s, "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" || body["service"] != "pipectl-test" {
		t.Fatalf("unexpected response body: %#v", body)
	}
}

func TestPipesSnapshot(t *testing.T) {
	s, reg := newTestServer(t)
	if _, err := reg.Create(`\\.\pipe\alpha`, pipe.EndpointConfig{
		Access:       pipe.AccessDuplex,
		Type:         pipe.TypeMessageMessage,
		MaxInstances: 2,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := reg.Open(`\\.\pipe\alpha`); err != nil {
		t.Fatalf("open: %v", err)
	}

	rr := get(t, s, "/pipes")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body struct {
		Pipes []pipe.SetInfo `json:"pipes"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Pipes) != 1 || body.Pipes[0].Type != "message-message" {
		t.Fatalf("unexpected pipes: %+v", body.Pipes)
	}
	if got := body.Pipes[0].Instances[0]; got.State != "connected" || got.ServerRead != "message" {
		t.Fatalf("unexpected instance: %+v", got)
	}

	rr = get(t, s, "/pipes/ALPHA")
	if rr.Code != http.StatusOK {
		t.Fatalf("lookup by short name: status %d body=%s", rr.Code, rr.Body.String())
	}
	var info pipe.SetInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if info.Name != `\\.\pipe\alpha` || info.MaxInstances != 2 {
		t.Fatalf("unexpected set info: %+v", info)
	}

	if rr := get(t, s, "/pipes/missing"); rr.Code != http.StatusNotFound {
		t.Fatalf("missing pipe: expected 404, got %d", rr.Code)
	}
}

func TestPipesAfterRegistryClose(t *testing.T) {
	s, reg := newTestServer(t)
	reg.Close()
	if rr := get(t, s, "/pipes/any"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	rr := get(t, s, "/pipes")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"pipes":[]`) {
		t.Fatalf("closed registry snapshot: %d %s", rr.Code, rr.Body.String())
	}
}

func TestMetricsExposePipeCounters(t *testing.T) {
	s, reg := newTestServer(t)
	if _, err := reg.Create(`\\.\pipe\metrics`, pipe.EndpointConfig{
		Access:       pipe.AccessDuplex,
		Type:         pipe.TypeByte,
		MaxInstances: 1,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	get(t, s, "/health")
	rr := get(t, s, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, name := range []string{"pipectl_pipe_instances_active", "pipectl_http_requests_total"} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics missing %s", name)
		}
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("serve did not stop")
	}
}
