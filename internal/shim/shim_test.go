package shim

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/san-kum/fluidhost/internal/compute"
	"github.com/san-kum/fluidhost/internal/frame"
	"github.com/san-kum/fluidhost/internal/probe"
)

const indexHTML = "<!doctype html><title>fluid</title><canvas></canvas>"

func newTestServer(t *testing.T, mutate func(*Config)) (*Server, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte(indexHTML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte(strings.Repeat("console.log(1);\n", 200)), 0o644))

	cfg := DefaultConfig()
	cfg.Dir = dir
	if mutate != nil {
		mutate(&cfg)
	}
	s := NewServer(cfg, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func get(t *testing.T, url string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	// DisableCompression keeps the transport from negotiating gzip itself.
	client := &http.Client{Transport: &http.Transport{DisableCompression: true}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func requireIsolated(t *testing.T, resp *http.Response) {
	t.Helper()
	require.Equal(t, probe.RequireCorp, resp.Header.Get(probe.HeaderCOEP))
	require.Equal(t, probe.SameOrigin, resp.Header.Get(probe.HeaderCOOP))
	require.Equal(t, probe.SameOrigin, resp.Header.Get(HeaderCORP))
}

func TestEveryResponseIsIsolated(t *testing.T) {
	_, ts := newTestServer(t, nil)

	for _, path := range []string{"/", "/index.html", "/app.js", "/missing.wasm", KernelPath} {
		resp := get(t, ts.URL+path, nil)
		requireIsolated(t, resp)
	}
}

func TestRootServesIndex(t *testing.T) {
	_, ts := newTestServer(t, func(c *Config) { c.BrotliLevel = 0 })

	resp := get(t, ts.URL+"/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, indexHTML, string(body))
}

func TestBrotliNegotiation(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp := get(t, ts.URL+"/app.js", http.Header{"Accept-Encoding": {"gzip, br"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "br", resp.Header.Get("Content-Encoding"))
	body, err := io.ReadAll(brotli.NewReader(resp.Body))
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("console.log(1);\n", 200), string(body))

	plain := get(t, ts.URL+"/app.js", http.Header{"Accept-Encoding": {"gzip"}})
	require.Empty(t, plain.Header.Get("Content-Encoding"))

	refused := get(t, ts.URL+"/app.js", http.Header{"Accept-Encoding": {"br;q=0"}})
	require.Empty(t, refused.Header.Get("Content-Encoding"))

	missing := get(t, ts.URL+"/nope.js", http.Header{"Accept-Encoding": {"br"}})
	require.Equal(t, http.StatusNotFound, missing.StatusCode)
	require.Empty(t, missing.Header.Get("Content-Encoding"))
}

func TestBuiltinKernel(t *testing.T) {
	_, ts := newTestServer(t, func(c *Config) { c.BrotliLevel = 0 })

	resp := get(t, ts.URL+KernelPath, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/wasm", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, compute.KernelImage, body)

	_, off := newTestServer(t, func(c *Config) { c.ServeKernel = false })
	require.Equal(t, http.StatusNotFound, get(t, off.URL+KernelPath, nil).StatusCode)
}

func TestKernelFileOverridesBuiltin(t *testing.T) {
	s, ts := newTestServer(t, func(c *Config) { c.BrotliLevel = 0 })
	custom := append([]byte(nil), compute.KernelImage...)
	custom = append(custom, 0x00, 0x00)
	require.NoError(t, os.WriteFile(filepath.Join(s.cfg.Dir, "kernel.wasm"), custom, 0o644))

	body, err := io.ReadAll(get(t, ts.URL+KernelPath, nil).Body)
	require.NoError(t, err)
	require.True(t, bytes.Equal(custom, body))
}

func TestProbeSeesIsolation(t *testing.T) {
	_, ts := newTestServer(t, nil)

	p := probe.New(probe.WithOrigin(ts.URL+"/"), probe.WithSIMD(true)).Probe(context.Background())
	require.True(t, p.SharedMemoryThreading)
}

func TestTelemetryBroadcastsFrames(t *testing.T) {
	s, ts := newTestServer(t, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + TelemetryPath
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	requireIsolated(t, resp)

	hub := s.Telemetry()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.OnFrame(frame.State{Status: frame.Running, FrameIndex: 7, LastStepDurationMs: 1.5})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg FrameMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, FrameMessage{Type: "frame", Status: "running", FrameIndex: 7, LastStepDurationMs: 1.5}, msg)

	hub.Close()
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	require.Zero(t, hub.Clients())
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ctx, ln) }()

	resp := get(t, "http://"+ln.Addr().String()+"/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeReturnsListenerError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewServer(DefaultConfig(), nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	errc := make(chan error, 1)
	go func() { errc <- s.Serve(context.Background(), ln) }()

	select {
	case err := <-errc:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after the listener failed")
	}
}
