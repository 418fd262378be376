package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/topup/upsell/internal/config"
	"github.com/topup/upsell/internal/handlers"
)

// mockHandler creates a simple test handler
func mockHandler(response string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(response))
	})
}

// Helper functions for test setup

// createTestDeps creates ServerDependencies with default mock handlers for testing
func createTestDeps(port string) ServerDependencies {
	return ServerDependencies{
		ServerConfig:          config.ServerConfig{Port: port},
		Logger:                zap.NewNop(),
		Sessions:              handlers.NewSessionCodec([]byte("0123456789abcdef"), false),
		UpsellHandler:         mockHandler("upsell"),
		CheckoutDataHandler:   mockHandler("checkout-data"),
		PaymentSessionHandler: mockHandler("payment-session"),
	}
}

// startTestServer starts a server with the given dependencies and returns listener, server, and port
func startTestServer(t *testing.T, deps ServerDependencies) (net.Listener, *http.Server, int) {
	t.Helper()
	listener, server, err := StartServer(deps)
	if err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	return listener, server, port
}

// httpDo makes an HTTP request and returns the response body and status
func httpDo(t *testing.T, method, url string) (string, *http.Response) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request to %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body), resp
}

// httpGet makes an HTTP GET request and returns response body and status
func httpGet(t *testing.T, url string) (string, int) {
	t.Helper()
	body, resp := httpDo(t, http.MethodGet, url)
	return body, resp.StatusCode
}

func TestStartServer_SuccessfulStartup(t *testing.T) {
	// GIVEN
	deps := createTestDeps("0")

	// WHEN
	listener, server, port := startTestServer(t, deps)
	defer listener.Close()
	defer server.Close()

	// THEN
	if port == 0 {
		t.Error("Expected non-zero port")
	}

	time.Sleep(50 * time.Millisecond)
	body, status := httpGet(t, fmt.Sprintf("http://localhost:%d/upsell/skins", port))

	if status != http.StatusOK {
		t.Errorf("Expected status 200, got %d", status)
	}
	if body != "upsell" {
		t.Errorf("Expected 'upsell', got '%s'", body)
	}
}

func TestStartServer_InvalidPort(t *testing.T) {
	// GIVEN
	deps := createTestDeps("99999") // Invalid port

	// WHEN
	listener, server, err := StartServer(deps)

	// THEN
	if err == nil {
		listener.Close()
		server.Close()
		t.Error("Expected error for invalid port, got nil")
	}
}

func TestStartServer_PortAlreadyInUse(t *testing.T) {
	// GIVEN
	existingListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create test listener: %v", err)
	}
	defer existingListener.Close()

	port := existingListener.Addr().(*net.TCPAddr).Port

	deps := createTestDeps(fmt.Sprintf("%d", port))

	// WHEN
	listener, server, err := StartServer(deps)

	// THEN
	if err == nil {
		listener.Close()
		server.Close()
		t.Error("Expected error for port already in use, got nil")
	}
}

func TestStartServer_AllRoutesWork(t *testing.T) {
	// GIVEN
	deps := createTestDeps("0")
	deps.UpsellHandler = mockHandler("upsell-response")
	deps.CheckoutDataHandler = mockHandler("checkout-data-response")
	deps.PaymentSessionHandler = mockHandler("payment-session-response")

	// WHEN
	listener, server, port := startTestServer(t, deps)
	defer listener.Close()
	defer server.Close()

	baseURL := fmt.Sprintf("http://localhost:%d", port)
	time.Sleep(50 * time.Millisecond)

	// THEN
	testCases := []struct {
		method   string
		path     string
		status   int
		expected string
	}{
		{http.MethodGet, "/upsell/diamonds", http.StatusOK, "upsell-response"},
		{http.MethodPost, "/upsell/skins/pay", http.StatusOK, "upsell-response"},
		{http.MethodPut, "/api/session/checkoutData", http.StatusOK, "checkout-data-response"},
		{http.MethodGet, "/api/session/pixCheckout", http.StatusOK, "payment-session-response"},
		{http.MethodGet, "/healthz", http.StatusOK, `{"status":"ok"}`},
		{http.MethodPost, "/api/session/pixCheckout", http.StatusMethodNotAllowed, ""},
		{http.MethodGet, "/api/session/checkoutData", http.StatusMethodNotAllowed, ""},
		{http.MethodGet, "/checkout", http.StatusNotFound, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			body, resp := httpDo(t, tc.method, baseURL+tc.path)
			if resp.StatusCode != tc.status {
				t.Errorf("Expected status %d, got %d", tc.status, resp.StatusCode)
			}
			if tc.expected != "" && body != tc.expected {
				t.Errorf("Expected '%s', got '%s'", tc.expected, body)
			}
		})
	}
}

func TestStartServer_SessionCookie(t *testing.T) {
	// GIVEN
	deps := createTestDeps("0")
	seenCh := make(chan string, 1)
	deps.UpsellHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenCh <- handlers.SessionID(r.Context())
	})

	listener, server, port := startTestServer(t, deps)
	defer listener.Close()
	defer server.Close()
	time.Sleep(50 * time.Millisecond)

	// WHEN
	_, resp := httpDo(t, http.MethodGet, fmt.Sprintf("http://localhost:%d/upsell/skins", port))

	// THEN
	seen := <-seenCh
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == handlers.SessionCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("Expected a session cookie on upsell pages")
	}
	if !strings.HasPrefix(cookie.Value, seen+".") || seen == "" {
		t.Errorf("Cookie %q does not carry session id %q", cookie.Value, seen)
	}

	_, resp = httpDo(t, http.MethodGet, fmt.Sprintf("http://localhost:%d/healthz", port))
	if len(resp.Cookies()) != 0 {
		t.Error("Expected no session cookie on the health endpoint")
	}
}

func TestStartServer_RecoversPanics(t *testing.T) {
	// GIVEN
	deps := createTestDeps("0")
	deps.UpsellHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	listener, server, port := startTestServer(t, deps)
	defer listener.Close()
	defer server.Close()
	time.Sleep(50 * time.Millisecond)

	// WHEN
	_, status := httpGet(t, fmt.Sprintf("http://localhost:%d/upsell/skins", port))

	// THEN
	if status != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", status)
	}
}

func TestStartServer_GracefulShutdown(t *testing.T) {
	// GIVEN
	deps := createTestDeps("0")

	// WHEN
	listener, server, port := startTestServer(t, deps)
	defer listener.Close()

	time.Sleep(50 * time.Millisecond)
	_, status := httpGet(t, fmt.Sprintf("http://localhost:%d/healthz", port))
	if status != http.StatusOK {
		t.Fatal("Server not responding")
	}

	// THEN
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("Failed to shutdown server gracefully: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	_, getErr := http.Get(fmt.Sprintf("http://localhost:%d/healthz", port))
	if getErr == nil {
		t.Error("Expected error after shutdown, server still responding")
	}
}

func TestStartServer_ConcurrentServers(t *testing.T) {
	// GIVEN
	deps1 := createTestDeps("0")
	deps1.UpsellHandler = mockHandler("server1")

	deps2 := createTestDeps("0")
	deps2.UpsellHandler = mockHandler("server2")

	// WHEN
	listener1, server1, port1 := startTestServer(t, deps1)
	defer listener1.Close()
	defer server1.Close()

	listener2, server2, port2 := startTestServer(t, deps2)
	defer listener2.Close()
	defer server2.Close()

	// THEN
	if port1 == port2 {
		t.Error("Both servers got the same port")
	}

	time.Sleep(50 * time.Millisecond)

	if body, _ := httpGet(t, fmt.Sprintf("http://localhost:%d/upsell/a", port1)); body != "server1" {
		t.Errorf("Server 1 returned wrong response: %s", body)
	}
	if body, _ := httpGet(t, fmt.Sprintf("http://localhost:%d/upsell/a", port2)); body != "server2" {
		t.Errorf("Server 2 returned wrong response: %s", body)
	}
}

// BenchmarkStartServer benchmarks server startup
func BenchmarkStartServer(b *testing.B) {
	deps := createTestDeps("0")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		listener, server, err := StartServer(deps)
		if err != nil {
			b.Fatalf("Failed to start server: %v", err)
		}
		server.Close()
		listener.Close()
	}
}

func TestWaitForShutdown_Signals(t *testing.T) {
	for _, sig := range []os.Signal{syscall.SIGTERM, syscall.SIGINT} {
		t.Run(sig.String(), func(t *testing.T) {
			// GIVEN
			listener, server, _ := startTestServer(t, createTestDeps("0"))
			defer listener.Close()

			shutdown := make(chan os.Signal, 1)

			// WHEN
			errCh := make(chan error, 1)
			go func() {
				errCh <- WaitForShutdown(server, shutdown, zap.NewNop())
			}()

			time.Sleep(50 * time.Millisecond)
			shutdown <- sig

			// THEN
			select {
			case err := <-errCh:
				if err != nil {
					t.Errorf("Expected nil error, got: %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("WaitForShutdown did not complete")
			}
		})
	}
}

func TestWaitForShutdown_WithActiveRequests(t *testing.T) {
	// GIVEN
	slowHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Write([]byte("done"))
	})

	deps := createTestDeps("0")
	deps.UpsellHandler = slowHandler

	listener, server, port := startTestServer(t, deps)
	defer listener.Close()

	time.Sleep(50 * time.Millisecond)
	requestComplete := make(chan bool, 1)
	go func() {
		resp, err := http.Get(fmt.Sprintf("http://localhost:%d/upsell/skins", port))
		if err == nil {
			resp.Body.Close()
		}
		requestComplete <- true
	}()

	time.Sleep(50 * time.Millisecond)

	shutdown := make(chan os.Signal, 1)

	// WHEN
	errCh := make(chan error, 1)
	go func() {
		errCh <- WaitForShutdown(server, shutdown, zap.NewNop())
	}()

	shutdown <- syscall.SIGTERM

	// THEN
	select {
	case <-requestComplete:
	case <-time.After(2 * time.Second):
		t.Error("Request did not complete in time")
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Expected nil error, got: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForShutdown did not complete")
	}
}

func TestWaitForShutdown_ForcesCloseOnTimeout(t *testing.T) {
	// GIVEN a handler that streams until the connection is torn down
	deps := createTestDeps("0")
	deps.UpsellHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})

	listener, server, port := startTestServer(t, deps)
	defer listener.Close()
	time.Sleep(50 * time.Millisecond)

	go func() {
		resp, err := http.Get(fmt.Sprintf("http://localhost:%d/upsell/diamonds/countdown", port))
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}()
	time.Sleep(100 * time.Millisecond)

	shutdown := make(chan os.Signal, 1)

	// WHEN
	errCh := make(chan error, 1)
	go func() {
		errCh <- WaitForShutdownWithTimeout(server, shutdown, 50*time.Millisecond, zap.NewNop())
	}()
	shutdown <- syscall.SIGTERM

	// THEN
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Expected nil error after forced close, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForShutdown did not complete")
	}
}

func TestRunServe_FullIntegration(t *testing.T) {
	// GIVEN
	deps := createTestDeps("0")
	deps.ServerConfig.SessionTTL = time.Hour
	deps.ServerConfig.PurgeInterval = time.Hour
	deps.Purger = &mockPurger{}

	// WHEN
	errCh := make(chan error, 1)
	go func() {
		errCh <- RunServe(deps)
	}()

	time.Sleep(100 * time.Millisecond)

	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatalf("Failed to get process: %v", err)
	}

	if err := p.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("Failed to send signal: %v", err)
	}

	// THEN
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Expected nil error, got: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not shut down within timeout")
	}
}

func TestRunServe_StartupFailure(t *testing.T) {
	// GIVEN
	deps := createTestDeps("99999") // Invalid port

	// WHEN
	err := RunServe(deps)

	// THEN
	if err == nil {
		t.Error("Expected error for invalid port, got nil")
	}
}

func TestWaitForShutdown_AlreadyClosedServer(t *testing.T) {
	// GIVEN
	listener, server, _ := startTestServer(t, createTestDeps("0"))
	listener.Close()
	server.Close()

	shutdown := make(chan os.Signal, 1)

	// WHEN
	errCh := make(chan error, 1)
	go func() {
		errCh <- WaitForShutdown(server, shutdown, zap.NewNop())
	}()

	time.Sleep(50 * time.Millisecond)
	shutdown <- syscall.SIGTERM

	// THEN
	select {
	case err := <-errCh:
		if err != nil {
			t.Logf("Got error (expected for closed server): %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForShutdown did not complete")
	}
}
