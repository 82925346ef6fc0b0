package security

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewSafeClient_Configured(t *testing.T) {
	guard := NewSSRFGuard()
	client := guard.NewSafeClient(5*time.Second, 1<<20)

	if client == nil {
		t.Fatal("NewSafeClient() returned nil")
	}
	if client.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", client.Timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Error("safeurlのTransportが設定されているべき")
	}
}

// httptestサーバーは127.0.0.1で起動するため、safeurlが接続をブロックする。
func TestNewSafeClient_BlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewSSRFGuard().NewSafeClient(2*time.Second, 0)
	if _, err := client.Get(ts.URL); err == nil {
		t.Fatal("ループバックへのリクエストはエラーになるべき")
	}
}

func TestLimitedBodyTransport_TruncatesBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, strings.Repeat("x", 100))
	}))
	defer ts.Close()

	client := &http.Client{Transport: &limitedBodyTransport{base: http.DefaultTransport, maxSize: 10}}
	resp, err := client.Get(ts.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if len(body) != 10 {
		t.Errorf("len(body) = %d, want 10", len(body))
	}
}

func TestValidateURL_PublicUpstreams(t *testing.T) {
	guard := NewSSRFGuard()

	for _, u := range []string{
		"https://howlongtobeat.com",
		"https://store.steampowered.com",
		"https://api.openai.com/v1",
		"http://93.184.216.34/",
	} {
		if err := guard.ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) = %v, want nil", u, err)
		}
	}
}

func TestValidateURL_Rejected(t *testing.T) {
	guard := NewSSRFGuard()

	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"no scheme", "not-a-url"},
		{"ftp", "ftp://example.com/"},
		{"file", "file:///etc/passwd"},
		{"private 10/8", "http://10.0.0.5/"},
		{"private 192.168/16", "https://192.168.1.10:8443/"},
		{"loopback", "http://127.0.0.1:8080/"},
		{"localhost", "http://localhost/"},
		{"metadata", "http://169.254.169.254/latest/meta-data/"},
		{"ipv6 loopback", "http://[::1]/"},
		{"zero address", "http://0.0.0.0/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := guard.ValidateURL(tt.url); err == nil {
				t.Errorf("ValidateURL(%q) should return error", tt.url)
			}
		})
	}
}

func TestOutboundGuardInterface(t *testing.T) {
	var _ OutboundGuard = NewSSRFGuard()
}
