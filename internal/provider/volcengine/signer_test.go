package volcengine

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

var testCreds = credentials{
	AccessKeyID:     "AKTEST",
	SecretAccessKey: "secret",
}

func testQuery() url.Values {
	q := url.Values{}
	q.Set("Action", actionCVProcess)
	q.Set("Version", apiVersion)
	return q
}

func TestSignRequestHeaders(t *testing.T) {
	at := time.Date(2024, 12, 24, 12, 0, 0, 0, time.UTC)
	headers := signRequest("POST", "/", testQuery(), "{}", at, testCreds)

	if got := headers["X-Date"]; got != "20241224T120000Z" {
		t.Errorf("X-Date = %q, want 20241224T120000Z", got)
	}
	if got := headers["Host"]; got != "visual.volcengineapi.com" {
		t.Errorf("Host = %q", got)
	}
	if got := headers["Content-Type"]; got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}

	// sha256 of the literal payload "{}"
	want := "44136fa355b3678a1146ad16f7e8649e94fb4fc21fe77e8310c060f61caaff8a"
	if got := headers["X-Content-Sha256"]; got != want {
		t.Errorf("X-Content-Sha256 = %q, want %q", got, want)
	}
}

func TestSignRequestAuthorizationFormat(t *testing.T) {
	at := time.Date(2024, 12, 24, 12, 0, 0, 0, time.UTC)
	auth := signRequest("POST", "/", testQuery(), "{}", at, testCreds)["Authorization"]

	wantPrefix := "HMAC-SHA256 Credential=AKTEST/20241224/cn-north-1/cv/request, " +
		"SignedHeaders=content-type;host;x-content-sha256;x-date, Signature="
	if !strings.HasPrefix(auth, wantPrefix) {
		t.Fatalf("Authorization = %q, want prefix %q", auth, wantPrefix)
	}
	sig := strings.TrimPrefix(auth, wantPrefix)
	if len(sig) != 64 {
		t.Errorf("signature length = %d, want 64 hex chars", len(sig))
	}
	for _, c := range sig {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Fatalf("signature contains non-hex char %q", c)
		}
	}
}

func TestSignRequestDeterministic(t *testing.T) {
	at := time.Date(2024, 12, 24, 12, 0, 0, 0, time.UTC)
	a := signRequest("POST", "/", testQuery(), `{"prompt":"x"}`, at, testCreds)
	b := signRequest("POST", "/", testQuery(), `{"prompt":"x"}`, at, testCreds)
	if a["Authorization"] != b["Authorization"] {
		t.Error("signature differs for identical inputs")
	}
}

func TestSignRequestSensitivity(t *testing.T) {
	at := time.Date(2024, 12, 24, 12, 0, 0, 0, time.UTC)
	base := signRequest("POST", "/", testQuery(), "{}", at, testCreds)["Authorization"]

	tests := []struct {
		name string
		auth string
	}{
		{"body", signRequest("POST", "/", testQuery(), `{"a":1}`, at, testCreds)["Authorization"]},
		{"time", signRequest("POST", "/", testQuery(), "{}", at.Add(time.Second), testCreds)["Authorization"]},
		{"secret", signRequest("POST", "/", testQuery(), "{}", at, credentials{AccessKeyID: "AKTEST", SecretAccessKey: "other"})["Authorization"]},
		{"query", signRequest("POST", "/", url.Values{"Action": {"Other"}}, "{}", at, testCreds)["Authorization"]},
	}
	for _, tt := range tests {
		if tt.auth == base {
			t.Errorf("signature unchanged when %s changes", tt.name)
		}
	}
}

func TestSignRequestUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	at := time.Date(2024, 12, 24, 20, 0, 0, 0, loc)
	headers := signRequest("POST", "/", testQuery(), "{}", at, testCreds)
	if got := headers["X-Date"]; got != "20241224T120000Z" {
		t.Errorf("X-Date = %q, want 20241224T120000Z", got)
	}
}
