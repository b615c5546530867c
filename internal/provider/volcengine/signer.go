package volcengine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	baseURL = "https://visual.volcengineapi.com"
	host    = "visual.volcengineapi.com"
	region  = "cn-north-1"
	service = "cv"

	apiVersion      = "2022-08-31"
	actionCVProcess = "CVProcess"

	signingAlgorithm = "HMAC-SHA256"
)

// credentials holds the long-lived access key pair used to derive
// per-request signing keys.
type credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

func hmacSHA256(key []byte, msg string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(msg))
	return h.Sum(nil)
}

func sha256Hex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// signRequest computes the signed headers for one request attempt.
// Each attempt must be signed with a fresh timestamp, so callers pass
// the current time rather than caching the result.
func signRequest(method, canonicalURI string, query url.Values, body string, t time.Time, creds credentials) map[string]string {
	t = t.UTC()
	amzDate := t.Format("20060102T150405Z")
	dateStamp := t.Format("20060102")

	payloadHash := sha256Hex(body)
	contentType := "application/json"

	headers := map[string]string{
		"content-type":     contentType,
		"host":             host,
		"x-content-sha256": payloadHash,
		"x-date":           amzDate,
	}
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var canonicalHeaders strings.Builder
	for _, name := range names {
		canonicalHeaders.WriteString(name)
		canonicalHeaders.WriteByte(':')
		canonicalHeaders.WriteString(headers[name])
		canonicalHeaders.WriteByte('\n')
	}
	signedHeaders := strings.Join(names, ";")

	canonicalRequest := strings.Join([]string{
		method,
		canonicalURI,
		query.Encode(),
		canonicalHeaders.String(),
		signedHeaders,
		payloadHash,
	}, "\n")

	scope := fmt.Sprintf("%s/%s/%s/request", dateStamp, region, service)
	stringToSign := strings.Join([]string{
		signingAlgorithm,
		amzDate,
		scope,
		sha256Hex(canonicalRequest),
	}, "\n")

	kDate := hmacSHA256([]byte(creds.SecretAccessKey), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	kSigning := hmacSHA256(kService, "request")
	signature := hex.EncodeToString(hmacSHA256(kSigning, stringToSign))

	authorization := fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		signingAlgorithm, creds.AccessKeyID, scope, signedHeaders, signature)

	return map[string]string{
		"Content-Type":     contentType,
		"Host":             host,
		"X-Content-Sha256": payloadHash,
		"X-Date":           amzDate,
		"Authorization":    authorization,
	}
}
