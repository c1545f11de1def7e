// Package sigv4 implements AWS Signature Version 4 request signing for the
// S3 service from primitives, together with a verifier that checks signed
// requests the same way an S3-compatible server would.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	Algorithm   = "AWS4-HMAC-SHA256"
	AuthPrefix  = Algorithm + " "
	ScopeSuffix = "aws4_request"

	TimeFormat      = "20060102T150405Z"
	DateStampFormat = "20060102"

	HeaderDate          = "X-Amz-Date"
	HeaderContentSHA256 = "X-Amz-Content-Sha256"
	HeaderAuthorization = "Authorization"
)

// EmptyPayloadHash is the hex SHA-256 of an empty body.
var EmptyPayloadHash = HashHex(nil)

func awsURLEncode(s string, encodeSlash bool) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.' || c == '~' {
			b.WriteByte(c)
			continue
		}
		if c == '/' && !encodeSlash {
			b.WriteByte(c)
			continue
		}
		b.WriteString("%")
		b.WriteString(strings.ToUpper(hex.EncodeToString([]byte{c})))
	}
	return b.String()
}

// CanonicalURI encodes the decoded request path once, as S3 expects.
func CanonicalURI(u *url.URL) string {
	p := u.Path
	if p == "" {
		return "/"
	}
	return awsURLEncode(p, false)
}

// CanonicalQueryString sorts parameters by key then value and encodes both.
func CanonicalQueryString(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}

	values := u.Query()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for _, v := range vs {
			parts = append(parts, awsURLEncode(k, true)+"="+awsURLEncode(v, true))
		}
	}

	return strings.Join(parts, "&")
}

func canonicalHeaderValue(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	return strings.Join(strings.Fields(v), " ")
}

// headerValue resolves a lower-cased header name against the request. Host
// and Content-Length live outside r.Header in net/http.
func headerValue(r *http.Request, name string) string {
	switch name {
	case "host":
		if r.Host != "" {
			return r.Host
		}
		return r.URL.Host
	case "content-length":
		if v := r.Header.Get(name); v != "" {
			return v
		}
		if r.ContentLength > 0 {
			return strconv.FormatInt(r.ContentLength, 10)
		}
		return ""
	default:
		return strings.Join(r.Header.Values(name), ",")
	}
}

// SignedHeaderNames returns the lower-cased, sorted names of every header the
// request will transmit, excluding Authorization. Host is always present and
// Content-Length is included when the request carries a body.
func SignedHeaderNames(r *http.Request) []string {
	seen := map[string]struct{}{"host": {}}
	for name := range r.Header {
		lower := strings.ToLower(name)
		if lower == "authorization" {
			continue
		}
		seen[lower] = struct{}{}
	}
	if r.ContentLength > 0 {
		seen["content-length"] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildCanonicalRequest joins method, canonical URI, canonical query string,
// canonical headers, the signed header list and the payload hash with
// newlines. signedHeaderNames are used in the order given.
func BuildCanonicalRequest(r *http.Request, signedHeaderNames []string, payloadHash string) string {
	lowerNames := make([]string, 0, len(signedHeaderNames))
	for _, h := range signedHeaderNames {
		name := strings.ToLower(strings.TrimSpace(h))
		if name == "" {
			continue
		}
		lowerNames = append(lowerNames, name)
	}

	var hdrBuilder strings.Builder
	for _, name := range lowerNames {
		hdrBuilder.WriteString(name)
		hdrBuilder.WriteString(":")
		hdrBuilder.WriteString(canonicalHeaderValue(headerValue(r, name)))
		hdrBuilder.WriteString("\n")
	}

	return strings.Join([]string{
		r.Method,
		CanonicalURI(r.URL),
		CanonicalQueryString(r.URL),
		hdrBuilder.String(),
		strings.Join(lowerNames, ";"),
		payloadHash,
	}, "\n")
}

// CredentialScope returns "<date>/<region>/<service>/aws4_request".
func CredentialScope(dateStamp, region, service string) string {
	return strings.Join([]string{dateStamp, region, service, ScopeSuffix}, "/")
}

// StringToSign builds the second signing stage from the canonical request.
func StringToSign(amzDate, credentialScope, canonicalRequest string) string {
	return strings.Join([]string{
		Algorithm,
		amzDate,
		credentialScope,
		HashHex([]byte(canonicalRequest)),
	}, "\n")
}

// SigningKey derives the per-day, per-region, per-service key.
func SigningKey(secretAccessKey, dateStamp, region, service string) []byte {
	kDate := HmacSHA256([]byte("AWS4"+secretAccessKey), dateStamp)
	kRegion := HmacSHA256(kDate, region)
	kService := HmacSHA256(kRegion, service)
	return HmacSHA256(kService, ScopeSuffix)
}

func HmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

// HashHex returns the lowercase hex SHA-256 of data.
func HashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
