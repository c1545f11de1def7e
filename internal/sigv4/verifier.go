package sigv4

import (
	"crypto/hmac"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrMissingAuth        = errors.New("sigv4: missing or malformed authorization header")
	ErrUnknownAccessKey   = errors.New("sigv4: unknown access key")
	ErrSignatureMismatch  = errors.New("sigv4: signature does not match")
	ErrIncompleteRequest  = errors.New("sigv4: request lacks signed date or payload hash")
	ErrUnsupportedService = errors.New("sigv4: credential scope names another service or region")
)

// Verifier recomputes the signature of an incoming request from the
// credentials it knows about and compares it with the one presented.
type Verifier struct {
	Credentials Credentials
	Region      string
}

// Authorization is the parsed form of a SigV4 Authorization header.
type Authorization struct {
	AccessKeyID   string
	DateStamp     string
	Region        string
	Service       string
	SignedHeaders []string
	Signature     string
}

// ParseAuthorization splits a SigV4 Authorization header into its parts.
func ParseAuthorization(header string) (*Authorization, error) {
	if !strings.HasPrefix(header, AuthPrefix) {
		return nil, ErrMissingAuth
	}

	params := strings.TrimSpace(strings.TrimPrefix(header, AuthPrefix))
	kv := make(map[string]string, 3)
	for _, p := range strings.Split(params, ",") {
		p = strings.TrimSpace(p)
		idx := strings.IndexByte(p, '=')
		if idx <= 0 {
			continue
		}
		kv[p[:idx]] = strings.TrimSpace(p[idx+1:])
	}

	credStr, okCred := kv["Credential"]
	signedHeadersStr, okSigned := kv["SignedHeaders"]
	signature, okSig := kv["Signature"]
	if !okCred || !okSigned || !okSig {
		return nil, ErrMissingAuth
	}

	credParts := strings.Split(credStr, "/")
	if len(credParts) != 5 || credParts[4] != ScopeSuffix {
		return nil, ErrMissingAuth
	}

	return &Authorization{
		AccessKeyID:   credParts[0],
		DateStamp:     credParts[1],
		Region:        credParts[2],
		Service:       credParts[3],
		SignedHeaders: strings.Split(signedHeadersStr, ";"),
		Signature:     signature,
	}, nil
}

// Verify checks r and returns the access key that signed it.
func (v *Verifier) Verify(r *http.Request) (string, error) {
	auth, err := ParseAuthorization(r.Header.Get(HeaderAuthorization))
	if err != nil {
		return "", err
	}

	if auth.AccessKeyID != v.Credentials.AccessKeyID {
		return "", ErrUnknownAccessKey
	}
	if auth.Service != ServiceS3 || (v.Region != "" && auth.Region != v.Region) {
		return "", ErrUnsupportedService
	}

	amzDate := r.Header.Get(HeaderDate)
	payloadHash := r.Header.Get(HeaderContentSHA256)
	if amzDate == "" || payloadHash == "" {
		return "", ErrIncompleteRequest
	}
	if !strings.HasPrefix(amzDate, auth.DateStamp) {
		return "", fmt.Errorf("%w: date %s outside scope %s", ErrSignatureMismatch, amzDate, auth.DateStamp)
	}

	canonicalRequest := BuildCanonicalRequest(r, auth.SignedHeaders, payloadHash)
	scope := CredentialScope(auth.DateStamp, auth.Region, auth.Service)
	stringToSign := StringToSign(amzDate, scope, canonicalRequest)
	signingKey := SigningKey(v.Credentials.SecretAccessKey, auth.DateStamp, auth.Region, auth.Service)
	computed := HmacSHA256(signingKey, stringToSign)

	presented, err := hex.DecodeString(auth.Signature)
	if err != nil {
		return "", ErrSignatureMismatch
	}
	if !hmac.Equal(computed, presented) {
		return "", ErrSignatureMismatch
	}

	return auth.AccessKeyID, nil
}

func hexEncode(b []byte) string {
	return hex.EncodeToString(b)
}
