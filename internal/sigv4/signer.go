package sigv4

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// ServiceS3 is the only service this package signs for.
const ServiceS3 = "s3"

// Credentials identify the signing principal.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// Signer adds SigV4 headers to outgoing requests. The zero Now uses the wall
// clock; tests pin it to get reproducible signatures.
type Signer struct {
	Credentials Credentials
	Region      string
	Service     string
	Now         func() time.Time
}

// NewSigner returns a Signer for the S3 service in region.
func NewSigner(creds Credentials, region string) *Signer {
	return &Signer{
		Credentials: creds,
		Region:      region,
		Service:     ServiceS3,
	}
}

func (s *Signer) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Signer) service() string {
	if s.Service == "" {
		return ServiceS3
	}
	return s.Service
}

// Sign sets Host, X-Amz-Date, X-Amz-Content-Sha256 and Authorization on r.
// body must be the exact bytes that will be sent; nil means no body.
func (s *Signer) Sign(r *http.Request, body []byte) error {
	return s.SignAt(r, body, s.now())
}

// SignAt signs r as if the current instant were t.
func (s *Signer) SignAt(r *http.Request, body []byte, t time.Time) error {
	if r == nil || r.URL == nil {
		return errors.New("sigv4: request has no URL")
	}
	if s.Region == "" {
		return errors.New("sigv4: region must not be empty")
	}

	t = t.UTC()
	amzDate := t.Format(TimeFormat)
	dateStamp := t.Format(DateStampFormat)
	payloadHash := HashHex(body)

	if r.Host == "" {
		r.Host = r.URL.Host
	}
	r.Header.Del(HeaderAuthorization)
	r.Header.Set(HeaderDate, amzDate)
	r.Header.Set(HeaderContentSHA256, payloadHash)

	signedHeaders := SignedHeaderNames(r)
	canonicalRequest := BuildCanonicalRequest(r, signedHeaders, payloadHash)

	scope := CredentialScope(dateStamp, s.Region, s.service())
	stringToSign := StringToSign(amzDate, scope, canonicalRequest)
	signingKey := SigningKey(s.Credentials.SecretAccessKey, dateStamp, s.Region, s.service())
	signature := hexEncode(HmacSHA256(signingKey, stringToSign))

	r.Header.Set(HeaderAuthorization, AuthorizationHeader(s.Credentials.AccessKeyID, scope, signedHeaders, signature))
	return nil
}

// AuthorizationHeader formats the final Authorization header value.
func AuthorizationHeader(accessKeyID, credentialScope string, signedHeaders []string, signature string) string {
	return AuthPrefix +
		"Credential=" + accessKeyID + "/" + credentialScope + ", " +
		"SignedHeaders=" + strings.Join(signedHeaders, ";") + ", " +
		"Signature=" + signature
}
