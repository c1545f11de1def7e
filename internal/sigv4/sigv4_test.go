package sigv4_test

import (
	"bytes"
	"encoding/hex"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/JuribaDev/juriba-storage/internal/sigv4"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/stretchr/testify/require"
)

const (
	testAccessKeyID     = "AKIDEXAMPLE"
	testSecretAccessKey = "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY"
	testRegion          = "us-east-1"
	testObjectURL       = "http://localhost:9000/blobs/123e4567-e89b-12d3-a456-426614174000"
)

var signingTime = time.Date(2025, 1, 1, 12, 30, 45, 0, time.UTC)

func newSigner() *sigv4.Signer {
	s := sigv4.NewSigner(sigv4.Credentials{
		AccessKeyID:     testAccessKeyID,
		SecretAccessKey: testSecretAccessKey,
	}, testRegion)
	s.Now = func() time.Time { return signingTime }
	return s
}

func newPut(t *testing.T, body []byte) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPut, testObjectURL, bytes.NewReader(body))
	require.NoError(t, err, "creating PUT request")
	req.Header.Set("Content-Type", "application/octet-stream")
	return req
}

func newGet(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, testObjectURL, nil)
	require.NoError(t, err, "creating GET request")
	return req
}

func TestSigningKeyMatchesPublishedExample(t *testing.T) {
	t.Parallel()

	key := sigv4.SigningKey(testSecretAccessKey, "20120215", "us-east-1", "iam")
	require.Equal(t, "f4780e2d9f65fa895f9c67b32ce1baf0b0d8a43505a000a1a9e090d414db404d", hex.EncodeToString(key))
}

func TestEmptyPayloadHash(t *testing.T) {
	t.Parallel()

	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", sigv4.EmptyPayloadHash)
}

func TestSignSetsRequiredHeaders(t *testing.T) {
	t.Parallel()

	req := newGet(t)
	require.NoError(t, newSigner().Sign(req, nil))

	require.Equal(t, "localhost:9000", req.Host)
	require.Equal(t, "20250101T123045Z", req.Header.Get("X-Amz-Date"))
	require.Equal(t, sigv4.EmptyPayloadHash, req.Header.Get("X-Amz-Content-Sha256"))

	auth := req.Header.Get("Authorization")
	require.True(t, strings.HasPrefix(auth,
		"AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20250101/us-east-1/s3/aws4_request, SignedHeaders=host;x-amz-content-sha256;x-amz-date, Signature="),
		"unexpected authorization header %q", auth)
}

func TestCanonicalRequestLayout(t *testing.T) {
	t.Parallel()

	req := newGet(t)
	req.Host = "localhost:9000"
	req.Header.Set("X-Amz-Date", "20250101T123045Z")
	req.Header.Set("X-Amz-Content-Sha256", sigv4.EmptyPayloadHash)

	names := sigv4.SignedHeaderNames(req)
	require.Equal(t, []string{"host", "x-amz-content-sha256", "x-amz-date"}, names)

	want := strings.Join([]string{
		"GET",
		"/blobs/123e4567-e89b-12d3-a456-426614174000",
		"",
		"host:localhost:9000",
		"x-amz-content-sha256:" + sigv4.EmptyPayloadHash,
		"x-amz-date:20250101T123045Z",
		"",
		"host;x-amz-content-sha256;x-amz-date",
		sigv4.EmptyPayloadHash,
	}, "\n")
	require.Equal(t, want, sigv4.BuildCanonicalRequest(req, names, sigv4.EmptyPayloadHash))
}

func TestCanonicalRequestTrimsHeaderValues(t *testing.T) {
	t.Parallel()

	req := newPut(t, []byte("abc"))
	req.Header.Set("Content-Type", "  application/octet-stream  ")

	names := sigv4.SignedHeaderNames(req)
	require.Equal(t, []string{"content-length", "content-type", "host"}, names)

	canonical := sigv4.BuildCanonicalRequest(req, names, "hash")
	require.Contains(t, canonical, "\ncontent-length:3\ncontent-type:application/octet-stream\nhost:localhost:9000\n")
}

func TestCanonicalURIDefaultsToSlash(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPut, "http://localhost:9000", nil)
	require.NoError(t, err)
	require.Equal(t, "/", sigv4.CanonicalURI(req.URL))
}

func TestSignIsDeterministic(t *testing.T) {
	t.Parallel()

	body := []byte("test data")
	first := newPut(t, body)
	second := newPut(t, body)

	require.NoError(t, newSigner().Sign(first, body))
	require.NoError(t, newSigner().Sign(second, body))
	require.Equal(t, first.Header.Get("Authorization"), second.Header.Get("Authorization"))

	// Signing the same request again replaces the previous signature rather
	// than folding it into the canonical headers.
	require.NoError(t, newSigner().Sign(first, body))
	require.Equal(t, second.Header.Get("Authorization"), first.Header.Get("Authorization"))
}

func TestSignChangesWithInputs(t *testing.T) {
	t.Parallel()

	body := []byte("test data")
	base := newPut(t, body)
	require.NoError(t, newSigner().Sign(base, body))

	otherBody := newPut(t, []byte("test datb"))
	require.NoError(t, newSigner().Sign(otherBody, []byte("test datb")))
	require.NotEqual(t, base.Header.Get("Authorization"), otherBody.Header.Get("Authorization"))

	later := newPut(t, body)
	s := newSigner()
	s.Now = func() time.Time { return signingTime.Add(time.Second) }
	require.NoError(t, s.Sign(later, body))
	require.NotEqual(t, base.Header.Get("Authorization"), later.Header.Get("Authorization"))
}

func TestSignMatchesAWSSDK(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  func(t *testing.T) (*http.Request, []byte)
	}{
		{
			name: "get without body",
			req: func(t *testing.T) (*http.Request, []byte) {
				return newGet(t), nil
			},
		},
		{
			name: "put with body",
			req: func(t *testing.T) (*http.Request, []byte) {
				body := []byte("hello object store")
				return newPut(t, body), body
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ours, body := tc.req(t)
			require.NoError(t, newSigner().Sign(ours, body))

			theirs, _ := tc.req(t)
			payloadHash := sigv4.HashHex(body)
			theirs.Header.Set("X-Amz-Content-Sha256", payloadHash)
			err := v4.NewSigner().SignHTTP(t.Context(), aws.Credentials{
				AccessKeyID:     testAccessKeyID,
				SecretAccessKey: testSecretAccessKey,
			}, theirs, payloadHash, "s3", testRegion, signingTime)
			require.NoError(t, err, "aws sdk signing")

			require.Equal(t, theirs.Header.Get("Authorization"), ours.Header.Get("Authorization"))
		})
	}
}

func TestVerifierAcceptsSignedRequest(t *testing.T) {
	t.Parallel()

	body := []byte("payload")
	req := newPut(t, body)
	require.NoError(t, newSigner().Sign(req, body))

	v := &sigv4.Verifier{
		Credentials: sigv4.Credentials{AccessKeyID: testAccessKeyID, SecretAccessKey: testSecretAccessKey},
		Region:      testRegion,
	}
	accessKey, err := v.Verify(req)
	require.NoError(t, err)
	require.Equal(t, testAccessKeyID, accessKey)
}

func TestVerifierRejectsTamperedRequests(t *testing.T) {
	t.Parallel()

	v := &sigv4.Verifier{
		Credentials: sigv4.Credentials{AccessKeyID: testAccessKeyID, SecretAccessKey: testSecretAccessKey},
		Region:      testRegion,
	}

	t.Run("corrupted signature", func(t *testing.T) {
		req := newGet(t)
		require.NoError(t, newSigner().Sign(req, nil))
		req.Header.Set("Authorization", req.Header.Get("Authorization")+"0")

		_, err := v.Verify(req)
		require.ErrorIs(t, err, sigv4.ErrSignatureMismatch)
	})

	t.Run("modified signed header", func(t *testing.T) {
		req := newPut(t, []byte("abc"))
		require.NoError(t, newSigner().Sign(req, []byte("abc")))
		req.Header.Set("Content-Type", "text/plain")

		_, err := v.Verify(req)
		require.ErrorIs(t, err, sigv4.ErrSignatureMismatch)
	})

	t.Run("wrong secret", func(t *testing.T) {
		req := newGet(t)
		s := newSigner()
		s.Credentials.SecretAccessKey = "not-the-secret"
		require.NoError(t, s.Sign(req, nil))

		_, err := v.Verify(req)
		require.ErrorIs(t, err, sigv4.ErrSignatureMismatch)
	})

	t.Run("unknown access key", func(t *testing.T) {
		req := newGet(t)
		s := newSigner()
		s.Credentials.AccessKeyID = "someone-else"
		require.NoError(t, s.Sign(req, nil))

		_, err := v.Verify(req)
		require.ErrorIs(t, err, sigv4.ErrUnknownAccessKey)
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := v.Verify(newGet(t))
		require.ErrorIs(t, err, sigv4.ErrMissingAuth)
	})
}

func TestParseAuthorization(t *testing.T) {
	t.Parallel()

	auth, err := sigv4.ParseAuthorization(sigv4.AuthorizationHeader(
		"AKID", "20250101/eu-west-1/s3/aws4_request",
		[]string{"host", "x-amz-date"}, "abcdef",
	))
	require.NoError(t, err)
	require.Equal(t, &sigv4.Authorization{
		AccessKeyID:   "AKID",
		DateStamp:     "20250101",
		Region:        "eu-west-1",
		Service:       "s3",
		SignedHeaders: []string{"host", "x-amz-date"},
		Signature:     "abcdef",
	}, auth)

	_, err = sigv4.ParseAuthorization("Bearer token")
	require.ErrorIs(t, err, sigv4.ErrMissingAuth)
}
