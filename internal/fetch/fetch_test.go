package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/a.mp3", r.URL.Path)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3"))
	}))
	defer srv.Close()

	p, err := NewHTTPFetcher().Fetch(context.Background(), srv.URL+"/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3"), p.Data)
	assert.Equal(t, "audio/mpeg", p.ContentType)
}

func TestHTTPFetcher_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewHTTPFetcher().Fetch(context.Background(), srv.URL+"/a.mp3")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, srv.URL+"/a.mp3", statusErr.URL)
}

func TestHTTPFetcher_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPFetcher().Fetch(context.Background(), url+"/a.mp3")
	assert.Error(t, err)
}

func TestHTTPFetcher_MaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 64))
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(WithMaxBytes(16)).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")

	p, err := NewHTTPFetcher(WithMaxBytes(64)).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, p.Data, 64)
}

type fakeObjects struct {
	objects map[string]string
	input   *s3.GetObjectInput
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.input = in
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "not found"}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(strings.NewReader(body)),
		ContentType: aws.String("audio/ogg"),
	}, nil
}

func TestS3Fetcher(t *testing.T) {
	client := &fakeObjects{objects: map[string]string{"tts/cards/c1.ogg": "OggS"}}
	f := NewS3Fetcher(client, 0)

	p, err := f.Fetch(context.Background(), "s3://tts/cards/c1.ogg")
	require.NoError(t, err)
	assert.Equal(t, []byte("OggS"), p.Data)
	assert.Equal(t, "audio/ogg", p.ContentType)
	assert.Equal(t, "cards/c1.ogg", aws.ToString(client.input.Key))

	_, err = f.Fetch(context.Background(), "s3://tts/cards/missing.ogg")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	_, err = f.Fetch(context.Background(), "s3://tts")
	assert.Error(t, err)
}

type stubFetcher struct{ name string }

func (s stubFetcher) Fetch(context.Context, string) (*Payload, error) {
	return &Payload{Data: []byte(s.name)}, nil
}

func TestMux(t *testing.T) {
	m := NewMux().
		Handle("https", stubFetcher{"http"}).
		Handle("S3", stubFetcher{"s3"})

	p, err := m.Fetch(context.Background(), "https://x/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, "http", string(p.Data))

	p, err = m.Fetch(context.Background(), "s3://bucket/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, "s3", string(p.Data))

	_, err = m.Fetch(context.Background(), "ftp://x/a.mp3")
	assert.True(t, errors.Is(err, ErrUnsupportedScheme))
}
