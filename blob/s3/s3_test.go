package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/require"

	"github.com/PIP-Team-3/paper2notebook/blob"
)

type fakeClient struct {
	putErr     error
	putInput   *s3.PutObjectInput
	getOutput  *s3.GetObjectOutput
	getErr     error
	headErr    error
}

func (f *fakeClient) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putInput = params
	return &s3.PutObjectOutput{}, f.putErr
}

func (f *fakeClient) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return f.getOutput, f.getErr
}

func (f *fakeClient) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return &s3.HeadObjectOutput{}, f.headErr
}

type fakePresigner struct {
	url     string
	err     error
	expires time.Duration
}

func (f *fakePresigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*smithyhttp.PresignedHTTPRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	opts := &s3.PresignOptions{}
	for _, fn := range optFns {
		fn(opts)
	}
	f.expires = opts.Expires
	return &smithyhttp.PresignedHTTPRequest{URL: f.url}, nil
}

func TestNewFailsWithoutClient(t *testing.T) {
	_, err := New(Options{Bucket: "bucket"})
	require.Error(t, err)
}

func TestNewFailsWithoutBucket(t *testing.T) {
	_, err := New(Options{Client: &fakeClient{}})
	require.Error(t, err)
}

func TestPutSendsBucketKeyAndBody(t *testing.T) {
	client := &fakeClient{}
	store, err := New(Options{Client: client, Bucket: "bucket"})
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), "plans/p1/notebook.ipynb", []byte("data"), "application/json"))
	require.Equal(t, "bucket", *client.putInput.Bucket)
	require.Equal(t, "plans/p1/notebook.ipynb", *client.putInput.Key)
}

func TestPutWrapsClientError(t *testing.T) {
	client := &fakeClient{putErr: errors.New("boom")}
	store, err := New(Options{Client: client, Bucket: "bucket"})
	require.NoError(t, err)

	err = store.Put(context.Background(), "path", []byte("data"), "")
	require.Error(t, err)
}

func TestGetReadsBodyOnSuccess(t *testing.T) {
	client := &fakeClient{getOutput: &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("hello"))}}
	store, err := New(Options{Client: client, Bucket: "bucket"})
	require.NoError(t, err)

	data, err := store.Get(context.Background(), "path")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestGetWrapsNoSuchKeyAsNotFound(t *testing.T) {
	client := &fakeClient{getErr: &types.NoSuchKey{}}
	store, err := New(Options{Client: client, Bucket: "bucket"})
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "path")
	require.Error(t, err)
	var nf os404
	require.True(t, errors.As(err, &nf))
}

func TestExistsReturnsFalseOnNotFound(t *testing.T) {
	client := &fakeClient{headErr: &types.NotFound{}}
	store, err := New(Options{Client: client, Bucket: "bucket"})
	require.NoError(t, err)

	ok, err := store.Exists(context.Background(), "path")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExistsReturnsTrueWhenHeadSucceeds(t *testing.T) {
	client := &fakeClient{}
	store, err := New(Options{Client: client, Bucket: "bucket"})
	require.NoError(t, err)

	ok, err := store.Exists(context.Background(), "path")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSignedURLFailsWithoutPresigner(t *testing.T) {
	store, err := New(Options{Client: &fakeClient{}, Bucket: "bucket"})
	require.NoError(t, err)

	_, err = store.SignedURL(context.Background(), "path", time.Minute)
	require.Error(t, err)
}

func TestSignedURLClampsToMaxTTL(t *testing.T) {
	presigner := &fakePresigner{url: "https://example.com/signed"}
	store, err := New(Options{Client: &fakeClient{}, Presigner: presigner, Bucket: "bucket"})
	require.NoError(t, err)

	url, err := store.SignedURL(context.Background(), "path", 10*time.Hour)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/signed", url)
	require.Equal(t, blob.MaxSignedURLTTL, presigner.expires)
}

func TestSignedURLDefaultsTTLWhenNonPositive(t *testing.T) {
	presigner := &fakePresigner{url: "https://example.com/signed"}
	store, err := New(Options{Client: &fakeClient{}, Presigner: presigner, Bucket: "bucket"})
	require.NoError(t, err)

	_, err = store.SignedURL(context.Background(), "path", 0)
	require.NoError(t, err)
	require.Equal(t, blob.DefaultSignedURLTTL, presigner.expires)
}

func TestSignedURLWrapsPresignerError(t *testing.T) {
	presigner := &fakePresigner{err: errors.New("denied")}
	store, err := New(Options{Client: &fakeClient{}, Presigner: presigner, Bucket: "bucket"})
	require.NoError(t, err)

	_, err = store.SignedURL(context.Background(), "path", time.Minute)
	require.Error(t, err)
}

var _ blob.Store = (*Store)(nil)
