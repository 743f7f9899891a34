package archive

import (
	"context"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listResponse = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>archives</Name>
  <Prefix></Prefix>
  <KeyCount>2</KeyCount>
  <MaxKeys>1000</MaxKeys>
  <IsTruncated>false</IsTruncated>
  <Contents>
    <Key>jvm-shop/shop_auto_hourly_20240301T120000Z.jfr</Key>
    <LastModified>2024-03-01T12:00:01.000Z</LastModified>
    <Size>10</Size>
  </Contents>
  <Contents>
    <Key>jvm-cart/cart_auto_hourly_20240301T120000Z.jfr</Key>
    <LastModified>2024-03-01T12:00:02.000Z</LastModified>
    <Size>20</Size>
  </Contents>
</ListBucketResult>`

func newTestS3Store(transport *httpmock.MockTransport) *S3Store {
	client := s3.New(s3.Options{
		Region:           "us-east-1",
		BaseEndpoint:     aws.String("http://s3.test"),
		UsePathStyle:     true,
		Credentials:      credentials.NewStaticCredentialsProvider("key", "secret", ""),
		HTTPClient:       &http.Client{Transport: transport},
		RetryMaxAttempts: 1,
	})

	return newS3Store(client, "archives")
}

func TestS3Store_List(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterRegexpResponder(
		http.MethodGet,
		regexp.MustCompile(`^http://s3\.test/archives/?\?.*list-type=2`),
		httpmock.NewStringResponder(http.StatusOK, listResponse),
	)

	objects, err := newTestS3Store(transport).List(context.Background(), "")

	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "jvm-shop/shop_auto_hourly_20240301T120000Z.jfr", objects[0].Key)
	assert.Equal(t, int64(10), objects[0].Size)
	assert.True(t, objects[0].LastModified.Equal(time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC)))
}

func TestS3Store_Exists(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterRegexpResponder(
		http.MethodHead,
		regexp.MustCompile(`^http://s3\.test/archives/jvm-shop/present\.jfr`),
		httpmock.NewStringResponder(http.StatusOK, ""),
	)
	transport.RegisterRegexpResponder(
		http.MethodHead,
		regexp.MustCompile(`^http://s3\.test/archives/jvm-shop/absent\.jfr`),
		httpmock.NewStringResponder(http.StatusNotFound, ""),
	)

	store := newTestS3Store(transport)

	exists, err := store.Exists(context.Background(), "jvm-shop/present.jfr")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists(context.Background(), "jvm-shop/absent.jfr")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestS3Store_Delete(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterRegexpResponder(
		http.MethodDelete,
		regexp.MustCompile(`^http://s3\.test/archives/jvm-shop/old\.jfr`),
		httpmock.NewStringResponder(http.StatusNoContent, ""),
	)

	err := newTestS3Store(transport).Delete(context.Background(), "jvm-shop/old.jfr")

	assert.NoError(t, err)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}
