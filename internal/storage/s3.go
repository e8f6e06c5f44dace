package storage

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"path"
	"strings"

	"permohonan-service/internal/common/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps blobs in a bucket under an optional key prefix. Locators are
// the object keys.
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3Store) objectKey(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if s.prefix == "" || strings.HasPrefix(cleaned, s.prefix+"/") {
		return cleaned, nil
	}
	return path.Join(s.prefix, cleaned), nil
}

func (s *S3Store) Put(ctx context.Context, key string, content []byte) (string, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return "", errors.NewStorageError("put", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		return "", errors.NewStorageError("put", err)
	}
	return objectKey, nil
}

func (s *S3Store) Get(ctx context.Context, locator string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(locator),
	})
	if isNotFound(err) {
		return nil, errors.NewNotFoundError("blob", locator)
	}
	if err != nil {
		return nil, errors.NewStorageError("get", err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.NewStorageError("get", err)
	}
	return b, nil
}

func (s *S3Store) Exists(ctx context.Context, locator string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(locator),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.NewStorageError("exists", err)
	}
	return true, nil
}

// Delete probes with HeadObject first since DeleteObject succeeds for absent keys.
func (s *S3Store) Delete(ctx context.Context, locator string) (bool, error) {
	exists, err := s.Exists(ctx, locator)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(locator),
	})
	if err != nil {
		return false, errors.NewStorageError("delete", err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return stderrors.As(err, &nf) || stderrors.As(err, &nsk)
}
