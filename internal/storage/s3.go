package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// S3Store implements MediaStore against an S3 bucket.
type S3Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
}

var _ MediaStore = (*S3Store)(nil)

// NewS3Store creates an S3-backed media store.
func NewS3Store(client *s3.Client, bucket string) *S3Store {
	return &S3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
	}
}

// Exists reports whether the object is present. A NotFound response is not
// an error; anything else is.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket, Key: &key,
	})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("HeadObject %s: %w", key, err)
	}
	return true, nil
}

// Download fetches an object into memory.
func (s *S3Store) Download(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	log.Debug().Str("bucket", s.bucket).Str("key", key).Msg("Downloading from S3")
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket, Key: &key,
	})
	if err != nil {
		return nil, fmt.Errorf("S3 GetObject %s: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// DownloadToFile fetches an object to a local path.
func (s *S3Store) DownloadToFile(ctx context.Context, key, localPath string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	log.Debug().Str("bucket", s.bucket).Str("key", key).Str("localPath", localPath).Msg("Downloading from S3")
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket, Key: &key,
	})
	if err != nil {
		return fmt.Errorf("S3 GetObject %s: %w", key, err)
	}
	defer result.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, result.Body); err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	return nil
}

// Upload stores a local file at the given key and returns a presigned URL.
func (s *S3Store) Upload(ctx context.Context, localPath, key, contentType string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        f,
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("S3 PutObject %s: %w", key, err)
	}

	log.Info().Str("key", key).Str("contentType", contentType).Msg("Uploaded to S3")
	return s.PresignGet(ctx, key, outputURLExpiry)
}

// UploadBytes stores an in-memory buffer at the given key.
func (s *S3Store) UploadBytes(ctx context.Context, data []byte, key, contentType string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("S3 PutObject %s: %w", key, err)
	}
	return s.PresignGet(ctx, key, outputURLExpiry)
}

// outputURLExpiry is how long returned asset URLs stay valid. Guests fetch
// their output within minutes of the session; a week covers late shares.
const outputURLExpiry = 7 * 24 * time.Hour

// PresignGet returns a time-limited GET URL for an object.
func (s *S3Store) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	result, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket, Key: &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject %s: %w", key, err)
	}
	return result.URL, nil
}
