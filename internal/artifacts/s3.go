package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Store keeps artifacts under s3://<bucket>/<prefix>/runs/<run_id>/.
//
// S3 has no append, so AppendEvent rewrites the run's log object. Appends are
// serialized per store; a run is driven by one process, so that is sufficient
// to keep its log ordered.
type S3Store struct {
	client S3API
	bucket string
	prefix string

	mu sync.Mutex
}

// NewS3Store returns an S3Store. prefix may be empty.
func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(runID, name string) string {
	return path.Join(s.prefix, "runs", runID, name)
}

func (s *S3Store) location(key string) string {
	return "s3://" + s.bucket + "/" + key
}

// EventsLocation implements Store.
func (s *S3Store) EventsLocation(runID string) string {
	return s.location(s.key(runID, EventsName))
}

// WriteObject implements Store.
func (s *S3Store) WriteObject(ctx context.Context, runID, stage string, v any) (string, error) {
	if err := validate(runID, stage); err != nil {
		return "", err
	}
	data, err := encodeObject(v)
	if err != nil {
		return "", err
	}
	key := s.key(runID, stage+".json")
	if err := s.put(ctx, key, data, "application/json"); err != nil {
		return "", fmt.Errorf("failed to upload %s to S3: %w", stage, err)
	}
	log.Debug().Str("run_id", runID).Str("key", key).Int("bytes", len(data)).Msg("Artifact uploaded to S3")
	return s.location(key), nil
}

// AppendEvent implements Store.
func (s *S3Store) AppendEvent(ctx context.Context, runID string, ev Event) (string, error) {
	if err := validate(runID, ""); err != nil {
		return "", err
	}
	line, err := encodeEvent(ev)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.key(runID, EventsName)
	existing, err := s.get(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("read event log: %w", err)
	}
	if err := s.put(ctx, key, append(existing, line...), "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("append event %s: %w", ev.Name, err)
	}
	return s.location(key), nil
}

// ReadObject implements Store.
func (s *S3Store) ReadObject(ctx context.Context, runID, stage string) ([]byte, error) {
	if err := validate(runID, stage); err != nil {
		return nil, err
	}
	return s.get(ctx, s.key(runID, stage+".json"))
}

// Exists implements Store.
func (s *S3Store) Exists(ctx context.Context, runID, stage string) (bool, error) {
	if err := validate(runID, stage); err != nil {
		return false, err
	}
	key := s.key(runID, stage+".json")
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("S3 HeadObject: %w", err)
}

// ReadEvents implements Store.
func (s *S3Store) ReadEvents(ctx context.Context, runID string) ([]Event, error) {
	if err := validate(runID, ""); err != nil {
		return nil, err
	}
	data, err := s.get(ctx, s.key(runID, EventsName))
	if err != nil {
		return nil, err
	}
	return decodeEvents(data)
}

func (s *S3Store) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	return err
}

func (s *S3Store) get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.location(key))
		}
		return nil, fmt.Errorf("S3 GetObject: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read S3 object %s: %w", key, err)
	}
	return data, nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
