package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/ggstvfer/psd-covert-sub000/logging"
)

// S3ChunkStoreImpl is the external high-capacity chunk tier. The bucket
// is multi-tenant; keys are namespaced per session by the caller.
type S3ChunkStoreImpl struct {
	client     *s3.Client
	bucketName string

	logger logging.Logger
}

func NewS3ChunkStoreImpl(client *s3.Client, bucketName string, l logging.Logger) *S3ChunkStoreImpl {
	return &S3ChunkStoreImpl{
		client:     client,
		bucketName: bucketName,
		logger:     l,
	}
}

func (s *S3ChunkStoreImpl) IsReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucketName),
	})
	return err
}

func (s *S3ChunkStoreImpl) Name() string {
	return "ChunkStore[s3]"
}

func (s *S3ChunkStoreImpl) Put(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		s.logger.Error("failed to put chunk object", "key", key, "error", err)
		return fmt.Errorf("failed to put chunk object %s: %w", key, err)
	}

	s.logger.Debug("stored chunk object", "key", key, "size", len(data))
	return nil
}

func (s *S3ChunkStoreImpl) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("key cannot be empty")
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NoSuchKey", "NotFound":
				return nil, ErrChunkNotFound
			}
		}
		s.logger.Error("failed to get chunk object", "key", key, "error", err)
		return nil, fmt.Errorf("failed to get chunk object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		s.logger.Error("failed to read chunk body", "key", key, "error", err)
		return nil, fmt.Errorf("failed to read chunk object %s: %w", key, err)
	}

	return data, nil
}

func (s *S3ChunkStoreImpl) DeletePrefix(ctx context.Context, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("prefix cannot be empty")
	}

	s.logger.Info("starting deletion of prefix", "prefix", prefix)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
		Prefix: aws.String(prefix),
	})

	totalDeleted := 0
	for paginator.HasMorePages() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			s.logger.Error("failed to list objects for deletion", "prefix", prefix, "error", err)
			return fmt.Errorf("failed to list objects for deletion: %w", err)
		}

		if len(page.Contents) == 0 {
			continue
		}

		var objects []types.ObjectIdentifier
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{
				Key: obj.Key,
			})
		}

		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucketName),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			s.logger.Error("failed to delete objects", "prefix", prefix, "batch_size", len(objects), "error", err)
			return fmt.Errorf("failed to delete objects: %w", err)
		}

		totalDeleted += len(objects)
	}

	s.logger.Info("successfully deleted prefix", "prefix", prefix, "total_deleted", totalDeleted)
	return nil
}
