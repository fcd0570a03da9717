package statestore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kuitang/hudl-auth-e2e/internal/errs"
	"github.com/kuitang/hudl-auth-e2e/internal/obs"
)

const documentContentType = "application/json"

// S3Config configures an S3-compatible session store.
type S3Config struct {
	// Endpoint overrides the AWS endpoint for S3-compatible services.
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	// Key is the object key the document is stored under.
	Key string
	// UsePathStyle is required by most S3-compatible services and gofakes3.
	UsePathStyle bool
}

// S3 stores the session document as a single private object so separate
// CI jobs can share one captured session.
type S3 struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3 builds an S3 store from cfg.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" || cfg.Key == "" {
		return nil, errs.New(errs.Configuration, "state bucket and key must both be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	sdkConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errs.Wrap(errs.Configuration, "load AWS config", err)
	}

	client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3FromClient(client, cfg.Bucket, cfg.Key), nil
}

// NewS3FromClient wraps an existing client.
func NewS3FromClient(client *s3.Client, bucket, key string) *S3 {
	return &S3{client: client, bucket: bucket, key: key}
}

// Push uploads the document at localPath.
func (s *S3) Push(ctx context.Context, localPath string) error {
	if _, err := checkDocument(localPath); err != nil {
		return err
	}
	content, err := os.ReadFile(localPath)
	if err != nil {
		return errs.Wrap(errs.Internal, "read session state", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(documentContentType),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return errs.Wrap(errs.Unavailable, "upload session state to s3://"+s.bucket+"/"+s.key, err)
	}
	obs.From(ctx).With("pkg", "statestore").Info("state_pushed", "bucket", s.bucket, "key", s.key, "bytes", len(content))
	return nil
}

// Pull downloads the document to localPath, creating its directory. A
// missing object is errs.NotFound.
func (s *S3) Pull(ctx context.Context, localPath string) error {
	if localPath == "" {
		return errs.New(errs.InvalidArgument, "session state path must not be empty")
	}
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &nsk) || errors.As(err, &notFound) {
			return errs.Wrap(errs.NotFound, "no session state at s3://"+s.bucket+"/"+s.key, err)
		}
		return errs.Wrap(errs.Unavailable, "download session state", err)
	}
	defer result.Body.Close()

	content, err := io.ReadAll(result.Body)
	if err != nil {
		return errs.Wrap(errs.Unavailable, "read session state body", err)
	}
	if len(content) == 0 {
		return errs.New(errs.NotFound, "session state object s3://"+s.bucket+"/"+s.key+" is empty")
	}
	if err := storeDocument(localPath, content); err != nil {
		return err
	}
	obs.From(ctx).With("pkg", "statestore").Info("state_pulled", "bucket", s.bucket, "key", s.key, "bytes", len(content))
	return nil
}

// Location implements Store with the object's s3:// URI.
func (s *S3) Location() string {
	return "s3://" + s.bucket + "/" + s.key
}
