package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store keeps audio assets in an S3 bucket so every gateway instance can
// serve any asset, matching the shared Redis synthesis index.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Options holds construction parameters for the S3 asset store.
type S3Options struct {
	Bucket string
	Prefix string
	Region string

	// Client overrides the S3 client (tests).
	Client *s3.Client
}

// NewS3Store creates an S3-backed asset store using the default AWS
// credential chain.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("media: s3 bucket is required")
	}
	client := opts.Client
	if client == nil {
		loadOpts := []func(*awsconfig.LoadOptions) error{}
		if opts.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("media: load aws config: %w", err)
		}
		client = s3.NewFromConfig(cfg)
	}
	return &S3Store{
		client: client,
		bucket: opts.Bucket,
		prefix: strings.Trim(opts.Prefix, "/"),
	}, nil
}

func (s *S3Store) key(audioID string) string {
	if s.prefix == "" {
		return audioID
	}
	return s.prefix + "/" + audioID
}

func (s *S3Store) Save(ctx context.Context, audioID string, content []byte) error {
	id, err := cleanID(audioID)
	if err != nil {
		return fmt.Errorf("media: invalid audio id %q", audioID)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(id)),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(MIMEForID(id)),
	})
	if err != nil {
		return fmt.Errorf("media: s3 put: %w", err)
	}
	return nil
}

func (s *S3Store) Open(ctx context.Context, audioID string) ([]byte, string, error) {
	id, err := cleanID(audioID)
	if err != nil {
		return nil, "", ErrNotFound
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("media: s3 get: %w", err)
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("media: s3 read: %w", err)
	}
	return content, MIMEForID(id), nil
}
