package blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 stores images in an S3 (or S3-compatible) bucket.
type S3 struct {
	client    s3API
	bucket    string
	prefix    string
	publicURL string
}

// NewS3 loads the default AWS credential chain. A non-empty endpoint
// switches to path-style addressing for S3-compatible services.
// publicURL overrides the virtual-hosted URL returned for uploads.
func NewS3(ctx context.Context, region, endpoint, bucket, prefix, publicURL string) (*S3, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("blob: aws config load: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return &S3{client: client, bucket: bucket, prefix: prefix, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

func (s *S3) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	key := objectKey(s.prefix, name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("blob: s3 put %s: %w", key, err)
	}
	return s.publicURL + "/" + key, nil
}

func (s *S3) Delete(ctx context.Context, name string) error {
	key := objectKey(s.prefix, name)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("blob: s3 delete %s: %w", key, err)
	}
	return nil
}
