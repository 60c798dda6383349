package assets

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/devsoc/devsoc-backend/internal/common"
	"github.com/devsoc/devsoc-backend/internal/server/config"
)

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Seams for tests.
var (
	loadDefaultAWSConfig  = awsconfig.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectAPI {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type S3Host struct {
	client        objectAPI
	bucket        string
	region        string
	baseEndpoint  string
	publicBaseURL string
}

// NewS3Host builds an S3 client from static credentials. A custom base
// endpoint (MinIO and friends) switches the client to path-style addressing.
func NewS3Host(ctx context.Context, cfg *config.Config) (*S3Host, error) {
	if !cfg.AssetHostConfigured() {
		return nil, common.ErrConfiguration
	}

	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKey, cfg.S3SecretKey, "")))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Host{
		client:        client,
		bucket:        cfg.S3Bucket,
		region:        cfg.S3Region,
		baseEndpoint:  cfg.S3BaseEndpoint,
		publicBaseURL: cfg.S3PublicBaseURL,
	}, nil
}

func (h *S3Host) Configured() bool { return h != nil && h.client != nil }

// Upload stores the object under Folder/Name. The object key doubles as
// the asset id.
func (h *S3Host) Upload(ctx context.Context, in UploadInput) (*Asset, error) {
	key := path.Join(in.Folder, in.Name)

	put := &s3.PutObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
		Body:   in.Body,
	}
	if in.Size > 0 {
		put.ContentLength = aws.Int64(in.Size)
	}
	if in.ContentType != "" {
		put.ContentType = aws.String(in.ContentType)
	}
	if len(in.Tags) > 0 {
		tags := url.Values{}
		for k, v := range in.Tags {
			tags.Set(k, v)
		}
		put.Tagging = aws.String(tags.Encode())
	}

	if _, err := h.client.PutObject(ctx, put); err != nil {
		return nil, fmt.Errorf("put object %s: %w", key, err)
	}

	return &Asset{ID: key, URL: h.objectURL(key)}, nil
}

func (h *S3Host) Delete(ctx context.Context, id string) error {
	_, err := h.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", id, err)
	}
	return nil
}

func (h *S3Host) objectURL(key string) string {
	switch {
	case h.publicBaseURL != "":
		return strings.TrimRight(h.publicBaseURL, "/") + "/" + key
	case h.baseEndpoint != "":
		return strings.TrimRight(h.baseEndpoint, "/") + "/" + h.bucket + "/" + key
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", h.bucket, h.region, key)
	}
}
