package duck

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// LoadS3ConfigFromEnv resolves S3 settings from the environment, trying the
// S3_* names first and falling back to the AWS_* equivalents:
//
//	S3_ACCESS_KEY_ID / AWS_ACCESS_KEY_ID (leave unset for IAM-role credentials)
//	S3_SECRET_ACCESS_KEY / AWS_SECRET_ACCESS_KEY
//	S3_ENDPOINT / AWS_ENDPOINT_URL (set for MinIO)
//	S3_REGION / AWS_REGION (defaults us-east-1)
//	S3_USE_SSL, S3_URL_STYLE (optional overrides)
//
// Returns (nil, nil) when no explicit credentials are configured, which means
// the ambient AWS credential chain will be used.
func LoadS3ConfigFromEnv() (*S3Config, error) {
	accessKeyID := envFirst("S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID")
	secretAccessKey := envFirst("S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY")

	if accessKeyID == "" && secretAccessKey == "" {
		return nil, nil
	}
	if accessKeyID == "" || secretAccessKey == "" {
		return nil, fmt.Errorf("S3 credentials are incomplete: both access key id and secret must be set, or neither")
	}

	endpoint := envFirst("S3_ENDPOINT", "AWS_ENDPOINT_URL")
	region := envFirst("S3_REGION", "AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}

	isMinIO := endpoint != "" && !strings.Contains(endpoint, "amazonaws.com")
	useSSL := !isMinIO
	if v := os.Getenv("S3_USE_SSL"); v != "" {
		useSSL = v == "true" || v == "1"
	}
	urlStyle := "path"
	if v := os.Getenv("S3_URL_STYLE"); v != "" {
		urlStyle = v
	}

	return &S3Config{
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
		Endpoint:        endpoint,
		Region:          region,
		UseSSL:          useSSL,
		URLStyle:        urlStyle,
	}, nil
}

// PrepareS3ConfigForStorageURI loads S3 configuration when the storage URI is
// s3://, bootstrapping the bucket first when the endpoint is a local MinIO.
// Returns nil for file:// storage.
func PrepareS3ConfigForStorageURI(ctx context.Context, log *slog.Logger, storageURI string) (*S3Config, error) {
	if !strings.HasPrefix(storageURI, "s3://") {
		return nil, nil
	}

	cfg, err := LoadS3ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 configuration: %w", err)
	}
	if cfg == nil {
		// No explicit credentials: rely on the ambient AWS chain.
		region := envFirst("S3_REGION", "AWS_REGION")
		if region == "" {
			region = "us-east-1"
		}
		cfg = &S3Config{Region: region, UseSSL: true, URLStyle: "path"}
	}

	if err := EnsureMinIOBucket(ctx, log, storageURI, cfg); err != nil {
		return nil, fmt.Errorf("failed to ensure MinIO bucket: %w", err)
	}
	return cfg, nil
}

// EnsureMinIOBucket creates the storage bucket when the endpoint is a
// localhost MinIO. Remote endpoints and AWS are left alone.
func EnsureMinIOBucket(ctx context.Context, log *slog.Logger, storageURI string, cfg *S3Config) error {
	if cfg.Endpoint == "" {
		return nil
	}
	host := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "http://"), "https://")
	if !strings.HasPrefix(host, "localhost") && !strings.HasPrefix(host, "127.0.0.1") && !strings.Contains(host, "host.docker.internal") {
		return nil
	}
	if !strings.HasPrefix(storageURI, "s3://") {
		return nil
	}
	bucket := strings.SplitN(strings.TrimPrefix(storageURI, "s3://"), "/", 2)[0]
	if bucket == "" {
		return nil
	}

	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return fmt.Errorf("MinIO requires explicit S3 credentials")
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return fmt.Errorf("failed to create AWS config: %w", err)
	}

	endpointURL := cfg.Endpoint
	if !strings.HasPrefix(endpointURL, "http://") && !strings.HasPrefix(endpointURL, "https://") {
		endpointURL = "http://" + endpointURL
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpointURL)
		o.UsePathStyle = true
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
		return nil
	}

	log.Info("creating MinIO bucket", "bucket", bucket, "endpoint", cfg.Endpoint)
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

func envFirst(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
