package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

// Credential sources, in resolution order
const (
	CredentialSourceStatic    = "static"
	CredentialSourceFederated = "federated"
	CredentialSourceDefault   = "default-chain"
)

// S3Repository implements StorageRepository for AWS S3 and S3 compatible stores
type S3Repository struct {
	client             *s3.Client
	uploader           *manager.Uploader
	bucket             string
	prefix             string
	streamingThreshold int64
	credentialSource   string
}

// NewS3Repository resolves credentials and builds the client.
func NewS3Repository(ctx context.Context, cfg *domain.S3Config, prefix string, opts Options) (*S3Repository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, source, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3Repository{
		client:             client,
		uploader:           manager.NewUploader(client),
		bucket:             cfg.Bucket,
		prefix:             strings.Trim(prefix, "/"),
		streamingThreshold: opts.StreamingThreshold,
		credentialSource:   source,
	}, nil
}

// loadAWSConfig applies the resolution order: explicit static credentials,
// then web identity federation from the environment, then the SDK default
// chain. A chain that yields no credentials is a configuration error.
func loadAWSConfig(ctx context.Context, cfg *domain.S3Config) (aws.Config, string, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}

	source := CredentialSourceDefault
	switch {
	case cfg.Credentials != nil:
		source = CredentialSourceStatic
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Credentials.AccessKeyID,
				cfg.Credentials.SecretAccessKey,
				cfg.Credentials.SessionToken,
			),
		))
	case os.Getenv("AWS_WEB_IDENTITY_TOKEN_FILE") != "" && os.Getenv("AWS_ROLE_ARN") != "":
		source = CredentialSourceFederated
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, "", apperrors.WithKind(err, apperrors.KindConfiguration, "failed to load AWS config")
	}

	if source == CredentialSourceDefault {
		if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
			return aws.Config{}, "", apperrors.WithKind(err, apperrors.KindConfiguration,
				"no S3 credentials: configure a credentials secret, workload identity, or the default AWS chain")
		}
	}

	return awsCfg, source, nil
}

func (s *S3Repository) fullKey(key string) string {
	if s.prefix == "" {
		return strings.TrimPrefix(key, "/")
	}
	return path.Join(s.prefix, key)
}

func (s *S3Repository) relKey(full string) string {
	if s.prefix == "" {
		return full
	}
	return strings.TrimPrefix(strings.TrimPrefix(full, s.prefix), "/")
}

func (s *S3Repository) Put(ctx context.Context, key string, data io.Reader, metadata *repository.ObjectMetadata) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
		Body:   data,
	}
	if metadata != nil {
		if metadata.ContentType != "" {
			input.ContentType = aws.String(metadata.ContentType)
		}
		input.Metadata = metadata.CustomMetadata
	}

	// Multipart uploads are aborted by the uploader on failure, so no
	// partial object becomes visible.
	if useStreaming(metadata, s.streamingThreshold) {
		if _, err := s.uploader.Upload(ctx, input); err != nil {
			return classifyS3(err, "upload", key)
		}
		return nil
	}

	if metadata != nil && metadata.Size >= 0 {
		input.ContentLength = aws.Int64(metadata.Size)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return classifyS3(err, "put", key)
	}
	return nil
}

func (s *S3Repository) Get(ctx context.Context, key string) (io.ReadCloser, *repository.ObjectMetadata, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		return nil, nil, classifyS3(err, "get", key)
	}

	metadata := &repository.ObjectMetadata{
		Key:            key,
		Size:           aws.ToInt64(result.ContentLength),
		ContentType:    aws.ToString(result.ContentType),
		LastModified:   aws.ToTime(result.LastModified),
		ETag:           aws.ToString(result.ETag),
		CustomMetadata: result.Metadata,
	}

	return result.Body, metadata, nil
}

func (s *S3Repository) List(ctx context.Context, prefix string) ([]*repository.ObjectInfo, error) {
	fullPrefix := s.fullKey(prefix)
	if strings.HasSuffix(prefix, "/") && !strings.HasSuffix(fullPrefix, "/") {
		fullPrefix += "/"
	}
	if prefix == "" && s.prefix != "" {
		fullPrefix = s.prefix + "/"
	}

	var objects []*repository.ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fullPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyS3(err, "list", prefix)
		}
		for _, obj := range page.Contents {
			objects = append(objects, &repository.ObjectInfo{
				Key:          s.relKey(aws.ToString(obj.Key)),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         aws.ToString(obj.ETag),
			})
		}
	}

	return objects, nil
}

func (s *S3Repository) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		err = classifyS3(err, "delete", key)
		if apperrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	return nil
}

func (s *S3Repository) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.GetMetadata(ctx, key)
	if err == nil {
		return true, nil
	}
	if apperrors.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *S3Repository) GetMetadata(ctx context.Context, key string) (*repository.ObjectMetadata, error) {
	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		return nil, classifyS3(err, "head", key)
	}

	return &repository.ObjectMetadata{
		Key:            key,
		Size:           aws.ToInt64(result.ContentLength),
		ContentType:    aws.ToString(result.ContentType),
		LastModified:   aws.ToTime(result.LastModified),
		ETag:           aws.ToString(result.ETag),
		CustomMetadata: result.Metadata,
	}, nil
}

func (s *S3Repository) Close() error {
	return nil
}

func (s *S3Repository) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return classifyS3(err, "head bucket", s.bucket)
	}
	return nil
}

// CredentialSource reports which step of the chain produced credentials.
func (s *S3Repository) CredentialSource() string {
	return s.credentialSource
}

// classifyS3 maps SDK errors onto the error taxonomy: missing keys become
// not-found, throttling and 5xx become transient, auth failures become
// configuration errors.
func classifyS3(err error, op, key string) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return apperrors.NotFound(key, err)
	}

	msg := fmt.Sprintf("s3 %s %s", op, key)

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return apperrors.NotFound(key, err)
		case "SlowDown", "Throttling", "ThrottlingException", "RequestTimeout", "RequestTimeTooSkewed",
			"InternalError", "ServiceUnavailable":
			return apperrors.Transient(err, msg)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "NoSuchBucket", "ExpiredToken":
			return apperrors.WithKind(err, apperrors.KindConfiguration, msg)
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch code := respErr.HTTPStatusCode(); {
		case code == http.StatusNotFound:
			return apperrors.NotFound(key, err)
		case code == http.StatusTooManyRequests || code >= 500:
			return apperrors.Transient(err, msg)
		case code == http.StatusForbidden || code == http.StatusUnauthorized:
			return apperrors.WithKind(err, apperrors.KindConfiguration, msg)
		}
	}

	return classifyNetwork(err, msg)
}
