package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const avatarPrefix = "avatars"

var ErrStorageDisabled = errors.New("avatar storage is not configured")

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type AvatarStorage struct {
	client    objectPutter
	bucket    string
	publicURL string
}

// NewS3Client builds an S3 client from the default AWS credential chain.
// A non-empty endpoint points it at an S3 compatible store such as MinIO.
func NewS3Client(ctx context.Context, endpoint string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func NewAvatarStorage(client objectPutter, bucket, publicURL string) *AvatarStorage {
	return &AvatarStorage{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// Upload stores the image under a fresh key and returns its public URL.
func (s *AvatarStorage) Upload(ctx context.Context, username string, body io.Reader, contentType string) (string, error) {
	if s == nil || s.client == nil || s.bucket == "" {
		return "", ErrStorageDisabled
	}

	key := s.buildKey(username)
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
		ACL:    types.ObjectCannedACLPublicRead,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to save avatar to S3: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"bucket":   s.bucket,
		"key":      key,
		"username": username,
	}).Debug("Avatar uploaded")

	return s.publicURL + "/" + key, nil
}

func (s *AvatarStorage) buildKey(username string) string {
	clean := strings.ReplaceAll(username, "/", "")
	clean = strings.ReplaceAll(clean, "\\", "")
	return path.Join(avatarPrefix, clean+"-"+uuid.NewString())
}
