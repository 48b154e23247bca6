package results

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"doc_gateway/internal/storage"
	"doc_gateway/internal/utils"
)

// S3Store persists conversion output as JSON objects in S3, optionally
// AES-GCM encrypted at rest. References have the form s3://<bucket>/<key>.
type S3Store struct {
	client     *s3.Client
	bucket     string
	prefix     string
	encryption *storage.Encryption
	logger     *utils.Logger
}

// NewS3Store loads the default AWS config for region and verifies nothing;
// the first Put surfaces credential problems. encryptionKey is a base64
// AES key, empty for plaintext storage.
func NewS3Store(ctx context.Context, bucket, region, prefix, encryptionKey string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var enc *storage.Encryption
	if encryptionKey != "" {
		enc, err = storage.NewEncryptionFromBase64(encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("invalid results encryption key: %w", err)
		}
	}

	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &S3Store{
		client:     s3.NewFromConfig(cfg),
		bucket:     bucket,
		prefix:     prefix,
		encryption: enc,
		logger:     utils.NewLogger("results-s3", utils.Info),
	}, nil
}

func (s *S3Store) Put(ctx context.Context, output *Output) (string, error) {
	output.StoredAt = time.Now().UTC()

	var payload []byte
	contentType := "application/json"
	if s.encryption != nil {
		ciphertext, err := s.encryption.EncryptJSON(output)
		if err != nil {
			return "", fmt.Errorf("failed to encrypt output: %w", err)
		}
		payload = []byte(ciphertext)
		contentType = "application/octet-stream"
	} else {
		var err error
		payload, err = json.Marshal(output)
		if err != nil {
			return "", fmt.Errorf("failed to marshal output: %w", err)
		}
	}

	now := output.StoredAt
	key := fmt.Sprintf("%s%04d/%02d/%02d/%s.json",
		s.prefix, now.Year(), now.Month(), now.Day(), output.JobID)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload result: %w", err)
	}

	s.logger.Debug("stored conversion result", "key", key, "bytes", len(payload))
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func (s *S3Store) Get(ctx context.Context, ref string) (*Output, error) {
	key, err := s.keyFromRef(ref)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("failed to fetch result: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read result body: %w", err)
	}

	var output Output
	if s.encryption != nil {
		if err := s.encryption.DecryptJSON(string(payload), &output); err != nil {
			return nil, fmt.Errorf("failed to decrypt result: %w", err)
		}
	} else if err := json.Unmarshal(payload, &output); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &output, nil
}

func (s *S3Store) Delete(ctx context.Context, ref string) error {
	key, err := s.keyFromRef(ref)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	return nil
}

func (s *S3Store) keyFromRef(ref string) (string, error) {
	want := fmt.Sprintf("s3://%s/", s.bucket)
	if !strings.HasPrefix(ref, want) {
		return "", fmt.Errorf("result reference %q does not belong to bucket %s", ref, s.bucket)
	}
	return strings.TrimPrefix(ref, want), nil
}
