// Package storage wraps the S3-compatible Spaces bucket that holds the
// canonical rendered objects and the externally supplied part sprites.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/fableforge/avatard/internal/setup/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrDependencyOpen is returned while the object-store breaker is open.
var ErrDependencyOpen = errors.New("object store circuit breaker is open")

// SignedURLExpiry is the lifetime of redirect URLs handed to clients.
const SignedURLExpiry = 15 * time.Minute

// Object key layout, bucket keyed by username.
func AvatarKey(username string) string    { return "user-avatar/" + username + ".webp" }
func ClothingKey(username string) string  { return "user-clothing/" + username + ".webp" }
func ThumbnailKey(username string) string { return "user-thumbnail/" + username + ".webp" }

// Client handles Spaces object storage using the MinIO S3 client, behind a
// circuit breaker so a failing store rejects fast instead of piling up.
type Client struct {
	client  *minio.Client
	bucket  string
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates a Spaces client from config.
func NewClient(cfg *config.Spaces, cb *config.CircuitBreaker, logger *zap.Logger) (*Client, error) {
	// Clean endpoint URL
	endpoint := strings.TrimPrefix(cfg.Endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")

	// Create MinIO client
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	threshold := cb.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "object_store",
		MaxRequests: cb.MaxRequests,
		Interval:    time.Duration(cb.Interval) * time.Millisecond,
		Timeout:     time.Duration(cb.Timeout) * time.Millisecond,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})

	return &Client{
		client:  client,
		bucket:  cfg.Bucket,
		breaker: breaker,
		logger:  logger.Named("storage"),
	}, nil
}

// Put uploads an object.
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := c.execute(func() (any, error) {
		_, err := c.client.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: contentType})
		if err != nil {
			return nil, fmt.Errorf("failed to put object %s: %w", key, err)
		}

		return nil, nil
	})

	return err
}

// Get retrieves an object's bytes.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.execute(func() (any, error) {
		object, err := c.client.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to get object %s: %w", key, err)
		}
		defer object.Close()

		raw, err := io.ReadAll(object)
		if err != nil {
			return nil, fmt.Errorf("failed to read object %s: %w", key, err)
		}

		return raw, nil
	})
	if err != nil {
		return nil, err
	}

	return data.([]byte), nil
}

// Head checks whether an object exists.
func (c *Client) Head(ctx context.Context, key string) (bool, error) {
	exists, err := c.execute(func() (any, error) {
		_, err := c.client.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
		if err != nil {
			// A missing key is a normal outcome, not a breaker failure
			errResponse := minio.ToErrorResponse(err)
			if errResponse.Code == "NoSuchKey" {
				return false, nil
			}

			return false, fmt.Errorf("failed to check object %s: %w", key, err)
		}

		return true, nil
	})
	if err != nil {
		return false, err
	}

	return exists.(bool), nil
}

// SignedURL returns a short-lived redirect URL for one object.
func (c *Client) SignedURL(ctx context.Context, key string) (string, error) {
	u, err := c.execute(func() (any, error) {
		signed, err := c.client.PresignedGetObject(ctx, c.bucket, key, SignedURLExpiry, url.Values{})
		if err != nil {
			return nil, fmt.Errorf("failed to sign URL for %s: %w", key, err)
		}

		return signed.String(), nil
	})
	if err != nil {
		return "", err
	}

	return u.(string), nil
}

// Open reports whether the breaker currently rejects calls.
func (c *Client) Open() bool {
	return c.breaker.State() == gobreaker.StateOpen
}

// execute routes one storage call through the breaker, translating the
// breaker's rejection into ErrDependencyOpen.
func (c *Client) execute(op func() (any, error)) (any, error) {
	result, err := c.breaker.Execute(op)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrDependencyOpen
		}

		return nil, err
	}

	return result, nil
}
