package collab

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/jdziat/sitepipe/pkg/pipeline"
)

// ObjectStoreConfig configures an ObjectPublisher.
type ObjectStoreConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Region          string
	Bucket          string
	// PublicBaseURL is prepended to the object name to form the site URL.
	// When empty the URL is built from the endpoint.
	PublicBaseURL string
	Logger        *zap.Logger
}

// ObjectPublisher deploys a built page to an S3-compatible bucket as
// <key>/index.html.
type ObjectPublisher struct {
	client  *minio.Client
	config  ObjectStoreConfig
	logger  *zap.Logger
	mu      sync.Mutex
	ensured bool
}

var _ pipeline.Publisher = (*ObjectPublisher)(nil)

// NewObjectPublisher creates a publisher. No request is made until the
// first Publish.
func NewObjectPublisher(cfg ObjectStoreConfig) (*ObjectPublisher, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("collab: object store endpoint and bucket are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &ObjectPublisher{client: client, config: cfg, logger: cfg.Logger}, nil
}

// Publish implements pipeline.Publisher.
func (p *ObjectPublisher) Publish(ctx context.Context, req pipeline.DeployRequest) (pipeline.Deploy, error) {
	if err := p.ensureBucket(ctx); err != nil {
		return pipeline.Deploy{}, err
	}

	object := ObjectName(req.Key)
	_, err := p.client.PutObject(ctx, p.config.Bucket, object, bytes.NewReader(req.HTML), int64(len(req.HTML)),
		minio.PutObjectOptions{
			ContentType:  "text/html; charset=utf-8",
			CacheControl: "public, max-age=300",
			UserMetadata: map[string]string{"job-id": req.JobID},
		})
	if err != nil {
		return pipeline.Deploy{}, fmt.Errorf("failed to put object: %w", err)
	}

	url := p.PublicURL(object)
	p.logger.Info("site published",
		zap.String("job_id", req.JobID),
		zap.String("bucket", p.config.Bucket),
		zap.String("object", object),
	)
	return pipeline.Deploy{
		Deployed: true,
		URL:      url,
		Bucket:   p.config.Bucket,
		Object:   object,
	}, nil
}

// ensureBucket creates the bucket on first use. Failures are retried on
// the next call.
func (p *ObjectPublisher) ensureBucket(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ensured {
		return nil
	}
	if err := p.makeBucket(ctx); err != nil {
		return err
	}
	p.ensured = true
	return nil
}

func (p *ObjectPublisher) makeBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.config.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := p.client.MakeBucket(ctx, p.config.Bucket, minio.MakeBucketOptions{Region: p.config.Region}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// ObjectName returns where the page for key is stored.
func ObjectName(key string) string {
	return strings.Trim(key, "/") + "/index.html"
}

// PublicURL returns the address a published object is served from.
func (p *ObjectPublisher) PublicURL(object string) string {
	base := p.config.PublicBaseURL
	if base == "" {
		scheme := "http"
		if p.config.UseSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s/%s", scheme, p.config.Endpoint, p.config.Bucket)
	}
	return strings.TrimRight(base, "/") + "/" + object
}
