package gcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
)

// BucketService is the object-storage boundary for processed artifacts.
// Keys are deterministic: tenants/<tenant>/records/<record>/<stage>/<filename>,
// so a redelivered upload job always targets the same object.
type BucketService interface {
	UploadFile(ctx context.Context, key string, file io.Reader) error
	DeleteFile(ctx context.Context, key string) error
	GetObjectAttrs(ctx context.Context, key string) (*ObjectAttrs, error)
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	DeletePrefix(ctx context.Context, prefix string) error
	GetPublicURL(key string) string
}

type ObjectAttrs struct {
	Size        int64
	ContentType string
	Updated     time.Time
	ETag        string
}

type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectKey derives the canonical remote key for a pipeline artifact.
func ObjectKey(tenantID, recordID uuid.UUID, stage, filename string) string {
	return path.Join(
		"tenants", tenantID.String(),
		"records", recordID.String(),
		stage,
		path.Base(strings.TrimSpace(filename)),
	)
}

// TenantPrefix is the listing prefix for one tenant's objects, used by the
// storage-tracking reconciliation pass.
func TenantPrefix(tenantID uuid.UUID) string {
	return path.Join("tenants", tenantID.String()) + "/"
}

// RecordPrefix covers every artifact a single record uploaded.
func RecordPrefix(tenantID, recordID uuid.UUID) string {
	return path.Join("tenants", tenantID.String(), "records", recordID.String()) + "/"
}

type bucketService struct {
	log           *logger.Logger
	storageClient *storage.Client
	storageMode   ObjectStorageMode
	bucketName    string
	cdnDomain     string
}

func NewBucketService(log *logger.Logger) (BucketService, error) {
	storageCfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("resolve object storage config: %w", err)
	}
	return NewBucketServiceWithConfig(log, storageCfg)
}

func NewBucketServiceWithConfig(log *logger.Logger, storageCfg ObjectStorageConfig) (BucketService, error) {
	if err := ValidateObjectStorageConfig(storageCfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	serviceLog := log.With("service", "BucketService")

	bucketName := strings.TrimSpace(os.Getenv("MEDIA_GCS_BUCKET_NAME"))
	if bucketName == "" {
		return nil, fmt.Errorf("missing env var MEDIA_GCS_BUCKET_NAME")
	}
	cdnDomain := strings.TrimSpace(os.Getenv("MEDIA_CDN_DOMAIN"))

	ctx := context.Background()
	stClient, err := newStorageClientForMode(ctx, storageCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	serviceLog.Info("Object storage initialized",
		"mode", storageCfg.Mode,
		"emulator_host", storageCfg.EmulatorHost,
		"bucket", bucketName,
	)

	return &bucketService{
		log:           serviceLog,
		storageClient: stClient,
		storageMode:   storageCfg.Mode,
		bucketName:    bucketName,
		cdnDomain:     cdnDomain,
	}, nil
}

func newStorageClientForMode(ctx context.Context, storageCfg ObjectStorageConfig) (*storage.Client, error) {
	if storageCfg.IsEmulatorMode() {
		endpoint := strings.TrimRight(strings.TrimSpace(storageCfg.EmulatorHost), "/")
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	opts := ClientOptionsFromEnv()
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	return storage.NewClient(ctx, opts...)
}

func (bs *bucketService) UploadFile(ctx context.Context, key string, file io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	w := bs.storageClient.Bucket(bs.bucketName).Object(key).NewWriter(ctx)
	if ct := contentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, file); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".mp4"), strings.HasSuffix(s, ".m4v"):
		return "video/mp4"
	case strings.HasSuffix(s, ".webm"):
		return "video/webm"
	case strings.HasSuffix(s, ".mov"):
		return "video/quicktime"
	case strings.HasSuffix(s, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(s, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(s, ".flac"):
		return "audio/flac"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	default:
		return ""
	}
}

func (bs *bucketService) DeleteFile(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	o := bs.storageClient.Bucket(bs.bucketName).Object(key)
	if err := o.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, bs.bucketName, err)
	}
	return nil
}

func (bs *bucketService) GetObjectAttrs(ctx context.Context, key string) (*ObjectAttrs, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	attrs, err := bs.storageClient.Bucket(bs.bucketName).Object(key).Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch GCS object attrs: %w", err)
	}
	return &ObjectAttrs{
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Updated:     attrs.Updated,
		ETag:        attrs.Etag,
	}, nil
}

func (bs *bucketService) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	it := bs.storageClient.Bucket(bs.bucketName).Objects(ctx, &storage.Query{Prefix: prefix})
	out := []ObjectInfo{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ObjectInfo{Key: attrs.Name, Size: attrs.Size})
	}
	return out, nil
}

func (bs *bucketService) DeletePrefix(ctx context.Context, prefix string) error {
	objs, err := bs.ListObjects(ctx, prefix)
	if err != nil {
		return err
	}
	for _, o := range objs {
		if err := bs.DeleteFile(ctx, o.Key); err != nil {
			bs.log.Warn("Delete during prefix sweep failed", "key", o.Key, "error", err)
		}
	}
	return nil
}

func (bs *bucketService) GetPublicURL(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if bs.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", bs.cdnDomain, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bs.bucketName, key)
}
