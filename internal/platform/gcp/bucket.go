package gcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/tagmate/tagmate-backend/internal/pkg/logger"
)

// BucketCategory selects which configured bucket an operation targets.
// Datasets hold raw uploaded CSVs; models hold versioned trained artifacts
// under {user_id}/{activity_id}/.
type BucketCategory string

const (
	BucketCategoryDataset BucketCategory = "dataset"
	BucketCategoryModel   BucketCategory = "model"
)

type bucketConfig struct {
	name string
}

type BucketService interface {
	UploadFile(ctx context.Context, category BucketCategory, key string, file io.Reader) error
	DownloadFile(ctx context.Context, category BucketCategory, key string) (io.ReadCloser, error)
	DeleteFile(ctx context.Context, category BucketCategory, key string) error
	ListKeys(ctx context.Context, category BucketCategory, prefix string) ([]string, error)
	DeletePrefix(ctx context.Context, category BucketCategory, prefix string) error
	UploadDir(ctx context.Context, category BucketCategory, keyPrefix, localDir string) error
	DownloadDir(ctx context.Context, category BucketCategory, keyPrefix, localDir string) error
}

type bucketService struct {
	log           *logger.Logger
	storageClient *storage.Client
	storageMode   ObjectStorageMode
	datasetBucket bucketConfig
	modelBucket   bucketConfig
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

	if storageCfg.Mode == ObjectStorageModeMemory {
		serviceLog.Info("Object storage initialized", "mode", storageCfg.Mode)
		return NewMemoryBucketService(log), nil
	}

	datasetBucketName := os.Getenv("DATASET_GCS_BUCKET_NAME")
	modelBucketName := os.Getenv("MODEL_GCS_BUCKET_NAME")
	if datasetBucketName == "" {
		return nil, fmt.Errorf("missing env var DATASET_GCS_BUCKET_NAME")
	}
	if modelBucketName == "" {
		return nil, fmt.Errorf("missing env var MODEL_GCS_BUCKET_NAME")
	}

	ctx := context.Background()
	stClient, err := newStorageClientForMode(ctx, storageCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	serviceLog.Info(
		"Object storage initialized",
		"mode", storageCfg.Mode,
		"mode_source", storageCfg.ModeSource(),
		"emulator_host", storageCfg.EmulatorHost,
		"dataset_bucket", datasetBucketName,
		"model_bucket", modelBucketName,
	)

	return &bucketService{
		log:           serviceLog,
		storageClient: stClient,
		storageMode:   storageCfg.Mode,
		datasetBucket: bucketConfig{name: datasetBucketName},
		modelBucket:   bucketConfig{name: modelBucketName},
	}, nil
}

func newStorageClientForMode(ctx context.Context, storageCfg ObjectStorageConfig) (*storage.Client, error) {
	switch storageCfg.Mode {
	case ObjectStorageModeGCS:
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case ObjectStorageModeGCSEmulator:
		endpoint := strings.TrimRight(strings.TrimSpace(storageCfg.EmulatorHost), "/")
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		opts := []option.ClientOption{
			option.WithoutAuthentication(),
		}
		return storage.NewClient(ctx, opts...)
	default:
		return nil, &ObjectStorageConfigError{
			Code: ObjectStorageConfigErrorInvalidMode,
			Mode: string(storageCfg.Mode),
		}
	}
}

func (bs *bucketService) getBucketConfig(category BucketCategory) (bucketConfig, error) {
	switch category {
	case BucketCategoryDataset:
		return bs.datasetBucket, nil
	case BucketCategoryModel:
		return bs.modelBucket, nil
	default:
		return bucketConfig{}, fmt.Errorf("unknown bucket category: %s", category)
	}
}

func (bs *bucketService) UploadFile(ctx context.Context, category BucketCategory, key string, file io.Reader) error {
	cfg, err := bs.getBucketConfig(category)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := bs.storageClient.Bucket(cfg.name).Object(key).NewWriter(ctx)
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

func (bs *bucketService) DownloadFile(ctx context.Context, category BucketCategory, key string) (io.ReadCloser, error) {
	cfg, err := bs.getBucketConfig(category)
	if err != nil {
		return nil, err
	}
	r, err := bs.storageClient.Bucket(cfg.name).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS object %q in bucket %q: %w", key, cfg.name, err)
	}
	return r, nil
}

func (bs *bucketService) DeleteFile(ctx context.Context, category BucketCategory, key string) error {
	cfg, err := bs.getBucketConfig(category)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	o := bs.storageClient.Bucket(cfg.name).Object(key)
	if err := o.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, cfg.name, err)
	}
	return nil
}

func (bs *bucketService) ListKeys(ctx context.Context, category BucketCategory, prefix string) ([]string, error) {
	cfg, err := bs.getBucketConfig(category)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	it := bs.storageClient.Bucket(cfg.name).Objects(ctx, &storage.Query{Prefix: prefix})
	out := []string{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, attrs.Name)
	}
	return out, nil
}

func (bs *bucketService) DeletePrefix(ctx context.Context, category BucketCategory, prefix string) error {
	keys, err := bs.ListKeys(ctx, category, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		_ = bs.DeleteFile(ctx, category, k)
	}
	return nil
}

// UploadDir walks localDir and uploads every regular file under keyPrefix,
// preserving the relative path. Used to persist a trained model's artifact
// folder in one call.
func (bs *bucketService) UploadDir(ctx context.Context, category BucketCategory, keyPrefix, localDir string) error {
	keyPrefix = strings.TrimRight(keyPrefix, "/")
	return filepath.Walk(localDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		key := keyPrefix + "/" + filepath.ToSlash(rel)
		return bs.UploadFile(ctx, category, key, f)
	})
}

// DownloadDir fetches every object under keyPrefix into localDir, recreating
// the relative layout.
func (bs *bucketService) DownloadDir(ctx context.Context, category BucketCategory, keyPrefix, localDir string) error {
	keyPrefix = strings.TrimRight(keyPrefix, "/")
	keys, err := bs.ListKeys(ctx, category, keyPrefix+"/")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("no objects under prefix %q", keyPrefix)
	}
	for _, key := range keys {
		rel := strings.TrimPrefix(key, keyPrefix+"/")
		dst := filepath.Join(localDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		r, err := bs.DownloadFile(ctx, category, key)
		if err != nil {
			return err
		}
		f, err := os.Create(dst)
		if err != nil {
			_ = r.Close()
			return err
		}
		if _, err := io.Copy(f, r); err != nil {
			_ = f.Close()
			_ = r.Close()
			return err
		}
		if err := f.Close(); err != nil {
			_ = r.Close()
			return err
		}
		_ = r.Close()
	}
	return nil
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if s == "" {
		return ""
	}
	switch {
	case strings.HasSuffix(s, ".csv"):
		return "text/csv"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	case strings.HasSuffix(s, ".txt"):
		return "text/plain"
	default:
		return ""
	}
}
