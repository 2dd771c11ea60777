package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tagmate/tagmate-backend/internal/pkg/logger"
)

// memoryBucketService keeps objects in process memory. Used for local dev
// and tests where neither GCS nor an emulator is available.
type memoryBucketService struct {
	log *logger.Logger

	mu      sync.RWMutex
	objects map[BucketCategory]map[string][]byte
}

func NewMemoryBucketService(log *logger.Logger) BucketService {
	return &memoryBucketService{
		log: log.With("service", "MemoryBucketService"),
		objects: map[BucketCategory]map[string][]byte{
			BucketCategoryDataset: {},
			BucketCategoryModel:   {},
		},
	}
}

func (ms *memoryBucketService) bucket(category BucketCategory) (map[string][]byte, error) {
	b, ok := ms.objects[category]
	if !ok {
		return nil, fmt.Errorf("unknown bucket category: %s", category)
	}
	return b, nil
}

func (ms *memoryBucketService) UploadFile(ctx context.Context, category BucketCategory, key string, file io.Reader) error {
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	b, err := ms.bucket(category)
	if err != nil {
		return err
	}
	b[key] = data
	return nil
}

func (ms *memoryBucketService) DownloadFile(ctx context.Context, category BucketCategory, key string) (io.ReadCloser, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	b, err := ms.bucket(category)
	if err != nil {
		return nil, err
	}
	data, ok := b[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (ms *memoryBucketService) DeleteFile(ctx context.Context, category BucketCategory, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	b, err := ms.bucket(category)
	if err != nil {
		return err
	}
	delete(b, key)
	return nil
}

func (ms *memoryBucketService) ListKeys(ctx context.Context, category BucketCategory, prefix string) ([]string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	b, err := ms.bucket(category)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for k := range b {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (ms *memoryBucketService) DeletePrefix(ctx context.Context, category BucketCategory, prefix string) error {
	keys, err := ms.ListKeys(ctx, category, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		_ = ms.DeleteFile(ctx, category, k)
	}
	return nil
}

func (ms *memoryBucketService) UploadDir(ctx context.Context, category BucketCategory, keyPrefix, localDir string) error {
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
		return ms.UploadFile(ctx, category, key, f)
	})
}

func (ms *memoryBucketService) DownloadDir(ctx context.Context, category BucketCategory, keyPrefix, localDir string) error {
	keyPrefix = strings.TrimRight(keyPrefix, "/")
	keys, err := ms.ListKeys(ctx, category, keyPrefix+"/")
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
		r, err := ms.DownloadFile(ctx, category, key)
		if err != nil {
			return err
		}
		data, err := io.ReadAll(r)
		_ = r.Close()
		if err != nil {
			return err
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
