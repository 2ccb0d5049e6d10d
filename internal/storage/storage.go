package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/vaultgate/vaultgate/internal/config"
	"github.com/vaultgate/vaultgate/pkg/models"
)

// metadata key under which the upload-time file ID is persisted
const fileIDMetaKey = "Fileid"

// ErrObjectNotFound is returned when an object or version is absent
var ErrObjectNotFound = errors.New("object not found")

// Storage adapts the object store. Every principal's objects live under the
// `{principal}/` key prefix; the store-assigned version ID serves as the
// object generation.
type Storage struct {
	client     *minio.Client
	bucketName string
}

// New creates a new storage client
func New(cfg config.StorageConfig) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	// Ensure bucket exists
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	// Versioning supplies the generation that disambiguates repeated
	// uploads sharing a name.
	if err := client.EnableVersioning(ctx, cfg.BucketName); err != nil {
		return nil, fmt.Errorf("failed to enable versioning: %w", err)
	}

	return &Storage{
		client:     client,
		bucketName: cfg.BucketName,
	}, nil
}

// Put writes an object into a principal's namespace and returns its metadata,
// including the store-assigned generation.
func (s *Storage) Put(ctx context.Context, principal, name string, reader io.Reader, size int64, contentType, fileID string) (*models.StoredObject, error) {
	key := models.ObjectKey(principal, name)

	info, err := s.client.PutObject(ctx, s.bucketName, key, reader, size, minio.PutObjectOptions{
		ContentType:  resolveContentType(name, contentType),
		UserMetadata: map[string]string{fileIDMetaKey: fileID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload object: %w", err)
	}

	return &models.StoredObject{
		Principal:   principal,
		Name:        name,
		SizeBytes:   info.Size,
		ContentType: resolveContentType(name, contentType),
		FileID:      fileID,
		Generation:  info.VersionID,
	}, nil
}

// Stat returns metadata for an object; generation may be empty for the
// current version.
func (s *Storage) Stat(ctx context.Context, principal, name, generation string) (*models.StoredObject, error) {
	key := models.ObjectKey(principal, name)

	info, err := s.client.StatObject(ctx, s.bucketName, key, minio.StatObjectOptions{
		VersionID: generation,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}

	return objectInfo(principal, name, info), nil
}

// Open returns a reader over an object along with its metadata. The caller
// must close the reader; cancelling ctx terminates the read.
func (s *Storage) Open(ctx context.Context, principal, name, generation string) (io.ReadCloser, *models.StoredObject, error) {
	obj, err := s.Stat(ctx, principal, name, generation)
	if err != nil {
		return nil, nil, err
	}

	key := models.ObjectKey(principal, name)
	reader, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{
		VersionID: generation,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrObjectNotFound
		}
		return nil, nil, fmt.Errorf("failed to open object: %w", err)
	}

	return reader, obj, nil
}

// FindByFileID locates an object in a principal's namespace by its
// upload-time file ID, searching current versions.
func (s *Storage) FindByFileID(ctx context.Context, principal, fileID string) (*models.StoredObject, error) {
	objects, err := s.List(ctx, principal)
	if err != nil {
		return nil, err
	}

	for _, obj := range objects {
		if obj.FileID == fileID {
			return obj, nil
		}
	}

	return nil, ErrObjectNotFound
}

// Delete removes an object (all versions) from a principal's namespace
func (s *Storage) Delete(ctx context.Context, principal, name string) error {
	key := models.ObjectKey(principal, name)

	err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{
		ForceDelete: true,
	})
	if err != nil {
		if isNotFound(err) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

// List enumerates the current objects in a principal's namespace. An empty
// namespace yields an empty slice, not an error.
func (s *Storage) List(ctx context.Context, principal string) ([]*models.StoredObject, error) {
	prefix := models.NamespacePrefix(principal)
	objects := []*models.StoredObject{}

	for info := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:       prefix,
		Recursive:    true,
		WithMetadata: true,
	}) {
		if info.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", info.Err)
		}

		name := strings.TrimPrefix(info.Key, prefix)
		objects = append(objects, objectInfo(principal, name, info))
	}

	return objects, nil
}

// ListNamespaces enumerates the top-level principal prefixes in the bucket
func (s *Storage) ListNamespaces(ctx context.Context) ([]string, error) {
	var namespaces []string

	for info := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Recursive: false,
	}) {
		if info.Err != nil {
			return nil, fmt.Errorf("failed to list namespaces: %w", info.Err)
		}
		if strings.HasSuffix(info.Key, "/") {
			namespaces = append(namespaces, strings.TrimSuffix(info.Key, "/"))
		}
	}

	return namespaces, nil
}

func objectInfo(principal, name string, info minio.ObjectInfo) *models.StoredObject {
	return &models.StoredObject{
		Principal:   principal,
		Name:        name,
		SizeBytes:   info.Size,
		ContentType: info.ContentType,
		UploadedAt:  info.LastModified,
		FileID:      fileIDFromMetadata(info.UserMetadata),
		Generation:  info.VersionID,
	}
}

// fileIDFromMetadata reads the file ID back out of user metadata. Stat and
// List return metadata keys in different shapes, so both are checked.
func fileIDFromMetadata(meta minio.StringMap) string {
	if id, ok := meta[fileIDMetaKey]; ok {
		return id
	}
	return meta["X-Amz-Meta-"+fileIDMetaKey]
}

// isNotFound reports whether an object store error means the key or version
// is absent
func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchVersion":
		return true
	}
	return resp.StatusCode == http.StatusNotFound
}

// resolveContentType prefers the client-declared type, falling back to the
// extension and finally to a generic binary type.
func resolveContentType(name, declared string) string {
	if declared != "" {
		return declared
	}
	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}
