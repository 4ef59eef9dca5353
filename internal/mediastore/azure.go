package mediastore

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// AzureStore implements Store on an Azure Blob Storage container.
// Credentials come from the ambient environment (managed identity,
// workload identity, or az-cli login) via DefaultAzureCredential, matching
// the sidecar deployment model this backend was adapted from.
type AzureStore struct {
	client  *container.Client
	baseDir string
}

// NewAzureStore builds a container-scoped client for accountURL (e.g.
// "https://<account>.blob.core.windows.net") + containerName.
func NewAzureStore(accountURL, containerName, baseDir string) (*AzureStore, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("mediastore: azure credential: %w", err)
	}
	client, err := container.NewClient(accountURL+"/"+containerName, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("mediastore: azure container client: %w", err)
	}
	return &AzureStore{client: client, baseDir: baseDir}, nil
}

func (s *AzureStore) blobPath(key string) string {
	if s.baseDir == "" {
		return key
	}
	return s.baseDir + "/" + key
}

func (s *AzureStore) Write(ctx context.Context, key string, data []byte, contentType string) error {
	blobClient := s.client.NewBlockBlobClient(s.blobPath(key))
	cc := CacheControl(key)
	_, err := blobClient.UploadBuffer(ctx, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType:  &contentType,
			BlobCacheControl: &cc,
		},
	})
	if err != nil {
		return fmt.Errorf("mediastore: azure write %s: %w", key, err)
	}
	return nil
}

func (s *AzureStore) Read(ctx context.Context, key string) ([]byte, error) {
	blobClient := s.client.NewBlobClient(s.blobPath(key))
	resp, err := blobClient.DownloadStream(ctx, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("mediastore: azure read %s: %w", key, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("mediastore: azure drain %s: %w", key, err)
	}
	return data, nil
}

func (s *AzureStore) ReadRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	blobClient := s.client.NewBlobClient(s.blobPath(key))
	rnge := blob.HTTPRange{Offset: offset}
	if length >= 0 {
		rnge.Count = length
	}
	resp, err := blobClient.DownloadStream(ctx, &azblob.DownloadStreamOptions{Range: rnge})
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("mediastore: azure range read %s: %w", key, err)
	}
	return resp.Body, nil
}

func (s *AzureStore) Stat(ctx context.Context, key string) (int64, error) {
	blobClient := s.client.NewBlobClient(s.blobPath(key))
	props, err := blobClient.GetProperties(ctx, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return 0, ErrNotExist
	}
	if err != nil {
		return 0, fmt.Errorf("mediastore: azure stat %s: %w", key, err)
	}
	if props.ContentLength == nil {
		return 0, nil
	}
	return *props.ContentLength, nil
}

func (s *AzureStore) Delete(ctx context.Context, key string) error {
	blobClient := s.client.NewBlobClient(s.blobPath(key))
	_, err := blobClient.Delete(ctx, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("mediastore: azure delete %s: %w", key, err)
	}
	return nil
}

var _ Store = (*AzureStore)(nil)
