package history

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/jvreagan/ssh-deploy/pkg/manifest"
)

type blobAPI interface {
	UploadBuffer(ctx context.Context, containerName string, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// AzureStore writes records to an Azure Blob Storage container.
type AzureStore struct {
	client    blobAPI
	container string
}

// NewAzureStore creates a store for cfg.Container in the storage account at
// cfg.AccountURL, authenticating with the default Azure credential chain
// (environment, workload identity, managed identity, Azure CLI).
func NewAzureStore(cfg *manifest.HistoryConfig) (*AzureStore, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	client, err := azblob.NewClient(cfg.AccountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	return &AzureStore{client: client, container: cfg.Container}, nil
}

// Put uploads data as a block blob.
func (s *AzureStore) Put(ctx context.Context, key string, data []byte) error {
	if _, err := s.client.UploadBuffer(ctx, s.container, key, data, nil); err != nil {
		return fmt.Errorf("failed to upload blob %s/%s: %w", s.container, key, err)
	}
	return nil
}
