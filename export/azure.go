package export

import (
	"bytes"
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// NewAzureTarget builds an export Target backed by azblob, generalizing
// ais/backend/azure.go's PutObj (azblob.NewClientWithSharedKeyCredential
// + client.UploadStream) from AIStore's object-storage backend provider
// to this module's bundle uploads.
func NewAzureTarget(accountURL, accountName, accountKey, container string) (Target, error) {
	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return Target{}, err
	}
	client, err := azblob.NewClientWithSharedKeyCredential(accountURL, cred, nil)
	if err != nil {
		return Target{}, err
	}
	return Target{
		Name: "azure:" + container,
		Upload: func(ctx context.Context, key string, body *bytes.Buffer) error {
			_, err := client.UploadStream(ctx, container, key, bytes.NewReader(body.Bytes()), nil)
			return err
		},
	}, nil
}
