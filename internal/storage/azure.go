package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// AzureMirror uploads files as block blobs into one container.
type AzureMirror struct {
	client *container.Client
	prefix string
}

// NewAzureMirror creates a mirror from a container SAS URL
// (https://<account>.blob.core.windows.net/<container>?<sas>).
func NewAzureMirror(containerSASURL, prefix string, httpClient httpDoer) (*AzureMirror, error) {
	if containerSASURL == "" {
		return nil, fmt.Errorf("Azure mirror requires a container SAS URL")
	}
	u, err := url.Parse(containerSASURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid Azure container SAS URL")
	}
	if strings.Trim(u.Path, "/") == "" {
		return nil, fmt.Errorf("Azure SAS URL must name a container")
	}

	opts := &container.ClientOptions{}
	if httpClient != nil {
		opts.ClientOptions = azcore.ClientOptions{Transport: httpClient}
	}

	client, err := container.NewClientWithNoCredential(containerSASURL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}
	return &AzureMirror{client: client, prefix: prefix}, nil
}

// Name returns "azure".
func (m *AzureMirror) Name() string { return "azure" }

// Upload writes localPath as a block blob and returns the blob URL without the SAS query.
func (m *AzureMirror) Upload(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	name := objectKey(m.prefix, localPath)
	blob := m.client.NewBlockBlobClient(name)
	if _, err := blob.UploadFile(ctx, f, nil); err != nil {
		return "", fmt.Errorf("failed to upload %s to blob %s: %w", localPath, name, err)
	}

	location := blob.URL()
	if i := strings.IndexByte(location, '?'); i >= 0 {
		location = location[:i]
	}
	return location, nil
}
