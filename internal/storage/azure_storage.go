package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	apperrors "github.com/anime-shed/image-eval-go/internal/errors"
)

// AzureScheme prefixes Azure source URIs: az://container/prefix
const AzureScheme = "az"

// NewAzureClient creates a blob client from a connection string, or from an
// account name and key when the connection string is empty
func NewAzureClient(connectionString, accountName, accountKey string) (*azblob.Client, error) {
	if connectionString != "" {
		return azblob.NewClientFromConnectionString(connectionString, nil)
	}
	if accountName == "" || accountKey == "" {
		return nil, fmt.Errorf("azure account name and key are required")
	}
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}

	return azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
}

// AzureSource lists the blobs directly under a prefix of one container
type AzureSource struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzureSource creates a source over container/prefix
func NewAzureSource(client *azblob.Client, container, prefix string) *AzureSource {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &AzureSource{client: client, container: container, prefix: prefix}
}

// ParseAzureURI splits az://container/prefix
func ParseAzureURI(uri string) (container, prefix string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid azure URI: %w", err)
	}
	if u.Scheme != AzureScheme || u.Host == "" {
		return "", "", fmt.Errorf("invalid azure URI %q, expected az://container/prefix", uri)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

// Location returns the az:// URI of the source
func (s *AzureSource) Location() string {
	return fmt.Sprintf("%s://%s/%s", AzureScheme, s.container, s.prefix)
}

// List returns the blob names under the prefix, without the prefix. Blobs
// in deeper virtual directories are not included.
func (s *AzureSource) List(ctx context.Context) ([]string, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if s.prefix != "" {
		opts.Prefix = &s.prefix
	}
	pager := s.client.NewListBlobsFlatPager(s.container, opts)

	var names []string
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			if bloberror.HasCode(err, bloberror.ContainerNotFound) {
				return nil, apperrors.NewDirectoryNotFoundError(s.Location(), err)
			}
			return nil, apperrors.NewNetworkError("failed to list blobs", err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			name := strings.TrimPrefix(*item.Name, s.prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Materialize downloads the blob into a temporary file
func (s *AzureSource) Materialize(ctx context.Context, name string) (string, func(), error) {
	blobName := path.Join(s.prefix, name)
	resp, err := s.client.DownloadStream(ctx, s.container, blobName, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return "", noCleanup, apperrors.NewImageLoadError(s.Location()+name, err)
		}
		return "", noCleanup, apperrors.NewNetworkError("download failed", err)
	}
	defer resp.Body.Close()

	return spoolFile(resp.Body, name)
}
