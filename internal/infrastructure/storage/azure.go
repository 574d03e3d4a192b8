package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

// Additional Azure credential sources
const (
	CredentialSourceSAS              = "sas-token"
	CredentialSourceServicePrincipal = "service-principal"
)

// AzureRepository implements StorageRepository for Azure Blob Storage
type AzureRepository struct {
	client             *azblob.Client
	container          string
	prefix             string
	streamingThreshold int64
	credentialSource   string
}

// NewAzureRepository resolves credentials and builds the client.
func NewAzureRepository(ctx context.Context, cfg *domain.AzureConfig, prefix string, opts Options) (*AzureRepository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, source, err := newAzureClient(cfg)
	if err != nil {
		return nil, err
	}

	return &AzureRepository{
		client:             client,
		container:          cfg.Container,
		prefix:             strings.Trim(prefix, "/"),
		streamingThreshold: opts.StreamingThreshold,
		credentialSource:   source,
	}, nil
}

// newAzureClient applies the resolution order: account key, SAS token,
// service principal, workload identity (explicit or detected from the
// federated token file), then the default Azure chain.
func newAzureClient(cfg *domain.AzureConfig) (*azblob.Client, string, error) {
	serviceURL := cfg.ServiceURL()

	switch {
	case cfg.AccountKey != "":
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, "", apperrors.WithKind(err, apperrors.KindConfiguration, "invalid Azure storage account key")
		}
		client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return nil, "", apperrors.WithKind(err, apperrors.KindConfiguration, "failed to create Azure client")
		}
		return client, CredentialSourceStatic, nil

	case cfg.SASToken != "":
		sasURL := strings.TrimSuffix(serviceURL, "/") + "/?" + strings.TrimPrefix(cfg.SASToken, "?")
		client, err := azblob.NewClientWithNoCredential(sasURL, nil)
		if err != nil {
			return nil, "", apperrors.WithKind(err, apperrors.KindConfiguration, "failed to create Azure client")
		}
		return client, CredentialSourceSAS, nil

	case cfg.ClientSecret != "":
		cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
		if err != nil {
			return nil, "", apperrors.WithKind(err, apperrors.KindConfiguration, "invalid Azure service principal")
		}
		return newAzureTokenClient(serviceURL, cred, CredentialSourceServicePrincipal)

	case cfg.UseWorkloadIdentity || cfg.FederatedTokenFile != "" || os.Getenv("AZURE_FEDERATED_TOKEN_FILE") != "":
		cred, err := azidentity.NewWorkloadIdentityCredential(&azidentity.WorkloadIdentityCredentialOptions{
			ClientID:      cfg.ClientID,
			TenantID:      cfg.TenantID,
			TokenFilePath: cfg.FederatedTokenFile,
		})
		if err != nil {
			return nil, "", apperrors.WithKind(err, apperrors.KindConfiguration, "Azure workload identity is not available")
		}
		return newAzureTokenClient(serviceURL, cred, CredentialSourceFederated)

	default:
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, "", apperrors.WithKind(err, apperrors.KindConfiguration,
				"no Azure credentials: configure useWorkloadIdentity or a credentials secret")
		}
		return newAzureTokenClient(serviceURL, cred, CredentialSourceDefault)
	}
}

func newAzureTokenClient(serviceURL string, cred azcore.TokenCredential, source string) (*azblob.Client, string, error) {
	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, "", apperrors.WithKind(err, apperrors.KindConfiguration, "failed to create Azure client")
	}
	return client, source, nil
}

func (a *AzureRepository) blobName(key string) string {
	if a.prefix == "" {
		return strings.TrimPrefix(key, "/")
	}
	return path.Join(a.prefix, key)
}

func (a *AzureRepository) relKey(name string) string {
	if a.prefix == "" {
		return name
	}
	return strings.TrimPrefix(strings.TrimPrefix(name, a.prefix), "/")
}

func (a *AzureRepository) Put(ctx context.Context, key string, data io.Reader, metadata *repository.ObjectMetadata) error {
	var custom map[string]*string
	if metadata != nil && len(metadata.CustomMetadata) > 0 {
		custom = make(map[string]*string, len(metadata.CustomMetadata))
		for k, v := range metadata.CustomMetadata {
			v := v
			custom[strings.ReplaceAll(k, "-", "_")] = &v
		}
	}

	// Staged blocks only become visible when the block list is committed at
	// the end of UploadStream, so a failed upload leaves nothing behind.
	if useStreaming(metadata, a.streamingThreshold) {
		_, err := a.client.UploadStream(ctx, a.container, a.blobName(key), data, &azblob.UploadStreamOptions{
			Metadata: custom,
		})
		if err != nil {
			return classifyAzure(err, "upload", key)
		}
		return nil
	}

	buf, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}
	_, err = a.client.UploadBuffer(ctx, a.container, a.blobName(key), buf, &azblob.UploadBufferOptions{
		Metadata: custom,
	})
	if err != nil {
		return classifyAzure(err, "put", key)
	}
	return nil
}

func (a *AzureRepository) Get(ctx context.Context, key string) (io.ReadCloser, *repository.ObjectMetadata, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, a.blobName(key), nil)
	if err != nil {
		return nil, nil, classifyAzure(err, "get", key)
	}

	metadata := &repository.ObjectMetadata{
		Key:            key,
		CustomMetadata: fromAzureMetadata(resp.Metadata),
	}
	if resp.ContentLength != nil {
		metadata.Size = *resp.ContentLength
	}
	if resp.LastModified != nil {
		metadata.LastModified = *resp.LastModified
	}
	if resp.ETag != nil {
		metadata.ETag = string(*resp.ETag)
	}

	return resp.Body, metadata, nil
}

func (a *AzureRepository) List(ctx context.Context, prefix string) ([]*repository.ObjectInfo, error) {
	fullPrefix := a.blobName(prefix)
	if (strings.HasSuffix(prefix, "/") || prefix == "") && fullPrefix != "" && !strings.HasSuffix(fullPrefix, "/") {
		fullPrefix += "/"
	}

	var objects []*repository.ObjectInfo
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{
		Prefix: &fullPrefix,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classifyAzure(err, "list", prefix)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			info := &repository.ObjectInfo{Key: a.relKey(*item.Name)}
			if p := item.Properties; p != nil {
				if p.ContentLength != nil {
					info.Size = *p.ContentLength
				}
				if p.LastModified != nil {
					info.LastModified = *p.LastModified
				}
				if p.ETag != nil {
					info.ETag = string(*p.ETag)
				}
			}
			objects = append(objects, info)
		}
	}
	return objects, nil
}

func (a *AzureRepository) Delete(ctx context.Context, key string) error {
	_, err := a.client.DeleteBlob(ctx, a.container, a.blobName(key), nil)
	if err != nil {
		err = classifyAzure(err, "delete", key)
		if apperrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	return nil
}

func (a *AzureRepository) Exists(ctx context.Context, key string) (bool, error) {
	_, err := a.GetMetadata(ctx, key)
	if err == nil {
		return true, nil
	}
	if apperrors.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (a *AzureRepository) GetMetadata(ctx context.Context, key string) (*repository.ObjectMetadata, error) {
	blobClient := a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(a.blobName(key))
	props, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		return nil, classifyAzure(err, "head", key)
	}

	metadata := &repository.ObjectMetadata{
		Key:            key,
		CustomMetadata: fromAzureMetadata(props.Metadata),
	}
	if props.ContentLength != nil {
		metadata.Size = *props.ContentLength
	}
	if props.ContentType != nil {
		metadata.ContentType = *props.ContentType
	}
	if props.LastModified != nil {
		metadata.LastModified = *props.LastModified
	}
	if props.ETag != nil {
		metadata.ETag = string(*props.ETag)
	}
	return metadata, nil
}

func (a *AzureRepository) Close() error {
	return nil
}

func (a *AzureRepository) HealthCheck(ctx context.Context) error {
	_, err := a.client.ServiceClient().NewContainerClient(a.container).GetProperties(ctx, nil)
	if err != nil {
		return classifyAzure(err, "get container properties", a.container)
	}
	return nil
}

// CredentialSource reports which step of the chain produced credentials.
func (a *AzureRepository) CredentialSource() string {
	return a.credentialSource
}

func fromAzureMetadata(in map[string]*string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}

func classifyAzure(err error, op, key string) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ResourceNotFound) {
		return apperrors.NotFound(key, err)
	}

	msg := fmt.Sprintf("azure %s %s", op, key)

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch code := respErr.StatusCode; {
		case code == http.StatusNotFound:
			if bloberror.HasCode(err, bloberror.ContainerNotFound) {
				return apperrors.WithKind(err, apperrors.KindConfiguration, msg)
			}
			return apperrors.NotFound(key, err)
		case code == http.StatusTooManyRequests || code >= 500:
			return apperrors.Transient(err, msg)
		case code == http.StatusForbidden || code == http.StatusUnauthorized:
			return apperrors.WithKind(err, apperrors.KindConfiguration, msg)
		}
	}

	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) {
		return apperrors.WithKind(err, apperrors.KindConfiguration, msg)
	}

	return classifyNetwork(err, msg)
}
