// Package resolve turns custom resource specs into domain descriptors,
// reading credentials from Secrets in the resource's namespace.
package resolve

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/quantica-technologies/kafka-backup-operator/api/v1alpha1"
	"github.com/quantica-technologies/kafka-backup-operator/internal/config"
	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/infrastructure/kafka"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

// DefaultPVCRoot is where claims are mounted into the operator pod
const DefaultPVCRoot = "/data"

// Default secret keys
const (
	DefaultCAKey                 = "ca.crt"
	DefaultCertKey               = "tls.crt"
	DefaultKeyKey                = "tls.key"
	DefaultUsernameKey           = "username"
	DefaultPasswordKey           = "password"
	DefaultAccessKeyIDKey        = "AWS_ACCESS_KEY_ID"
	DefaultSecretAccessKeyKey    = "AWS_SECRET_ACCESS_KEY"
	DefaultAzureAccountKeyKey    = "AZURE_STORAGE_KEY"
	DefaultAzureSASTokenKey      = "AZURE_SAS_TOKEN"
	DefaultAzureClientIDKey      = "AZURE_CLIENT_ID"
	DefaultAzureTenantIDKey      = "AZURE_TENANT_ID"
	DefaultAzureClientSecretKey  = "AZURE_CLIENT_SECRET"
	DefaultServiceAccountJSONKey = "SERVICE_ACCOUNT_JSON"
)

// Options tune the descriptors a Resolver produces
type Options struct {
	PVCRoot          string
	ClientID         string
	KafkaVersion     string
	FetchIdleTimeout time.Duration
}

// Resolver reads referenced objects through a controller-runtime client
type Resolver struct {
	client    client.Reader
	opts      Options
	validator *config.Validator
}

// New creates a Resolver.
func New(c client.Reader, opts Options) *Resolver {
	if opts.PVCRoot == "" {
		opts.PVCRoot = DefaultPVCRoot
	}
	return &Resolver{client: c, opts: opts, validator: config.NewValidator()}
}

// Cluster resolves the connection settings of a cluster, including TLS
// material and SASL credentials.
func (r *Resolver) Cluster(ctx context.Context, namespace string, spec *v1alpha1.KafkaClusterSpec) (*domain.KafkaCluster, error) {
	protocol := domain.SecurityProtocol(spec.SecurityProtocol)
	if protocol == "" {
		protocol = domain.SecurityProtocolPlaintext
	}

	cluster := &domain.KafkaCluster{
		ID:               strings.Join(spec.BootstrapServers, ","),
		BootstrapServers: append([]string(nil), spec.BootstrapServers...),
		ClientID:         r.opts.ClientID,
		SecurityConfig:   domain.SecurityConfig{Protocol: protocol},
		Properties:       map[string]string{},
	}
	if r.opts.KafkaVersion != "" {
		cluster.Properties[kafka.PropertyVersion] = r.opts.KafkaVersion
	}
	if r.opts.FetchIdleTimeout > 0 {
		cluster.Properties[kafka.PropertyFetchIdleTimeout] = strconv.FormatInt(r.opts.FetchIdleTimeout.Milliseconds(), 10)
	}

	if ref := spec.SASLSecret; ref != nil {
		secret, err := r.secret(ctx, namespace, ref.Name)
		if err != nil {
			return nil, err
		}
		username, err := value(secret, ref.UsernameKey, DefaultUsernameKey)
		if err != nil {
			return nil, err
		}
		password, err := value(secret, ref.PasswordKey, DefaultPasswordKey)
		if err != nil {
			return nil, err
		}
		cluster.SecurityConfig.SASLMechanism = domain.SASLMechanism(ref.Mechanism)
		cluster.SecurityConfig.Username = string(username)
		cluster.SecurityConfig.Password = string(password)
	}

	if ref := spec.TLSSecret; ref != nil {
		secret, err := r.secret(ctx, namespace, ref.Name)
		if err != nil {
			return nil, err
		}
		tls := &domain.TLSConfig{Enabled: true, InsecureSkipVerify: ref.InsecureSkipVerify}
		if tls.CACert, err = value(secret, ref.CAKey, DefaultCAKey); err != nil {
			return nil, err
		}
		if tls.ClientCert, tls.ClientKey, err = clientCertificate(secret, ref); err != nil {
			return nil, err
		}
		cluster.SecurityConfig.TLSConfig = tls
	}

	return cluster, nil
}

// clientCertificate returns the optional client key pair. Explicit keys must
// exist; the default keys are used only when both are present.
func clientCertificate(secret *corev1.Secret, ref *v1alpha1.TLSSecretRef) ([]byte, []byte, error) {
	if ref.CertKey != "" || ref.KeyKey != "" {
		cert, err := value(secret, ref.CertKey, DefaultCertKey)
		if err != nil {
			return nil, nil, err
		}
		key, err := value(secret, ref.KeyKey, DefaultKeyKey)
		if err != nil {
			return nil, nil, err
		}
		return cert, key, nil
	}
	cert, hasCert := secret.Data[DefaultCertKey]
	key, hasKey := secret.Data[DefaultKeyKey]
	if hasCert && hasKey {
		return cert, key, nil
	}
	return nil, nil, nil
}

// Storage resolves a storage spec and its credentials.
func (r *Resolver) Storage(ctx context.Context, namespace string, spec *v1alpha1.StorageSpec) (*domain.StorageConfig, error) {
	if err := r.validator.ValidateStorage(spec); err != nil {
		return nil, err
	}

	switch spec.StorageType {
	case "", "pvc":
		return &domain.StorageConfig{
			Type:    domain.StorageTypeLocal,
			Backend: &domain.LocalConfig{BasePath: r.PVCPath(spec.PVC)},
		}, nil

	case "s3":
		s3 := spec.S3
		backend := &domain.S3Config{
			Bucket:       s3.Bucket,
			Region:       s3.Region,
			Endpoint:     s3.Endpoint,
			UsePathStyle: s3.ForcePathStyle,
		}
		if ref := s3.CredentialsSecret; ref != nil {
			secret, err := r.secret(ctx, namespace, ref.Name)
			if err != nil {
				return nil, err
			}
			accessKey, err := value(secret, ref.AccessKeyIDKey, DefaultAccessKeyIDKey)
			if err != nil {
				return nil, err
			}
			secretKey, err := value(secret, ref.SecretAccessKeyKey, DefaultSecretAccessKeyKey)
			if err != nil {
				return nil, err
			}
			backend.Credentials = &domain.StaticCredentials{
				AccessKeyID:     string(accessKey),
				SecretAccessKey: string(secretKey),
			}
		}
		return &domain.StorageConfig{Type: domain.StorageTypeS3, Prefix: s3.Prefix, Backend: backend}, nil

	case "azure":
		backend, err := r.azure(ctx, namespace, spec.Azure)
		if err != nil {
			return nil, err
		}
		return &domain.StorageConfig{Type: domain.StorageTypeAzure, Prefix: spec.Azure.Prefix, Backend: backend}, nil

	case "gcs":
		gcs := spec.GCS
		backend := &domain.GCSConfig{Bucket: gcs.Bucket}
		if ref := gcs.CredentialsSecret; ref != nil {
			secret, err := r.secret(ctx, namespace, ref.Name)
			if err != nil {
				return nil, err
			}
			if backend.CredentialsJSON, err = value(secret, ref.ServiceAccountJSONKey, DefaultServiceAccountJSONKey); err != nil {
				return nil, err
			}
		}
		return &domain.StorageConfig{Type: domain.StorageTypeGCS, Prefix: gcs.Prefix, Backend: backend}, nil
	}

	return nil, apperrors.Configuration("Invalid storage type '%s': must be one of: pvc, s3, azure, gcs", spec.StorageType)
}

// azure picks the first configured authentication method: workload
// identity, service principal, SAS token, then account key.
func (r *Resolver) azure(ctx context.Context, namespace string, spec *v1alpha1.AzureStorageSpec) (*domain.AzureConfig, error) {
	cfg := &domain.AzureConfig{
		AccountName: spec.AccountName,
		Container:   spec.Container,
		Endpoint:    spec.Endpoint,
	}

	switch {
	case spec.UseWorkloadIdentity:
		cfg.UseWorkloadIdentity = true

	case spec.ServicePrincipalSecret != nil:
		ref := spec.ServicePrincipalSecret
		secret, err := r.secret(ctx, namespace, ref.Name)
		if err != nil {
			return nil, err
		}
		clientID, err := value(secret, ref.ClientIDKey, DefaultAzureClientIDKey)
		if err != nil {
			return nil, err
		}
		tenantID, err := value(secret, ref.TenantIDKey, DefaultAzureTenantIDKey)
		if err != nil {
			return nil, err
		}
		clientSecret, err := value(secret, ref.ClientSecretKey, DefaultAzureClientSecretKey)
		if err != nil {
			return nil, err
		}
		cfg.ClientID, cfg.TenantID, cfg.ClientSecret = string(clientID), string(tenantID), string(clientSecret)

	case spec.SASTokenSecret != nil:
		ref := spec.SASTokenSecret
		secret, err := r.secret(ctx, namespace, ref.Name)
		if err != nil {
			return nil, err
		}
		token, err := value(secret, ref.SASTokenKey, DefaultAzureSASTokenKey)
		if err != nil {
			return nil, err
		}
		cfg.SASToken = string(token)

	case spec.CredentialsSecret != nil:
		ref := spec.CredentialsSecret
		secret, err := r.secret(ctx, namespace, ref.Name)
		if err != nil {
			return nil, err
		}
		key, err := value(secret, ref.AccountKeyKey, DefaultAzureAccountKeyKey)
		if err != nil {
			return nil, err
		}
		cfg.AccountKey = string(key)
	}

	return cfg, nil
}

// PVCPath is <root>/<claimName>[/<subPath>].
func (r *Resolver) PVCPath(spec *v1alpha1.PVCStorageSpec) string {
	if spec.SubPath == "" {
		return path.Join(r.opts.PVCRoot, spec.ClaimName)
	}
	return path.Join(r.opts.PVCRoot, spec.ClaimName, spec.SubPath)
}

// secret fetches a Secret. A missing Secret is transient since it is often
// created after the resource that references it.
func (r *Resolver) secret(ctx context.Context, namespace, name string) (*corev1.Secret, error) {
	var secret corev1.Secret
	if err := r.client.Get(ctx, types.NamespacedName{Namespace: namespace, Name: name}, &secret); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, apperrors.Transient(err, fmt.Sprintf("secret %s/%s not found", namespace, name))
		}
		return nil, apperrors.Transient(err, fmt.Sprintf("failed to get secret %s/%s", namespace, name))
	}
	return &secret, nil
}

func value(secret *corev1.Secret, key, def string) ([]byte, error) {
	if key == "" {
		key = def
	}
	v, ok := secret.Data[key]
	if !ok {
		if s, found := secret.StringData[key]; found {
			return []byte(s), nil
		}
		return nil, apperrors.Configuration("secret %s/%s has no key %q", secret.Namespace, secret.Name, key)
	}
	return v, nil
}
