package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

const defaultClientID = "kafka-backup-operator"

// Cluster properties understood by the client
const (
	PropertyVersion          = "kafka.version"
	PropertyFetchIdleTimeout = "fetch.idle.timeout.ms"
)

// buildSaramaConfig translates a cluster descriptor into a client config.
func buildSaramaConfig(cluster *domain.KafkaCluster) (*sarama.Config, error) {
	if err := cluster.Validate(); err != nil {
		return nil, err
	}

	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0
	config.ClientID = defaultClientID
	if cluster.ClientID != "" {
		config.ClientID = cluster.ClientID
	}
	config.Metadata.Retry.Max = 3
	config.Metadata.Retry.Backoff = 250 * time.Millisecond

	if v, ok := cluster.Properties[PropertyVersion]; ok && v != "" {
		version, err := sarama.ParseKafkaVersion(v)
		if err != nil {
			return nil, apperrors.Configuration("invalid kafka version %q", v)
		}
		config.Version = version
	}

	if v, ok := cluster.Properties["request.timeout.ms"]; ok {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return nil, apperrors.Configuration("invalid request.timeout.ms %q", v)
		}
		config.Net.ReadTimeout = time.Duration(ms) * time.Millisecond
		config.Net.WriteTimeout = time.Duration(ms) * time.Millisecond
	}

	sec := cluster.SecurityConfig
	if sec.UsesSASL() {
		config.Net.SASL.Enable = true
		config.Net.SASL.Handshake = true
		config.Net.SASL.User = sec.Username
		config.Net.SASL.Password = sec.Password

		switch sec.SASLMechanism {
		case domain.SASLMechanismScramSHA256:
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{HashGeneratorFcn: sha256Generator}
			}
		case domain.SASLMechanismScramSHA512:
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{HashGeneratorFcn: sha512Generator}
			}
		default:
			config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	}

	if sec.UsesTLS() {
		tlsConfig, err := buildTLSConfig(sec.TLSConfig)
		if err != nil {
			return nil, err
		}
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = tlsConfig
	}

	return config, nil
}

func buildTLSConfig(cfg *domain.TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg == nil {
		return tlsConfig, nil
	}

	tlsConfig.InsecureSkipVerify = cfg.InsecureSkipVerify

	if len(cfg.CACert) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(cfg.CACert) {
			return nil, apperrors.Configuration("CA certificate is not valid PEM")
		}
		tlsConfig.RootCAs = pool
	}

	if len(cfg.ClientCert) > 0 || len(cfg.ClientKey) > 0 {
		cert, err := tls.X509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, apperrors.Configuration("invalid client certificate: %v", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func describeCluster(cluster *domain.KafkaCluster) string {
	if cluster.ID != "" {
		return cluster.ID
	}
	return fmt.Sprint(cluster.BootstrapServers)
}

// fetchIdleTimeout is how long a partition read waits for records before
// checking the high-water mark again.
func fetchIdleTimeout(cluster *domain.KafkaCluster) time.Duration {
	if v, ok := cluster.Properties[PropertyFetchIdleTimeout]; ok {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultFetchIdleTimeout
}
