package domain

import (
	"strings"

	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

// KafkaCluster represents connection details for a Kafka cluster
type KafkaCluster struct {
	ID               string
	BootstrapServers []string
	ClientID         string
	SecurityConfig   SecurityConfig
	Properties       map[string]string
}

// SecurityConfig holds authentication configuration
type SecurityConfig struct {
	Protocol      SecurityProtocol
	SASLMechanism SASLMechanism
	Username      string
	Password      string
	TLSConfig     *TLSConfig
}

type SecurityProtocol string

const (
	SecurityProtocolPlaintext SecurityProtocol = "PLAINTEXT"
	SecurityProtocolSASLPlain SecurityProtocol = "SASL_PLAINTEXT"
	SecurityProtocolSASLSSL   SecurityProtocol = "SASL_SSL"
	SecurityProtocolSSL       SecurityProtocol = "SSL"
)

type SASLMechanism string

const (
	SASLMechanismPlain       SASLMechanism = "PLAIN"
	SASLMechanismScramSHA256 SASLMechanism = "SCRAM-SHA-256"
	SASLMechanismScramSHA512 SASLMechanism = "SCRAM-SHA-512"
)

// TLSConfig carries PEM material already read from secrets or files.
type TLSConfig struct {
	Enabled            bool
	InsecureSkipVerify bool
	CACert             []byte
	ClientCert         []byte
	ClientKey          []byte
}

// UsesSASL reports whether the protocol requires SASL authentication.
func (s SecurityConfig) UsesSASL() bool {
	return s.Protocol == SecurityProtocolSASLPlain || s.Protocol == SecurityProtocolSASLSSL
}

// UsesTLS reports whether the connection is encrypted.
func (s SecurityConfig) UsesTLS() bool {
	if s.Protocol == SecurityProtocolSSL || s.Protocol == SecurityProtocolSASLSSL {
		return true
	}
	return s.TLSConfig != nil && s.TLSConfig.Enabled
}

// Validate checks that the descriptor is usable.
func (c *KafkaCluster) Validate() error {
	if c == nil || len(c.BootstrapServers) == 0 {
		return apperrors.Configuration("At least one bootstrap server must be specified")
	}
	for _, s := range c.BootstrapServers {
		if strings.TrimSpace(s) == "" {
			return apperrors.Configuration("bootstrap server entries must not be empty")
		}
	}
	if c.SecurityConfig.UsesSASL() {
		switch c.SecurityConfig.SASLMechanism {
		case SASLMechanismPlain, SASLMechanismScramSHA256, SASLMechanismScramSHA512:
		default:
			return apperrors.Configuration("unsupported SASL mechanism %q", c.SecurityConfig.SASLMechanism)
		}
		if c.SecurityConfig.Username == "" {
			return apperrors.Configuration("SASL username must be specified")
		}
	}
	return nil
}
