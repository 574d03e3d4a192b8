package kafka

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

func TestBuildSaramaConfigPlaintext(t *testing.T) {
	config, err := buildSaramaConfig(&domain.KafkaCluster{
		BootstrapServers: []string{"kafka:9092"},
		SecurityConfig:   domain.SecurityConfig{Protocol: domain.SecurityProtocolPlaintext},
	})
	if err != nil {
		t.Fatalf("buildSaramaConfig returned error: %v", err)
	}
	if config.Net.SASL.Enable || config.Net.TLS.Enable {
		t.Errorf("plaintext cluster enabled SASL=%v TLS=%v", config.Net.SASL.Enable, config.Net.TLS.Enable)
	}
	if config.ClientID != defaultClientID {
		t.Errorf("ClientID = %q, want %q", config.ClientID, defaultClientID)
	}
	if !config.Version.IsAtLeast(sarama.V2_8_0_0) {
		t.Errorf("Version = %s", config.Version)
	}
}

func TestBuildSaramaConfigSCRAM(t *testing.T) {
	for _, tc := range []struct {
		mechanism domain.SASLMechanism
		want      sarama.SASLMechanism
	}{
		{domain.SASLMechanismScramSHA256, sarama.SASLTypeSCRAMSHA256},
		{domain.SASLMechanismScramSHA512, sarama.SASLTypeSCRAMSHA512},
		{domain.SASLMechanismPlain, sarama.SASLTypePlaintext},
	} {
		config, err := buildSaramaConfig(&domain.KafkaCluster{
			BootstrapServers: []string{"kafka:9093"},
			SecurityConfig: domain.SecurityConfig{
				Protocol:      domain.SecurityProtocolSASLSSL,
				SASLMechanism: tc.mechanism,
				Username:      "backup",
				Password:      "secret",
			},
		})
		if err != nil {
			t.Fatalf("%s: buildSaramaConfig returned error: %v", tc.mechanism, err)
		}
		if !config.Net.SASL.Enable || config.Net.SASL.Mechanism != tc.want {
			t.Errorf("%s: SASL enable=%v mechanism=%s", tc.mechanism, config.Net.SASL.Enable, config.Net.SASL.Mechanism)
		}
		if !config.Net.TLS.Enable {
			t.Errorf("%s: SASL_SSL did not enable TLS", tc.mechanism)
		}
		if tc.mechanism != domain.SASLMechanismPlain {
			if config.Net.SASL.SCRAMClientGeneratorFunc == nil {
				t.Fatalf("%s: no SCRAM client generator", tc.mechanism)
			}
			client := config.Net.SASL.SCRAMClientGeneratorFunc()
			if err := client.Begin("backup", "secret", ""); err != nil {
				t.Errorf("%s: Begin returned error: %v", tc.mechanism, err)
			}
			first, err := client.Step("")
			if err != nil || first == "" {
				t.Errorf("%s: first SCRAM step = %q, %v", tc.mechanism, first, err)
			}
		}
	}
}

func TestBuildSaramaConfigRejectsBadPEM(t *testing.T) {
	_, err := buildSaramaConfig(&domain.KafkaCluster{
		BootstrapServers: []string{"kafka:9093"},
		SecurityConfig: domain.SecurityConfig{
			Protocol:  domain.SecurityProtocolSSL,
			TLSConfig: &domain.TLSConfig{Enabled: true, CACert: []byte("not a certificate")},
		},
	})
	if !apperrors.IsKind(err, apperrors.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestBuildSaramaConfigRequiresBootstrapServers(t *testing.T) {
	_, err := buildSaramaConfig(&domain.KafkaCluster{})
	if !apperrors.IsKind(err, apperrors.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want apperrors.Kind
	}{
		{"leader moved", sarama.ErrNotLeaderForPartition, apperrors.KindTransient},
		{"out of brokers", sarama.ErrOutOfBrokers, apperrors.KindTransient},
		{"auth failed", sarama.ErrSASLAuthenticationFailed, apperrors.KindConfiguration},
		{"unknown topic", sarama.ErrUnknownTopicOrPartition, apperrors.KindConfiguration},
		{"other", errors.New("boom"), apperrors.KindInternal},
	} {
		if got := apperrors.KindOf(classify(tc.err, "op")); got != tc.want {
			t.Errorf("%s: kind = %s, want %s", tc.name, got, tc.want)
		}
	}
	if classify(nil, "op") != nil {
		t.Error("classify(nil) should be nil")
	}
}
