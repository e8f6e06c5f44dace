package aws

import (
	"context"
	"testing"

	"permohonan-service/internal/common/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEndpoint(t *testing.T) {
	ep, err := staticEndpoint("http://localhost:4566")("s3", "ap-southeast-1")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4566", ep.URL)
	assert.Equal(t, "ap-southeast-1", ep.SigningRegion)
	assert.True(t, ep.HostnameImmutable)
}

func TestLoadConfig_Region(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	cfg, err := LoadConfig(context.Background(), config.AWSConfig{Region: "ap-southeast-1", Endpoint: "http://localhost:4566"})
	require.NoError(t, err)
	assert.Equal(t, "ap-southeast-1", cfg.Region)
	assert.NotNil(t, cfg.EndpointResolverWithOptions)

	assert.NotNil(t, NewS3Client(cfg, true))
	assert.NotNil(t, NewSESClient(cfg))
	assert.NotNil(t, NewSNSClient(cfg))
}
