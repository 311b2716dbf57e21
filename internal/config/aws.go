package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/voicebridge/dubline/internal/model"
)

// LoadAWS builds the shared aws.Config used to construct the Translate,
// Polly, and TranscribeStreaming clients (internal/translate, internal/synth,
// internal/transcribe). A missing/invalid credential chain surfaces as a
// ConfigError, not a retryable provider error.
func LoadAWS(ctx context.Context, region, accessKeyID, secretAccessKey string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("%w: load aws config: %v", model.ErrConfig, err)
	}
	return cfg, nil
}
