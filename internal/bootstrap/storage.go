package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mauripsale/infographic-agent-pro/config"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/artifacts"
)

// OpenArtifactStore builds the S3 backed artifact store. A custom endpoint
// switches to path-style addressing for S3-compatible servers.
func OpenArtifactStore(ctx context.Context, cfg config.StorageConfig) (*artifacts.S3Store, error) {
	awsConf, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return artifacts.NewS3Store(client, s3.NewPresignClient(client), cfg.Bucket, cfg.Prefix, cfg.URLTTL), nil
}
