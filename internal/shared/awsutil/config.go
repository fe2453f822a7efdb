// Package awsutil loads AWS configuration shared by the S3, SQS and DynamoDB clients.
package awsutil

import (
	"context"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

const defaultRegion = "us-east-1"

// Load loads the AWS configuration, using a custom endpoint if AWS_ENDPOINT_URL is set
// (e.g. http://localstack:4566). The endpoint is returned so callers can switch S3 to path-style.
func Load(ctx context.Context, region string) (aws.Config, string, error) {
	region = strings.TrimSpace(region)
	if region == "" {
		region = defaultRegion
	}
	endpoint := strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL"))
	if endpoint == "" {
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		return cfg, "", err
	}
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, r string, _ ...any) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL:               endpoint,
			HostnameImmutable: true,
			PartitionID:       "aws",
		}, nil
	})
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region), awsconfig.WithEndpointResolverWithOptions(resolver))
	return cfg, endpoint, err
}
