package rekognition

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/smithy-go"
)

const (
	errCodeAccessDenied       = "AccessDeniedException"
	errCodeInvalidParameter   = "InvalidParameterException"
	errCodeInvalidImageFormat = "InvalidImageFormatException"
	errCodeImageTooLarge      = "ImageTooLargeException"
	errCodeThrottling         = "ThrottlingException"
	errCodeThroughputExceeded = "ProvisionedThroughputExceededException"
)

// API is the subset of the Rekognition client used by the provider
type API interface {
	DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
	DetectLabels(ctx context.Context, params *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
}

// Client wraps the AWS Rekognition client
type Client struct {
	rekognition API
	config      Config
}

// NewClient creates a new Rekognition client with the provided configuration
// It uses the AWS default credential chain to authenticate
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Client{
		rekognition: rekognition.NewFromConfig(awsCfg),
		config:      cfg,
	}, nil
}

// NewClientWithAPI wraps an existing API implementation
func NewClientWithAPI(api API, cfg Config) *Client {
	return &Client{
		rekognition: api,
		config:      cfg,
	}
}

// classifyError maps AWS API error codes onto package errors
func classifyError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case errCodeAccessDenied:
			return fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		case errCodeInvalidParameter, errCodeInvalidImageFormat, errCodeImageTooLarge:
			return fmt.Errorf("%s: %w: %s", op, ErrInvalidImage, apiErr.ErrorMessage())
		case errCodeThrottling, errCodeThroughputExceeded:
			return fmt.Errorf("%s: %w", op, ErrThrottled)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
