package rekognition

// Config holds configuration for AWS Rekognition provider
type Config struct {
	// Region is the AWS region where Rekognition service will be used (e.g., "us-east-1")
	Region string

	// MinLabelConfidence is the DetectLabels cut-off in percent. It is kept
	// below the pipeline thresholds so that those remain authoritative.
	MinLabelConfidence float32

	// MaxLabels bounds the number of labels returned per frame
	MaxLabels int32

	// MaxImageSide downsizes frames before upload
	MaxImageSide int
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Region:             "us-east-1",
		MinLabelConfidence: 30,
		MaxLabels:          50,
		MaxImageSide:       1920,
	}
}
