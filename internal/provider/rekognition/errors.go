package rekognition

import "errors"

var (
	// ErrInvalidCredentials indicates that AWS credentials are invalid or missing
	ErrInvalidCredentials = errors.New("invalid or missing AWS credentials")

	// ErrInvalidImage indicates that the image was rejected before or by Rekognition
	ErrInvalidImage = errors.New("invalid image for rekognition")

	// ErrThrottled indicates that the account hit Rekognition rate limits
	ErrThrottled = errors.New("rekognition request throttled")
)
