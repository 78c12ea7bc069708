package inference

import "errors"

var (
	// ErrInferenceUnavailable indicates the sidecar could not be reached after retries
	ErrInferenceUnavailable = errors.New("inference service unavailable")

	// ErrInvalidResponse indicates the sidecar returned a body that could not be decoded
	ErrInvalidResponse = errors.New("invalid response from inference service")
)
