package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// AnalyzeFrameResponse represents the verdict for one frame
type AnalyzeFrameResponse struct {
	Success    bool        `json:"success" example:"true"`
	Violations VerdictData `json:"violations"`
}

// VerdictData carries all four frame flags
type VerdictData struct {
	MultipleFaces  bool `json:"multiple_faces" example:"false"`
	LookingAway    bool `json:"looking_away" example:"true"`
	HeadTurning    bool `json:"head_turning" example:"false"`
	DeviceDetected bool `json:"device_detected" example:"false"`
}

// ViolationData represents one stored violation
type ViolationData struct {
	Type       string  `json:"type" example:"looking_away"`
	Confidence float64 `json:"confidence" example:"0.8"`
	Timestamp  string  `json:"timestamp" example:"2024-01-01T10:00:00Z"`
	Details    string  `json:"details" example:"Detected looking_away"`
}

// ViolationsResponse lists violations, newest first
type ViolationsResponse struct {
	Success    bool            `json:"success" example:"true"`
	Violations []ViolationData `json:"violations"`
}

// SuccessResponse represents a bare acknowledgement
type SuccessResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message,omitempty" example:"Reference images loaded successfully"`
}

// UploadFaceImageResponse names the stored file
type UploadFaceImageResponse struct {
	Success  bool   `json:"success" example:"true"`
	Filename string `json:"filename" example:"s-1_front_20240101_100000.png"`
}

// FaceImageData describes a stored reference photo
type FaceImageData struct {
	Filename  string `json:"filename" example:"s-1_front_20240101_100000.png"`
	View      string `json:"view_type" example:"front"`
	Timestamp string `json:"timestamp" example:"2024-01-01T10:00:00Z"`
	Size      int64  `json:"size" example:"48213"`
}

// FaceImagesResponse lists the reference photos of a student
type FaceImagesResponse struct {
	Success bool            `json:"success" example:"true"`
	Images  []FaceImageData `json:"images"`
}

// VerifyFaceResponse represents an identity verification result
type VerifyFaceResponse struct {
	Success      bool    `json:"success" example:"true"`
	Verified     bool    `json:"verified" example:"true"`
	BestDistance float64 `json:"best_distance,omitempty" example:"0.41"`
	Threshold    float64 `json:"threshold,omitempty" example:"0.85"`
	Message      string  `json:"message,omitempty" example:"Same person detected"`
	Error        string  `json:"error,omitempty" example:""`
}

// VerificationStatusData describes loaded references
type VerificationStatusData struct {
	Loaded         bool     `json:"loaded" example:"true"`
	ReferenceCount int      `json:"reference_count" example:"3"`
	ReferenceViews []string `json:"reference_views" example:"front,left,right"`
}

// VerificationStatusResponse wraps the status of one student
type VerificationStatusResponse struct {
	Success bool                   `json:"success" example:"true"`
	Status  VerificationStatusData `json:"status"`
}

// HealthResponse represents liveness and readiness payloads
type HealthResponse struct {
	Status string            `json:"status" example:"ok"`
	Checks map[string]string `json:"checks,omitempty"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

// NewSwagger creates and configures the Swagger documentation
func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "Proctor API",
		Version:     "v1.0.0",
		Description: "Online exam proctoring: frame analysis, violation log and student identity verification",
		Host:        "localhost:3000",
		Path:        "/",
	})

	validation := response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Request validation failed"}, "422", "Unprocessable Entity")
	invalidImage := response.New(ErrorResponse{Code: "INVALID_IMAGE", Message: "Invalid image format or corrupted file"}, "422", "Unprocessable Entity")
	unauthorized := response.New(ErrorResponse{Code: "UNAUTHORIZED", Message: "Invalid or missing API key"}, "401", "Unauthorized")
	internal := response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")
	security := []map[string][]string{{"ApiKeyAuth": {}}}

	endpoints := []*endpoint.EndPoint{
		// Proctoring

		endpoint.New(
			endpoint.POST,
			"/analyze_frame",
			endpoint.WithTags("Proctoring"),
			endpoint.WithSummary("Analyze a webcam frame"),
			endpoint.WithDescription("JSON body {image, student_id, exam_id}; image is a data URL or bare base64. Raised flags are recorded unless already recorded within the duplicate window."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(AnalyzeFrameResponse{}, "200", "Frame analyzed"),
			}),
			endpoint.WithErrors([]response.Response{unauthorized, validation, invalidImage, internal}),
			endpoint.WithSecurity(security),
		),

		endpoint.New(
			endpoint.GET,
			"/get_violations",
			endpoint.WithTags("Proctoring"),
			endpoint.WithSummary("List violations for a student in an exam"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("student_id", parameter.Query, parameter.WithDescription("Student identifier")),
				parameter.StrParam("exam_id", parameter.Query, parameter.WithDescription("Exam identifier")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ViolationsResponse{}, "200", "Violations, newest first"),
			}),
			endpoint.WithErrors([]response.Response{unauthorized, validation, internal}),
			endpoint.WithSecurity(security),
		),

		endpoint.New(
			endpoint.POST,
			"/report_violation",
			endpoint.WithTags("Proctoring"),
			endpoint.WithSummary("Report a client-side violation"),
			endpoint.WithDescription("JSON body {student_id, exam_id, violation_type, details, confidence}. Recorded without duplicate suppression."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SuccessResponse{}, "200", "Violation recorded"),
			}),
			endpoint.WithErrors([]response.Response{
				unauthorized,
				response.New(ErrorResponse{Code: "INVALID_VIOLATION_TYPE", Message: "Unknown violation type"}, "422", "Unprocessable Entity"),
				internal,
			}),
			endpoint.WithSecurity(security),
		),

		// Identity

		endpoint.New(
			endpoint.POST,
			"/upload_face_image",
			endpoint.WithTags("Identity"),
			endpoint.WithSummary("Store a reference photo"),
			endpoint.WithDescription("JSON body {image, student_id, view_type}. Loaded references of the student are discarded so the next verification reloads."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(UploadFaceImageResponse{}, "200", "Reference image saved"),
			}),
			endpoint.WithErrors([]response.Response{
				unauthorized,
				invalidImage,
				response.New(ErrorResponse{Code: "INVALID_VIEW", Message: "View type must be a non-empty label without '_' or path separators"}, "422", "Unprocessable Entity"),
				internal,
			}),
			endpoint.WithSecurity(security),
		),

		endpoint.New(
			endpoint.GET,
			"/get_face_images",
			endpoint.WithTags("Identity"),
			endpoint.WithSummary("List reference photos"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("student_id", parameter.Query, parameter.WithDescription("Student identifier")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(FaceImagesResponse{}, "200", "Reference photos, newest first"),
			}),
			endpoint.WithErrors([]response.Response{unauthorized, validation, internal}),
			endpoint.WithSecurity(security),
		),

		endpoint.New(
			endpoint.POST,
			"/verify_face",
			endpoint.WithTags("Identity"),
			endpoint.WithSummary("Verify a live face against stored references"),
			endpoint.WithDescription("JSON body {student_id, image}. Domain failures (no references, no face) return 200 with success=false."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(VerifyFaceResponse{}, "200", "Verification result"),
			}),
			endpoint.WithErrors([]response.Response{unauthorized, validation, invalidImage, internal}),
			endpoint.WithSecurity(security),
		),

		endpoint.New(
			endpoint.GET,
			"/face_verification_status",
			endpoint.WithTags("Identity"),
			endpoint.WithSummary("Reference set status"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("student_id", parameter.Query, parameter.WithDescription("Student identifier")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(VerificationStatusResponse{}, "200", "Status"),
			}),
			endpoint.WithErrors([]response.Response{unauthorized, validation}),
			endpoint.WithSecurity(security),
		),

		endpoint.New(
			endpoint.POST,
			"/load_reference_images",
			endpoint.WithTags("Identity"),
			endpoint.WithSummary("Load reference embeddings"),
			endpoint.WithDescription("JSON body {student_id}. Computes one embedding per stored view."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SuccessResponse{}, "200", "Load result"),
			}),
			endpoint.WithErrors([]response.Response{unauthorized, validation, internal}),
			endpoint.WithSecurity(security),
		),

		// Realtime

		endpoint.New(
			endpoint.GET,
			"/ws/exams/{exam_id}",
			endpoint.WithTags("Realtime"),
			endpoint.WithSummary("Live violation feed for an exam"),
			endpoint.WithDescription("WebSocket upgrade. Each message is a JSON event {exam_id, type, data, timestamp}."),
			endpoint.WithParams(
				parameter.StrParam("exam_id", parameter.Path, parameter.WithDescription("Exam identifier")),
			),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "HTTP_ERROR", Message: "Upgrade Required"}, "426", "Upgrade Required"),
			}),
		),

		// Health

		endpoint.New(
			endpoint.GET,
			"/health",
			endpoint.WithTags("Health"),
			endpoint.WithSummary("Liveness probe"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HealthResponse{}, "200", "Alive"),
			}),
		),

		endpoint.New(
			endpoint.GET,
			"/ready",
			endpoint.WithTags("Health"),
			endpoint.WithSummary("Readiness probe"),
			endpoint.WithDescription("Checks the database and the configured model backends."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HealthResponse{}, "200", "Ready"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(HealthResponse{Status: "unavailable"}, "503", "Service Unavailable"),
			}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
