package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
)

func newIdentityApp(verifier *MockVerificationService, store *MockReferenceImageStore) *fiber.App {
	h := NewIdentityHandler(verifier, store, testLogger())
	app := newTestApp()
	app.Post("/upload_face_image", h.UploadFaceImage)
	app.Get("/get_face_images", h.GetFaceImages)
	app.Post("/verify_face", h.VerifyFace)
	app.Get("/face_verification_status", h.VerificationStatus)
	app.Post("/load_reference_images", h.LoadReferenceImages)
	return app
}

func TestIdentityHandler_UploadFaceImage(t *testing.T) {
	frame := pngBase64(t)

	tests := []struct {
		name           string
		body           string
		setupMocks     func(*MockVerificationService, *MockReferenceImageStore)
		expectedStatus int
		checkResponse  func(t *testing.T, body []byte)
	}{
		{
			name: "stored and cache invalidated",
			body: fmt.Sprintf(`{"image":%q,"student_id":"s-1","view_type":"front"}`, frame),
			setupMocks: func(v *MockVerificationService, s *MockReferenceImageStore) {
				s.On("Save", mock.Anything, "s-1", "front", mock.Anything).Return(&domain.ReferenceImage{
					Filename:  "s-1_front_20240510_090000.png",
					StudentID: "s-1",
					View:      "front",
				}, nil)
				v.On("UnloadReferences", "s-1").Return()
			},
			expectedStatus: 200,
			checkResponse: func(t *testing.T, body []byte) {
				assert.JSONEq(t, `{"success":true,"filename":"s-1_front_20240510_090000.png"}`, string(body))
			},
		},
		{
			name:           "path traversal in student id",
			body:           fmt.Sprintf(`{"image":%q,"student_id":"../etc","view_type":"front"}`, frame),
			setupMocks:     func(v *MockVerificationService, s *MockReferenceImageStore) {},
			expectedStatus: 422,
			checkResponse: func(t *testing.T, body []byte) {
				assert.Contains(t, string(body), domain.ErrValidationFailed.Code)
			},
		},
		{
			name:           "invalid view",
			body:           fmt.Sprintf(`{"image":%q,"student_id":"s-1","view_type":"up/down"}`, frame),
			setupMocks:     func(v *MockVerificationService, s *MockReferenceImageStore) {},
			expectedStatus: 422,
			checkResponse: func(t *testing.T, body []byte) {
				assert.Contains(t, string(body), domain.ErrInvalidView.Code)
			},
		},
		{
			name:           "undecodable image",
			body:           `{"image":"@@@","student_id":"s-1","view_type":"front"}`,
			setupMocks:     func(v *MockVerificationService, s *MockReferenceImageStore) {},
			expectedStatus: 422,
			checkResponse: func(t *testing.T, body []byte) {
				assert.Contains(t, string(body), domain.ErrInvalidImage.Code)
			},
		},
		{
			name: "disk failure",
			body: fmt.Sprintf(`{"image":%q,"student_id":"s-1","view_type":"front"}`, frame),
			setupMocks: func(v *MockVerificationService, s *MockReferenceImageStore) {
				s.On("Save", mock.Anything, "s-1", "front", mock.Anything).Return(nil, errors.New("no space left on device"))
			},
			expectedStatus: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := new(MockVerificationService)
			store := new(MockReferenceImageStore)
			tt.setupMocks(verifier, store)

			resp, err := newIdentityApp(verifier, store).Test(jsonRequest("POST", "/upload_face_image", tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.checkResponse != nil {
				body, _ := io.ReadAll(resp.Body)
				tt.checkResponse(t, body)
			}
			verifier.AssertExpectations(t)
			store.AssertExpectations(t)
		})
	}
}

func TestIdentityHandler_GetFaceImages(t *testing.T) {
	base := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	verifier := new(MockVerificationService)
	store := new(MockReferenceImageStore)
	store.On("List", mock.Anything, "s-1").Return([]domain.ReferenceImage{
		{Filename: "a.png", View: "front", Timestamp: base, Size: 100},
		{Filename: "c.png", View: "right", Timestamp: base.Add(2 * time.Hour), Size: 300},
		{Filename: "b.png", View: "left", Timestamp: base.Add(time.Hour), Size: 200},
	}, nil)

	resp, err := newIdentityApp(verifier, store).Test(httptest.NewRequest("GET", "/get_face_images?student_id=s-1", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var out FaceImagesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Success)
	require.Len(t, out.Images, 3)
	assert.Equal(t, "c.png", out.Images[0].Filename)
	assert.Equal(t, "right", out.Images[0].ViewType)
	assert.Equal(t, int64(300), out.Images[0].Size)
	assert.Equal(t, "b.png", out.Images[1].Filename)
	assert.Equal(t, "a.png", out.Images[2].Filename)
	assert.Equal(t, "2024-05-10T09:00:00Z", out.Images[2].Timestamp)
}

func TestIdentityHandler_GetFaceImages_Empty(t *testing.T) {
	verifier := new(MockVerificationService)
	store := new(MockReferenceImageStore)
	store.On("List", mock.Anything, "s-9").Return([]domain.ReferenceImage{}, nil)

	resp, err := newIdentityApp(verifier, store).Test(httptest.NewRequest("GET", "/get_face_images?student_id=s-9", nil))
	require.NoError(t, err)

	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"success":true,"images":[]}`, string(body))
}

func TestIdentityHandler_VerifyFace(t *testing.T) {
	frame := pngBase64(t)

	t.Run("result passed through", func(t *testing.T) {
		verifier := new(MockVerificationService)
		verifier.On("VerifyFace", mock.Anything, "s-1", mock.Anything).Return(&domain.VerificationResult{
			Success:      true,
			Verified:     true,
			BestDistance: 0.42,
			Threshold:    0.85,
			Message:      domain.MessageSamePerson,
		}, nil)

		resp, err := newIdentityApp(verifier, new(MockReferenceImageStore)).
			Test(jsonRequest("POST", "/verify_face", fmt.Sprintf(`{"student_id":"s-1","image":%q}`, frame)))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		var out domain.VerificationResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.True(t, out.Verified)
		assert.Equal(t, 0.42, out.BestDistance)
		assert.Equal(t, domain.MessageSamePerson, out.Message)
	})

	t.Run("failure result is still 200", func(t *testing.T) {
		verifier := new(MockVerificationService)
		verifier.On("VerifyFace", mock.Anything, "s-1", mock.Anything).
			Return(domain.VerificationFailure(domain.ErrMsgNoReferences), nil)

		resp, err := newIdentityApp(verifier, new(MockReferenceImageStore)).
			Test(jsonRequest("POST", "/verify_face", fmt.Sprintf(`{"student_id":"s-1","image":%q}`, frame)))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		var out map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Equal(t, false, out["success"])
		assert.Equal(t, domain.ErrMsgNoReferences, out["error"])
		assert.NotContains(t, out, "best_distance")
		assert.NotContains(t, out, "threshold")
	})

	t.Run("missing student", func(t *testing.T) {
		verifier := new(MockVerificationService)

		resp, err := newIdentityApp(verifier, new(MockReferenceImageStore)).
			Test(jsonRequest("POST", "/verify_face", fmt.Sprintf(`{"image":%q}`, frame)))
		require.NoError(t, err)
		assert.Equal(t, 422, resp.StatusCode)
		verifier.AssertNotCalled(t, "VerifyFace", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestIdentityHandler_VerificationStatus(t *testing.T) {
	verifier := new(MockVerificationService)
	verifier.On("GetVerificationStatus", "s-1").Return(domain.VerificationStatus{
		Loaded:         true,
		ReferenceCount: 2,
		ReferenceViews: []string{"front", "left"},
	})

	resp, err := newIdentityApp(verifier, new(MockReferenceImageStore)).
		Test(httptest.NewRequest("GET", "/face_verification_status?student_id=s-1", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"success":true,"status":{"loaded":true,"reference_count":2,"reference_views":["front","left"]}}`, string(body))
}

func TestIdentityHandler_LoadReferenceImages(t *testing.T) {
	tests := []struct {
		name           string
		loaded         bool
		loadErr        error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "loaded",
			loaded:         true,
			expectedStatus: 200,
			expectedBody:   `{"success":true,"message":"Reference images loaded successfully"}`,
		},
		{
			name:           "nothing usable",
			loaded:         false,
			expectedStatus: 200,
			expectedBody:   `{"success":false,"message":"Failed to load reference images"}`,
		},
		{
			name:           "store unreadable",
			loadErr:        errors.New("permission denied"),
			expectedStatus: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := new(MockVerificationService)
			verifier.On("LoadReferenceImages", mock.Anything, "s-1").Return(tt.loaded, tt.loadErr)

			resp, err := newIdentityApp(verifier, new(MockReferenceImageStore)).
				Test(jsonRequest("POST", "/load_reference_images", `{"student_id":"s-1"}`))
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedBody != "" {
				body, _ := io.ReadAll(resp.Body)
				assert.JSONEq(t, tt.expectedBody, string(body))
			}
		})
	}
}
