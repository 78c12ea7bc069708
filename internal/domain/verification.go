package domain

import (
	"encoding/json"
	"time"
)

const (
	MessageSamePerson      = "Same person detected"
	MessageDifferentPerson = "Different person detected"

	ErrMsgNoReferences    = "No reference images found for this student"
	ErrMsgNoLiveFace      = "No face detected in live image"
	ErrMsgEmbeddingFailed = "Failed to compute embedding for live face"
)

// VerificationResult representa o resultado de uma verificação de identidade
type VerificationResult struct {
	Success      bool    `json:"success"`
	Verified     bool    `json:"verified"`
	BestDistance float64 `json:"best_distance"`
	Threshold    float64 `json:"threshold"`
	Message      string  `json:"message,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// MarshalJSON leaves best_distance and threshold out of unsuccessful results
// so that a failure never reads as a match at distance zero.
func (r VerificationResult) MarshalJSON() ([]byte, error) {
	type wire struct {
		Success      bool     `json:"success"`
		Verified     bool     `json:"verified"`
		BestDistance *float64 `json:"best_distance,omitempty"`
		Threshold    *float64 `json:"threshold,omitempty"`
		Message      string   `json:"message,omitempty"`
		Error        string   `json:"error,omitempty"`
	}

	w := wire{Success: r.Success, Verified: r.Verified, Message: r.Message, Error: r.Error}
	if r.Success {
		w.BestDistance = &r.BestDistance
		w.Threshold = &r.Threshold
	}
	return json.Marshal(w)
}

// VerificationFailure builds an unsuccessful result carrying msg.
func VerificationFailure(msg string) *VerificationResult {
	return &VerificationResult{Success: false, Verified: false, Error: msg}
}

// VerificationStatus descreve as referências carregadas em memória para um aluno
type VerificationStatus struct {
	Loaded         bool     `json:"loaded"`
	ReferenceCount int      `json:"reference_count"`
	ReferenceViews []string `json:"reference_views"`
}

// ReferenceImage representa uma foto de referência armazenada
type ReferenceImage struct {
	Filename  string    `json:"filename"`
	StudentID string    `json:"student_id"`
	View      string    `json:"view"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
	Path      string    `json:"-"`
}
