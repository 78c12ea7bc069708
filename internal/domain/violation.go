package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ViolationType identifica o tipo de violação detectada
type ViolationType string

const (
	ViolationMultipleFaces  ViolationType = "multiple_faces"
	ViolationLookingAway    ViolationType = "looking_away"
	ViolationHeadTurning    ViolationType = "head_turning"
	ViolationDeviceDetected ViolationType = "device_detected"
)

// FrameViolationTypes lista os tipos produzidos pela análise de frames, em ordem fixa
var FrameViolationTypes = []ViolationType{
	ViolationMultipleFaces,
	ViolationLookingAway,
	ViolationHeadTurning,
	ViolationDeviceDetected,
}

// ClientViolationTypes são reportadas pelo navegador do aluno
var ClientViolationTypes = []ViolationType{
	"tab_switch",
	"window_blur",
	"fullscreen_exit",
	"copy_paste",
	"right_click",
}

// IsValid aceita tipos de frame e tipos reportados pelo cliente
func (t ViolationType) IsValid() bool {
	for _, v := range FrameViolationTypes {
		if t == v {
			return true
		}
	}
	for _, v := range ClientViolationTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Verdict representa o resultado da análise de um único frame
type Verdict struct {
	MultipleFaces  bool `json:"multiple_faces"`
	LookingAway    bool `json:"looking_away"`
	HeadTurning    bool `json:"head_turning"`
	DeviceDetected bool `json:"device_detected"`
}

// Get returns the flag for a frame violation type.
func (v Verdict) Get(t ViolationType) bool {
	switch t {
	case ViolationMultipleFaces:
		return v.MultipleFaces
	case ViolationLookingAway:
		return v.LookingAway
	case ViolationHeadTurning:
		return v.HeadTurning
	case ViolationDeviceDetected:
		return v.DeviceDetected
	}
	return false
}

// Merge ORs the flags of other into v.
func (v Verdict) Merge(other Verdict) Verdict {
	return Verdict{
		MultipleFaces:  v.MultipleFaces || other.MultipleFaces,
		LookingAway:    v.LookingAway || other.LookingAway,
		HeadTurning:    v.HeadTurning || other.HeadTurning,
		DeviceDetected: v.DeviceDetected || other.DeviceDetected,
	}
}

// Any reports whether at least one flag is set.
func (v Verdict) Any() bool {
	return v.MultipleFaces || v.LookingAway || v.HeadTurning || v.DeviceDetected
}

// Flagged returns the set flags in FrameViolationTypes order.
func (v Verdict) Flagged() []ViolationType {
	var out []ViolationType
	for _, t := range FrameViolationTypes {
		if v.Get(t) {
			out = append(out, t)
		}
	}
	return out
}

// Violation representa uma violação persistida para um par (aluno, prova)
type Violation struct {
	ID         uuid.UUID     `json:"id"`
	StudentID  string        `json:"student_id"`
	ExamID     string        `json:"exam_id"`
	Type       ViolationType `json:"type"`
	Confidence float64       `json:"confidence"`
	Timestamp  time.Time     `json:"timestamp"`
	Details    string        `json:"details,omitempty"`
}

// ViolationEvent é publicado no canal da prova quando uma violação é registrada
type ViolationEvent struct {
	Type      string     `json:"type"`
	ExamID    string     `json:"exam_id"`
	Violation *Violation `json:"violation"`
}

// NewViolationEvent builds the websocket/webhook envelope for v.
func NewViolationEvent(v *Violation) ViolationEvent {
	return ViolationEvent{
		Type:      "violation.recorded",
		ExamID:    v.ExamID,
		Violation: v,
	}
}

// JSON encodes the event, returning nil on failure.
func (e ViolationEvent) JSON() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return data
}
