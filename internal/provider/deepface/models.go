package deepface

// DetectorSkip disables face detection on the DeepFace side
const DetectorSkip = "skip"

// RepresentRequest for POST /represent
type RepresentRequest struct {
	Img              string `json:"img"`               // base64 encoded image or data URL
	Model            string `json:"model_name"`        // "Facenet512", "VGG-Face", etc
	Detector         string `json:"detector_backend"`  // "retinaface", "mtcnn", "skip", etc
	EnforceDetection bool   `json:"enforce_detection"` // reject images without a face
}

// RepresentResponse from POST /represent
type RepresentResponse struct {
	Results []RepresentResult `json:"results"`
}

type RepresentResult struct {
	Embedding      []float64  `json:"embedding"`
	FacialArea     FacialArea `json:"facial_area"`
	FaceConfidence float64    `json:"face_confidence"`
}

type FacialArea struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}
