package inference

// DetectRequest is the request body for POST /detect
type DetectRequest struct {
	Img string `json:"img"`
}

// DetectResponse is the response body for POST /detect. Boxes are in pixels
// of the submitted image.
type DetectResponse struct {
	Detections []DetectedObject `json:"detections"`
}

// DetectedObject is a single YOLO detection. Class is the COCO label name;
// sidecars running stock weights report faces as "person".
type DetectedObject struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Box is an axis-aligned box as x1,y1,x2,y2
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// LandmarksRequest is the request body for POST /landmarks
type LandmarksRequest struct {
	Img      string `json:"img"`
	MaxFaces int    `json:"max_faces"`
}

// LandmarksResponse is the response body for POST /landmarks
type LandmarksResponse struct {
	Faces []FaceMesh `json:"faces"`
}

// FaceMesh holds the normalised FaceMesh points of one face, each as [x, y, z]
type FaceMesh struct {
	Landmarks [][3]float64 `json:"landmarks"`
}
