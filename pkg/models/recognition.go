package models

// BoundingBox locates a recognized character in preprocessed image coordinates
type BoundingBox struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
}

// Union returns the smallest box containing both b and o.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return BoundingBox{
		X0: min(b.X0, o.X0),
		Y0: min(b.Y0, o.Y0),
		X1: max(b.X1, o.X1),
		Y1: max(b.Y1, o.Y1),
	}
}

// CharacterResult is one recognized character
type CharacterResult struct {
	Char       string      `json:"char"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
}

// RecognitionResult is the recognizer response for one image
type RecognitionResult struct {
	RawText      string            `json:"raw_text"`
	Confidence   float64           `json:"confidence"`
	PerCharacter []CharacterResult `json:"per_character"`
}

// ExtractedValue is the labeled reading found in recognized text.
// Normalized, when non-empty, matches ^\d+(\.\d+)?$.
type ExtractedValue struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized"`
}

// Reading is the digit string assembled from per-character output
type Reading struct {
	Value         string       `json:"value"`
	DecimalPlaces int          `json:"decimal_places"`
	Confidence    float64      `json:"confidence"`
	ROI           *BoundingBox `json:"roi,omitempty"`
}

// Accuracy compares recognized text to an expected reading
type Accuracy struct {
	ExpectedText string  `json:"expected_text"`
	CER          float64 `json:"character_error_rate"`
	WER          float64 `json:"word_error_rate"`
	MatchScore   float64 `json:"match_score"`
}
