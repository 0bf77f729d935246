package models

// These structs define the JSON payloads exchanged with callers of the
// extraction function and the events that feed it.

// ErrorResponse is the body returned for any rejected or failed request.
type ErrorResponse struct {
	Error      string `json:"error"`
	RetryAfter *int   `json:"retryAfter,omitempty"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// GCSEvent is the payload of a storage object-finalized CloudEvent.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        string `json:"size"`
}

// FileReport is one line of output from the batch extractor.
type FileReport struct {
	File   string            `json:"file"`
	Result *ExtractionResult `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
	Kind   string            `json:"kind,omitempty"`
}
