// Package provider defines the image-generation provider contract and
// the error taxonomy shared by provider implementations and their
// callers.
package provider

// Status of a generation request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// GenerationRequest carries the parameters for one generation call.
// Built once by the orchestration layer and not mutated afterwards.
type GenerationRequest struct {
	Prompt         string
	Width          int
	Height         int
	Model          string
	NegativePrompt string
	Seed           *int64
	NumImages      int

	// Reference images switch the call into image-to-image mode.
	// Data holds pre-encoded base64 strings; Paths are loaded and
	// encoded by the provider when Data is empty.
	ReferenceImageData  []string
	ReferenceImagePaths []string

	// Extra holds provider-specific options passed through untouched.
	Extra map[string]any
}

// HasReference reports whether the request should run image-to-image.
func (r *GenerationRequest) HasReference() bool {
	return len(r.ReferenceImageData) > 0 || len(r.ReferenceImagePaths) > 0
}

// GenerationResult is produced exactly once per Generate call and never
// mutated after return.
type GenerationResult struct {
	Status       Status
	Images       [][]byte
	RequestID    string
	Model        string
	Prompt       string
	Seed         *int64
	DurationMs   int64
	ErrorMessage string

	// Raw response payload, kept for diagnostics only.
	Raw map[string]any
}

// Success reports whether generation completed with images.
func (r *GenerationResult) Success() bool {
	return r.Status == StatusSuccess
}

// Image returns the first generated image, or nil.
func (r *GenerationResult) Image() []byte {
	if len(r.Images) == 0 {
		return nil
	}
	return r.Images[0]
}

// ImageProvider is the contract a generation backend fulfills.
//
// Generate returns a FAILED result (not an error) for API-level
// failures; the error return is reserved for pre-flight problems such
// as an unreadable reference image, raised before any HTTP attempt.
type ImageProvider interface {
	Name() string
	Generate(req *GenerationRequest) (*GenerationResult, error)
	ValidateCredentials() []string
	Close() error
}
