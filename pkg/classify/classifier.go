// Package classify submits plant photos to a remote classification service
// and normalizes the result.
package classify

import (
	"context"

	"plantatlas/pkg/domain"
)

// Request carries one image to classify. Image is the raw base64 payload;
// Language selects the language of the returned name and description.
type Request struct {
	Image    string `json:"image"`
	Language string `json:"language"`
}

// Classifier identifies the plant on a photo.
type Classifier interface {
	Classify(ctx context.Context, req Request) (domain.Classification, error)
}
