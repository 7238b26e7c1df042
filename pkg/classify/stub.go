package classify

import (
	"context"

	"plantatlas/pkg/domain"
)

// StubClassifier returns a fixed result. Used by tests and local runs
// without a classification backend.
type StubClassifier struct {
	Result domain.Classification
	Err    error
}

// Classify implements Classifier.
func (s *StubClassifier) Classify(_ context.Context, _ Request) (domain.Classification, error) {
	if s.Err != nil {
		return domain.Classification{}, s.Err
	}
	return s.Result, nil
}
