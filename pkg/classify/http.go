package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"plantatlas/pkg/domain"
)

// HTTPClassifier calls a hosted classification function over HTTP.
type HTTPClassifier struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClassifier builds a classifier client.
// apiKey can be empty when the endpoint does not require authentication.
func NewHTTPClassifier(endpoint, apiKey string) *HTTPClassifier {
	return &HTTPClassifier{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		apiKey:   strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type classifyResponse struct {
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	TypeCode      int       `json:"typeCode"`
	Description   string    `json:"description"`
	ActivityCurve []float64 `json:"activityCurve"`
}

type classifyErrorResponse struct {
	Error string `json:"error"`
}

// Classify implements Classifier.
func (c *HTTPClassifier) Classify(ctx context.Context, req Request) (domain.Classification, error) {
	if c.endpoint == "" {
		return domain.Classification{}, fmt.Errorf("classifier endpoint required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return domain.Classification{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Classification{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp classifyErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return domain.Classification{}, fmt.Errorf("classifier error: %s", errResp.Error)
		}
		return domain.Classification{}, fmt.Errorf("classifier error: %s", resp.Status)
	}

	var payload classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Classification{}, fmt.Errorf("classifier decode: %w", err)
	}
	return normalize(payload)
}

func normalize(payload classifyResponse) (domain.Classification, error) {
	code := domain.ClassifyCode(payload.Code)
	switch code {
	case domain.ClassifySuccess, domain.ClassifyNotPlant, domain.ClassifyLowConfidence, domain.ClassifyError:
	default:
		return domain.Classification{}, fmt.Errorf("unknown classifier code %q", payload.Code)
	}
	result := domain.Classification{Code: code}
	if code != domain.ClassifySuccess {
		return result, nil
	}

	typeCode := domain.PlantType(payload.TypeCode)
	if !typeCode.Valid() {
		typeCode = domain.TypeUnknown
	}
	result.Name = strings.TrimSpace(payload.Name)
	result.TypeCode = typeCode
	// Provider descriptions occasionally carry HTML markup; strip it so
	// stored text is plain.
	result.Description = StripMarkup(payload.Description)

	if len(payload.ActivityCurve) != len(result.ActivityCurve) {
		return domain.Classification{}, fmt.Errorf("classifier returned %d activity points, want %d",
			len(payload.ActivityCurve), len(result.ActivityCurve))
	}
	copy(result.ActivityCurve[:], payload.ActivityCurve)
	if err := result.ActivityCurve.Validate(); err != nil {
		return domain.Classification{}, err
	}
	return result, nil
}
