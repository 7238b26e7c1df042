package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"plantatlas/pkg/domain"
)

func classifierServer(t *testing.T, payload any, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(payload)
	}))
}

func fullCurve() []float64 {
	return []float64{0, 0.1, 0.2, 0.4, 0.8, 1, 1, 0.8, 0.4, 0.2, 0.1, 0}
}

func TestClassifySuccess(t *testing.T) {
	srv := classifierServer(t, map[string]any{
		"code":          "success",
		"name":          "  Scots Pine ",
		"typeCode":      int(domain.TypeTree),
		"description":   "<p>An evergreen <b>conifer</b>.</p>",
		"activityCurve": fullCurve(),
	}, http.StatusOK)
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "key")
	got, err := c.Classify(context.Background(), Request{Image: "aW1n", Language: "en"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Code != domain.ClassifySuccess {
		t.Fatalf("unexpected code %q", got.Code)
	}
	if got.Name != "Scots Pine" {
		t.Fatalf("name not trimmed: %q", got.Name)
	}
	if got.Description != "An evergreen conifer." {
		t.Fatalf("markup not stripped: %q", got.Description)
	}
	if got.TypeCode != domain.TypeTree {
		t.Fatalf("unexpected type %d", got.TypeCode)
	}
	if got.ActivityCurve[5] != 1 || got.ActivityCurve[0] != 0 {
		t.Fatalf("curve mangled: %v", got.ActivityCurve)
	}
}

func TestClassifyNotPlantSkipsDetails(t *testing.T) {
	srv := classifierServer(t, map[string]any{"code": "not_plant"}, http.StatusOK)
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "")
	got, err := c.Classify(context.Background(), Request{Image: "aW1n"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Code != domain.ClassifyNotPlant || got.Name != "" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestClassifyInvalidTypeFallsBackToUnknown(t *testing.T) {
	srv := classifierServer(t, map[string]any{
		"code":          "success",
		"name":          "Mystery",
		"typeCode":      99,
		"activityCurve": fullCurve(),
	}, http.StatusOK)
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "")
	got, err := c.Classify(context.Background(), Request{Image: "aW1n"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.TypeCode != domain.TypeUnknown {
		t.Fatalf("expected unknown type, got %d", got.TypeCode)
	}
}

func TestClassifyRejectsShortCurve(t *testing.T) {
	srv := classifierServer(t, map[string]any{
		"code":          "success",
		"name":          "Birch",
		"typeCode":      int(domain.TypeTree),
		"activityCurve": []float64{0.5, 0.5},
	}, http.StatusOK)
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "")
	if _, err := c.Classify(context.Background(), Request{Image: "aW1n"}); err == nil {
		t.Fatal("expected error for short curve")
	}
}

func TestClassifyRejectsUnknownCode(t *testing.T) {
	srv := classifierServer(t, map[string]any{"code": "maybe"}, http.StatusOK)
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "")
	if _, err := c.Classify(context.Background(), Request{Image: "aW1n"}); err == nil {
		t.Fatal("expected error for unknown code")
	}
}

func TestClassifyUpstreamError(t *testing.T) {
	srv := classifierServer(t, map[string]any{"error": "model overloaded"}, http.StatusServiceUnavailable)
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "")
	_, err := c.Classify(context.Background(), Request{Image: "aW1n"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestStripMarkup(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"  spaced   out  ", "spaced out"},
		{"<p>one</p><p>two</p>", "one two"},
		{"a<br>b", "a b"},
		{"<div>x<script>evil()</script>y</div>", "xy"},
		{"<b>bold</b> move", "bold move"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := StripMarkup(tc.in); got != tc.want {
			t.Errorf("StripMarkup(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
