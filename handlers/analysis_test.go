package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/giygas/pharmaprice-api/analysis"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestAnalyze_JSON(t *testing.T) {
	env := newTestEnv(t)
	env.manager.AddToBasket(amoxicillin())

	rr := env.do(t, http.MethodPost, "/v1/analysis", `{"query":"Amoxicillin 500mg","location":{"lat":51.5,"lng":-0.12}}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if env.analyzer.lastRequest.Query != "Amoxicillin 500mg" {
		t.Errorf("Expected query to reach the analyzer, got %q", env.analyzer.lastRequest.Query)
	}
	if loc := env.analyzer.lastRequest.Location; loc == nil || loc.Latitude != 51.5 || loc.Longitude != -0.12 {
		t.Errorf("Expected location to reach the analyzer, got %+v", loc)
	}
	if !env.analyzer.hadDeadline {
		t.Error("Expected the analyzer context to carry the oracle timeout")
	}

	body := decodeBody(t, rr)
	if body["requestId"] != "req-1" {
		t.Errorf("Expected requestId req-1, got %v", body["requestId"])
	}
	if body["inBasket"] != true || body["saved"] != false {
		t.Errorf("Expected membership inBasket=true saved=false, got %v/%v", body["inBasket"], body["saved"])
	}
	record := body["record"].(map[string]any)
	if record["medicationName"] != "Amoxicillin 500mg" {
		t.Errorf("Unexpected record %v", record)
	}
}

func TestAnalyze_Multipart(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("query", "what is this box")
	_ = mw.WriteField("lat", "48.85")
	_ = mw.WriteField("lng", "2.35")
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="box.png"`)
	header.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(pngBytes)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/analysis", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	got := env.analyzer.lastRequest
	if got.Query != "what is this box" {
		t.Errorf("Expected multipart query, got %q", got.Query)
	}
	if got.Image == nil || got.Image.MIMEType != "image/png" || !bytes.Equal(got.Image.Data, pngBytes) {
		t.Errorf("Expected the uploaded PNG, got %+v", got.Image)
	}
	if got.Location == nil || got.Location.Latitude != 48.85 || got.Location.Longitude != 2.35 {
		t.Errorf("Expected multipart location, got %+v", got.Location)
	}
}

func TestAnalyze_Base64Image(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(pngBytes)

	tests := []struct {
		name         string
		image        map[string]string
		expectedMIME string
	}{
		{"data URL", map[string]string{"data": "data:image/png;base64," + encoded}, "image/png"},
		{"raw base64 with MIME type", map[string]string{"data": encoded, "mimeType": "image/png"}, "image/png"},
		{"raw base64 sniffed", map[string]string{"data": encoded}, "image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			payload, _ := json.Marshal(map[string]any{"image": tt.image})

			rr := env.do(t, http.MethodPost, "/v1/analysis", string(payload))

			if rr.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
			}
			img := env.analyzer.lastRequest.Image
			if img == nil || img.MIMEType != tt.expectedMIME || !bytes.Equal(img.Data, pngBytes) {
				t.Errorf("Unexpected image %+v", img)
			}
		})
	}
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		analyzerErr    error
		expectedStatus int
		expectCall     bool
	}{
		{"malformed JSON", `{"query":`, nil, http.StatusBadRequest, false},
		{"query too short", `{"query":"a"}`, nil, http.StatusBadRequest, false},
		{"dangerous query", `{"query":"<script>alert(1)</script>"}`, nil, http.StatusBadRequest, false},
		{"latitude out of range", `{"query":"Amoxicillin","location":{"lat":91,"lng":0}}`, nil, http.StatusBadRequest, false},
		{"unsupported image type", `{"image":{"data":"JVBERi0xLjQ=","mimeType":"application/pdf"}}`, nil, http.StatusBadRequest, false},
		{"invalid base64", `{"image":{"data":"not base64!"}}`, nil, http.StatusBadRequest, false},
		{"nothing to analyze", `{}`, &analysis.ValidationError{Field: "query", Message: "a query or an image is required"}, http.StatusBadRequest, true},
		{"analysis in progress", `{"query":"Amoxicillin"}`, analysis.ErrAnalysisInProgress, http.StatusConflict, true},
		{"oracle failure", `{"query":"Amoxicillin"}`, fmt.Errorf("%w: upstream 503", analysis.ErrAnalysisFailed), http.StatusBadGateway, true},
		{"unexpected failure", `{"query":"Amoxicillin"}`, errors.New("boom"), http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.analyzer.err = tt.analyzerErr
			env.analyzer.lastRequest = analysis.Request{Query: "untouched"}

			rr := env.do(t, http.MethodPost, "/v1/analysis", tt.body)

			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, rr.Code, rr.Body.String())
			}
			called := env.analyzer.lastRequest.Query != "untouched"
			if called != tt.expectCall {
				t.Errorf("Expected analyzer called=%v, got %v", tt.expectCall, called)
			}
		})
	}
}

func TestAnalyze_MultipartBadLocation(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("query", "Amoxicillin")
	_ = mw.WriteField("lat", "north")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/analysis", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestSwitchToGeneric(t *testing.T) {
	env := newTestEnv(t)
	env.manager.RecordHistory(amoxicillin())

	rr := env.do(t, http.MethodPost, "/v1/analysis/generic", `{"medicationName":"Amoxicillin 500mg","location":{"lat":1,"lng":2}}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if env.analyzer.lastRecord.GenericAlternative == nil || env.analyzer.lastRecord.GenericAlternative.Name != "Amoxicillin" {
		t.Errorf("Expected the history record to reach the analyzer, got %+v", env.analyzer.lastRecord)
	}
	if env.analyzer.lastLocation == nil || env.analyzer.lastLocation.Longitude != 2 {
		t.Errorf("Expected location to reach the analyzer, got %+v", env.analyzer.lastLocation)
	}
}

func TestSwitchToGeneric_LookupOrder(t *testing.T) {
	env := newTestEnv(t)

	latest := amoxicillin()
	latest.Dosage = "from latest"
	env.analyzer.latest = &analysis.Result{Record: latest}

	saved := amoxicillin()
	saved.Dosage = "from saved"
	env.manager.ToggleSaved(saved)

	rr := env.do(t, http.MethodPost, "/v1/analysis/generic", `{"medicationName":"Amoxicillin 500mg"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if env.analyzer.lastRecord.Dosage != "from latest" {
		t.Errorf("Expected the latest analysis to win, got %q", env.analyzer.lastRecord.Dosage)
	}

	env.analyzer.latest = nil
	env.do(t, http.MethodPost, "/v1/analysis/generic", `{"medicationName":"Amoxicillin 500mg"}`)
	if env.analyzer.lastRecord.Dosage != "from saved" {
		t.Errorf("Expected the saved record, got %q", env.analyzer.lastRecord.Dosage)
	}
}

func TestSwitchToGeneric_Errors(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		analyzerErr    error
		expectedStatus int
	}{
		{"unknown record", `{"medicationName":"Paracetamol"}`, nil, http.StatusNotFound},
		{"empty name", `{"medicationName":"  "}`, nil, http.StatusBadRequest},
		{"bad location", `{"medicationName":"Amoxicillin 500mg","location":{"lat":0,"lng":200}}`, nil, http.StatusBadRequest},
		{"no generic", `{"medicationName":"Amoxicillin 500mg"}`, &analysis.ValidationError{Field: "genericAlternative", Message: "record has no generic alternative"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.manager.RecordHistory(amoxicillin())
			env.analyzer.err = tt.analyzerErr

			rr := env.do(t, http.MethodPost, "/v1/analysis/generic", tt.body)

			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestLatestAnalysis(t *testing.T) {
	env := newTestEnv(t)

	if rr := env.do(t, http.MethodGet, "/v1/analysis/latest", ""); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before any analysis, got %d", rr.Code)
	}

	env.do(t, http.MethodPost, "/v1/analysis", `{"query":"Amoxicillin 500mg"}`)
	env.manager.ToggleSaved(amoxicillin())

	rr := env.do(t, http.MethodGet, "/v1/analysis/latest", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["saved"] != true {
		t.Errorf("Expected saved=true, got %v", body["saved"])
	}
}

func TestDecodeImagePayload_RejectsNonBase64DataURL(t *testing.T) {
	_, err := decodeImagePayload(&imagePayload{Data: "data:image/png,rawbytes"})
	if err == nil {
		t.Error("Expected a data URL without base64 to be rejected")
	}

	img, err := decodeImagePayload(&imagePayload{Data: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff}), MIMEType: "image/webp"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if img.MIMEType != "image/webp" {
		t.Errorf("Expected the declared MIME type to win, got %s", img.MIMEType)
	}
}
