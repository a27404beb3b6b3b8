package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/giygas/pharmaprice-api/analysis"
	"github.com/giygas/pharmaprice-api/collections"
	"github.com/giygas/pharmaprice-api/entities"
	"github.com/giygas/pharmaprice-api/logging"
)

type imagePayload struct {
	MIMEType string `json:"mimeType"`
	// Data is standard base64, optionally as a data URL
	Data string `json:"data"`
}

type analyzeRequest struct {
	Query    string             `json:"query"`
	Image    *imagePayload      `json:"image,omitempty"`
	Location *entities.Location `json:"location,omitempty"`
}

type genericRequest struct {
	MedicationName string             `json:"medicationName"`
	Location       *entities.Location `json:"location,omitempty"`
}

// analysisResponse adds the collection membership the client needs to render the result
type analysisResponse struct {
	*analysis.Result
	Saved    bool `json:"saved"`
	InBasket bool `json:"inBasket"`
}

// Analyze prices a medication from a query, an image or both.
// Accepts a JSON body or a multipart form with query, image, lat and lng fields.
func (h *HTTPHandlerImpl) Analyze(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseAnalyzeRequest(r)
	if err != nil {
		logging.Warn("Invalid analysis request", "error", err, "remote_addr", r.RemoteAddr)
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.validateAnalyzeRequest(req); err != nil {
		logging.Warn("Unusual user input", "error", err)
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.oracleTimeout)
	defer cancel()

	result, err := h.analyzer.Analyze(ctx, req)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	h.RespondWithJSON(w, http.StatusOK, h.withMembership(result))
}

// SwitchToGeneric analyzes the generic alternative of a record from the
// latest analysis or one of the collections
func (h *HTTPHandlerImpl) SwitchToGeneric(w http.ResponseWriter, r *http.Request) {
	var body genericRequest
	if err := h.decodeJSON(r, &body); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	name, err := h.validator.ValidateMedicationName(body.MedicationName)
	if err != nil {
		logging.Warn("Unusual user input", "medicationName", body.MedicationName)
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validator.ValidateLocation(body.Location); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, ok := h.lookupRecord(name)
	if !ok {
		h.RespondWithError(w, http.StatusNotFound, fmt.Sprintf("No record found for %s", name))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.oracleTimeout)
	defer cancel()

	result, err := h.analyzer.SwitchToGeneric(ctx, record, body.Location)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	h.RespondWithJSON(w, http.StatusOK, h.withMembership(result))
}

// LatestAnalysis returns the most recent successful analysis with its citations
func (h *HTTPHandlerImpl) LatestAnalysis(w http.ResponseWriter, r *http.Request) {
	result, ok := h.analyzer.Latest()
	if !ok {
		h.RespondWithError(w, http.StatusNotFound, "No analysis has completed yet")
		return
	}
	h.RespondWithJSON(w, http.StatusOK, h.withMembership(result))
}

func (h *HTTPHandlerImpl) withMembership(result *analysis.Result) analysisResponse {
	name := result.Record.MedicationName
	return analysisResponse{
		Result:   result,
		Saved:    h.collections.IsSaved(name),
		InBasket: h.collections.InBasket(name),
	}
}

// lookupRecord finds a record by name in the latest analysis, then the history,
// the saved prescriptions and the basket
func (h *HTTPHandlerImpl) lookupRecord(name string) (entities.PriceRecord, bool) {
	if latest, ok := h.analyzer.Latest(); ok && latest.Record.MedicationName == name {
		return latest.Record, true
	}
	for _, collection := range []string{collections.History, collections.Saved, collections.Basket} {
		if record, ok := h.collections.Find(collection, name); ok {
			return record, true
		}
	}
	return entities.PriceRecord{}, false
}

func (h *HTTPHandlerImpl) parseAnalyzeRequest(r *http.Request) (analysis.Request, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return h.parseMultipartAnalyze(r)
	}

	var body analyzeRequest
	if err := h.decodeJSON(r, &body); err != nil {
		return analysis.Request{}, err
	}

	req := analysis.Request{Query: body.Query, Location: body.Location}
	if body.Image != nil && body.Image.Data != "" {
		img, err := decodeImagePayload(body.Image)
		if err != nil {
			return analysis.Request{}, err
		}
		req.Image = img
	}
	return req, nil
}

func (h *HTTPHandlerImpl) parseMultipartAnalyze(r *http.Request) (analysis.Request, error) {
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		return analysis.Request{}, fmt.Errorf("invalid multipart form: %w", err)
	}

	req := analysis.Request{Query: r.FormValue("query")}

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		return analysis.Request{}, fmt.Errorf("invalid image upload: %w", err)
	default:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return analysis.Request{}, fmt.Errorf("failed to read image upload: %w", err)
		}
		mimeType := header.Header.Get("Content-Type")
		if mimeType == "" || mimeType == "application/octet-stream" {
			mimeType = http.DetectContentType(data)
		}
		req.Image = &analysis.Image{MIMEType: mimeType, Data: data}
	}

	lat, lng := strings.TrimSpace(r.FormValue("lat")), strings.TrimSpace(r.FormValue("lng"))
	if lat != "" || lng != "" {
		latitude, errLat := strconv.ParseFloat(lat, 64)
		longitude, errLng := strconv.ParseFloat(lng, 64)
		if errLat != nil || errLng != nil {
			return analysis.Request{}, fmt.Errorf("lat and lng must both be numbers")
		}
		req.Location = &entities.Location{Latitude: latitude, Longitude: longitude}
	}

	return req, nil
}

// decodeImagePayload accepts raw base64 or a data URL
func decodeImagePayload(p *imagePayload) (*analysis.Image, error) {
	mimeType, encoded := p.MIMEType, strings.TrimSpace(p.Data)

	if rest, ok := strings.CutPrefix(encoded, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return nil, fmt.Errorf("image data URL must be base64 encoded")
		}
		if mimeType == "" {
			mimeType = strings.TrimSuffix(meta, ";base64")
		}
		encoded = payload
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("image data is not valid base64: %w", err)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return &analysis.Image{MIMEType: mimeType, Data: data}, nil
}

func (h *HTTPHandlerImpl) validateAnalyzeRequest(req analysis.Request) error {
	if strings.TrimSpace(req.Query) != "" {
		if err := h.validator.ValidateQuery(req.Query); err != nil {
			return err
		}
	}
	if req.Image != nil {
		if err := h.validator.ValidateImage(req.Image.MIMEType, len(req.Image.Data)); err != nil {
			return err
		}
	}
	return h.validator.ValidateLocation(req.Location)
}
