// Package analysis runs a price analysis: it asks the oracle about a
// medication, normalizes the reply and records the result in the history.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/giygas/pharmaprice-api/entities"
	"github.com/giygas/pharmaprice-api/logging"
	"github.com/giygas/pharmaprice-api/metrics"
	"github.com/giygas/pharmaprice-api/normalizer"
	"github.com/giygas/pharmaprice-api/oracle"
)

var (
	ErrValidation         = errors.New("invalid analysis request")
	ErrAnalysisInProgress = errors.New("an analysis is already in progress")
	// ErrAnalysisFailed is the only failure callers see for oracle and parsing problems
	ErrAnalysisFailed = errors.New("failed to analyze medication, please try again")
)

// ValidationError is returned before any oracle call is made
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Image is an encoded photo of a prescription or package
type Image struct {
	MIMEType string
	Data     []byte
}

type Request struct {
	Query    string
	Image    *Image
	Location *entities.Location
}

type Result struct {
	RequestID   string                  `json:"requestId"`
	Record      entities.PriceRecord    `json:"record"`
	Citations   []entities.CitationLink `json:"citations"`
	CompletedAt time.Time               `json:"completedAt"`
}

// Oracle is the grounded generation call
type Oracle interface {
	Generate(ctx context.Context, req oracle.Request) (*oracle.Reply, error)
}

// HistoryRecorder receives every successful record
type HistoryRecorder interface {
	RecordHistory(record entities.PriceRecord)
}

type Options struct {
	// MaxImageDimension bounds the longest image side sent to the oracle; 0 keeps images as received
	MaxImageDimension int
	// OnComplete is told about every analysis that becomes the latest one
	OnComplete func(requestID, medicationName string)
}

// Orchestrator allows a single analysis at a time. A call made while another
// is running fails with ErrAnalysisInProgress instead of waiting.
type Orchestrator struct {
	oracle  Oracle
	history HistoryRecorder
	opts    Options

	inFlight    atomic.Bool
	lastSuccess atomic.Int64

	mu     sync.RWMutex
	latest *Result
}

func NewOrchestrator(o Oracle, history HistoryRecorder, opts Options) *Orchestrator {
	return &Orchestrator{oracle: o, history: history, opts: opts}
}

// Analyze prices the medication described by the query text, the image, or both
func (o *Orchestrator) Analyze(ctx context.Context, req Request) (*Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" && (req.Image == nil || len(req.Image.Data) == 0) {
		return nil, &ValidationError{Field: "query", Message: "a query or an image is required"}
	}

	result, err := o.run(ctx, query, req.Image, req.Location)
	if err != nil {
		return nil, err
	}
	o.publish(result)
	return result, nil
}

// SwitchToGeneric analyzes the generic alternative of record
func (o *Orchestrator) SwitchToGeneric(ctx context.Context, record entities.PriceRecord, loc *entities.Location) (*Result, error) {
	if record.GenericAlternative == nil || strings.TrimSpace(record.GenericAlternative.Name) == "" {
		return nil, &ValidationError{Field: "genericAlternative", Message: "record has no generic alternative"}
	}
	return o.Analyze(ctx, Request{Query: record.GenericAlternative.Name, Location: loc})
}

// Refresh re-prices a medication by name without touching the history or the
// latest result
func (o *Orchestrator) Refresh(ctx context.Context, medicationName string) (*Result, error) {
	name := strings.TrimSpace(medicationName)
	if name == "" {
		return nil, &ValidationError{Field: "medicationName", Message: "cannot be empty"}
	}
	return o.run(ctx, name, nil, nil)
}

// Latest returns the most recent successful analysis
func (o *Orchestrator) Latest() (*Result, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.latest == nil {
		return nil, false
	}
	r := *o.latest
	r.Record = o.latest.Record.Clone()
	r.Citations = slices.Clone(o.latest.Citations)
	return &r, true
}

// InProgress reports whether an oracle call is running
func (o *Orchestrator) InProgress() bool {
	return o.inFlight.Load()
}

// LastSuccess is the completion time of the last successful call, zero if none
func (o *Orchestrator) LastSuccess() time.Time {
	ns := o.lastSuccess.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (o *Orchestrator) publish(result *Result) {
	o.history.RecordHistory(result.Record)

	stored := *result
	stored.Record = result.Record.Clone()
	o.mu.Lock()
	o.latest = &stored
	o.mu.Unlock()

	if o.opts.OnComplete != nil {
		o.opts.OnComplete(result.RequestID, result.Record.MedicationName)
	}
}

func (o *Orchestrator) run(ctx context.Context, query string, img *Image, loc *entities.Location) (*Result, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		metrics.OracleRequests.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, ErrAnalysisInProgress
	}
	defer o.inFlight.Store(false)

	requestID := uuid.New().String()
	log := logging.With("request_id", requestID)

	oracleReq := oracle.Request{
		Prompt:   oracle.BuildPricePrompt(query, img != nil),
		Location: loc,
	}
	if img != nil {
		oracleReq.Image = prepareImage(img, o.opts.MaxImageDimension)
	}

	log.Info("Starting price analysis",
		"query", query,
		"has_image", img != nil,
		"has_location", loc != nil,
	)

	start := time.Now()
	reply, err := o.oracle.Generate(ctx, oracleReq)
	metrics.OracleRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.OracleRequests.WithLabelValues(metrics.OutcomeOracleCall).Inc()
		log.Error("Price analysis failed",
			"failure_kind", metrics.OutcomeOracleCall,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return nil, ErrAnalysisFailed
	}

	normalized, err := normalizer.Normalize(reply.Text, reply.Chunks)
	if err != nil {
		metrics.OracleRequests.WithLabelValues(metrics.OutcomeMalformedResponse).Inc()
		attrs := []any{"failure_kind", metrics.OutcomeMalformedResponse, "error", err}
		var malformed *normalizer.MalformedResponseError
		if errors.As(err, &malformed) {
			attrs = append(attrs, "payload_size", len(malformed.Payload))
		}
		log.Error("Price analysis failed", attrs...)
		return nil, ErrAnalysisFailed
	}

	metrics.OracleRequests.WithLabelValues(metrics.OutcomeSuccess).Inc()
	completed := time.Now()
	o.lastSuccess.Store(completed.UnixNano())

	log.Info("Price analysis completed",
		"medication", normalized.Record.MedicationName,
		"offers", len(normalized.Record.Offers),
		"citations", len(normalized.Citations),
		"duration_ms", completed.Sub(start).Milliseconds(),
	)

	citations := normalized.Citations
	if citations == nil {
		citations = []entities.CitationLink{}
	}
	return &Result{
		RequestID:   requestID,
		Record:      normalized.Record,
		Citations:   citations,
		CompletedAt: completed,
	}, nil
}
