// Package validation checks user input before it reaches the oracle or the collections.
package validation

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/giygas/pharmaprice-api/entities"
	"github.com/giygas/pharmaprice-api/interfaces"
)

const (
	maxQueryLength = 500
	maxQueryWords  = 60
	maxNameLength  = 200
	maxOffers      = 200
)

var (
	// Dangerous patterns as strings (faster than regex for simple substring matching).
	// Names and queries are free text, so shell punctuation stays allowed.
	dangerousPatterns = []string{
		"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
		"onclick=", "onmouseover=", "onfocus=", "onblur=", "onchange=", "onsubmit=",
		"eval(", "expression(", "@import", "binding(", "behavior(",
		// SQL injection patterns
		"union select", "drop table", "delete from", "insert into", "xp_cmdshell", "exec(", "execute(",
		// Template and command substitution
		"$(", "${", "{{",
		// Path traversal patterns
		"../", "..\\", "%2e%2e", "file://",
		// NoSQL injection patterns
		"{$ne:", "{$gt:", "{$where:", "{$or:", "{$regex:", "{$expr:",
	}

	allowedImageTypes = map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
		"image/webp": true,
		"image/gif":  true,
		"image/heic": true,
		"image/heif": true,
	}
)

// InputValidatorImpl implements the interfaces.InputValidator interface
type InputValidatorImpl struct {
	maxImageBytes int
}

// NewInputValidator creates a validator accepting images up to maxImageBytes once decoded
func NewInputValidator(maxImageBytes int) interfaces.InputValidator {
	return &InputValidatorImpl{maxImageBytes: maxImageBytes}
}

// ValidateQuery validates the free text of an analysis request
func (v *InputValidatorImpl) ValidateQuery(input string) error {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return fmt.Errorf("query cannot be empty")
	}

	if utf8.RuneCountInString(trimmed) < 2 {
		return fmt.Errorf("query too short: minimum 2 characters")
	}

	if len(trimmed) > maxQueryLength {
		return fmt.Errorf("query too long: maximum %d characters", maxQueryLength)
	}

	// Word count validation to prevent prompt stuffing
	if len(strings.Fields(trimmed)) > maxQueryWords {
		return fmt.Errorf("query too complex: maximum %d words allowed", maxQueryWords)
	}

	if err := checkText(trimmed); err != nil {
		return fmt.Errorf("query %w", err)
	}

	if v.hasExcessiveRepetition(trimmed) {
		return fmt.Errorf("query contains excessive character repetition")
	}

	return nil
}

// ValidateMedicationName validates a collection key taken from a path or a body
func (v *InputValidatorImpl) ValidateMedicationName(input string) (string, error) {
	return validateName("medication name", input)
}

// ValidatePharmacyName validates the pharmacy picked for checkout
func (v *InputValidatorImpl) ValidatePharmacyName(input string) (string, error) {
	return validateName("pharmacy name", input)
}

// ValidateImage checks the declared MIME type and the decoded payload size
func (v *InputValidatorImpl) ValidateImage(mimeType string, size int) error {
	if size <= 0 {
		return fmt.Errorf("image cannot be empty")
	}

	if v.maxImageBytes > 0 && size > v.maxImageBytes {
		return fmt.Errorf("image too large: maximum %d bytes", v.maxImageBytes)
	}

	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	if !allowedImageTypes[mediaType] {
		return fmt.Errorf("unsupported image type %q", mimeType)
	}

	return nil
}

// ValidateLocation checks coordinate bounds. A nil location is valid.
func (v *InputValidatorImpl) ValidateLocation(loc *entities.Location) error {
	if loc == nil {
		return nil
	}

	if math.IsNaN(loc.Latitude) || loc.Latitude < -90 || loc.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got: %v", loc.Latitude)
	}

	if math.IsNaN(loc.Longitude) || loc.Longitude < -180 || loc.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got: %v", loc.Longitude)
	}

	return nil
}

// ValidateRecord checks a record sent back by the client before it enters a collection
func (v *InputValidatorImpl) ValidateRecord(record *entities.PriceRecord) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}

	name, err := v.ValidateMedicationName(record.MedicationName)
	if err != nil {
		return err
	}
	record.MedicationName = name

	if len(record.Offers) > maxOffers {
		return fmt.Errorf("too many offers for %s: %d", name, len(record.Offers))
	}

	for _, offer := range record.Offers {
		if len(offer.PharmacyName) > maxNameLength {
			return fmt.Errorf("pharmacy name too long in offers for %s: %d characters", name, len(offer.PharmacyName))
		}
	}

	return nil
}

func validateName(field, input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", fmt.Errorf("%s cannot be empty", field)
	}

	if len(trimmed) > maxNameLength {
		return "", fmt.Errorf("%s too long: maximum %d characters", field, maxNameLength)
	}

	if err := checkText(trimmed); err != nil {
		return "", fmt.Errorf("%s %w", field, err)
	}

	return trimmed, nil
}

// checkText rejects invalid UTF-8, control characters and dangerous content
func checkText(input string) error {
	if !utf8.ValidString(input) {
		return fmt.Errorf("contains invalid UTF-8")
	}

	for _, r := range input {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return fmt.Errorf("contains control characters")
		}
	}

	lowerInput := strings.ToLower(input)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lowerInput, pattern) {
			return fmt.Errorf("contains potentially dangerous content")
		}
	}

	return nil
}

// hasExcessiveRepetition checks for the same character repeated more than 10 times consecutively
func (v *InputValidatorImpl) hasExcessiveRepetition(input string) bool {
	run := 1
	var prev rune = -1
	for _, r := range input {
		if r == prev {
			run++
			if run > 10 {
				return true
			}
		} else {
			run = 1
			prev = r
		}
	}
	return false
}
