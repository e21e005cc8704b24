// Package importer provides batch contact import validation for the
// calling platform. The pure validation pass mirrors the checks the
// mobile client runs before upload, so both sides agree on which
// records are importable and report failures with the same error codes.
package importer

import (
	"strings"
	"time"
)

// =============================================================================
// ERROR CODES
// =============================================================================

// ErrorCode identifies a single class of import failure. The string
// values are a wire contract shared with the mobile client: they must
// match exactly for error-handling UI to unify client-side and
// server-side failures.
type ErrorCode string

const (
	CodeMissingRequiredField ErrorCode = "MISSING_REQUIRED_FIELD"
	CodeInvalidPhoneFormat   ErrorCode = "INVALID_PHONE_FORMAT"
	CodeDuplicateInBatch     ErrorCode = "DUPLICATE_IN_BATCH"
	CodeDuplicateInDB        ErrorCode = "DUPLICATE_IN_DB"
	CodeDNCBlocked           ErrorCode = "DNC_BLOCKED"
	CodeRateLimited          ErrorCode = "RATE_LIMITED"
	CodeBlacklistedNumber    ErrorCode = "BLACKLISTED_NUMBER"
	CodeTimeWindowBlocked    ErrorCode = "TIME_WINDOW_BLOCKED"
	CodeIntegrationFailure   ErrorCode = "INTEGRATION_FAILURE"
	CodeValidationRuleFailed ErrorCode = "VALIDATION_RULE_FAILED"
	CodeInvalidDateFormat    ErrorCode = "INVALID_DATE_FORMAT"
	CodeNoConsent            ErrorCode = "NO_CONSENT"
)

// =============================================================================
// TYPES
// =============================================================================

// Record is one raw contact as supplied by an external source
// (spreadsheet import, form submission, API call). Recognized fields
// are named; everything else lands in Fields so nothing the caller
// sent is lost.
type Record struct {
	Name        string            `json:"name"`
	PhoneNumber string            `json:"phoneNumber"`
	Email       string            `json:"email,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// Field returns the value of a named field, checking the recognized
// fields first and the escape-hatch bag second.
func (r Record) Field(name string) string {
	switch name {
	case "name":
		return r.Name
	case "phoneNumber":
		return r.PhoneNumber
	case "email":
		return r.Email
	}
	return r.Fields[name]
}

// Contact is a validated, normalized contact ready for import. It is
// always a copy: validation never mutates the caller's records.
type Contact struct {
	Name            string            `json:"name"`
	NormalizedPhone string            `json:"normalizedPhone"`
	Email           string            `json:"email,omitempty"`
	ReferenceDate   *time.Time        `json:"referenceDate,omitempty"`
	Fields          map[string]string `json:"fields,omitempty"`
}

// ImportError describes one validation failure for one record. A
// record that fails several checks appears once per failure.
type ImportError struct {
	Index     int       `json:"index"`
	Raw       Record    `json:"raw"`
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Field     string    `json:"field,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary holds batch-level counts. WillSkip counts errors, not
// distinct invalid records, so WillImport+WillSkip can exceed Total
// when a record fails more than one check.
type Summary struct {
	Total      int `json:"total"`
	Valid      int `json:"valid"`
	Invalid    int `json:"invalid"`
	WillImport int `json:"willImport"`
	WillSkip   int `json:"willSkip"`
}

// Result is the outcome of one validation pass.
type Result struct {
	ValidContacts []Contact     `json:"validContacts"`
	Errors        []ImportError `json:"errors"`
	Summary       Summary       `json:"summary"`
}

// Options configures a validation pass.
type Options struct {
	// RequireReferenceDate makes the reference-date field mandatory
	// and date-parseable on every record.
	RequireReferenceDate bool
	// ReferenceDateField names the field checked when
	// RequireReferenceDate is set. Defaults to "referenceDate".
	ReferenceDateField string
}

// DefaultReferenceDateField is the field validated as a date when no
// override is configured.
const DefaultReferenceDateField = "referenceDate"

// Phone numbers must reduce to 7-15 decimal digits after stripping
// formatting (ITU E.164 upper bound, short national numbers lower).
const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// referenceDateLayouts are the accepted date formats, most specific
// first.
var referenceDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate runs the batch validation pass over records in input order.
// It is pure: no I/O, no mutation of the input, deterministic for a
// given input. Every record is checked independently except for the
// in-batch duplicate check, which is scoped to this call.
func Validate(records []Record, opts Options) Result {
	if opts.ReferenceDateField == "" {
		opts.ReferenceDateField = DefaultReferenceDateField
	}

	result := Result{
		ValidContacts: make([]Contact, 0, len(records)),
		Errors:        []ImportError{},
	}
	result.Summary.Total = len(records)

	// Normalized phones seen so far in this batch. Only phones that
	// passed format validation enter the set.
	seenPhones := make(map[string]struct{}, len(records))

	for i, rec := range records {
		recErrors := validateRecord(i, rec, opts, seenPhones)
		if len(recErrors) > 0 {
			result.Errors = append(result.Errors, recErrors...)
			result.Summary.Invalid++
			continue
		}

		contact := Contact{
			Name:            strings.TrimSpace(rec.Name),
			NormalizedPhone: normalizePhone(rec.PhoneNumber),
			Email:           strings.TrimSpace(rec.Email),
			Fields:          cloneFields(rec.Fields),
		}
		if opts.RequireReferenceDate {
			if t, ok := parseReferenceDate(rec.Field(opts.ReferenceDateField)); ok {
				contact.ReferenceDate = &t
			}
		}
		result.ValidContacts = append(result.ValidContacts, contact)
		result.Summary.Valid++
	}

	result.Summary.WillImport = result.Summary.Valid
	result.Summary.WillSkip = len(result.Errors)
	return result
}

// validateRecord applies every per-record check and returns all
// failures. A phone that fails format validation is not added to the
// seen-set and is not duplicate-checked.
func validateRecord(index int, rec Record, opts Options, seenPhones map[string]struct{}) []ImportError {
	var errs []ImportError
	now := time.Now()

	fail := func(code ErrorCode, field, message string) {
		errs = append(errs, ImportError{
			Index:     index,
			Raw:       rec,
			Code:      code,
			Message:   message,
			Field:     field,
			Timestamp: now,
		})
	}

	// Name: required, non-blank after trimming.
	if strings.TrimSpace(rec.Name) == "" {
		fail(CodeMissingRequiredField, "name", "contact name is required")
	}

	// Phone: required, then format, then in-batch duplicate.
	if strings.TrimSpace(rec.PhoneNumber) == "" {
		fail(CodeMissingRequiredField, "phone", "phone number is required")
	} else {
		normalized := normalizePhone(rec.PhoneNumber)
		if !isValidPhone(normalized) {
			fail(CodeInvalidPhoneFormat, "phone",
				"phone number must contain 7-15 digits after removing formatting")
		} else if _, dup := seenPhones[normalized]; dup {
			fail(CodeDuplicateInBatch, "phone",
				"duplicate phone number "+normalized+" within this batch")
		} else {
			seenPhones[normalized] = struct{}{}
		}
	}

	// Reference date: only when configured as required.
	if opts.RequireReferenceDate {
		raw := strings.TrimSpace(rec.Field(opts.ReferenceDateField))
		if raw == "" {
			fail(CodeMissingRequiredField, opts.ReferenceDateField,
				opts.ReferenceDateField+" is required")
		} else if _, ok := parseReferenceDate(raw); !ok {
			fail(CodeInvalidDateFormat, opts.ReferenceDateField,
				"cannot parse "+opts.ReferenceDateField+" value "+raw+" as a date")
		}
	}

	return errs
}

// =============================================================================
// NORMALIZATION HELPERS
// =============================================================================

// normalizePhone strips whitespace, hyphens, parentheses, dots, and a
// leading plus sign, leaving the raw dial string. The plus counts as
// leading once formatting characters are removed, so " +1 555..." and
// "+1 555..." normalize identically.
func normalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	droppedPlus := false
	for _, c := range phone {
		switch {
		case c == ' ' || c == '\t' || c == '-' || c == '(' || c == ')' || c == '.':
			// Formatting characters.
		case c == '+' && !droppedPlus && b.Len() == 0:
			// Leading international prefix is dropped.
			droppedPlus = true
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// isValidPhone reports whether a normalized phone is 7-15 decimal
// digits.
func isValidPhone(normalized string) bool {
	if len(normalized) < minPhoneDigits || len(normalized) > maxPhoneDigits {
		return false
	}
	for _, c := range normalized {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func parseReferenceDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range referenceDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func cloneFields(fields map[string]string) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
