package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DocumentUploaded records a source document stored in blob storage.
type DocumentUploaded struct {
	StorageKey  string `json:"storage_key"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	PageCount   *int   `json:"page_count,omitempty"`
}

func (DocumentUploaded) Type() Type { return TypeDocumentUploaded }

func (p DocumentUploaded) Validate() error {
	if strings.TrimSpace(p.StorageKey) == "" {
		return fmt.Errorf("%w: storage_key required", ErrInvalidPayload)
	}
	if strings.TrimSpace(p.Filename) == "" {
		return fmt.Errorf("%w: filename required", ErrInvalidPayload)
	}
	if p.SizeBytes <= 0 {
		return fmt.Errorf("%w: size_bytes must be positive", ErrInvalidPayload)
	}
	return nil
}

// RecognitionStarted binds the recognition to an external OCR task.
type RecognitionStarted struct {
	TaskID string `json:"task_id"`
}

func (RecognitionStarted) Type() Type { return TypeRecognitionStarted }

func (p RecognitionStarted) Validate() error {
	if strings.TrimSpace(p.TaskID) == "" {
		return fmt.Errorf("%w: task_id required", ErrInvalidPayload)
	}
	return nil
}

// ValidationFailed records a rejected OCR result.
type ValidationFailed struct {
	Errors                  []string `json:"errors"`
	OCRPayload              string   `json:"ocr_payload"`
	ManuallyCorrectedFields []string `json:"manually_corrected_fields,omitempty"`
}

func (ValidationFailed) Type() Type { return TypeValidationFailed }

func (p ValidationFailed) Validate() error {
	if len(p.Errors) == 0 {
		return fmt.Errorf("%w: at least one error required", ErrInvalidPayload)
	}
	return validateFields(p.ManuallyCorrectedFields)
}

// ValidationSucceeded records an accepted OCR result and the product attributes read from it.
type ValidationSucceeded struct {
	ProductAttributes       map[string]any `json:"product_attributes"`
	OCRPayload              string         `json:"ocr_payload"`
	ManuallyCorrectedFields []string       `json:"manually_corrected_fields,omitempty"`
}

func (ValidationSucceeded) Type() Type { return TypeValidationSucceeded }

func (p ValidationSucceeded) Validate() error {
	if p.ProductAttributes == nil {
		return fmt.Errorf("%w: product_attributes required", ErrInvalidPayload)
	}
	return validateFields(p.ManuallyCorrectedFields)
}

// Reference returns the identifier stored under key in the product attributes.
// Strings and integral numbers are accepted; anything else is absent.
func (p ValidationSucceeded) Reference(key string) (string, bool) {
	switch v := p.ProductAttributes[key].(type) {
	case string:
		return v, v != ""
	case json.Number:
		if _, err := v.Int64(); err != nil {
			return "", false
		}
		return v.String(), true
	case float64:
		if v != float64(int64(v)) {
			return "", false
		}
		return strconv.FormatInt(int64(v), 10), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	}
	return "", false
}

// ProductCreated records the insurance product created from a successful recognition.
type ProductCreated struct {
	ProductRef string `json:"product_ref"`
}

func (ProductCreated) Type() Type { return TypeProductCreated }

func (p ProductCreated) Validate() error {
	if strings.TrimSpace(p.ProductRef) == "" {
		return fmt.Errorf("%w: product_ref required", ErrInvalidPayload)
	}
	return nil
}

// CorrectedFields returns the manually corrected fields of a validation payload,
// never nil. Other payloads have none.
func CorrectedFields(p Payload) []string {
	var fields []string
	switch v := p.(type) {
	case ValidationFailed:
		fields = v.ManuallyCorrectedFields
	case ValidationSucceeded:
		fields = v.ManuallyCorrectedFields
	}
	if fields == nil {
		return []string{}
	}
	return fields
}

func validateFields(fields []string) error {
	for i, f := range fields {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("%w: manually_corrected_fields[%d] is blank", ErrInvalidPayload, i)
		}
	}
	return nil
}
