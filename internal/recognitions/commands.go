package recognitions

import (
	"github.com/JaimeStill/recognition/internal/events"
)

// StartCommand binds a recognition to an external OCR task.
type StartCommand struct {
	TaskID string `json:"task_id"`
}

func (c StartCommand) payload() events.Payload {
	return events.RecognitionStarted{TaskID: c.TaskID}
}

// FailValidationCommand records a rejected OCR result.
type FailValidationCommand struct {
	Errors                  []string `json:"errors"`
	OCRPayload              string   `json:"ocr_payload"`
	ManuallyCorrectedFields []string `json:"manually_corrected_fields,omitempty"`
}

func (c FailValidationCommand) payload() events.Payload {
	return events.ValidationFailed{
		Errors:                  c.Errors,
		OCRPayload:              c.OCRPayload,
		ManuallyCorrectedFields: c.ManuallyCorrectedFields,
	}
}

// SucceedValidationCommand records an accepted OCR result.
type SucceedValidationCommand struct {
	ProductAttributes       map[string]any `json:"product_attributes"`
	OCRPayload              string         `json:"ocr_payload"`
	ManuallyCorrectedFields []string       `json:"manually_corrected_fields,omitempty"`
}

func (c SucceedValidationCommand) payload() events.Payload {
	return events.ValidationSucceeded{
		ProductAttributes:       c.ProductAttributes,
		OCRPayload:              c.OCRPayload,
		ManuallyCorrectedFields: c.ManuallyCorrectedFields,
	}
}

// CreateProductCommand records the product created from this recognition.
type CreateProductCommand struct {
	ProductRef string `json:"product_ref"`
}

func (c CreateProductCommand) payload() events.Payload {
	return events.ProductCreated{ProductRef: c.ProductRef}
}

// UploadDocumentCommand carries a source document to store alongside the recognition.
// ContentType is sniffed from Data when empty or generic.
type UploadDocumentCommand struct {
	Filename    string
	ContentType string
	Data        []byte
}
