// Package apierr defines the stable error taxonomy (spec §7) shared by
// validation, the job queue, both inference engines, and the RPC layer that
// surfaces it either as a synchronous JSON-RPC error or as a
// generation_error notification's code/message pair.
package apierr

import "errors"

// Kind is one of the stable error codes named in spec §7. Kept as a string
// so it serializes directly into generation_error.code without a lookup
// table.
type Kind string

const (
	InvalidPrompt         Kind = "INVALID_PROMPT"
	InvalidDuration       Kind = "INVALID_DURATION"
	InvalidBackend        Kind = "INVALID_BACKEND"
	BackendNotInstalled   Kind = "BACKEND_NOT_INSTALLED"
	BackendLoading        Kind = "BACKEND_LOADING"
	InvalidInferenceSteps Kind = "INVALID_INFERENCE_STEPS"
	InvalidGuidanceScale  Kind = "INVALID_GUIDANCE_SCALE"
	InvalidScheduler      Kind = "INVALID_SCHEDULER"
	QueueFull             Kind = "QUEUE_FULL"
	TrackNotFound         Kind = "TRACK_NOT_FOUND"
	AlreadyComplete       Kind = "ALREADY_COMPLETE"
	DownloadInProgress    Kind = "DOWNLOAD_IN_PROGRESS"
	ModelDownloadFailed   Kind = "MODEL_DOWNLOAD_FAILED"
	ModelNotFound         Kind = "MODEL_NOT_FOUND"
	ModelLoadFailed       Kind = "MODEL_LOAD_FAILED"
	ModelInferenceFailed  Kind = "MODEL_INFERENCE_FAILED"
	Cancelled             Kind = "CANCELLED"
)

// Error pairs a stable Kind with a short human-readable message, matching
// the shape carried by both RPC error responses and generation_error
// notifications.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// New constructs an *Error for kind with message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// As extracts an *Error from err, synthesizing a MODEL_INFERENCE_FAILED
// wrapper for any error that isn't already one of the stable kinds. Engine
// code returns plain wrapped errors for unexpected failures (ONNX runtime
// errors, I/O errors); the queue worker uses this to guarantee every
// generation_error notification carries a stable code.
func As(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return &Error{Kind: ModelInferenceFailed, Message: err.Error()}
}
