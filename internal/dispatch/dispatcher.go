// Package dispatch maps tool method names to in-process operations and
// wraps every result in the uniform envelope external transports return to
// callers. The dispatch table is an explicit registration map built at
// startup; nothing is resolved from method name strings at call time.
package dispatch

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/valter-silva-au/taskdeck/internal/storage"
	"github.com/valter-silva-au/taskdeck/pkg/models"
)

// Stable error codes surfaced to automated callers.
const (
	CodeInvalidParameter         = "INVALID_PARAMETER"
	CodeValidationError          = "VALIDATION_ERROR"
	CodeNotFound                 = "NOT_FOUND"
	CodeNotFoundInExpectedStatus = "NOT_FOUND_IN_EXPECTED_STATUS"
	CodeIOError                  = "IO_ERROR"
	CodeUnknownMethod            = "UNKNOWN_METHOD"
)

// Args is the decoded parameter object of one tool call.
type Args map[string]any

// Result is what a handler produces: payload plus an optional summary and
// warnings. Errors travel through the handler's error return.
type Result struct {
	Summary  string
	Data     any
	Warnings []string
}

// Handler executes one tool method.
type Handler func(args Args) (*Result, error)

// Dispatcher holds the method registration table.
type Dispatcher struct {
	source   string
	now      func() time.Time
	handlers map[string]Handler
}

// NewDispatcher creates an empty Dispatcher. source is recorded in every
// envelope's audit block so callers can tell which surface served them.
func NewDispatcher(source string) *Dispatcher {
	return &Dispatcher{
		source:   source,
		now:      func() time.Time { return time.Now().UTC() },
		handlers: make(map[string]Handler),
	}
}

// Register adds a method to the table. Registering a duplicate name is a
// programming error and panics at startup rather than shadowing silently.
func (d *Dispatcher) Register(method string, handler Handler) {
	if _, exists := d.handlers[method]; exists {
		panic(fmt.Sprintf("dispatch: method %q registered twice", method))
	}
	d.handlers[method] = handler
}

// Methods returns the registered method names, sorted.
func (d *Dispatcher) Methods() []string {
	methods := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		methods = append(methods, name)
	}
	sort.Strings(methods)
	return methods
}

// Dispatch runs a method and wraps the outcome in an envelope. Failures are
// always structured: a caller never sees a raw error chain, only coded
// envelope errors.
func (d *Dispatcher) Dispatch(method string, args Args) *models.Envelope {
	start := d.now()
	env := &models.Envelope{
		Audit: models.Audit{
			Timestamp: start,
			Source:    d.source,
		},
	}

	handler, ok := d.handlers[method]
	if !ok {
		env.Errors = append(env.Errors, models.EnvelopeError{
			Code:    CodeUnknownMethod,
			Message: fmt.Sprintf("unknown method %q", method),
		})
		d.finish(env, start)
		return env
	}

	result, err := handler(args)
	if err != nil {
		env.Errors = append(env.Errors, classifyError(err))
		d.finish(env, start)
		return env
	}

	if result != nil {
		env.Summary = result.Summary
		env.Data = result.Data
		env.Warnings = result.Warnings
	}
	d.finish(env, start)
	return env
}

func (d *Dispatcher) finish(env *models.Envelope, start time.Time) {
	env.Audit.DurationMS = d.now().Sub(start).Milliseconds()
	env.Finalize()
}

// ParamError builds a handler error for a missing or malformed argument.
func ParamError(name, reason string) error {
	return &paramError{name: name, reason: reason}
}

type paramError struct {
	name   string
	reason string
}

func (e *paramError) Error() string {
	return fmt.Sprintf("parameter %s: %s", e.name, e.reason)
}

// classifyError maps domain error types onto stable envelope codes.
func classifyError(err error) models.EnvelopeError {
	var pe *paramError
	if errors.As(err, &pe) {
		return models.EnvelopeError{Code: CodeInvalidParameter, Message: pe.Error(), Field: pe.name}
	}

	var ve *storage.ValidationError
	if errors.As(err, &ve) {
		return models.EnvelopeError{Code: CodeValidationError, Message: ve.Error(), Field: ve.Field}
	}

	var sm *storage.StatusMismatchError
	if errors.As(err, &sm) {
		return models.EnvelopeError{Code: CodeNotFoundInExpectedStatus, Message: sm.Error()}
	}

	var nf *storage.NotFoundError
	if errors.As(err, &nf) {
		return models.EnvelopeError{Code: CodeNotFound, Message: nf.Error()}
	}

	return models.EnvelopeError{Code: CodeIOError, Message: err.Error()}
}
