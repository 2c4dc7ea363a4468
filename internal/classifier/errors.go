package classifier

import "fmt"

// TransportError wraps a failed call to the model endpoint.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "classifier transport: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// FormatError means a model response did not have the requested shape.
type FormatError struct {
	Raw string
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("classifier format: %v", e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }
