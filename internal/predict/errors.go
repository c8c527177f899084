package predict

import "fmt"

// NetworkError is a transport failure: unreachable host, timeout or cancellation.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("predict: network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServiceError is a non-success status from the model service.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("predict: service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("predict: service returned %d: %s", e.StatusCode, e.Message)
}

// ParseError is a response body that does not describe a usable prediction.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("predict: malformed response: %s: %v", e.Reason, e.Err)
	}
	return "predict: malformed response: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }
