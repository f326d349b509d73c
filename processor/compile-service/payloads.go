package compileservice

import (
	"fmt"
	"strings"

	"github.com/c360studio/semlogic/logic"
)

// KindBadRequest marks a reply to a request that could not be decoded.
const KindBadRequest = "bad_request"

// Request is the compile request payload.
type Request struct {
	Instruction string `json:"instruction"`
	ToCode      bool   `json:"to_code,omitempty"`
	Interactive bool   `json:"interactive,omitempty"`
}

// Validate validates the request.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Instruction) == "" {
		return fmt.Errorf("instruction is required")
	}
	return nil
}

// Response is the reply payload: Output on success, otherwise Error with
// its Kind (a compile outcome or KindBadRequest) and any raw completion
// text that failed to parse.
type Response struct {
	Output *logic.CompilerOutput `json:"output,omitempty"`
	Error  string                `json:"error,omitempty"`
	Kind   string                `json:"kind,omitempty"`
	Raw    string                `json:"raw,omitempty"`
}

// Err returns the reply error, or nil on success.
func (r *Response) Err() error {
	if r.Error == "" {
		return nil
	}
	return &RemoteError{Kind: r.Kind, Message: r.Error, Raw: r.Raw}
}

// RemoteError is a compile failure reported by the service.
type RemoteError struct {
	Kind    string
	Message string
	Raw     string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote compile failed (%s): %s", e.Kind, e.Message)
}
