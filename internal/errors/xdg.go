// ABOUTME: XDG path errors with LLM-optimized messaging
// ABOUTME: Used when XDG directories for config or the call journal cannot be created

package errors

import (
	"fmt"

	"github.com/harper/ksc-bridge/internal/jsonrpc"
)

type XDGPathError struct {
	Variable      string
	AttemptedPath string
	UnderlyingErr error
}

func NewXDGPathError(variable, path string, err error) *XDGPathError {
	return &XDGPathError{
		Variable:      variable,
		AttemptedPath: path,
		UnderlyingErr: err,
	}
}

func (e *XDGPathError) Error() string {
	return fmt.Sprintf("cannot create %s directory at %s: %v", e.Variable, e.AttemptedPath, e.UnderlyingErr)
}

func (e *XDGPathError) Unwrap() error { return e.UnderlyingErr }

func (e *XDGPathError) ToJSONRPCError() *jsonrpc.Error {
	return newLLMError(jsonrpc.ServerError, e.Error(), LLMErrorData{
		ErrorType:   "xdg_path_error",
		Explanation: "Could not create the directories ksc-bridge uses for its config and call journal.",
		PossibleCauses: []string{
			"Insufficient permissions in parent directory",
			"Disk is full",
			"Path already exists as a file (not directory)",
		},
		SuggestedActions: []string{
			fmt.Sprintf("Check permissions: ls -ld %s", e.AttemptedPath),
			fmt.Sprintf("Manually create directory: mkdir -p %s", e.AttemptedPath),
		},
		RelevantState: map[string]interface{}{
			"variable":       e.Variable,
			"attempted_path": e.AttemptedPath,
			"error":          errString(e.UnderlyingErr),
		},
		Recoverable: true,
	})
}
