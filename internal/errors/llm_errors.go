// ABOUTME: LLM-optimized error messages with explanations and suggested actions
// ABOUTME: Converts KSC call failures and bridge faults into verbose JSON-RPC errors

package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harper/ksc-bridge/internal/jsonrpc"
	"github.com/harper/ksc-bridge/internal/logger"
)

var log = logger.Named("errors")

type LLMErrorData struct {
	ErrorType        string                 `json:"error_type"`
	Explanation      string                 `json:"explanation"`
	PossibleCauses   []string               `json:"possible_causes,omitempty"`
	SuggestedActions []string               `json:"suggested_actions,omitempty"`
	RelevantState    map[string]interface{} `json:"relevant_state,omitempty"`
	Recoverable      bool                   `json:"recoverable"`
	Details          string                 `json:"details,omitempty"`
}

func newLLMError(code int, message string, data LLMErrorData) *jsonrpc.Error {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		log.Error("failed to marshal error data: %v", err)
		dataBytes = []byte("{}")
	}

	return &jsonrpc.Error{
		Code:    code,
		Message: message,
		Data:    dataBytes,
	}
}

// ToJSONRPCError converts any error returned by the client stack into a tool-surface
// error, picking the explanation by taxonomy kind.
func ToJSONRPCError(err error) *jsonrpc.Error {
	var rpcErr *jsonrpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	var conv interface{ ToJSONRPCError() *jsonrpc.Error }
	if errors.As(err, &conv) {
		return conv.ToJSONRPCError()
	}
	if te, ok := AsTransport(err); ok {
		return NewTransportFailure(te)
	}
	if de, ok := AsDecode(err); ok {
		return NewDecodeFailure(de)
	}
	if ae, ok := AsApplication(err); ok {
		return NewApplicationFailure(ae)
	}
	if ce, ok := AsContract(err); ok {
		return NewContractFailure(ce)
	}
	if pe, ok := AsPollTimeout(err); ok {
		return NewPollTimeoutFailure(pe)
	}
	return NewInternalError(err.Error())
}

func NewTransportFailure(e *TransportError) *jsonrpc.Error {
	message := fmt.Sprintf(
		"I could not reach the Kaspersky Security Center server while calling %s (%s). "+
			"No response was received, so the server state is unchanged as far as this call is concerned.",
		e.Method, e.Reason,
	)

	causes := []string{
		"The KSC server is down or the OpenAPI service is not running",
		"The configured host or port is wrong",
		"A firewall is blocking the connection",
	}
	actions := []string{
		"Check the server is reachable: curl -k https://<host>:13299/api/v1.0/",
		"Verify ksc.host and ksc.port in config.yaml",
	}
	switch e.Reason {
	case ReasonTLS:
		causes = []string{
			"The server uses a self-signed certificate",
			"The certificate does not match the configured host name",
		}
		actions = []string{
			"Set ksc.ca_file to the server's CA certificate",
			"Or set ksc.verify_ssl: false for a lab server",
		}
	case ReasonTimeout:
		causes = append(causes, "The server is overloaded and did not answer within ksc.timeout_seconds")
		actions = append(actions, "Increase ksc.timeout_seconds in config.yaml and retry")
	case ReasonCanceled:
		causes = []string{"The caller cancelled the request before it completed"}
		actions = []string{"Retry the request if the result is still needed"}
	}

	return newLLMError(jsonrpc.KSCTransportError, message, LLMErrorData{
		ErrorType:        "ksc_transport_error",
		Explanation:      "The HTTP request to the KSC OpenAPI endpoint failed before any response body arrived.",
		PossibleCauses:   causes,
		SuggestedActions: actions,
		RelevantState: map[string]interface{}{
			"method": e.Method,
			"url":    e.URL,
			"reason": string(e.Reason),
		},
		Recoverable: true,
		Details:     errString(e.Err),
	})
}

func NewDecodeFailure(e *DecodeError) *jsonrpc.Error {
	message := fmt.Sprintf(
		"The KSC server answered %s but I could not decode the response: %s. "+
			"The call may have taken effect on the server.",
		orUnknown(e.Method), e.Reason,
	)

	return newLLMError(jsonrpc.KSCDecodeError, message, LLMErrorData{
		ErrorType:   "ksc_decode_error",
		Explanation: "The response body was not a JSON object in the KSC typed-value format.",
		PossibleCauses: []string{
			"A reverse proxy returned an HTML error page",
			"The server returned a timestamp without a timezone",
			"The server version uses a value encoding this bridge does not know",
		},
		SuggestedActions: []string{
			"Check the bridge logs for the response snippet",
			"Verify ksc.host points directly at the OpenAPI port, not a web console",
		},
		RelevantState: map[string]interface{}{
			"method":  e.Method,
			"snippet": e.Snippet,
		},
		Recoverable: false,
		Details:     errString(e.Err),
	})
}

func NewApplicationFailure(e *ApplicationError) *jsonrpc.Error {
	message := fmt.Sprintf("The KSC server rejected %s: %s", e.Method, orUnknown(e.Message))

	causes := []string{
		"An argument refers to an object that does not exist (host, group or task)",
		"The account lacks the rights required for this operation",
	}
	actions := []string{
		"Check the identifiers passed to the tool",
		"Look up the server error code in the KSC OpenAPI reference",
	}
	if e.IsAuthFailure() {
		causes = []string{"The credentials are wrong or the session expired"}
		actions = []string{"Verify ksc.username and ksc.password", "Retry; the bridge reconnects once on authentication failure"}
	}

	state := map[string]interface{}{
		"method":      e.Method,
		"http_status": e.HTTPStatus,
		"code":        e.Code,
	}
	if e.Subcode != 0 {
		state["subcode"] = e.Subcode
	}
	if e.Module != "" {
		state["module"] = e.Module
	}

	return newLLMError(jsonrpc.KSCApplicationError, message, LLMErrorData{
		ErrorType:        "ksc_application_error",
		Explanation:      "The server understood the request and reported a fault while executing it.",
		PossibleCauses:   causes,
		SuggestedActions: actions,
		RelevantState:    state,
		Recoverable:      true,
	})
}

func NewContractFailure(e *ContractError) *jsonrpc.Error {
	message := fmt.Sprintf("The KSC server's reply to %s did not match the expected protocol: %s", e.Method, e.Reason)

	return newLLMError(jsonrpc.KSCContractError, message, LLMErrorData{
		ErrorType:   "ksc_contract_error",
		Explanation: "The response was well formed but lacked a value the bridge relies on.",
		PossibleCauses: []string{
			"The server version changed the shape of this method's output",
			"A result iterator was used after it was released",
		},
		SuggestedActions: []string{
			"Check the KSC server version against the bridge's supported versions",
			"Report the method name and missing parameter to the bridge maintainers",
		},
		RelevantState: map[string]interface{}{
			"method": e.Method,
			"param":  e.Param,
		},
		Recoverable: false,
	})
}

func NewPollTimeoutFailure(e *PollTimeoutError) *jsonrpc.Error {
	message := fmt.Sprintf(
		"The asynchronous action %s did not finish within %s. Its outcome is unknown: it may still succeed or fail on the server.",
		e.Token, e.Waited.Round(time.Millisecond),
	)

	return newLLMError(jsonrpc.KSCPollTimeout, message, LLMErrorData{
		ErrorType:   "ksc_poll_timeout",
		Explanation: "The bridge stopped waiting for a long-running server action before it reported a final state.",
		PossibleCauses: []string{
			"The action is large (for example removing a group with many hosts)",
			"The server is busy with other tasks",
		},
		SuggestedActions: []string{
			"Query the action again later using the token",
			"Do not retry the original operation until the outcome is known",
		},
		RelevantState: map[string]interface{}{
			"token":           e.Token,
			"waited_ms":       e.Waited.Milliseconds(),
			"checks":          e.Checks,
			"last_state_code": e.LastStateCode,
		},
		Recoverable: true,
	})
}

func NewInvalidParamsError(paramName string, expectedType string, receivedValue string) *jsonrpc.Error {
	message := fmt.Sprintf(
		"The parameter '%s' is invalid. I expected a %s but received: %s. "+
			"Please check the tool's input schema from tools/list.",
		paramName, expectedType, receivedValue,
	)

	return newLLMError(jsonrpc.InvalidParams, message, LLMErrorData{
		ErrorType:   "invalid_params",
		Explanation: "The request contained parameters that don't match the expected schema for this tool.",
		PossibleCauses: []string{
			"The parameter value is missing or null when it's required",
			"The parameter has the wrong type (e.g., string instead of number)",
			"The parameter name is misspelled",
		},
		SuggestedActions: []string{
			"Call tools/list and review the input schema",
			"Check that all required parameters are present",
		},
		RelevantState: map[string]interface{}{
			"param_name":     paramName,
			"expected_type":  expectedType,
			"received_value": receivedValue,
		},
		Recoverable: true,
	})
}

func NewParseError(details string) *jsonrpc.Error {
	message := fmt.Sprintf(
		"I couldn't parse the request as valid JSON. The JSON is malformed or contains syntax errors. "+
			"Details: %s",
		details,
	)

	return newLLMError(jsonrpc.ParseError, message, LLMErrorData{
		ErrorType:   "parse_error",
		Explanation: "The request body is not valid JSON.",
		PossibleCauses: []string{
			"Missing quotes around strings",
			"Trailing commas in objects or arrays",
			"Incomplete JSON structure (missing closing braces or brackets)",
		},
		SuggestedActions: []string{
			"Validate your JSON with a linter",
			"Ensure all strings are properly quoted",
		},
		Recoverable: true,
		Details:     details,
	})
}

func NewInvalidRequestError(details string) *jsonrpc.Error {
	message := fmt.Sprintf(
		"The request is not a valid JSON-RPC 2.0 request. "+
			"All requests must include 'jsonrpc': '2.0', 'method', and optionally 'params' and 'id'. "+
			"Details: %s",
		details,
	)

	return newLLMError(jsonrpc.InvalidRequest, message, LLMErrorData{
		ErrorType:   "invalid_request",
		Explanation: "The request doesn't conform to the JSON-RPC 2.0 structure.",
		PossibleCauses: []string{
			"Missing required 'jsonrpc' field",
			"Missing required 'method' field",
			"The 'jsonrpc' field is not '2.0'",
		},
		SuggestedActions: []string{
			"Ensure the request includes: {\"jsonrpc\": \"2.0\", \"method\": \"...\"}",
			"Add an 'id' field for requests that expect responses",
		},
		Recoverable: true,
		Details:     details,
	})
}

func NewMethodNotFoundError(methodName string, available []string) *jsonrpc.Error {
	message := fmt.Sprintf(
		"The method '%s' is not supported by this bridge. Available methods: %s.",
		methodName, strings.Join(available, ", "),
	)

	return newLLMError(jsonrpc.MethodNotFound, message, LLMErrorData{
		ErrorType:   "method_not_found",
		Explanation: "The requested method name doesn't match any handler in the bridge.",
		PossibleCauses: []string{
			"The method name is misspelled",
			"You called a tool name directly instead of through tools/call",
		},
		SuggestedActions: []string{
			"Use tools/list to discover tools and tools/call to invoke them",
		},
		RelevantState: map[string]interface{}{
			"method_name": methodName,
		},
		Recoverable: true,
	})
}

func NewToolNotFoundError(toolName string, available []string) *jsonrpc.Error {
	message := fmt.Sprintf(
		"There is no tool named '%s'. Available tools: %s.",
		toolName, strings.Join(available, ", "),
	)

	return newLLMError(jsonrpc.InvalidParams, message, LLMErrorData{
		ErrorType:   "tool_not_found",
		Explanation: "tools/call was given a name that is not registered.",
		PossibleCauses: []string{
			"The tool name is misspelled",
			"The tool belongs to a newer bridge version",
		},
		SuggestedActions: []string{
			"Call tools/list for the exact tool names",
		},
		RelevantState: map[string]interface{}{
			"tool_name": toolName,
		},
		Recoverable: true,
	})
}

func NewInternalError(details string) *jsonrpc.Error {
	message := fmt.Sprintf(
		"An internal error occurred while processing your request. "+
			"This is likely a bug in the bridge. Details: %s",
		details,
	)

	return newLLMError(jsonrpc.InternalError, message, LLMErrorData{
		ErrorType:   "internal_error",
		Explanation: "The bridge encountered an unexpected error during request processing.",
		PossibleCauses: []string{
			"A bug in the bridge code",
			"Resource exhaustion (out of memory, file descriptors)",
		},
		SuggestedActions: []string{
			"Check the bridge logs for error details",
			"Try the request again - it may be a transient issue",
		},
		Recoverable: false,
		Details:     details,
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
