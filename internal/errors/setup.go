// ABOUTME: Setup required errors with LLM-optimized messaging
// ABOUTME: Used when the bridge has no usable KSC connection settings

package errors

import (
	"strings"

	"github.com/harper/ksc-bridge/internal/jsonrpc"
)

type SetupRequiredError struct {
	MissingConfig      bool
	MissingHost        bool
	MissingCredentials bool
}

func NewSetupRequiredError(missingConfig, missingHost, missingCredentials bool) *SetupRequiredError {
	return &SetupRequiredError{
		MissingConfig:      missingConfig,
		MissingHost:        missingHost,
		MissingCredentials: missingCredentials,
	}
}

func (e *SetupRequiredError) Error() string {
	var missing []string
	if e.MissingConfig {
		missing = append(missing, "config file")
	}
	if e.MissingHost {
		missing = append(missing, "KSC host")
	}
	if e.MissingCredentials {
		missing = append(missing, "KSC credentials")
	}
	if len(missing) == 0 {
		return "setup required"
	}
	return "setup required: missing " + strings.Join(missing, ", ") +
		"; set them in config.yaml, a .env file or KSC_HOST/KSC_USERNAME/KSC_PASSWORD"
}

func (e *SetupRequiredError) ToJSONRPCError() *jsonrpc.Error {
	var causes []string
	var actions []string

	if e.MissingConfig {
		causes = append(causes, "Config file does not exist")
		actions = append(actions, "Create ~/.config/ksc-bridge/config.yaml or pass --config")
	}
	if e.MissingHost {
		causes = append(causes, "No KSC server address is configured")
		actions = append(actions, "Set ksc.host in config.yaml or export KSC_HOST")
	}
	if e.MissingCredentials {
		causes = append(causes, "No KSC user name or password is configured")
		actions = append(actions, "Set ksc.username and ksc.password, or KSC_USERNAME and KSC_PASSWORD in .env")
	}

	return newLLMError(jsonrpc.SetupRequired, e.Error(), LLMErrorData{
		ErrorType:        "setup_required",
		Explanation:      "ksc-bridge needs connection settings before it can reach Kaspersky Security Center.",
		PossibleCauses:   causes,
		SuggestedActions: actions,
		RelevantState: map[string]interface{}{
			"missing_config":      e.MissingConfig,
			"missing_host":        e.MissingHost,
			"missing_credentials": e.MissingCredentials,
		},
		Recoverable: true,
	})
}
