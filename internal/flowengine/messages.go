package flowengine

const genericErrorMessage = "Something went wrong. Please try again."

var errorMessages = map[string]string{
	"FORBIDDEN":           "You do not have permission to view outpatient visits.",
	"UNAUTHORIZED":        "Your session has expired. Sign in again to continue.",
	"MODULE_NOT_ENTITLED": "The outpatient module is not enabled for your organization. Upgrade your plan to use it.",
	"NOT_FOUND":           "This visit could not be found.",
	"STAGE_CONFLICT":      "This visit has moved to another stage. Refresh to see its current state.",
	"VERSION_CONFLICT":    "This visit was updated by someone else. Refresh and try again.",
	"VALIDATION_ERROR":    "Some of the submitted details were rejected. Check the form and try again.",
	"NETWORK_ERROR":       "The server could not be reached. Check your connection and retry.",
}

// MessageForCode resolves a human-readable message for a backend code,
// falling back to a generic message.
func MessageForCode(code string) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return genericErrorMessage
}
