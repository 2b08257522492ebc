package gemini

import (
	"errors"

	"github.com/phrazzld/relay-api/internal/generation"
	"google.golang.org/genai"
)

// classifyError converts an error from the genai client into a
// *generation.Error. API errors are classified by their HTTP code; anything
// else happened before a response was read.
func classifyError(err error) *generation.Error {
	if code, ok := apiErrorCode(err); ok {
		genErr := generation.NewError(ProviderName, generation.KindForStatus(code), err)
		genErr.StatusCode = code
		return genErr
	}
	return generation.NewError(ProviderName, generation.KindForTransportError(err), err)
}

func apiErrorCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}
