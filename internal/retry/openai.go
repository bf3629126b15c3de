package retry

import (
	"errors"

	"github.com/sashabaranov/go-openai"
)

// OpenAI classifies an error from an OpenAI-compatible endpoint: client
// errors are permanent, everything else is retried.
func OpenAI(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return ForStatus(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ForStatus(reqErr.HTTPStatusCode, err)
	}
	return err
}
