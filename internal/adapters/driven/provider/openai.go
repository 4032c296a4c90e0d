package provider

import (
	"errors"

	"github.com/sashabaranov/go-openai"
)

// OpenAIError classifies go-openai errors by HTTP status.
func OpenAIError(err error) error {
	const name = "openai"
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return StatusError(name, apiErr.HTTPStatusCode, []byte(apiErr.Message))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := ""
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return StatusError(name, reqErr.HTTPStatusCode, []byte(msg))
	}
	return TransportError(name, err)
}
