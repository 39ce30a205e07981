package errors

import "encoding/json"

const (
	TypeAPIError = "api_error"
)

// ToJSON serializes the error using the fixed client-facing envelope.
func (e *APIError) ToJSON() ([]byte, error) {
	env := envelope{}
	env.Error.Message = e.Message
	env.Error.Type = firstNonEmpty(e.Type, TypeAPIError)
	env.Error.Code = e.Code
	env.Error.Details = e.Details
	return json.Marshal(env)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
