package codec

import (
	"encoding/json"

	"github.com/kaelwave/wavetuner/internal/errs"
)

// BuildBody marshals params (typically a map[string]any or a struct with
// json tags) into the JSON object an RPC call sends. When authed is true
// userAuthToken and syncTime are merged in, per spec.md §4.3 ("every
// authenticated request additionally carries userAuthToken and
// syncTime").
func BuildBody(params map[string]any, authed bool, userAuthToken string, syncTime int64) ([]byte, error) {
	body := make(map[string]any, len(params)+2)
	for k, v := range params {
		body[k] = v
	}
	if authed {
		body["userAuthToken"] = userAuthToken
		body["syncTime"] = syncTime
	}
	out, err := json.Marshal(body)
	if err != nil {
		return nil, errs.Wrap(errs.KindProtocol, "encoding request body", err)
	}
	return out, nil
}
