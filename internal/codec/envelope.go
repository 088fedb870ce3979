// Package codec builds and parses the JSON envelope the remote service's
// RPC wire format uses (spec.md §4.3/§6): the URL query string carries
// method/partner/user identity, the body carries a JSON object (plaintext
// or Blowfish-encrypted hex, depending on the call), and every response
// is {stat, result?, code?, message?}.
package codec

import (
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/kaelwave/wavetuner/internal/errs"
)

// Envelope is the wire shape of every RPC response.
type Envelope struct {
	Stat    string          `json:"stat"`
	Result  json.RawMessage `json:"result,omitempty"`
	Code    *int            `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
}

// ParseEnvelope unmarshals body and returns the raw result payload on
// success, or a typed *errs.Error on a "fail" stat. duringUserLogin
// enables the InvalidPartnerLogin→InvalidCredentials remap spec.md §4.3
// specifies for the second login step.
func ParseEnvelope(body []byte, duringUserLogin bool) (json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errs.Wrap(errs.KindProtocol, "invalid response envelope", err)
	}
	switch env.Stat {
	case "ok":
		return env.Result, nil
	case "fail":
		code := 0
		if env.Code != nil {
			code = *env.Code
		}
		return nil, errs.FromServerCode(code, env.Message, duringUserLogin)
	default:
		return nil, errs.New(errs.KindProtocol, "invalid response envelope: unrecognized stat")
	}
}

// URLParams are the identity fields spec.md §6 says go on the query
// string, omitted when not yet available.
type URLParams struct {
	Scheme      string
	Host        string
	Port        int
	Path        string
	Method      string
	PartnerID   string // omitted from the query if empty
	UserAuthTok string // omitted if empty
	ListenerID  string // omitted if empty
}

// BuildURL assembles the RPC endpoint URL with its method/partner/user
// query parameters, encoded in key order:
//
//	{scheme}://{host}:{port}{path}?auth_token=Y&method=X&partner_id=N&user_id=Z
func BuildURL(p URLParams) string {
	q := url.Values{}
	q.Set("method", p.Method)
	if p.PartnerID != "" {
		q.Set("partner_id", p.PartnerID)
	}
	if p.UserAuthTok != "" {
		q.Set("auth_token", p.UserAuthTok)
	}
	if p.ListenerID != "" {
		q.Set("user_id", p.ListenerID)
	}

	u := url.URL{
		Scheme:   p.Scheme,
		Host:     p.Host + ":" + strconv.Itoa(p.Port),
		Path:     p.Path,
		RawQuery: q.Encode(),
	}
	return u.String()
}
