package channel

import "encoding/json"

// Request is an outbound frame: one correlated action invocation.
type Request struct {
	ID      string `json:"id"`
	Action  string `json:"action"`
	Payload any    `json:"payload"`
}

// Response is any inbound frame. Correlated responses carry ID and OK;
// the untagged authentication push carries Type and Token instead.
// Rate-limit fields are pointers so absence survives into RemoteError.
type Response struct {
	Type  string `json:"type,omitempty"`
	Token string `json:"token,omitempty"`

	ID     string          `json:"id,omitempty"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`

	Error     string   `json:"error,omitempty"`
	Code      int      `json:"code,omitempty"`
	Limit     *float64 `json:"limit,omitempty"`
	Current   *float64 `json:"current,omitempty"`
	Attempted *float64 `json:"attempted,omitempty"`
}
