package resource

import "encoding/json"

// Reference points at another resource.
type Reference struct {
	RID string `json:"rid"`
}

// Call is the body of a request. Params carries the verb specific value.
type Call struct {
	CID    string          `json:"cid,omitempty"`
	Token  json.RawMessage `json:"token,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// DeleteParams identifies the collection member to remove.
type DeleteParams struct {
	RID string `json:"rid"`
}

// Error codes used in responses.
const (
	CodeNotFound       = "system.notFound"
	CodeInvalidParams  = "system.invalidParams"
	CodeAccessDenied   = "system.accessDenied"
	CodeInternalError  = "system.internalError"
	CodeMethodNotFound = "system.methodNotFound"
)

// Error is the error half of a response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// Response is the reply to a request. Exactly one of Result or Error is set.
type Response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// AccessResult grants read and call rights. Call is a comma separated method
// list or "*".
type AccessResult struct {
	Get  bool   `json:"get"`
	Call string `json:"call,omitempty"`
}

// ModelResult wraps a single resource value for get responses.
type ModelResult struct {
	Model json.RawMessage `json:"model"`
}

// CollectionResult wraps collection members for get responses.
type CollectionResult struct {
	Collection []Reference `json:"collection"`
}

// ChangeEvent carries the new values of a resource.
type ChangeEvent struct {
	Values json.RawMessage `json:"values"`
}

// AddEvent reports a new collection member at Idx.
type AddEvent struct {
	Value Reference `json:"value"`
	Idx   int       `json:"idx"`
}

// RemoveEvent reports that the member at Idx left the collection.
type RemoveEvent struct {
	Idx int `json:"idx"`
}

// ResetEvent asks gateways to drop cached resources matching the patterns.
type ResetEvent struct {
	Resources []string `json:"resources"`
}

// Result encodes v as a successful response body.
func Result(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Response{Result: raw})
}

// Fail encodes an error response body.
func Fail(code, message string) []byte {
	b, _ := json.Marshal(Response{Error: &Error{Code: code, Message: message}})
	return b
}

// CallWith encodes a request body with the given params.
func CallWith(params any) ([]byte, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Call{Params: raw})
}
