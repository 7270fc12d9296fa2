package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/goliatone/go-sequence"
)

// Outcome carries either the success text or the error text of an action.
type Outcome struct {
	Ok  *string `json:"Ok,omitempty"`
	Err *string `json:"Err,omitempty"`
}

func (o Outcome) Failed() bool { return o.Err != nil }

// Result pairs a serialized action with its outcome.
type Result struct {
	Action json.RawMessage `json:"action"`
	Result Outcome         `json:"result"`
}

// NewResult builds the wire result for action. value is rendered as text,
// strings verbatim and anything else as JSON.
func NewResult(action sequence.Executable, value any, err error) (Result, error) {
	encoded, encErr := json.Marshal(action)
	if encErr != nil {
		return Result{}, encErr
	}
	res := Result{Action: encoded}
	if err != nil {
		text := err.Error()
		res.Result.Err = &text
		return res, nil
	}
	text, encErr := renderValue(value)
	if encErr != nil {
		return Result{}, encErr
	}
	res.Result.Ok = &text
	return res, nil
}

func renderValue(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
