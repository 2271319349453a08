package ddp

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Protocol versions this server speaks, most preferred first
var SupportedVersions = []string{"1", "pre2", "pre1"}

// Message is the union of every DDP message the server reads or writes.
// Only the fields relevant to Msg are set.
type Message struct {
	Msg string `json:"msg"`

	// connect / connected / failed
	Session string   `json:"session,omitempty"`
	Version string   `json:"version,omitempty"`
	Support []string `json:"support,omitempty"`

	// sub / unsub / nosub / method / ping / pong / result
	ID     string                `json:"id,omitempty"`
	Name   string                `json:"name,omitempty"`
	Method string                `json:"method,omitempty"`
	Params []jsoniter.RawMessage `json:"params,omitempty"`

	// added / changed / removed
	Collection string         `json:"collection,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	Cleared    []string       `json:"cleared,omitempty"`

	// ready / updated
	Subs    []string `json:"subs,omitempty"`
	Methods []string `json:"methods,omitempty"`

	// nosub / result / error
	Error            *Error `json:"error,omitempty"`
	Reason           string `json:"reason,omitempty"`
	OffendingMessage any    `json:"offendingMessage,omitempty"`
}

func decodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func encodeMessage(m *Message) ([]byte, error) {
	return json.Marshal(m)
}

func supported(version string) bool {
	for _, v := range SupportedVersions {
		if v == version {
			return true
		}
	}
	return false
}
