package session

import (
	"encoding/json"

	"github.com/hybridchat/hub/pkg/hub"
)

// decodeMessages normalizes a value that is either already []hub.Message
// (the in-memory case) or the generic `any` produced by unmarshalling a
// persisted JSON document, into []hub.Message.
func decodeMessages(raw any) ([]hub.Message, error) {
	if msgs, ok := raw.([]hub.Message); ok {
		return msgs, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var msgs []hub.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// documentState is the on-disk shape of a persisted session (spec §3, §6):
//
//	{
//	  "messages": [Message...],
//	  "agents":   {"<name>": {"updates": [Message...], "history": <opaque>}},
//	  "selector": <opaque>   // present iff a selector exists
//	}
type documentState struct {
	Messages []hub.Message             `json:"messages"`
	Agents   map[string]map[string]any `json:"agents"`
	Selector any                       `json:"selector,omitempty"`
}
