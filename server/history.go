package server

import (
	"encoding/json"
	"fmt"

	"videoChat/core"
)

// HistoryExport is the documented export shape.
type HistoryExport struct {
	History []core.Turn `json:"history"`
}

// DecodeHistory accepts the wrapped {"history": [...]} form and, for
// backward compatibility, a bare list of turns.
func DecodeHistory(data []byte) ([]core.Turn, error) {
	var wrapped HistoryExport
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.History != nil {
		return wrapped.History, nil
	}

	var bare []core.Turn
	if err := json.Unmarshal(data, &bare); err != nil {
		return nil, fmt.Errorf("unrecognized history format: %w", err)
	}
	return bare, nil
}
