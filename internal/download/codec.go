package download

import (
	"encoding/json"
	"fmt"
)

// DecodeResult rebuilds a Result from its kind and JSON payload, as recorded
// in the journal.
func DecodeResult(kind string, payload []byte) (Result, error) {
	switch kind {
	case IdleResult{}.Kind():
		return IdleResult{}, nil
	case CompletedResult{}.Kind():
		return CompletedResult{}, nil
	case DownloadingResult{}.Kind():
		var r DownloadingResult
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("decode %s result: %w", kind, err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown result kind %q", kind)
	}
}

// DecodeState rebuilds a State from its kind and JSON payload.
func DecodeState(kind string, payload []byte) (State, error) {
	switch kind {
	case IdleState{}.Kind():
		return IdleState{}, nil
	case DownloadingState{}.Kind():
		var s DownloadingState
		if err := json.Unmarshal(payload, &s); err != nil {
			return nil, fmt.Errorf("decode %s state: %w", kind, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown state kind %q", kind)
	}
}
