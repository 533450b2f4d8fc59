package alarm

import "encoding/json"

// wireTagUpdate mirrors the driver SDK's /tags/update entry shape
// (pkg/driver/runtime.go's tagUpdate), §6: "{name, value, time_ms,
// quality}". The alarm engine parses the value as a float; a non-numeric
// tag value is a parse failure per §7's "Parse failure on inbound
// JSON... logged and dropped".
type wireTagUpdate struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value,string"`
	TimeMs  int64   `json:"time_ms"`
	Quality uint32  `json:"quality"`
}

func decodeTagUpdates(payload []byte) ([]wireTagUpdate, error) {
	var updates []wireTagUpdate
	if err := json.Unmarshal(payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func encodeAlarmInfo(info AlarmInfo) ([]byte, error) {
	return json.Marshal(info)
}
