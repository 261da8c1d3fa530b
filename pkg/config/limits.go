package config

import "encoding/json"

func parseAgentLimitsJSON(v string) (map[string]int, error) {
	var raw map[string]int
	if err := json.Unmarshal([]byte(v), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
