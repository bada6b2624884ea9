package api

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

type usageResponse struct {
	FiveHour *usageWindow `json:"five_hour"`
	SevenDay *usageWindow `json:"seven_day"`
	Plan     string       `json:"plan"`
}

type usageWindow struct {
	Utilization Utilization `json:"utilization"`
	ResetsAt    string      `json:"resets_at"`
}

type sessionResponse struct {
	Account struct {
		UUID        string `json:"uuid"`
		Memberships []struct {
			Organization struct {
				UUID string `json:"uuid"`
			} `json:"organization"`
		} `json:"memberships"`
	} `json:"account"`
}

// Utilization tolerates the API's loose typing: the value arrives as a JSON
// number, a numeric string, or a string with a trailing "%". Anything else
// decodes as 0 rather than failing the whole response.
type Utilization int

func (u *Utilization) UnmarshalJSON(data []byte) error {
	*u = Utilization(parseUtilization(string(data)))
	return nil
}

func parseUtilization(raw string) int {
	s := strings.TrimSpace(raw)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" || s == "null" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(math.Round(f))
}

func parseResetAt(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

// decodeUsage parses a usage body, returning false when the JSON is unusable.
func decodeUsage(body []byte) (usageResponse, bool) {
	var u usageResponse
	if err := json.Unmarshal(body, &u); err != nil {
		return usageResponse{}, false
	}
	return u, true
}
