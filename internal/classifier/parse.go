package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"newswire/internal/config"
	"newswire/internal/types"
)

// flexibleID accepts ids sent back as strings or numbers.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

// entityList accepts a JSON list or a comma separated string.
type entityList []string

func (e *entityList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = strings.Split(s, ",")
		return nil
	}
	if string(data) == "null" {
		*e = nil
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*e = list
	return nil
}

type rawResult struct {
	ID        flexibleID `json:"id"`
	NewsID    flexibleID `json:"news_id"`
	Label     string     `json:"label"`
	Primary   string     `json:"primary_category"`
	Entities  entityList `json:"entities"`
	Secondary entityList `json:"secondary_category"`
}

func (r rawResult) id() string {
	if r.ID != "" {
		return string(r.ID)
	}
	return string(r.NewsID)
}

func (r rawResult) label() string {
	if r.Label != "" {
		return r.Label
	}
	return r.Primary
}

func (r rawResult) entities() []string {
	list := r.Entities
	if len(list) == 0 {
		list = r.Secondary
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if e = strings.ToUpper(strings.TrimSpace(e)); e != "" {
			out = append(out, e)
		}
	}
	return out
}

type errorPayload struct {
	Code    flexibleID `json:"code"`
	Message string     `json:"message"`
}

type envelope struct {
	Results []rawResult   `json:"results"`
	Error   *errorPayload `json:"error"`
}

// stripFences removes a surrounding markdown code block.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// parseResponse decodes a batch answer into results keyed by item id.
func parseResponse(text string) (map[string]Result, *types.ClassifierError) {
	body := stripFences(text)
	if body == "" {
		return nil, malformed("empty response")
	}

	var results []rawResult
	switch body[0] {
	case '[':
		if err := json.Unmarshal([]byte(body), &results); err != nil {
			return nil, malformed(err.Error())
		}
	case '{':
		var env envelope
		if err := json.Unmarshal([]byte(body), &env); err != nil {
			return nil, malformed(err.Error())
		}
		if env.Error != nil {
			return nil, &types.ClassifierError{
				Code:    types.CodeProviderError,
				Message: strings.TrimSpace(fmt.Sprintf("%s %s", env.Error.Code, env.Error.Message)),
			}
		}
		if env.Results == nil {
			return nil, malformed("object without results")
		}
		results = env.Results
	default:
		start, end := strings.IndexByte(body, '['), strings.LastIndexByte(body, ']')
		if start < 0 || end <= start {
			return nil, malformed("no JSON array in response")
		}
		if err := json.Unmarshal([]byte(body[start:end+1]), &results); err != nil {
			return nil, malformed(err.Error())
		}
	}

	parsed := make(map[string]Result, len(results))
	for _, r := range results {
		id := r.id()
		if id == "" {
			continue
		}
		parsed[id] = Result{
			ID:       id,
			Label:    config.NormalizeLabel(r.label()),
			RawLabel: strings.TrimSpace(r.label()),
			Entities: r.entities(),
		}
	}
	return parsed, nil
}

func malformed(msg string) *types.ClassifierError {
	const maxLen = 200
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return &types.ClassifierError{Code: types.CodeMalformedResponse, Message: msg}
}

// ItemID formats a record id the way it is sent in a prompt.
func ItemID(id int64) string {
	return strconv.FormatInt(id, 10)
}
