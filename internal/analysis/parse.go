package analysis

import (
	"encoding/json"
	"strings"
)

// element is one array entry of the model's batch response.
type element struct {
	EmailID string `json:"emailId"`
	Analysis
}

// ParseResponse strictly decodes a batch response, tolerating a Markdown
// code fence around the JSON. Missing optional fields are defaulted.
func ParseResponse(text string) ([]Result, error) {
	var elems []element
	if err := json.Unmarshal([]byte(stripFences(text)), &elems); err != nil {
		return nil, &ModelError{Kind: KindInvalidJSON, Message: "invalid JSON response from model", Err: err}
	}

	results := make([]Result, 0, len(elems))
	for _, el := range elems {
		a := el.Analysis
		if a.ActionItems == nil {
			a.ActionItems = []ActionItem{}
		}
		results = append(results, Result{EmailID: el.EmailID, Analysis: a})
	}
	return results, nil
}

// stripFences removes a ```json ... ``` or ``` ... ``` wrapper.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "[{") {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
