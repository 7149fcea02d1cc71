// Package matcher pairs detected fields with user data through a language
// model.
package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/polzovatel/form-autofill-agent/internal/llm"
	"github.com/polzovatel/form-autofill-agent/internal/model"
)

// ErrMalformedResponse is returned when the model reply holds no usable
// fieldMatches document.
var ErrMalformedResponse = errors.New("malformed matcher response")

const systemPrompt = `You fill out web forms accurately. Given form fields and the user's data, pick the best value for each field.
Return strict JSON only, with no commentary, in this shape:
{"fieldMatches":[{"fieldName":"<field name or id>","value":"<value or null>","confidence":0.95,"reasoning":"<short reason>"}]}
Use a field's name when present, otherwise its id, otherwise its label as fieldName.
For fields with options, value must be one of the option values; for multi-select or checkbox groups it may be an array.
If nothing in the user data fits a field, return null for its value.`

// LLM asks a language model for field suggestions.
type LLM struct {
	client llm.Client
	logger zerolog.Logger
}

func NewLLM(client llm.Client, logger zerolog.Logger) *LLM {
	return &LLM{client: client, logger: logger}
}

// Match implements resolve.Matcher.
func (m *LLM) Match(ctx context.Context, fields []model.FieldDescriptor, data model.UserData) (model.Suggestions, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	resp, err := m.client.Generate(ctx, llm.Request{
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: "user", Content: BuildPrompt(fields, data)}},
		Temperature: 0,
		JSON:        true,
	})
	if err != nil {
		return nil, err
	}
	s, err := ParseSuggestions(resp.Text)
	if err != nil {
		m.logger.Debug().Str("raw", truncate(resp.Text, 500)).Msg("unparseable matcher reply")
		return nil, err
	}
	m.logger.Info().Str("model", m.client.Name()).Int("fields", len(fields)).Int("matches", len(s)).Msg("ai suggestions received")
	return s, nil
}

type promptField struct {
	Name    string   `json:"name,omitempty"`
	ID      string   `json:"id,omitempty"`
	Label   string   `json:"label,omitempty"`
	Type    string   `json:"type"`
	Options []string `json:"options,omitempty"`
}

// BuildPrompt renders the fields and the user's dictionary for the model.
// Fields without any identity and unsupported fields are left out.
func BuildPrompt(fields []model.FieldDescriptor, data model.UserData) string {
	var b strings.Builder
	b.WriteString("# Form fields\n")
	n := 0
	for _, f := range fields {
		if f.Key() == "" || f.Type == model.TypeUnsupported || f.Type == model.TypeFile {
			continue
		}
		n++
		pf := promptField{Name: f.Name, ID: f.DomID, Label: f.Label, Type: string(f.Type)}
		for _, o := range f.Options {
			pf.Options = append(pf.Options, o.Value)
		}
		line, _ := json.Marshal(pf)
		fmt.Fprintf(&b, "%d. %s\n", n, line)
	}

	b.WriteString("\n# User data\n")
	entries := data.Entries()
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, ok := model.ValueFromAny(entries[k])
		if !ok || v.IsFile() {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", k, v.Text())
	}
	return b.String()
}

// ParseSuggestions extracts the fieldMatches document from a model reply,
// tolerating prose or code fences around it.
func ParseSuggestions(text string) (model.Suggestions, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	var doc struct {
		FieldMatches *model.Suggestions `json:"fieldMatches"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if doc.FieldMatches == nil {
		return nil, fmt.Errorf("%w: no fieldMatches", ErrMalformedResponse)
	}
	out := (*doc.FieldMatches)[:0:0]
	for _, m := range *doc.FieldMatches {
		if strings.TrimSpace(m.FieldName) == "" {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// extractJSON returns the first balanced top-level JSON object in text.
func extractJSON(text string) (string, error) {
	depth := 0
	start := -1
	inStr := false
	esc := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if esc {
			esc = false
			continue
		}
		switch ch {
		case '\\':
			if inStr {
				esc = true
			}
		case '"':
			if depth > 0 {
				inStr = !inStr
			}
		case '{':
			if !inStr {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case '}':
			if !inStr && depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					return text[start : i+1], nil
				}
			}
		}
	}
	return "", fmt.Errorf("json not found")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
