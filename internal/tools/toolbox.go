package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/polzovatel/form-autofill-agent/internal/agent"
	"github.com/polzovatel/form-autofill-agent/internal/model"
)

// Toolbox exposes the agent's operations as named commands with JSON
// inputs, for the control server and scripted callers.
type Toolbox interface {
	Describe() []Tool
	Invoke(ctx context.Context, name string, input map[string]any) (Result, error)
}

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type Result struct {
	Observation string `json:"observation"`
	Data        any    `json:"data,omitempty"`
}

// Autofiller is the part of the orchestrator the commands drive.
type Autofiller interface {
	Detect(ctx context.Context) ([]model.DetectedForm, error)
	Analyze(ctx context.Context, formID string) (agent.Analysis, error)
	CurrentValues(ctx context.Context, formID string) (map[string]model.ValueMap, error)
	Fill(ctx context.Context, req agent.FillRequest) (agent.FillReport, error)
}

// Navigator is implemented by live browsers.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
	SaveState(ctx context.Context, path string) error
}

type standard struct {
	af    Autofiller
	nav   Navigator
	tools []Tool
}

// New builds the command set. nav may be nil for offline documents; the
// navigate and save_state commands are then not offered.
func New(af Autofiller, nav Navigator) Toolbox {
	s := &standard{
		af:  af,
		nav: nav,
		tools: []Tool{
			newTool("detect_forms", "Run a detection pass and list the forms found", schema{}, nil),
			newTool("analyze_form", "Describe the fields of a form", schema{"formId": str("form id, all forms when empty")}, nil),
			newTool("get_form_data", "Read the values currently held by a form's controls", schema{"formId": str("form id, all forms when empty")}, nil),
			newTool("fill_form", "Resolve and write values into a form", schema{
				"formId":   str("form id, all forms when empty"),
				"values":   object("pre-resolved values keyed by field name"),
				"userData": object("user data dictionary to resolve from"),
				"dryRun":   boolean("resolve without writing"),
			}, nil),
		},
	}
	if nav != nil {
		s.tools = append(s.tools,
			newTool("navigate", "Open URL", schema{"url": str("url to open")}, []string{"url"}),
			newTool("save_state", "Save current storage state", schema{"path": str("path to save")}, []string{"path"}),
		)
	}
	return s
}

func (s *standard) Describe() []Tool {
	return append([]Tool(nil), s.tools...)
}

func (s *standard) Invoke(ctx context.Context, name string, input map[string]any) (Result, error) {
	switch name {
	case "detect_forms":
		forms, err := s.af.Detect(ctx)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Observation: fmt.Sprintf("detected %d forms with %d fields", len(forms), model.CountFields(forms)),
			Data:        forms,
		}, nil

	case "analyze_form":
		a, err := s.af.Analyze(ctx, optionalString(input, "formId"))
		if err != nil {
			return Result{}, err
		}
		return Result{Observation: fmt.Sprintf("analyzed %d fields", len(a.Fields)), Data: a}, nil

	case "get_form_data":
		values, err := s.af.CurrentValues(ctx, optionalString(input, "formId"))
		if err != nil {
			return Result{}, err
		}
		n := 0
		for _, v := range values {
			n += len(v)
		}
		return Result{Observation: fmt.Sprintf("read %d filled fields", n), Data: values}, nil

	case "fill_form":
		req, err := fillRequest(input)
		if err != nil {
			return Result{}, err
		}
		report, err := s.af.Fill(ctx, req)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Observation: fmt.Sprintf("fill %s: %d applied, %d skipped", report.Outcome, report.Applied, report.Skipped),
			Data:        report,
		}, nil

	case "navigate":
		if s.nav == nil {
			return Result{}, fmt.Errorf("unknown tool %s", name)
		}
		url, err := requiredString(input, "url")
		if err != nil {
			return Result{}, err
		}
		if err := s.nav.Navigate(ctx, url); err != nil {
			return Result{}, err
		}
		return Result{Observation: fmt.Sprintf("opened %s", url)}, nil

	case "save_state":
		if s.nav == nil {
			return Result{}, fmt.Errorf("unknown tool %s", name)
		}
		path, err := requiredString(input, "path")
		if err != nil {
			return Result{}, err
		}
		if err := s.nav.SaveState(ctx, path); err != nil {
			return Result{}, err
		}
		return Result{Observation: fmt.Sprintf("state saved to %s", path)}, nil
	default:
		return Result{}, fmt.Errorf("unknown tool %s", name)
	}
}

func fillRequest(input map[string]any) (agent.FillRequest, error) {
	req := agent.FillRequest{
		FormID: optionalString(input, "formId"),
		DryRun: optionalBool(input, "dryRun"),
	}
	values, err := optionalObject(input, "values")
	if err != nil {
		return req, err
	}
	if values != nil {
		req.Values = make(model.ValueMap, len(values))
		for k, raw := range values {
			v, ok := model.ValueFromAny(raw)
			if !ok {
				continue
			}
			req.Values[k] = v
		}
	}
	data, err := optionalObject(input, "userData")
	if err != nil {
		return req, err
	}
	if data != nil {
		ud := model.NewUserData(data)
		req.UserData = &ud
	}
	return req, nil
}

// Helpers for schema and extraction.
type schema map[string]any

func newTool(name, desc string, props schema, required []string) Tool {
	return Tool{
		Name:        name,
		Description: desc,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

func str(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }

func boolean(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}

func object(desc string) map[string]any {
	return map[string]any{"type": "object", "description": desc}
}

func requiredString(input map[string]any, key string) (string, error) {
	val, ok := input[key]
	if !ok {
		return "", fmt.Errorf("field %s required", key)
	}
	switch v := val.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return "", fmt.Errorf("field %s empty", key)
		}
		return v, nil
	case json.Number:
		return v.String(), nil
	default:
		return "", fmt.Errorf("field %s must be string", key)
	}
}

func optionalString(input map[string]any, key string) string {
	val, ok := input[key]
	if !ok {
		return ""
	}
	switch v := val.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func optionalBool(input map[string]any, key string) bool {
	val, ok := input[key]
	if !ok {
		return false
	}
	switch v := val.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

func optionalObject(input map[string]any, key string) (map[string]any, error) {
	val, ok := input[key]
	if !ok || val == nil {
		return nil, nil
	}
	m, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("field %s must be object", key)
	}
	return m, nil
}
