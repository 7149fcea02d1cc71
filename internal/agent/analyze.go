package agent

import (
	"context"

	"github.com/polzovatel/form-autofill-agent/internal/model"
)

// FieldSummary is the description of a field handed to callers that pick
// values themselves, such as an AI matcher running elsewhere.
type FieldSummary struct {
	FormID      string            `json:"formId"`
	Key         string            `json:"key"`
	Name        string            `json:"name,omitempty"`
	ID          string            `json:"id,omitempty"`
	Label       string            `json:"label"`
	Type        model.ControlType `json:"type"`
	InputType   string            `json:"inputType,omitempty"`
	Required    bool              `json:"required"`
	Multiple    bool              `json:"multiple,omitempty"`
	Validation  *model.Validation `json:"validation,omitempty"`
	Options     []model.Option    `json:"options,omitempty"`
	AcceptTypes []string          `json:"acceptTypes,omitempty"`
}

type Analysis struct {
	URL    string         `json:"url"`
	Domain string         `json:"domain"`
	Fields []FieldSummary `json:"fields"`
}

// Analyze describes the fields of the form named formID, or of every form
// when it is empty. It detects first when nothing has been detected yet.
func (o *Orchestrator) Analyze(ctx context.Context, formID string) (Analysis, error) {
	snap, err := o.ensureSnapshot(ctx)
	if err != nil {
		return Analysis{}, err
	}
	forms, err := selectForms(snap, formID)
	if err != nil {
		return Analysis{}, err
	}
	out := Analysis{URL: snap.URL, Domain: snap.Domain}
	for _, form := range forms {
		for _, f := range form.Fields {
			if f.Type == model.TypeUnsupported {
				continue
			}
			out.Fields = append(out.Fields, FieldSummary{
				FormID:      form.ID,
				Key:         f.Key(),
				Name:        f.Name,
				ID:          f.DomID,
				Label:       f.Label,
				Type:        f.Type,
				InputType:   f.InputType,
				Required:    f.Required,
				Multiple:    f.Type.MultiValued() && len(f.Options) > 1,
				Validation:  f.Validation,
				Options:     f.Options,
				AcceptTypes: f.AcceptTypes,
			})
		}
	}
	return out, nil
}
