// Package profile loads the user's profile and flattens it into the
// dictionary the resolver consumes.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/polzovatel/form-autofill-agent/internal/model"
)

// Profile is the nested profile record served by the backend.
type Profile struct {
	Name         string                      `json:"name,omitempty"`
	Email        string                      `json:"email,omitempty"`
	FirstName    string                      `json:"firstName,omitempty"`
	MiddleName   string                      `json:"middleName,omitempty"`
	LastName     string                      `json:"lastName,omitempty"`
	PhoneNumber  string                      `json:"phoneNumber,omitempty"`
	Gender       string                      `json:"gender,omitempty"`
	DateOfBirth  string                      `json:"dateOfBirth,omitempty"`
	Occupation   string                      `json:"occupation,omitempty"`
	Address      Address                     `json:"address"`
	CustomFields map[string]model.Value      `json:"customFields,omitempty"`
	FileUploads  map[string]model.FileUpload `json:"fileUploads,omitempty"`
}

type Address struct {
	Line1      string `json:"addressLine1,omitempty"`
	Line2      string `json:"addressLine2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

var knownKeys = map[string]func(*Profile, string){
	"name":         func(p *Profile, v string) { p.Name = v },
	"email":        func(p *Profile, v string) { p.Email = v },
	"firstName":    func(p *Profile, v string) { p.FirstName = v },
	"middleName":   func(p *Profile, v string) { p.MiddleName = v },
	"lastName":     func(p *Profile, v string) { p.LastName = v },
	"phoneNumber":  func(p *Profile, v string) { p.PhoneNumber = v },
	"gender":       func(p *Profile, v string) { p.Gender = v },
	"dateOfBirth":  func(p *Profile, v string) { p.DateOfBirth = v },
	"occupation":   func(p *Profile, v string) { p.Occupation = v },
	"addressLine1": func(p *Profile, v string) { p.Address.Line1 = v },
	"addressLine2": func(p *Profile, v string) { p.Address.Line2 = v },
	"city":         func(p *Profile, v string) { p.Address.City = v },
	"state":        func(p *Profile, v string) { p.Address.State = v },
	"postalCode":   func(p *Profile, v string) { p.Address.PostalCode = v },
	"country":      func(p *Profile, v string) { p.Address.Country = v },
}

// ignored keys never reach the dictionary.
var ignored = map[string]bool{"id": true, "image": true, "success": true}

// UnmarshalJSON accepts both the nested shape and the flat shape returned
// by the extension profile endpoint, where address fields and custom data
// sit beside the identity fields.
func (p *Profile) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Profile{}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		msg := raw[k]
		switch {
		case ignored[k]:
		case k == "address":
			var a map[string]string
			if err := json.Unmarshal(msg, &a); err != nil {
				return fmt.Errorf("profile address: %w", err)
			}
			for ak, av := range a {
				if set, ok := knownKeys[ak]; ok {
					set(p, av)
				}
			}
		case k == "customFields":
			fields, err := customFields(msg)
			if err != nil {
				return err
			}
			for ck, cv := range fields {
				p.setCustom(ck, cv)
			}
		case k == model.FileUploadsKey:
			if err := json.Unmarshal(msg, &p.FileUploads); err != nil {
				return fmt.Errorf("profile file uploads: %w", err)
			}
		default:
			var v any
			if err := json.Unmarshal(msg, &v); err != nil {
				return err
			}
			mv, ok := model.ValueFromAny(v)
			if !ok || mv.IsFile() {
				continue
			}
			if set, known := knownKeys[k]; known {
				if mv.Kind != model.KindList {
					set(p, mv.Text())
				}
			} else {
				p.setCustom(k, mv)
			}
		}
	}
	return nil
}

// customFields accepts an object or a JSON-encoded object string.
func customFields(msg json.RawMessage) (map[string]model.Value, error) {
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		msg = json.RawMessage(s)
	}
	var m map[string]any
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, fmt.Errorf("profile custom fields: %w", err)
	}
	out := make(map[string]model.Value, len(m))
	for k, v := range m {
		if mv, ok := model.ValueFromAny(v); ok && !mv.IsFile() {
			out[k] = mv
		}
	}
	return out, nil
}

func (p *Profile) setCustom(k string, v model.Value) {
	if p.CustomFields == nil {
		p.CustomFields = make(map[string]model.Value)
	}
	p.CustomFields[k] = v
}

// Flatten produces the resolver dictionary. Common fields appear under
// camelCase and snake_case keys plus the short aliases forms tend to use;
// custom fields appear verbatim and as lower_snake keys.
func Flatten(p Profile) model.UserData {
	raw := make(map[string]any)
	put := func(v string, keys ...string) {
		if strings.TrimSpace(v) == "" {
			return
		}
		for _, k := range keys {
			if _, taken := raw[k]; !taken {
				raw[k] = v
			}
		}
	}

	put(p.Email, "email")
	put(p.FirstName, "firstName", "first_name")
	put(p.MiddleName, "middleName", "middle_name")
	put(p.LastName, "lastName", "last_name")
	name := p.Name
	if name == "" {
		name = strings.TrimSpace(p.FirstName + " " + p.LastName)
	}
	put(name, "name", "fullName", "full_name")
	put(p.PhoneNumber, "phoneNumber", "phone_number", "phone")
	put(p.Gender, "gender")
	put(p.DateOfBirth, "dateOfBirth", "date_of_birth", "dob")
	put(p.Occupation, "occupation")
	put(p.Address.Line1, "addressLine1", "address_line1", "address")
	put(p.Address.Line2, "addressLine2", "address_line2")
	put(p.Address.City, "city")
	put(p.Address.State, "state")
	put(p.Address.PostalCode, "postalCode", "postal_code", "zip")
	put(p.Address.Country, "country")

	keys := make([]string, 0, len(p.CustomFields))
	for k := range p.CustomFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := p.CustomFields[k]
		if v.IsEmpty() {
			continue
		}
		raw[k] = v
		if alias := strings.ToLower(strings.Join(strings.Fields(k), "_")); alias != k {
			if _, taken := raw[alias]; !taken {
				raw[alias] = v
			}
		}
	}

	data := model.NewUserData(raw)
	for k, up := range p.FileUploads {
		data.FileUploads[k] = up
	}
	return data
}

// Source supplies the user data for one fill cycle.
type Source interface {
	Load(ctx context.Context) (model.UserData, error)
}

// FileSource reads a profile or a flat dictionary from a JSON file.
type FileSource struct {
	Path string
}

func (s FileSource) Load(ctx context.Context) (model.UserData, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return model.UserData{}, fmt.Errorf("read profile: %w", err)
	}
	return Decode(data)
}

// Decode parses a profile document. A {"profile": {...}} envelope is
// unwrapped; everything else is taken as the profile itself.
func Decode(data []byte) (model.UserData, error) {
	var env struct {
		Profile *Profile `json:"profile"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return model.UserData{}, fmt.Errorf("parse profile: %w", err)
	}
	if env.Profile != nil {
		return Flatten(*env.Profile), nil
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return model.UserData{}, fmt.Errorf("parse profile: %w", err)
	}
	return Flatten(p), nil
}

// Static serves a fixed dictionary.
type Static model.UserData

func (s Static) Load(context.Context) (model.UserData, error) { return model.UserData(s), nil }
