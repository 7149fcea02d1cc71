package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindString ValueKind = iota
	KindBool
	KindList
	KindFile
)

// FileRef points at a stored document to be uploaded into a file field.
type FileRef struct {
	FileID string `json:"fileId"`
	Reason string `json:"reason,omitempty"`
}

// Value is a resolved field value.
type Value struct {
	Kind ValueKind
	Str  string
	Bool bool
	List []string
	File FileRef
}

func String(s string) Value { return Value{Kind: KindString, Str: s} }
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func List(items ...string) Value { return Value{Kind: KindList, List: items} }
func File(ref FileRef) Value { return Value{Kind: KindFile, File: ref} }
func FileID(id string) Value { return File(FileRef{FileID: id}) }
func (v Value) IsList() bool { return v.Kind == KindList }
func (v Value) IsFile() bool { return v.Kind == KindFile }
func (v Value) IsEmpty() bool { return v.Kind == KindString && v.Str == "" || v.Kind == KindList && len(v.List) == 0 }

// Text renders the value for a text control.
func (v Value) Text() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindList:
		return strings.Join(v.List, ", ")
	case KindFile:
		return v.File.FileID
	default:
		return v.Str
	}
}

// Items returns the value as a list of candidates.
func (v Value) Items() []string {
	switch v.Kind {
	case KindList:
		return v.List
	case KindFile:
		return nil
	default:
		return []string{v.Text()}
	}
}

// Truthy interprets the value as a checkbox state.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindList:
		return len(v.List) > 0
	case KindFile:
		return false
	}
	checked, _ := v.Checked()
	return checked
}

// Checked reads v as a checkbox state. ok is false unless v is a bool or a
// recognised true/false token.
func (v Value) Checked() (checked, ok bool) {
	switch v.Kind {
	case KindBool:
		return v.Bool, true
	case KindString:
		switch strings.ToLower(strings.TrimSpace(v.Str)) {
		case "true", "yes", "on", "1", "checked", "y":
			return true, true
		case "false", "no", "off", "0", "unchecked", "n":
			return false, true
		}
	}
	return false, false
}

// ValueFromAny converts a decoded JSON value. nil and empty strings are
// reported as absent.
func ValueFromAny(raw any) (Value, bool) {
	switch x := raw.(type) {
	case nil:
		return Value{}, false
	case Value:
		return x, !x.IsEmpty()
	case string:
		if strings.TrimSpace(x) == "" {
			return Value{}, false
		}
		return String(x), true
	case bool:
		return Bool(x), true
	case float64:
		return String(strconv.FormatFloat(x, 'f', -1, 64)), true
	case int:
		return String(strconv.Itoa(x)), true
	case int64:
		return String(strconv.FormatInt(x, 10)), true
	case json.Number:
		return String(x.String()), true
	case []string:
		if len(x) == 0 {
			return Value{}, false
		}
		return List(x...), true
	case []any:
		items := make([]string, 0, len(x))
		for _, it := range x {
			if v, ok := ValueFromAny(it); ok && v.Kind != KindList && v.Kind != KindFile {
				items = append(items, v.Text())
			}
		}
		if len(items) == 0 {
			return Value{}, false
		}
		return List(items...), true
	case map[string]any:
		if id, ok := x["fileId"].(string); ok && id != "" {
			reason, _ := x["reason"].(string)
			return File(FileRef{FileID: id, Reason: reason}), true
		}
	}
	return Value{}, false
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindBool:
		return json.Marshal(v.Bool)
	case KindList:
		return json.Marshal(v.List)
	case KindFile:
		return json.Marshal(v.File)
	default:
		return json.Marshal(v.Str)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*v = String("")
		return nil
	}
	parsed, ok := ValueFromAny(raw)
	if !ok {
		if s, isStr := raw.(string); isStr {
			*v = String(s)
			return nil
		}
		return fmt.Errorf("unsupported value %s", string(data))
	}
	*v = parsed
	return nil
}

// ValueMap maps FieldDescriptor.Key to the value to write. Fields with no
// resolved value are absent.
type ValueMap map[string]Value
