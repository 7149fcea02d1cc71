package model

import (
	"encoding/json"
	"sort"
	"strings"
)

// FileUploadsKey is the reserved user-data key carrying file directives.
const FileUploadsKey = "fileUploads"

// FileUpload tells the resolver to place a stored document into a field.
type FileUpload struct {
	FileID string `json:"fileId"`
	Reason string `json:"reason,omitempty"`
}

// UserData is a flat, case-insensitive dictionary of user values. Lookups
// fall back to a normalized-key index so "first_name" finds "firstName".
type UserData struct {
	raw         map[string]any
	exact       map[string]any
	normalized  map[string]any
	FileUploads map[string]FileUpload
}

// NewUserData indexes raw. The fileUploads entry, when present, is parsed
// into FileUploads and removed from the dictionary.
func NewUserData(raw map[string]any) UserData {
	u := UserData{
		raw:         make(map[string]any, len(raw)),
		exact:       make(map[string]any, len(raw)),
		normalized:  make(map[string]any, len(raw)),
		FileUploads: make(map[string]FileUpload),
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := raw[k]
		if strings.EqualFold(k, FileUploadsKey) {
			u.addUploads(v)
			continue
		}
		u.Set(k, v)
	}
	return u
}

// Set adds or replaces an entry.
func (u *UserData) Set(key string, v any) {
	if u.raw == nil {
		*u = NewUserData(nil)
	}
	u.raw[key] = v
	u.exact[strings.ToLower(key)] = v
	if nk := NormalizeKey(key); nk != "" {
		if _, taken := u.normalized[nk]; !taken {
			u.normalized[nk] = v
		}
	}
}

func (u *UserData) addUploads(v any) {
	switch x := v.(type) {
	case map[string]FileUpload:
		for k, up := range x {
			u.FileUploads[k] = up
		}
	case map[string]any:
		for k, item := range x {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			id, _ := m["fileId"].(string)
			if id == "" {
				continue
			}
			reason, _ := m["reason"].(string)
			u.FileUploads[k] = FileUpload{FileID: id, Reason: reason}
		}
	}
}

// Lookup finds key case-insensitively, then by normalized form. Empty
// values count as missing.
func (u UserData) Lookup(key string) (Value, bool) {
	if key == "" {
		return Value{}, false
	}
	if raw, ok := u.exact[strings.ToLower(key)]; ok {
		if v, ok := ValueFromAny(raw); ok {
			return v, true
		}
	}
	if raw, ok := u.normalized[NormalizeKey(key)]; ok {
		return ValueFromAny(raw)
	}
	return Value{}, false
}

// First returns the value of the first key that resolves.
func (u UserData) First(keys ...string) (Value, bool) {
	for _, k := range keys {
		if v, ok := u.Lookup(k); ok {
			return v, true
		}
	}
	return Value{}, false
}

// Text is Lookup rendered as text.
func (u UserData) Text(key string) (string, bool) {
	v, ok := u.Lookup(key)
	if !ok {
		return "", false
	}
	return v.Text(), true
}

// Upload finds a file directive for the first matching key.
func (u UserData) Upload(keys ...string) (FileUpload, bool) {
	for _, k := range keys {
		if k == "" {
			continue
		}
		if up, ok := u.FileUploads[k]; ok {
			return up, true
		}
		for name, up := range u.FileUploads {
			if strings.EqualFold(name, k) {
				return up, true
			}
		}
	}
	return FileUpload{}, false
}

// Len returns the number of dictionary entries.
func (u UserData) Len() int { return len(u.raw) }

// Entries returns a copy of the dictionary with original key casing.
func (u UserData) Entries() map[string]any {
	out := make(map[string]any, len(u.raw))
	for k, v := range u.raw {
		out[k] = v
	}
	return out
}

// Keys returns the dictionary keys sorted.
func (u UserData) Keys() []string {
	keys := make([]string, 0, len(u.raw))
	for k := range u.raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (u UserData) MarshalJSON() ([]byte, error) {
	out := u.Entries()
	if len(u.FileUploads) > 0 {
		out[FileUploadsKey] = u.FileUploads
	}
	return json.Marshal(out)
}

func (u *UserData) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = NewUserData(raw)
	return nil
}
