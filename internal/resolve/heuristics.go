package resolve

import (
	"regexp"
	"strings"

	"github.com/polzovatel/form-autofill-agent/internal/model"
)

// heuristic maps a family of field captions to the user-data keys that
// usually hold the answer.
type heuristic struct {
	concept string
	pattern *regexp.Regexp
	keys    []string
	derive  func(model.UserData) (string, bool)
}

// heuristics are tried in order; the first whose pattern matches decides
// the concept for a caption.
var heuristics = []heuristic{
	{
		concept: "first-name",
		pattern: regexp.MustCompile(`(?i)first.*name|fname|given.*name|forename`),
		keys:    []string{"firstName", "first_name", "givenName"},
		derive: func(d model.UserData) (string, bool) {
			parts := nameParts(d)
			if len(parts) == 0 {
				return "", false
			}
			return parts[0], true
		},
	},
	{
		concept: "last-name",
		pattern: regexp.MustCompile(`(?i)last.*name|lname|surname|family.*name`),
		keys:    []string{"lastName", "last_name", "familyName", "surname"},
		derive: func(d model.UserData) (string, bool) {
			parts := nameParts(d)
			if len(parts) < 2 {
				return "", false
			}
			return strings.Join(parts[1:], " "), true
		},
	},
	{
		concept: "full-name",
		pattern: regexp.MustCompile(`(?i)full.*name|\bname\b`),
		keys:    []string{"name", "fullName", "full_name"},
		derive: func(d model.UserData) (string, bool) {
			first, okF := d.Text("firstName")
			last, okL := d.Text("lastName")
			if !okF || !okL {
				return "", false
			}
			return first + " " + last, true
		},
	},
	{
		concept: "email",
		pattern: regexp.MustCompile(`(?i)e-?mail`),
		keys:    []string{"email", "emailAddress", "email_address"},
	},
	{
		concept: "phone",
		pattern: regexp.MustCompile(`(?i)phone|\btel\b|telephone|mobile|\bcell`),
		keys:    []string{"phone", "phoneNumber", "mobile", "phone_number", "tel"},
	},
	{
		concept: "address",
		pattern: regexp.MustCompile(`(?i)address|street`),
		keys:    []string{"address", "addressLine1", "address_line1", "street"},
	},
	{
		concept: "city",
		pattern: regexp.MustCompile(`(?i)city|town`),
		keys:    []string{"city", "town"},
	},
	{
		concept: "state",
		pattern: regexp.MustCompile(`(?i)state|province|region`),
		keys:    []string{"state", "province", "region"},
	},
	{
		concept: "postal-code",
		pattern: regexp.MustCompile(`(?i)zip|postal|postcode`),
		keys:    []string{"zip", "zipCode", "postalCode", "postal_code", "postcode"},
	},
	{
		concept: "country",
		pattern: regexp.MustCompile(`(?i)country`),
		keys:    []string{"country", "countryName"},
	},
}

func nameParts(d model.UserData) []string {
	name, ok := d.Text("name")
	if !ok {
		return nil
	}
	return strings.Fields(name)
}

// humanize turns identifiers like "billing_first-name" or "firstName" into
// words so caption patterns apply to them.
func humanize(s string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range s {
		switch {
		case r == '_' || r == '-' || r == '.' || r == '[' || r == ']':
			b.WriteRune(' ')
			prevLower = false
			continue
		case r >= 'A' && r <= 'Z' && prevLower:
			b.WriteRune(' ')
		}
		b.WriteRune(r)
		prevLower = r >= 'a' && r <= 'z'
	}
	return strings.ToLower(strings.Join(strings.Fields(b.String()), " "))
}

// guess runs the heuristic battery against each subject in turn. The first
// subject whose text matches a concept decides; when the user data has no
// value for that concept the field stays unresolved.
func guess(subjects []string, data model.UserData) (model.Value, string, bool) {
	for _, s := range subjects {
		if strings.TrimSpace(s) == "" {
			continue
		}
		for _, h := range heuristics {
			if !h.pattern.MatchString(s) {
				continue
			}
			if v, ok := data.First(h.keys...); ok {
				return v, h.concept, true
			}
			if h.derive != nil {
				if txt, ok := h.derive(data); ok {
					return model.String(txt), h.concept, true
				}
			}
			return model.Value{}, h.concept, false
		}
	}
	return model.Value{}, "", false
}
