package profile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/form-autofill-agent/internal/model"
)

func text(t *testing.T, d model.UserData, key string) string {
	t.Helper()
	v, ok := d.Text(key)
	require.True(t, ok, "missing %q", key)
	return v
}

func TestFlatten_AddsAliases(t *testing.T) {
	p := Profile{
		Email:       "ada@example.com",
		FirstName:   "Ada",
		LastName:    "Lovelace",
		PhoneNumber: "+44 20 0000",
		DateOfBirth: "1815-12-10",
		Address:     Address{Line1: "12 St James's Sq", City: "London", PostalCode: "SW1Y", Country: "UK"},
		CustomFields: map[string]model.Value{
			"LinkedIn Profile": model.String("https://linkedin.com/in/ada"),
		},
	}

	d := Flatten(p)

	for key, want := range map[string]string{
		"firstName":        "Ada",
		"first_name":       "Ada",
		"last_name":        "Lovelace",
		"name":             "Ada Lovelace",
		"phone":            "+44 20 0000",
		"phone_number":     "+44 20 0000",
		"dob":              "1815-12-10",
		"address":          "12 St James's Sq",
		"address_line1":    "12 St James's Sq",
		"zip":              "SW1Y",
		"postal_code":      "SW1Y",
		"LinkedIn Profile": "https://linkedin.com/in/ada",
		"linkedin_profile": "https://linkedin.com/in/ada",
	} {
		assert.Equal(t, want, text(t, d, key), key)
	}
	_, ok := d.Lookup("gender")
	assert.False(t, ok, "empty fields are not published")
}

func TestDecode_FlatEnvelope(t *testing.T) {
	body := `{"success":true,"profile":{"id":"u1","name":"Ada L","email":"a@b.com","firstName":"Ada",
		"city":"London","state":"","dateOfBirth":null,"favouriteColour":"green","age":36}}`

	d, err := Decode([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, "Ada L", text(t, d, "name"))
	assert.Equal(t, "London", text(t, d, "city"))
	assert.Equal(t, "green", text(t, d, "favourite_colour"))
	assert.Equal(t, "36", text(t, d, "age"))
	_, ok := d.Lookup("id")
	assert.False(t, ok)
	_, ok = d.Lookup("state")
	assert.False(t, ok)
}

func TestDecode_FlatDictionaryKeepsListsAndBools(t *testing.T) {
	body := `{"email":"a@b.com","skills":["Go","Rust"],"newsletter":false,"remote":true,
		"customFields":{"Languages":["English","French"]}}`

	d, err := Decode([]byte(body))
	require.NoError(t, err)

	skills, ok := d.Lookup("skills")
	require.True(t, ok)
	assert.Equal(t, model.List("Go", "Rust"), skills)

	newsletter, ok := d.Lookup("newsletter")
	require.True(t, ok)
	assert.Equal(t, model.Bool(false), newsletter)

	remote, ok := d.Lookup("remote")
	require.True(t, ok)
	assert.Equal(t, model.Bool(true), remote)

	langs, ok := d.Lookup("languages")
	require.True(t, ok)
	assert.Equal(t, model.List("English", "French"), langs)
}

func TestDecode_NestedWithUploads(t *testing.T) {
	body := `{"firstName":"Ada","address":{"city":"London"},
		"customFields":"{\"Team\":\"Engines\"}",
		"fileUploads":{"resume":{"fileId":"doc123","reason":"best match"}}}`

	d, err := Decode([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, "London", text(t, d, "city"))
	assert.Equal(t, "Engines", text(t, d, "team"))
	up, ok := d.Upload("resume")
	require.True(t, ok)
	assert.Equal(t, "doc123", up.FileID)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"email":"a@b.com"}`), 0o600))

	d, err := FileSource{Path: path}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", text(t, d, "email"))

	_, err = FileSource{Path: filepath.Join(t.TempDir(), "missing.json")}.Load(context.Background())
	assert.Error(t, err)
}

func TestClient_Load(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "/api/extension/profile", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"profile":{"email":"a@b.com","postalCode":"12345"}}`))
	}))
	defer srv.Close()

	d, err := NewClient(srv.URL, "good").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "12345", text(t, d, "zip"))

	_, err = NewClient(srv.URL, "bad").Load(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}
