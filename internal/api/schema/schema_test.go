package schema

import (
	"errors"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmhub/crm-api/internal/core/domain"
)

func fieldErrors(t *testing.T, err error) map[string][]string {
	t.Helper()
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	return ve.Fields
}

func TestDecode_IgnoresReadOnlyAndUnknown(t *testing.T) {
	values, err := Customer.Decode(map[string]any{
		"name":        "John",
		"surname":     "Doe",
		"created_by":  "someone-else",
		"created_at":  "1999-01-01T00:00:00Z",
		"id":          "forged",
		"favourite":   "blue",
		"modified_by": nil,
	}, false)
	require.NoError(t, err)

	assert.Equal(t, "John", *values.Text("name"))
	assert.Equal(t, "Doe", *values.Text("surname"))
	for _, key := range []string{"created_by", "created_at", "id", "favourite", "modified_by"} {
		_, ok := values[key]
		assert.False(t, ok, "%s should be dropped", key)
	}
}

func TestDecode_RequiredOnlyWhenFull(t *testing.T) {
	_, err := Customer.Decode(map[string]any{"name": "John"}, false)
	fields := fieldErrors(t, err)
	assert.Contains(t, fields, "surname")

	values, err := Customer.Decode(map[string]any{"name": "John"}, true)
	require.NoError(t, err)
	assert.Nil(t, values.Text("surname"))
}

func TestDecode_StringRules(t *testing.T) {
	_, err := Customer.Decode(map[string]any{
		"name":    "",
		"surname": strings.Repeat("a", 101),
	}, false)
	fields := fieldErrors(t, err)
	assert.Equal(t, []string{"this field may not be blank"}, fields["name"])
	assert.Equal(t, []string{"ensure this field has no more than 100 characters"}, fields["surname"])
}

func TestDecode_BoolFromJSONAndForm(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  bool
		ok    bool
	}{
		{"json true", true, true, true},
		{"json false", false, false, true},
		{"form True", FormValue("True"), true, true},
		{"form 0", FormValue("0"), false, true},
		{"form on", FormValue("on"), true, true},
		{"form garbage", FormValue("not a boolean"), false, false},
		{"json string", "not a boolean", false, false},
		{"json string true", "true", false, false},
		{"json number", float64(1), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := AdminStatus.Decode(map[string]any{"is_admin": tt.input}, false)
			if !tt.ok {
				fields := fieldErrors(t, err)
				assert.Equal(t, []string{"must be a valid boolean"}, fields["is_admin"])
				return
			}
			require.NoError(t, err)
			require.NotNil(t, values.Bool("is_admin"))
			assert.Equal(t, tt.want, *values.Bool("is_admin"))
		})
	}
}

func TestDecode_AdminStatusMissing(t *testing.T) {
	_, err := AdminStatus.Decode(map[string]any{}, false)
	fields := fieldErrors(t, err)
	assert.Equal(t, []string{"this field is required"}, fields["is_admin"])
}

func TestDecode_NullHandling(t *testing.T) {
	values, err := Customer.Decode(map[string]any{"photo": nil}, true)
	require.NoError(t, err)
	assert.True(t, values.Cleared("photo"))

	_, err = Customer.Decode(map[string]any{"name": nil}, true)
	fields := fieldErrors(t, err)
	assert.Equal(t, []string{"this field may not be null"}, fields["name"])
}

func TestDecode_File(t *testing.T) {
	fh := &multipart.FileHeader{Filename: "a.png"}

	values, err := Customer.Decode(map[string]any{"photo": fh}, true)
	require.NoError(t, err)
	assert.Same(t, fh, values.File("photo"))

	values, err = Customer.Decode(map[string]any{"photo": FormValue("")}, true)
	require.NoError(t, err)
	assert.True(t, values.Cleared("photo"))

	_, err = Customer.Decode(map[string]any{"photo": "data:image/png;base64,AAAA"}, true)
	fields := fieldErrors(t, err)
	assert.Contains(t, fields, "photo")
}

func TestDecode_UserEmail(t *testing.T) {
	_, err := User.Decode(map[string]any{"username": "amy", "email": "nope"}, false)
	fields := fieldErrors(t, err)
	assert.Equal(t, []string{"enter a valid email address"}, fields["email"])

	values, err := User.Decode(map[string]any{"username": "amy", "email": ""}, false)
	require.NoError(t, err)
	assert.Equal(t, "", *values.Text("email"))
}

func TestSchema_Writable(t *testing.T) {
	assert.Equal(t, []string{"name", "surname", "photo"}, Customer.Writable())
	assert.Equal(t, []string{"username", "email", "is_admin", "is_active", "password"}, User.Writable())

	assert.Equal(t, []string{"username", "email"}, Profile.Writable())
}

func TestSchema_ReadableSkipsWriteOnly(t *testing.T) {
	assert.NotContains(t, User.Readable(), "password")
	assert.Equal(t, []string{
		"id", "username", "email", "is_admin", "is_active", "is_superuser", "date_joined", "last_login",
	}, User.Readable())
	assert.Equal(t, User.Readable(), Profile.Readable())
}

func TestSchema_Metadata(t *testing.T) {
	meta := User.Metadata()

	assert.Equal(t, "user", meta.Name)
	assert.Equal(t, User.Readable(), meta.Renders)
	assert.Equal(t, User.Writable(), meta.Accepts)
	assert.Equal(t, FieldInfo{Type: "string", WriteOnly: true}, meta.Fields["password"])
	assert.Equal(t, FieldInfo{Type: "string", Required: true}, meta.Fields["username"])
	assert.Equal(t, FieldInfo{Type: "datetime", ReadOnly: true}, meta.Fields["date_joined"])

	photo := Customer.Metadata().Fields["photo"]
	assert.Equal(t, "file", photo.Type)
	assert.True(t, photo.Nullable)
}

func TestDecode_ProfileIgnoresFlags(t *testing.T) {
	values, err := Profile.Decode(map[string]any{
		"username": "amy", "is_admin": true, "is_superuser": true, "is_active": false,
	}, true)
	require.NoError(t, err)
	assert.Equal(t, "amy", *values.Text("username"))
	assert.Nil(t, values.Bool("is_admin"))
	assert.Nil(t, values.Bool("is_active"))
}
