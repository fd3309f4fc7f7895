package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/crmhub/crm-api/internal/api/schema"
	"github.com/crmhub/crm-api/internal/core/domain"
)

// topLevelKeys returns the keys of a JSON object in document order.
func topLevelKeys(t *testing.T, raw []byte) []string {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		t.Fatalf("expected a JSON object, got %v %v", tok, err)
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		keys = append(keys, tok.(string))
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			t.Fatalf("value: %v", err)
		}
	}
	return keys
}

func TestResponses_FollowSchemaOrder(t *testing.T) {
	now := time.Now()
	creator := "u1"

	raw, _ := json.Marshal(toUserResponse(&domain.User{ID: "u1", Username: "alice", PasswordHash: "hash", DateJoined: now}))
	if got := topLevelKeys(t, raw); !reflect.DeepEqual(got, schema.User.Readable()) {
		t.Fatalf("user keys %v, want %v", got, schema.User.Readable())
	}
	if got := topLevelKeys(t, raw); !reflect.DeepEqual(got, schema.Profile.Readable()) {
		t.Fatalf("profile keys %v, want %v", got, schema.Profile.Readable())
	}

	c, _ := newContext(http.MethodGet, "/customers/c1", "")
	cust := &domain.Customer{ID: "c1", Name: "Ann", Surname: "Lee", PhotoKey: "customer_photos/a.png", CreatedBy: &creator, CreatedAt: now, UpdatedAt: now}
	raw, _ = json.Marshal(newMediaURLs("/media/").customer(c, cust))
	if got := topLevelKeys(t, raw); !reflect.DeepEqual(got, schema.Customer.Readable()) {
		t.Fatalf("customer keys %v, want %v", got, schema.Customer.Readable())
	}
}

func TestDescribe(t *testing.T) {
	c, rec := newContext(http.MethodOptions, "/users", "")
	if err := Describe(schema.User)(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var meta schema.Metadata
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if meta.Name != "user" || !reflect.DeepEqual(meta.Accepts, schema.User.Writable()) {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if !meta.Fields["password"].WriteOnly || !meta.Fields["is_superuser"].ReadOnly {
		t.Fatalf("unexpected field flags: %+v", meta.Fields)
	}
}
