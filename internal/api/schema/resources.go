package schema

// Customer is the customer resource. The audit fields are always set by the
// server from the authenticated caller and the store clock.
var Customer = Schema{
	Name: "customer",
	Fields: []Field{
		{Name: "id", Type: String, ReadOnly: true},
		{Name: "name", Type: String, Required: true, Rules: "min=1,max=100"},
		{Name: "surname", Type: String, Required: true, Rules: "min=1,max=100"},
		{Name: "photo", Type: File, Nullable: true},
		{Name: "photo_url", Type: String, ReadOnly: true},
		{Name: "created_by", Type: Reference, ReadOnly: true},
		{Name: "modified_by", Type: Reference, ReadOnly: true},
		{Name: "created_at", Type: Datetime, ReadOnly: true},
		{Name: "updated_at", Type: Datetime, ReadOnly: true},
	},
}

// User is the admin-managed user resource. password is accepted but never
// rendered.
var User = Schema{
	Name: "user",
	Fields: []Field{
		{Name: "id", Type: String, ReadOnly: true},
		{Name: "username", Type: String, Required: true, Rules: "min=1,max=150"},
		{Name: "email", Type: String, Rules: "omitempty,email,max=254"},
		{Name: "is_admin", Type: Bool},
		{Name: "is_active", Type: Bool},
		{Name: "is_superuser", Type: Bool, ReadOnly: true},
		{Name: "password", Type: String, WriteOnly: true},
		{Name: "date_joined", Type: Datetime, ReadOnly: true},
		{Name: "last_login", Type: Datetime, ReadOnly: true},
	},
}

// AdminStatus is the body of the set-admin-status action.
var AdminStatus = Schema{
	Name: "admin_status",
	Fields: []Field{
		{Name: "is_admin", Type: Bool, Required: true},
	},
}

// Profile is the calling user's own account as edited through /auth/user.
// Only username and email are writable.
var Profile = Schema{
	Name: "profile",
	Fields: []Field{
		{Name: "id", Type: String, ReadOnly: true},
		{Name: "username", Type: String, Required: true, Rules: "min=1,max=150"},
		{Name: "email", Type: String, Rules: "omitempty,email,max=254"},
		{Name: "is_admin", Type: Bool, ReadOnly: true},
		{Name: "is_active", Type: Bool, ReadOnly: true},
		{Name: "is_superuser", Type: Bool, ReadOnly: true},
		{Name: "date_joined", Type: Datetime, ReadOnly: true},
		{Name: "last_login", Type: Datetime, ReadOnly: true},
	},
}
