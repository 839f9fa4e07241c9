package access

import "strings"

// Caller is the immutable identity attached to a request by the transport.
// Audit entries take their user id and role from here, never from request input.
type Caller struct {
	UserID string
	Role   Role
}

// Authenticated reports whether the caller was resolved to a known user and role.
func (c Caller) Authenticated() bool {
	return strings.TrimSpace(c.UserID) != "" && c.Role.Name != ""
}

// SystemCaller is the identity used by operator tooling such as the ingest and salt CLIs.
func SystemCaller(name string) Caller {
	if strings.TrimSpace(name) == "" {
		name = "system"
	}
	role, _ := NewRole(RoleSystem, WildcardScope)
	return Caller{UserID: name, Role: role}
}
