package access

import "strings"

// Permission is a statically enumerated capability token.
type Permission string

// Permission tokens granted to roles.
const (
	PermViewClassData       Permission = "view_class_data"
	PermViewStudentProgress Permission = "view_student_progress"
	PermViewAllData         Permission = "view_all_data"
	PermViewAuditLogs       Permission = "view_audit_logs"
	PermModifySettings      Permission = "modify_settings"
	PermExportData          Permission = "export_data"
	PermManageUsers         Permission = "manage_users"
	PermManagePrivacy       Permission = "manage_privacy"
)

// WildcardScope grants access to every class.
const WildcardScope = "*"

// Role names known to the directory.
const (
	RoleTeacher       = "teacher"
	RoleAdministrator = "administrator"
	RoleDPO           = "dpo"
	RoleSystem        = "system"
)

// Role couples a name with its permissions and the class scopes it may read.
type Role struct {
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
	Scopes      []string     `json:"class_ids"`
}

// Has reports whether the role carries permission.
func (r Role) Has(permission Permission) bool {
	for _, p := range r.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// HasAny reports whether the role carries at least one of permissions.
func (r Role) HasAny(permissions ...Permission) bool {
	for _, p := range permissions {
		if r.Has(p) {
			return true
		}
	}
	return false
}

// AllScopes reports whether the role holds the wildcard scope.
func (r Role) AllScopes() bool {
	for _, scope := range r.Scopes {
		if scope == WildcardScope {
			return true
		}
	}
	return false
}

// Covers reports whether classID is inside the role scope.
func (r Role) Covers(classID string) bool {
	if r.AllScopes() {
		return true
	}
	classID = strings.TrimSpace(classID)
	if classID == "" {
		return false
	}
	for _, scope := range r.Scopes {
		if scope == classID {
			return true
		}
	}
	return false
}

// PermissionStrings renders the permission set for transport.
func (r Role) PermissionStrings() []string {
	out := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		out = append(out, string(p))
	}
	return out
}

// rolePermissions is the fixed role catalogue. It is not editable at runtime.
var rolePermissions = map[string][]Permission{
	RoleTeacher: {
		PermViewClassData,
		PermViewStudentProgress,
		PermModifySettings,
	},
	RoleAdministrator: {
		PermViewAllData,
		PermModifySettings,
		PermExportData,
		PermManageUsers,
		PermViewAuditLogs,
		PermManagePrivacy,
	},
	RoleDPO: {
		PermViewAuditLogs,
		PermExportData,
		PermManagePrivacy,
	},
	RoleSystem: {
		PermManagePrivacy,
	},
}

// NewRole builds a role from the catalogue. ok is false for unknown names.
func NewRole(name string, scopes ...string) (Role, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	perms, ok := rolePermissions[name]
	if !ok {
		return Role{}, false
	}
	return Role{
		Name:        name,
		Permissions: append([]Permission(nil), perms...),
		Scopes:      append([]string(nil), scopes...),
	}, true
}
