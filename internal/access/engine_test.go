package access

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-tutor-analytics/internal/sentinel"
)

func mustRole(t *testing.T, name string, scopes ...string) Role {
	t.Helper()
	role, ok := NewRole(name, scopes...)
	require.True(t, ok, "unknown role %s", name)
	return role
}

func TestEngineAuthorizeMatrix(t *testing.T) {
	engine := NewEngine()

	teacher := Caller{UserID: "teacher_123", Role: mustRole(t, RoleTeacher, "CLASS_A", "CLASS_B")}
	admin := Caller{UserID: "admin_001", Role: mustRole(t, RoleAdministrator, WildcardScope)}
	dpo := Caller{UserID: "dpo_001", Role: mustRole(t, RoleDPO, WildcardScope)}
	classOnly := Caller{UserID: "viewer", Role: Role{Name: "viewer", Permissions: []Permission{PermViewClassData}, Scopes: []string{"CLASS_A"}}}
	noPerms := Caller{UserID: "guest", Role: Role{Name: "guest"}}

	cases := []struct {
		name     string
		caller   Caller
		req      Request
		wantErr  error
		wantView View
	}{
		{"teacher class aggregate in scope", teacher, Request{Resource: ResourceClassAggregate, Scope: "CLASS_A"}, nil, ViewLimited},
		{"teacher class aggregate out of scope", teacher, Request{Resource: ResourceClassAggregate, Scope: "CLASS_C"}, sentinel.ErrOutOfScope, ""},
		{"teacher student detail", teacher, Request{Resource: ResourceStudentDetail, Scope: "abc"}, nil, ViewLimited},
		{"teacher audit log", teacher, Request{Resource: ResourceAuditLog}, sentinel.ErrForbidden, ""},
		{"teacher writes audit entry", teacher, Request{Resource: ResourceWriteAuditEntry}, nil, ViewFull},
		{"teacher ingest", teacher, Request{Resource: ResourceIngestRecords}, sentinel.ErrForbidden, ""},
		{"admin class aggregate any class", admin, Request{Resource: ResourceClassAggregate, Scope: "CLASS_Z"}, nil, ViewFull},
		{"admin student detail", admin, Request{Resource: ResourceStudentDetail, Scope: "abc"}, nil, ViewFull},
		{"admin audit log", admin, Request{Resource: ResourceAuditLog}, nil, ViewFull},
		{"admin rotate salt", admin, Request{Resource: ResourceRotateSalt}, nil, ViewFull},
		{"dpo audit log", dpo, Request{Resource: ResourceAuditLog}, nil, ViewFull},
		{"dpo class aggregate", dpo, Request{Resource: ResourceClassAggregate}, sentinel.ErrForbidden, ""},
		{"dpo student detail", dpo, Request{Resource: ResourceStudentDetail, Scope: "abc"}, sentinel.ErrForbidden, ""},
		{"class only audit log", classOnly, Request{Resource: ResourceAuditLog}, sentinel.ErrForbidden, ""},
		{"class only student detail", classOnly, Request{Resource: ResourceStudentDetail}, sentinel.ErrForbidden, ""},
		{"class only aggregate", classOnly, Request{Resource: ResourceClassAggregate}, nil, ViewLimited},
		{"no permissions may still write audit", noPerms, Request{Resource: ResourceWriteAuditEntry}, nil, ViewFull},
		{"no permissions aggregate", noPerms, Request{Resource: ResourceClassAggregate}, sentinel.ErrForbidden, ""},
		{"anonymous", Caller{}, Request{Resource: ResourceWriteAuditEntry}, sentinel.ErrUnauthenticated, ""},
		{"unknown resource", admin, Request{Resource: "export_everything"}, sentinel.ErrForbidden, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := engine.Authorize(tc.caller, tc.req)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.Equal(t, Decision{}, decision)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantView, decision.View)
			require.Equal(t, tc.req.Resource, decision.Resource)
		})
	}
}

func TestEngineClassScopes(t *testing.T) {
	engine := NewEngine()

	teacher := Caller{UserID: "teacher_123", Role: mustRole(t, RoleTeacher, "CLASS_A", "CLASS_B")}
	decision, err := engine.Authorize(teacher, Request{Resource: ResourceClassAggregate})
	require.NoError(t, err)
	require.Equal(t, []string{"CLASS_A", "CLASS_B"}, decision.ClassIDs)

	decision, err = engine.Authorize(teacher, Request{Resource: ResourceClassAggregate, Scope: " CLASS_B "})
	require.NoError(t, err)
	require.Equal(t, []string{"CLASS_B"}, decision.ClassIDs)

	admin := Caller{UserID: "admin_001", Role: mustRole(t, RoleAdministrator, WildcardScope)}
	decision, err = engine.Authorize(admin, Request{Resource: ResourceClassAggregate})
	require.NoError(t, err)
	require.Nil(t, decision.ClassIDs)

	unscoped := Caller{UserID: "teacher_999", Role: mustRole(t, RoleTeacher)}
	_, err = engine.Authorize(unscoped, Request{Resource: ResourceClassAggregate})
	require.ErrorIs(t, err, sentinel.ErrOutOfScope)
}

func TestEngineStudentScopeIsOptIn(t *testing.T) {
	teacher := Caller{UserID: "teacher_456", Role: mustRole(t, RoleTeacher, "CLASS_C")}
	admin := Caller{UserID: "admin_001", Role: mustRole(t, RoleAdministrator, WildcardScope)}

	relaxed, err := NewEngine().Authorize(teacher, Request{Resource: ResourceStudentDetail, Scope: "p"})
	require.NoError(t, err)
	require.False(t, relaxed.CheckStudentScope)

	strict := NewEngine(WithStrictStudentScope(true))
	decision, err := strict.Authorize(teacher, Request{Resource: ResourceStudentDetail, Scope: "p"})
	require.NoError(t, err)
	require.True(t, decision.CheckStudentScope)
	require.True(t, decision.Permits("CLASS_A", "CLASS_C"))
	require.False(t, decision.Permits("CLASS_A"))
	require.False(t, decision.Permits())

	adminDecision, err := strict.Authorize(admin, Request{Resource: ResourceStudentDetail, Scope: "p"})
	require.NoError(t, err)
	require.False(t, adminDecision.CheckStudentScope)
	require.True(t, adminDecision.Permits("ANY"))
}

func TestDecisionAudited(t *testing.T) {
	engine := NewEngine()
	admin := Caller{UserID: "admin_001", Role: mustRole(t, RoleAdministrator, WildcardScope)}

	expect := map[Resource]bool{
		ResourceClassAggregate:  false,
		ResourceStudentDetail:   true,
		ResourceAuditLog:        true,
		ResourceWriteAuditEntry: true,
		ResourceIngestRecords:   true,
		ResourceRotateSalt:      true,
	}
	for resource, want := range expect {
		decision, err := engine.Authorize(admin, Request{Resource: resource})
		require.NoError(t, err)
		require.Equal(t, want, decision.Audited(), resource)
	}
}

func TestDirectoryResolve(t *testing.T) {
	dir := DefaultDirectory()
	require.Equal(t, 4, dir.Len())

	caller, err := dir.Resolve("teacher_123")
	require.NoError(t, err)
	require.Equal(t, RoleTeacher, caller.Role.Name)
	require.Equal(t, []string{"CLASS_A", "CLASS_B"}, caller.Role.Scopes)
	require.True(t, caller.Role.Has(PermViewStudentProgress))
	require.False(t, caller.Role.Has(PermViewAllData))

	dpo, err := dir.Resolve("dpo_001")
	require.NoError(t, err)
	require.True(t, dpo.Role.AllScopes())
	require.Equal(t, []string{"view_audit_logs", "export_data", "manage_privacy"}, dpo.Role.PermissionStrings())

	_, err = dir.Resolve("mallory")
	require.ErrorIs(t, err, sentinel.ErrUnauthenticated)

	_, err = NewDirectory(Account{UserID: "x", RoleName: "superuser"})
	require.Error(t, err)
}

func TestSystemCaller(t *testing.T) {
	caller := SystemCaller("")
	require.True(t, caller.Authenticated())
	require.Equal(t, "system", caller.UserID)
	require.True(t, caller.Role.Has(PermManagePrivacy))
	require.False(t, caller.Role.Has(PermViewAllData))
}
