package access

import (
	"fmt"
	"strings"

	"github.com/noah-isme/gema-tutor-analytics/internal/sentinel"
)

// Account binds a user id to a catalogue role and its class scopes.
type Account struct {
	UserID   string
	RoleName string
	ClassIDs []string
}

// Directory resolves authenticated user ids into callers.
type Directory struct {
	accounts map[string]Account
}

// NewDirectory builds a directory from accounts. Accounts naming unknown roles are rejected.
func NewDirectory(accounts ...Account) (*Directory, error) {
	dir := &Directory{accounts: make(map[string]Account, len(accounts))}
	for _, account := range accounts {
		id := strings.TrimSpace(account.UserID)
		if id == "" {
			return nil, fmt.Errorf("account with empty user id")
		}
		if _, ok := NewRole(account.RoleName); !ok {
			return nil, fmt.Errorf("account %s: unknown role %q", id, account.RoleName)
		}
		account.UserID = id
		dir.accounts[id] = account
	}
	return dir, nil
}

// DefaultDirectory returns the statically configured staff accounts.
func DefaultDirectory() *Directory {
	dir, err := NewDirectory(
		Account{UserID: "teacher_123", RoleName: RoleTeacher, ClassIDs: []string{"CLASS_A", "CLASS_B"}},
		Account{UserID: "teacher_456", RoleName: RoleTeacher, ClassIDs: []string{"CLASS_C"}},
		Account{UserID: "admin_001", RoleName: RoleAdministrator, ClassIDs: []string{WildcardScope}},
		Account{UserID: "dpo_001", RoleName: RoleDPO, ClassIDs: []string{WildcardScope}},
	)
	if err != nil {
		panic(err)
	}
	return dir
}

// Resolve returns the caller for userID or ErrUnauthenticated when the user is unknown.
func (d *Directory) Resolve(userID string) (Caller, error) {
	account, ok := d.accounts[strings.TrimSpace(userID)]
	if !ok {
		return Caller{}, sentinel.ErrUnauthenticated
	}
	role, _ := NewRole(account.RoleName, account.ClassIDs...)
	return Caller{UserID: account.UserID, Role: role}, nil
}

// Len returns the number of accounts.
func (d *Directory) Len() int {
	return len(d.accounts)
}
