// Package policy decides what each principal kind may do.
//
// Two layers exist. The route table is a coarse path filter used by the
// request gate. The permission matrix answers resource/action questions;
// rules scoped "own" only allow when the caller owns the row, which handlers
// establish from the row itself.
package policy

import (
	_ "embed"
	"fmt"
	"strings"

	"school-portal/internal/models"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

const (
	ScopeAny = "any"
	ScopeOwn = "own"
)

type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds the enforcer from the compiled-in model and matrix.
func NewEnforcer() (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	if err := loadEmbeddedPolicy(enforcer, embeddedPolicy); err != nil {
		return nil, err
	}

	return &Enforcer{enforcer: enforcer}, nil
}

func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if parts[0] != "p" || len(parts) != 5 {
			return fmt.Errorf("malformed policy line %q", line)
		}
		if parts[4] != ScopeAny && parts[4] != ScopeOwn {
			return fmt.Errorf("unknown scope in policy line %q", line)
		}

		if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3], parts[4]); err != nil {
			return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
		}
	}
	return nil
}

// HasPermission reports whether the role holds the action on the resource at all,
// ignoring ownership.
func (e *Enforcer) HasPermission(role models.PrincipalKind, resource models.Resource, action models.Action) bool {
	return e.enforce(role, resource, action, true)
}

// CanPerform is the precise check: "own" rules require owned to be true.
func (e *Enforcer) CanPerform(role models.PrincipalKind, resource models.Resource, action models.Action, owned bool) bool {
	return e.enforce(role, resource, action, owned)
}

func (e *Enforcer) enforce(role models.PrincipalKind, resource models.Resource, action models.Action, owned bool) bool {
	own := "no"
	if owned {
		own = "yes"
	}
	allowed, err := e.enforcer.Enforce(string(role), string(resource), string(action), own)
	if err != nil {
		return false
	}
	return allowed
}

// Rule is one row of the permission matrix.
type Rule struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Scope    string `json:"scope"`
}

// RulesFor lists the matrix rows granted to role, in declaration order.
func (e *Enforcer) RulesFor(role models.PrincipalKind) ([]Rule, error) {
	rows, err := e.enforcer.GetFilteredPolicy(0, string(role))
	if err != nil {
		return nil, fmt.Errorf("failed to read policy for %s: %w", role, err)
	}

	rules := make([]Rule, 0, len(rows))
	for _, row := range rows {
		if len(row) != 4 {
			continue
		}
		rules = append(rules, Rule{Resource: row[1], Action: row[2], Scope: row[3]})
	}
	return rules, nil
}
