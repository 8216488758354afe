package config

import (
	"context"
	"strings"

	"github.com/DhruviKhanpara/LMS-sub001/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActiveGuardPlugin scopes queries/updates/deletes to is_active = true rows
// when the model has an is_active column, so soft-deleted rows stay invisible.
//
// NOTE:
// - This does NOT apply to Raw SQL queries. Those must filter is_active manually.
// - Staff tooling bypasses it explicitly via appctx.ContextKeyIncludeInactive.
type ActiveGuardPlugin struct{}

func NewActiveGuardPlugin() *ActiveGuardPlugin { return &ActiveGuardPlugin{} }

func (p *ActiveGuardPlugin) Name() string { return "active_guard" }

func (p *ActiveGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("active_guard:query", activeGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("active_guard:row", activeGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("active_guard:update", activeGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("active_guard:delete", activeGuardCallback); err != nil {
		return err
	}
	return nil
}

func activeGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil || db.Statement.Schema == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx != nil && shouldIncludeInactive(ctx) {
		return
	}
	if db.Statement.Schema.LookUpField("is_active") == nil {
		return
	}
	if whereHasIsActive(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "is_active"},
				Value:  true,
			},
		},
	})
}

func shouldIncludeInactive(ctx context.Context) bool {
	v, ok := ctx.Value(appctx.ContextKeyIncludeInactive).(bool)
	return ok && v
}

func whereHasIsActive(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasIsActive(e) {
			return true
		}
	}
	return false
}

func exprHasIsActive(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsActive(v.Column)
	case clause.Neq:
		return colIsActive(v.Column)
	case clause.IN:
		return colIsActive(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasIsActive(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasIsActive(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		return strings.Contains(strings.ToLower(v.SQL), "is_active")
	default:
		return false
	}
}

func colIsActive(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "is_active")
	case clause.Column:
		return strings.EqualFold(c.Name, "is_active")
	default:
		return false
	}
}
