package authz

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScopeColumns 过滤所用列名，Table 可为空
type ScopeColumns struct {
	Table string
	Dept  string
	Owner string
}

// DefaultScopeColumns 适用于带 dept_id、create_user 的业务表
var DefaultScopeColumns = ScopeColumns{Dept: "dept_id", Owner: "create_user"}

// Apply 用法：db.Scopes(s.Apply(cols)).Find(&rows)
func (s Scope) Apply(cols ScopeColumns) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch s.Kind {
		case ScopeUnrestricted:
			return db
		case ScopeDeptIDs:
			if len(s.DeptIDs) == 0 {
				return db.Where("1 = 0")
			}
			values := make([]interface{}, len(s.DeptIDs))
			for i, id := range s.DeptIDs {
				values[i] = id
			}
			return db.Where(clause.IN{Column: clause.Column{Table: cols.Table, Name: cols.Dept}, Values: values})
		default:
			return db.Where(clause.Eq{Column: clause.Column{Table: cols.Table, Name: cols.Owner}, Value: s.OwnerID})
		}
	}
}
