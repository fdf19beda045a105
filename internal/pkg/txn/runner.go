// internal/pkg/txn/runner.go
package txn

import (
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Runner executes a unit of work against the database. When transactions are
// enabled the work runs inside a single gorm transaction; otherwise the same
// steps run sequentially against the bare handle and a degraded-mode warning
// is logged, since a crash mid-commit can leave partial writes behind.
//
// Runner is a value type so call sites receive an explicit transaction
// context instead of threading *gorm.DB handles ad hoc.
type Runner struct {
	db            *gorm.DB
	transactional bool
	log           *logrus.Logger
}

// NewRunner creates a Runner. Pass transactional=false only for storage
// deployments that cannot support multi-statement transactions.
func NewRunner(db *gorm.DB, transactional bool, log *logrus.Logger) Runner {
	return Runner{db: db, transactional: transactional, log: log}
}

// DB returns the underlying handle for reads outside a unit of work.
func (r Runner) DB() *gorm.DB { return r.db }

// Transactional reports whether commits are atomic.
func (r Runner) Transactional() bool { return r.transactional }

// Run executes fn atomically when possible. In degraded mode fn receives the
// plain handle: already-applied writes are NOT rolled back on failure.
func (r Runner) Run(fn func(tx *gorm.DB) error) error {
	if r.transactional {
		return r.db.Transaction(fn)
	}

	r.log.Warn("executing multi-step commit without a transaction; a mid-commit failure will leave partial writes")
	return fn(r.db)
}
