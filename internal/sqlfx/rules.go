package sqlfx

import (
	"github.com/jmoiron/sqlx"

	"github.com/yurykabanov/jfrkeeper/pkg/domain"
	"github.com/yurykabanov/jfrkeeper/pkg/storage"
)

func RulesRepository(db *sqlx.DB) (*storage.RuleRepository, domain.RuleRepository) {
	repo := storage.NewRuleRepository(db)

	return repo, repo
}
