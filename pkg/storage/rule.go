package storage

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

const (
	matchExpressionInsertQuery = `
		INSERT INTO match_expressions (script) VALUES (?)
	`

	matchExpressionUpdateQuery = `
		UPDATE match_expressions SET script = ?
		WHERE id = (SELECT match_expression_id FROM rules WHERE id = ?)
	`

	matchExpressionDeleteQuery = `
		DELETE FROM match_expressions WHERE id = ?
	`

	ruleInsertQuery = `
		INSERT INTO rules (
			name, description, match_expression_id, event_specifier,
			archival_period_seconds, initial_delay_seconds, preserved_archives,
			max_age_seconds, max_size_bytes, enabled
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	ruleUpdateQuery = `
		UPDATE rules SET
			description = ?, event_specifier = ?,
			archival_period_seconds = ?, initial_delay_seconds = ?, preserved_archives = ?,
			max_age_seconds = ?, max_size_bytes = ?, enabled = ?
		WHERE id = ?
	`

	ruleDeleteQuery = `
		DELETE FROM rules WHERE id = ?
	`

	ruleSelectExpressionId = `
		SELECT match_expression_id FROM rules WHERE id = ?
	`

	ruleSelect = `
		SELECT
			r.id, r.name, r.description,
			e.script AS match_expression, r.event_specifier,
			r.archival_period_seconds, r.initial_delay_seconds, r.preserved_archives,
			r.max_age_seconds, r.max_size_bytes, r.enabled
		FROM rules r
		JOIN match_expressions e ON e.id = r.match_expression_id
	`

	ruleSelectById       = ruleSelect + ` WHERE r.id = ?`
	ruleSelectByName     = ruleSelect + ` WHERE r.name = ?`
	ruleSelectAll        = ruleSelect + ` ORDER BY r.id`
	ruleSelectAllEnabled = ruleSelect + ` WHERE r.enabled = 1 ORDER BY r.id`
)

// RuleRepository stores rules in two tables: the rule itself and its match
// expression. Both rows are written in one transaction.
type RuleRepository struct {
	db *sqlx.DB
}

func NewRuleRepository(db *sqlx.DB) *RuleRepository {
	return &RuleRepository{
		db: db,
	}
}

func (r *RuleRepository) Create(ctx context.Context, rule domain.Rule) (domain.Rule, error) {
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, matchExpressionInsertQuery, rule.MatchExpression)
		if err != nil {
			return err
		}

		expressionId, err := res.LastInsertId()
		if err != nil {
			return err
		}

		res, err = tx.ExecContext(
			ctx, ruleInsertQuery,
			rule.Name, rule.Description, expressionId, rule.EventSpecifier,
			rule.ArchivalPeriodSeconds, rule.InitialDelaySeconds, rule.PreservedArchives,
			rule.MaxAgeSeconds, rule.MaxSizeBytes, rule.Enabled,
		)
		if isUniqueViolation(err) {
			return domain.ErrRuleExists
		}
		if err != nil {
			return err
		}

		rule.Id, err = res.LastInsertId()

		return err
	})
	if err != nil {
		return domain.Rule{}, err
	}

	return rule, nil
}

// Update writes every mutable field of the rule. The name is immutable.
func (r *RuleRepository) Update(ctx context.Context, rule domain.Rule) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(
			ctx, ruleUpdateQuery,
			rule.Description, rule.EventSpecifier,
			rule.ArchivalPeriodSeconds, rule.InitialDelaySeconds, rule.PreservedArchives,
			rule.MaxAgeSeconds, rule.MaxSizeBytes, rule.Enabled,
			rule.Id,
		)
		if err != nil {
			return err
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrRuleNotFound
		}

		_, err = tx.ExecContext(ctx, matchExpressionUpdateQuery, rule.MatchExpression, rule.Id)

		return err
	})
}

func (r *RuleRepository) Delete(ctx context.Context, rule domain.Rule) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		var expressionId int64

		err := tx.GetContext(ctx, &expressionId, ruleSelectExpressionId, rule.Id)
		if err == sql.ErrNoRows {
			return domain.ErrRuleNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, ruleDeleteQuery, rule.Id); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, matchExpressionDeleteQuery, expressionId)

		return err
	})
}

func (r *RuleRepository) FindById(ctx context.Context, id int64) (domain.Rule, error) {
	return r.findOne(ctx, ruleSelectById, id)
}

func (r *RuleRepository) FindByName(ctx context.Context, name string) (domain.Rule, error) {
	return r.findOne(ctx, ruleSelectByName, name)
}

func (r *RuleRepository) FindAll(ctx context.Context) ([]domain.Rule, error) {
	var rules []domain.Rule

	err := r.db.SelectContext(ctx, &rules, ruleSelectAll)
	if err != nil {
		return nil, err
	}

	return rules, nil
}

func (r *RuleRepository) FindEnabled(ctx context.Context) ([]domain.Rule, error) {
	var rules []domain.Rule

	err := r.db.SelectContext(ctx, &rules, ruleSelectAllEnabled)
	if err != nil {
		return nil, err
	}

	return rules, nil
}

func (r *RuleRepository) findOne(ctx context.Context, query string, arg interface{}) (domain.Rule, error) {
	var rule domain.Rule

	err := r.db.GetContext(ctx, &rule, query, arg)
	if err == sql.ErrNoRows {
		return domain.Rule{}, domain.ErrRuleNotFound
	}
	if err != nil {
		return domain.Rule{}, err
	}

	return rule, nil
}

func (r *RuleRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "Unable to begin transaction")
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	sqliteErr, ok := errors.Cause(err).(sqlite3.Error)
	return ok && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
