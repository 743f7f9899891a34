package domainfx

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/yurykabanov/jfrkeeper/pkg/domain"
	"github.com/yurykabanov/jfrkeeper/pkg/rules"
)

const ConfigRules = "rules"

type SeedRuleList []domain.Rule

// LoadRules reads rules to be created at start-up. Rules are enabled unless
// the config says otherwise.
func LoadRules(v *viper.Viper) (SeedRuleList, error) {
	var raw []map[string]interface{}

	err := v.UnmarshalKey(ConfigRules, &raw)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to unmarshal rules")
	}

	sub := viper.New()
	result := make(SeedRuleList, 0, len(raw))

	for _, r := range raw {
		rule := domain.Rule{Enabled: true, MaxAgeSeconds: -1, MaxSizeBytes: -1}

		sub.Set("rule", r)
		if err := sub.UnmarshalKey("rule", &rule); err != nil {
			return nil, errors.Wrap(err, "Unable to unmarshal rule")
		}

		result = append(result, rule)
	}

	return result, nil
}

func SeedRules(lc fx.Lifecycle, logger *logrus.Logger, registry *rules.Registry, seed SeedRuleList) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if len(seed) == 0 {
				return nil
			}

			logger.WithField("rules", len(seed)).Info("Seeding configured rules")

			return registry.Seed(ctx, seed)
		},
	})
}
