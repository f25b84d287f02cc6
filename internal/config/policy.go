package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Policy holds the business rules applied to subscription commands.
type Policy struct {
	MinimumPayment            float64
	PeriodMonths              int
	EnforceMinimumOnSubscribe bool
}

func DefaultPolicy() Policy {
	return Policy{
		MinimumPayment:            10,
		PeriodMonths:              1,
		EnforceMinimumOnSubscribe: false,
	}
}

// PolicyHolder serves the current Policy and swaps it when policy.yml changes.
type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(p Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(p)
	return holder
}

func NewPolicyHolder(log *zap.Logger) (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/coprocessor")
	v.AddConfigPath(".")

	v.SetEnvPrefix("COPROCESSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("policy.minimum_payment", defaults.MinimumPayment)
	v.SetDefault("policy.period_months", defaults.PeriodMonths)
	v.SetDefault("policy.enforce_minimum_on_subscribe", defaults.EnforceMinimumOnSubscribe)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	policy := readPolicy(v)
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(policy)
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("policy")

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated := readPolicy(v)
			if err := validatePolicy(updated); err != nil {
				log.Warn("invalid policy ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("policy reloaded", zap.String("file", e.Name))
		})
	}

	log.Info("policy loaded",
		zap.Float64("minimum_payment", policy.MinimumPayment),
		zap.Int("period_months", policy.PeriodMonths),
		zap.Bool("enforce_minimum_on_subscribe", policy.EnforceMinimumOnSubscribe),
	)
	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	return h.current.Load().(Policy)
}

// readPolicy resolves each key on its own so env overrides and defaults apply
// to keys missing from a partial policy.yml.
func readPolicy(v *viper.Viper) Policy {
	return Policy{
		MinimumPayment:            v.GetFloat64("policy.minimum_payment"),
		PeriodMonths:              v.GetInt("policy.period_months"),
		EnforceMinimumOnSubscribe: v.GetBool("policy.enforce_minimum_on_subscribe"),
	}
}

func validatePolicy(p Policy) error {
	if p.MinimumPayment < 0 {
		return errors.New("policy.minimum_payment cannot be negative")
	}
	if p.PeriodMonths < 1 {
		return errors.New("policy.period_months must be at least 1")
	}
	return nil
}
