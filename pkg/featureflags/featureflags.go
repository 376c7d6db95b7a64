package featureflags

import (
	"context"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"

	"rewardtask-controlplane/pkg/config"
	"rewardtask-controlplane/pkg/errutil"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideFeatureFlag))

var ErrNotConfigured = errutil.New(errutil.StatusServiceUnavailable, "feature flags are not configured")

type Flag struct {
	Enabled bool
	Value   any
}

type FeatureFlag interface {
	// Environment returns the environment flags keyed by feature name.
	Environment(ctx context.Context) (map[string]Flag, error)
}

type featureflag struct {
	client *flagsmith.Client
}

type FeatureParams struct {
	fx.In
	Config *config.Config
}

func ProvideFeatureFlag(p FeatureParams) FeatureFlag {
	if p.Config.Flagsmith.ApiKey == "" {
		return &featureflag{}
	}

	opts := []flagsmith.Option{
		flagsmith.WithBaseURL(p.Config.Flagsmith.Addr),
		flagsmith.WithAnalytics(),
	}

	return &featureflag{
		client: flagsmith.NewClient(p.Config.Flagsmith.ApiKey, opts...),
	}
}

func (s *featureflag) Environment(ctx context.Context) (map[string]Flag, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}

	flags, err := s.client.GetEnvironmentFlags()
	if err != nil {
		return nil, err
	}

	all := flags.AllFlags()
	out := make(map[string]Flag, len(all))
	for _, f := range all {
		out[f.FeatureName] = Flag{Enabled: f.Enabled, Value: f.Value}
	}
	return out, nil
}
