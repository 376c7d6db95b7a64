package featureflags

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"rewardtask-controlplane/pkg/config"
)

func TestUnconfiguredClient(t *testing.T) {
	ff := ProvideFeatureFlag(FeatureParams{Config: &config.Config{}})

	flags, err := ff.Environment(context.Background())
	require.ErrorIs(t, err, ErrNotConfigured)
	require.Nil(t, flags)
}
