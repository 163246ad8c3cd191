package storkit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/filecove/storkit"
)

func TestModuleLifecycleBootstrapsProviders(t *testing.T) {
	var mgr *storkit.Manager

	app := fxtest.New(t,
		storkit.Module,
		fx.Provide(func() map[string]storkit.Config {
			return map[string]storkit.Config{
				"main": mockConfig("main"),
			}
		}),
		fx.Populate(&mgr),
	)

	app.RequireStart()
	require.NotNil(t, mgr)

	id, _, ok := mgr.Registry().Default()
	require.True(t, ok, "OnStart should register the bootstrap provider")
	assert.Equal(t, "main", id)

	res, err := mgr.Upload(context.Background(), []byte("via fx"), storkit.UploadOptions{Filename: "fx.txt"}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, res.StorageKey)

	app.RequireStop()

	// OnStop closes every provider; routing is empty afterwards.
	_, err = mgr.Provider("")
	assert.ErrorIs(t, err, storkit.ErrNoProvider)
}

func TestModuleLifecycleWithoutConfigs(t *testing.T) {
	var mgr *storkit.Manager

	app := fxtest.New(t,
		storkit.Module,
		fx.Populate(&mgr),
	)

	app.RequireStart()
	require.NotNil(t, mgr)
	_, err := mgr.Provider("")
	assert.ErrorIs(t, err, storkit.ErrNoProvider)
	app.RequireStop()
}
