package storkit

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module is the Fx module that provides a Manager and ties provider
// lifecycle to the application lifecycle. Provider configs are bootstrapped
// from a map of id to Config supplied by the consumer (for example via
// ConfigsFromViper).
var Module = fx.Module("storkit",
	fx.Provide(newFxManager),
	fx.Invoke(registerLifecycle),
)

// ManagerParams collects the optional dependencies the fx-provided Manager
// picks up from the application graph.
type ManagerParams struct {
	fx.In

	Logger  *zap.Logger `optional:"true"`
	Options []Option    `optional:"true"`
}

func newFxManager(p ManagerParams) *Manager {
	opts := p.Options
	if p.Logger != nil {
		opts = append(opts, WithLogger(WrapZapLogger(p.Logger)))
	}
	return NewManager(opts...)
}

// LifecycleParams wires the manager and the optional bootstrap provider set
// into fx lifecycle hooks.
type LifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Manager   *Manager
	Configs   map[string]Config `optional:"true"`
}

func registerLifecycle(params LifecycleParams) {
	mgr := params.Manager
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for id, cfg := range params.Configs {
				if err := mgr.AddProvider(ctx, id, cfg); err != nil {
					return err
				}
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return mgr.Close(ctx)
		},
	})
}
