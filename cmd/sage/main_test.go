package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/sage"
	"github.com/GoCodeAlone/sage/eventbus"
	"github.com/GoCodeAlone/sage/modules/calendar"
	"github.com/GoCodeAlone/sage/router"
)

func TestDescriptors(t *testing.T) {
	got := descriptors([]string{"calendar", " router ", "", "conversation"})
	assert.Equal(t, []sage.ModuleDescriptor{
		{Name: "calendar"},
		{Name: "router", Required: true},
		{Name: "conversation", Required: true},
	}, got)
}

func TestRegistryCoversDefaultModules(t *testing.T) {
	registry := newRegistry()
	for _, desc := range defaultModules {
		_, ok := registry.Lookup(desc.Name)
		assert.True(t, ok, desc.Name)
	}
	assert.Len(t, registry.Names(), len(defaultModules))
}

func TestRouterPolicy(t *testing.T) {
	policy := &routerPolicy{}
	cmd := eventbus.Command{Intent: eventbus.Intent{Name: "schedule_meeting"}, RawText: "schedule a meeting"}

	required, _, err := policy.RequiresConfirmation(cmd)
	require.NoError(t, err)
	assert.False(t, required, "no router loaded yet")

	registry := sage.NewRegistry()
	registry.MustRegister(router.ModuleName, func() sage.Module {
		rt := router.New()
		policy.set(rt)
		return rt
	})
	registry.MustRegister(calendar.ModuleName, func() sage.Module { return stubModule{} })
	registry.MustRegister("chat", func() sage.Module { return stubModule{name: "chat"} })
	app, err := sage.NewStdApplication(nil, registry, sage.NopLogger())
	require.NoError(t, err)
	ctx := context.Background()
	for _, name := range []string{calendar.ModuleName, "chat", router.ModuleName} {
		_, err := app.Load(ctx, sage.ModuleDescriptor{Name: name, Required: true})
		require.NoError(t, err)
	}

	required, prompt, err := policy.RequiresConfirmation(cmd)
	require.NoError(t, err)
	assert.True(t, required)
	assert.Equal(t, `Should I go ahead with "schedule a meeting"?`, prompt)
}

type stubModule struct{ name string }

func (s stubModule) Name() string {
	if s.name == "" {
		return calendar.ModuleName
	}
	return s.name
}

func (stubModule) Init(context.Context, sage.Application) error { return nil }

func (stubModule) HandleCommand(context.Context, eventbus.Command) (sage.Response, error) {
	return sage.Response{Text: "done"}, nil
}
