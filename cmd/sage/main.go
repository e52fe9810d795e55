// Command sage runs the voice assistant.
//
// Usage:
//
//	sage [--config sage.yaml] [--env .env] [--log info] [--modules voice,calendar,...]
//
// Configuration comes from the config file, then the dotenv file, then
// SAGE_<SECTION>_<FIELD> environment variables.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/GoCodeAlone/sage"
	"github.com/GoCodeAlone/sage/conversation"
	"github.com/GoCodeAlone/sage/eventbus"
	"github.com/GoCodeAlone/sage/modules/calendar"
	"github.com/GoCodeAlone/sage/modules/chat"
	"github.com/GoCodeAlone/sage/modules/clock"
	"github.com/GoCodeAlone/sage/modules/statusserver"
	"github.com/GoCodeAlone/sage/modules/system"
	"github.com/GoCodeAlone/sage/modules/voice"
	"github.com/GoCodeAlone/sage/nlu"
	"github.com/GoCodeAlone/sage/router"
)

const envPrefix = "SAGE"

var logLevelMap = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// defaultModules is the load order used when the lifecycle section lists none.
// Feature modules come before the router so its Start sees them ready.
var defaultModules = []sage.ModuleDescriptor{
	{Name: voice.ModuleName},
	{Name: calendar.ModuleName},
	{Name: clock.ModuleName},
	{Name: chat.ModuleName, Required: true},
	{Name: system.ModuleName},
	{Name: router.ModuleName, Required: true},
	{Name: conversation.ModuleName, Required: true},
	{Name: statusserver.ModuleName},
}

func main() {
	configPath := cli.StringP("config", "c", "", "Config file (.yaml, .yml or .toml)")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	modules := cli.StringSliceP("modules", "m", nil, "Modules to load, overriding the lifecycle section")
	cli.Parse()

	level, ok := logLevelMap[strings.ToLower(*logLevel)]
	if !ok {
		level = slog.LevelInfo
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))
	slog.SetDefault(logger)

	if err := run(*configPath, *envFile, *modules, logger); err != nil {
		logger.Error("sage failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string, modules []string, logger *slog.Logger) error {
	dotenv := ""
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		dotenv = envFile
	}

	loader, err := sage.NewFileConfigLoader(configPath, dotenv, envPrefix)
	if err != nil {
		return err
	}

	var lifecycle sage.LifecycleConfig
	if err := loader.Load("lifecycle", &lifecycle); err != nil {
		return err
	}

	opts := []sage.Option{
		sage.WithObserver(sage.NewFunctionalObserver("lifecycle-log", func(_ context.Context, e cloudevents.Event) error {
			logger.Debug("Lifecycle event", "type", e.Type(), "id", e.ID())
			return nil
		})),
	}
	switch {
	case len(modules) > 0:
		opts = append(opts, sage.WithModules(descriptors(modules)...))
	case len(lifecycle.Modules) == 0:
		opts = append(opts, sage.WithModules(defaultModules...))
	}
	if configPath != "" {
		opts = append(opts, sage.WithConfigWatcher(sage.NewConfigWatcher(configPath, logger)))
	}

	app, err := sage.NewStdApplication(loader, newRegistry(), logger, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting sage", "config", configPath)
	return app.Run(ctx)
}

// descriptors marks the router and the conversation as required; the rest
// may fail without stopping the assistant.
func descriptors(names []string) []sage.ModuleDescriptor {
	out := make([]sage.ModuleDescriptor, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		required := name == router.ModuleName || name == conversation.ModuleName
		out = append(out, sage.ModuleDescriptor{Name: name, Required: required})
	}
	return out
}

// routerPolicy consults whichever router instance is currently loaded.
type routerPolicy struct {
	mu sync.Mutex
	rt *router.Router
}

func (p *routerPolicy) set(rt *router.Router) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rt = rt
}

func (p *routerPolicy) RequiresConfirmation(cmd eventbus.Command) (bool, string, error) {
	p.mu.Lock()
	rt := p.rt
	p.mu.Unlock()
	if rt == nil {
		return false, "", nil
	}
	return rt.RequiresConfirmation(cmd)
}

func newRegistry() *sage.Registry {
	policy := &routerPolicy{}
	registry := sage.NewRegistry()
	registry.MustRegister(voice.ModuleName, voice.NewModule)
	registry.MustRegister(calendar.ModuleName, calendar.NewModule)
	registry.MustRegister(clock.ModuleName, clock.NewModule)
	registry.MustRegister(chat.ModuleName, chat.NewModule)
	registry.MustRegister(system.ModuleName, system.NewModule)
	registry.MustRegister(router.ModuleName, func() sage.Module {
		rt := router.New()
		policy.set(rt)
		return rt
	})
	registry.MustRegister(conversation.ModuleName, func() sage.Module {
		return conversation.New(
			conversation.WithClassifier(nlu.New()),
			conversation.WithPolicy(policy),
		)
	})
	registry.MustRegister(statusserver.ModuleName, statusserver.NewModule)
	return registry
}

var _ conversation.ConfirmationPolicy = (*routerPolicy)(nil)
