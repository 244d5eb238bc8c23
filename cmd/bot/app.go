package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"namelog/internal/driver"
	"namelog/internal/kernel"
	"namelog/modules/help"
	"namelog/modules/namehistory"
	"namelog/modules/pingpong"
	"namelog/pkg/namelog"
)

const (
	envConfigFile = "NAMELOG_CONFIG_FILE"
	envDataFile   = "NAMELOG_DATA_FILE"
	envPageSize   = "NAMELOG_PAGE_SIZE"
	envSortKey    = "NAMELOG_SORT"

	defaultConfigFilePath    = "config/bot.json"
	alternateConfigFilePath  = "bin/config/bot.json"
	defaultHistoryDataFile   = "data/name_history.json"
	defaultHistoryPageSize   = 10
	defaultModuleHookTimeout = 3 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultSubscriptionQueue = 256
	defaultSubscriptionPool  = 2
)

type appConfig struct {
	logLevel slog.Level

	moduleHookTimeout   time.Duration
	shutdownTimeout     time.Duration
	subscriptionBuffer  int
	subscriptionWorkers int

	historyDataFile    string
	historyPageSize    int
	historyDefaultSort namelog.SortKey

	drivers []driver.Definition
}

type fileConfig struct {
	LogLevel string            `json:"log_level"`
	Kernel   fileKernelConfig  `json:"kernel"`
	History  fileHistoryConfig `json:"history"`
	Drivers  []fileDriverEntry `json:"drivers"`
}

type fileKernelConfig struct {
	ModuleHookTimeout   string `json:"module_hook_timeout"`
	ShutdownTimeout     string `json:"shutdown_timeout"`
	SubscriptionBuffer  *int   `json:"subscription_buffer"`
	SubscriptionWorkers *int   `json:"subscription_workers"`
}

type fileHistoryConfig struct {
	DataFile    string `json:"data_file"`
	PageSize    *int   `json:"page_size"`
	DefaultSort string `json:"default_sort"`
}

type fileDriverEntry struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Enabled *bool           `json:"enabled"`
	Config  json.RawMessage `json:"config"`
}

func run() error {
	// Missing .env is fine; the config file alone can carry everything.
	_ = godotenv.Load()

	registry, err := driver.NewBuiltinRegistry()
	if err != nil {
		return fmt.Errorf("new builtin driver registry: %w", err)
	}

	cfg, err := loadConfig(registry)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel}))
	kernelRuntime := buildKernelRuntime(logger, cfg)

	drivers, dispatcher, err := buildDriverRuntime(context.Background(), logger, cfg, registry)
	if err != nil {
		return err
	}

	if err := registerRuntimeDrivers(kernelRuntime, drivers); err != nil {
		return err
	}
	if err := registerRuntimeServices(kernelRuntime, logger, dispatcher, cfg); err != nil {
		return err
	}
	if err := registerRuntimeModules(context.Background(), kernelRuntime, logger, cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := kernelRuntime.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run kernel: %w", err)
	}

	return nil
}

func loadConfig(registry *driver.Registry) (appConfig, error) {
	cfg := defaultAppConfig()
	configFile, err := resolveConfigFilePath()
	if err != nil {
		return appConfig{}, err
	}

	if err := applyConfigFile(&cfg, configFile); err != nil {
		return appConfig{}, err
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return appConfig{}, err
	}
	if err := validateAppConfig(&cfg, registry); err != nil {
		return appConfig{}, fmt.Errorf("validate config file %s: %w", configFile, err)
	}

	return cfg, nil
}

func resolveConfigFilePath() (string, error) {
	if configFile := strings.TrimSpace(os.Getenv(envConfigFile)); configFile != "" {
		return configFile, nil
	}

	candidates := []string{defaultConfigFilePath, alternateConfigFilePath}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config file %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}

	return "", fmt.Errorf(
		"config file not found; create %s or %s, or set %s",
		defaultConfigFilePath,
		alternateConfigFilePath,
		envConfigFile,
	)
}

func defaultAppConfig() appConfig {
	return appConfig{
		logLevel: slog.LevelInfo,

		moduleHookTimeout:   defaultModuleHookTimeout,
		shutdownTimeout:     defaultShutdownTimeout,
		subscriptionBuffer:  defaultSubscriptionQueue,
		subscriptionWorkers: defaultSubscriptionPool,

		historyDataFile:    defaultHistoryDataFile,
		historyPageSize:    defaultHistoryPageSize,
		historyDefaultSort: namelog.SortByDate,

		drivers: make([]driver.Definition, 0),
	}
}

func applyConfigFile(cfg *appConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("apply config file: nil config")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed fileConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}

	if rawTimeout := strings.TrimSpace(parsed.Kernel.ModuleHookTimeout); rawTimeout != "" {
		timeout, err := time.ParseDuration(rawTimeout)
		if err != nil {
			return fmt.Errorf("parse kernel.module_hook_timeout: %w", err)
		}
		if timeout <= 0 {
			return fmt.Errorf("parse kernel.module_hook_timeout: must be > 0")
		}
		cfg.moduleHookTimeout = timeout
	}
	if rawTimeout := strings.TrimSpace(parsed.Kernel.ShutdownTimeout); rawTimeout != "" {
		timeout, err := time.ParseDuration(rawTimeout)
		if err != nil {
			return fmt.Errorf("parse kernel.shutdown_timeout: %w", err)
		}
		if timeout <= 0 {
			return fmt.Errorf("parse kernel.shutdown_timeout: must be > 0")
		}
		cfg.shutdownTimeout = timeout
	}
	if parsed.Kernel.SubscriptionBuffer != nil {
		if *parsed.Kernel.SubscriptionBuffer <= 0 {
			return fmt.Errorf("parse kernel.subscription_buffer: must be > 0")
		}
		cfg.subscriptionBuffer = *parsed.Kernel.SubscriptionBuffer
	}
	if parsed.Kernel.SubscriptionWorkers != nil {
		if *parsed.Kernel.SubscriptionWorkers <= 0 {
			return fmt.Errorf("parse kernel.subscription_workers: must be > 0")
		}
		cfg.subscriptionWorkers = *parsed.Kernel.SubscriptionWorkers
	}

	if dataFile := strings.TrimSpace(parsed.History.DataFile); dataFile != "" {
		cfg.historyDataFile = dataFile
	}
	if parsed.History.PageSize != nil {
		if *parsed.History.PageSize <= 0 {
			return fmt.Errorf("parse history.page_size: must be > 0")
		}
		cfg.historyPageSize = *parsed.History.PageSize
	}
	if rawSort := strings.TrimSpace(parsed.History.DefaultSort); rawSort != "" {
		key := namelog.SortKey(strings.ToLower(rawSort))
		if err := key.Validate(); err != nil {
			return fmt.Errorf("parse history.default_sort: %w", err)
		}
		cfg.historyDefaultSort = key
	}

	cfg.drivers = make([]driver.Definition, 0, len(parsed.Drivers))
	for index, entry := range parsed.Drivers {
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		cfg.drivers = append(cfg.drivers, driver.Definition{
			Name:    strings.TrimSpace(entry.Name),
			Type:    strings.TrimSpace(entry.Type),
			Enabled: enabled,
			Config:  append([]byte(nil), entry.Config...),
		})
		if len(entry.Config) == 0 {
			return fmt.Errorf("parse drivers[%d].config: required", index)
		}
	}

	return nil
}

// applyEnvOverrides lets deploy-local environment beat the config file for the
// history section.
func applyEnvOverrides(cfg *appConfig) error {
	if cfg == nil {
		return fmt.Errorf("apply env overrides: nil config")
	}

	if dataFile := strings.TrimSpace(os.Getenv(envDataFile)); dataFile != "" {
		cfg.historyDataFile = dataFile
	}
	if rawPageSize := strings.TrimSpace(os.Getenv(envPageSize)); rawPageSize != "" {
		pageSize, err := strconv.Atoi(rawPageSize)
		if err != nil || pageSize <= 0 {
			return fmt.Errorf("parse %s: must be a positive integer, got %q", envPageSize, rawPageSize)
		}
		cfg.historyPageSize = pageSize
	}
	if rawSort := strings.TrimSpace(os.Getenv(envSortKey)); rawSort != "" {
		key := namelog.SortKey(strings.ToLower(rawSort))
		if err := key.Validate(); err != nil {
			return fmt.Errorf("parse %s: %w", envSortKey, err)
		}
		cfg.historyDefaultSort = key
	}

	return nil
}

func validateAppConfig(cfg *appConfig, registry *driver.Registry) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if registry == nil {
		return fmt.Errorf("nil driver registry")
	}

	enabledCount := 0
	seenNames := make(map[string]struct{}, len(cfg.drivers))
	for _, definition := range cfg.drivers {
		if definition.Name == "" {
			return fmt.Errorf("drivers[].name is required")
		}
		if definition.Type == "" {
			return fmt.Errorf("drivers[%s].type is required", definition.Name)
		}
		if _, exists := seenNames[definition.Name]; exists {
			return fmt.Errorf("drivers[%s]: duplicate name", definition.Name)
		}
		seenNames[definition.Name] = struct{}{}
		if !definition.Enabled {
			continue
		}
		if _, err := registry.PlatformForType(definition.Type); err != nil {
			return fmt.Errorf("drivers[%s].type: %w", definition.Name, err)
		}
		enabledCount++
	}
	if enabledCount == 0 {
		return fmt.Errorf("at least one enabled driver is required")
	}

	if strings.TrimSpace(cfg.historyDataFile) == "" {
		return fmt.Errorf("history.data_file is required")
	}

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}

func buildKernelRuntime(logger *slog.Logger, cfg appConfig) *kernel.Kernel {
	return kernel.New(
		kernel.WithLogger(logger),
		kernel.WithModuleHookTimeout(cfg.moduleHookTimeout),
		kernel.WithShutdownTimeout(cfg.shutdownTimeout),
		kernel.WithDefaultSubscriptionBuffer(cfg.subscriptionBuffer),
		kernel.WithDefaultSubscriptionWorkers(cfg.subscriptionWorkers),
	)
}

func buildDriverRuntime(
	ctx context.Context,
	logger *slog.Logger,
	cfg appConfig,
	registry *driver.Registry,
) ([]namelog.Driver, namelog.OutboundDispatcher, error) {
	if registry == nil {
		return nil, nil, fmt.Errorf("build drivers: nil driver registry")
	}

	runtimes, err := registry.BuildEnabled(ctx, cfg.drivers, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build drivers: %w", err)
	}

	drivers := make([]namelog.Driver, 0, len(runtimes))
	for _, runtime := range runtimes {
		drivers = append(drivers, runtime.Driver)
	}

	dispatcher, err := driver.NewPlatformDispatcher(runtimes)
	if err != nil {
		return nil, nil, fmt.Errorf("build outbound dispatcher: %w", err)
	}

	return drivers, dispatcher, nil
}

func registerRuntimeServices(
	kernelRuntime *kernel.Kernel,
	logger *slog.Logger,
	dispatcher namelog.OutboundDispatcher,
	cfg appConfig,
) error {
	if err := kernelRuntime.RegisterService(namelog.ServiceLogger, logger); err != nil {
		return fmt.Errorf("register logger service: %w", err)
	}
	if dispatcher == nil {
		return fmt.Errorf("register outbound dispatcher service: nil dispatcher")
	}
	if err := kernelRuntime.RegisterService(namelog.ServiceOutboundDispatcher, dispatcher); err != nil {
		return fmt.Errorf("register outbound dispatcher service: %w", err)
	}

	persistence, err := namehistory.NewFilePersistence(cfg.historyDataFile)
	if err != nil {
		return fmt.Errorf("build history persistence: %w", err)
	}
	store, err := namehistory.NewStore(persistence, namehistory.WithStoreLogger(logger))
	if err != nil {
		return fmt.Errorf("build history store: %w", err)
	}
	if err := kernelRuntime.RegisterService(namelog.ServiceHistory, store); err != nil {
		return fmt.Errorf("register history service: %w", err)
	}

	return nil
}

func registerRuntimeModules(
	ctx context.Context,
	kernelRuntime *kernel.Kernel,
	logger *slog.Logger,
	cfg appConfig,
) error {
	historyModule := namehistory.New(
		namehistory.WithPageSize(cfg.historyPageSize),
		namehistory.WithDefaultSort(cfg.historyDefaultSort),
		namehistory.WithLogger(logger),
	)
	if err := kernelRuntime.RegisterModule(ctx, historyModule); err != nil {
		return fmt.Errorf("register namehistory module: %w", err)
	}
	pingPongModule := pingpong.New()
	if err := kernelRuntime.RegisterModule(ctx, pingPongModule); err != nil {
		return fmt.Errorf("register pingpong module: %w", err)
	}
	helpModule := help.New()
	if err := kernelRuntime.RegisterModule(ctx, helpModule); err != nil {
		return fmt.Errorf("register help module: %w", err)
	}

	return nil
}

func registerRuntimeDrivers(kernelRuntime *kernel.Kernel, drivers []namelog.Driver) error {
	for _, runtimeDriver := range drivers {
		if err := kernelRuntime.RegisterDriver(runtimeDriver); err != nil {
			return fmt.Errorf("register driver %s: %w", runtimeDriver.Name(), err)
		}
	}

	return nil
}
