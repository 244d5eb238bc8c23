package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"namelog/pkg/namelog"
)

// Definition describes one configured driver entry.
type Definition struct {
	// Name is the stable configured driver instance identifier.
	Name string
	// Type identifies which builder should construct this runtime.
	Type string
	// Enabled controls whether this definition is active.
	Enabled bool
	// Config stores driver-type-specific JSON payload.
	Config []byte
}

// Runtime contains one fully built driver runtime instance.
type Runtime struct {
	// Platform identifies the neutral platform served by Driver.
	Platform namelog.Platform
	// Driver is the inbound runtime implementation registered with kernel.
	Driver namelog.Driver
	// Dispatcher adapts outbound operations for this runtime when supported.
	Dispatcher namelog.OutboundDispatcher
}

// BuilderFunc builds one runtime from one configured driver definition.
type BuilderFunc func(ctx context.Context, definition Definition, logger *slog.Logger) (Runtime, error)

// Descriptor binds one driver type token to platform metadata and a runtime builder.
type Descriptor struct {
	// Type is the driver type token from configuration (for example "telegram").
	Type string
	// Platform is the neutral platform for this driver type.
	Platform namelog.Platform
	// Builder constructs one runtime instance for this driver type.
	Builder BuilderFunc
}

type registryEntry struct {
	platform namelog.Platform
	builder  BuilderFunc
}

// Registry maps driver types to runtime builders and type-level platform metadata.
type Registry struct {
	entries map[string]registryEntry
	types   []string
}

// NewRegistry creates one immutable driver registry from descriptors.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	entries := make(map[string]registryEntry, len(descriptors))
	types := make([]string, 0, len(descriptors))
	for _, descriptor := range descriptors {
		if descriptor.Type == "" {
			return nil, fmt.Errorf("new registry: empty descriptor type")
		}
		if descriptor.Platform == "" {
			return nil, fmt.Errorf("new registry type %s: empty platform", descriptor.Type)
		}
		if descriptor.Builder == nil {
			return nil, fmt.Errorf("new registry type %s: nil builder", descriptor.Type)
		}
		if _, exists := entries[descriptor.Type]; exists {
			return nil, fmt.Errorf("new registry type %s: duplicate", descriptor.Type)
		}

		entries[descriptor.Type] = registryEntry{
			platform: descriptor.Platform,
			builder:  descriptor.Builder,
		}
		types = append(types, descriptor.Type)
	}
	sort.Strings(types)

	return &Registry{
		entries: entries,
		types:   types,
	}, nil
}

// Types returns all registered driver types in deterministic sorted order.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}

	types := make([]string, len(r.types))
	copy(types, r.types)

	return types
}

// PlatformForType resolves one registered driver type to its neutral platform.
func (r *Registry) PlatformForType(driverType string) (namelog.Platform, error) {
	if r == nil {
		return "", fmt.Errorf("resolve platform: nil registry")
	}

	entry, exists := r.entries[driverType]
	if !exists {
		return "", fmt.Errorf("unsupported type %s", driverType)
	}

	return entry.platform, nil
}

// BuildEnabled builds all enabled driver definitions.
func (r *Registry) BuildEnabled(
	ctx context.Context,
	definitions []Definition,
	logger *slog.Logger,
) ([]Runtime, error) {
	if r == nil {
		return nil, fmt.Errorf("build drivers: nil registry")
	}

	runtimes := make([]Runtime, 0, len(definitions))
	seenNames := make(map[string]struct{}, len(definitions))
	for _, definition := range definitions {
		if !definition.Enabled {
			continue
		}
		if definition.Name == "" {
			return nil, fmt.Errorf("build driver: empty name")
		}
		if _, exists := seenNames[definition.Name]; exists {
			return nil, fmt.Errorf("build driver %s: duplicate name", definition.Name)
		}
		seenNames[definition.Name] = struct{}{}
		if definition.Type == "" {
			return nil, fmt.Errorf("build driver %s: empty type", definition.Name)
		}

		entry, exists := r.entries[definition.Type]
		if !exists {
			return nil, fmt.Errorf("build driver %s type %s: unsupported type", definition.Name, definition.Type)
		}

		runtime, err := entry.builder(ctx, definition, logger)
		if err != nil {
			return nil, fmt.Errorf("build driver %s type %s: %w", definition.Name, definition.Type, err)
		}
		if runtime.Driver == nil {
			return nil, fmt.Errorf("build driver %s type %s: nil driver", definition.Name, definition.Type)
		}
		if runtime.Platform == "" {
			return nil, fmt.Errorf("build driver %s type %s: missing platform", definition.Name, definition.Type)
		}

		runtimes = append(runtimes, runtime)
	}

	return runtimes, nil
}

// PlatformDispatcher routes outbound operations to per-platform dispatchers.
type PlatformDispatcher struct {
	byPlatform map[namelog.Platform]namelog.OutboundDispatcher
}

// NewPlatformDispatcher creates an outbound router from built runtimes.
func NewPlatformDispatcher(runtimes []Runtime) (*PlatformDispatcher, error) {
	byPlatform := make(map[namelog.Platform]namelog.OutboundDispatcher)
	for _, runtime := range runtimes {
		if runtime.Dispatcher == nil {
			continue
		}
		if _, exists := byPlatform[runtime.Platform]; exists {
			return nil, fmt.Errorf("new platform dispatcher: duplicate platform %s", runtime.Platform)
		}
		byPlatform[runtime.Platform] = runtime.Dispatcher
	}

	return &PlatformDispatcher{byPlatform: byPlatform}, nil
}

// SendMessage routes send-message requests to one concrete platform dispatcher.
func (d *PlatformDispatcher) SendMessage(
	ctx context.Context,
	request namelog.SendMessageRequest,
) (*namelog.OutboundMessage, error) {
	dispatcher, err := d.resolve(request.Target)
	if err != nil {
		return nil, fmt.Errorf("resolve dispatcher for send message: %w", err)
	}

	response, err := dispatcher.SendMessage(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("route send message: %w", err)
	}

	return response, nil
}

// EditMessage routes edit-message requests to one concrete platform dispatcher.
func (d *PlatformDispatcher) EditMessage(ctx context.Context, request namelog.EditMessageRequest) error {
	dispatcher, err := d.resolve(request.Target)
	if err != nil {
		return fmt.Errorf("resolve dispatcher for edit message: %w", err)
	}

	if err := dispatcher.EditMessage(ctx, request); err != nil {
		return fmt.Errorf("route edit message: %w", err)
	}

	return nil
}

func (d *PlatformDispatcher) resolve(target namelog.OutboundTarget) (namelog.OutboundDispatcher, error) {
	if d == nil {
		return nil, fmt.Errorf("nil dispatcher")
	}
	if len(d.byPlatform) == 0 {
		return nil, fmt.Errorf("%w: no dispatchers configured", namelog.ErrOutboundUnsupported)
	}

	if target.Platform != "" {
		dispatcher, exists := d.byPlatform[target.Platform]
		if !exists {
			return nil, fmt.Errorf("%w: no dispatcher for platform %s", namelog.ErrOutboundUnsupported, target.Platform)
		}

		return dispatcher, nil
	}
	if len(d.byPlatform) == 1 {
		for _, dispatcher := range d.byPlatform {
			return dispatcher, nil
		}
	}

	return nil, fmt.Errorf("%w: missing target platform", namelog.ErrOutboundUnsupported)
}
