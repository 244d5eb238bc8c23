package pingpong

import (
	"context"
	"fmt"

	"namelog/pkg/namelog"
)

const pingCommandName = "ping"

// Module replies with "pong!" when it receives a "/ping" command event.
type Module struct {
	dispatcher namelog.OutboundDispatcher
}

// New creates a ping-pong module with default configuration.
func New() *Module {
	return &Module{}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "pingpong"
}

// Spec declares interest in received ping command events.
func (m *Module) Spec() namelog.ModuleSpec {
	return namelog.ModuleSpec{
		Handlers: []namelog.ModuleHandler{
			{
				Capability: namelog.Capability{
					Name:        "ping-command-handler",
					Description: "responds with pong! for /ping commands",
					Interest: namelog.InterestSet{
						Kinds:          []namelog.EventKind{namelog.EventKindCommandReceived},
						RequireCommand: true,
						CommandNames:   []string{pingCommandName},
						RequireMessage: true,
					},
					RequiredServices: []string{namelog.ServiceOutboundDispatcher},
				},
				Subscription: namelog.NewDefaultSubscriptionSpec("pingpong-commands"),
				Handler:      m.handleCommand,
			},
		},
		Commands: []namelog.CommandSpec{
			{
				Prefix:      namelog.CommandPrefixOrdinary,
				Name:        pingCommandName,
				Description: "reply with pong!",
			},
		},
	}
}

// OnRegister resolves outbound dependencies required by this module.
func (m *Module) OnRegister(_ context.Context, runtime namelog.ModuleRuntime) error {
	dispatcher, err := namelog.ResolveAs[namelog.OutboundDispatcher](
		runtime.Services(),
		namelog.ServiceOutboundDispatcher,
	)
	if err != nil {
		return fmt.Errorf("pingpong resolve outbound dispatcher: %w", err)
	}

	m.dispatcher = dispatcher

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(_ context.Context) error {
	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

func (m *Module) handleCommand(ctx context.Context, event *namelog.Event) error {
	if event == nil || event.Command == nil || event.Message == nil {
		return nil
	}
	if event.Kind != namelog.EventKindCommandReceived {
		return nil
	}
	if event.Command.Name != pingCommandName {
		return nil
	}

	target, err := namelog.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("pingpong derive outbound target: %w", err)
	}
	_, err = m.dispatcher.SendMessage(ctx, namelog.SendMessageRequest{
		Target:           target,
		Text:             "pong!",
		ReplyToMessageID: event.Message.ID,
	})
	if err != nil {
		return fmt.Errorf("pingpong send pong message: %w", err)
	}

	return nil
}
