package kernel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"namelog/pkg/namelog"
)

type commandRegistration struct {
	moduleName string
	spec       namelog.CommandSpec
}

// registerModuleCommands validates and registers module-owned command specs.
func (k *Kernel) registerModuleCommands(
	_ context.Context,
	moduleName string,
	commands []namelog.CommandSpec,
) error {
	if len(commands) == 0 {
		return nil
	}

	normalized := make([]namelog.CommandSpec, 0, len(commands))
	seenInModule := make(map[string]struct{}, len(commands))
	for index, command := range commands {
		if err := command.Validate(); err != nil {
			return fmt.Errorf("register command[%d] for module %s: %w", index, moduleName, err)
		}

		command = cloneCommandSpec(command)
		key := commandRegistryKey(command.Prefix, command.Name)
		if _, exists := seenInModule[key]; exists {
			return fmt.Errorf(
				"register command %s for module %s: duplicate declaration",
				formatCommandKey(command.Prefix, command.Name),
				moduleName,
			)
		}
		seenInModule[key] = struct{}{}
		normalized = append(normalized, command)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	for _, command := range normalized {
		key := commandRegistryKey(command.Prefix, command.Name)
		existing, exists := k.commands[key]
		if exists {
			return fmt.Errorf(
				"register command %s for module %s: already registered by module %s",
				formatCommandKey(command.Prefix, command.Name),
				moduleName,
				existing.moduleName,
			)
		}
	}
	for _, command := range normalized {
		key := commandRegistryKey(command.Prefix, command.Name)
		k.commands[key] = commandRegistration{
			moduleName: moduleName,
			spec:       command,
		}
	}

	return nil
}

// unregisterModuleCommands removes every command owned by one module.
func (k *Kernel) unregisterModuleCommands(moduleName string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for key, registration := range k.commands {
		if registration.moduleName == moduleName {
			delete(k.commands, key)
		}
	}
}

// lookupCommand resolves one command spec by prefix + normalized name.
func (k *Kernel) lookupCommand(prefix namelog.CommandPrefix, name string) (namelog.CommandSpec, bool) {
	key := commandRegistryKey(prefix, name)

	k.mu.RLock()
	registration, exists := k.commands[key]
	k.mu.RUnlock()
	if !exists {
		return namelog.CommandSpec{}, false
	}

	return cloneCommandSpec(registration.spec), true
}

// newDriverEventSink creates the source-event sink wrapped with command derivation.
func (k *Kernel) newDriverEventSink() namelog.EventSink {
	return &commandDerivingSink{
		base: k.bus,
		lookupCommand: func(prefix namelog.CommandPrefix, name string) (namelog.CommandSpec, bool) {
			return k.lookupCommand(prefix, name)
		},
		serviceLookup: k.services,
		reportAsync:   k.cfg.onAsyncError,
	}
}

// commandDerivingSink publishes source events and derives command events.
type commandDerivingSink struct {
	base          namelog.EventSink
	lookupCommand func(prefix namelog.CommandPrefix, name string) (namelog.CommandSpec, bool)
	serviceLookup namelog.ServiceRegistry
	reportAsync   func(context.Context, string, error)
}

// Publish forwards one source event and conditionally derives one command event.
func (s *commandDerivingSink) Publish(ctx context.Context, event *namelog.Event) error {
	if event == nil {
		return fmt.Errorf("publish command deriving sink: nil event")
	}
	if s.base == nil {
		return fmt.Errorf("publish command deriving sink: nil base sink")
	}

	if err := s.base.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish source event %s: %w", event.Kind, err)
	}

	if !isCommandDerivableEventKind(event.Kind) {
		return nil
	}

	commandText, commandMessage, ok := commandContextFromEvent(event)
	if !ok {
		return nil
	}
	candidate, matched, parseErr := namelog.ParseCommandCandidate(commandText)
	if !matched {
		return nil
	}

	spec, registered := s.lookupCommand(candidate.Prefix, candidate.Name)
	if !registered {
		return nil
	}
	if parseErr != nil {
		s.replyCommandError(ctx, event, spec, parseErr)
		return nil
	}

	invocation, bindErr := namelog.BindCommand(candidate, spec, event)
	if bindErr != nil {
		s.replyCommandError(ctx, event, spec, bindErr)
		return nil
	}

	commandEvent := derivedCommandEvent(event, commandMessage, candidate.Prefix, invocation)
	if err := s.base.Publish(ctx, commandEvent); err != nil {
		return fmt.Errorf("publish derived command %s: %w", invocation.Name, err)
	}

	return nil
}

func (s *commandDerivingSink) replyCommandError(
	ctx context.Context,
	sourceEvent *namelog.Event,
	spec namelog.CommandSpec,
	parseErr error,
) {
	if s.serviceLookup == nil {
		s.reportAsyncError(
			ctx,
			"command error reply resolve dispatcher",
			fmt.Errorf("service lookup unavailable"),
		)
		return
	}

	dispatcher, err := namelog.ResolveAs[namelog.OutboundDispatcher](
		s.serviceLookup,
		namelog.ServiceOutboundDispatcher,
	)
	if err != nil {
		if errors.Is(err, namelog.ErrServiceNotFound) {
			s.reportAsyncError(ctx, "command error reply resolve dispatcher", err)
			return
		}
		s.reportAsyncError(ctx, "command error reply resolve dispatcher", err)
		return
	}

	target, err := namelog.OutboundTargetFromEvent(sourceEvent)
	if err != nil {
		s.reportAsyncError(ctx, "command error reply derive target", err)
		return
	}

	_, err = dispatcher.SendMessage(ctx, namelog.SendMessageRequest{
		Target:           target,
		Text:             formatCommandErrorReply(spec, parseErr),
		ReplyToMessageID: commandReplyToMessageID(sourceEvent),
	})
	if err != nil {
		s.reportAsyncError(ctx, "command error reply send", err)
	}
}

func (s *commandDerivingSink) reportAsyncError(ctx context.Context, scope string, err error) {
	if s.reportAsync != nil {
		s.reportAsync(ctx, scope, err)
	}
}

func isCommandDerivableEventKind(kind namelog.EventKind) bool {
	return kind == namelog.EventKindMessageCreated || kind == namelog.EventKindMessageEdited
}

func commandContextFromEvent(event *namelog.Event) (text string, message namelog.Message, ok bool) {
	if event == nil {
		return "", namelog.Message{}, false
	}

	switch event.Kind {
	case namelog.EventKindMessageCreated:
		if event.Message == nil {
			return "", namelog.Message{}, false
		}
		return event.Message.Text, *event.Message, true
	case namelog.EventKindMessageEdited:
		if event.Mutation == nil || event.Mutation.After == nil || event.Mutation.TargetMessageID == "" {
			return "", namelog.Message{}, false
		}
		return event.Mutation.After.Text, namelog.Message{
			ID:   event.Mutation.TargetMessageID,
			Text: event.Mutation.After.Text,
		}, true
	default:
		return "", namelog.Message{}, false
	}
}

func derivedCommandEvent(
	sourceEvent *namelog.Event,
	message namelog.Message,
	prefix namelog.CommandPrefix,
	invocation namelog.CommandInvocation,
) *namelog.Event {
	kind, suffix := derivedCommandEventKind(prefix)
	commandEvent := &namelog.Event{
		ID:         sourceEvent.ID + suffix,
		Kind:       kind,
		OccurredAt: sourceEvent.OccurredAt,
		Platform:   sourceEvent.Platform,
		Conversation: namelog.Conversation{
			ID:    sourceEvent.Conversation.ID,
			Type:  sourceEvent.Conversation.Type,
			Title: sourceEvent.Conversation.Title,
		},
		Actor: namelog.Actor{
			ID:          sourceEvent.Actor.ID,
			Username:    sourceEvent.Actor.Username,
			DisplayName: sourceEvent.Actor.DisplayName,
			IsBot:       sourceEvent.Actor.IsBot,
		},
		Message:  &message,
		Command:  cloneCommandInvocation(invocation),
		Metadata: cloneStringMap(sourceEvent.Metadata),
	}

	return commandEvent
}

func derivedCommandEventKind(prefix namelog.CommandPrefix) (namelog.EventKind, string) {
	switch prefix {
	case namelog.CommandPrefixSystem:
		return namelog.EventKindSystemCommandReceived, "#system-command"
	default:
		return namelog.EventKindCommandReceived, "#command"
	}
}

func commandReplyToMessageID(event *namelog.Event) string {
	if event == nil {
		return ""
	}
	if event.Message != nil && event.Message.ID != "" {
		return event.Message.ID
	}
	if event.Mutation != nil && event.Mutation.TargetMessageID != "" {
		return event.Mutation.TargetMessageID
	}

	return ""
}

func formatCommandErrorReply(spec namelog.CommandSpec, parseErr error) string {
	if parseErr == nil {
		return commandUsage(spec)
	}

	return fmt.Sprintf("%s\nusage: %s", parseErr.Error(), commandUsage(spec))
}

func commandUsage(spec namelog.CommandSpec) string {
	usage := fmt.Sprintf("%s%s", spec.Prefix, normalizeCommandName(spec.Name))
	if len(spec.Options) == 0 {
		return usage
	}

	parts := make([]string, 0, len(spec.Options))
	for _, option := range spec.Options {
		descriptor := commandOptionDescriptor(option)
		if descriptor == "" {
			continue
		}
		if option.Required {
			parts = append(parts, descriptor)
		} else {
			parts = append(parts, "["+descriptor+"]")
		}
	}
	if len(parts) == 0 {
		return usage
	}

	return usage + " " + strings.Join(parts, " ")
}

func commandOptionDescriptor(option namelog.CommandOptionSpec) string {
	name := normalizeCommandName(option.Name)
	alias := normalizeCommandAlias(option.Alias)
	switch {
	case name != "" && alias != "":
		if option.HasValue {
			return fmt.Sprintf("--%s|-%s <value>", name, alias)
		}
		return fmt.Sprintf("--%s|-%s", name, alias)
	case name != "":
		if option.HasValue {
			return fmt.Sprintf("--%s <value>", name)
		}
		return fmt.Sprintf("--%s", name)
	case alias != "":
		if option.HasValue {
			return fmt.Sprintf("-%s <value>", alias)
		}
		return fmt.Sprintf("-%s", alias)
	default:
		return ""
	}
}

func commandRegistryKey(prefix namelog.CommandPrefix, name string) string {
	return fmt.Sprintf("%s:%s", prefix, normalizeCommandName(name))
}

func formatCommandKey(prefix namelog.CommandPrefix, name string) string {
	return fmt.Sprintf("%s%s", prefix, normalizeCommandName(name))
}

func normalizeCommandName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func normalizeCommandAlias(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func cloneCommandSpec(spec namelog.CommandSpec) namelog.CommandSpec {
	cloned := spec
	cloned.Name = normalizeCommandName(spec.Name)
	if len(spec.Options) == 0 {
		return cloned
	}

	cloned.Options = append([]namelog.CommandOptionSpec(nil), spec.Options...)
	for index := range cloned.Options {
		cloned.Options[index].Name = normalizeCommandName(cloned.Options[index].Name)
		cloned.Options[index].Alias = normalizeCommandAlias(cloned.Options[index].Alias)
	}

	return cloned
}

func cloneCommandInvocation(invocation namelog.CommandInvocation) *namelog.CommandInvocation {
	cloned := invocation
	if len(invocation.Options) > 0 {
		cloned.Options = append([]namelog.CommandOption(nil), invocation.Options...)
	}

	return &cloned
}

func cloneStringMap(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}

	cloned := make(map[string]string, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}

	return cloned
}
