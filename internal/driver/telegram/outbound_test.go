package telegram

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"namelog/pkg/namelog"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

func TestOutboundDispatcherSendMessage(t *testing.T) {
	t.Parallel()

	rpcFailure := errors.New("send failed")

	tests := []struct {
		name        string
		request     namelog.SendMessageRequest
		rpcErr      error
		wantErr     bool
		wantErrIs   error
		wantMessage string
	}{
		{
			name: "successful send",
			request: namelog.SendMessageRequest{
				Target: namelog.OutboundTarget{
					Platform: namelog.PlatformTelegram,
					Conversation: namelog.Conversation{
						ID:   "42",
						Type: namelog.ConversationTypeGroup,
					},
				},
				Text: "old name → new name",
			},
			wantMessage: "901",
		},
		{
			name: "successful reply",
			request: namelog.SendMessageRequest{
				Target: namelog.OutboundTarget{
					Platform: namelog.PlatformTelegram,
					Conversation: namelog.Conversation{
						ID:   "42",
						Type: namelog.ConversationTypeGroup,
					},
				},
				Text:             "done",
				ReplyToMessageID: "777",
			},
			wantMessage: "901",
		},
		{
			name: "invalid request",
			request: namelog.SendMessageRequest{
				Target: namelog.OutboundTarget{
					Platform: namelog.PlatformTelegram,
					Conversation: namelog.Conversation{
						ID:   "42",
						Type: namelog.ConversationTypeGroup,
					},
				},
			},
			wantErr:   true,
			wantErrIs: namelog.ErrInvalidOutboundRequest,
		},
		{
			name: "unsupported platform",
			request: namelog.SendMessageRequest{
				Target: namelog.OutboundTarget{
					Platform: "discord",
					Conversation: namelog.Conversation{
						ID:   "42",
						Type: namelog.ConversationTypeGroup,
					},
				},
				Text: "pong",
			},
			wantErr:   true,
			wantErrIs: namelog.ErrOutboundUnsupported,
		},
		{
			name: "unknown conversation",
			request: namelog.SendMessageRequest{
				Target: namelog.OutboundTarget{
					Platform: namelog.PlatformTelegram,
					Conversation: namelog.Conversation{
						ID:   "999",
						Type: namelog.ConversationTypeGroup,
					},
				},
				Text: "pong",
			},
			wantErr: true,
		},
		{
			name: "rpc failure",
			request: namelog.SendMessageRequest{
				Target: namelog.OutboundTarget{
					Platform: namelog.PlatformTelegram,
					Conversation: namelog.Conversation{
						ID:   "42",
						Type: namelog.ConversationTypeGroup,
					},
				},
				Text: "pong",
			},
			rpcErr:    rpcFailure,
			wantErr:   true,
			wantErrIs: rpcFailure,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cache := NewPeerCache()
			cache.RememberConversation(
				ChatRef{ID: "42", Type: namelog.ConversationTypeGroup},
				&tg.InputPeerChat{ChatID: 42},
			)

			rpc := &stubOutboundRPC{sendID: 901, sendErr: testCase.rpcErr}
			dispatcher, err := newOutboundDispatcherWithRPC(rpc, cache)
			if err != nil {
				t.Fatalf("new dispatcher failed: %v", err)
			}

			outboundMessage, err := dispatcher.SendMessage(context.Background(), testCase.request)
			if testCase.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if testCase.wantErrIs != nil && !errors.Is(err, testCase.wantErrIs) {
					t.Fatalf("error = %v, want %v", err, testCase.wantErrIs)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if outboundMessage == nil {
				t.Fatal("expected outbound message")
			}
			if outboundMessage.ID != testCase.wantMessage {
				t.Fatalf("message id = %s, want %s", outboundMessage.ID, testCase.wantMessage)
			}
			if rpc.sendCalls != 1 {
				t.Fatalf("send calls = %d, want 1", rpc.sendCalls)
			}
			if rpc.lastSendRequest.Text != testCase.request.Text {
				t.Fatalf("sent text = %q, want %q", rpc.lastSendRequest.Text, testCase.request.Text)
			}
		})
	}
}

func TestOutboundDispatcherSendMessageWrapsRPCError(t *testing.T) {
	t.Parallel()

	cache := NewPeerCache()
	cache.RememberConversation(
		ChatRef{ID: "42", Type: namelog.ConversationTypeGroup},
		&tg.InputPeerChat{ChatID: 42},
	)

	rpc := &stubOutboundRPC{sendErr: tgerr.New(420, "FLOOD_WAIT_11")}
	dispatcher, err := newOutboundDispatcherWithRPC(rpc, cache)
	if err != nil {
		t.Fatalf("new dispatcher failed: %v", err)
	}

	_, err = dispatcher.SendMessage(context.Background(), namelog.SendMessageRequest{
		Target: namelog.OutboundTarget{
			Platform: namelog.PlatformTelegram,
			Conversation: namelog.Conversation{
				ID:   "42",
				Type: namelog.ConversationTypeGroup,
			},
		},
		Text: "pong",
	})
	if err == nil {
		t.Fatal("expected error")
	}

	var outboundErr *namelog.OutboundError
	if !errors.As(err, &outboundErr) {
		t.Fatalf("error = %v, want *namelog.OutboundError", err)
	}
	if outboundErr.Operation != namelog.OutboundOperationSendMessage {
		t.Fatalf("operation = %s, want %s", outboundErr.Operation, namelog.OutboundOperationSendMessage)
	}
	if outboundErr.Kind != namelog.OutboundErrorKindRateLimited {
		t.Fatalf("kind = %s, want %s", outboundErr.Kind, namelog.OutboundErrorKindRateLimited)
	}
	if outboundErr.RetryAfter != 11*time.Second {
		t.Fatalf("retry after = %v, want 11s", outboundErr.RetryAfter)
	}
	if outboundErr.Platform != namelog.PlatformTelegram {
		t.Fatalf("platform = %s, want %s", outboundErr.Platform, namelog.PlatformTelegram)
	}
}

func TestOutboundDispatcherEditMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		request namelog.EditMessageRequest
		rpcErr  error
		wantErr bool
	}{
		{
			name: "successful edit",
			request: namelog.EditMessageRequest{
				Target: namelog.OutboundTarget{
					Platform: namelog.PlatformTelegram,
					Conversation: namelog.Conversation{
						ID:   "42",
						Type: namelog.ConversationTypeGroup,
					},
				},
				MessageID: "10",
				Text:      "updated",
			},
		},
		{
			name: "invalid message id",
			request: namelog.EditMessageRequest{
				Target: namelog.OutboundTarget{
					Platform: namelog.PlatformTelegram,
					Conversation: namelog.Conversation{
						ID:   "42",
						Type: namelog.ConversationTypeGroup,
					},
				},
				MessageID: "bad",
				Text:      "updated",
			},
			wantErr: true,
		},
		{
			name: "rpc failure",
			request: namelog.EditMessageRequest{
				Target: namelog.OutboundTarget{
					Platform: namelog.PlatformTelegram,
					Conversation: namelog.Conversation{
						ID:   "42",
						Type: namelog.ConversationTypeGroup,
					},
				},
				MessageID: "10",
				Text:      "updated",
			},
			rpcErr:  errors.New("edit failed"),
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cache := NewPeerCache()
			cache.RememberConversation(
				ChatRef{ID: "42", Type: namelog.ConversationTypeGroup},
				&tg.InputPeerChat{ChatID: 42},
			)

			rpc := &stubOutboundRPC{editErr: testCase.rpcErr}
			dispatcher, err := newOutboundDispatcherWithRPC(rpc, cache)
			if err != nil {
				t.Fatalf("new dispatcher failed: %v", err)
			}

			err = dispatcher.EditMessage(context.Background(), testCase.request)
			if testCase.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rpc.editCalls != 1 {
				t.Fatalf("edit calls = %d, want 1", rpc.editCalls)
			}
			if rpc.lastEditMessageID != 10 {
				t.Fatalf("edit message id = %d, want 10", rpc.lastEditMessageID)
			}
		})
	}
}

func TestMapTelegramOutboundError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantKind namelog.OutboundErrorKind
		wantCode int
	}{
		{
			name:     "flood wait",
			err:      tgerr.New(420, "FLOOD_WAIT_5"),
			wantKind: namelog.OutboundErrorKindRateLimited,
			wantCode: 420,
		},
		{
			name:     "peer invalid",
			err:      tgerr.New(400, "PEER_ID_INVALID"),
			wantKind: namelog.OutboundErrorKindPermanent,
			wantCode: 400,
		},
		{
			name:     "internal server error",
			err:      tgerr.New(500, "INTERNAL"),
			wantKind: namelog.OutboundErrorKindTemporary,
			wantCode: 500,
		},
		{
			name:     "plain error",
			err:      errors.New("connection reset"),
			wantKind: namelog.OutboundErrorKindUnknown,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			mapped := mapTelegramOutboundError(namelog.OutboundOperationSendMessage, testCase.err)

			var outboundErr *namelog.OutboundError
			if !errors.As(mapped, &outboundErr) {
				t.Fatalf("mapped = %v, want *namelog.OutboundError", mapped)
			}
			if outboundErr.Kind != testCase.wantKind {
				t.Fatalf("kind = %s, want %s", outboundErr.Kind, testCase.wantKind)
			}
			if outboundErr.Code != testCase.wantCode {
				t.Fatalf("code = %d, want %d", outboundErr.Code, testCase.wantCode)
			}
			if !errors.Is(mapped, testCase.err) {
				t.Fatal("mapped error should wrap the original cause")
			}
		})
	}

	t.Run("invalid request passthrough", func(t *testing.T) {
		t.Parallel()

		invalid := fmt.Errorf("%w: missing text", namelog.ErrInvalidOutboundRequest)
		mapped := mapTelegramOutboundError(namelog.OutboundOperationSendMessage, invalid)
		if !errors.Is(mapped, namelog.ErrInvalidOutboundRequest) {
			t.Fatalf("mapped = %v, want invalid request sentinel", mapped)
		}
		var outboundErr *namelog.OutboundError
		if errors.As(mapped, &outboundErr) {
			t.Fatal("invalid requests should not be classified as outbound errors")
		}
	})
}

type stubOutboundRPC struct {
	sendID            int
	sendErr           error
	editErr           error
	sendCalls         int
	editCalls         int
	lastPeer          tg.InputPeerClass
	lastSendRequest   namelog.SendMessageRequest
	lastEditMessageID int
	lastEditRequest   namelog.EditMessageRequest
}

func (s *stubOutboundRPC) SendText(
	_ context.Context,
	peer tg.InputPeerClass,
	request namelog.SendMessageRequest,
) (int, error) {
	s.sendCalls++
	s.lastPeer = peer
	s.lastSendRequest = request
	if s.sendErr != nil {
		return 0, s.sendErr
	}
	return s.sendID, nil
}

func (s *stubOutboundRPC) EditText(
	_ context.Context,
	peer tg.InputPeerClass,
	messageID int,
	request namelog.EditMessageRequest,
) error {
	s.editCalls++
	s.lastPeer = peer
	s.lastEditMessageID = messageID
	s.lastEditRequest = request
	return s.editErr
}

func typeName(value any) string {
	return fmt.Sprintf("%T", value)
}
