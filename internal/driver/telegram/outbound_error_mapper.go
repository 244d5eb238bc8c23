package telegram

import (
	"errors"
	"strings"

	"namelog/pkg/namelog"

	"github.com/gotd/td/tgerr"
)

func mapTelegramOutboundError(operation namelog.OutboundOperation, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, namelog.ErrInvalidOutboundRequest) {
		return err
	}

	outboundErr := &namelog.OutboundError{
		Operation: operation,
		Kind:      namelog.OutboundErrorKindUnknown,
		Platform:  namelog.PlatformTelegram,
		Cause:     err,
	}

	if retryAfter, ok := tgerr.AsFloodWait(err); ok {
		outboundErr.Kind = namelog.OutboundErrorKindRateLimited
		outboundErr.RetryAfter = retryAfter
		if rpcErr, hasRPC := tgerr.As(err); hasRPC {
			outboundErr.Code = rpcErr.Code
			outboundErr.Type = rpcErr.Type
		}

		return outboundErr
	}

	rpcErr, ok := tgerr.As(err)
	if !ok {
		return outboundErr
	}

	outboundErr.Code = rpcErr.Code
	outboundErr.Type = rpcErr.Type
	outboundErr.Kind = classifyTelegramRPCError(rpcErr)

	return outboundErr
}

func classifyTelegramRPCError(rpcErr *tgerr.Error) namelog.OutboundErrorKind {
	if rpcErr == nil {
		return namelog.OutboundErrorKindUnknown
	}

	errorType := strings.ToUpper(strings.TrimSpace(rpcErr.Type))
	if rpcErr.Code == 420 || rpcErr.Code == 429 || strings.Contains(errorType, "FLOOD") {
		return namelog.OutboundErrorKindRateLimited
	}

	switch rpcErr.Code {
	case 303:
		return namelog.OutboundErrorKindTemporary
	case 400, 401, 403, 404, 405, 406:
		return namelog.OutboundErrorKindPermanent
	case 500, 501, 502, 503, 504:
		return namelog.OutboundErrorKindTemporary
	}
	if rpcErr.Code >= 500 {
		return namelog.OutboundErrorKindTemporary
	}

	return namelog.OutboundErrorKindUnknown
}
