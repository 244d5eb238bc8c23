package namelog

import "errors"

var (
	// ErrInvalidEvent indicates that an event does not satisfy protocol invariants.
	ErrInvalidEvent = errors.New("namelog: invalid event")
	// ErrInvalidSubscription indicates that a subscription configuration is invalid.
	ErrInvalidSubscription = errors.New("namelog: invalid subscription")
	// ErrSubscriptionClosed indicates that a subscription is no longer active.
	ErrSubscriptionClosed = errors.New("namelog: subscription closed")
	// ErrEventDropped indicates a non-blocking backpressure drop.
	ErrEventDropped = errors.New("namelog: event dropped due to backpressure")
	// ErrServiceAlreadyRegistered indicates duplicate service registration.
	ErrServiceAlreadyRegistered = errors.New("namelog: service already registered")
	// ErrServiceNotFound indicates a service lookup miss.
	ErrServiceNotFound = errors.New("namelog: service not found")
	// ErrModuleAlreadyRegistered indicates duplicate module registration.
	ErrModuleAlreadyRegistered = errors.New("namelog: module already registered")
	// ErrDriverAlreadyRegistered indicates duplicate driver registration.
	ErrDriverAlreadyRegistered = errors.New("namelog: driver already registered")
	// ErrInvalidOutboundRequest indicates a malformed outbound dispatch request.
	ErrInvalidOutboundRequest = errors.New("namelog: invalid outbound request")
	// ErrOutboundUnsupported indicates no dispatcher can serve an outbound target.
	ErrOutboundUnsupported = errors.New("namelog: outbound target unsupported")

	// ErrStoreUnavailable indicates that the history backing document could not
	// be read or written.
	ErrStoreUnavailable = errors.New("namelog: history store unavailable")
	// ErrDataCorruption indicates that the persisted history document is
	// structurally invalid and the whole load was rejected.
	ErrDataCorruption = errors.New("namelog: history document corrupt")
	// ErrRecordNotFound indicates a history record lookup by index missed.
	ErrRecordNotFound = errors.New("namelog: history record not found")
	// ErrInvalidPageSize indicates a pagination request with a non-positive page size.
	ErrInvalidPageSize = errors.New("namelog: invalid page size")
)
