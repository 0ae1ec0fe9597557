package goStepUp

import (
	"errors"

	"github.com/MrEthical07/goStepUp/delivery"
	"github.com/MrEthical07/goStepUp/fieldcrypt"
	"github.com/MrEthical07/goStepUp/replay"
	"github.com/MrEthical07/goStepUp/requestobject"
	"github.com/MrEthical07/goStepUp/restrictor"
	"github.com/MrEthical07/goStepUp/storage"
)

var (
	// ErrLimitReached is matched by every *restrictor.LimitError.
	ErrLimitReached = restrictor.ErrLimitReached
	// ErrReplayed is returned when a signed request value was already accepted.
	ErrReplayed = replay.ErrReplayed
	// ErrStaleRequest is returned when a signed request was issued outside the acceptance window.
	ErrStaleRequest = replay.ErrStale
	// ErrStorageUnavailable wraps account storage backend failures.
	ErrStorageUnavailable = storage.ErrUnavailable

	ErrNoPendingChallenge     = errors.New("no pending challenge")
	ErrVerifierNotConfigured  = errors.New("challenge verifier not configured")
	ErrGeneratorNotConfigured = errors.New("challenge generator not configured")
	ErrStorageNotConfigured   = errors.New("account storage not configured")
	ErrEncryptorNotConfigured = errors.New("field encryptor not configured")
	ErrUnknownAccountKind     = errors.New("unknown account kind")
	ErrInvalidMethodConfig    = errors.New("invalid method configuration")
	ErrRequestObjectsDisabled = errors.New("request object validation disabled")
	ErrReplayDisabled         = errors.New("replay protection disabled")
	ErrEngineNotReady         = errors.New("engine not initialized")
	ErrAccountNotEditable     = errors.New("account not editable")
	ErrAccountDisabled        = errors.New("account disabled")
	ErrMethodNotEditable      = errors.New("method does not manage accounts")
	ErrMethodNotInitialized   = errors.New("method not initialized")
	ErrAccountLimit           = errors.New("account limit reached")
	ErrAccountNotOwned        = errors.New("account does not belong to method")
	ErrDeliveryFailed         = errors.New("challenge delivery failed")
)

// ErrorKind classifies errors for callers that map them onto protocol outcomes.
type ErrorKind uint8

const (
	KindNone ErrorKind = iota
	// KindConfiguration means a required collaborator is missing. Never retried.
	KindConfiguration
	// KindValidation means the input or account state does not allow the operation.
	KindValidation
	// KindConsistency means an internal precondition did not hold.
	KindConsistency
	// KindLimit means an attempt or failure cap was reached.
	KindLimit
	// KindReplay means a signed value was reused or is outside its window.
	KindReplay
	// KindStorage means a persistence, cache or delivery backend failed.
	KindStorage
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindConsistency:
		return "consistency"
	case KindLimit:
		return "limit"
	case KindReplay:
		return "replay"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

var errorKinds = []struct {
	kind ErrorKind
	errs []error
}{
	{KindLimit, []error{ErrLimitReached}},
	{KindReplay, []error{ErrReplayed, ErrStaleRequest}},
	{KindStorage, []error{
		storage.ErrUnavailable,
		restrictor.ErrStoreUnavailable,
		replay.ErrCacheUnavailable,
		ErrDeliveryFailed,
	}},
	{KindConsistency, []error{ErrNoPendingChallenge}},
	{KindConfiguration, []error{
		ErrVerifierNotConfigured,
		ErrGeneratorNotConfigured,
		ErrStorageNotConfigured,
		ErrEncryptorNotConfigured,
		ErrUnknownAccountKind,
		ErrInvalidMethodConfig,
		ErrRequestObjectsDisabled,
		ErrReplayDisabled,
		ErrEngineNotReady,
		storage.ErrNotConfigured,
		fieldcrypt.ErrNotConfigured,
		delivery.ErrNotConfigured,
	}},
	{KindValidation, []error{
		ErrAccountNotEditable,
		ErrAccountDisabled,
		ErrMethodNotEditable,
		ErrMethodNotInitialized,
		ErrAccountLimit,
		ErrAccountNotOwned,
		storage.ErrNotFound,
		storage.ErrConflict,
		storage.ErrKeyRequired,
		storage.ErrAccountTypeRequired,
		storage.ErrNotPersisted,
		restrictor.ErrInvalidEvent,
		replay.ErrMissingValue,
		requestobject.ErrInvalid,
		requestobject.ErrMissingIssuedAt,
		requestobject.ErrMissingReplayValue,
		fieldcrypt.ErrMalformed,
		fieldcrypt.ErrDecryptFailed,
		delivery.ErrNoTarget,
	}},
}

// KindOf classifies err. Limits and replays take precedence over the
// backend errors they may wrap.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, group := range errorKinds {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.kind
			}
		}
	}
	return KindUnknown
}
