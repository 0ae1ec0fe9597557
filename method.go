package goStepUp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrEthical07/goStepUp/fieldcrypt"
	"github.com/MrEthical07/goStepUp/storage"
	"github.com/samber/lo"
)

// Claims are the principal's attributes as delivered by the surrounding flow.
// Values may be strings, string slices, or []any holding strings.
type Claims map[string]any

// Method resolves a principal's accounts for one step-up method. A Method
// instance serves one request: Initialize loads state that later calls use.
type Method interface {
	Name() string
	// Initialize resolves the lookup key from claims and loads accounts. It
	// returns false, nil when the required claim is absent.
	Initialize(ctx context.Context, claims Claims) (bool, error)
	// Accounts returns the loaded accounts ordered by id.
	Accounts() []*StepUpAccount
	// Account returns the first account or nil.
	Account() *StepUpAccount
	// Editable reports whether AddAccount and RemoveAccount are supported.
	Editable() bool
	AddAccount(ctx context.Context) (*StepUpAccount, error)
	RemoveAccount(ctx context.Context, account *StepUpAccount) error
	UpdateAccount(ctx context.Context, account *StepUpAccount) error
}

// MethodConfig names the method and the claims it reads.
type MethodConfig struct {
	Name        string
	AccountKind string
	// KeyClaim holds the storage and restriction key.
	KeyClaim string
	// TargetClaim holds the account target for pass-through and attribute methods.
	TargetClaim string
	// DecryptTarget opens the target claim with the engine's field encryptor.
	// Used for values sealed by another trust domain.
	DecryptTarget bool
	// MaxAccounts caps accounts per key for keyed methods; 0 is unlimited.
	MaxAccounts int
	// AutoEvict removes the oldest account (lowest id) to make room at the cap.
	AutoEvict bool
	// CreateIfMissing adds an account during Initialize when none is stored.
	CreateIfMissing bool
}

// claimString returns the first non-empty string value of claims[name].
func claimString(claims Claims, name string) string {
	if name == "" {
		return ""
	}
	switch v := claims[name].(type) {
	case string:
		return strings.TrimSpace(v)
	case []string:
		return lo.FirstOr(lo.Compact(lo.Map(v, func(s string, _ int) string {
			return strings.TrimSpace(s)
		})), "")
	case []any:
		return lo.FirstOr(lo.FilterMap(v, func(item any, _ int) (string, bool) {
			s, ok := item.(string)
			s = strings.TrimSpace(s)
			return s, ok && s != ""
		}), "")
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

// baseMethod carries what every manager shape shares.
type baseMethod struct {
	engine   *Engine
	cfg      MethodConfig
	kind     AccountKind
	key      string
	accounts []*StepUpAccount
}

func (e *Engine) newBaseMethod(cfg MethodConfig) (baseMethod, error) {
	if e == nil {
		return baseMethod{}, ErrEngineNotReady
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return baseMethod{}, fmt.Errorf("%w: name required", ErrInvalidMethodConfig)
	}
	kind, err := e.kinds.lookup(cfg.AccountKind)
	if err != nil {
		return baseMethod{}, err
	}
	return baseMethod{engine: e, cfg: cfg, kind: kind}, nil
}

func (m *baseMethod) Name() string { return m.cfg.Name }

func (m *baseMethod) Accounts() []*StepUpAccount {
	return append([]*StepUpAccount(nil), m.accounts...)
}

func (m *baseMethod) Account() *StepUpAccount {
	return lo.FirstOr(m.accounts, nil)
}

func (m *baseMethod) Editable() bool { return false }

func (m *baseMethod) AddAccount(context.Context) (*StepUpAccount, error) {
	return nil, ErrMethodNotEditable
}

func (m *baseMethod) RemoveAccount(context.Context, *StepUpAccount) error {
	return ErrMethodNotEditable
}

func (m *baseMethod) UpdateAccount(context.Context, *StepUpAccount) error {
	return ErrMethodNotEditable
}

func (m *baseMethod) transient(target string) *StepUpAccount {
	return newAccount(m.engine, m.kind, m.cfg.Name, m.key, storage.Record{
		ID:       storage.UnsetID,
		Name:     m.kind.Name,
		Target:   target,
		Enabled:  true,
		Editable: false,
	})
}

/*
====================================
PASS-THROUGH
====================================
*/

// PassThroughMethod always yields exactly one non-persistent account.
type PassThroughMethod struct {
	baseMethod
}

// NewPassThroughMethod resolves cfg.AccountKind from the registry and
// requires KeyClaim.
func (e *Engine) NewPassThroughMethod(cfg MethodConfig) (*PassThroughMethod, error) {
	base, err := e.newBaseMethod(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.KeyClaim == "" {
		return nil, fmt.Errorf("%w: KeyClaim required", ErrInvalidMethodConfig)
	}
	return &PassThroughMethod{baseMethod: base}, nil
}

func (m *PassThroughMethod) Initialize(_ context.Context, claims Claims) (bool, error) {
	m.accounts = nil
	m.key = claimString(claims, m.cfg.KeyClaim)
	if m.key == "" {
		return false, nil
	}
	m.accounts = []*StepUpAccount{m.transient(claimString(claims, m.cfg.TargetClaim))}
	return true, nil
}

/*
====================================
KEYED
====================================
*/

// KeyedMethod loads persistent accounts stored under the resolved key and
// is the only editable manager shape.
type KeyedMethod struct {
	baseMethod
	store storage.Storage
}

// NewKeyedMethod requires engine storage and KeyClaim. Accounts are stored
// under the resolved key scoped by the account kind name.
func (e *Engine) NewKeyedMethod(cfg MethodConfig) (*KeyedMethod, error) {
	base, err := e.newBaseMethod(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.KeyClaim == "" {
		return nil, fmt.Errorf("%w: KeyClaim required", ErrInvalidMethodConfig)
	}
	if e.storage == nil {
		return nil, ErrStorageNotConfigured
	}
	if cfg.MaxAccounts < 0 {
		return nil, fmt.Errorf("%w: MaxAccounts must be >= 0", ErrInvalidMethodConfig)
	}
	return &KeyedMethod{baseMethod: base, store: e.storage}, nil
}

func (m *KeyedMethod) Editable() bool { return true }

func (m *KeyedMethod) Initialize(ctx context.Context, claims Claims) (bool, error) {
	m.accounts = nil
	m.key = claimString(claims, m.cfg.KeyClaim)
	if m.key == "" {
		return false, nil
	}

	records, err := m.store.GetAccounts(ctx, m.key, m.kind.Name)
	if err != nil {
		m.engine.logger.ErrorContext(ctx, "load step-up accounts failed",
			slog.String("method", m.cfg.Name),
			slog.String("error", err.Error()),
		)
		return false, err
	}
	m.accounts = lo.Map(records, func(rec storage.Record, _ int) *StepUpAccount {
		return newAccount(m.engine, m.kind, m.cfg.Name, m.key, rec)
	})

	if len(m.accounts) == 0 && m.cfg.CreateIfMissing {
		if _, err := m.AddAccount(ctx); err != nil {
			return false, err
		}
	}
	return true, nil
}

// AddAccount persists a new enabled, editable account. At the cap it evicts
// the lowest-id account when AutoEvict is set, otherwise it returns
// ErrAccountLimit.
func (m *KeyedMethod) AddAccount(ctx context.Context) (*StepUpAccount, error) {
	if m.key == "" {
		return nil, ErrMethodNotInitialized
	}

	if m.cfg.MaxAccounts > 0 && len(m.accounts) >= m.cfg.MaxAccounts {
		if !m.cfg.AutoEvict {
			return nil, ErrAccountLimit
		}
		for len(m.accounts) >= m.cfg.MaxAccounts {
			oldest := lo.MinBy(m.accounts, func(a, b *StepUpAccount) bool {
				return a.ID() < b.ID()
			})
			if err := m.remove(ctx, oldest, AuditAccountEvicted); err != nil {
				return nil, err
			}
		}
	}

	rec, err := m.store.Add(ctx, m.key, m.kind.Name, storage.Record{
		ID:       storage.UnsetID,
		Name:     m.kind.Name,
		Enabled:  true,
		Editable: true,
	})
	if err != nil {
		return nil, err
	}
	account := newAccount(m.engine, m.kind, m.cfg.Name, m.key, rec)
	// Key-value stores overwrite the single record under a key.
	m.accounts = lo.Reject(m.accounts, func(a *StepUpAccount, _ int) bool {
		return a.ID() == rec.ID
	})
	m.accounts = append(m.accounts, account)
	m.engine.accountEvent(ctx, AuditAccountAdded, account, nil)
	return account, nil
}

func (m *KeyedMethod) RemoveAccount(ctx context.Context, account *StepUpAccount) error {
	if !m.owns(account) {
		return ErrAccountNotOwned
	}
	return m.remove(ctx, account, AuditAccountRemoved)
}

func (m *KeyedMethod) remove(ctx context.Context, account *StepUpAccount, eventType string) error {
	if err := m.store.Remove(ctx, m.key, m.kind.Name, account.record()); err != nil {
		return err
	}
	m.accounts = lo.Without(m.accounts, account)
	m.engine.accountEvent(ctx, eventType, account, nil)
	return nil
}

// UpdateAccount persists the account's current fields.
func (m *KeyedMethod) UpdateAccount(ctx context.Context, account *StepUpAccount) error {
	if !m.owns(account) {
		return ErrAccountNotOwned
	}
	if err := m.store.Update(ctx, m.key, m.kind.Name, account.record()); err != nil {
		return err
	}
	m.engine.accountEvent(ctx, AuditAccountUpdated, account, nil)
	return nil
}

func (m *KeyedMethod) owns(account *StepUpAccount) bool {
	return account != nil && lo.Contains(m.accounts, account)
}

/*
====================================
ATTRIBUTE
====================================
*/

// AttributeMethod builds one storage-less account from a target claim,
// optionally decrypting it first.
type AttributeMethod struct {
	baseMethod
	cipher *fieldcrypt.Encryptor
}

// NewAttributeMethod requires TargetClaim, and an engine encryptor when
// DecryptTarget is set.
func (e *Engine) NewAttributeMethod(cfg MethodConfig) (*AttributeMethod, error) {
	base, err := e.newBaseMethod(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.TargetClaim == "" {
		return nil, fmt.Errorf("%w: attribute method requires TargetClaim", ErrInvalidMethodConfig)
	}
	if cfg.DecryptTarget && e.encryptor == nil {
		return nil, ErrEncryptorNotConfigured
	}
	return &AttributeMethod{baseMethod: base, cipher: e.encryptor}, nil
}

func (m *AttributeMethod) Initialize(_ context.Context, claims Claims) (bool, error) {
	m.accounts = nil
	target := claimString(claims, m.cfg.TargetClaim)
	if target == "" {
		return false, nil
	}
	if m.cfg.DecryptTarget {
		plain, err := m.cipher.Decrypt(fieldcrypt.FieldTarget, target)
		if err != nil {
			return false, err
		}
		target = plain
	}

	m.key = claimString(claims, m.cfg.KeyClaim)
	if m.key == "" {
		m.key = target
	}
	m.accounts = []*StepUpAccount{m.transient(target)}
	return true, nil
}
