package goStepUp

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/MrEthical07/goStepUp/challenge"
	"github.com/MrEthical07/goStepUp/clock"
	"github.com/MrEthical07/goStepUp/delivery"
	"github.com/samber/lo"
)

// Built-in account kind names.
const (
	KindLog   = "log"
	KindTOTP  = "totp"
	KindEmail = "email"
	KindSMS   = "sms"
)

// AccountKind bundles the collaborators an account of that kind uses.
// Generator may be nil only when Verifier is standalone.
type AccountKind struct {
	Name      string
	Generator challenge.Generator
	Verifier  challenge.Verifier
	Sender    delivery.Sender
}

func (k AccountKind) validate() error {
	if strings.TrimSpace(k.Name) == "" {
		return fmt.Errorf("%w: account kind name required", ErrUnknownAccountKind)
	}
	if k.Verifier == nil {
		return fmt.Errorf("%w: account kind %q", ErrVerifierNotConfigured, k.Name)
	}
	if k.Generator == nil && !challenge.IsStandalone(k.Verifier) {
		return fmt.Errorf("%w: account kind %q", ErrGeneratorNotConfigured, k.Name)
	}
	return nil
}

// kindRegistry is resolved once at Build and read-only afterwards.
type kindRegistry map[string]AccountKind

func (r kindRegistry) lookup(name string) (AccountKind, error) {
	k, ok := r[name]
	if !ok {
		return AccountKind{}, fmt.Errorf("%w: %q", ErrUnknownAccountKind, name)
	}
	return k, nil
}

func (r kindRegistry) names() []string {
	names := lo.Keys(r)
	slices.Sort(names)
	return names
}

// builtinKinds returns the kinds every engine carries plus one kind per
// registered sender.
func builtinKinds(cfg *Config, c clock.Clock, logger *slog.Logger, senders map[string]delivery.Sender) (kindRegistry, error) {
	digestGen, err := challenge.NewDigestGenerator(cfg.digestConfig(), c)
	if err != nil {
		return nil, err
	}
	totpVerifier, err := challenge.NewTOTPVerifier(cfg.totpConfig(), c)
	if err != nil {
		return nil, err
	}

	reg := kindRegistry{
		KindLog: {
			Name:      KindLog,
			Generator: digestGen,
			Verifier:  challenge.TextVerifier{CaseInsensitive: !cfg.Challenge.Decimal},
			Sender:    delivery.NewLogSender(logger),
		},
		KindTOTP: {
			Name:     KindTOTP,
			Verifier: totpVerifier,
			Sender:   delivery.NoopSender{},
		},
	}

	for name, sender := range senders {
		gen := challenge.Generator(digestGen)
		if name == KindSMS {
			digits, err := challenge.NewDigitsGenerator(cfg.Challenge.Digits)
			if err != nil {
				return nil, err
			}
			gen = digits
		}
		reg[name] = AccountKind{
			Name:      name,
			Generator: gen,
			Verifier:  challenge.TextVerifier{CaseInsensitive: !cfg.Challenge.Decimal},
			Sender:    sender,
		}
	}
	return reg, nil
}
