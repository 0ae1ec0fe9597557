package goStepUp

import (
	"time"

	"github.com/MrEthical07/goStepUp/challenge"
)

type SecurityReport struct {
	RestrictorActive     bool
	RestrictorBackend    Backend
	TotalPolicies        int
	FailurePolicies      int
	ReplayActive         bool
	ReplayWindow         time.Duration
	RequestObjectsActive bool
	RequestSigningMethod string
	EncryptedFields      EncryptedFieldsReport
	StorageBackend       Backend
	AuditActive          bool
	AccountKinds         []string
	StandaloneKinds      []string
}

type EncryptedFieldsReport struct {
	Name   bool
	Target bool
	Key    bool
	Cipher string
}

// SecurityReport summarizes the protections the built engine enforces.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	report := SecurityReport{
		RestrictorActive:     e.restrictor != nil,
		ReplayActive:         e.replay != nil,
		RequestObjectsActive: e.requests != nil,
		StorageBackend:       e.config.Storage.Backend,
		AuditActive:          e.config.Audit.Enabled,
		AccountKinds:         e.kinds.names(),
	}
	if e.restrictor != nil {
		report.RestrictorBackend = e.config.Restrictor.Backend
		report.TotalPolicies = len(e.config.Restrictor.Total)
		report.FailurePolicies = len(e.config.Restrictor.Failures)
	}
	if e.replay != nil {
		report.ReplayWindow = e.replay.Window()
	}
	if e.requests != nil {
		report.RequestSigningMethod = e.config.RequestObject.SigningMethod
	}
	if e.config.Encryption.Enabled() {
		report.EncryptedFields = EncryptedFieldsReport{
			Name:   e.config.Encryption.EncryptName,
			Target: e.config.Encryption.EncryptTarget,
			Key:    e.config.Encryption.EncryptKey,
			Cipher: e.config.Encryption.Cipher,
		}
	}
	for _, name := range report.AccountKinds {
		if k := e.kinds[name]; challenge.IsStandalone(k.Verifier) {
			report.StandaloneKinds = append(report.StandaloneKinds, name)
		}
	}
	return report
}
