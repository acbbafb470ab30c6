package wallet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// EligibilityReporter forwards device capability results to the backend so it
// can show or hide the wallet payment methods.
type EligibilityReporter interface {
	AllowApplePay(ctx context.Context, sessionID string, canMakePayments bool) error
	AllowGooglePay(ctx context.Context, sessionID string, allowedPaymentMethods json.RawMessage) error
}

// DeviceCapability is the capability report submitted by the storefront after
// probing the device.
type DeviceCapability struct {
	CanMakePayments       bool            `json:"canMakePayments"`
	AllowedPaymentMethods json.RawMessage `json:"allowedPaymentMethods,omitempty"`
}

// Eligibility decides wallet availability per session: the provider config
// must report eligible and the device capability is relayed to the backend.
type Eligibility struct {
	Init     *Initializer
	Reporter EligibilityReporter
	Logger   zerolog.Logger
}

// EligibilityResult is the availability decision for one wallet.
type EligibilityResult struct {
	Wallet   Wallet `json:"wallet"`
	Eligible bool   `json:"eligible"`
}

// Report records a device capability probe and answers whether the wallet can
// be offered. An unavailable wallet (no SDK instance for the currency) is
// reported as ineligible, never as an error.
func (e *Eligibility) Report(ctx context.Context, sessionID string, w Wallet, probe DeviceCapability) (EligibilityResult, error) {
	sess, err := e.Init.Initialize(ctx, sessionID, w)
	if err != nil {
		return EligibilityResult{}, err
	}
	if sess == nil {
		return EligibilityResult{Wallet: w, Eligible: false}, nil
	}

	switch w {
	case ApplePay:
		if err := e.Reporter.AllowApplePay(ctx, sessionID, probe.CanMakePayments); err != nil {
			return EligibilityResult{}, fmt.Errorf("wallet: report apple pay capability: %w", err)
		}
		eligible := sess.Config.IsEligible && probe.CanMakePayments
		return EligibilityResult{Wallet: w, Eligible: eligible}, nil
	case GooglePay:
		methods := probe.AllowedPaymentMethods
		if len(methods) == 0 {
			methods = sess.Config.AllowedPaymentMethods
		}
		if err := e.Reporter.AllowGooglePay(ctx, sessionID, methods); err != nil {
			return EligibilityResult{}, fmt.Errorf("wallet: report google pay capability: %w", err)
		}
		return EligibilityResult{Wallet: w, Eligible: sess.Config.IsEligible}, nil
	}
	return EligibilityResult{}, fmt.Errorf("wallet: unknown wallet %q", w)
}
