package wallet

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/checkout-gateway/internal/common"
)

// Handler exposes the wallet checkout endpoints: initialization, eligibility
// reporting and the payment attempt lifecycle.
type Handler struct {
	Init        *Initializer
	Control     *Controller
	Eligibility *Eligibility
	StoreName   string
	Validate    *validator.Validate
	Logger      zerolog.Logger
}

func sessionID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}

func parseWallet(raw string) (Wallet, bool) {
	switch Wallet(raw) {
	case ApplePay:
		return ApplePay, true
	case GooglePay:
		return GooglePay, true
	}
	return "", false
}

type initResp struct {
	Wallet         Wallet          `json:"wallet"`
	Currency       string          `json:"currency"`
	Config         MerchantConfig  `json:"config"`
	PaymentRequest any             `json:"paymentRequest"`
	IsReadyToPay   json.RawMessage `json:"isReadyToPayRequest,omitempty"`
}

// Initialize resolves the wallet SDK for the shopper's session. Responds 200
// with available=false when the active currency has no SDK instance.
func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Init == nil {
		common.JSONError(w, http.StatusInternalServerError, "WALLET_NOT_CONFIGURED", "wallet handler unavailable", nil)
		return
	}
	session := sessionID(r)
	if session == "" {
		common.JSONError(w, http.StatusBadRequest, "SESSION_REQUIRED", "X-Session-ID header is required", nil)
		return
	}
	wlt, ok := parseWallet(chi.URLParam(r, "wallet"))
	if !ok {
		common.JSONError(w, http.StatusNotFound, "UNKNOWN_WALLET", "unknown wallet", nil)
		return
	}
	sess, err := h.Init.Initialize(r.Context(), session, wlt)
	if err != nil {
		common.JSONError(w, http.StatusBadGateway, "WALLET_INIT_FAILED", "wallet initialization failed", nil)
		return
	}
	if sess == nil {
		common.JSON(w, http.StatusOK, map[string]any{"available": false, "wallet": wlt})
		return
	}
	resp := initResp{Wallet: wlt, Currency: sess.Currency, Config: sess.Config.Copy()}
	switch wlt {
	case ApplePay:
		resp.PaymentRequest = NewPaymentRequest(sess.Config, sess.Cart, h.StoreName)
	case GooglePay:
		resp.PaymentRequest = NewPaymentDataRequest(sess.Config, sess.Cart)
		ready, err := json.Marshal(NewIsReadyToPayRequest(sess.Config))
		if err == nil {
			resp.IsReadyToPay = ready
		}
	}
	common.JSON(w, http.StatusOK, map[string]any{"available": true, "session": resp})
}

type eligibilityReq struct {
	Wallet                string          `json:"wallet" validate:"required,oneof=apple-pay google-pay"`
	CanMakePayments       bool            `json:"canMakePayments"`
	AllowedPaymentMethods json.RawMessage `json:"allowedPaymentMethods"`
}

// ReportEligibility relays a device capability probe to the backend and
// answers whether the wallet may be offered.
func (h *Handler) ReportEligibility(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Eligibility == nil {
		common.JSONError(w, http.StatusInternalServerError, "WALLET_NOT_CONFIGURED", "wallet handler unavailable", nil)
		return
	}
	session := sessionID(r)
	if session == "" {
		common.JSONError(w, http.StatusBadRequest, "SESSION_REQUIRED", "X-Session-ID header is required", nil)
		return
	}
	var req eligibilityReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	wlt, _ := parseWallet(req.Wallet)
	result, err := h.Eligibility.Report(r.Context(), session, wlt, DeviceCapability{
		CanMakePayments:       req.CanMakePayments,
		AllowedPaymentMethods: req.AllowedPaymentMethods,
	})
	if err != nil {
		common.JSONError(w, http.StatusBadGateway, "ELIGIBILITY_FAILED", "eligibility check failed", nil)
		return
	}
	common.JSON(w, http.StatusOK, result)
}

// BeginApplePaySession starts an Apple Pay payment attempt. The attempt waits
// for the merchant validation callback before it accepts an authorization.
func (h *Handler) BeginApplePaySession(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Init == nil || h.Control == nil {
		common.JSONError(w, http.StatusInternalServerError, "WALLET_NOT_CONFIGURED", "wallet handler unavailable", nil)
		return
	}
	session := sessionID(r)
	if session == "" {
		common.JSONError(w, http.StatusBadRequest, "SESSION_REQUIRED", "X-Session-ID header is required", nil)
		return
	}
	sess, err := h.Init.Initialize(r.Context(), session, ApplePay)
	if err != nil {
		common.JSONError(w, http.StatusBadGateway, "WALLET_INIT_FAILED", "wallet initialization failed", nil)
		return
	}
	if sess == nil {
		common.JSONError(w, http.StatusConflict, "WALLET_UNAVAILABLE", "apple pay is not available for this currency", nil)
		return
	}
	attempt, err := h.Control.Begin(sess, BeginOptions{RequiresMerchantValidation: true})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "ATTEMPT_FAILED", "could not start payment attempt", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{
		"attemptId":      attempt.AttemptID,
		"paymentRequest": NewPaymentRequest(sess.Config, sess.Cart, h.StoreName),
	})
}

type validateMerchantReq struct {
	ValidationURL string `json:"validationUrl" validate:"required,url"`
}

// ValidateMerchant resolves the Apple Pay merchant validation callback for a
// live attempt.
func (h *Handler) ValidateMerchant(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Control == nil {
		common.JSONError(w, http.StatusInternalServerError, "WALLET_NOT_CONFIGURED", "wallet handler unavailable", nil)
		return
	}
	var req validateMerchantReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	merchantSession, err := h.Control.ValidateMerchant(r.Context(), chi.URLParam(r, "attemptID"), req.ValidationURL)
	if err != nil {
		h.attemptError(w, err, "MERCHANT_VALIDATION_FAILED", "merchant validation failed")
		return
	}
	common.JSON(w, http.StatusOK, map[string]json.RawMessage{"merchantSession": merchantSession})
}

type authorizeReq struct {
	Token             json.RawMessage `json:"token"`
	BillingContact    json.RawMessage `json:"billingContact"`
	PaymentMethodData json.RawMessage `json:"paymentMethodData"`
}

// AuthorizeAttempt settles an authorized sheet payment for a live attempt.
// The response always carries a transaction state; settlement failures are a
// 200 with state ERROR, matching what the payment sheet completion expects.
func (h *Handler) AuthorizeAttempt(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Control == nil {
		common.JSONError(w, http.StatusInternalServerError, "WALLET_NOT_CONFIGURED", "wallet handler unavailable", nil)
		return
	}
	var req authorizeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	result, err := h.Control.Authorize(r.Context(), chi.URLParam(r, "attemptID"), AuthorizedPayment{
		Token:             req.Token,
		BillingContact:    req.BillingContact,
		PaymentMethodData: req.PaymentMethodData,
	})
	if err != nil {
		h.attemptError(w, err, "AUTHORIZE_FAILED", "payment authorization failed")
		return
	}
	common.JSON(w, http.StatusOK, result)
}

// CancelAttempt ends an attempt without settlement, e.g. a dismissed sheet.
func (h *Handler) CancelAttempt(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Control == nil {
		common.JSONError(w, http.StatusInternalServerError, "WALLET_NOT_CONFIGURED", "wallet handler unavailable", nil)
		return
	}
	if err := h.Control.Cancel(r.Context(), chi.URLParam(r, "attemptID")); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "CANCEL_FAILED", "could not cancel payment attempt", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type googlePayAuthorizeReq struct {
	PaymentMethodData json.RawMessage `json:"paymentMethodData" validate:"required"`
}

// AuthorizeGooglePay runs the whole Google Pay flow in one request: the sheet
// has already produced payment method data, so the attempt starts directly in
// awaiting-authorization and settles immediately.
func (h *Handler) AuthorizeGooglePay(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Init == nil || h.Control == nil {
		common.JSONError(w, http.StatusInternalServerError, "WALLET_NOT_CONFIGURED", "wallet handler unavailable", nil)
		return
	}
	session := sessionID(r)
	if session == "" {
		common.JSONError(w, http.StatusBadRequest, "SESSION_REQUIRED", "X-Session-ID header is required", nil)
		return
	}
	var req googlePayAuthorizeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	sess, err := h.Init.Initialize(r.Context(), session, GooglePay)
	if err != nil {
		common.JSONError(w, http.StatusBadGateway, "WALLET_INIT_FAILED", "wallet initialization failed", nil)
		return
	}
	if sess == nil {
		common.JSONError(w, http.StatusConflict, "WALLET_UNAVAILABLE", "google pay is not available for this currency", nil)
		return
	}
	attempt, err := h.Control.Begin(sess, BeginOptions{})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "ATTEMPT_FAILED", "could not start payment attempt", nil)
		return
	}
	result, err := h.Control.Authorize(r.Context(), attempt.AttemptID, AuthorizedPayment{PaymentMethodData: req.PaymentMethodData})
	if err != nil {
		h.attemptError(w, err, "AUTHORIZE_FAILED", "payment authorization failed")
		return
	}
	common.JSON(w, http.StatusOK, result)
}

func (h *Handler) attemptError(w http.ResponseWriter, err error, code, message string) {
	switch {
	case errors.Is(err, ErrAttemptNotFound):
		common.JSONError(w, http.StatusNotFound, "ATTEMPT_NOT_FOUND", "payment attempt not found", nil)
	case errors.Is(err, ErrInvalidTransition):
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", "payment attempt does not accept this event", nil)
	default:
		common.JSONError(w, http.StatusBadGateway, code, message, nil)
	}
}

// Routes mounts the wallet endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/wallets/{wallet}/init", h.Initialize)
	r.Post("/wallets/eligibility", h.ReportEligibility)
	r.Post("/wallets/apple-pay/sessions", h.BeginApplePaySession)
	r.Post("/wallets/apple-pay/sessions/{attemptID}/validate-merchant", h.ValidateMerchant)
	r.Post("/wallets/apple-pay/sessions/{attemptID}/authorize", h.AuthorizeAttempt)
	r.Post("/wallets/apple-pay/sessions/{attemptID}/cancel", h.CancelAttempt)
	r.Post("/wallets/google-pay/authorize", h.AuthorizeGooglePay)
}
