package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/checkout-gateway/internal/cart"
	"github.com/noah-isme/checkout-gateway/internal/obs"
)

// Session carries everything a checkout attempt needs: the provider handle,
// the merchant configuration and the cart snapshot the payment request was
// built from. It is created by Initialize and handed to every later stage
// explicitly, so re-initialisation can never swap state underneath a running
// payment session.
type Session struct {
	ID       string
	Wallet   Wallet
	Currency string
	Config   MerchantConfig
	Cart     cart.Snapshot

	Handle Handle
	Apple  ApplePayAPI
	Google GooglePayAPI
}

// CartSource reads the shopper's cart snapshot.
type CartSource interface {
	Get(ctx context.Context, sessionID string) (cart.Snapshot, error)
}

// ScriptLoader ensures an external SDK script is loaded.
type ScriptLoader interface {
	Load(ctx context.Context, url string) error
}

// Initializer resolves the provider SDK handle and merchant configuration for
// a wallet checkout.
type Initializer struct {
	Source           HandleSource
	Loader           ScriptLoader
	Carts            CartSource
	FallbackCurrency string
	ScriptURLs       map[Wallet]string
	Logger           zerolog.Logger
}

// Initialize builds a fresh Session for the wallet. It returns (nil, nil)
// when no SDK instance exists for the active currency; that is not an error,
// the wallet is simply unavailable and no side effects have occurred.
func (i *Initializer) Initialize(ctx context.Context, sessionID string, w Wallet) (*Session, error) {
	if i == nil || i.Source == nil || i.Loader == nil || i.Carts == nil {
		return nil, errors.New("wallet: initializer not configured")
	}

	snap, err := i.Carts.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, cart.ErrNotFound) {
		i.count(w, "error")
		return nil, fmt.Errorf("wallet: load cart: %w", err)
	}
	currency := strings.TrimSpace(snap.Currency)
	if currency == "" {
		currency = i.FallbackCurrency
	}

	handle, err := i.Source.Handle(ctx, currency)
	if errors.Is(err, ErrUnsupportedCurrency) {
		i.count(w, "unavailable")
		return nil, nil
	}
	if err != nil {
		i.count(w, "error")
		return nil, fmt.Errorf("wallet: obtain sdk handle: %w", err)
	}

	scriptURL := i.ScriptURLs[w]
	if scriptURL != "" {
		if err := i.Loader.Load(ctx, scriptURL); err != nil {
			i.count(w, "error")
			return nil, fmt.Errorf("wallet: load sdk script: %w", err)
		}
	}

	sess := &Session{
		ID:       sessionID,
		Wallet:   w,
		Currency: currency,
		Cart:     snap,
		Handle:   handle,
	}
	switch w {
	case ApplePay:
		sess.Apple = handle.ApplePay()
		sess.Config, err = sess.Apple.Config(ctx)
	case GooglePay:
		sess.Google = handle.GooglePay()
		sess.Config, err = sess.Google.Config(ctx)
	default:
		err = fmt.Errorf("wallet: unknown wallet %q", w)
	}
	if err != nil {
		i.count(w, "error")
		return nil, fmt.Errorf("wallet: fetch merchant config: %w", err)
	}

	i.count(w, "success")
	i.Logger.Debug().
		Str("session_id", sessionID).
		Str("wallet", string(w)).
		Str("currency", currency).
		Msg("wallet_initialized")
	return sess, nil
}

func (i *Initializer) count(w Wallet, result string) {
	if obs.WalletInitTotal != nil {
		obs.WalletInitTotal.WithLabelValues(string(w), result).Inc()
	}
}
