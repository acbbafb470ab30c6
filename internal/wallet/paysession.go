package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/checkout-gateway/internal/obs"
)

// PayState is the lifecycle state of a single payment attempt.
type PayState string

const (
	StateIdle                       PayState = "idle"
	StateAwaitingMerchantValidation PayState = "awaiting_merchant_validation"
	StateAwaitingAuthorization      PayState = "awaiting_authorization"
	StateCompleted                  PayState = "completed"
	StateAborted                    PayState = "aborted"
	StateCancelled                  PayState = "cancelled"
)

var (
	// ErrAttemptNotFound is returned for unknown or expired attempt ids.
	ErrAttemptNotFound = errors.New("wallet: payment attempt not found")
	// ErrInvalidTransition is returned when an event arrives in a state that
	// does not accept it.
	ErrInvalidTransition = errors.New("wallet: invalid payment session transition")
)

type eventKind int

const (
	eventValidateMerchant eventKind = iota
	eventAuthorize
	eventCancel
)

type sessionEvent struct {
	kind          eventKind
	validationURL string
	payment       AuthorizedPayment
	reply         chan eventReply
}

type eventReply struct {
	merchantSession json.RawMessage
	settle          SettleResult
	err             error
}

// Settler runs the wallet-specific settlement sequence once the sheet
// authorizes payment.
type Settler interface {
	SettleApplePay(ctx context.Context, sess *Session, payload AuthorizedPayment) SettleResult
	SettleGooglePay(ctx context.Context, sess *Session, payload AuthorizedPayment) SettleResult
}

// PaySession is one payment attempt. All lifecycle events are serialized
// through a single goroutine, so concurrent sheet callbacks can never race a
// state transition.
type PaySession struct {
	AttemptID string
	Wallet    Wallet

	sess   *Session
	settle Settler
	logger zerolog.Logger

	events chan sessionEvent
	done   chan struct{}

	mu    sync.RWMutex
	state PayState
}

// State reports the current lifecycle state.
func (p *PaySession) State() PayState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *PaySession) setState(next PayState) {
	p.mu.Lock()
	prev := p.state
	p.state = next
	p.mu.Unlock()
	if obs.PaySessionTransitions != nil {
		obs.PaySessionTransitions.WithLabelValues(string(prev), string(next)).Inc()
	}
	p.logger.Debug().
		Str("attempt_id", p.AttemptID).
		Str("from", string(prev)).
		Str("to", string(next)).
		Msg("pay_session_transition")
}

func (p *PaySession) terminal() bool {
	switch p.State() {
	case StateCompleted, StateAborted, StateCancelled:
		return true
	}
	return false
}

// run owns the session state. It exits on the first terminal transition.
func (p *PaySession) run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			if !p.terminal() {
				p.setState(StateAborted)
			}
			return
		case evt := <-p.events:
			p.handle(ctx, evt)
			if p.terminal() {
				return
			}
		}
	}
}

func (p *PaySession) handle(ctx context.Context, evt sessionEvent) {
	switch evt.kind {
	case eventValidateMerchant:
		if p.State() != StateAwaitingMerchantValidation {
			evt.reply <- eventReply{err: ErrInvalidTransition}
			return
		}
		merchantSession, err := p.sess.Apple.ValidateMerchant(ctx, evt.validationURL)
		if err != nil {
			p.setState(StateAborted)
			evt.reply <- eventReply{err: err}
			return
		}
		p.setState(StateAwaitingAuthorization)
		evt.reply <- eventReply{merchantSession: merchantSession}

	case eventAuthorize:
		if p.State() != StateAwaitingAuthorization {
			evt.reply <- eventReply{err: ErrInvalidTransition}
			return
		}
		var result SettleResult
		switch p.Wallet {
		case GooglePay:
			result = p.settle.SettleGooglePay(ctx, p.sess, evt.payment)
		default:
			result = p.settle.SettleApplePay(ctx, p.sess, evt.payment)
		}
		if result.TransactionState == TransactionStateSuccess {
			p.setState(StateCompleted)
		} else {
			p.setState(StateAborted)
		}
		evt.reply <- eventReply{settle: result}

	case eventCancel:
		p.setState(StateCancelled)
		evt.reply <- eventReply{}
	}
}

func (p *PaySession) send(ctx context.Context, evt sessionEvent) (eventReply, error) {
	select {
	case p.events <- evt:
	case <-p.done:
		return eventReply{}, ErrInvalidTransition
	case <-ctx.Done():
		return eventReply{}, ctx.Err()
	}
	select {
	case reply := <-evt.reply:
		return reply, reply.err
	case <-ctx.Done():
		return eventReply{}, ctx.Err()
	}
}

// BeginOptions tunes a new payment attempt.
type BeginOptions struct {
	// RequiresMerchantValidation starts the attempt waiting for a merchant
	// validation callback. Apple Pay needs it, Google Pay does not.
	RequiresMerchantValidation bool
}

// Controller owns every live payment attempt, keyed by attempt id. Attempts
// that see no terminal event are reaped after TTL.
type Controller struct {
	Settle Settler
	TTL    time.Duration
	Logger zerolog.Logger

	mu       sync.Mutex
	attempts map[string]*controlledAttempt
}

type controlledAttempt struct {
	session *PaySession
	cancel  context.CancelFunc
	expires time.Time
}

// Begin registers a new payment attempt for an initialized wallet session and
// returns its id. The attempt's event loop runs until a terminal state or TTL
// expiry.
func (c *Controller) Begin(sess *Session, opts BeginOptions) (*PaySession, error) {
	if sess == nil {
		return nil, errors.New("wallet: nil session")
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	p := &PaySession{
		AttemptID: uuid.NewString(),
		Wallet:    sess.Wallet,
		sess:      sess,
		settle:    c.Settle,
		logger:    c.Logger,
		events:    make(chan sessionEvent),
		done:      make(chan struct{}),
		state:     StateIdle,
	}
	if opts.RequiresMerchantValidation {
		p.setState(StateAwaitingMerchantValidation)
	} else {
		p.setState(StateAwaitingAuthorization)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ttl)
	c.mu.Lock()
	if c.attempts == nil {
		c.attempts = map[string]*controlledAttempt{}
	}
	c.attempts[p.AttemptID] = &controlledAttempt{session: p, cancel: cancel, expires: time.Now().Add(ttl)}
	c.mu.Unlock()

	go func() {
		p.run(ctx)
		cancel()
		c.mu.Lock()
		delete(c.attempts, p.AttemptID)
		c.mu.Unlock()
	}()
	return p, nil
}

func (c *Controller) lookup(attemptID string) (*PaySession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.attempts[attemptID]
	if !ok || time.Now().After(a.expires) {
		return nil, ErrAttemptNotFound
	}
	return a.session, nil
}

// ValidateMerchant resolves an Apple Pay merchant validation callback and
// moves the attempt into awaiting-authorization.
func (c *Controller) ValidateMerchant(ctx context.Context, attemptID, validationURL string) (json.RawMessage, error) {
	p, err := c.lookup(attemptID)
	if err != nil {
		return nil, err
	}
	reply, err := p.send(ctx, sessionEvent{
		kind:          eventValidateMerchant,
		validationURL: validationURL,
		reply:         make(chan eventReply, 1),
	})
	if err != nil {
		return nil, err
	}
	return reply.merchantSession, nil
}

// Authorize settles an authorized sheet payment and reports the outcome.
func (c *Controller) Authorize(ctx context.Context, attemptID string, payment AuthorizedPayment) (SettleResult, error) {
	p, err := c.lookup(attemptID)
	if err != nil {
		return SettleResult{}, err
	}
	reply, err := p.send(ctx, sessionEvent{
		kind:    eventAuthorize,
		payment: payment,
		reply:   make(chan eventReply, 1),
	})
	if err != nil {
		return SettleResult{}, err
	}
	return reply.settle, nil
}

// Cancel ends an attempt without settlement, e.g. when the shopper dismisses
// the sheet. Cancelling an unknown attempt is not an error.
func (c *Controller) Cancel(ctx context.Context, attemptID string) error {
	p, err := c.lookup(attemptID)
	if err != nil {
		if errors.Is(err, ErrAttemptNotFound) {
			return nil
		}
		return err
	}
	_, err = p.send(ctx, sessionEvent{kind: eventCancel, reply: make(chan eventReply, 1)})
	if errors.Is(err, ErrInvalidTransition) {
		return nil
	}
	return err
}

// Session exposes the underlying wallet session of a live attempt.
func (c *Controller) Session(attemptID string) (*Session, error) {
	p, err := c.lookup(attemptID)
	if err != nil {
		return nil, err
	}
	return p.sess, nil
}
