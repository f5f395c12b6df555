package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/citylink/internal/logging"
	"github.com/aretw0/citylink/pkg/domain"
	"github.com/aretw0/citylink/pkg/ledger"
	"github.com/aretw0/citylink/pkg/ports"
	"github.com/aretw0/citylink/pkg/store"
	"github.com/google/uuid"
)

// maxPersistAttempts bounds how often Resync merges and retries a conflicting save.
const maxPersistAttempts = 3

// State is a copy of a client's locally derived state.
type State struct {
	ClientID  string          `json:"clientId"`
	Code      string          `json:"code"`
	JoinCode  string          `json:"joinCode"`
	Phase     domain.Phase    `json:"phase"`
	InSession bool            `json:"inSession"`
	Connected bool            `json:"connected"`
	Partner   string          `json:"partner"`
	Session   *domain.Session `json:"session"`
	Draft     domain.Draft    `json:"draft"`
}

// Client is one local participant. Construct it once per local installation.
type Client struct {
	id        string
	store     *store.Store
	resources ports.ResourceLedger
	notifier  ports.Notifier
	logger    *slog.Logger
	messages  map[Message]string
	policy    ledger.Policy
	codes     func() string
	offerIDs  ledger.IDFunc
	hooks     domain.LifecycleHooks

	mu        sync.Mutex
	code      string
	joinCode  string
	session   *domain.Session
	inSession bool
	connected bool
	phase     domain.Phase
	draft     domain.Draft
	applied   map[string]bool // offer ids this client has applied, kept even if the record loses them
}

// NewClient creates a participant bound to a store and the host's resource ledger.
func NewClient(st *store.Store, resources ports.ResourceLedger, opts ...Option) *Client {
	c := &Client{
		id:        uuid.NewString(),
		store:     st,
		resources: resources,
		notifier:  ports.NotifierFunc(func(string, domain.Severity) {}),
		logger:    logging.NewNop(),
		messages:  make(map[Message]string, len(DefaultMessages)),
		policy:    ledger.Atomic,
		codes:     RandomCode,
		offerIDs:  ledger.NewOfferID,
		phase:     domain.PhaseDisconnected,
		applied:   make(map[string]bool),
	}
	for k, v := range DefaultMessages {
		c.messages[k] = v
	}
	for _, opt := range opts {
		opt(c)
	}
	c.code = store.NormalizeCode(c.code)
	return c
}

// ID returns the client identifier.
func (c *Client) ID() string { return c.id }

// Store returns the store the client persists through.
func (c *Client) Store() *store.Store { return c.store }

// Host binds the client to code as host, creating the session if needed. An empty
// code generates a random numeric one. If the local client was the guest it vacates
// that role. It returns the normalized code.
func (c *Client) Host(ctx context.Context, code string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	code = store.NormalizeCode(code)
	if code == "" {
		code = c.codes()
	}

	sess, ok := c.store.Load(ctx, code)
	if ok && sess.Full() && !sess.HasRole(c.id) {
		c.notify(MsgConnectionFull, domain.SeverityWarning)
		return "", domain.ErrSessionFull
	}
	if !ok {
		sess = domain.NewSession(code, c.id)
	} else {
		sess.Host = c.id
		if sess.Guest == c.id {
			sess.Guest = ""
		}
	}

	prevCode, prevJoin := c.code, c.joinCode
	c.code = code
	c.joinCode = ""
	if err := c.persist(ctx, sess); err != nil {
		c.unbind(ctx, prevCode, prevJoin)
		return "", err
	}
	c.resyncLocked(ctx)
	c.emitJoined(ctx, "host")
	c.notify(MsgConnected, domain.SeveritySuccess)
	return code, nil
}

// Join binds the client to an existing session, taking the host role if it is
// vacant and the guest role otherwise.
func (c *Client) Join(ctx context.Context, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	code = store.NormalizeCode(code)
	if code == "" {
		c.notify(MsgInvalidCode, domain.SeverityWarning)
		return domain.ErrInvalidCode
	}
	sess, ok := c.store.Load(ctx, code)
	if !ok {
		c.notify(MsgInvalidCode, domain.SeverityWarning)
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, code)
	}
	if sess.Full() && !sess.HasRole(c.id) {
		c.notify(MsgConnectionFull, domain.SeverityWarning)
		return domain.ErrSessionFull
	}

	role := "host"
	switch {
	case sess.HasRole(c.id):
		// Already seated; rejoining only rebinds the local state.
		if sess.Guest == c.id {
			role = "guest"
		}
	case sess.Host == "":
		sess.Host = c.id
	case sess.Guest == "":
		sess.Guest = c.id
		role = "guest"
	}

	prevCode, prevJoin := c.code, c.joinCode
	c.code = code
	c.joinCode = code
	if err := c.persist(ctx, sess); err != nil {
		c.unbind(ctx, prevCode, prevJoin)
		return err
	}
	c.resyncLocked(ctx)
	c.emitJoined(ctx, role)
	c.notify(MsgConnected, domain.SeveritySuccess)
	return nil
}

// Disconnect vacates the local client's role. A host leaving an unpaired session
// deletes it; a host leaving a guest behind keeps it open for a new host. The local
// binding is cleared whatever the store outcome; a store error is still returned.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.code == "" {
		return nil
	}
	code := c.code

	var err error
	role := ""
	if sess, ok := c.store.Load(ctx, code); ok {
		switch c.id {
		case sess.Host:
			sess.Host = ""
			role = "host"
		case sess.Guest:
			sess.Guest = ""
			role = "guest"
		}
		if role != "" {
			// An empty session is removed by the store rather than saved.
			if err = c.store.Save(ctx, code, sess); err != nil {
				c.logger.Warn("Failed to vacate session role", "code", code, "role", role, "err", err)
			}
		}
	}

	c.code = ""
	c.joinCode = ""
	c.session = nil
	c.inSession = false
	c.connected = false
	c.phase = domain.PhaseDisconnected

	if c.hooks.OnSessionLeft != nil {
		c.hooks.OnSessionLeft(ctx, &domain.SessionEvent{
			EventBase: domain.NewEventBase(domain.EventSessionLeft, c.id, code),
			Phase:     domain.PhaseDisconnected,
			Role:      role,
		})
	}
	c.notify(MsgDisconnected, domain.SeverityWarning)
	return err
}

// Resync reloads the bound session and recomputes all derived state from it,
// applying newly accepted offers to the local ledger.
func (c *Client) Resync(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resyncLocked(ctx)
}

func (c *Client) resyncLocked(ctx context.Context) {
	if c.code == "" {
		c.session = nil
		c.inSession = false
		c.connected = false
		c.phase = domain.PhaseDisconnected
		return
	}

	sess, ok := c.store.Load(ctx, c.code)
	if !ok {
		c.session = nil
		c.inSession = false
		c.connected = false
		c.phase = domain.PhaseDisconnected
		c.emitResync(ctx)
		return
	}

	dirty := c.restoreApplied(sess)
	applied, errs := ledger.ApplyAll(sess, c.id, c.resources, c.policy)
	for _, err := range errs {
		c.logger.Warn("Accepted offer not applied", "code", c.code, "err", err)
	}
	for _, o := range applied {
		c.applied[o.ID] = true
	}
	c.reportApplied(ctx, applied, errs)

	if dirty || len(applied) > 0 {
		sess = c.persistApplied(ctx, sess)
	}

	c.session = sess
	c.inSession = sess.HasRole(c.id)
	c.connected = c.inSession && sess.Full()
	c.phase = domain.PhaseOf(sess, c.id)
	c.emitResync(ctx)
}

// restoreApplied re-marks offers this client already applied but whose flag was
// lost to a concurrent overwrite. It reports whether anything changed.
func (c *Client) restoreApplied(sess *domain.Session) bool {
	dirty := false
	for i := range sess.Offers {
		o := &sess.Offers[i]
		if o.Status == domain.OfferAccepted && c.applied[o.ID] && !o.IsApplied(c.id) {
			o.MarkApplied(c.id)
			dirty = true
		}
	}
	return dirty
}

// persistApplied saves the applied flags once. On a conflict it reloads, re-marks
// and retries, returning the record that ended up stored (or the latest seen).
func (c *Client) persistApplied(ctx context.Context, sess *domain.Session) *domain.Session {
	for attempt := 1; attempt <= maxPersistAttempts; attempt++ {
		err := c.store.Save(ctx, c.code, sess)
		if err == nil {
			return sess
		}
		if !errors.Is(err, domain.ErrConflict) {
			c.logger.Warn("Failed to persist applied offers", "code", c.code, "err", err)
			return sess
		}
		c.emitConflict(ctx)
		fresh, ok := c.store.Load(ctx, c.code)
		if !ok {
			return sess
		}
		c.restoreApplied(fresh)
		sess = fresh
	}
	c.logger.Warn("Gave up persisting applied offers", "code", c.code, "attempts", maxPersistAttempts)
	return sess
}

// SendOffer proposes a trade to the partner. Every precondition failure surfaces
// the same trade-failed notice and leaves the session untouched.
func (c *Client) SendOffer(ctx context.Context, d domain.Draft) (*domain.Offer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(ctx, d)
}

// SendDraft sends the current draft.
func (c *Client) SendDraft(ctx context.Context) (*domain.Offer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(ctx, c.draftLocked())
}

func (c *Client) sendLocked(ctx context.Context, d domain.Draft) (*domain.Offer, error) {
	if !c.connected || c.session == nil {
		c.notify(MsgTradeFailed, domain.SeverityWarning)
		return nil, domain.ErrNotConnected
	}
	if err := ledger.ValidateDraft(d, c.resources); err != nil {
		c.logger.Debug("Offer rejected locally", "code", c.code, "err", err)
		c.notify(MsgTradeFailed, domain.SeverityWarning)
		return nil, err
	}
	offer, err := ledger.NewOffer(c.id, c.session.Partner(c.id), d, c.offerIDs)
	if err != nil {
		c.notify(MsgTradeFailed, domain.SeverityWarning)
		return nil, err
	}

	sess := c.session.Clone()
	sess.Offers = append(sess.Offers, offer)
	if err := c.persist(ctx, sess); err != nil {
		return nil, err
	}
	c.notify(MsgOfferSent, domain.SeveritySuccess)
	if c.hooks.OnOfferSent != nil {
		c.hooks.OnOfferSent(ctx, &domain.OfferEvent{
			EventBase: domain.NewEventBase(domain.EventOfferSent, c.id, c.code),
			Offer:     offer.Clone(),
		})
	}
	c.resyncLocked(ctx)
	return &offer, nil
}

// AcceptOffer accepts a pending incoming offer. Resources move on the next resync
// of each side, not here.
func (c *Client) AcceptOffer(ctx context.Context, offerID string) error {
	return c.settle(ctx, offerID, func(o *domain.Offer) error {
		return ledger.Accept(o, c.resources)
	})
}

// RejectOffer rejects a pending incoming offer.
func (c *Client) RejectOffer(ctx context.Context, offerID string) error {
	return c.settle(ctx, offerID, ledger.Reject)
}

func (c *Client) settle(ctx context.Context, offerID string, transition func(*domain.Offer) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return domain.ErrOfferNotFound
	}
	sess := c.session.Clone()
	o := sess.Offer(offerID)
	if o == nil {
		return domain.ErrOfferNotFound
	}
	if o.Status != domain.OfferPending {
		return domain.ErrOfferNotPending
	}
	if o.To != c.id {
		c.notify(MsgTradeFailed, domain.SeverityWarning)
		return fmt.Errorf("%w: offer %s is not addressed to this client", domain.ErrInvalidOffer, offerID)
	}
	if err := transition(o); err != nil {
		c.notify(MsgTradeFailed, domain.SeverityWarning)
		return err
	}
	settled := o.Clone()

	if err := c.persist(ctx, sess); err != nil {
		return err
	}
	if c.hooks.OnOfferSettled != nil {
		c.hooks.OnOfferSettled(ctx, &domain.OfferEvent{
			EventBase: domain.NewEventBase(domain.EventOfferSettled, c.id, c.code),
			Offer:     settled,
		})
	}
	c.resyncLocked(ctx)
	return nil
}

// persist saves sess for the bound code. Failures are surfaced as a notice; a
// conflict also resyncs so the caller sees the winning record.
func (c *Client) persist(ctx context.Context, sess *domain.Session) error {
	err := c.store.Save(ctx, c.code, sess)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrConflict) {
		c.emitConflict(ctx)
		c.notify(MsgConflict, domain.SeverityWarning)
		c.resyncLocked(ctx)
		return err
	}
	c.logger.Error("Failed to save session", "code", c.code, "err", err)
	c.notify(MsgStoreFailed, domain.SeverityError)
	return err
}

// AdoptApplied replays on the local ledger offers that another process sharing
// this client's identity already applied, as listed in ids. Only accepted offers
// in the current session that the record marks applied for this client are
// replayed. It returns the ids adopted.
func (c *Client) AdoptApplied(ctx context.Context, ids []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var adopted []string
	for _, id := range ids {
		if c.applied[id] {
			continue
		}
		o := c.session.Offer(id)
		if o == nil || o.Status != domain.OfferAccepted || !o.IsApplied(c.id) {
			c.logger.Debug("Cannot adopt offer applied elsewhere", "code", c.code, "offer_id", id)
			continue
		}
		replay := o.Clone()
		delete(replay.Applied, c.id)
		ok, err := ledger.Apply(&replay, c.id, c.resources, c.policy)
		if err != nil {
			c.logger.Warn("Failed to adopt offer applied elsewhere", "code", c.code, "offer_id", id, "err", err)
		}
		if !ok {
			continue
		}
		c.applied[id] = true
		adopted = append(adopted, id)
		if c.hooks.OnOfferApplied != nil {
			c.hooks.OnOfferApplied(ctx, &domain.OfferEvent{
				EventBase: domain.NewEventBase(domain.EventOfferApplied, c.id, c.code),
				Offer:     replay,
			})
		}
	}
	return adopted
}

// unbind restores the binding held before a failed Host or Join and rederives
// the local state from it.
func (c *Client) unbind(ctx context.Context, code, joinCode string) {
	c.code = code
	c.joinCode = joinCode
	c.resyncLocked(ctx)
}

// IncomingOffers lists pending offers addressed to the local client.
func (c *Client) IncomingOffers() []domain.Offer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ledger.Incoming(c.session, c.id)
}

// OutgoingOffers lists every offer the local client proposed, with its status.
func (c *Client) OutgoingOffers() []domain.Offer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ledger.Outgoing(c.session, c.id)
}

// Partner returns the other participant's id, or "".
func (c *Client) Partner() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Partner(c.id)
}

// SetDraft replaces the trade draft.
func (c *Client) SetDraft(d domain.Draft) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = d
}

// Draft returns the trade draft, with resource keys defaulted to the first known resource.
func (c *Client) Draft() domain.Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draftLocked()
}

func (c *Client) draftLocked() domain.Draft {
	d := c.draft
	if d.GiveRes != "" && d.ReceiveRes != "" {
		return d
	}
	catalog, ok := c.resources.(ports.ResourceCatalog)
	if !ok {
		return d
	}
	keys := catalog.Keys()
	if len(keys) == 0 {
		return d
	}
	sort.Strings(keys)
	if d.GiveRes == "" {
		d.GiveRes = keys[0]
	}
	if d.ReceiveRes == "" {
		d.ReceiveRes = keys[0]
	}
	return d
}

// Snapshot returns a copy of the local derived state.
func (c *Client) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		ClientID:  c.id,
		Code:      c.code,
		JoinCode:  c.joinCode,
		Phase:     c.phase,
		InSession: c.inSession,
		Connected: c.connected,
		Partner:   c.session.Partner(c.id),
		Session:   c.session.Clone(),
		Draft:     c.draftLocked(),
	}
}

// AppliedOffers returns the ids of offers this client has applied, sorted.
func (c *Client) AppliedOffers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.applied))
	for id := range c.applied {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StatusLabel renders the connection status for display.
func (c *Client) StatusLabel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		partner := c.session.Partner(c.id)
		if partner == "" {
			partner = LabelPartner
		}
		return fmt.Sprintf(LabelConnected, partner)
	}
	if c.inSession {
		return LabelWaiting
	}
	return LabelDisconnected
}

func (c *Client) notify(m Message, severity domain.Severity) {
	text, ok := c.messages[m]
	if !ok {
		text = string(m)
	}
	c.notifier.Notify(text, severity)
}

func (c *Client) reportApplied(ctx context.Context, applied []domain.Offer, errs []error) {
	for _, o := range applied {
		c.notify(MsgTradeApplied, domain.SeveritySuccess)
		if c.hooks.OnOfferApplied != nil {
			c.hooks.OnOfferApplied(ctx, &domain.OfferEvent{
				EventBase: domain.NewEventBase(domain.EventOfferApplied, c.id, c.code),
				Offer:     o,
			})
		}
	}
	if c.hooks.OnOfferApplied == nil {
		return
	}
	for _, err := range errs {
		c.hooks.OnOfferApplied(ctx, &domain.OfferEvent{
			EventBase: domain.NewEventBase(domain.EventOfferApplied, c.id, c.code),
			IsError:   true,
			Err:       err,
		})
	}
}

func (c *Client) emitJoined(ctx context.Context, role string) {
	if c.hooks.OnSessionJoined == nil {
		return
	}
	c.hooks.OnSessionJoined(ctx, &domain.SessionEvent{
		EventBase: domain.NewEventBase(domain.EventSessionJoined, c.id, c.code),
		Phase:     c.phase,
		Role:      role,
	})
}

func (c *Client) emitResync(ctx context.Context) {
	if c.hooks.OnResync == nil {
		return
	}
	c.hooks.OnResync(ctx, &domain.SessionEvent{
		EventBase: domain.NewEventBase(domain.EventResync, c.id, c.code),
		Phase:     c.phase,
	})
}

func (c *Client) emitConflict(ctx context.Context) {
	if c.hooks.OnConflict == nil {
		return
	}
	c.hooks.OnConflict(ctx, &domain.SessionEvent{
		EventBase: domain.NewEventBase(domain.EventConflict, c.id, c.code),
		Phase:     c.phase,
	})
}
