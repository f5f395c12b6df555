package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/citylink/pkg/adapters/memory"
	"github.com/aretw0/citylink/pkg/domain"
	"github.com/aretw0/citylink/pkg/ledger"
	"github.com/aretw0/citylink/pkg/ports"
	"github.com/aretw0/citylink/pkg/session"
	"github.com/aretw0/citylink/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notice struct {
	text     string
	severity domain.Severity
}

// recorder collects notices.
type recorder struct {
	mu      sync.Mutex
	notices []notice
}

func (r *recorder) Notify(message string, severity domain.Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice{message, severity})
}

func (r *recorder) last() notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return notice{}
	}
	return r.notices[len(r.notices)-1]
}

type participant struct {
	client *session.Client
	ledger *memory.Ledger
	notes  *recorder
}

func newParticipant(bus *memory.Bus, id string, amounts map[string]float64, opts ...session.Option) participant {
	l := memory.NewLedgerFromAmounts(amounts)
	rec := &recorder{}
	opts = append([]session.Option{
		session.WithClientID(id),
		session.WithNotifier(rec),
	}, opts...)
	c := session.NewClient(store.New(bus.View(id)), l, opts...)
	return participant{client: c, ledger: l, notes: rec}
}

func fixedCode(code string) session.Option {
	return session.WithCodeGenerator(func() string { return code })
}

func woodForStone() domain.Draft {
	return domain.Draft{GiveRes: "wood", GiveAmount: 100, ReceiveRes: "stone", ReceiveAmount: 50}
}

func TestClient_TradeRoundTrip(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus()
	h := newParticipant(bus, "H", map[string]float64{"wood": 500, "stone": 10}, fixedCode("483920"))
	g := newParticipant(bus, "G", map[string]float64{"wood": 0, "stone": 200})

	code, err := h.client.Host(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "483920", code)
	assert.Equal(t, domain.PhaseHosting, h.client.Snapshot().Phase)

	require.NoError(t, g.client.Join(ctx, "483920"))
	h.client.Resync(ctx)

	assert.True(t, h.client.Snapshot().Connected)
	assert.True(t, g.client.Snapshot().Connected)
	assert.Equal(t, "G", h.client.Partner())
	assert.Equal(t, "H", g.client.Partner())

	offer, err := h.client.SendOffer(ctx, woodForStone())
	require.NoError(t, err)
	assert.Equal(t, "G", offer.To)
	assert.Equal(t, domain.OfferPending, offer.Status)

	g.client.Resync(ctx)
	incoming := g.client.IncomingOffers()
	require.Len(t, incoming, 1)
	assert.Equal(t, offer.ID, incoming[0].ID)

	require.NoError(t, g.client.AcceptOffer(ctx, offer.ID))
	assert.Equal(t, 100.0, g.ledger.Amount("wood"))
	assert.Equal(t, 150.0, g.ledger.Amount("stone"))

	h.client.Resync(ctx)
	assert.Equal(t, 400.0, h.ledger.Amount("wood"))
	assert.Equal(t, 60.0, h.ledger.Amount("stone"))

	g.client.Resync(ctx)
	for _, p := range []participant{h, g} {
		snap := p.client.Snapshot()
		o := snap.Session.Offer(offer.ID)
		require.NotNil(t, o)
		assert.Equal(t, domain.OfferAccepted, o.Status)
		assert.True(t, o.IsApplied("H"), "H applied in %s's view", snap.ClientID)
		assert.True(t, o.IsApplied("G"), "G applied in %s's view", snap.ClientID)
	}
	assert.Equal(t, []string{offer.ID}, h.client.AppliedOffers())
	assert.Equal(t, []string{offer.ID}, g.client.AppliedOffers())

	// Further resyncs never move resources again.
	h.client.Resync(ctx)
	g.client.Resync(ctx)
	assert.Equal(t, 400.0, h.ledger.Amount("wood"))
	assert.Equal(t, 100.0, g.ledger.Amount("wood"))
}

func TestClient_HostLeavesGuestBehind(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus()
	h := newParticipant(bus, "H", nil, fixedCode("111111"))
	g := newParticipant(bus, "G", nil)

	_, err := h.client.Host(ctx, "")
	require.NoError(t, err)
	require.NoError(t, g.client.Join(ctx, "111111"))

	require.NoError(t, h.client.Disconnect(ctx))
	g.client.Resync(ctx)

	hs := h.client.Snapshot()
	assert.False(t, hs.InSession)
	assert.Empty(t, hs.Code)
	assert.Nil(t, hs.Session)

	gs := g.client.Snapshot()
	require.NotNil(t, gs.Session)
	assert.Equal(t, "", gs.Session.Host)
	assert.Equal(t, "G", gs.Session.Guest)
	assert.True(t, gs.InSession)
	assert.False(t, gs.Connected)
	assert.Equal(t, domain.PhaseGuesting, gs.Phase)
	assert.Equal(t, session.LabelWaiting, g.client.StatusLabel())
	assert.Equal(t, session.LabelDisconnected, h.client.StatusLabel())

	// A new host can take over the vacant role.
	n := newParticipant(bus, "N", nil)
	require.NoError(t, n.client.Join(ctx, "111111"))
	assert.True(t, n.client.Snapshot().Connected)
	assert.Equal(t, "G", n.client.Partner())
}

func TestClient_LastOneOutDeletesSession(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus()
	h := newParticipant(bus, "H", nil, fixedCode("222222"))
	g := newParticipant(bus, "G", nil)

	_, err := h.client.Host(ctx, "")
	require.NoError(t, err)
	require.NoError(t, h.client.Disconnect(ctx))

	err = g.client.Join(ctx, "222222")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Equal(t, session.DefaultMessages[session.MsgInvalidCode], g.notes.last().text)

	keys, err := bus.View("observer").Keys(ctx, domain.DefaultKeyPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestClient_CapacityInvariant(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus()
	h := newParticipant(bus, "H", nil, fixedCode("333333"))
	g := newParticipant(bus, "G", nil)
	x := newParticipant(bus, "X", nil)

	_, err := h.client.Host(ctx, "")
	require.NoError(t, err)
	require.NoError(t, g.client.Join(ctx, "333333"))

	assert.ErrorIs(t, x.client.Join(ctx, "333333"), domain.ErrSessionFull)
	_, err = x.client.Host(ctx, "333333")
	assert.ErrorIs(t, err, domain.ErrSessionFull)
	assert.Equal(t, domain.SeverityWarning, x.notes.last().severity)
	assert.Equal(t, domain.PhaseDisconnected, x.client.Snapshot().Phase)

	// Rejoining by an occupant changes nothing.
	require.NoError(t, g.client.Join(ctx, "333333"))
	require.NoError(t, h.client.Join(ctx, "333333"))

	s, ok := store.New(bus.View("observer")).Load(ctx, "333333")
	require.True(t, ok)
	assert.Equal(t, "H", s.Host)
	assert.Equal(t, "G", s.Guest)
}

func TestClient_GuestPromotesItselfToHost(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus()
	h := newParticipant(bus, "H", nil, fixedCode("444444"))
	g := newParticipant(bus, "G", nil)

	_, err := h.client.Host(ctx, "")
	require.NoError(t, err)
	require.NoError(t, h.client.Disconnect(ctx))

	// Session was deleted, so hosting the same code creates it afresh.
	_, err = g.client.Host(ctx, "444444")
	require.NoError(t, err)
	require.NoError(t, h.client.Join(ctx, "444444"))

	_, err = h.client.Host(ctx, "444444")
	require.NoError(t, err)

	s, ok := store.New(bus.View("observer")).Load(ctx, "444444")
	require.True(t, ok)
	assert.Equal(t, "H", s.Host)
	assert.Equal(t, "", s.Guest)
	assert.NotEqual(t, s.Host, s.Guest)
}

func TestClient_JoinNormalizesCode(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus()
	h := newParticipant(bus, "H", nil)
	g := newParticipant(bus, "G", nil)

	code, err := h.client.Host(ctx, "ab12")
	require.NoError(t, err)
	assert.Equal(t, "AB12", code)

	require.NoError(t, g.client.Join(ctx, " ab12 "))
	assert.Equal(t, "AB12", g.client.Snapshot().Code)
	assert.True(t, g.client.Snapshot().Connected)

	assert.ErrorIs(t, g.client.Join(ctx, "   "), domain.ErrInvalidCode)
}

func TestClient_SendOfferPreconditions(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus()
	h := newParticipant(bus, "H", map[string]float64{"wood": 50, "stone": 0}, fixedCode("555555"))
	g := newParticipant(bus, "G", map[string]float64{"wood": 0, "stone": 0})

	_, err := h.client.SendOffer(ctx, woodForStone())
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	_, err = h.client.Host(ctx, "")
	require.NoError(t, err)
	_, err = h.client.SendOffer(ctx, woodForStone())
	assert.ErrorIs(t, err, domain.ErrNotConnected, "hosting alone is not connected")

	require.NoError(t, g.client.Join(ctx, "555555"))
	h.client.Resync(ctx)

	cases := map[string]domain.Draft{
		"insufficient": woodForStone(),
		"zero amount":  {GiveRes: "wood", GiveAmount: 0, ReceiveRes: "stone", ReceiveAmount: 1},
		"unknown":      {GiveRes: "gold", GiveAmount: 1, ReceiveRes: "stone", ReceiveAmount: 1},
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.client.SendOffer(ctx, d)
			assert.Error(t, err)
			assert.Equal(t, session.DefaultMessages[session.MsgTradeFailed], h.notes.last().text)
		})
	}
	assert.Empty(t, h.client.OutgoingOffers())
}

func TestClient_RejectAndSettledOffers(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus()
	h := newParticipant(bus, "H", map[string]float64{"wood": 500, "stone": 0}, fixedCode("666666"))
	g := newParticipant(bus, "G", map[string]float64{"wood": 0, "stone": 500})

	_, err := h.client.Host(ctx, "")
	require.NoError(t, err)
	require.NoError(t, g.client.Join(ctx, "666666"))
	h.client.Resync(ctx)

	offer, err := h.client.SendOffer(ctx, woodForStone())
	require.NoError(t, err)

	// Only the addressee may settle it.
	assert.ErrorIs(t, h.client.AcceptOffer(ctx, offer.ID), domain.ErrInvalidOffer)

	g.client.Resync(ctx)
	require.NoError(t, g.client.RejectOffer(ctx, offer.ID))
	assert.ErrorIs(t, g.client.AcceptOffer(ctx, offer.ID), domain.ErrOfferNotPending)
	assert.ErrorIs(t, g.client.AcceptOffer(ctx, "offer-missing"), domain.ErrOfferNotFound)
	assert.Empty(t, g.client.IncomingOffers())

	h.client.Resync(ctx)
	out := h.client.OutgoingOffers()
	require.Len(t, out, 1)
	assert.Equal(t, domain.OfferRejected, out[0].Status)
	assert.Equal(t, 500.0, h.ledger.Amount("wood"))
}

func TestClient_DraftDefaults(t *testing.T) {
	c := session.NewClient(store.New(memory.NewChannel()), memory.NewLedgerFromAmounts(map[string]float64{"wood": 1, "food": 2}))

	d := c.Draft()
	assert.Equal(t, "food", d.GiveRes)
	assert.Equal(t, "food", d.ReceiveRes)

	c.SetDraft(domain.Draft{GiveRes: "wood", GiveAmount: 1})
	d = c.Draft()
	assert.Equal(t, "wood", d.GiveRes)
	assert.Equal(t, "food", d.ReceiveRes)
	assert.NotEmpty(t, c.ID())
}

func TestClient_RestoresAppliedOffers(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus()
	st := store.New(bus.View("observer"))

	s := domain.NewSession("777777", "H")
	s.Guest = "G"
	s.Offers = []domain.Offer{{
		ID: "offer-1-aaaa", From: "H", To: "G", Status: domain.OfferAccepted,
		Give:    domain.Resource{Key: "wood", Amount: 100},
		Receive: domain.Resource{Key: "stone", Amount: 50},
		Applied: map[string]bool{},
	}}
	require.NoError(t, st.Save(ctx, "777777", s))

	l := memory.NewLedgerFromAmounts(map[string]float64{"wood": 500, "stone": 0})
	c := session.NewClient(store.New(bus.View("H")), l,
		session.WithClientID("H"),
		session.WithBinding("777777", ""),
		session.WithAppliedOffers([]string{"offer-1-aaaa"}),
	)
	c.Resync(ctx)

	// Already applied before the flag was lost: nothing moves, the flag comes back.
	assert.Equal(t, 500.0, l.Amount("wood"))
	loaded, ok := st.Load(ctx, "777777")
	require.True(t, ok)
	assert.True(t, loaded.Offers[0].IsApplied("H"))
}

func TestClient_AtomicPolicyRetriesPartialFailure(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus()
	st := store.New(bus.View("observer"))

	s := domain.NewSession("888888", "H")
	s.Guest = "G"
	s.Offers = []domain.Offer{{
		ID: "offer-1-aaaa", From: "H", To: "G", Status: domain.OfferAccepted,
		Give:    domain.Resource{Key: "wood", Amount: 100},
		Receive: domain.Resource{Key: "stone", Amount: 50},
		Applied: map[string]bool{},
	}}
	require.NoError(t, st.Save(ctx, "888888", s))

	l := memory.NewLedger(map[string]memory.Stock{"wood": {Amount: 500}, "stone": {Amount: 0}})
	refusing := &refusingLedger{Ledger: l, refuse: "stone"}
	c := session.NewClient(store.New(bus.View("H")), refusing,
		session.WithClientID("H"),
		session.WithBinding("888888", ""),
		session.WithApplyPolicy(ledger.Atomic),
	)

	c.Resync(ctx)
	assert.Equal(t, 500.0, l.Amount("wood"), "debit rolled back")
	assert.Empty(t, c.AppliedOffers())

	refusing.refuse = ""
	c.Resync(ctx)
	assert.Equal(t, 400.0, l.Amount("wood"))
	assert.Equal(t, 50.0, l.Amount("stone"))
	assert.Equal(t, []string{"offer-1-aaaa"}, c.AppliedOffers())
}

// refusingLedger refuses credits to one resource.
type refusingLedger struct {
	*memory.Ledger
	mu     sync.Mutex
	refuse string
}

func (r *refusingLedger) ApplyDelta(key string, delta float64, bypassCap bool) bool {
	r.mu.Lock()
	refuse := r.refuse
	r.mu.Unlock()
	if key == refuse && delta > 0 {
		return false
	}
	return r.Ledger.ApplyDelta(key, delta, bypassCap)
}

func TestClient_OptimisticConflict(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus()
	var conflicts int
	var mu sync.Mutex
	hooks := domain.LifecycleHooks{
		OnConflict: func(context.Context, *domain.SessionEvent) {
			mu.Lock()
			conflicts++
			mu.Unlock()
		},
	}
	h := session.NewClient(store.New(bus.View("H"), store.WithOptimisticConcurrency()),
		memory.NewLedgerFromAmounts(map[string]float64{"wood": 500, "stone": 0}),
		session.WithClientID("H"), session.WithCodeGenerator(func() string { return "999999" }),
		session.WithLifecycleHooks(hooks))
	g := session.NewClient(store.New(bus.View("G"), store.WithOptimisticConcurrency()),
		memory.NewLedgerFromAmounts(map[string]float64{"stone": 500, "wood": 0}),
		session.WithClientID("G"))

	_, err := h.Host(ctx, "")
	require.NoError(t, err)
	require.NoError(t, g.Join(ctx, "999999"))

	// H still holds the pre-join version, so its write is stale.
	_, err = h.SendOffer(ctx, woodForStone())
	require.ErrorIs(t, err, domain.ErrNotConnected)
	h.Resync(ctx)

	_, err = g.SendOffer(ctx, domain.Draft{GiveRes: "stone", GiveAmount: 1, ReceiveRes: "wood", ReceiveAmount: 1})
	require.NoError(t, err)

	_, err = h.SendOffer(ctx, woodForStone())
	require.ErrorIs(t, err, domain.ErrConflict)
	mu.Lock()
	assert.Equal(t, 1, conflicts)
	mu.Unlock()

	// The conflict resynced H, so a retry succeeds and keeps G's offer.
	_, err = h.SendOffer(ctx, woodForStone())
	require.NoError(t, err)
	h.Resync(ctx)
	assert.Len(t, h.Snapshot().Session.Offers, 2)
}

func TestClient_WatchResyncsOnPeerWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := memory.NewBus()
	h := newParticipant(bus, "H", nil, fixedCode("123456"))
	g := newParticipant(bus, "G", nil)

	_, err := h.client.Host(ctx, "")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- h.client.Watch(ctx) }()

	// The subscription may not be live yet, so the peer keeps rewriting its seat.
	require.Eventually(t, func() bool {
		_ = g.client.Join(ctx, "123456")
		return h.client.Snapshot().Connected
	}, 3*time.Second, 20*time.Millisecond)

	assert.Equal(t, "G", h.client.Partner())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

// flakyChannel fails every Put while broken is set.
type flakyChannel struct {
	ports.KeyValueChannel
	broken atomic.Bool
}

func (f *flakyChannel) Put(ctx context.Context, key string, value []byte) error {
	if f.broken.Load() {
		return errors.New("store unavailable")
	}
	return f.KeyValueChannel.Put(ctx, key, value)
}

func TestClient_FailedSaveKeepsPreviousBinding(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus()

	hostCh := &flakyChannel{KeyValueChannel: bus.View("H")}
	h := session.NewClient(store.New(hostCh), memory.NewLedgerFromAmounts(nil), session.WithClientID("H"))
	_, err := h.Host(ctx, "111111")
	require.NoError(t, err)

	hostCh.broken.Store(true)
	_, err = h.Host(ctx, "222222")
	require.Error(t, err)

	snap := h.Snapshot()
	assert.Equal(t, "111111", snap.Code)
	assert.Equal(t, domain.PhaseHosting, snap.Phase)
	assert.True(t, snap.InSession)

	guestCh := &flakyChannel{KeyValueChannel: bus.View("G")}
	guestCh.broken.Store(true)
	g := session.NewClient(store.New(guestCh), memory.NewLedgerFromAmounts(nil), session.WithClientID("G"))
	require.Error(t, g.Join(ctx, "111111"))

	snap = g.Snapshot()
	assert.Empty(t, snap.Code)
	assert.Empty(t, snap.JoinCode)
	assert.Equal(t, domain.PhaseDisconnected, snap.Phase)
	assert.Nil(t, snap.Session)

	stored, ok := store.New(bus.View("observer")).Load(ctx, "111111")
	require.True(t, ok)
	assert.Equal(t, "H", stored.Host)
	assert.Empty(t, stored.Guest)
}
