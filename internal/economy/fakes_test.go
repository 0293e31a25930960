package economy

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"wallet_sync/internal/cache"
	"wallet_sync/internal/config"
	"wallet_sync/internal/directory"
	"wallet_sync/internal/domain"
	"wallet_sync/internal/events"
	"wallet_sync/internal/leaderboard"
	"wallet_sync/internal/store"
	"wallet_sync/internal/txid"
	"wallet_sync/internal/workers"
)

// memGateway is an in-memory store.Gateway that counts calls and can be
// told to fail
type memGateway struct {
	mu           sync.Mutex
	balances     map[string]decimal.Decimal
	profiles     map[string]domain.Profile
	settings     map[string]domain.Settings
	transactions []domain.Transaction
	touches      map[string]int64
	seq          int64
	calls        map[string]int
	fail         map[string]error // by method name
	failSetFor   map[string]error // SetBalance failures by account
	existsAlways bool
	afterRead    func(id string) // runs after GetBalance read, outside mu
}

var _ store.Gateway = (*memGateway)(nil)

func newMemGateway() *memGateway {
	return &memGateway{
		balances:   map[string]decimal.Decimal{},
		profiles:   map[string]domain.Profile{},
		settings:   map[string]domain.Settings{},
		touches:    map[string]int64{},
		calls:      map[string]int{},
		fail:       map[string]error{},
		failSetFor: map[string]error{},
	}
}

func (g *memGateway) enter(method string) error {
	g.calls[method]++
	return g.fail[method]
}

func (g *memGateway) count(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[method]
}

func (g *memGateway) setFail(method string, err error) {
	g.mu.Lock()
	g.fail[method] = err
	g.mu.Unlock()
}

func (g *memGateway) seed(id, name string, amount int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.profiles[id] = domain.Profile{AccountID: id, Username: id, DisplayName: name, Role: domain.RoleUser}
	g.balances[id] = decimal.NewFromInt(amount)
}

func (g *memGateway) stored(id string) decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balances[id]
}

func (g *memGateway) rows(id string) []domain.Transaction {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []domain.Transaction
	for _, tx := range g.transactions {
		if tx.AccountID == id {
			out = append(out, tx)
		}
	}
	return out
}

// pauseFirstRead blocks the first GetBalance after it has read the value
// until release is closed. read is closed once the value is read.
func (g *memGateway) pauseFirstRead() (read, release chan struct{}) {
	read, release = make(chan struct{}), make(chan struct{})
	var once sync.Once
	g.mu.Lock()
	g.afterRead = func(string) {
		once.Do(func() {
			close(read)
			<-release
		})
	}
	g.mu.Unlock()
	return read, release
}

func (g *memGateway) GetBalance(_ context.Context, id string) (decimal.Decimal, error) {
	g.mu.Lock()
	err := g.enter("GetBalance")
	amount, ok := g.balances[id]
	hook := g.afterRead
	g.mu.Unlock()
	if err != nil {
		return decimal.Zero, err
	}
	if hook != nil {
		hook(id)
	}
	if !ok {
		return decimal.Zero, store.ErrNotFound
	}
	return amount, nil
}

func (g *memGateway) SetBalance(_ context.Context, id string, amount decimal.Decimal, record *domain.Transaction) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("SetBalance"); err != nil {
		return err
	}
	if err := g.failSetFor[id]; err != nil {
		return err
	}
	g.balances[id] = amount
	if record != nil {
		g.transactions = append(g.transactions, *record)
	}
	return nil
}

func (g *memGateway) GetAllBalances(context.Context) ([]domain.LeaderboardEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("GetAllBalances"); err != nil {
		return nil, err
	}
	out := make([]domain.LeaderboardEntry, 0, len(g.balances))
	for id, amount := range g.balances {
		out = append(out, domain.LeaderboardEntry{AccountID: id, Amount: amount, DisplayName: g.profiles[id].DisplayName})
	}
	return out, nil
}

func (g *memGateway) CreateAccount(_ context.Context, p *domain.Profile) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("CreateAccount"); err != nil {
		return err
	}
	g.profiles[p.AccountID] = *p
	g.balances[p.AccountID] = decimal.Zero
	g.settings[p.AccountID] = domain.DefaultSettings(p.AccountID)
	return nil
}

func (g *memGateway) GetProfile(_ context.Context, id string) (*domain.Profile, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("GetProfile"); err != nil {
		return nil, err
	}
	p, ok := g.profiles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (g *memGateway) GetProfileByUsername(_ context.Context, username string) (*domain.Profile, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("GetProfileByUsername"); err != nil {
		return nil, err
	}
	for _, p := range g.profiles {
		if p.Username == username {
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (g *memGateway) UpsertProfile(_ context.Context, p *domain.Profile) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("UpsertProfile"); err != nil {
		return err
	}
	g.profiles[p.AccountID] = *p
	return nil
}

func (g *memGateway) TouchLastSeen(_ context.Context, id string, at int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("TouchLastSeen"); err != nil {
		return err
	}
	g.touches[id] = at
	return nil
}

func (g *memGateway) GetSettings(_ context.Context, id string) (*domain.Settings, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("GetSettings"); err != nil {
		return nil, err
	}
	st, ok := g.settings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &st, nil
}

func (g *memGateway) UpsertSettings(_ context.Context, st *domain.Settings) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("UpsertSettings"); err != nil {
		return err
	}
	g.settings[st.AccountID] = *st
	return nil
}

func (g *memGateway) GetTransactions(_ context.Context, id string, limit int) ([]domain.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("GetTransactions"); err != nil {
		return nil, err
	}
	var out []domain.Transaction
	for _, tx := range g.transactions {
		if tx.AccountID == id {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (g *memGateway) AppendTransaction(_ context.Context, tx *domain.Transaction) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("AppendTransaction"); err != nil {
		return err
	}
	g.transactions = append(g.transactions, *tx)
	return nil
}

func (g *memGateway) DeleteTransactions(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("DeleteTransactions"); err != nil {
		return err
	}
	kept := g.transactions[:0]
	for _, tx := range g.transactions {
		if tx.AccountID != id {
			kept = append(kept, tx)
		}
	}
	g.transactions = kept
	return nil
}

func (g *memGateway) TransactionExists(_ context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("TransactionExists"); err != nil {
		return false, err
	}
	if g.existsAlways {
		return true, nil
	}
	for _, tx := range g.transactions {
		if tx.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (g *memGateway) NextSequence(context.Context, string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("NextSequence"); err != nil {
		return 0, err
	}
	g.seq++
	return g.seq, nil
}

// inbox records delivered notifications
type inbox struct {
	mu  sync.Mutex
	got []Notification
}

func (i *inbox) Notify(n Notification) {
	i.mu.Lock()
	i.got = append(i.got, n)
	i.mu.Unlock()
}

func (i *inbox) all() []Notification {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Notification(nil), i.got...)
}

type testEnv struct {
	svc    *Service
	gw     *memGateway
	inbox  *inbox
	cfg    *config.Store
	caches *cache.Caches
	board  *leaderboard.Refresher
}

type envOption func(*Deps, *config.Config)

func withBus(bus events.Transport) envOption {
	return func(d *Deps, cfg *config.Config) {
		d.Events = events.New(events.Options{
			ProcessID:     d.ProcessID,
			ChannelPrefix: cfg.Distributed.ChannelPrefix,
			Transport:     bus,
		})
	}
}

func withDirectory(dir directory.Directory) envOption {
	return func(d *Deps, _ *config.Config) { d.Directory = dir }
}

func withNow(now func() time.Time) envOption {
	return func(d *Deps, _ *config.Config) { d.Now = now }
}

func withConfig(fn func(*config.Config)) envOption {
	return func(_ *Deps, cfg *config.Config) { fn(cfg) }
}

func newEnv(t *testing.T, gw *memGateway, process string, opts ...envOption) *testEnv {
	t.Helper()
	cfg := config.Defaults()
	cfg.ProcessID = process

	d := Deps{Gateway: gw, ProcessID: process, Directory: directory.Noop{}}
	for _, opt := range opts {
		opt(&d, &cfg)
	}

	d.Config = config.NewStore(&cfg)
	d.Caches = cache.New(cfg.Cache, nil, nil)
	d.Board = leaderboard.New(leaderboard.Options{Source: gw, Mirror: d.Directory, TTL: cfg.Leaderboard.TTL})
	d.IDs = txid.New(cfg.TxID, gw)
	d.Pool = workers.NewPool(2, 64, nil)
	d.Owner = workers.NewOwner(64, nil)
	box := &inbox{}
	d.Notifier = box

	svc := New(d)
	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	t.Cleanup(func() {
		cancel()
		stop, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		require.NoError(t, svc.Close(stop))
		require.NoError(t, d.Owner.Stop(stop))
		require.NoError(t, d.Pool.Shutdown(stop))
	})
	return &testEnv{svc: svc, gw: gw, inbox: box, cfg: d.Config, caches: d.Caches, board: d.Board}
}
