// Package txid hands out unique transaction ids, either from a database
// sequence or at random with a bounded number of collision checks.
package txid

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"wallet_sync/internal/config"
)

// ErrIDGenerationExhausted is returned when every random attempt collided
var ErrIDGenerationExhausted = errors.New("txid: no free transaction id within the attempt bound")

// SequenceName is the database sequence sequential ids come from
const SequenceName = "transactions"

// reservation keeps freshly issued ids out of circulation until their rows exist
const reservation = time.Minute

// Backend is the part of the persistence gateway ids are checked against
type Backend interface {
	TransactionExists(ctx context.Context, id string) (bool, error)
	NextSequence(ctx context.Context, name string) (int64, error)
}

// Generator issues transaction ids
type Generator struct {
	backend  Backend
	reserved *gocache.Cache

	mu   sync.RWMutex
	cfg  config.TxIDConfig
	intn func(n int) int
}

func New(cfg config.TxIDConfig, backend Backend) *Generator {
	return &Generator{
		backend:  backend,
		reserved: gocache.New(reservation, 2*reservation),
		cfg:      cfg,
		intn:     rand.IntN,
	}
}

// Apply switches to a new configuration
func (g *Generator) Apply(cfg config.TxIDConfig) {
	g.mu.Lock()
	g.cfg = cfg
	g.mu.Unlock()
}

// SetRand replaces the random source
func (g *Generator) SetRand(intn func(n int) int) {
	g.mu.Lock()
	g.intn = intn
	g.mu.Unlock()
}

// Next returns a transaction id no other transaction uses
func (g *Generator) Next(ctx context.Context) (string, error) {
	g.mu.RLock()
	cfg, intn := g.cfg, g.intn
	g.mu.RUnlock()

	if cfg.Strategy == config.TxIDSequential {
		n, err := g.backend.NextSequence(ctx, SequenceName)
		if err != nil {
			return "", fmt.Errorf("next transaction sequence: %w", err)
		}
		return strconv.FormatInt(n, 10), nil
	}

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		id := randomID(cfg.Alphabet, cfg.Length, intn)
		if err := g.reserved.Add(id, struct{}{}, gocache.DefaultExpiration); err != nil {
			continue // Issued moments ago and possibly not written yet
		}
		exists, err := g.backend.TransactionExists(ctx, id)
		if err != nil {
			g.reserved.Delete(id)
			return "", fmt.Errorf("check transaction id: %w", err)
		}
		if !exists {
			return id, nil
		}
	}
	return "", ErrIDGenerationExhausted
}

func randomID(alphabet string, length int, intn func(n int) int) string {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(alphabet[intn(len(alphabet))])
	}
	return b.String()
}
