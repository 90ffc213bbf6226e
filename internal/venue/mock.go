package venue

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"main/internal/schema"
)

// Profile controls the pricing variance and failure behavior of a simulated
// venue.
type Profile struct {
	FeeRate       float64
	VarianceMin   float64
	VarianceMax   float64
	ImpactMin     float64
	ImpactMax     float64
	SettleSlipMax float64
	FailRate      float64
	DelayMin      time.Duration
	DelayMax      time.Duration
}

// Validate ensures the profile is within supported ranges.
func (p Profile) Validate() error {
	if p.FeeRate < 0 || p.FeeRate >= 1 {
		return fmt.Errorf("feeRate must be within [0, 1)")
	}
	if p.VarianceMin > p.VarianceMax {
		return fmt.Errorf("varianceMin must be <= varianceMax")
	}
	if p.ImpactMin < 0 || p.ImpactMin > p.ImpactMax {
		return fmt.Errorf("impact range must be 0 <= min <= max")
	}
	if p.SettleSlipMax < 0 || p.SettleSlipMax > 1 {
		return fmt.Errorf("settleSlipMax must be within [0, 1]")
	}
	if p.FailRate < 0 || p.FailRate > 1 {
		return fmt.Errorf("failRate must be within [0, 1]")
	}
	if p.DelayMin < 0 || p.DelayMin > p.DelayMax {
		return fmt.Errorf("delay range must be 0 <= min <= max")
	}
	return nil
}

// RaydiumProfile is the default profile for the Raydium-equivalent venue.
func RaydiumProfile() Profile {
	return Profile{
		FeeRate:       0.003,
		VarianceMin:   -0.02,
		VarianceMax:   0.02,
		ImpactMin:     0.001,
		ImpactMax:     0.003,
		SettleSlipMax: 0.01,
		FailRate:      0.05,
		DelayMin:      5 * time.Millisecond,
		DelayMax:      25 * time.Millisecond,
	}
}

// MeteoraProfile is the default profile for the Meteora-equivalent venue.
func MeteoraProfile() Profile {
	return Profile{
		FeeRate:       0.002,
		VarianceMin:   -0.03,
		VarianceMax:   0.02,
		ImpactMin:     0.0015,
		ImpactMax:     0.004,
		SettleSlipMax: 0.01,
		FailRate:      0.05,
		DelayMin:      5 * time.Millisecond,
		DelayMax:      25 * time.Millisecond,
	}
}

// Mock simulates a liquidity venue: bounded latency, stochastic pricing
// variance, settlement slippage, and an unconditional failure rate.
type Mock struct {
	name       string
	profile    Profile
	basePrices map[string]float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMock creates a simulated venue. basePrices maps "IN/OUT" pairs to a
// reference price. Seed 0 derives a seed from the clock.
func NewMock(name string, profile Profile, basePrices map[string]float64, seed int64) (*Mock, error) {
	if name == "" {
		return nil, fmt.Errorf("venue name is empty")
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile for %s: %w", name, err)
	}
	if seed == 0 {
		seed = time.Now().UTC().UnixNano()
	}
	prices := make(map[string]float64, len(basePrices))
	for pair, price := range basePrices {
		prices[pair] = price
	}
	return &Mock{
		name:       name,
		profile:    profile,
		basePrices: prices,
		rng:        rand.New(rand.NewSource(seed)),
	}, nil
}

// NewRaydium creates the Raydium-equivalent mock venue.
func NewRaydium(basePrices map[string]float64, seed int64) (*Mock, error) {
	return NewMock("raydium", RaydiumProfile(), basePrices, seed)
}

// NewMeteora creates the Meteora-equivalent mock venue.
func NewMeteora(basePrices map[string]float64, seed int64) (*Mock, error) {
	return NewMock("meteora", MeteoraProfile(), basePrices, seed)
}

func (m *Mock) Name() string {
	return m.name
}

// Quote prices the pair with the profile's variance applied to the base
// price. The quoted output amount is net of the venue fee.
func (m *Mock) Quote(ctx context.Context, inputAsset, outputAsset string, amountIn float64) (schema.Quote, error) {
	base, ok := m.basePrices[pairKey(inputAsset, outputAsset)]
	if !ok {
		return schema.Quote{}, fmt.Errorf("%w: %s/%s on %s", ErrUnknownPair, inputAsset, outputAsset, m.name)
	}
	if err := m.wait(ctx); err != nil {
		return schema.Quote{}, err
	}

	m.mu.Lock()
	variance := m.randRange(m.profile.VarianceMin, m.profile.VarianceMax)
	impact := m.randRange(m.profile.ImpactMin, m.profile.ImpactMax)
	m.mu.Unlock()

	price := base * (1 + variance)
	return schema.Quote{
		Venue:       m.name,
		InputAsset:  inputAsset,
		OutputAsset: outputAsset,
		AmountIn:    amountIn,
		Price:       price,
		AmountOut:   amountIn * price * (1 - m.profile.FeeRate),
		FeeRate:     m.profile.FeeRate,
		PriceImpact: impact,
		Timestamp:   time.Now().UTC(),
	}, nil
}

// Settle executes the quote. The realized price slips below the quoted price
// by a bounded random factor; a slip beyond the order's tolerance fails the
// settlement, as does the profile's unconditional failure roll.
func (m *Mock) Settle(ctx context.Context, order *schema.Order, quote schema.Quote) (schema.Settlement, error) {
	if err := m.wait(ctx); err != nil {
		return schema.Settlement{}, err
	}

	m.mu.Lock()
	congested := m.rng.Float64() < m.profile.FailRate
	slip := m.randRange(0, m.profile.SettleSlipMax)
	reference := m.reference()
	m.mu.Unlock()

	if congested {
		return schema.Settlement{}, fmt.Errorf("%w: %s congestion", ErrVenueUnavailable, m.name)
	}
	if slip > order.Slippage {
		return schema.Settlement{}, fmt.Errorf("%w: realized slip %.4f, tolerance %.4f", ErrSlippageExceeded, slip, order.Slippage)
	}

	executed := quote.Price * (1 - slip)
	return schema.Settlement{
		Venue:         m.name,
		Reference:     reference,
		ExecutedPrice: executed,
		AmountOut:     order.AmountIn * executed * (1 - m.profile.FeeRate),
		SettledAt:     time.Now().UTC(),
	}, nil
}

func (m *Mock) wait(ctx context.Context) error {
	m.mu.Lock()
	delay := m.profile.DelayMin
	if span := m.profile.DelayMax - m.profile.DelayMin; span > 0 {
		delay += time.Duration(m.rng.Int63n(int64(span) + 1))
	}
	m.mu.Unlock()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// randRange must be called with the mutex held.
func (m *Mock) randRange(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + m.rng.Float64()*(max-min)
}

// reference must be called with the mutex held.
func (m *Mock) reference() string {
	buf := make([]byte, 32)
	for i := range buf {
		buf[i] = byte(m.rng.Intn(256))
	}
	return hex.EncodeToString(buf)
}

func pairKey(inputAsset, outputAsset string) string {
	return inputAsset + "/" + outputAsset
}
