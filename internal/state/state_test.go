package state

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	s := New(DefaultTunables(), []string{"KRW-BTC", "KRW-ETH", "KRW-XRP"})

	assert.Equal(t, 0.0, s.Ratio())
	assert.Equal(t, 250000.0, s.MinTradeAmount())
	assert.Equal(t, []string{"KRW-BTC", "KRW-ETH", "KRW-XRP"}, s.ScheduledMarkets())
	assert.Equal(t, 1.0005, s.Tunables().ExchangeFeeRatio)
}

func TestAppState_SetIndex(t *testing.T) {
	s := New(DefaultTunables(), nil)
	s.SetIndex(1.25, 300000)

	assert.Equal(t, 1.25, s.Ratio())
	assert.Equal(t, 300000.0, s.MinTradeAmount())
}

func TestAppState_ScheduledMarketsIsCopy(t *testing.T) {
	s := New(DefaultTunables(), []string{"KRW-BTC"})
	markets := s.ScheduledMarkets()
	markets[0] = "KRW-XXX"

	assert.Equal(t, []string{"KRW-BTC"}, s.ScheduledMarkets())

	s.SetScheduledMarkets(nil)
	assert.Equal(t, []string{"KRW-BTC"}, s.ScheduledMarkets())
}

func TestAppState_Cooldown(t *testing.T) {
	s := New(DefaultTunables(), nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.False(t, s.InCooldown("KRW-BTC", now))

	s.RecordBuy("KRW-BTC", now)
	assert.True(t, s.InCooldown("KRW-BTC", now.Add(90*time.Second)))
	assert.True(t, s.InCooldown("KRW-BTC", now.Add(119*time.Second)))
	assert.False(t, s.InCooldown("KRW-BTC", now.Add(120*time.Second)))
	assert.False(t, s.InCooldown("KRW-BTC", now.Add(121*time.Second)))
	assert.False(t, s.InCooldown("KRW-ETH", now))

	last, ok := s.LastBuyAt("KRW-BTC")
	require.True(t, ok)
	assert.Equal(t, now, last)
}

func TestAppState_ConcurrentBuysAreNotLost(t *testing.T) {
	s := New(DefaultTunables(), nil)
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.RecordBuy(fmt.Sprintf("KRW-C%d", i), now)
			s.SetIndex(float64(i), float64(i*1000))
		}(i)
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Len(t, snap.LastBuyAt, 50)
	assert.Equal(t, snap.Ratio*1000, snap.MinTradeAmount)
}
