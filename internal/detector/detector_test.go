package detector_test

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"MarketScraper/internal/detector"
	"MarketScraper/internal/model"
)

func tick(symbol string, price float64) model.PriceTick {
	return model.PriceTick{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(price),
		Timestamp: time.Now(),
		Source:    "test",
	}
}

func TestObserve_EdgeTriggered(t *testing.T) {
	d := detector.New(5)

	steps := []struct {
		price     float64
		wantAlert bool
		wantPct   float64
		wantDir   model.Direction
	}{
		{100, false, 0, ""},
		{104, false, 0, ""},
		{106, true, 6, model.DirectionUp},
		{107, false, 0, ""},
	}
	for i, s := range steps {
		alert, ok := d.Observe(tick("BTC", s.price))
		if ok != s.wantAlert {
			t.Fatalf("step %d (%.0f): expected alert=%v, got %v", i, s.price, s.wantAlert, ok)
		}
		if !ok {
			continue
		}
		if math.Abs(alert.ChangePercent-s.wantPct) > 1e-9 {
			t.Errorf("step %d: expected %.2f%%, got %.4f%%", i, s.wantPct, alert.ChangePercent)
		}
		if alert.Direction != s.wantDir {
			t.Errorf("step %d: expected %s, got %s", i, s.wantDir, alert.Direction)
		}
		if !alert.PreviousPrice.Equal(decimal.NewFromInt(100)) {
			t.Errorf("step %d: expected previous 100, got %s", i, alert.PreviousPrice)
		}
	}

	base, ok := d.Baseline("BTC")
	if !ok || !base.Equal(decimal.NewFromInt(106)) {
		t.Errorf("expected baseline to move to 106, got %s", base)
	}
}

func TestObserve_ThresholdBoundaryAndDown(t *testing.T) {
	d := detector.New(5)
	d.Observe(tick("ETH", 100))

	alert, ok := d.Observe(tick("ETH", 95))
	if !ok {
		t.Fatal("expected alert at exactly the threshold")
	}
	if alert.Direction != model.DirectionDown || alert.ChangePercent != -5 {
		t.Errorf("expected DOWN -5%%, got %s %.4f", alert.Direction, alert.ChangePercent)
	}
}

func TestObserve_FirstTickNeverAlerts(t *testing.T) {
	d := detector.New(0.0001)
	if _, ok := d.Observe(tick("SOL", 150)); ok {
		t.Error("first observation must not alert")
	}
}

func TestObserve_SymbolsIndependent(t *testing.T) {
	d := detector.New(5)
	d.Observe(tick("BTC", 100))
	d.Observe(tick("ETH", 10))
	if _, ok := d.Observe(tick("ETH", 10.2)); ok {
		t.Error("ETH +2% must not alert")
	}
	if _, ok := d.Observe(tick("BTC", 110)); !ok {
		t.Error("BTC +10% should alert")
	}
}

func TestObserve_IgnoresInvalidTick(t *testing.T) {
	d := detector.New(5)
	if _, ok := d.Observe(tick("BTC", 0)); ok {
		t.Error("invalid tick must not alert")
	}
	if _, ok := d.Baseline("BTC"); ok {
		t.Error("invalid tick must not set a baseline")
	}
}

func TestStatistics(t *testing.T) {
	d := detector.New(50, detector.WithWindow(3))
	for _, p := range []float64{90, 100, 110, 99} {
		d.Observe(tick("BTC", p))
	}

	if h := d.History("BTC"); len(h) != 3 || h[0] != 100 {
		t.Fatalf("expected window [100 110 99], got %v", h)
	}
	ma, err := d.MovingAverage("BTC", 0)
	if err != nil || math.Abs(ma-103) > 1e-9 {
		t.Errorf("expected MA 103, got %f (%v)", ma, err)
	}
	high, low, err := d.Range("BTC")
	if err != nil || high != 110 || low != 99 {
		t.Errorf("expected range 110/99, got %f/%f (%v)", high, low, err)
	}
	vol, err := d.Volatility("BTC")
	if err != nil || math.Abs(vol-10) > 1e-9 {
		t.Errorf("expected volatility 10%%, got %f (%v)", vol, err)
	}

	if pos, err := d.Position("BTC", 104.5); err != nil || math.Abs(pos-0.5) > 1e-9 {
		t.Errorf("expected position 0.5, got %f (%v)", pos, err)
	}
	if pos, _ := d.Position("BTC", 200); pos != 1 {
		t.Errorf("expected clamped position 1, got %f", pos)
	}

	// gains 10, losses 11 -> RSI 100 - 100*11/21
	rsi, err := d.RSI("BTC", 0)
	if err != nil || math.Abs(rsi-(100-1100.0/21)) > 1e-9 {
		t.Errorf("expected RSI 47.62, got %f (%v)", rsi, err)
	}

	if _, err := d.MovingAverage("NONE", 5); !errors.Is(err, detector.ErrNoHistory) {
		t.Errorf("expected ErrNoHistory, got %v", err)
	}

	d.Reset("BTC")
	if len(d.History("BTC")) != 0 {
		t.Error("expected history cleared")
	}
}

func TestObserve_Concurrent(t *testing.T) {
	d := detector.New(1)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				d.Observe(tick("BTC", float64(100+(w*i)%20)))
				d.MovingAverage("BTC", 5)
			}
		}(w)
	}
	wg.Wait()
}
