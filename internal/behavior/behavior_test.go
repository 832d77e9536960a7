package behavior

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mbd888/walletguard/internal/threat"
)

const (
	wallet    = "0x1111111111111111111111111111111111111111"
	friend    = "0x2222222222222222222222222222222222222222"
	stranger  = "0x3333333333333333333333333333333333333333"
	transfer3 = "0xa9059cbb" // transfer(address,uint256)
)

func seed(l *Learner, n int, valueETH string) {
	for i := 0; i < n; i++ {
		l.Learn(&threat.Transaction{From: wallet, To: friend, Value: valueETH})
	}
}

func TestColdStartIsNeverAnomalous(t *testing.T) {
	l := New()

	a := l.DetectAnomaly(&threat.Transaction{From: wallet, To: stranger, Value: "9999"})
	if a.IsAnomaly || a.Confidence != 0 {
		t.Errorf("unknown wallet should score zero, got %+v", a)
	}
}

func TestBelowMinObservations(t *testing.T) {
	l := New()
	seed(l, MinObservations-1, "0.1")

	a := l.DetectAnomaly(&threat.Transaction{From: wallet, To: stranger, Value: "9999"})
	if a.IsAnomaly {
		t.Errorf("too little history to call anything anomalous, got %+v", a)
	}
}

func TestFamiliarTransactionScoresZero(t *testing.T) {
	l := New()
	seed(l, 5, "0.5")

	a := l.DetectAnomaly(&threat.Transaction{From: wallet, To: friend, Value: "0.5"})
	if a.Confidence != 0 {
		t.Errorf("repeat of established pattern should score zero, got %+v", a)
	}
}

func TestValueSpikeAlone(t *testing.T) {
	l := New()
	seed(l, 5, "1")

	// 4 ETH to a known recipient: spike fires, nothing else does.
	a := l.DetectAnomaly(&threat.Transaction{From: wallet, To: friend, Value: "4"})
	if a.Confidence != weightValueSpike {
		t.Errorf("confidence = %v, want %v", a.Confidence, weightValueSpike)
	}
	if a.IsAnomaly {
		t.Error("a lone value spike stays below the anomaly threshold")
	}
}

func TestSpikeToStrangerIsAnomalous(t *testing.T) {
	l := New()
	seed(l, 5, "1")

	a := l.DetectAnomaly(&threat.Transaction{From: wallet, To: stranger, Value: "4"})
	want := weightValueSpike + weightNovelRecipient
	if a.Confidence != want {
		t.Errorf("confidence = %v, want %v", a.Confidence, want)
	}
	if !a.IsAnomaly {
		t.Error("spike to a never-seen recipient should be anomalous")
	}
	if len(a.Reasons) != 2 {
		t.Errorf("expected 2 reasons, got %v", a.Reasons)
	}
}

func TestNovelSelector(t *testing.T) {
	l := New()
	seed(l, 5, "1")

	a := l.DetectAnomaly(&threat.Transaction{From: wallet, To: friend, Value: "0.5", Data: transfer3 + "00"})
	if a.Confidence != weightNovelSelector {
		t.Errorf("confidence = %v, want %v", a.Confidence, weightNovelSelector)
	}
}

func TestConfidenceIsClamped(t *testing.T) {
	l := New()
	seed(l, 5, "1")

	a := l.DetectAnomaly(&threat.Transaction{From: wallet, To: stranger, Value: "100", Data: transfer3 + "00"})
	if a.Confidence != 1 {
		t.Errorf("confidence = %v, want clamp at 1", a.Confidence)
	}
}

func TestDetectionIsDeterministic(t *testing.T) {
	l := New()
	seed(l, 5, "1")
	tx := &threat.Transaction{From: wallet, To: stranger, Value: "4"}

	first := l.DetectAnomaly(tx)
	second := l.DetectAnomaly(tx)
	if first.Confidence != second.Confidence || first.IsAnomaly != second.IsAnomaly {
		t.Errorf("repeated detection diverged: %+v vs %+v", first, second)
	}
}

func TestRingForgetsOldRecipients(t *testing.T) {
	l := New(WithHistorySize(3))
	l.Learn(&threat.Transaction{From: wallet, To: stranger, Value: "1"})
	seed(l, 3, "1")

	// The stranger entry has been overwritten, so it reads as novel again.
	a := l.DetectAnomaly(&threat.Transaction{From: wallet, To: stranger, Value: "2"})
	if a.Confidence != weightNovelRecipient {
		t.Errorf("confidence = %v, want %v", a.Confidence, weightNovelRecipient)
	}

	p, ok := l.Profile(wallet)
	if !ok {
		t.Fatal("profile missing")
	}
	if p.Transactions != 3 || p.Recipients != 1 {
		t.Errorf("profile = %+v, want 3 transactions to 1 recipient", p)
	}
}

func TestMaxValueRecomputedAfterEviction(t *testing.T) {
	l := New(WithHistorySize(2))
	l.Learn(&threat.Transaction{From: wallet, To: friend, Value: "10"})
	l.Learn(&threat.Transaction{From: wallet, To: friend, Value: "1"})
	l.Learn(&threat.Transaction{From: wallet, To: friend, Value: "1"})
	l.Learn(&threat.Transaction{From: wallet, To: friend, Value: "1"})

	p, _ := l.Profile(wallet)
	if p.MaxValueETH != 1 {
		t.Errorf("max = %v, want 1 after the 10 ETH entry aged out", p.MaxValueETH)
	}
}

func TestLRUEviction(t *testing.T) {
	clock := time.Unix(0, 0)
	l := New(WithMaxWallets(2), WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))

	l.Learn(&threat.Transaction{From: "0xaaa", To: friend, Value: "1"})
	l.Learn(&threat.Transaction{From: "0xbbb", To: friend, Value: "1"})
	l.Learn(&threat.Transaction{From: "0xaaa", To: friend, Value: "1"}) // refresh 0xaaa
	l.Learn(&threat.Transaction{From: "0xccc", To: friend, Value: "1"}) // evicts 0xbbb

	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want cap of 2", l.Len())
	}
	if _, ok := l.Profile("0xbbb"); ok {
		t.Error("least recently touched profile should have been evicted")
	}
	if _, ok := l.Profile("0xaaa"); !ok {
		t.Error("recently refreshed profile should survive eviction")
	}
}

func TestAddressesCompareCaseInsensitively(t *testing.T) {
	l := New()
	seed(l, 5, "1")

	upper := "0X1111111111111111111111111111111111111111"
	a := l.DetectAnomaly(&threat.Transaction{From: upper, To: friend, Value: "0.5"})
	if a.Confidence != 0 {
		t.Errorf("case variant of same wallet should hit the same profile, got %+v", a)
	}
}

func TestConcurrentLearn(t *testing.T) {
	l := New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				l.Learn(&threat.Transaction{
					From:  wallet,
					To:    fmt.Sprintf("0x%040d", i),
					Value: "1",
				})
			}
		}(i)
	}
	wg.Wait()

	p, ok := l.Profile(wallet)
	if !ok {
		t.Fatal("profile missing")
	}
	if p.Transactions != DefaultHistorySize {
		t.Errorf("transactions = %d, want full ring of %d", p.Transactions, DefaultHistorySize)
	}
}

func TestConcurrentLearnDuringEviction(t *testing.T) {
	// Re-learning an existing wallet races against evictions triggered
	// by fresh wallets arriving at the cap. Run under -race.
	l := New(WithMaxWallets(2))
	l.Learn(&threat.Transaction{From: wallet, To: stranger, Value: "1"})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			l.Learn(&threat.Transaction{From: wallet, To: stranger, Value: "1"})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			l.Learn(&threat.Transaction{
				From:  fmt.Sprintf("0x%040d", i),
				To:    stranger,
				Value: "1",
			})
		}
	}()
	wg.Wait()

	if n := l.Len(); n > 2 {
		t.Errorf("tracked wallets = %d, want at most the cap of 2", n)
	}
}
