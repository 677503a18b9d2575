package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/d60-Lab/sale-promotion/config"
	"github.com/d60-Lab/sale-promotion/internal/model"
	"github.com/d60-Lab/sale-promotion/internal/notify"
	"github.com/d60-Lab/sale-promotion/internal/payment"
	"github.com/d60-Lab/sale-promotion/internal/repository"
	"github.com/d60-Lab/sale-promotion/internal/service"
	"github.com/d60-Lab/sale-promotion/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// countingSender 只计数，不真正投递
type countingSender struct{ n atomic.Int64 }

func (s *countingSender) Send(context.Context, notify.Message) error {
	s.n.Add(1)
	return nil
}

const listing = `{"title":"Bench sale","address":"1 Main St","starts_at":"2026-05-01T09:00:00Z","ends_at":"2026-05-01T17:00:00Z","items":[{"name":"Lamp","price":"10"},{"name":"Desk","price":"40"}]}`

func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	ctx := context.Background()

	N := envInt("N", 1000)     // 推广草稿数
	DUP := envInt("DUP", 5)    // 每个事件的重复投递次数
	CONC := envInt("CONC", 16) // 并发 worker

	tiers := service.TierPrices(must(cfg.Promotion.Prices()))
	drafts := repository.NewDraftRepository(db)
	promotions := repository.NewPromotionRepository(db)
	users := repository.NewUserRepository(db)
	sender := &countingSender{}
	fin := service.NewFinalizer(service.FinalizerDeps{
		Ledger:     repository.NewEventLedgerRepository(db),
		Drafts:     drafts,
		Promotions: promotions,
		Sales:      repository.NewSaleRepository(db),
		Users:      users,
		Dedupe:     service.NewNotificationDedupe(repository.NewEmailRecordRepository(db)),
		Sender:     sender,
		Tiers:      tiers,
	})

	// seed: one owner, N drafts each with a pending promotion
	owner := &model.User{ID: uuid.NewString(), Username: "bench-" + uuid.NewString()[:8], Email: "bench@example.com"}
	if err := users.Create(ctx, owner); err != nil {
		panic(err)
	}
	price, _ := tiers.Price(cfg.Promotion.DefaultTier)
	events := make([]service.PaymentEvent, N)
	for i := 0; i < N; i++ {
		key := uuid.NewString()
		if err := drafts.Create(ctx, &model.Draft{OwnerID: owner.ID, DraftKey: key, Payload: datatypes.JSON(listing)}); err != nil {
			panic(err)
		}
		promo := &model.Promotion{OwnerID: owner.ID, DraftKey: &key, Tier: cfg.Promotion.DefaultTier, Amount: price, Currency: cfg.Payment.Currency}
		if err := promotions.Create(ctx, promo); err != nil {
			panic(err)
		}
		meta := map[string]interface{}{}
		for k, v := range (payment.Metadata{DraftKey: key, PromotionID: promo.ID, Tier: cfg.Promotion.DefaultTier}).Map() {
			meta[k] = v
		}
		events[i] = service.PaymentEvent{
			EventID:   "evt_" + uuid.NewString(),
			Type:      payment.EventCheckoutCompleted,
			PaymentID: "pi_" + uuid.NewString(),
			Metadata:  meta,
		}
	}

	// feed every event DUP times, interleaved so duplicates race each other
	total := N * DUP
	feed := make(chan service.PaymentEvent, total)
	for d := 0; d < DUP; d++ {
		for i := 0; i < N; i++ {
			feed <- events[i]
		}
	}
	close(feed)

	workers := CONC
	if workers > total {
		workers = total
	}
	lat := make(chan time.Duration, total)
	var failures, duplicates atomic.Int64
	done := make(chan struct{}, workers)
	t0 := time.Now()
	for w := 0; w < workers; w++ {
		go func() {
			for ev := range feed {
				st := time.Now()
				res, err := fin.HandlePaymentEvent(ctx, ev)
				lat <- time.Since(st)
				if err != nil {
					failures.Add(1)
					continue
				}
				if res.Outcome == service.OutcomeDuplicate {
					duplicates.Add(1)
				}
			}
			done <- struct{}{}
		}()
	}
	for w := 0; w < workers; w++ {
		<-done
	}
	elapsed := time.Since(t0)
	close(lat)
	recs := make([]time.Duration, 0, total)
	for d := range lat {
		recs = append(recs, d)
	}

	pct := func(vs []time.Duration, p float64) time.Duration {
		if len(vs) == 0 {
			return 0
		}
		xs := append([]time.Duration(nil), vs...)
		sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
		k := int(math.Ceil(p*float64(len(xs)))) - 1
		if k < 0 {
			k = 0
		}
		if k >= len(xs) {
			k = len(xs) - 1
		}
		return xs[k]
	}

	var sales, active int64
	db.Model(&model.Sale{}).Where("owner_id = ?", owner.ID).Count(&sales)
	db.Model(&model.Promotion{}).Where("owner_id = ? AND status = ?", owner.ID, model.PromotionStatusActive).Count(&active)

	fmt.Printf("N=%d, DUP=%d, CONC=%d\n", N, DUP, CONC)
	fmt.Printf("deliveries=%d total=%v per op=%v p50=%v p95=%v p99=%v\n",
		total, elapsed, elapsed/time.Duration(total), pct(recs, 0.50), pct(recs, 0.95), pct(recs, 0.99))
	fmt.Printf("duplicates=%d failures=%d\n", duplicates.Load(), failures.Load())
	fmt.Printf("sales=%d active promotions=%d emails=%d (want %d each)\n", sales, active, sender.n.Load(), N)
	if sales != int64(N) || active != int64(N) || sender.n.Load() != int64(N) {
		os.Exit(1)
	}
}
