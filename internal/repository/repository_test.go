package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/d60-Lab/sale-promotion/internal/model"
	"github.com/d60-Lab/sale-promotion/pkg/database"
)

func newTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.OpenInMemory(t.Name())
	require.NoError(t, err)
	return db
}

func strPtr(s string) *string { return &s }

func TestDraftRepository_CRUD(t *testing.T) {
	db := newTestDB(t)
	repo := NewDraftRepository(db)
	ctx := context.Background()

	d := &model.Draft{OwnerID: "u1", DraftKey: "dk1", Payload: datatypes.JSON(`{"title":"Garage sale"}`)}
	require.NoError(t, repo.Create(ctx, d))
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, model.DraftStatusActive, d.Status)
	assert.Equal(t, model.HashPayload([]byte(`{"title":"Garage sale"}`)), d.ContentHash)

	err := repo.Create(ctx, &model.Draft{OwnerID: "u2", DraftKey: "dk1", Payload: datatypes.JSON(`{}`)})
	assert.ErrorIs(t, err, ErrDuplicate)

	ok, err := repo.UpdatePayload(ctx, "dk1", "u2", []byte(`{"title":"hijack"}`))
	require.NoError(t, err)
	assert.False(t, ok, "non-owner must not update")

	ok, err = repo.UpdatePayload(ctx, "dk1", "u1", []byte(`{"title":"Yard sale"}`))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByKey(ctx, "dk1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Yard sale"}`, string(got.Payload))
	assert.Equal(t, model.HashPayload([]byte(`{"title":"Yard sale"}`)), got.ContentHash)

	deleted, err := repo.DeleteByKey(ctx, "dk1", "u2")
	require.NoError(t, err)
	assert.False(t, deleted, "non-owner must not delete")

	deleted, err = repo.DeleteByKey(ctx, "dk1", "u1")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = repo.DeleteByKey(ctx, "dk1", "u1")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = repo.GetByKey(ctx, "dk1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPromotionRepository_StateMachine(t *testing.T) {
	db := newTestDB(t)
	repo := NewPromotionRepository(db)
	ctx := context.Background()

	p := &model.Promotion{OwnerID: "u1", DraftKey: strPtr("dk1"), Tier: "featured",
		Amount: decimal.RequireFromString("4.99"), Currency: "usd"}
	require.NoError(t, repo.Create(ctx, p))
	assert.Equal(t, model.PromotionStatusPending, p.Status)

	_, err := repo.FindPendingByDraftKey(ctx, "dk1")
	assert.ErrorIs(t, err, ErrNotFound, "no session yet")

	require.NoError(t, repo.SetCheckoutSession(ctx, p.ID, "cs_1", "https://pay.test/cs_1"))
	found, err := repo.FindPendingByDraftKey(ctx, "dk1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)
	assert.True(t, found.Amount.Equal(decimal.RequireFromString("4.99")))

	ok, err := repo.Activate(ctx, p.ID, "sale1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Activate(ctx, p.ID, "sale2")
	require.NoError(t, err)
	assert.False(t, ok, "second activation must be a no-op")

	ok, err = repo.Cancel(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, ok, "active never regresses")

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PromotionStatusActive, got.Status)
	require.NotNil(t, got.SaleID)
	assert.Equal(t, "sale1", *got.SaleID)
	assert.Nil(t, got.DraftKey)
}

func TestPromotionRepository_Cancel(t *testing.T) {
	db := newTestDB(t)
	repo := NewPromotionRepository(db)
	ctx := context.Background()

	p := &model.Promotion{OwnerID: "u1", DraftKey: strPtr("dk1"), Tier: "featured",
		Amount: decimal.RequireFromString("4.99"), Currency: "usd"}
	require.NoError(t, repo.Create(ctx, p))

	ok, err := repo.Cancel(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Activate(ctx, p.ID, "sale1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, repo.SetCheckoutSession(ctx, p.ID, "cs", "u"), ErrNotFound)
}

func newSale(draftKey string, items int) *model.Sale {
	s := &model.Sale{
		OwnerID:  "u1",
		DraftKey: draftKey,
		Title:    "Moving sale",
		Address:  "1 Main St",
		StartsAt: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 5, 1, 17, 0, 0, 0, time.UTC),
	}
	for i := 0; i < items; i++ {
		s.Items = append(s.Items, model.SaleItem{Name: fmt.Sprintf("item-%d", i), Price: decimal.NewFromInt(int64(i + 1))})
	}
	return s
}

func TestSaleRepository_CreateWithItemsOncePerDraft(t *testing.T) {
	db := newTestDB(t)
	repo := NewSaleRepository(db)
	ctx := context.Background()

	first := newSale("dk1", 3)
	created, err := repo.CreateWithItems(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.SaleStatusPublished, first.Status)

	second := newSale("dk1", 1)
	created, err = repo.CreateWithItems(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.Items, 3)

	got, err := repo.GetByDraftKey(ctx, "dk1")
	require.NoError(t, err)
	require.Len(t, got.Items, 3)
	assert.Equal(t, "item-0", got.Items[0].Name)
	assert.Equal(t, 2, got.Items[2].Position)

	var cnt int64
	require.NoError(t, db.Model(&model.SaleItem{}).Count(&cnt).Error)
	assert.EqualValues(t, 3, cnt)
}

func TestSaleRepository_KeyOfAnotherOwnerIsNotReused(t *testing.T) {
	db := newTestDB(t)
	repo := NewSaleRepository(db)
	ctx := context.Background()

	first := newSale("dk1", 1)
	_, err := repo.CreateWithItems(ctx, first)
	require.NoError(t, err)

	other := newSale("dk1", 2)
	other.OwnerID = "u2"
	created, err := repo.CreateWithItems(ctx, other)
	assert.ErrorIs(t, err, ErrKeyTaken)
	assert.False(t, created)
	assert.NotEqual(t, first.ID, other.ID)

	var cnt int64
	require.NoError(t, db.Model(&model.SaleItem{}).Count(&cnt).Error)
	assert.EqualValues(t, 1, cnt)
}

func TestSaleRepository_ConcurrentCreate(t *testing.T) {
	db := newTestDB(t)
	repo := NewSaleRepository(db)
	ctx := context.Background()

	var g errgroup.Group
	results := make([]bool, 8)
	for i := range results {
		i := i
		g.Go(func() error {
			created, err := repo.CreateWithItems(ctx, newSale("dk-race", 2))
			results[i] = created
			return err
		})
	}
	require.NoError(t, g.Wait())

	n := 0
	for _, c := range results {
		if c {
			n++
		}
	}
	assert.Equal(t, 1, n)

	var cnt int64
	require.NoError(t, db.Model(&model.Sale{}).Where("draft_key = ?", "dk-race").Count(&cnt).Error)
	assert.EqualValues(t, 1, cnt)
}

func TestEventLedgerRepository_ClaimOnce(t *testing.T) {
	db := newTestDB(t)
	repo := NewEventLedgerRepository(db)
	ctx := context.Background()

	var g errgroup.Group
	claims := make([]bool, 10)
	for i := range claims {
		i := i
		g.Go(func() error {
			ok, err := repo.Claim(ctx, &model.EventLedgerEntry{
				EventID: "evt_1", EventType: "checkout.session.completed", PaymentID: "pi_1",
				Metadata: datatypes.JSONMap{"draft_key": "dk1"},
			})
			claims[i] = ok
			return err
		})
	}
	require.NoError(t, g.Wait())

	n := 0
	for _, c := range claims {
		if c {
			n++
		}
	}
	assert.Equal(t, 1, n)

	e, err := repo.Get(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, 1, e.Attempts)
	assert.Equal(t, "dk1", e.Metadata["draft_key"])
	assert.Nil(t, e.ProcessedAt)
}

func TestEventLedgerRepository_ErrorAndReplay(t *testing.T) {
	db := newTestDB(t)
	repo := NewEventLedgerRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.Claim(ctx, &model.EventLedgerEntry{EventID: fmt.Sprintf("evt_%d", i), EventType: "checkout.session.completed"})
		require.NoError(t, err)
	}
	require.NoError(t, repo.MarkProcessed(ctx, "evt_0"))
	require.NoError(t, repo.MarkErrored(ctx, "evt_1", "sale insert failed"))

	list, total, err := repo.ListUnprocessed(ctx, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, list, 2)

	e, err := repo.Get(ctx, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, e.ErrorMessage)
	assert.Equal(t, "sale insert failed", *e.ErrorMessage)

	ok, err := repo.BeginReplay(ctx, "evt_1", e.Attempts)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.BeginReplay(ctx, "evt_1", e.Attempts)
	require.NoError(t, err)
	assert.False(t, ok, "stale attempt counter")

	ok, err = repo.BeginReplay(ctx, "evt_0", 1)
	require.NoError(t, err)
	assert.False(t, ok, "processed entries are not replayable")

	require.NoError(t, repo.MarkErrored(ctx, "evt_0", "late"))
	e0, err := repo.Get(ctx, "evt_0")
	require.NoError(t, err)
	assert.Nil(t, e0.ErrorMessage, "processed entries are not marked errored")

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEmailRecordRepository_NeverDowngradesSent(t *testing.T) {
	db := newTestDB(t)
	repo := NewEmailRecordRepository(db)
	ctx := context.Background()

	key := "sale_created_promotion:pi_1"
	require.NoError(t, repo.Upsert(ctx, &model.EmailSendRecord{OwnerID: "u1", EmailType: model.EmailTypeSaleCreated,
		DedupeKey: key, Status: model.EmailStatusFailed, ErrorMessage: strPtr("email delivery failed")}))

	sent, err := repo.HasSent(ctx, "u1", model.EmailTypeSaleCreated, key)
	require.NoError(t, err)
	assert.False(t, sent)

	require.NoError(t, repo.Upsert(ctx, &model.EmailSendRecord{OwnerID: "u1", EmailType: model.EmailTypeSaleCreated,
		DedupeKey: key, Status: model.EmailStatusSent}))
	sent, err = repo.HasSent(ctx, "u1", model.EmailTypeSaleCreated, key)
	require.NoError(t, err)
	assert.True(t, sent)

	require.NoError(t, repo.Upsert(ctx, &model.EmailSendRecord{OwnerID: "u1", EmailType: model.EmailTypeSaleCreated,
		DedupeKey: key, Status: model.EmailStatusFailed, ErrorMessage: strPtr("email delivery failed")}))

	rec, err := repo.GetByDedupeKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, model.EmailStatusSent, rec.Status)
	assert.Nil(t, rec.ErrorMessage)

	var cnt int64
	require.NoError(t, db.Model(&model.EmailSendRecord{}).Count(&cnt).Error)
	assert.EqualValues(t, 1, cnt)
}

func TestUserRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.User{ID: "u1", Username: "alice", Email: "alice@example.com"}))
	u, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)

	_, err = repo.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
