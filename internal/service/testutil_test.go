package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/tickin/dock-slot-service/internal/database"
	"github.com/tickin/dock-slot-service/internal/model"
	q "github.com/tickin/dock-slot-service/internal/queue"
	"github.com/tickin/dock-slot-service/internal/repository"
)

// eventRecorder captures published events so tests can assert on them
// without a broker.
type eventRecorder struct {
	mu     sync.Mutex
	events []q.SlotEvent
}

func (r *eventRecorder) Publish(_ context.Context, e q.SlotEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) byType(eventType string) []q.SlotEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []q.SlotEvent
	for _, e := range r.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

var testDBSeq atomic.Int64

// fixture bundles a ledger over an in-memory database with a pinned
// clock. The clock starts at noon so the reserve gate is closed and
// "today" is stable for the whole test.
type fixture struct {
	t        *testing.T
	db       *sql.DB
	ledger   *Ledger
	capacity *repository.CapacityRepo
	bookings *repository.BookingRepo
	waiting  *repository.WaitingQueueRepo
	rules    *repository.RulesRepo
	dist     *repository.DistributorRepo
	recorder *eventRecorder
	now      time.Time
}

const testTenant = "ACME"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	// A uniquely named shared-cache memory database: one logical store
	// per test, visible to every connection of this handle.
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, testDBSeq.Add(1))
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	// One connection serializes writers the way the production pool's
	// row locks do.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))

	fx := &fixture{
		t:        t,
		db:       db,
		capacity: repository.NewCapacityRepo(db),
		bookings: repository.NewBookingRepo(db),
		waiting:  repository.NewWaitingQueueRepo(db),
		rules:    repository.NewRulesRepo(db),
		dist:     repository.NewDistributorRepo(db),
		recorder: &eventRecorder{},
		now:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	fx.ledger = NewLedger(db, fx.capacity, fx.bookings, fx.waiting, fx.rules,
		NewLocator(fx.dist), fx.recorder, Settings{
			Times:            []string{"10:00", "12:00", "14:00", "16:00", "18:00", "20:30"},
			Positions:        []string{"A", "B", "C", "D"},
			ReserveTime:      "20:30",
			ReserveOpenAfter: "17:00",
			DefaultThreshold: 80000,
			MergeRadiusKm:    25,
			TZ:               time.UTC,
		})
	fx.ledger.SetClock(func() time.Time { return fx.now })
	return fx
}

func (fx *fixture) today() string    { return fx.now.Format("2006-01-02") }
func (fx *fixture) tomorrow() string { return fx.now.AddDate(0, 0, 1).Format("2006-01-02") }

// seedDistributor registers a distributor with direct coordinates.
func (fx *fixture) seedDistributor(code string, lat, lng float64) {
	fx.t.Helper()
	require.NoError(fx.t, fx.dist.Upsert(context.Background(), &model.Distributor{
		Code:   code,
		Tenant: testTenant,
		Name:   "Distributor " + code,
		Lat:    lat,
		Lng:    lng,
	}))
}

// book places one booking with sensible defaults filled in.
func (fx *fixture) book(in BookSlotInput) (*BookSlotResult, error) {
	if in.Tenant == "" {
		in.Tenant = testTenant
	}
	if in.Date == "" {
		in.Date = fx.today()
	}
	if in.Time == "" {
		in.Time = "12:00"
	}
	if in.Contributor == "" {
		in.Contributor = "sales-1"
	}
	return fx.ledger.BookSlot(context.Background(), in)
}

// pooledBucket reads one bucket row directly, failing the test when it
// does not exist.
func (fx *fixture) pooledBucket(date, slotTime, mergeKey string) *model.SlotCapacity {
	fx.t.Helper()
	tx, err := fx.db.BeginTx(context.Background(), nil)
	require.NoError(fx.t, err)
	defer func() { _ = tx.Rollback() }()
	b, err := fx.capacity.GetPooledTx(context.Background(), tx, testTenant, date, slotTime, mergeKey)
	require.NoError(fx.t, err)
	require.NotNil(fx.t, b, "bucket %s not found", mergeKey)
	return b
}
