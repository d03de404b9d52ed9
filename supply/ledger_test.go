package supply_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmchain/trace-engine/supply"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func kg(v int) supply.Quantity {
	return supply.NewQuantityFromInt(v, supply.UnitKg)
}

func newLedgerWithBatch(t *testing.T, batchID supply.BatchID, total int) *supply.InventoryLedger {
	t.Helper()
	ledger := supply.NewInventoryLedger()
	ledger.RegisterBatch(batchID, kg(total))
	return ledger
}

// requireConserved checks the core accounting identity:
// reserved + consumed + available == quantityTotal.
func requireConserved(t *testing.T, ledger *supply.InventoryLedger, batchID supply.BatchID, total int) {
	t.Helper()
	stock, err := ledger.Stock(batchID)
	require.NoError(t, err)
	sum := stock.Reserved.Add(stock.Consumed).Add(stock.Available)
	assert.True(t, sum.Equal(kg(total)),
		"reserved %v + consumed %v + available %v != total %d",
		stock.Reserved.Value, stock.Consumed.Value, stock.Available.Value, total)
	assert.False(t, stock.Available.IsNegative(), "available must never go negative")
}

// =============================================================================
// RESERVATION TESTS
// =============================================================================

func TestLedger_Reserve_HoldsStock(t *testing.T) {
	// GIVEN: A batch with 100 kg
	// WHEN: 60 kg is reserved
	// THEN: available drops to 40 and the identity holds

	ledger := newLedgerWithBatch(t, "B1", 100)

	_, err := ledger.Reserve("B1", kg(60))
	require.NoError(t, err)

	stock, err := ledger.Stock("B1")
	require.NoError(t, err)
	assert.True(t, stock.Available.Equal(kg(40)))
	assert.True(t, stock.Reserved.Equal(kg(60)))
	requireConserved(t, ledger, "B1", 100)
}

func TestLedger_Reserve_InsufficientStock(t *testing.T) {
	// GIVEN: A batch with 40 kg unreserved
	// WHEN: 50 kg is requested
	// THEN: InsufficientStockError, and the ledger is untouched

	ledger := newLedgerWithBatch(t, "B1", 100)
	_, err := ledger.Reserve("B1", kg(60))
	require.NoError(t, err)

	_, err = ledger.Reserve("B1", kg(50))
	assert.ErrorIs(t, err, supply.ErrInsufficientStock)

	var stockErr *supply.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.True(t, stockErr.Available.Equal(kg(40)))
	assert.True(t, stockErr.Requested.Equal(kg(50)))

	stock, err := ledger.Stock("B1")
	require.NoError(t, err)
	assert.True(t, stock.Available.Equal(kg(40)), "failed admission must not leak a partial reservation")
}

func TestLedger_Reserve_UnknownBatch(t *testing.T) {
	ledger := supply.NewInventoryLedger()

	_, err := ledger.Reserve("nope", kg(1))
	assert.ErrorIs(t, err, supply.ErrUnknownBatch)
}

func TestLedger_Reserve_NonPositiveQuantity(t *testing.T) {
	ledger := newLedgerWithBatch(t, "B1", 100)

	_, err := ledger.Reserve("B1", kg(0))
	assert.ErrorIs(t, err, supply.ErrInvalidQuantity)

	_, err = ledger.Reserve("B1", kg(-5))
	assert.ErrorIs(t, err, supply.ErrInvalidQuantity)
}

// =============================================================================
// RELEASE / CONSUME TESTS
// =============================================================================

func TestLedger_Release_RestoresAvailable(t *testing.T) {
	// GIVEN: 60 of 100 reserved
	// WHEN: The hold is released
	// THEN: available returns exactly to its pre-reservation value

	ledger := newLedgerWithBatch(t, "B1", 100)
	resID, err := ledger.Reserve("B1", kg(60))
	require.NoError(t, err)

	require.NoError(t, ledger.Release(resID))

	stock, err := ledger.Stock("B1")
	require.NoError(t, err)
	assert.True(t, stock.Available.Equal(kg(100)))
	assert.True(t, stock.Reserved.IsZero())
	requireConserved(t, ledger, "B1", 100)
}

func TestLedger_Consume_SpendsStock(t *testing.T) {
	// GIVEN: 60 of 100 reserved
	// WHEN: The hold is consumed
	// THEN: available stays 40, reserved drops to 0, consumed becomes 60

	ledger := newLedgerWithBatch(t, "B1", 100)
	resID, err := ledger.Reserve("B1", kg(60))
	require.NoError(t, err)

	require.NoError(t, ledger.Consume(resID))

	stock, err := ledger.Stock("B1")
	require.NoError(t, err)
	assert.True(t, stock.Available.Equal(kg(40)))
	assert.True(t, stock.Reserved.IsZero())
	assert.True(t, stock.Consumed.Equal(kg(60)))
	requireConserved(t, ledger, "B1", 100)
}

func TestLedger_FinalizeTwice_Rejected(t *testing.T) {
	// GIVEN: A reservation already released
	// WHEN: Releasing or consuming it again
	// THEN: ErrInvalidReservationState, state unchanged

	ledger := newLedgerWithBatch(t, "B1", 100)
	resID, err := ledger.Reserve("B1", kg(60))
	require.NoError(t, err)
	require.NoError(t, ledger.Release(resID))

	assert.ErrorIs(t, ledger.Release(resID), supply.ErrInvalidReservationState)
	assert.ErrorIs(t, ledger.Consume(resID), supply.ErrInvalidReservationState)

	stock, err := ledger.Stock("B1")
	require.NoError(t, err)
	assert.True(t, stock.Available.Equal(kg(100)))
}

func TestLedger_UnknownReservation_Rejected(t *testing.T) {
	ledger := newLedgerWithBatch(t, "B1", 100)

	assert.ErrorIs(t, ledger.Release("missing"), supply.ErrInvalidReservationState)
	assert.ErrorIs(t, ledger.Consume("missing"), supply.ErrInvalidReservationState)
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

func TestLedger_ConcurrentReservations_NeverOverdraw(t *testing.T) {
	// GIVEN: A batch with 100 kg available
	// WHEN: 20 goroutines each try to reserve 15 kg concurrently
	// THEN: The admitted subset never exceeds 100 kg, and admitted +
	//       remaining available equals the original available

	ledger := newLedgerWithBatch(t, "B1", 100)

	const workers = 20
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.Reserve("B1", kg(15))
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
		} else {
			assert.ErrorIs(t, err, supply.ErrInsufficientStock)
		}
	}

	// 6 * 15 = 90 fits, a 7th would need 105.
	assert.Equal(t, 6, admitted)

	stock, err := ledger.Stock("B1")
	require.NoError(t, err)
	assert.True(t, stock.Reserved.Equal(kg(admitted*15)))
	assert.True(t, stock.Available.Equal(kg(100-admitted*15)))
	requireConserved(t, ledger, "B1", 100)
}

func TestLedger_ConcurrentLastUnit_ExactlyOneWins(t *testing.T) {
	// GIVEN: 100 kg available
	// WHEN: Two concurrent reservations each request 60 kg
	// THEN: Exactly one succeeds, never both

	for run := 0; run < 50; run++ {
		ledger := newLedgerWithBatch(t, "B1", 100)

		var wg sync.WaitGroup
		results := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, results[i] = ledger.Reserve("B1", kg(60))
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range results {
			if err == nil {
				wins++
			}
		}
		require.Equal(t, 1, wins, "exactly one of two 60kg reservations must win")
		requireConserved(t, ledger, "B1", 100)
	}
}

func TestLedger_IndependentBatches_DoNotInterfere(t *testing.T) {
	// Reservations on one batch never affect another.

	ledger := supply.NewInventoryLedger()
	ledger.RegisterBatch("B1", kg(10))
	ledger.RegisterBatch("B2", kg(10))

	_, err := ledger.Reserve("B1", kg(10))
	require.NoError(t, err)

	_, err = ledger.Reserve("B2", kg(10))
	require.NoError(t, err)

	requireConserved(t, ledger, "B1", 10)
	requireConserved(t, ledger, "B2", 10)
}

// =============================================================================
// REBUILD TESTS
// =============================================================================

func TestLedger_Rebuild_FromOrders(t *testing.T) {
	// GIVEN: Persisted orders in every state
	// WHEN: A fresh ledger is rebuilt from them
	// THEN: PENDING holds stock, APPROVED is consumed, terminal
	//       rejections/cancellations hold nothing

	batch := supply.Batch{ID: "B1", QuantityTotal: kg(100)}
	orders := []supply.Order{
		{ID: "O1", BatchID: "B1", ReservationID: "r1", Quantity: kg(30), Status: supply.OrderPending},
		{ID: "O2", BatchID: "B1", ReservationID: "r2", Quantity: kg(20), Status: supply.OrderApproved},
		{ID: "O3", BatchID: "B1", ReservationID: "r3", Quantity: kg(40), Status: supply.OrderRejected},
		{ID: "O4", BatchID: "B1", ReservationID: "r4", Quantity: kg(10), Status: supply.OrderCancelled},
	}

	ledger := supply.NewInventoryLedger()
	require.NoError(t, ledger.Rebuild([]supply.Batch{batch}, orders))

	stock, err := ledger.Stock("B1")
	require.NoError(t, err)
	assert.True(t, stock.Reserved.Equal(kg(30)))
	assert.True(t, stock.Consumed.Equal(kg(20)))
	assert.True(t, stock.Available.Equal(kg(50)))

	// The rebuilt reservation is still addressable by its original ID,
	// so a decision made after restart finds its hold.
	require.NoError(t, ledger.Consume("r1"))
	stock, err = ledger.Stock("B1")
	require.NoError(t, err)
	assert.True(t, stock.Consumed.Equal(kg(50)))
	requireConserved(t, ledger, "B1", 100)
}
