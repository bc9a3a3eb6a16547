package basket

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeBasket(items ...Item) State {
	state := InitialState()
	return Reduce(state, SetBasket{Basket: Basket{
		ID:         "basket-1",
		Status:     StatusActive,
		EmployeeID: "emp-7",
		Items:      items,
	}})
}

func TestReduce_SetBasket_DerivesTotal(t *testing.T) {
	state := activeBasket(
		Item{ID: "1", ProductID: "p1", Quantity: 2, Price: 250},
		Item{ID: "2", ProductID: "p2", Quantity: 3, Price: 100},
	)

	require.NotNil(t, state.Basket)
	assert.Equal(t, Money(800), state.Basket.TotalAmount)
}

func TestReduce_AddItem_AppendsAndTotals(t *testing.T) {
	state := activeBasket()

	state = Reduce(state, AddItem{Item: Item{ID: "1", ProductID: "p1", Quantity: 2, Price: 250}})
	state = Reduce(state, AddItem{Item: Item{ID: "2", ProductID: "p2", Quantity: 3, Price: 100}})

	require.Len(t, state.Basket.Items, 2)
	assert.Equal(t, Money(800), state.Basket.TotalAmount)
}

func TestReduce_AddItem_SameProductReplaces(t *testing.T) {
	state := activeBasket(Item{ID: "1", ProductID: "p1", Quantity: 1, Price: 250})

	// Server-confirmed quantity update arrives as a fresh item for the same
	// product. It must replace, not accumulate.
	state = Reduce(state, AddItem{Item: Item{ID: "1", ProductID: "p1", Quantity: 3, Price: 250}})

	require.Len(t, state.Basket.Items, 1)
	assert.Equal(t, 3, state.Basket.Items[0].Quantity)
	assert.Equal(t, Money(750), state.Basket.TotalAmount)
}

func TestReduce_AddItem_ConfirmedReplacesOptimistic(t *testing.T) {
	state := activeBasket()
	state = Reduce(state, AddItem{Item: Item{ProductID: "p1", Quantity: 1, Price: 250, Origin: OriginOptimistic}})
	state = Reduce(state, AddItem{Item: Item{ID: "srv-1", ProductID: "p1", Quantity: 1, Price: 250, Origin: OriginConfirmed}})

	require.Len(t, state.Basket.Items, 1)
	assert.Equal(t, "srv-1", state.Basket.Items[0].ID)
	assert.Equal(t, OriginConfirmed, state.Basket.Items[0].Origin)
}

func TestReduce_RemoveItem(t *testing.T) {
	state := activeBasket(
		Item{ID: "1", ProductID: "p1", Quantity: 2, Price: 250},
		Item{ID: "2", ProductID: "p2", Quantity: 3, Price: 100},
	)

	state = Reduce(state, RemoveItem{ItemID: "1"})

	require.Len(t, state.Basket.Items, 1)
	assert.Equal(t, Money(300), state.Basket.TotalAmount)
}

func TestReduce_RemoveItem_UnknownIDIsNoop(t *testing.T) {
	state := activeBasket(Item{ID: "1", ProductID: "p1", Quantity: 2, Price: 250})

	next := Reduce(state, RemoveItem{ItemID: "does-not-exist"})

	assert.Equal(t, state, next)
}

func TestReduce_UpdateQuantity(t *testing.T) {
	state := activeBasket(
		Item{ID: "1", ProductID: "p1", Quantity: 2, Price: 250},
		Item{ID: "2", ProductID: "p2", Quantity: 3, Price: 100},
	)

	state = Reduce(state, UpdateQuantity{ItemID: "2", Quantity: 5})

	assert.Equal(t, 5, state.Basket.Items[1].Quantity)
	assert.Equal(t, Money(1000), state.Basket.TotalAmount)
}

func TestReduce_UpdateQuantity_ZeroRemoves(t *testing.T) {
	state := activeBasket(
		Item{ID: "1", ProductID: "p1", Quantity: 2, Price: 250},
		Item{ID: "2", ProductID: "p2", Quantity: 3, Price: 100},
	)

	state = Reduce(state, UpdateQuantity{ItemID: "1", Quantity: 0})

	require.Len(t, state.Basket.Items, 1)
	assert.Equal(t, "2", state.Basket.Items[0].ID)
	assert.Equal(t, Money(300), state.Basket.TotalAmount)
}

// TestReduce_TotalInvariant drives the reducer with a randomized action
// sequence and checks totalAmount == Σ(price × quantity) after every
// transition.
func TestReduce_TotalInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	state := activeBasket()

	products := []string{"p1", "p2", "p3", "p4"}
	itemIDs := []string{"1", "2", "3", "4"}

	for step := 0; step < 500; step++ {
		var action Action
		switch rng.Intn(3) {
		case 0:
			i := rng.Intn(len(products))
			action = AddItem{Item: Item{
				ID:        itemIDs[i],
				ProductID: products[i],
				Quantity:  1 + rng.Intn(5),
				Price:     Money(rng.Intn(1000)),
			}}
		case 1:
			action = RemoveItem{ItemID: itemIDs[rng.Intn(len(itemIDs))]}
		case 2:
			action = UpdateQuantity{
				ItemID:   itemIDs[rng.Intn(len(itemIDs))],
				Quantity: rng.Intn(6), // zero exercises the removal path
			}
		}

		state = Reduce(state, action)

		var want Money
		for _, item := range state.Basket.Items {
			want += item.Price.Mul(item.Quantity)
		}
		require.Equal(t, want, state.Basket.TotalAmount,
			"total invariant violated at step %d after %s", step, action.Kind())
	}
}

func TestReduce_PaidBasketIsImmutable(t *testing.T) {
	state := activeBasket(Item{ID: "1", ProductID: "p1", Quantity: 2, Price: 250})
	state = Reduce(state, SetPaymentState{State: PaymentCompleted})

	require.Equal(t, StatusPaid, state.Basket.Status)

	next := Reduce(state, AddItem{Item: Item{ID: "9", ProductID: "p9", Quantity: 1, Price: 100}})
	assert.Equal(t, state, next, "add against PAID basket must be a no-op")

	next = Reduce(state, RemoveItem{ItemID: "1"})
	assert.Equal(t, state, next, "remove against PAID basket must be a no-op")

	next = Reduce(state, UpdateQuantity{ItemID: "1", Quantity: 5})
	assert.Equal(t, state, next, "quantity update against PAID basket must be a no-op")
}

func TestReduce_PaymentCompleted_AtomicFlags(t *testing.T) {
	state := activeBasket()
	state = Reduce(state, ShowPaymentModal{Visible: true})
	state = Reduce(state, SetPaymentState{State: PaymentProcessing})

	state = Reduce(state, SetPaymentState{State: PaymentCompleted})

	assert.True(t, state.ShowThankYou)
	assert.False(t, state.ShowPaymentModal)
	assert.Equal(t, PaymentCompleted, state.PaymentState)
}

func TestReduce_PaymentFailed_KeepsModalOpen(t *testing.T) {
	state := activeBasket()
	state = Reduce(state, ShowPaymentModal{Visible: true})
	state = Reduce(state, SetPaymentState{State: PaymentProcessing})

	state = Reduce(state, SetPaymentState{State: PaymentFailed})

	assert.True(t, state.ShowPaymentModal, "failed payment retains the modal for retry")
	assert.False(t, state.ShowThankYou)
}

func TestReduce_ClearPendingItems_ResetsVerification(t *testing.T) {
	state := activeBasket()
	state = Reduce(state, SetPendingItems{Items: []RestrictedItem{{ProductID: "p1", MinimumAge: 18}}})
	state = Reduce(state, SetVerificationState{State: VerificationRequired})

	state = Reduce(state, ClearPendingItems{})

	assert.Empty(t, state.PendingItems)
	assert.Equal(t, VerificationIdle, state.VerificationState)
}

func TestReduce_ClearBasket_ResetsEverything(t *testing.T) {
	state := activeBasket(Item{ID: "1", ProductID: "p1", Quantity: 1, Price: 100})
	state = Reduce(state, SetVerificationState{State: VerificationRequired})
	state = Reduce(state, PushFraudAlert{Alert: FraudAlert{AlertID: "a1", Severity: SeverityHigh}})

	state = Reduce(state, ClearBasket{})

	assert.Equal(t, InitialState(), state)
}

func TestReduce_SnapshotsAreIndependent(t *testing.T) {
	before := activeBasket(Item{ID: "1", ProductID: "p1", Quantity: 2, Price: 250})
	after := Reduce(before, UpdateQuantity{ItemID: "1", Quantity: 9})

	// The earlier snapshot must be untouched by the later reduction.
	assert.Equal(t, 2, before.Basket.Items[0].Quantity)
	assert.Equal(t, 9, after.Basket.Items[0].Quantity)
}

func TestOperativeMinimumAge(t *testing.T) {
	state := InitialState()

	// No pending items, no event minimum: statutory default.
	assert.Equal(t, 18, state.OperativeMinimumAge(0))

	// No pending items but the event carries a minimum: event wins.
	assert.Equal(t, 21, state.OperativeMinimumAge(21))

	// Pending items: strictest rule wins, event minimum ignored.
	state = Reduce(state, SetPendingItems{Items: []RestrictedItem{
		{ProductID: "beer", MinimumAge: 18},
		{ProductID: "spirits", MinimumAge: 21},
	}})
	assert.Equal(t, 21, state.OperativeMinimumAge(16))

	// Items with no declared minimum fall back to the default.
	state = Reduce(state, SetPendingItems{Items: []RestrictedItem{{ProductID: "x"}}})
	assert.Equal(t, 18, state.OperativeMinimumAge(0))
}
