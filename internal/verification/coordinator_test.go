package verification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillworks/basketd/internal/basket"
	"github.com/tillworks/basketd/internal/testutil"
)

// fakeDispatcher records dispatched actions and mirrors them into a live
// state so the coordinator's follow-up Snapshot calls see its own effects.
type fakeDispatcher struct {
	state   basket.State
	actions []basket.Action
}

func (d *fakeDispatcher) DispatchToken(_ string, a basket.Action) bool {
	d.actions = append(d.actions, a)
	d.state = basket.Reduce(d.state, a)
	return true
}

func (d *fakeDispatcher) NewToken() string       { return "tok" }
func (d *fakeDispatcher) Snapshot() basket.State { return d.state }

// fakeClient scripts backend responses. addResults is consumed per AddItem
// call in order; a nil entry means "blocked pending verification".
type fakeClient struct {
	addResults []*basket.Item
	addErrs    []error
	addCalls   []string

	verifyErr   error
	verifyCalls int

	cancelErr   error
	cancelCalls int
}

func (c *fakeClient) AddItem(_ context.Context, _, productID, _ string, _ int, _ basket.Money) (*basket.Item, error) {
	i := len(c.addCalls)
	c.addCalls = append(c.addCalls, productID)
	var item *basket.Item
	if i < len(c.addResults) {
		item = c.addResults[i]
	}
	var err error
	if i < len(c.addErrs) {
		err = c.addErrs[i]
	}
	return item, err
}

func (c *fakeClient) VerifyAge(_ context.Context, _, _ string, _ int, _ basket.VerificationMethod) error {
	c.verifyCalls++
	return c.verifyErr
}

func (c *fakeClient) CancelAgeVerification(_ context.Context, _, _ string) error {
	c.cancelCalls++
	return c.cancelErr
}

func activeState() basket.State {
	state := basket.InitialState()
	return basket.Reduce(state, basket.SetBasket{Basket: basket.Basket{
		ID:         "b1",
		Status:     basket.StatusActive,
		EmployeeID: "emp1",
	}})
}

func newTestCoordinator(client *fakeClient, state basket.State, opts ...Option) (*Coordinator, *fakeDispatcher, *testutil.ManualScheduler) {
	disp := &fakeDispatcher{state: state}
	sched := testutil.NewManualScheduler()
	opts = append([]Option{WithScheduler(sched)}, opts...)
	c := NewCoordinator(client, disp, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	return c, disp, sched
}

func confirmed(productID string, qty int, price basket.Money) *basket.Item {
	return &basket.Item{
		ID:          "srv-" + productID,
		ProductID:   productID,
		ProductName: productID,
		Quantity:    qty,
		Price:       price,
	}
}

func TestAddProduct_NoBasket(t *testing.T) {
	c, disp, _ := newTestCoordinator(&fakeClient{}, basket.InitialState())

	err := c.AddProduct(context.Background(), Product{ProductID: "p1"})
	require.Error(t, err)
	assert.Empty(t, disp.actions)
}

func TestAddProduct_AgeGateInactive(t *testing.T) {
	client := &fakeClient{addResults: []*basket.Item{confirmed("p1", 2, 500)}}
	c, disp, sched := newTestCoordinator(client, activeState(), WithAgeGate(false))

	require.NoError(t, c.AddProduct(context.Background(), Product{ProductID: "p1", Name: "Cola", Price: 500, Quantity: 2}))

	require.Len(t, disp.state.Basket.Items, 1)
	assert.Equal(t, basket.OriginConfirmed, disp.state.Basket.Items[0].Origin)
	assert.Equal(t, basket.VerificationIdle, disp.state.VerificationState)
	assert.Zero(t, sched.Len(), "no timeout without the age gate")
}

func TestAddProduct_BlockedArmsPendingTimeout(t *testing.T) {
	client := &fakeClient{addResults: []*basket.Item{nil}}
	c, disp, sched := newTestCoordinator(client, activeState(), WithPendingTimeout(2*time.Second))

	require.NoError(t, c.AddProduct(context.Background(), Product{ProductID: "wine", Quantity: 1}))

	assert.Equal(t, basket.VerificationPending, disp.state.VerificationState)
	assert.Empty(t, disp.state.Basket.Items, "blocked item must not enter the basket")
	require.Equal(t, 1, sched.Len())
	assert.Equal(t, 2*time.Second, sched.Timers()[0].Delay)
}

func TestAddProduct_NotRestrictedDropsOutOfPending(t *testing.T) {
	client := &fakeClient{addResults: []*basket.Item{confirmed("p1", 1, 300)}}
	c, disp, sched := newTestCoordinator(client, activeState())

	require.NoError(t, c.AddProduct(context.Background(), Product{ProductID: "p1", Price: 300}))

	assert.Equal(t, basket.VerificationIdle, disp.state.VerificationState)
	require.Len(t, disp.state.Basket.Items, 1)
	assert.Zero(t, sched.Len())
}

func TestAddProduct_TransportError(t *testing.T) {
	client := &fakeClient{addErrs: []error{errors.New("boom")}}
	c, disp, sched := newTestCoordinator(client, activeState())

	err := c.AddProduct(context.Background(), Product{ProductID: "p1"})
	require.Error(t, err)
	assert.Equal(t, basket.VerificationIdle, disp.state.VerificationState)
	assert.Equal(t, "failed to add item", disp.state.Err)
	assert.Zero(t, sched.Len())
}

func TestPendingTimeout_ExpiresBackToIdle(t *testing.T) {
	client := &fakeClient{addResults: []*basket.Item{nil}}
	c, disp, sched := newTestCoordinator(client, activeState())

	require.NoError(t, c.AddProduct(context.Background(), Product{ProductID: "wine"}))
	require.Equal(t, basket.VerificationPending, disp.state.VerificationState)

	require.Equal(t, 1, sched.FireAll())
	assert.Equal(t, basket.VerificationIdle, disp.state.VerificationState)
}

func TestPendingTimeout_CancelledByRequiredEvent(t *testing.T) {
	client := &fakeClient{addResults: []*basket.Item{nil}}
	c, disp, sched := newTestCoordinator(client, activeState())

	require.NoError(t, c.AddProduct(context.Background(), Product{ProductID: "wine"}))
	require.NoError(t, c.HandleEvent([]byte(`{
		"type": "age.verification.required",
		"minimum_age": 18,
		"restricted_items": [{"product_id": "wine", "name": "Wine", "minimumAge": 18, "quantity": 1, "price": 8.00}]
	}`)))

	assert.Zero(t, sched.FireAll(), "real event cancels the compensating timeout")
	assert.Equal(t, basket.VerificationRequired, disp.state.VerificationState)
}

func TestPendingTimeout_NoOpWhenStateMovedOn(t *testing.T) {
	client := &fakeClient{addResults: []*basket.Item{nil}}
	c, disp, sched := newTestCoordinator(client, activeState())

	require.NoError(t, c.AddProduct(context.Background(), Product{ProductID: "wine"}))
	disp.DispatchToken("tok", basket.SetVerificationState{State: basket.VerificationVerifying})

	sched.FireAll()
	assert.Equal(t, basket.VerificationVerifying, disp.state.VerificationState,
		"expired timer must not clobber a state that already advanced")
}

func TestHandleRequired_ParsesBothMinimumAgeKeys(t *testing.T) {
	c, disp, _ := newTestCoordinator(&fakeClient{}, activeState())

	require.NoError(t, c.HandleEvent([]byte(`{
		"event_type": "age.verification.required",
		"minimum_age": 18,
		"restricted_items": [
			{"product_id": "wine", "name": "Wine", "minimumAge": 18, "price": 8.00},
			{"product_id": "spirits", "name": "Whisky", "minimum_age": 21, "price": 30.00}
		]
	}`)))

	require.Len(t, disp.state.PendingItems, 2)
	assert.Equal(t, 18, disp.state.PendingItems[0].MinimumAge)
	assert.Equal(t, 21, disp.state.PendingItems[1].MinimumAge)
	assert.Equal(t, basket.VerificationRequired, disp.state.VerificationState)
}

func TestOperativeMinimumAge(t *testing.T) {
	c, disp, _ := newTestCoordinator(&fakeClient{}, activeState())
	assert.Equal(t, basket.DefaultMinimumAge, c.OperativeMinimumAge())

	require.NoError(t, c.HandleEvent([]byte(`{
		"type": "age.verification.required",
		"minimum_age": 21,
		"restricted_items": [
			{"product_id": "wine", "minimumAge": 18},
			{"product_id": "spirits", "minimumAge": 25}
		]
	}`)))
	assert.Equal(t, 25, c.OperativeMinimumAge(), "strictest pending item wins")

	disp.DispatchToken("tok", basket.ClearPendingItems{})
	assert.Equal(t, 21, c.OperativeMinimumAge(), "event minimum survives the pending set")
}

func TestRequestVerification_UnderageFailsFast(t *testing.T) {
	client := &fakeClient{}
	c, disp, _ := newTestCoordinator(client, activeState())

	require.NoError(t, c.HandleEvent([]byte(`{
		"type": "age.verification.required",
		"minimum_age": 18,
		"restricted_items": [{"product_id": "wine", "minimumAge": 18}]
	}`)))

	err := c.RequestVerification(context.Background(), 16, basket.MethodManualCheck)
	require.Error(t, err)
	assert.Zero(t, client.verifyCalls, "no backend call for a client-side rejection")
	assert.Equal(t, basket.VerificationRequired, disp.state.VerificationState)
}

func TestRequestVerification_EntersVerifying(t *testing.T) {
	client := &fakeClient{}
	c, disp, _ := newTestCoordinator(client, activeState())

	require.NoError(t, c.RequestVerification(context.Background(), 30, basket.MethodIDScanner))
	assert.Equal(t, 1, client.verifyCalls)
	assert.Equal(t, basket.VerificationVerifying, disp.state.VerificationState)
}

func TestRequestVerification_TransportFailure(t *testing.T) {
	client := &fakeClient{verifyErr: errors.New("timeout")}
	c, disp, _ := newTestCoordinator(client, activeState())

	err := c.RequestVerification(context.Background(), 30, basket.MethodManualCheck)
	require.Error(t, err)
	assert.Equal(t, basket.VerificationFailed, disp.state.VerificationState)
}

func TestHandleCompleted_SubmitsPendingItemsIndividually(t *testing.T) {
	client := &fakeClient{
		addResults: []*basket.Item{confirmed("wine", 1, 800), nil, confirmed("beer", 2, 250)},
		addErrs:    []error{nil, errors.New("out of stock"), nil},
	}
	c, disp, _ := newTestCoordinator(client, activeState())

	require.NoError(t, c.HandleEvent([]byte(`{
		"type": "age.verification.required",
		"minimum_age": 18,
		"restricted_items": [
			{"product_id": "wine", "name": "Wine", "minimumAge": 18, "quantity": 1, "price": 8.00},
			{"product_id": "spirits", "name": "Whisky", "minimumAge": 18, "quantity": 1, "price": 30.00},
			{"product_id": "beer", "name": "Beer", "minimumAge": 18, "quantity": 2, "price": 2.50}
		]
	}`)))

	require.NoError(t, c.HandleEvent([]byte(`{
		"type": "age.verification.completed",
		"customer_age": 30,
		"verification_method": "MANUAL_CHECK"
	}`)))

	require.Equal(t, []string{"wine", "spirits", "beer"}, client.addCalls,
		"one failed submission must not block the rest")
	require.Len(t, disp.state.Basket.Items, 2)
	assert.Equal(t, "some verified items could not be added", disp.state.Err)
	assert.Empty(t, disp.state.PendingItems)
	assert.Equal(t, basket.VerificationIdle, disp.state.VerificationState)
	assert.Equal(t, disp.state.Basket.TotalAmount, basket.Money(800+2*250))
}

func TestHandleCompleted_NoBasket(t *testing.T) {
	c, disp, _ := newTestCoordinator(&fakeClient{}, basket.InitialState())

	require.NoError(t, c.HandleEvent([]byte(`{"type": "age.verification.completed"}`)))
	assert.Equal(t, basket.VerificationIdle, disp.state.VerificationState)
	assert.Empty(t, disp.state.PendingItems)
}

func TestHandleFailed_DropsPendingItems(t *testing.T) {
	client := &fakeClient{}
	c, disp, _ := newTestCoordinator(client, activeState())

	require.NoError(t, c.HandleEvent([]byte(`{
		"type": "age.verification.required",
		"minimum_age": 18,
		"restricted_items": [{"product_id": "wine", "minimumAge": 18}]
	}`)))
	require.NoError(t, c.HandleEvent([]byte(`{
		"type": "age.verification.failed",
		"reason": "ID rejected"
	}`)))

	assert.Zero(t, len(client.addCalls), "failed verification never submits items")
	assert.Empty(t, disp.state.PendingItems)
	assert.Equal(t, basket.VerificationIdle, disp.state.VerificationState)
	assert.Equal(t, "age verification failed: ID rejected", disp.state.Err)
}

func TestCancelVerification(t *testing.T) {
	client := &fakeClient{addResults: []*basket.Item{nil}}
	c, disp, sched := newTestCoordinator(client, activeState())

	require.NoError(t, c.AddProduct(context.Background(), Product{ProductID: "wine"}))
	require.NoError(t, c.CancelVerification(context.Background()))

	assert.Equal(t, 1, client.cancelCalls)
	assert.Zero(t, sched.FireAll(), "cancel stops the pending timer")
	assert.Empty(t, disp.state.PendingItems)
	assert.Equal(t, basket.VerificationIdle, disp.state.VerificationState)
}

func TestCancelVerification_BackendFailureStillResets(t *testing.T) {
	client := &fakeClient{cancelErr: errors.New("gone")}
	c, disp, _ := newTestCoordinator(client, activeState())
	disp.DispatchToken("tok", basket.SetVerificationState{State: basket.VerificationRequired})

	err := c.CancelVerification(context.Background())
	require.Error(t, err)
	assert.Equal(t, basket.VerificationIdle, disp.state.VerificationState,
		"local flow resets even when the wire cancel fails")
}

func TestHandleEvent_Malformed(t *testing.T) {
	c, disp, _ := newTestCoordinator(&fakeClient{}, activeState())
	require.Error(t, c.HandleEvent([]byte(`{broken`)))
	assert.Empty(t, disp.actions)
}

func TestHandleEvent_UnknownTypeIgnored(t *testing.T) {
	c, disp, _ := newTestCoordinator(&fakeClient{}, activeState())
	require.NoError(t, c.HandleEvent([]byte(`{"type": "basket.updated"}`)))
	assert.Empty(t, disp.actions)
}
