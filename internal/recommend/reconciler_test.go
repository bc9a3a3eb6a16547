package recommend

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillworks/basketd/internal/basket"
)

func rec(id, productID string, price basket.Money) basket.Recommendation {
	return basket.Recommendation{
		ID:        id,
		ProductID: productID,
		Price:     price,
		Status:    basket.RecommendationPending,
	}
}

func TestMerge_AppendsNewProducts(t *testing.T) {
	current := []basket.Recommendation{rec("r1", "p1", 100)}
	merged := Merge(current, []basket.Recommendation{rec("r2", "p2", 200)})

	require.Len(t, merged, 2)
	assert.Equal(t, "p1", merged[0].ProductID)
	assert.Equal(t, "p2", merged[1].ProductID)
}

func TestMerge_SameProductSupersedesInPlace(t *testing.T) {
	current := []basket.Recommendation{rec("r1", "p1", 100), rec("r2", "p2", 200)}
	merged := Merge(current, []basket.Recommendation{rec("r3", "p1", 150)})

	require.Len(t, merged, 2)
	assert.Equal(t, "r3", merged[0].ID, "newer entry replaces, position preserved")
	assert.Equal(t, basket.Money(150), merged[0].Price)
}

func TestMerge_NeverYieldsDuplicateProducts(t *testing.T) {
	var current []basket.Recommendation
	batches := [][]basket.Recommendation{
		{rec("r1", "p1", 100), rec("r2", "p2", 200)},
		{rec("r3", "p1", 110), rec("r4", "p3", 300)},
		{rec("r5", "p2", 210), rec("r6", "p2", 220)},
		{rec("r7", "p1", 120)},
	}

	for _, batch := range batches {
		current = Merge(current, batch)
		seen := map[string]bool{}
		for _, r := range current {
			require.False(t, seen[r.ProductID], "duplicate product %s surfaced", r.ProductID)
			seen[r.ProductID] = true
		}
	}

	require.Len(t, current, 3)
	assert.Equal(t, "r7", current[0].ID)
	assert.Equal(t, "r6", current[1].ID)
	assert.Equal(t, "r4", current[2].ID)
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	current := []basket.Recommendation{rec("r1", "p1", 100)}
	_ = Merge(current, []basket.Recommendation{rec("r2", "p1", 200)})
	assert.Equal(t, "r1", current[0].ID)
}

func TestDrop(t *testing.T) {
	current := []basket.Recommendation{rec("r1", "p1", 100), rec("r2", "p2", 200)}

	dropped := Drop(current, "p1")
	require.Len(t, dropped, 1)
	assert.Equal(t, "p2", dropped[0].ProductID)

	assert.Len(t, Drop(current, "p9"), 2, "unknown product is a no-op")
}

// fakeDispatcher records dispatched actions and serves a static snapshot.
type fakeDispatcher struct {
	state   basket.State
	actions []basket.Action
}

func (d *fakeDispatcher) DispatchToken(_ string, a basket.Action) bool {
	d.actions = append(d.actions, a)
	// Mirror the store so follow-up Snapshot calls observe the dispatch.
	d.state = basket.Reduce(d.state, a)
	return true
}

func (d *fakeDispatcher) NewToken() string       { return "tok" }
func (d *fakeDispatcher) Snapshot() basket.State { return d.state }

// fakeClient scripts accept/reject outcomes.
type fakeClient struct {
	item      *basket.Item
	acceptErr error
	rejectErr error
	accepted  []string
	rejected  []string
}

func (c *fakeClient) AcceptRecommendation(_ context.Context, id string) (*basket.Item, error) {
	c.accepted = append(c.accepted, id)
	return c.item, c.acceptErr
}

func (c *fakeClient) RejectRecommendation(_ context.Context, id string) error {
	c.rejected = append(c.rejected, id)
	return c.rejectErr
}

func newTestService(client *fakeClient, state basket.State) (*Service, *fakeDispatcher) {
	disp := &fakeDispatcher{state: state}
	return NewService(client, disp, slog.New(slog.NewTextHandler(io.Discard, nil))), disp
}

func TestHandleEvent_DispatchesMergedSet(t *testing.T) {
	state := basket.InitialState()
	state = basket.Reduce(state, basket.SetRecommendations{
		Recommendations: []basket.Recommendation{rec("r1", "p1", 100)},
	})
	svc, disp := newTestService(&fakeClient{}, state)

	err := svc.HandleEvent([]byte(`{
		"type": "recommendations",
		"recommendations": [
			{"id": "r2", "recommended_product_id": "p1", "recommended_product_name": "Chips", "recommended_price": 1.50, "reason": "pairs well", "status": "PENDING"},
			{"id": "r3", "recommended_product_id": "p2", "recommended_product_name": "Salsa", "recommended_price": 3.00, "reason": "pairs well"}
		]
	}`))
	require.NoError(t, err)

	recs := disp.state.Recommendations
	require.Len(t, recs, 2)
	assert.Equal(t, "r2", recs[0].ID, "p1 superseded in place")
	assert.Equal(t, basket.Money(150), recs[0].Price)
	assert.Equal(t, basket.RecommendationPending, recs[1].Status, "missing status defaults to PENDING")
}

func TestHandleEvent_IgnoresOtherEventTypes(t *testing.T) {
	svc, disp := newTestService(&fakeClient{}, basket.InitialState())

	require.NoError(t, svc.HandleEvent([]byte(`{"type":"heartbeat"}`)))
	assert.Empty(t, disp.actions)
}

func TestHandleEvent_MalformedPayload(t *testing.T) {
	svc, _ := newTestService(&fakeClient{}, basket.InitialState())
	assert.Error(t, svc.HandleEvent([]byte(`{not json`)))
}

func TestAccept_ServerItemEntersBasket(t *testing.T) {
	state := basket.InitialState()
	state = basket.Reduce(state, basket.SetBasket{Basket: basket.Basket{ID: "b1", Status: basket.StatusActive}})
	state = basket.Reduce(state, basket.SetRecommendations{
		Recommendations: []basket.Recommendation{rec("r1", "p1", 100)},
	})

	client := &fakeClient{item: &basket.Item{ID: "srv-9", ProductID: "p1", Quantity: 1, Price: 100}}
	svc, disp := newTestService(client, state)

	require.NoError(t, svc.Accept(context.Background(), rec("r1", "p1", 100)))

	assert.Equal(t, []string{"r1"}, client.accepted)
	assert.Empty(t, disp.state.Recommendations, "accepted entry dropped immediately")
	require.Len(t, disp.state.Basket.Items, 1)
	assert.Equal(t, "srv-9", disp.state.Basket.Items[0].ID, "persisted server item, not a local stand-in")
	assert.Equal(t, basket.OriginConfirmed, disp.state.Basket.Items[0].Origin)
}

func TestAccept_FailureLeavesBasketUntouched(t *testing.T) {
	state := basket.InitialState()
	state = basket.Reduce(state, basket.SetBasket{Basket: basket.Basket{ID: "b1", Status: basket.StatusActive}})
	state = basket.Reduce(state, basket.SetRecommendations{
		Recommendations: []basket.Recommendation{rec("r1", "p1", 100)},
	})

	client := &fakeClient{acceptErr: assert.AnError}
	svc, disp := newTestService(client, state)

	err := svc.Accept(context.Background(), rec("r1", "p1", 100))
	require.Error(t, err)

	assert.Empty(t, disp.state.Basket.Items)
	// The optimistic drop stands even though the call failed.
	assert.Empty(t, disp.state.Recommendations)
}

func TestReject_DropsOptimistically(t *testing.T) {
	state := basket.InitialState()
	state = basket.Reduce(state, basket.SetRecommendations{
		Recommendations: []basket.Recommendation{rec("r1", "p1", 100), rec("r2", "p2", 200)},
	})

	client := &fakeClient{}
	svc, disp := newTestService(client, state)

	require.NoError(t, svc.Reject(context.Background(), rec("r1", "p1", 100)))

	assert.Equal(t, []string{"r1"}, client.rejected)
	require.Len(t, disp.state.Recommendations, 1)
	assert.Equal(t, "p2", disp.state.Recommendations[0].ProductID)
}
