package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillworks/basketd/internal/basket"
	"github.com/tillworks/basketd/internal/journal"
)

func TestAmount_TextUsesCurrencySymbol(t *testing.T) {
	f := &OutputFormatter{Format: "text", Writer: &bytes.Buffer{}}

	usd := f.Amount(basket.Money(800), "USD")
	assert.Contains(t, usd, "$")
	assert.Contains(t, usd, "8.00")

	gbp := f.Amount(basket.Money(250), "GBP")
	assert.Contains(t, gbp, "£")
	assert.Contains(t, gbp, "2.50")
}

func TestAmount_JSONStaysDecimal(t *testing.T) {
	f := &OutputFormatter{Format: "json", Writer: &bytes.Buffer{}}

	assert.Equal(t, "8.00", f.Amount(basket.Money(800), "USD"))
	assert.Equal(t, "-0.50", f.Amount(basket.Money(-50), "EUR"))
}

func TestAmount_UnknownCodeFallsBack(t *testing.T) {
	f := &OutputFormatter{Format: "text", Writer: &bytes.Buffer{}}

	assert.Equal(t, "8.00", f.Amount(basket.Money(800), "not-a-code"))
}

func TestReplay_RendersTotalInCurrency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	jrnl, err := journal.Open(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, jrnl.Append(ctx, 1, "tok-1", basket.KindSetBasket,
		[]byte(`{"basket":{"basketId":"b-1","status":"ACTIVE","items":[],"totalAmount":0}}`)))
	require.NoError(t, jrnl.Append(ctx, 2, "tok-2", basket.KindAddItem,
		[]byte(`{"item":{"id":"i-1","productId":"p-1","productName":"Espresso","quantity":2,"price":2.50}}`)))
	require.NoError(t, jrnl.Close())

	out, err := execute(t, "replay", path, "--currency", "GBP")
	require.NoError(t, err)
	assert.Contains(t, out, "replayed 2 actions")
	assert.Contains(t, out, "£")
	assert.Contains(t, out, "5.00")
}
