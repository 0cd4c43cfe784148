package payment_test

import (
	"context"
	"testing"

	apppay "github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordLinksKnownBasket(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	newBasket(t, store)
	uc := apppay.NewRecordResponseUseCase(store.Responses(), store.Baskets(), nil)

	payload := dompay.Payload{"PNREF": "T1", "PONUM": "EDX-100042"}
	res, err := uc.Execute(ctx, apppay.RecordInput{Processor: "payflow", Payload: payload, TransactionID: "T1", OrderReference: "EDX-100042"})
	require.NoError(t, err)
	require.NotNil(t, res.BasketID)
	assert.Equal(t, int64(42), *res.BasketID)

	// The stored payload is a copy.
	payload["PNREF"] = "changed"
	row, err := store.Responses().Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "T1", row.Payload["PNREF"])
}

func TestRecordKeepsUnlinkableResponses(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	uc := apppay.NewRecordResponseUseCase(store.Responses(), store.Baskets(), nil)

	for _, ref := range []string{"", "garbage", "EDX-100999"} {
		res, err := uc.Execute(ctx, apppay.RecordInput{Processor: "payflow", Payload: dompay.Payload{"PONUM": ref}, OrderReference: ref})
		require.NoError(t, err, ref)
		assert.Nil(t, res.BasketID, ref)
	}
	rows, err := store.Responses().ListByTransaction(ctx, "")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}
