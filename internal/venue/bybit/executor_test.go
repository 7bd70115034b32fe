package bybit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/IggyIkenna/basis-strategy-v1-sub010/internal/errors"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/execution"
)

func TestOrderParamsPerpGoesToLinear(t *testing.T) {
	params := orderParams(execution.CEXTradeInstruction{
		ID:         "instr-1",
		Instrument: "BTCUSDT",
		Side:       execution.TradeSideSell,
		Quantity:   0.25,
		Perp:       true,
	})

	assert.Equal(t, "linear", params["category"])
	assert.Equal(t, "BTCUSDT", params["symbol"])
	assert.Equal(t, "Sell", params["side"])
	assert.Equal(t, "Market", params["orderType"])
	assert.Equal(t, "0.25", params["qty"])
	assert.Equal(t, "instr-1", params["orderLinkId"])
	assert.NotContains(t, params, "marketUnit")
}

func TestOrderParamsSpotUsesBaseCoinQuantity(t *testing.T) {
	params := orderParams(execution.CEXTradeInstruction{
		ID:         "instr-2",
		Instrument: "BTC",
		Side:       execution.TradeSideBuy,
		Quantity:   0.0001,
	})

	assert.Equal(t, "spot", params["category"])
	assert.Equal(t, "Buy", params["side"])
	assert.Equal(t, "baseCoin", params["marketUnit"])
	assert.Equal(t, "0.0001", params["qty"])
}

func TestExecutorRejectsNonPositiveQuantity(t *testing.T) {
	executor := NewExecutor(NewClient(ClientConfig{Testnet: true}), "bybit")

	_, err := executor.ExecuteCEXTrade(context.Background(), execution.CEXTradeInstruction{
		Instrument: "BTCUSDT",
		Quantity:   0,
	})
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrorCategoryValidation))
}

func TestExecutorFailsFastOutsideCEXTrades(t *testing.T) {
	executor := NewExecutor(NewClient(ClientConfig{Testnet: true}), "bybit")
	ctx := context.Background()

	_, err := executor.ExecuteWalletTransfer(ctx, execution.WalletTransferInstruction{})
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrorCategoryNotImplemented))

	_, err = executor.ExecuteSmartContractBundle(ctx, nil)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrorCategoryNotImplemented))
}

func TestRetryableCodes(t *testing.T) {
	assert.True(t, isRetryableCode(&APIError{Code: errCodeRateLimitExceeded}))
	assert.True(t, isRetryableCode(&APIError{Code: 503}))
	assert.False(t, isRetryableCode(&APIError{Code: errCodeInsufficientBalance}))
	assert.False(t, isRetryableCode(&APIError{Code: errCodeMarketClosed}))
	assert.False(t, isRetryableCode(context.Canceled))
}

func TestAPIErrorNamesKnownRejections(t *testing.T) {
	err := &APIError{Code: errCodeInsufficientBalance, Message: "ab not enough"}
	assert.Contains(t, err.Error(), "insufficient balance")

	err = &APIError{Code: errCodeMarketClosed, Message: "symbol suspended"}
	assert.Contains(t, err.Error(), "market closed")

	err = &APIError{Code: 99999, Message: "mystery"}
	assert.Equal(t, "bybit API error 99999: mystery", err.Error())
}
