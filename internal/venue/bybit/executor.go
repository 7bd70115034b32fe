package bybit

import (
	"context"
	"encoding/json"
	"strconv"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	perrors "github.com/IggyIkenna/basis-strategy-v1-sub010/internal/errors"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/execution"
)

const component = "venue.bybit"

// Executor is the live venue execution adapter for Bybit. It covers CEX
// trade instructions only; wallet transfers and smart-contract bundles
// have no Bybit execution path and fail fast.
type Executor struct {
	client *Client
	venue  string
}

// NewExecutor creates a live Bybit executor for the given venue name
func NewExecutor(client *Client, venue string) *Executor {
	return &Executor{client: client, venue: venue}
}

// ExecuteCEXTrade places a market order on Bybit's unified trading
// account and returns once the venue acknowledges it
func (e *Executor) ExecuteCEXTrade(ctx context.Context, instruction execution.CEXTradeInstruction) (execution.Receipt, error) {
	if instruction.Quantity <= 0 {
		return execution.Receipt{}, perrors.NewValidationError(component, "ExecuteCEXTrade",
			"order quantity must be positive")
	}

	params := orderParams(instruction)

	var orderID string
	err := e.client.withRetry(ctx, func() error {
		result, err := e.client.httpClient.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
		if err != nil {
			return err
		}
		orderID, err = parseOrderID(result)
		return err
	})
	if err != nil {
		return execution.Receipt{}, perrors.Wrap(err, perrors.ErrorCategoryExecution, component, "ExecuteCEXTrade",
			"order rejected for "+instruction.Instrument)
	}

	return execution.Receipt{
		Success:       true,
		Amount:        instruction.Quantity,
		ExecutionMode: execution.ModeLive,
		TransferID:    orderID,
	}, nil
}

// ExecuteWalletTransfer has no Bybit implementation
func (e *Executor) ExecuteWalletTransfer(ctx context.Context, instruction execution.WalletTransferInstruction) (execution.Receipt, error) {
	return execution.Receipt{}, perrors.NewNotImplementedError(component, "ExecuteWalletTransfer",
		"live wallet transfers are not implemented for venue "+e.venue)
}

// ExecuteSmartContractBundle has no Bybit implementation
func (e *Executor) ExecuteSmartContractBundle(ctx context.Context, instructions []execution.SmartContractInstruction) (execution.Receipt, error) {
	return execution.Receipt{}, perrors.NewNotImplementedError(component, "ExecuteSmartContractBundle",
		"live smart contract execution is not implemented for venue "+e.venue)
}

// orderParams maps a trade instruction onto Bybit's order endpoint.
// Perpetual orders go to the linear category, everything else to spot.
// The instruction ID doubles as the orderLinkId so retries never place
// the same order twice.
func orderParams(instruction execution.CEXTradeInstruction) map[string]interface{} {
	category := "spot"
	if instruction.Perp {
		category = "linear"
	}

	params := map[string]interface{}{
		"category":    category,
		"symbol":      instruction.Instrument,
		"side":        sideFor(instruction.Side),
		"orderType":   "Market",
		"qty":         formatQty(instruction.Quantity),
		"orderLinkId": instruction.ID,
	}
	if category == "spot" {
		// spot market orders default to quote-denominated quantity
		params["marketUnit"] = "baseCoin"
	}
	return params
}

func sideFor(side execution.TradeSide) string {
	if side == execution.TradeSideSell {
		return "Sell"
	}
	return "Buy"
}

func formatQty(qty float64) string {
	return strconv.FormatFloat(qty, 'f', -1, 64)
}

// parseOrderID extracts the venue order ID from a PlaceOrder response
func parseOrderID(response interface{}) (string, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return "", &APIError{Code: -1, Message: "unexpected response type"}
	}
	if serverResp.RetCode != 0 {
		return "", &APIError{Code: serverResp.RetCode, Message: serverResp.RetMsg}
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return "", &APIError{Code: -1, Message: "cannot re-encode order result"}
	}

	var orderResult struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := json.Unmarshal(resultBytes, &orderResult); err != nil {
		return "", &APIError{Code: -1, Message: "cannot decode order result"}
	}
	if orderResult.OrderID == "" {
		return "", &APIError{Code: -1, Message: "order response missing orderId"}
	}
	return orderResult.OrderID, nil
}
