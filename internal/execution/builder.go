package execution

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	perrors "github.com/IggyIkenna/basis-strategy-v1-sub010/internal/errors"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/ledger"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/strategy"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/pkg/types"
)

const closeEpsilon = 1e-9

// BuildInstructionBlock turns strategy actions into a partitioned
// instruction block. Each expected delta maps to exactly one execution
// class: perpetual and exchange-held token deltas become CEX trades,
// protocol token deltas (aToken, debtToken, LST) become smart contract
// calls. Share-class cash deltas within an action are settlement legs of
// that action's trade on the same venue, not instructions of their own.
func (c *Coordinator) BuildInstructionBlock(actions []strategy.Action, snapshot ledger.Snapshot, tick types.TickData) (*InstructionBlock, error) {
	block := &InstructionBlock{
		BlockType:      blockType(actions),
		TimestampGroup: tick.Timestamp,
	}

	for _, action := range actions {
		if err := c.appendAction(block, action, snapshot, tick); err != nil {
			return nil, err
		}
	}

	c.appendMarginFunding(block, snapshot)

	return block, nil
}

// appendMarginFunding sizes the cash each exchange venue needs behind its
// post-trade perpetual book and tops the venue up from the funding wallet.
// Transfers always run before trades within a block, so the margin lands
// before the orders that need it.
func (c *Coordinator) appendMarginFunding(block *InstructionBlock, snapshot ledger.Snapshot) {
	notional := make(map[string]float64)
	touched := make(map[types.DerivativeKey]bool)

	for _, trade := range block.CEXTrades {
		if trade.DerivativeChange == nil {
			continue
		}
		change := trade.DerivativeChange
		touched[change.Key] = true
		if change.Op != ledger.DerivativeOpClose {
			notional[change.Key.Venue] += change.Notional
		}
	}
	if len(notional) == 0 {
		return
	}
	for key, pos := range snapshot.Derivatives {
		if !touched[key] {
			notional[key.Venue] += pos.Notional
		}
	}

	venues := make([]string, 0, len(notional))
	for venue := range notional {
		venues = append(venues, venue)
	}
	sort.Strings(venues)

	for _, venue := range venues {
		required := c.cfg.InitialMarginRatio * notional[venue]
		cashKey := types.NewPositionKey(venue, types.PositionTypeBaseToken, c.cfg.ShareClassCurrency)
		shortfall := required - snapshot.Balance(cashKey)
		if shortfall <= closeEpsilon {
			continue
		}
		block.WalletTransfers = append(block.WalletTransfers, WalletTransferInstruction{
			ID:          uuid.NewString(),
			SourceVenue: c.cfg.FundingVenue,
			TargetVenue: venue,
			Token:       c.cfg.ShareClassCurrency,
			Amount:      shortfall,
			Purpose:     "margin_funding",
		})
	}
}

func blockType(actions []strategy.Action) string {
	if len(actions) == 0 {
		return "empty"
	}
	first := actions[0].Type
	for _, action := range actions[1:] {
		if action.Type != first {
			return "mixed"
		}
	}
	return string(first)
}

func (c *Coordinator) appendAction(block *InstructionBlock, action strategy.Action, snapshot ledger.Snapshot, tick types.TickData) error {
	keys := make([]types.PositionKey, 0, len(action.ExpectedDeltas))
	for key := range action.ExpectedDeltas {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	// venue -> index into block.CEXTrades, for attaching settlement legs
	trades := make(map[string]int)

	var cashLegs []ledger.TokenChange

	for _, key := range keys {
		delta := action.ExpectedDeltas[key]
		if math.Abs(delta) <= closeEpsilon {
			continue
		}

		switch key.Type {
		case types.PositionTypePerp:
			instruction, err := c.buildPerpTrade(key, delta, snapshot, tick)
			if err != nil {
				return err
			}
			block.CEXTrades = append(block.CEXTrades, instruction)
			if _, ok := trades[key.Venue]; !ok {
				trades[key.Venue] = len(block.CEXTrades) - 1
			}

		case types.PositionTypeAToken, types.PositionTypeDebtToken, types.PositionTypeLST:
			block.SmartContracts = append(block.SmartContracts, buildProtocolCall(key, delta))

		case types.PositionTypeBaseToken:
			if key.Symbol == c.cfg.ShareClassCurrency {
				cashLegs = append(cashLegs, ledger.TokenChange{Key: key, Delta: delta})
				continue
			}
			if !c.cexVenues[key.Venue] {
				return perrors.NewValidationError(component, "BuildInstructionBlock",
					fmt.Sprintf("no execution class for %s: venue is not a configured exchange", key))
			}
			instruction, err := c.buildSpotTrade(key, delta, tick)
			if err != nil {
				return err
			}
			block.CEXTrades = append(block.CEXTrades, instruction)
			trades[key.Venue] = len(block.CEXTrades) - 1

		default:
			return perrors.NewValidationError(component, "BuildInstructionBlock",
				fmt.Sprintf("no execution class for position type %s", key.Type))
		}
	}

	for _, leg := range cashLegs {
		idx, ok := trades[leg.Key.Venue]
		if !ok {
			return perrors.NewValidationError(component, "BuildInstructionBlock",
				fmt.Sprintf("settlement leg %s has no trade on its venue in the same action", leg.Key))
		}
		block.CEXTrades[idx].TokenChanges = append(block.CEXTrades[idx].TokenChanges, leg)
	}

	return nil
}

func (c *Coordinator) buildPerpTrade(key types.PositionKey, delta float64, snapshot ledger.Snapshot, tick types.TickData) (CEXTradeInstruction, error) {
	price, ok := tick.ProtocolData.PerpPrices[key.Symbol]
	if !ok {
		price, ok = tick.Price(key.Symbol, key.Venue)
	}
	if !ok || price <= 0 {
		return CEXTradeInstruction{}, perrors.NewValidationError(component, "buildPerpTrade",
			fmt.Sprintf("no price for perp %s this tick", key))
	}

	derivKey := types.DerivativeKey{Venue: key.Venue, Instrument: key.Symbol}
	change := ledger.DerivativeChange{Key: derivKey}

	existing, open := snapshot.Derivative(derivKey)
	switch {
	case !open:
		change.Op = ledger.DerivativeOpOpen
		change.Size = delta
		change.EntryPrice = price
		change.Notional = math.Abs(delta) * price

	case math.Abs(existing.Size+delta) <= closeEpsilon:
		change.Op = ledger.DerivativeOpClose

	default:
		newSize := existing.Size + delta
		entry := existing.EntryPrice
		// adding in the same direction moves the entry to the weighted average
		if existing.Size*delta > 0 {
			entry = (math.Abs(existing.Size)*existing.EntryPrice + math.Abs(delta)*price) /
				(math.Abs(existing.Size) + math.Abs(delta))
		}
		change.Op = ledger.DerivativeOpAdjust
		change.Size = newSize
		change.EntryPrice = entry
		change.Notional = math.Abs(newSize) * price
	}

	return CEXTradeInstruction{
		ID:               uuid.NewString(),
		Venue:            key.Venue,
		Instrument:       key.Symbol,
		Side:             sideOf(delta),
		Quantity:         math.Abs(delta),
		Price:            price,
		Perp:             true,
		DerivativeChange: &change,
	}, nil
}

func (c *Coordinator) buildSpotTrade(key types.PositionKey, delta float64, tick types.TickData) (CEXTradeInstruction, error) {
	price, ok := tick.Price(key.Symbol, key.Venue)
	if !ok || price <= 0 {
		return CEXTradeInstruction{}, perrors.NewValidationError(component, "buildSpotTrade",
			fmt.Sprintf("no price for %s this tick", key))
	}

	return CEXTradeInstruction{
		ID:           uuid.NewString(),
		Venue:        key.Venue,
		Instrument:   key.Symbol,
		Side:         sideOf(delta),
		Quantity:     math.Abs(delta),
		Price:        price,
		TokenChanges: []ledger.TokenChange{{Key: key, Delta: delta}},
	}, nil
}

// buildProtocolCall maps a protocol token delta to the on-chain method
// that produces it. Debt balances are positive quantities of debt owed,
// so a positive debt delta is a borrow.
func buildProtocolCall(key types.PositionKey, delta float64) SmartContractInstruction {
	var method string
	switch key.Type {
	case types.PositionTypeAToken:
		if delta > 0 {
			method = "supply"
		} else {
			method = "withdraw"
		}
	case types.PositionTypeDebtToken:
		if delta > 0 {
			method = "borrow"
		} else {
			method = "repay"
		}
	case types.PositionTypeLST:
		if delta > 0 {
			method = "stake"
		} else {
			method = "unstake"
		}
	}

	return SmartContractInstruction{
		ID:           uuid.NewString(),
		Protocol:     key.Venue,
		Method:       method,
		Token:        key.Symbol,
		Amount:       math.Abs(delta),
		TokenChanges: []ledger.TokenChange{{Key: key, Delta: delta}},
	}
}

func sideOf(delta float64) TradeSide {
	if delta > 0 {
		return TradeSideBuy
	}
	return TradeSideSell
}
