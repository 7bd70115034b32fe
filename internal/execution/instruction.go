package execution

import (
	"time"

	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/ledger"
)

// InstructionType classifies instructions by execution class. The class
// decides atomicity: smart-contract instructions within one block may be
// submitted as a single atomic transaction, wallet transfers never are.
type InstructionType string

const (
	InstructionTypeWalletTransfer InstructionType = "WALLET_TRANSFER"
	InstructionTypeCEXTrade       InstructionType = "CEX_TRADE"
	InstructionTypeSmartContract  InstructionType = "SMART_CONTRACT"
)

// TradeSide is the direction of a CEX trade
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// WalletTransferInstruction moves a token balance between two venues.
// Cross-venue settlement cannot be made atomic, so these always execute
// strictly sequentially.
type WalletTransferInstruction struct {
	ID          string  `json:"id"`
	SourceVenue string  `json:"source_venue"`
	TargetVenue string  `json:"target_venue"`
	Token       string  `json:"token"`
	Amount      float64 `json:"amount"`
	Purpose     string  `json:"purpose,omitempty"`
}

// CEXTradeInstruction is one spot or perpetual order on a centralized
// exchange. It carries the ledger changes its fill produces.
type CEXTradeInstruction struct {
	ID         string    `json:"id"`
	Venue      string    `json:"venue"`
	Instrument string    `json:"instrument"`
	Side       TradeSide `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Perp       bool      `json:"perp"`

	TokenChanges     []ledger.TokenChange     `json:"token_changes,omitempty"`
	DerivativeChange *ledger.DerivativeChange `json:"derivative_change,omitempty"`
}

// SmartContractInstruction is one on-chain protocol interaction (supply,
// withdraw, borrow, repay, stake, unstake)
type SmartContractInstruction struct {
	ID       string  `json:"id"`
	Protocol string  `json:"protocol"`
	Method   string  `json:"method"`
	Token    string  `json:"token"`
	Amount   float64 `json:"amount"`

	TokenChanges []ledger.TokenChange `json:"token_changes,omitempty"`
}

// InstructionBlock groups the instructions produced for one strategy
// decision, partitioned by execution class. Wallet transfers run strictly
// sequentially before the smart-contract bundle; the bundle may be
// submitted as one atomic transaction; CEX trades run after, one per
// venue queue. The classes are never interleaved.
type InstructionBlock struct {
	BlockType       string                      `json:"block_type"`
	TimestampGroup  time.Time                   `json:"timestamp_group"`
	WalletTransfers []WalletTransferInstruction `json:"wallet_transfers,omitempty"`
	SmartContracts  []SmartContractInstruction  `json:"smart_contracts,omitempty"`
	CEXTrades       []CEXTradeInstruction       `json:"cex_trades,omitempty"`
}

// IsEmpty reports whether the block carries no instructions
func (b *InstructionBlock) IsEmpty() bool {
	return len(b.WalletTransfers) == 0 && len(b.SmartContracts) == 0 && len(b.CEXTrades) == 0
}

// Size returns the total instruction count
func (b *InstructionBlock) Size() int {
	return len(b.WalletTransfers) + len(b.SmartContracts) + len(b.CEXTrades)
}

// InstructionResult is the terminal state of one executed instruction
type InstructionResult struct {
	InstructionID string          `json:"instruction_id"`
	Type          InstructionType `json:"type"`
	Venue         string          `json:"venue"`
	Success       bool            `json:"success"`
	Amount        float64         `json:"amount"`
	ExecutionMode string          `json:"execution_mode,omitempty"`
	TransferID    string          `json:"transfer_id,omitempty"`
	TxHash        string          `json:"tx_hash,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// ExecutionResult summarizes one executed block. Execution is best
// effort: a failed instruction is recorded here and never rolls back the
// instructions that already ran.
type ExecutionResult struct {
	BlockType string              `json:"block_type"`
	Timestamp time.Time           `json:"timestamp"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Results   []InstructionResult `json:"results"`
}

func (r *ExecutionResult) record(result InstructionResult) {
	if result.Success {
		r.Succeeded++
	} else {
		r.Failed++
	}
	r.Results = append(r.Results, result)
}
