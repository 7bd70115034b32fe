package execution

import (
	"context"

	"github.com/google/uuid"

	perrors "github.com/IggyIkenna/basis-strategy-v1-sub010/internal/errors"
)

// Execution modes reported back in receipts
const (
	ModeSimulated = "simulated"
	ModeLive      = "live"
)

// Receipt is what a venue reports for one executed instruction
type Receipt struct {
	Success       bool    `json:"success"`
	Amount        float64 `json:"amount"`
	ExecutionMode string  `json:"execution_mode"`
	TransferID    string  `json:"transfer_id,omitempty"`
	TxHash        string  `json:"tx_hash,omitempty"`
}

// VenueExecutor is the venue execution collaborator. Simulated and live
// implementations are interchangeable behind this contract; the
// coordinator only ever reaches an executor through the owning venue's
// sequential call queue.
type VenueExecutor interface {
	ExecuteWalletTransfer(ctx context.Context, instruction WalletTransferInstruction) (Receipt, error)
	ExecuteCEXTrade(ctx context.Context, instruction CEXTradeInstruction) (Receipt, error)

	// ExecuteSmartContractBundle submits the instructions as one atomic
	// transaction: either all of them take effect or none do
	ExecuteSmartContractBundle(ctx context.Context, instructions []SmartContractInstruction) (Receipt, error)
}

// SimulatedExecutor fills every instruction instantly at the requested
// amount. It backs backtest runs and tests.
type SimulatedExecutor struct{}

// NewSimulatedExecutor creates a simulated venue executor
func NewSimulatedExecutor() *SimulatedExecutor {
	return &SimulatedExecutor{}
}

func (e *SimulatedExecutor) ExecuteWalletTransfer(ctx context.Context, instruction WalletTransferInstruction) (Receipt, error) {
	return Receipt{
		Success:       true,
		Amount:        instruction.Amount,
		ExecutionMode: ModeSimulated,
		TransferID:    uuid.NewString(),
	}, nil
}

func (e *SimulatedExecutor) ExecuteCEXTrade(ctx context.Context, instruction CEXTradeInstruction) (Receipt, error) {
	return Receipt{
		Success:       true,
		Amount:        instruction.Quantity,
		ExecutionMode: ModeSimulated,
		TransferID:    uuid.NewString(),
	}, nil
}

func (e *SimulatedExecutor) ExecuteSmartContractBundle(ctx context.Context, instructions []SmartContractInstruction) (Receipt, error) {
	var total float64
	for _, instruction := range instructions {
		total += instruction.Amount
	}
	return Receipt{
		Success:       true,
		Amount:        total,
		ExecutionMode: ModeSimulated,
		TxHash:        uuid.NewString(),
	}, nil
}

// UnimplementedLiveExecutor is the fail-fast live executor for execution
// paths that have no live implementation yet. It never silently no-ops:
// every call returns a typed not-implemented error.
type UnimplementedLiveExecutor struct {
	VenueName string
}

func (e *UnimplementedLiveExecutor) ExecuteWalletTransfer(ctx context.Context, instruction WalletTransferInstruction) (Receipt, error) {
	return Receipt{}, perrors.NewNotImplementedError("execution", "ExecuteWalletTransfer",
		"live wallet transfers are not implemented for venue "+e.VenueName)
}

func (e *UnimplementedLiveExecutor) ExecuteCEXTrade(ctx context.Context, instruction CEXTradeInstruction) (Receipt, error) {
	return Receipt{}, perrors.NewNotImplementedError("execution", "ExecuteCEXTrade",
		"live CEX trading is not implemented for venue "+e.VenueName)
}

func (e *UnimplementedLiveExecutor) ExecuteSmartContractBundle(ctx context.Context, instructions []SmartContractInstruction) (Receipt, error) {
	return Receipt{}, perrors.NewNotImplementedError("execution", "ExecuteSmartContractBundle",
		"live smart contract execution is not implemented for venue "+e.VenueName)
}
