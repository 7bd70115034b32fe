package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/callqueue"
	perrors "github.com/IggyIkenna/basis-strategy-v1-sub010/internal/errors"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/ledger"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/logger"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/pkg/types"
)

const component = "execution"

// DefaultFundingVenue is the off-exchange wallet margin transfers draw
// from when no funding venue is configured
const DefaultFundingVenue = "wallet"

const (
	defaultQueueCapacity      = 64
	defaultCallTimeout        = 30 * time.Second
	defaultAwaitTimeout       = 45 * time.Second
	defaultInitialMarginRatio = 0.2
)

// Config configures the execution coordinator
type Config struct {
	// ShareClassCurrency is the cash currency settlement legs are
	// denominated in
	ShareClassCurrency string `json:"share_class_currency"`

	// CEXVenues lists the venues whose base-token deltas trade on an
	// exchange rather than on chain
	CEXVenues []string `json:"cex_venues"`

	// Simulated selects the simulated executor for venues with no
	// registered live executor. In live mode such venues fail fast.
	Simulated bool `json:"simulated"`

	// FundingVenue names the wallet venue perp margin is drawn from
	FundingVenue string `json:"funding_venue"`

	// InitialMarginRatio is the cash kept behind each venue's open
	// perpetual notional. It must clear the maintenance threshold with
	// room for adverse marks.
	InitialMarginRatio float64 `json:"initial_margin_ratio"`

	QueueCapacity int           `json:"queue_capacity"`
	CallTimeout   time.Duration `json:"call_timeout"`
	AwaitTimeout  time.Duration `json:"await_timeout"`
}

// Coordinator turns strategy actions into instruction blocks and runs
// them. Every venue call goes through that venue's sequential call queue;
// each successful instruction's delta is applied to the ledger and pushed
// through the tight loop before the next instruction runs, so every
// mutation is immediately visible to risk checks.
type Coordinator struct {
	cfg       Config
	cexVenues map[string]bool

	ledger *ledger.Ledger
	events *logger.EventLog
	log    *logger.Logger

	mu        sync.Mutex
	executors map[string]VenueExecutor
	queues    map[string]*callqueue.Queue

	// onMutation is the tight-loop hook: called with the post-apply
	// snapshot after every successful ledger mutation
	onMutation func(ledger.Snapshot)
}

// NewCoordinator creates an execution coordinator bound to one ledger
func NewCoordinator(cfg Config, led *ledger.Ledger, events *logger.EventLog, log *logger.Logger) *Coordinator {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defaultQueueCapacity
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.AwaitTimeout <= 0 {
		cfg.AwaitTimeout = defaultAwaitTimeout
	}
	if cfg.FundingVenue == "" {
		cfg.FundingVenue = DefaultFundingVenue
	}
	if cfg.InitialMarginRatio <= 0 {
		cfg.InitialMarginRatio = defaultInitialMarginRatio
	}

	cexVenues := make(map[string]bool, len(cfg.CEXVenues))
	for _, venue := range cfg.CEXVenues {
		cexVenues[venue] = true
	}

	return &Coordinator{
		cfg:       cfg,
		cexVenues: cexVenues,
		ledger:    led,
		events:    events,
		log:       log,
		executors: make(map[string]VenueExecutor),
		queues:    make(map[string]*callqueue.Queue),
	}
}

// RegisterExecutor binds a venue to its execution collaborator. The
// collaborator owns that venue's credentials and connection; the
// coordinator only reaches it through the venue's call queue.
func (c *Coordinator) RegisterExecutor(venue string, executor VenueExecutor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executors[venue] = executor
}

// SetOnMutation installs the tight-loop hook invoked after every
// successful ledger mutation
func (c *Coordinator) SetOnMutation(fn func(ledger.Snapshot)) {
	c.onMutation = fn
}

// QueueDepths returns the pending depth of every venue queue
func (c *Coordinator) QueueDepths() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	depths := make(map[string]int, len(c.queues))
	for venue, queue := range c.queues {
		depths[venue] = queue.Depth()
	}
	return depths
}

// Stop drains and stops every venue queue
func (c *Coordinator) Stop() {
	c.mu.Lock()
	queues := make([]*callqueue.Queue, 0, len(c.queues))
	for _, queue := range c.queues {
		queues = append(queues, queue)
	}
	c.mu.Unlock()

	for _, queue := range queues {
		queue.Stop()
	}
}

// Execute runs the block: wallet transfers strictly sequentially, then
// the smart-contract bundles (atomic per protocol), then CEX trades.
// Execution is best effort: one instruction's failure is recorded and
// the remainder of the block still runs; nothing is rolled back.
func (c *Coordinator) Execute(ctx context.Context, block *InstructionBlock) (*ExecutionResult, error) {
	if block == nil {
		return nil, perrors.NewValidationError(component, "Execute", "nil instruction block")
	}

	result := &ExecutionResult{
		BlockType: block.BlockType,
		Timestamp: block.TimestampGroup,
	}

	for _, transfer := range block.WalletTransfers {
		if err := ctx.Err(); err != nil {
			return result, perrors.Wrap(err, perrors.ErrorCategoryExecution, component, "Execute", "run cancelled mid-block")
		}
		c.executeWalletTransfer(ctx, block, transfer, result)
	}

	for _, bundle := range groupByProtocol(block.SmartContracts) {
		if err := ctx.Err(); err != nil {
			return result, perrors.Wrap(err, perrors.ErrorCategoryExecution, component, "Execute", "run cancelled mid-block")
		}
		c.executeSmartContractBundle(ctx, block, bundle, result)
	}

	for _, trade := range block.CEXTrades {
		if err := ctx.Err(); err != nil {
			return result, perrors.Wrap(err, perrors.ErrorCategoryExecution, component, "Execute", "run cancelled mid-block")
		}
		c.executeCEXTrade(ctx, block, trade, result)
	}

	return result, nil
}

// executeWalletTransfer validates source balance, executes through the
// source venue's queue, applies both legs to the ledger atomically and
// emits a WALLET_TRANSFER event
func (c *Coordinator) executeWalletTransfer(ctx context.Context, block *InstructionBlock, transfer WalletTransferInstruction, result *ExecutionResult) {
	fail := func(err error) {
		c.logError("wallet transfer "+transfer.ID, err)
		result.record(InstructionResult{
			InstructionID: transfer.ID,
			Type:          InstructionTypeWalletTransfer,
			Venue:         transfer.SourceVenue,
			Error:         err.Error(),
		})
	}

	if transfer.Amount <= 0 {
		fail(perrors.NewValidationError(component, "executeWalletTransfer",
			fmt.Sprintf("transfer amount %v must be positive", transfer.Amount)))
		return
	}
	if transfer.SourceVenue == "" || transfer.TargetVenue == "" || transfer.Token == "" {
		fail(perrors.NewValidationError(component, "executeWalletTransfer",
			"transfer requires source venue, target venue and token"))
		return
	}

	sourceKey := types.NewPositionKey(transfer.SourceVenue, types.PositionTypeBaseToken, transfer.Token)
	targetKey := types.NewPositionKey(transfer.TargetVenue, types.PositionTypeBaseToken, transfer.Token)

	available := c.ledger.Snapshot().Balance(sourceKey)
	if available < transfer.Amount {
		fail(perrors.NewInsufficientBalanceError(component, "executeWalletTransfer",
			sourceKey, transfer.Amount, available))
		return
	}

	executor := c.executorFor(transfer.SourceVenue)
	receipt, err := c.throughQueue(transfer.SourceVenue, func(callCtx context.Context) (interface{}, error) {
		return executor.ExecuteWalletTransfer(callCtx, transfer)
	})
	if err != nil {
		fail(err)
		return
	}

	batch := ledger.DeltaBatch{
		Timestamp: block.TimestampGroup,
		Trigger:   "wallet_transfer:" + transfer.ID,
		TokenChanges: []ledger.TokenChange{
			{Key: sourceKey, Delta: -receipt.Amount},
			{Key: targetKey, Delta: receipt.Amount},
		},
	}
	snapshot, err := c.ledger.Apply(batch)
	if err != nil {
		fail(err)
		return
	}
	c.mutated(snapshot)

	c.events.Append(logger.Event{
		Timestamp:       block.TimestampGroup,
		EventType:       logger.EventTypeWalletTransfer,
		Venue:           transfer.SourceVenue,
		Token:           transfer.Token,
		Amount:          receipt.Amount,
		Details:         fmt.Sprintf("%s -> %s", transfer.SourceVenue, transfer.TargetVenue),
		Severity:        logger.SeverityInfo,
		Purpose:         transfer.Purpose,
		TransactionType: "transfer",
	})
	c.logExec("wallet transfer %s: %.8f %s %s -> %s", transfer.ID,
		receipt.Amount, transfer.Token, transfer.SourceVenue, transfer.TargetVenue)

	result.record(InstructionResult{
		InstructionID: transfer.ID,
		Type:          InstructionTypeWalletTransfer,
		Venue:         transfer.SourceVenue,
		Success:       true,
		Amount:        receipt.Amount,
		ExecutionMode: receipt.ExecutionMode,
		TransferID:    receipt.TransferID,
	})
}

// executeSmartContractBundle submits one protocol's instructions as a
// single atomic transaction and applies their deltas as one batch:
// either the whole bundle lands or none of it does
func (c *Coordinator) executeSmartContractBundle(ctx context.Context, block *InstructionBlock, bundle []SmartContractInstruction, result *ExecutionResult) {
	if len(bundle) == 0 {
		return
	}
	protocol := bundle[0].Protocol

	failAll := func(err error) {
		c.logError("smart contract bundle on "+protocol, err)
		for _, instruction := range bundle {
			result.record(InstructionResult{
				InstructionID: instruction.ID,
				Type:          InstructionTypeSmartContract,
				Venue:         protocol,
				Error:         err.Error(),
			})
		}
	}

	for _, instruction := range bundle {
		if instruction.Amount <= 0 || instruction.Token == "" || instruction.Method == "" {
			failAll(perrors.NewValidationError(component, "executeSmartContractBundle",
				fmt.Sprintf("malformed instruction %s: method=%q token=%q amount=%v",
					instruction.ID, instruction.Method, instruction.Token, instruction.Amount)))
			return
		}
	}

	executor := c.executorFor(protocol)
	receipt, err := c.throughQueue(protocol, func(callCtx context.Context) (interface{}, error) {
		return executor.ExecuteSmartContractBundle(callCtx, bundle)
	})
	if err != nil {
		failAll(err)
		return
	}

	batch := ledger.DeltaBatch{
		Timestamp: block.TimestampGroup,
		Trigger:   "smart_contract:" + protocol,
	}
	for _, instruction := range bundle {
		batch.TokenChanges = append(batch.TokenChanges, instruction.TokenChanges...)
	}
	snapshot, err := c.ledger.Apply(batch)
	if err != nil {
		failAll(err)
		return
	}
	c.mutated(snapshot)

	for _, instruction := range bundle {
		c.events.Append(logger.Event{
			Timestamp:       block.TimestampGroup,
			EventType:       logger.EventTypeSmartContract,
			Venue:           protocol,
			Token:           instruction.Token,
			Amount:          instruction.Amount,
			Details:         instruction.Method,
			Severity:        logger.SeverityInfo,
			TransactionType: instruction.Method,
		})
		c.logExec("smart contract %s: %s %.8f %s on %s (tx %s)", instruction.ID,
			instruction.Method, instruction.Amount, instruction.Token, protocol, receipt.TxHash)

		result.record(InstructionResult{
			InstructionID: instruction.ID,
			Type:          InstructionTypeSmartContract,
			Venue:         protocol,
			Success:       true,
			Amount:        instruction.Amount,
			ExecutionMode: receipt.ExecutionMode,
			TxHash:        receipt.TxHash,
		})
	}
}

func (c *Coordinator) executeCEXTrade(ctx context.Context, block *InstructionBlock, trade CEXTradeInstruction, result *ExecutionResult) {
	fail := func(err error) {
		c.logError("cex trade "+trade.ID, err)
		result.record(InstructionResult{
			InstructionID: trade.ID,
			Type:          InstructionTypeCEXTrade,
			Venue:         trade.Venue,
			Error:         err.Error(),
		})
	}

	if trade.Quantity <= 0 {
		fail(perrors.NewValidationError(component, "executeCEXTrade",
			fmt.Sprintf("trade quantity %v must be positive", trade.Quantity)))
		return
	}

	executor := c.executorFor(trade.Venue)
	receipt, err := c.throughQueue(trade.Venue, func(callCtx context.Context) (interface{}, error) {
		return executor.ExecuteCEXTrade(callCtx, trade)
	})
	if err != nil {
		fail(err)
		return
	}

	batch := ledger.DeltaBatch{
		Timestamp:    block.TimestampGroup,
		Trigger:      "cex_trade:" + trade.ID,
		TokenChanges: trade.TokenChanges,
	}
	if trade.DerivativeChange != nil {
		batch.DerivativeChanges = []ledger.DerivativeChange{*trade.DerivativeChange}
	}
	snapshot, err := c.ledger.Apply(batch)
	if err != nil {
		fail(err)
		return
	}
	c.mutated(snapshot)

	c.events.Append(logger.Event{
		Timestamp:       block.TimestampGroup,
		EventType:       logger.EventTypeCEXTrade,
		Venue:           trade.Venue,
		Token:           trade.Instrument,
		Amount:          receipt.Amount,
		Details:         fmt.Sprintf("%s %.8f @ %.4f", trade.Side, trade.Quantity, trade.Price),
		Severity:        logger.SeverityInfo,
		TransactionType: string(trade.Side),
	})
	c.logExec("cex trade %s: %s %.8f %s @ %.4f on %s", trade.ID,
		trade.Side, trade.Quantity, trade.Instrument, trade.Price, trade.Venue)

	result.record(InstructionResult{
		InstructionID: trade.ID,
		Type:          InstructionTypeCEXTrade,
		Venue:         trade.Venue,
		Success:       true,
		Amount:        receipt.Amount,
		ExecutionMode: receipt.ExecutionMode,
		TransferID:    receipt.TransferID,
	})
}

// throughQueue runs work on the venue's sequential call queue and waits
// for its receipt
func (c *Coordinator) throughQueue(venue string, work callqueue.WorkFunc) (Receipt, error) {
	queue := c.queueFor(venue)

	callID, err := queue.Enqueue(work, 0, c.cfg.CallTimeout)
	if err != nil {
		return Receipt{}, err
	}

	value, err := queue.AwaitResult(callID, c.cfg.AwaitTimeout)
	if err != nil {
		return Receipt{}, err
	}

	receipt, ok := value.(Receipt)
	if !ok {
		return Receipt{}, perrors.NewExecutionError(component, "throughQueue",
			fmt.Errorf("venue %s returned unexpected result type %T", venue, value))
	}
	if !receipt.Success {
		return Receipt{}, perrors.NewExecutionError(component, "throughQueue",
			fmt.Errorf("venue %s rejected the instruction", venue))
	}
	return receipt, nil
}

func (c *Coordinator) executorFor(venue string) VenueExecutor {
	c.mu.Lock()
	defer c.mu.Unlock()

	if executor, ok := c.executors[venue]; ok {
		return executor
	}
	if c.cfg.Simulated {
		return NewSimulatedExecutor()
	}
	return &UnimplementedLiveExecutor{VenueName: venue}
}

func (c *Coordinator) queueFor(venue string) *callqueue.Queue {
	c.mu.Lock()
	defer c.mu.Unlock()

	if queue, ok := c.queues[venue]; ok {
		return queue
	}
	queue := callqueue.NewQueue(venue, c.cfg.QueueCapacity)
	c.queues[venue] = queue
	return queue
}

func (c *Coordinator) mutated(snapshot ledger.Snapshot) {
	if c.onMutation != nil {
		c.onMutation(snapshot)
	}
}

func (c *Coordinator) logExec(format string, args ...interface{}) {
	if c.log != nil {
		c.log.Exec(format, args...)
	}
}

func (c *Coordinator) logError(context string, err error) {
	if c.log != nil {
		c.log.LogError(context, err)
	}
}

// groupByProtocol splits smart contract instructions into per-protocol
// atomic bundles, preserving instruction order within each
func groupByProtocol(instructions []SmartContractInstruction) [][]SmartContractInstruction {
	var order []string
	groups := make(map[string][]SmartContractInstruction)
	for _, instruction := range instructions {
		if _, ok := groups[instruction.Protocol]; !ok {
			order = append(order, instruction.Protocol)
		}
		groups[instruction.Protocol] = append(groups[instruction.Protocol], instruction)
	}

	bundles := make([][]SmartContractInstruction, 0, len(order))
	for _, protocol := range order {
		bundles = append(bundles, groups[protocol])
	}
	return bundles
}
