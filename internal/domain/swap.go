package domain

import "github.com/gagliardetto/solana-go"

// TransferEvent is one ledger transfer as observed by a recipient.
type TransferEvent struct {
	From     solana.PublicKey `json:"from"`
	To       solana.PublicKey `json:"to"`
	Quantity Quantity         `json:"quantity"`
	Memo     string           `json:"memo"`
}

type InstructionKind uint8

const (
	InstructionDeposit InstructionKind = iota + 1
	InstructionWithdraw
)

func (k InstructionKind) String() string {
	switch k {
	case InstructionDeposit:
		return "deposit"
	case InstructionWithdraw:
		return "withdraw"
	default:
		return "unknown"
	}
}

// Instruction is the parsed intent of an inbound transfer. It is either a
// DepositInstruction or a WithdrawInstruction.
type Instruction interface {
	Kind() InstructionKind
	Pair() string
}

// DepositInstruction turns the inbound asset into liquidity of PairID.
type DepositInstruction struct {
	PairID string
}

func (d DepositInstruction) Kind() InstructionKind { return InstructionDeposit }
func (d DepositInstruction) Pair() string          { return d.PairID }

// WithdrawInstruction redeems liquidity of PairID into the Target symbol.
type WithdrawInstruction struct {
	PairID string
	Target string
}

func (w WithdrawInstruction) Kind() InstructionKind { return InstructionWithdraw }
func (w WithdrawInstruction) Pair() string          { return w.PairID }
