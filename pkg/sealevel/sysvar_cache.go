package sealevel

import (
	"github.com/gagliardetto/solana-go"
	"github.com/gammazero/deque"
	"github.com/solana-playground/playnet/pkg/accounts"
	"github.com/solana-playground/playnet/pkg/rent"
)

// SysvarCache holds the authoritative sysvar values read by programs. Only
// the bank mutates it, between transactions.
type SysvarCache struct {
	clock             SysvarClock
	rent              SysvarRent
	recentBlockhashes deque.Deque[RecentBlockHashesEntry]
	maxRecentEntries  int
}

func NewSysvarCache(r rent.Rent, maxRecentEntries int) *SysvarCache {
	if maxRecentEntries <= 0 || maxRecentEntries > MaxRecentBlockhashes {
		maxRecentEntries = MaxRecentBlockhashes
	}
	return &SysvarCache{rent: NewSysvarRent(r), maxRecentEntries: maxRecentEntries}
}

func (sysvarCache *SysvarCache) GetClock() SysvarClock {
	return sysvarCache.clock
}

func (sysvarCache *SysvarCache) SetClock(clock SysvarClock) {
	sysvarCache.clock = clock
}

func (sysvarCache *SysvarCache) GetRent() rent.Rent {
	return sysvarCache.rent.Rent()
}

func (sysvarCache *SysvarCache) SetRent(r rent.Rent) {
	sysvarCache.rent = NewSysvarRent(r)
}

// PushRecentBlockhash records blockhash as the newest entry and evicts the
// oldest once the list is full.
func (sysvarCache *SysvarCache) PushRecentBlockhash(blockhash [32]byte, lamportsPerSignature uint64) {
	sysvarCache.recentBlockhashes.PushFront(RecentBlockHashesEntry{
		Blockhash:     blockhash,
		FeeCalculator: FeeCalculator{LamportsPerSignature: lamportsPerSignature},
	})
	for sysvarCache.recentBlockhashes.Len() > sysvarCache.maxRecentEntries {
		sysvarCache.recentBlockhashes.PopBack()
	}
}

func (sysvarCache *SysvarCache) RecentBlockHashes() SysvarRecentBlockhashes {
	entries := make(SysvarRecentBlockhashes, 0, sysvarCache.recentBlockhashes.Len())
	for i := 0; i < sysvarCache.recentBlockhashes.Len(); i++ {
		entries = append(entries, sysvarCache.recentBlockhashes.At(i))
	}
	return entries
}

func (sysvarCache *SysvarCache) SetRecentBlockHashes(entries SysvarRecentBlockhashes) {
	sysvarCache.recentBlockhashes.Clear()
	for _, entry := range entries {
		sysvarCache.recentBlockhashes.PushBack(entry)
	}
}

func newSysvarAccount(data []byte) *accounts.Account {
	return &accounts.Account{Lamports: 1, Data: data, Owner: SysvarOwnerAddr}
}

// Accounts returns the account form of every cached sysvar.
func (sysvarCache *SysvarCache) Accounts() map[solana.PublicKey]*accounts.Account {
	recent := sysvarCache.RecentBlockHashes()
	return map[solana.PublicKey]*accounts.Account{
		SysvarClockAddr:             newSysvarAccount(sysvarCache.clock.Marshal()),
		SysvarRentAddr:              newSysvarAccount(sysvarCache.rent.Marshal()),
		SysvarRecentBlockHashesAddr: newSysvarAccount(recent.Marshal()),
	}
}

func checkAcctForSysvar(txCtx *TransactionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64, sysvarId solana.PublicKey) error {
	idxInTx, err := instrCtx.IndexOfInstructionAccountInTransaction(instrAcctIdx)
	if err != nil {
		return err
	}
	pk, err := txCtx.KeyOfAccountAtIndex(idxInTx)
	if err != nil {
		return err
	}
	if pk != sysvarId {
		return InstrErrInvalidArgument
	}
	return nil
}

func ReadRentSysvarFromCache(execCtx *ExecutionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64) (rent.Rent, error) {
	err := checkAcctForSysvar(execCtx.TransactionContext, instrCtx, instrAcctIdx, SysvarRentAddr)
	if err != nil {
		return rent.Rent{}, err
	}
	return execCtx.SysvarCache.GetRent(), nil
}

func ReadClockSysvarFromCache(execCtx *ExecutionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64) (SysvarClock, error) {
	err := checkAcctForSysvar(execCtx.TransactionContext, instrCtx, instrAcctIdx, SysvarClockAddr)
	if err != nil {
		return SysvarClock{}, err
	}
	return execCtx.SysvarCache.GetClock(), nil
}

func ReadRecentBlockHashesSysvarFromCache(execCtx *ExecutionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64) (SysvarRecentBlockhashes, error) {
	err := checkAcctForRecentBlockHashesSysvar(execCtx.TransactionContext, instrCtx, instrAcctIdx)
	if err != nil {
		return nil, err
	}
	return execCtx.SysvarCache.RecentBlockHashes(), nil
}
