// Package bank is the in-memory execution bank: it sanitizes, loads,
// executes and commits transactions against a RAM-resident account store.
package bank

import (
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/minio/sha256-simd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/solana-playground/playnet/pkg/accounts"
	"github.com/solana-playground/playnet/pkg/config"
	"github.com/solana-playground/playnet/pkg/cu"
	"github.com/solana-playground/playnet/pkg/features"
	"github.com/solana-playground/playnet/pkg/fees"
	"github.com/solana-playground/playnet/pkg/rent"
	"github.com/solana-playground/playnet/pkg/sealevel"
	"k8s.io/klog/v2"
)

// Bank is single-threaded: callers must serialize every method call.
type Bank struct {
	cfg             *config.Config
	accounts        *accounts.MemAccounts
	history         *History
	slot            uint64
	blockHeight     uint64
	genesisHash     solana.Hash
	latestBlockhash solana.Hash
	airdropSigner   solana.PrivateKey
	builtins        sealevel.Builtins
	sysvarCache     *sealevel.SysvarCache
	features        *features.Features
	interpreter     sealevel.Interpreter
	metrics         *Metrics
}

type KeyedAccount struct {
	Pubkey  solana.PublicKey
	Account *accounts.Account
}

// SimulationResult is the outcome of executing a transaction without
// committing it. PostAccounts is only set when execution succeeded.
type SimulationResult struct {
	Err               error
	PreAccounts       []KeyedAccount
	PostAccounts      []KeyedAccount
	Logs              []string
	UnitsConsumed     uint64
	ReturnData        *sealevel.TxReturnData
	InnerInstructions []InnerInstructions
	Fee               uint64
}

func createBlockhash(data []byte) solana.Hash {
	return solana.Hash(sha256.Sum256(data))
}

// New creates a bank from cfg, restoring snapshot when it is non-nil. An
// unreadable snapshot is logged and the bank starts from genesis instead.
func New(cfg *config.Config, snapshot []byte) *Bank {
	if cfg == nil {
		cfg = config.Default()
	}

	b := &Bank{
		cfg:         cfg,
		accounts:    accounts.NewMemAccounts(),
		history:     NewHistory(),
		genesisHash: createBlockhash([]byte(cfg.GenesisSeed)),
		builtins:    sealevel.DefaultBuiltins(),
		features:    cfg.FeatureSet(),
		metrics:     newMetrics(),
	}
	b.latestBlockhash = b.genesisHash

	restored := false
	if snapshot != nil {
		snap, err := decodeSnapshot(snapshot)
		if err != nil {
			klog.Warningf("starting from genesis, snapshot unusable: %s", err)
		} else {
			snap.restoreInto(b)
			restored = true
		}
	}

	for _, programId := range b.builtins.ProgramIds() {
		b.setAccount(programId, &accounts.Account{Lamports: 1, Data: []byte{}, Owner: sealevel.NativeLoaderAddr, Executable: true})
	}

	b.sysvarCache = sealevel.NewSysvarCache(cfg.RentParams(), cfg.RecentBlockhashesMax)
	if !restored || !b.restoreSysvars() {
		b.sysvarCache.SetClock(sealevel.SysvarClock{Slot: b.slot})
		b.sysvarCache.PushRecentBlockhash(b.latestBlockhash, cfg.LamportsPerSignature)
	}
	b.writeSysvarAccounts()

	if !restored {
		signer, err := solana.NewRandomPrivateKey()
		if err != nil {
			klog.Fatalf("generating airdrop keypair: %s", err)
		}
		b.airdropSigner = signer
		b.setAccount(b.airdropSigner.PublicKey(), &accounts.Account{Lamports: cfg.AirdropLamports, Data: []byte{}, Owner: sealevel.SystemProgramAddr})
	}

	b.metrics.slot.Set(float64(b.slot))
	klog.Infof("bank ready at slot %d, genesis %s, airdrop authority %s", b.slot, b.genesisHash, b.airdropSigner.PublicKey())
	for _, line := range b.features.AllEnabled() {
		klog.Info(line)
	}

	return b
}

func (b *Bank) setAccount(pubkey solana.PublicKey, acct *accounts.Account) *accounts.Account {
	key := [32]byte(pubkey)
	return b.accounts.Replace(&key, acct)
}

// restoreSysvars seeds the clock and recent blockhashes from the account
// copies carried by a snapshot. Rent always comes from the configuration.
func (b *Bank) restoreSysvars() bool {
	clockAcct := b.GetAccount(sealevel.SysvarClockAddr)
	recentAcct := b.GetAccount(sealevel.SysvarRecentBlockHashesAddr)
	if clockAcct == nil || recentAcct == nil {
		return false
	}

	var clock sealevel.SysvarClock
	if err := clock.UnmarshalWithDecoder(bin.NewBinDecoder(clockAcct.Data)); err != nil {
		klog.Warningf("ignoring snapshot clock: %s", err)
		return false
	}
	var recent sealevel.SysvarRecentBlockhashes
	if err := recent.UnmarshalWithDecoder(bin.NewBinDecoder(recentAcct.Data)); err != nil || len(recent) == 0 {
		klog.Warningf("ignoring snapshot recent blockhashes: %v", err)
		return false
	}
	if len(recent) > b.cfg.RecentBlockhashesMax {
		recent = recent[:b.cfg.RecentBlockhashesMax]
	}

	clock.Slot = b.slot
	b.sysvarCache.SetClock(clock)
	b.sysvarCache.SetRecentBlockHashes(recent)
	return true
}

func (b *Bank) writeSysvarAccounts() {
	for pubkey, acct := range b.sysvarCache.Accounts() {
		b.setAccount(pubkey, acct)
	}
}

// SetInterpreter installs the runtime that executes on-chain programs.
func (b *Bank) SetInterpreter(interp sealevel.Interpreter) {
	b.interpreter = interp
}

func (b *Bank) Slot() uint64 {
	return b.slot
}

func (b *Bank) BlockHeight() uint64 {
	return b.blockHeight
}

func (b *Bank) GenesisHash() solana.Hash {
	return b.genesisHash
}

func (b *Bank) LatestBlockhash() solana.Hash {
	return b.latestBlockhash
}

func (b *Bank) AirdropPubkey() solana.PublicKey {
	return b.airdropSigner.PublicKey()
}

func (b *Bank) Features() *features.Features {
	return b.features
}

func (b *Bank) Clock() sealevel.SysvarClock {
	return b.sysvarCache.GetClock()
}

func (b *Bank) Rent() rent.Rent {
	return b.sysvarCache.GetRent()
}

// Registry exposes the bank's metrics for scraping.
func (b *Bank) Registry() *prometheus.Registry {
	return b.metrics.registry
}

// GetAccount returns a copy of the account, or nil if it holds no lamports.
func (b *Bank) GetAccount(pubkey solana.PublicKey) *accounts.Account {
	key := [32]byte(pubkey)
	acct, _ := b.accounts.GetAccount(&key)
	return acct
}

func (b *Bank) GetAccountOrDefault(pubkey solana.PublicKey) *accounts.Account {
	key := [32]byte(pubkey)
	return b.accounts.GetAccountOrDefault(&key)
}

// SetAccount stores acct under pubkey and returns the previous record.
func (b *Bank) SetAccount(pubkey solana.PublicKey, acct *accounts.Account) *accounts.Account {
	return b.setAccount(pubkey, acct)
}

func (b *Bank) GetTransaction(sig solana.Signature) (*TransactionRecord, bool) {
	return b.history.Get(sig)
}

// MinimumBalanceForRentExemption never returns less than one lamport.
func (b *Bank) MinimumBalanceForRentExemption(dataLen uint64) uint64 {
	return max(b.sysvarCache.GetRent().MinimumBalance(dataLen), 1)
}

func (b *Bank) FeeForMessage(msg *solana.Message) (uint64, bool) {
	return fees.CalculateFee(msg, b.cfg.LamportsPerSignature)
}

// AccountsHash digests every live account.
func (b *Bank) AccountsHash() [32]byte {
	return b.accounts.Hash()
}

// SetClock replaces the clock sysvar in the cache and in account form.
func (b *Bank) SetClock(clock sealevel.SysvarClock) {
	b.sysvarCache.SetClock(clock)
	b.writeSysvarAccounts()
}

func (b *Bank) SetRent(r rent.Rent) {
	b.sysvarCache.SetRent(r)
	b.writeSysvarAccounts()
}

// Simulate executes tx against the current state without committing it.
func (b *Bank) Simulate(tx *solana.Transaction) *SimulationResult {
	if err := SanitizeTransaction(tx); err != nil {
		return &SimulationResult{Err: err}
	}
	return b.execute(tx)
}

func (b *Bank) execute(tx *solana.Transaction) *SimulationResult {
	b.metrics.simulated.Inc()
	msg := &tx.Message

	fee, ok := b.FeeForMessage(msg)
	if !ok {
		return &SimulationResult{Err: TxErrInsufficientFundsForFee}
	}

	loaded, err := loadTransaction(b.accounts, b.features, b.cfg.LoadedAccountsDataSizeLimit, msg, fee)
	if err != nil {
		return &SimulationResult{Err: err, Fee: fee}
	}

	numKeys := len(msg.AccountKeys)
	result := &SimulationResult{
		PreAccounts: keyedAccounts(loaded.Keys[:numKeys], loaded.Accounts[:numKeys]),
		Fee:         fee,
	}

	loaded.Accounts[0].Lamports -= fee

	budget := b.cfg.ComputeBudget()
	txCtx := sealevel.NewTransactionCtx(loaded.Keys, loaded.Accounts, budget.MaxInvokeStackHeight, budget.MaxInstructionTraceLength)
	r := b.sysvarCache.GetRent()
	txCtx.Rent = &r

	logs := sealevel.NewLogCollector()
	execCtx := &sealevel.ExecutionCtx{
		Log:                  logs,
		TransactionContext:   txCtx,
		Features:             b.features,
		SysvarCache:          b.sysvarCache,
		ComputeMeter:         cu.NewComputeMeter(budget.ComputeUnitLimit),
		Builtins:             b.builtins,
		Interpreter:          b.interpreter,
		Blockhash:            b.latestBlockhash,
		LamportsPerSignature: b.cfg.LamportsPerSignature,
	}

	result.Err = execCtx.ProcessMessage(msg, loaded.ProgramIndices)
	result.Logs = logs.Messages()
	result.UnitsConsumed = execCtx.ComputeMeter.Used()
	result.ReturnData = txCtx.TrimmedReturnData()
	result.InnerInstructions = innerInstructionsFromTrace(txCtx)

	if result.Err == nil {
		result.PostAccounts = keyedAccounts(loaded.Keys[:numKeys], txCtx.Accounts.Accounts[:numKeys])
	}
	return result
}

func keyedAccounts(keys []solana.PublicKey, accts []*accounts.Account) []KeyedAccount {
	out := make([]KeyedAccount, len(keys))
	for i := range keys {
		out[i] = KeyedAccount{Pubkey: keys[i], Account: accts[i].Clone()}
	}
	return out
}

func balances(accts []KeyedAccount) []uint64 {
	return lo.Map(accts, func(acct KeyedAccount, _ int) uint64 {
		return acct.Account.Lamports
	})
}

// isUpgradeableLoaderWrite reports whether msg carries a buffer Write to the
// upgradeable loader.
func isUpgradeableLoaderWrite(msg *solana.Message) bool {
	return lo.SomeBy(msg.Instructions, func(instr solana.CompiledInstruction) bool {
		return msg.AccountKeys[instr.ProgramIDIndex] == sealevel.BpfLoaderUpgradeableAddr &&
			len(instr.Data) > 0 && instr.Data[0] == sealevel.UpgradeableLoaderInstrTypeWrite
	})
}

// Process executes tx and commits it. Transactions writing to an upgradeable
// loader buffer are committed without a history entry or slot advance.
func (b *Bank) Process(tx *solana.Transaction) (solana.Signature, error) {
	sig, err := b.process(tx)
	if err != nil {
		b.metrics.recordTxError(err)
		klog.V(2).Infof("transaction failed: %s", err)
	}
	return sig, err
}

func (b *Bank) process(tx *solana.Transaction) (solana.Signature, error) {
	if err := SanitizeTransaction(tx); err != nil {
		return solana.Signature{}, err
	}

	msg := &tx.Message
	sig := tx.Signatures[0]
	writeSkip := isUpgradeableLoaderWrite(msg)
	if !writeSkip && b.history.Contains(sig) {
		return solana.Signature{}, TxErrAlreadyProcessed
	}

	result := b.execute(tx)
	if result.Err != nil {
		return solana.Signature{}, result.Err
	}

	for idx, post := range result.PostAccounts {
		if sealevel.IsMessageWritable(msg, idx) {
			b.setAccount(post.Pubkey, post.Account)
		}
	}
	b.metrics.processed.Inc()

	if writeSkip {
		return sig, nil
	}

	blockTime := b.sysvarCache.GetClock().UnixTimestamp
	record := &TransactionRecord{
		Slot:        b.slot,
		Transaction: tx,
		Meta: &TransactionMeta{
			Fee:                  result.Fee,
			PreBalances:          balances(result.PreAccounts),
			PostBalances:         balances(result.PostAccounts),
			LogMessages:          result.Logs,
			InnerInstructions:    result.InnerInstructions,
			ComputeUnitsConsumed: result.UnitsConsumed,
			ReturnData:           result.ReturnData,
		},
		BlockTime: &blockTime,
	}
	if err := b.history.Insert(sig, record); err != nil {
		return solana.Signature{}, err
	}

	b.newSlot()
	return sig, nil
}

// newSlot derives the next blockhash from the previous one and moves the
// clock and recent blockhashes along with it.
func (b *Bank) newSlot() {
	b.latestBlockhash = createBlockhash(b.latestBlockhash[:])
	b.slot++
	b.blockHeight++

	clock := b.sysvarCache.GetClock()
	clock.Slot = b.slot
	b.sysvarCache.SetClock(clock)
	b.sysvarCache.PushRecentBlockhash(b.latestBlockhash, b.cfg.LamportsPerSignature)
	b.writeSysvarAccounts()

	b.metrics.slot.Set(float64(b.slot))
	klog.V(2).Infof("slot %d, blockhash %s", b.slot, b.latestBlockhash)
}

// Airdrop transfers lamports from the bank's airdrop authority to to.
func (b *Bank) Airdrop(to solana.PublicKey, lamports uint64) (solana.Signature, error) {
	payer := b.airdropSigner.PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(lamports, payer, to).Build()},
		b.latestBlockhash,
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return solana.Signature{}, err
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key == payer {
			return &b.airdropSigner
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, err
	}

	return b.Process(tx)
}
