package sealevel

// Interpreter runs compiled user programs on behalf of the BPF loaders.
// Execute sees the current frame through execCtx; any lamport or data change
// must go through BorrowedAccount so that privilege checks apply.
type Interpreter interface {
	Verify(programData []byte) error
	Execute(execCtx *ExecutionCtx, programData []byte) error
}
