package sealevel

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/solana-playground/playnet/pkg/safemath"
	"k8s.io/klog/v2"
)

const LogCollectorBytesLimit = 10000

type Logger interface {
	Log(s string)
}

// LogCollector records the program log of one transaction. Once the byte
// limit is reached a single "Log truncated" line is appended and further
// messages are dropped.
type LogCollector struct {
	Logs         []string
	bytesWritten uint64
	bytesLimit   uint64
	limitWarning bool
}

func NewLogCollector() *LogCollector {
	return &LogCollector{bytesLimit: LogCollectorBytesLimit}
}

func (lc *LogCollector) Log(s string) {
	if lc == nil {
		return
	}
	klog.V(4).Info(s)

	bytesWritten := safemath.SaturatingAddU64(lc.bytesWritten, uint64(len(s)))
	if lc.bytesLimit != 0 && bytesWritten >= lc.bytesLimit {
		if !lc.limitWarning {
			lc.limitWarning = true
			lc.Logs = append(lc.Logs, "Log truncated")
		}
		return
	}
	lc.bytesWritten = bytesWritten
	lc.Logs = append(lc.Logs, s)
}

func (lc *LogCollector) Messages() []string {
	if lc == nil {
		return nil
	}
	return lc.Logs
}

func logProgramInvoke(log Logger, programId solana.PublicKey, stackHeight uint64) {
	log.Log(fmt.Sprintf("Program %s invoke [%d]", programId, stackHeight))
}

func logProgramSuccess(log Logger, programId solana.PublicKey) {
	log.Log(fmt.Sprintf("Program %s success", programId))
}

func logProgramFailure(log Logger, programId solana.PublicKey, err error) {
	log.Log(fmt.Sprintf("Program %s failed: %s", programId, DescribeInstructionError(err)))
}

func logProgramConsumed(log Logger, programId solana.PublicKey, consumed uint64, limit uint64) {
	log.Log(fmt.Sprintf("Program %s consumed %d of %d compute units", programId, consumed, limit))
}

func logProgramReturn(log Logger, programId solana.PublicKey, data []byte) {
	log.Log(fmt.Sprintf("Program return: %s %s", programId, base64.StdEncoding.EncodeToString(data)))
}

// LogProgramMessage records a "Program log:" line on behalf of a program.
func LogProgramMessage(log Logger, msg string) {
	log.Log("Program log: " + msg)
}

// LogProgramData records a "Program data:" line, one base64 field per slice.
func LogProgramData(log Logger, fields [][]byte) {
	encoded := make([]string, 0, len(fields))
	for _, field := range fields {
		encoded = append(encoded, base64.StdEncoding.EncodeToString(field))
	}
	log.Log("Program data: " + strings.Join(encoded, " "))
}
