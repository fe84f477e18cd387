package anchor

import (
	"context"
	"time"
)

// GateStage is a progress message shown at a fixed offset into the KYC gate.
type GateStage struct {
	Offset  time.Duration `json:"offset"`
	Message string        `json:"message"`
}

// DefaultGateStages is the standard variant's step-1 script. The gate
// completes when the base verifier answers, 12s with the default verifier.
var DefaultGateStages = []GateStage{
	{0, "Connecting to SAK..."},
	{1500 * time.Millisecond, "Establishing secure connection..."},
	{3000 * time.Millisecond, "Checking user registration..."},
	{4500 * time.Millisecond, "Retrieving KYC data from blockchain..."},
	{6000 * time.Millisecond, "Validating identity with Zero-Knowledge Proofs..."},
	{7500 * time.Millisecond, "Running compliance checks..."},
	{9000 * time.Millisecond, "Verifying on Stellar Blockchain..."},
	{10500 * time.Millisecond, "Finalizing validation..."},
}

const (
	DefaultGateDuration   = 12 * time.Second
	DefaultReplayDuration = 2 * time.Second
	DefaultInlineDelay    = 4 * time.Second
	DefaultBaseFormDelay  = 4 * time.Second
)

// playStages calls onProgress for every stage at its offset from start. It
// returns early with the context error when ctx ends.
func playStages(ctx context.Context, stages []GateStage, onProgress func(GateStage)) error {
	start := time.Now()
	for _, st := range stages {
		if wait := st.Offset - time.Since(start); wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if onProgress != nil {
			onProgress(st)
		}
	}
	return nil
}

// ScaledGateStages stretches DefaultGateStages so the last message lands at
// the same fraction of total as it does in the 12s script.
func ScaledGateStages(total time.Duration) []GateStage {
	if total <= 0 || total == DefaultGateDuration {
		return DefaultGateStages
	}
	out := make([]GateStage, len(DefaultGateStages))
	for i, st := range DefaultGateStages {
		out[i] = GateStage{
			Offset:  time.Duration(float64(st.Offset) * float64(total) / float64(DefaultGateDuration)),
			Message: st.Message,
		}
	}
	return out
}
