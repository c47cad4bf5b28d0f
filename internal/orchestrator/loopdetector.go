package orchestrator

import (
	"fmt"
)

// taskEntry is one recorded (agent, task) execution.
type taskEntry struct {
	AgentLabel string
	Task       string
	Hash       uint64
}

// LoopDetector guards a single root execution's delegation chain against
// runaway recursion (§4.4a): too many iterations overall, an agent calling
// itself in a short cycle, or the same agent being asked to repeat the
// same task.
type LoopDetector struct {
	maxIterations      int
	maxDependencyDepth int

	agentTaskHistory []taskEntry
	executionChain   []string
	iterationCount   int
	detectedLoops    []string
}

// NewLoopDetector constructs a detector bounded by the configured
// iteration ceiling and circular-dependency window.
func NewLoopDetector(maxIterations, maxDependencyDepth int) *LoopDetector {
	if maxIterations <= 0 {
		maxIterations = 10
	}
	if maxDependencyDepth <= 0 {
		maxDependencyDepth = 5
	}
	return &LoopDetector{maxIterations: maxIterations, maxDependencyDepth: maxDependencyDepth}
}

// polyHash is a simple rolling polynomial hash (base 131, a Rabin-Karp
// constant) used to fingerprint task text cheaply for repetition checks.
func polyHash(s string) uint64 {
	const base uint64 = 131
	var h uint64
	for i := 0; i < len(s); i++ {
		h = h*base + uint64(s[i])
	}
	return h
}

// CheckBefore decides whether agentLabel may be dispatched to run task
// next. ok=false carries a human-readable reason in reason, and the loop
// is recorded into DetectedLoops so the eventual Result can report it.
func (d *LoopDetector) CheckBefore(agentLabel, task string) (ok bool, reason string) {
	if d.iterationCount >= d.maxIterations {
		reason = fmt.Sprintf("max iterations (%d) exceeded", d.maxIterations)
		d.detectedLoops = append(d.detectedLoops, reason)
		return false, reason
	}

	if d.isCircular(agentLabel) {
		reason = fmt.Sprintf("circular delegation: %s reappears within the last %d calls", agentLabel, d.maxDependencyDepth)
		d.detectedLoops = append(d.detectedLoops, reason)
		return false, reason
	}

	hash := polyHash(agentLabel + "\x00" + task)
	if d.isRepeatedTask(agentLabel, hash) {
		reason = fmt.Sprintf("%s asked to repeat an identical task", agentLabel)
		d.detectedLoops = append(d.detectedLoops, reason)
		return false, reason
	}

	return true, ""
}

// isCircular reports whether agentLabel already appears anywhere in the
// trailing maxDependencyDepth entries of the execution chain: the agent
// re-appearing within that window is itself the cycle (§4.4a — a run
// terminates once an agent "appears in the last max_dependency_depth"
// calls, not only on a second repeat).
func (d *LoopDetector) isCircular(agentLabel string) bool {
	window := d.executionChain
	if len(window) > d.maxDependencyDepth {
		window = window[len(window)-d.maxDependencyDepth:]
	}
	for _, label := range window {
		if label == agentLabel {
			return true
		}
	}
	return false
}

// isRepeatedTask reports whether agentLabel has already run the exact
// same task (by hash) earlier in this root execution.
func (d *LoopDetector) isRepeatedTask(agentLabel string, hash uint64) bool {
	for _, entry := range d.agentTaskHistory {
		if entry.AgentLabel == agentLabel && entry.Hash == hash {
			return true
		}
	}
	return false
}

// RecordExecution appends agentLabel/task to the history after a
// successful CheckBefore, advancing the iteration counter and chain.
func (d *LoopDetector) RecordExecution(agentLabel, task string) {
	d.iterationCount++
	d.executionChain = append(d.executionChain, agentLabel)
	d.agentTaskHistory = append(d.agentTaskHistory, taskEntry{
		AgentLabel: agentLabel,
		Task:       task,
		Hash:       polyHash(agentLabel + "\x00" + task),
	})
}

// Summary returns an exit report: iteration count, detected loops, a
// preview of completed tasks, and the full execution chain (§4.4a).
type Summary struct {
	IterationCount  int
	DetectedLoops   []string
	ExecutionChain  []string
	CompletedTasks  []string
}

func (d *LoopDetector) Summary() Summary {
	preview := make([]string, 0, len(d.agentTaskHistory))
	for _, entry := range d.agentTaskHistory {
		preview = append(preview, fmt.Sprintf("%s: %s", entry.AgentLabel, truncate(entry.Task, 80)))
	}
	return Summary{
		IterationCount: d.iterationCount,
		DetectedLoops:  append([]string(nil), d.detectedLoops...),
		ExecutionChain: append([]string(nil), d.executionChain...),
		CompletedTasks: preview,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
