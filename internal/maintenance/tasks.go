package maintenance

import (
	"context"
	"fmt"
)

// Task names.
const (
	TaskCheckpoint = "checkpoint"
	TaskCompact    = "compact"
)

// CheckpointTask persists the vector store when it has unsaved mutations.
type CheckpointTask struct {
	store VectorStore
}

// NewCheckpointTask creates a checkpoint task for store.
func NewCheckpointTask(store VectorStore) *CheckpointTask {
	return &CheckpointTask{store: store}
}

func (t *CheckpointTask) Name() string { return TaskCheckpoint }

func (t *CheckpointTask) Description() string {
	return "persist vector indices and identity map when dirty"
}

func (t *CheckpointTask) Execute(ctx context.Context) TaskResult {
	if !t.store.Dirty() {
		return TaskResult{Success: true, Skipped: true, Message: "nothing to persist"}
	}
	if err := t.store.PersistAll(); err != nil {
		return TaskResult{Message: "checkpoint failed", Error: err.Error()}
	}
	return TaskResult{Success: true, Message: "checkpoint written"}
}

// CompactTask rebuilds the vector indices once the orphan ratio passes a threshold.
type CompactTask struct {
	store     VectorStore
	threshold float64
}

// NewCompactTask creates a compaction task.
func NewCompactTask(store VectorStore, threshold float64) *CompactTask {
	return &CompactTask{store: store, threshold: threshold}
}

func (t *CompactTask) Name() string { return TaskCompact }

func (t *CompactTask) Description() string {
	return fmt.Sprintf("compact vector indices when orphan ratio exceeds %.2f", t.threshold)
}

func (t *CompactTask) Execute(ctx context.Context) TaskResult {
	res, ran, err := t.store.MaybeCompact(ctx, t.threshold)
	if err != nil {
		return TaskResult{Message: "compaction failed", Error: err.Error()}
	}
	if !ran {
		return TaskResult{Success: true, Skipped: true, Message: "orphan ratio below threshold"}
	}
	reclaimed := 0
	for _, n := range res.Reclaimed {
		reclaimed += n
	}
	return TaskResult{Success: true, Message: fmt.Sprintf("reclaimed %d slots", reclaimed)}
}
