package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/afeezaziz/arkrelay-gateway/pkg/cache"
)

// JobKind identifies which deferred operation a Job carries out.
type JobKind string

const (
	JobSweepExpiredSession   JobKind = "sweep_expired_session"
	JobSweepExpiredChallenge JobKind = "sweep_expired_challenge"
	JobSweepExpiredVtxo      JobKind = "sweep_expired_vtxo"
	JobRetryLightningInvoice JobKind = "retry_lightning_invoice"
	JobCompensateCeremony    JobKind = "compensate_ceremony"
)

// Job is the envelope enqueued onto a StreamQueue stream. OperationKey
// identifies the logical operation this job performs; Target identifies
// what it acts on (usually a session, vtxo, or invoice ID). A handler
// should treat (OperationKey) as a dedup key: once it has completed under
// that key, a redelivered copy of the same job is a no-op.
type Job struct {
	OperationKey string          `json:"operation_key"`
	Kind         JobKind         `json:"kind"`
	Target       string          `json:"target"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
}

// ToJSON serializes the job for publishing onto a stream.
func (j *Job) ToJSON() ([]byte, error) {
	return json.Marshal(j)
}

// FromJSONJob deserializes a Job previously produced by ToJSON.
func FromJSONJob(data []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("invalid job payload: %w", err)
	}
	if j.OperationKey == "" {
		return nil, fmt.Errorf("job missing operation_key")
	}
	return &j, nil
}

const completedKeyPrefix = "job:completed:"
const completedKeyTTL = 24 * time.Hour

// AlreadyCompleted reports whether a job with this OperationKey has already
// run to completion, so a redelivered copy (XAutoClaim reclaim, at-least-once
// delivery) can be skipped instead of re-executed.
func AlreadyCompleted(ctx context.Context, operationKey string) (bool, error) {
	return cache.Exists(ctx, completedKeyPrefix+operationKey)
}

// MarkCompleted records that a job's OperationKey has finished, so future
// redeliveries of the same logical operation are recognized as duplicates.
func MarkCompleted(ctx context.Context, operationKey string) error {
	return cache.Set(ctx, completedKeyPrefix+operationKey, "1", completedKeyTTL)
}
