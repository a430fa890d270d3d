package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fivetwenty-io/crm-client/internal/constants"
	"github.com/fivetwenty-io/crm-client/pkg/crm"
)

// Static errors for err113 compliance.
var (
	ErrUnsupportedOperationType = errors.New("unsupported operation type")
)

// OperationType selects what a BatchOperation does.
type OperationType string

// Batch operation types.
const (
	OperationQuery    OperationType = "query"
	OperationQueryAll OperationType = "queryAll"
	OperationRetrieve OperationType = "retrieve"
	OperationCreate   OperationType = "create"
	OperationUpdate   OperationType = "update"
	OperationDelete   OperationType = "delete"
	OperationDescribe OperationType = "describe"
)

// BatchOperation represents a single operation in a batch.
type BatchOperation struct {
	ID     string
	Tenant crm.Tenant
	Type   OperationType

	// ObjectType is used by retrieve, delete and describe.
	ObjectType string
	// RecordID is used by retrieve and delete.
	RecordID crm.ID
	// Fields limits a retrieve.
	Fields []string
	// Query is used by query and queryAll.
	Query string
	// Record is used by create and update.
	Record *crm.Record

	Callback func(result *BatchResult)
}

// BatchResult represents the result of a batch operation.
type BatchResult struct {
	ID       string
	Success  bool
	Data     interface{}
	Error    error
	Duration time.Duration
}

// BatchExecutor executes independent operations concurrently. Tenant
// concurrency limits still apply: operations beyond a tenant's limit wait
// for admission like any other call.
type BatchExecutor struct {
	client      crm.Client
	concurrency int
	timeout     time.Duration
}

// NewBatchExecutor creates a new batch executor.
func NewBatchExecutor(client crm.Client, concurrency int) *BatchExecutor {
	if concurrency <= 0 {
		concurrency = constants.DefaultBatchConcurrency
	}

	return &BatchExecutor{
		client:      client,
		concurrency: concurrency,
		timeout:     constants.DefaultHTTPTimeout,
	}
}

// SetTimeout sets the per-operation timeout. Zero disables it.
func (b *BatchExecutor) SetTimeout(timeout time.Duration) {
	b.timeout = timeout
}

// Execute runs a batch of operations. Results are in operation order.
// Operation failures are reported in the results; the returned error is
// only set when ctx ends before every operation ran.
func (b *BatchExecutor) Execute(ctx context.Context, operations []BatchOperation) ([]BatchResult, error) {
	results := make([]BatchResult, len(operations))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(b.concurrency)

	for index, operation := range operations {
		if groupCtx.Err() != nil {
			break
		}

		group.Go(func() error {
			opCtx := groupCtx

			if b.timeout > 0 {
				var cancel context.CancelFunc

				opCtx, cancel = context.WithTimeout(groupCtx, b.timeout)
				defer cancel()
			}

			start := time.Now()
			result := b.executeOperation(opCtx, operation)
			result.Duration = time.Since(start)
			results[index] = *result

			if operation.Callback != nil {
				operation.Callback(result)
			}

			return nil
		})
	}

	_ = group.Wait()

	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("batch interrupted: %w", err)
	}

	return results, nil
}

func (b *BatchExecutor) executeOperation(ctx context.Context, operation BatchOperation) *BatchResult {
	result := &BatchResult{ID: operation.ID}

	var (
		data interface{}
		err  error
	)

	switch operation.Type {
	case OperationQuery:
		data, err = b.client.Query(ctx, operation.Tenant, operation.Query)
	case OperationQueryAll:
		data, err = b.client.QueryAll(ctx, operation.Tenant, operation.Query)
	case OperationRetrieve:
		data, err = b.client.Retrieve(ctx, operation.Tenant, operation.ObjectType, operation.RecordID, operation.Fields)
	case OperationCreate:
		data, err = b.client.Create(ctx, operation.Tenant, operation.Record)
	case OperationUpdate:
		err = b.client.Update(ctx, operation.Tenant, operation.Record)
		data = operation.Record
	case OperationDelete:
		err = b.client.Delete(ctx, operation.Tenant, operation.ObjectType, operation.RecordID)
	case OperationDescribe:
		data, err = b.client.Describe(ctx, operation.Tenant, operation.ObjectType)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedOperationType, operation.Type)
	}

	result.Success = err == nil
	result.Error = err

	if err == nil {
		result.Data = data
	}

	return result
}
