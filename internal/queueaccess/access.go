// Package queueaccess exposes queue operations behind one interface whether
// the daemon is reachable over IPC or the CLI opens the index directly.
package queueaccess

import (
	"context"
	"fmt"

	"distill/internal/ipc"
	"distill/internal/queue"
)

// Access provides queue operations regardless of IPC or direct store backing.
type Access interface {
	Stats(ctx context.Context) (map[string]int, error)
	Health(ctx context.Context) (ipc.QueueHealthResponse, error)
	List(ctx context.Context, statuses []string) ([]ipc.QueueItem, error)
	Describe(ctx context.Context, id int64) (*ipc.QueueItem, error)
	ClearAll(ctx context.Context) (int64, error)
	ClearCompleted(ctx context.Context) (int64, error)
	ClearFailed(ctx context.Context) (int64, error)
	Remove(ctx context.Context, ids []int64) (int64, error)
	ResetStuck(ctx context.Context) (int64, error)
	RetryAll(ctx context.Context) (int64, error)
	Retry(ctx context.Context, ids []int64) (int64, error)
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct DB access.
func NewStoreAccess(store *queue.Store) Access {
	return &storeAccess{store: store}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) Stats(_ context.Context) (map[string]int, error) {
	resp, err := a.client.Status()
	if err != nil {
		return nil, err
	}
	return resp.QueueStats, nil
}

func (a *ipcAccess) Health(_ context.Context) (ipc.QueueHealthResponse, error) {
	resp, err := a.client.QueueHealth()
	if err != nil {
		return ipc.QueueHealthResponse{}, err
	}
	return *resp, nil
}

func (a *ipcAccess) List(_ context.Context, statuses []string) ([]ipc.QueueItem, error) {
	resp, err := a.client.QueueList(statuses)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (a *ipcAccess) Describe(_ context.Context, id int64) (*ipc.QueueItem, error) {
	resp, err := a.client.QueueDescribe(id)
	if err != nil {
		return nil, err
	}
	return &resp.Item, nil
}

func (a *ipcAccess) ClearAll(_ context.Context) (int64, error) {
	resp, err := a.client.QueueClear()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) ClearCompleted(_ context.Context) (int64, error) {
	resp, err := a.client.QueueClearCompleted()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) ClearFailed(_ context.Context) (int64, error) {
	resp, err := a.client.QueueClearFailed()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) Remove(_ context.Context, ids []int64) (int64, error) {
	resp, err := a.client.QueueRemove(ids)
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) ResetStuck(_ context.Context) (int64, error) {
	resp, err := a.client.QueueReset()
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *ipcAccess) RetryAll(_ context.Context) (int64, error) {
	resp, err := a.client.QueueRetry(nil)
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *ipcAccess) Retry(_ context.Context, ids []int64) (int64, error) {
	resp, err := a.client.QueueRetry(ids)
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

type storeAccess struct {
	store *queue.Store
}

func (a *storeAccess) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out, nil
}

func (a *storeAccess) Health(ctx context.Context) (ipc.QueueHealthResponse, error) {
	health, err := a.store.Health(ctx)
	if err != nil {
		return ipc.QueueHealthResponse{}, err
	}
	return ipc.QueueHealthResponse{
		Total:      health.Total,
		Pending:    health.Pending,
		Processing: health.Processing,
		Failed:     health.Failed,
		Completed:  health.Completed,
	}, nil
}

func (a *storeAccess) List(ctx context.Context, statuses []string) ([]ipc.QueueItem, error) {
	var filters []queue.Status
	for _, s := range statuses {
		if parsed, ok := queue.ParseStatus(s); ok {
			filters = append(filters, parsed)
		}
	}
	items, err := a.store.List(ctx, filters...)
	if err != nil {
		return nil, err
	}
	out := make([]ipc.QueueItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, ipc.FromQueueItem(item))
	}
	return out, nil
}

func (a *storeAccess) Describe(ctx context.Context, id int64) (*ipc.QueueItem, error) {
	item, err := a.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("queue item %d not found", id)
	}
	dto := ipc.FromQueueItem(item)
	return &dto, nil
}

func (a *storeAccess) ClearAll(ctx context.Context) (int64, error) {
	return a.store.Clear(ctx)
}

func (a *storeAccess) ClearCompleted(ctx context.Context) (int64, error) {
	return a.store.ClearCompleted(ctx)
}

func (a *storeAccess) ClearFailed(ctx context.Context) (int64, error) {
	return a.store.ClearFailed(ctx)
}

func (a *storeAccess) Remove(ctx context.Context, ids []int64) (int64, error) {
	var count int64
	for _, id := range ids {
		removed, err := a.store.Remove(ctx, id)
		if err != nil {
			return count, err
		}
		if removed {
			count++
		}
	}
	return count, nil
}

func (a *storeAccess) ResetStuck(ctx context.Context) (int64, error) {
	return a.store.ResetStuckProcessing(ctx)
}

func (a *storeAccess) RetryAll(ctx context.Context) (int64, error) {
	return a.store.RetryFailed(ctx)
}

func (a *storeAccess) Retry(ctx context.Context, ids []int64) (int64, error) {
	return a.store.RetryFailed(ctx, ids...)
}
