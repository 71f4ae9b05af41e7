// ABOUTME: Test helpers for code built on storage.Store
// ABOUTME: Provides temp SQLite stores and a wrapper that injects faults and counts writes

package storagetest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harper/syndicate/internal/models"
	"github.com/harper/syndicate/internal/storage"
)

// NewSQLite opens a SQLite store in a temp dir, closed when the test ends.
func NewSQLite(t testing.TB) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

type fault struct {
	method string
	key    string
	err    error
}

// FaultyStore wraps a Store, failing chosen calls and counting writes.
type FaultyStore struct {
	storage.Store

	mu     sync.Mutex
	faults []fault
	writes map[string]int
}

// Wrap returns a FaultyStore delegating to store.
func Wrap(store storage.Store) *FaultyStore {
	return &FaultyStore{Store: store, writes: make(map[string]int)}
}

// Fail makes method return err. An empty key matches every call; otherwise
// key is compared to the item key for CreateItem, the group key for group
// methods, and the record ID for other item methods.
func (f *FaultyStore) Fail(method, key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, fault{method: method, key: key, err: err})
}

// Reset clears faults and write counts.
func (f *FaultyStore) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = nil
	f.writes = make(map[string]int)
}

// Writes returns the number of successful write calls for method, or for
// all methods when method is empty.
func (f *FaultyStore) Writes(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if method != "" {
		return f.writes[method]
	}
	total := 0
	for _, n := range f.writes {
		total += n
	}
	return total
}

func (f *FaultyStore) check(method, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, flt := range f.faults {
		if flt.method == method && (flt.key == "" || flt.key == key) {
			return flt.err
		}
	}
	return nil
}

func (f *FaultyStore) wrote(method string, err error) error {
	if err == nil {
		f.mu.Lock()
		f.writes[method]++
		f.mu.Unlock()
	}
	return err
}

func (f *FaultyStore) CreateGroup(ctx context.Context, group *models.SourceGroup) error {
	if err := f.check("CreateGroup", group.GroupKey); err != nil {
		return err
	}
	return f.wrote("CreateGroup", f.Store.CreateGroup(ctx, group))
}

func (f *FaultyStore) GetGroup(ctx context.Context, groupKey string) (*models.SourceGroup, error) {
	if err := f.check("GetGroup", groupKey); err != nil {
		return nil, err
	}
	return f.Store.GetGroup(ctx, groupKey)
}

func (f *FaultyStore) UpdateGroup(ctx context.Context, group *models.SourceGroup) error {
	if err := f.check("UpdateGroup", group.GroupKey); err != nil {
		return err
	}
	return f.wrote("UpdateGroup", f.Store.UpdateGroup(ctx, group))
}

func (f *FaultyStore) CreateItem(ctx context.Context, item *models.SyndicatedItem) error {
	if err := f.check("CreateItem", item.ItemKey); err != nil {
		return err
	}
	return f.wrote("CreateItem", f.Store.CreateItem(ctx, item))
}

func (f *FaultyStore) FindItems(ctx context.Context, groupKey string, state *models.State) ([]*models.SyndicatedItem, error) {
	if err := f.check("FindItems", groupKey); err != nil {
		return nil, err
	}
	return f.Store.FindItems(ctx, groupKey, state)
}

func (f *FaultyStore) FindByItemKey(ctx context.Context, groupKey, itemKey string) (*models.SyndicatedItem, error) {
	if err := f.check("FindByItemKey", itemKey); err != nil {
		return nil, err
	}
	return f.Store.FindByItemKey(ctx, groupKey, itemKey)
}

func (f *FaultyStore) UpdateItemFields(ctx context.Context, id string, fields models.ItemFields, changed []string, modifiedAt time.Time) error {
	if err := f.check("UpdateItemFields", id); err != nil {
		return err
	}
	return f.wrote("UpdateItemFields", f.Store.UpdateItemFields(ctx, id, fields, changed, modifiedAt))
}

func (f *FaultyStore) SetItemState(ctx context.Context, id string, state models.State, modifiedAt time.Time) error {
	if err := f.check("SetItemState", id); err != nil {
		return err
	}
	return f.wrote("SetItemState", f.Store.SetItemState(ctx, id, state, modifiedAt))
}

func (f *FaultyStore) UpdateItem(ctx context.Context, item *models.SyndicatedItem) error {
	if err := f.check("UpdateItem", item.ID); err != nil {
		return err
	}
	return f.wrote("UpdateItem", f.Store.UpdateItem(ctx, item))
}

func (f *FaultyStore) DeleteItem(ctx context.Context, id string) error {
	if err := f.check("DeleteItem", id); err != nil {
		return err
	}
	return f.wrote("DeleteItem", f.Store.DeleteItem(ctx, id))
}

func (f *FaultyStore) ListExpiredBefore(ctx context.Context, cutoff time.Time) ([]*models.SyndicatedItem, error) {
	if err := f.check("ListExpiredBefore", ""); err != nil {
		return nil, err
	}
	return f.Store.ListExpiredBefore(ctx, cutoff)
}

func (f *FaultyStore) DeleteIfExpired(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	if err := f.check("DeleteIfExpired", id); err != nil {
		return false, err
	}
	deleted, err := f.Store.DeleteIfExpired(ctx, id, cutoff)
	if deleted {
		f.wrote("DeleteIfExpired", err)
	}
	return deleted, err
}

func (f *FaultyStore) UpdateGroupFetchState(ctx context.Context, groupKey string, etag, lastModified *string, fetchedAt time.Time) error {
	if err := f.check("UpdateGroupFetchState", groupKey); err != nil {
		return err
	}
	return f.wrote("UpdateGroupFetchState", f.Store.UpdateGroupFetchState(ctx, groupKey, etag, lastModified, fetchedAt))
}

func (f *FaultyStore) UpdateGroupError(ctx context.Context, groupKey string, errMsg string) error {
	if err := f.check("UpdateGroupError", groupKey); err != nil {
		return err
	}
	return f.wrote("UpdateGroupError", f.Store.UpdateGroupError(ctx, groupKey, errMsg))
}

var _ storage.Store = (*FaultyStore)(nil)
