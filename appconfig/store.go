package appconfig

import (
	"context"
	"encoding/json"
	"maps"
	"sync"

	"github.com/markheger/streamsx.metrics/errors"
	"github.com/markheger/streamsx.metrics/natsclient"
)

// Store looks up application configurations by name. An unknown name yields
// an empty map and no error.
type Store interface {
	Get(ctx context.Context, name string) (map[string]string, error)
}

// Watcher is implemented by stores that can announce changes. Each value
// sent on the channel is the name of a configuration that changed. The
// channel is closed when ctx is done.
type Watcher interface {
	Watch(ctx context.Context) (<-chan string, error)
}

// MapStore is an in-memory Store for static and standalone deployments.
type MapStore struct {
	mu      sync.RWMutex
	configs map[string]map[string]string
}

// NewMapStore returns a MapStore holding copies of configs.
func NewMapStore(configs map[string]map[string]string) *MapStore {
	s := &MapStore{configs: make(map[string]map[string]string, len(configs))}
	for name, props := range configs {
		s.configs[name] = maps.Clone(props)
	}
	return s
}

// Get implements Store.
func (s *MapStore) Get(_ context.Context, name string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	props := maps.Clone(s.configs[name])
	if props == nil {
		props = map[string]string{}
	}
	return props, nil
}

// Set replaces one property of a configuration.
func (s *MapStore) Set(name, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configs[name] == nil {
		s.configs[name] = map[string]string{}
	}
	s.configs[name][key] = value
}

// Delete removes one property of a configuration.
func (s *MapStore) Delete(name, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.configs[name], key)
}

// KVStore is a Store backed by a JetStream key-value bucket. Each key is a
// configuration name and each value a JSON object of string properties.
type KVStore struct {
	kv *natsclient.KVStore
}

// NewKVStore wraps a bucket.
func NewKVStore(kv *natsclient.KVStore) *KVStore {
	return &KVStore{kv: kv}
}

// Get implements Store.
func (s *KVStore) Get(ctx context.Context, name string) (map[string]string, error) {
	entry, err := s.kv.Get(ctx, name)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return map[string]string{}, nil
		}
		return nil, errors.WrapTransient(err, "KVStore", "Get", "read application configuration "+name)
	}
	props := map[string]string{}
	if err := json.Unmarshal(entry.Value, &props); err != nil {
		return nil, errors.WrapInvalid(err, "KVStore", "Get", "decode application configuration "+name)
	}
	return props, nil
}

// Put stores a configuration, replacing any previous revision.
func (s *KVStore) Put(ctx context.Context, name string, props map[string]string) error {
	data, err := json.Marshal(props)
	if err != nil {
		return errors.WrapInvalid(err, "KVStore", "Put", "encode application configuration "+name)
	}
	if _, err := s.kv.Put(ctx, name, data); err != nil {
		return errors.WrapTransient(err, "KVStore", "Put", "write application configuration "+name)
	}
	return nil
}

// Watch implements Watcher using a bucket watch that skips the initial
// values.
func (s *KVStore) Watch(ctx context.Context) (<-chan string, error) {
	w, err := s.kv.Watch(ctx, ">")
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "Watch", "watch bucket "+s.kv.Bucket())
	}
	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer func() { _ = w.Stop() }()
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-w.Updates():
				if !ok {
					return
				}
				if entry == nil {
					continue
				}
				select {
				case out <- entry.Key():
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
