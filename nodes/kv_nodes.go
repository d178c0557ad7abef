package nodes

import (
	"context"
	"fmt"

	stepflow "stepflow"
	"stepflow/kv"
)

// KVGetNode loads a value from a kv.Store into shared state. The store
// read happens in Exec; Prep only yields the key so the lookup stays
// retryable without touching shared state again.
type KVGetNode struct {
	stepflow.BaseNode
	store     kv.Store
	Key       string
	OutputKey string
}

func NewKVGetNode(name string, store kv.Store, key, outputKey string) *KVGetNode {
	return &KVGetNode{
		BaseNode:  stepflow.NewBaseNode(name),
		store:     store,
		Key:       key,
		OutputKey: outputKey,
	}
}

func (n *KVGetNode) Prep(ctx context.Context, shared map[string]any) (any, error) {
	if n.store == nil {
		return nil, fmt.Errorf("kv store not configured for node %s", n.Name())
	}
	return n.Key, nil
}

func (n *KVGetNode) Exec(ctx context.Context, prepared any) (any, error) {
	key, _ := prepared.(string)
	value, err := n.store.Get(key)
	if err != nil {
		return nil, err
	}
	return string(value), nil
}

func (n *KVGetNode) Post(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
	shared[n.OutputKey] = result
	return stepflow.DefaultAction, nil
}

// KVPutNode persists a shared value into a kv.Store.
type KVPutNode struct {
	stepflow.BaseNode
	store    kv.Store
	Key      string
	InputKey string
}

func NewKVPutNode(name string, store kv.Store, key, inputKey string) *KVPutNode {
	return &KVPutNode{
		BaseNode: stepflow.NewBaseNode(name),
		store:    store,
		Key:      key,
		InputKey: inputKey,
	}
}

func (n *KVPutNode) Prep(ctx context.Context, shared map[string]any) (any, error) {
	if n.store == nil {
		return nil, fmt.Errorf("kv store not configured for node %s", n.Name())
	}
	value, ok := shared[n.InputKey]
	if !ok {
		return nil, fmt.Errorf("input key %s missing for node %s", n.InputKey, n.Name())
	}
	return fmt.Sprintf("%v", value), nil
}

func (n *KVPutNode) Exec(ctx context.Context, prepared any) (any, error) {
	value, _ := prepared.(string)
	return nil, n.store.Put(n.Key, []byte(value))
}

func init() {
	RegisterNode(NodeDefinition{
		ID:          "kv_get",
		Description: "Pulls a string from a KV store and writes it into shared state.",
		Example:     `nodes.NewKVGetNode("load", store, "key", "loaded")`,
	})
	RegisterNode(NodeDefinition{
		ID:          "kv_put",
		Description: "Persists the value under InputKey into the KV store key.",
		Example:     `nodes.NewKVPutNode("persist", store, "key", "value")`,
	})
}
