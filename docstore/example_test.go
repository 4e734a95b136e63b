package docstore_test

import (
	"context"
	"fmt"

	"github.com/jonwraymond/scenariocache/docstore"
)

func ExampleClient_Get() {
	store := docstore.NewMemoryTransport()
	cfg := docstore.DefaultConfig()
	cfg.BaseURL = "https://store.example/v1"
	client := docstore.NewClient(cfg, docstore.WithTransport(store))
	ctx := context.Background()

	_ = client.Upsert(ctx, "scenarios", "abc", map[string]any{"model_mode": "deterministic"}, nil)

	var doc struct {
		ModelMode string `json:"model_mode"`
	}
	found, err := client.Get(ctx, "scenarios", "abc", &doc)
	fmt.Println("Found:", found, err, doc.ModelMode)

	found, err = client.Get(ctx, "scenarios", "missing", nil)
	fmt.Println("Missing:", found, err)
	// Output:
	// Found: true <nil> deterministic
	// Missing: false <nil>
}

func ExampleKindOf() {
	client := docstore.NewClient(docstore.Config{})

	_, err := client.Get(context.Background(), "scenarios", "abc", nil)
	fmt.Println("Kind:", docstore.KindOf(err))

	store := docstore.NewMemoryTransport()
	store.FailNext(503, 3)
	client = docstore.NewClient(docstore.Config{BaseURL: "https://store.example/v1", MaxRetries: 2, RetryDelay: 1},
		docstore.WithTransport(store))

	_, err = client.Get(context.Background(), "scenarios", "abc", nil)
	fmt.Println("Kind:", docstore.KindOf(err))
	// Output:
	// Kind: configuration
	// Kind: unavailable
}
