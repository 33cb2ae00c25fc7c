package cmd

import (
	"errors"
	"testing"

	"vllmfleet/pkg/registry"
)

func TestCheckSharding(t *testing.T) {
	// Non-positive sizes must be rejected cleanly, never reach the modulo.
	for _, tp := range []int{0, -1, 3, 5} {
		err := checkSharding(tp, 8)
		var shardErr *registry.InvalidShardingError
		if !errors.As(err, &shardErr) {
			t.Errorf("checkSharding(%d, 8) = %v, want InvalidShardingError", tp, err)
		}
	}

	for _, tp := range []int{1, 2, 4, 8} {
		if err := checkSharding(tp, 8); err != nil {
			t.Errorf("checkSharding(%d, 8) = %v, want nil", tp, err)
		}
	}
}
