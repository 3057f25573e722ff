package redisseq

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestSequence_KeyFormat(t *testing.T) {
	seq := &Sequence{prefix: defaultKeyPrefix}
	require.Equal(t, "invoice:seq:2026", seq.Key(2026))

	WithKeyPrefix("  shop:inv ")(seq)
	require.Equal(t, "shop:inv:0042", seq.Key(42))

	WithKeyPrefix("   ")(seq)
	require.Equal(t, "shop:inv:0042", seq.Key(42))
}

func TestSequence_RejectsInvalidYear(t *testing.T) {
	seq := &Sequence{prefix: defaultKeyPrefix, timeout: time.Second}
	_, err := seq.Next(context.Background(), 0)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSequence_RedisIncrementsPerYear(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("WORKSHOP_REDIS_TEST_ADDR"))
	if addr == "" {
		t.Skip("WORKSHOP_REDIS_TEST_ADDR is not set")
	}

	ctx := context.Background()
	seq, client, err := Dial(ctx, addr, WithKeyPrefix("test:"+uuid.NewString()))
	if err != nil {
		t.Skipf("redis is not available: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Del(context.Background(), seq.Key(2025), seq.Key(2026)).Err()
		_ = client.Close()
	})

	const workers = 20
	values := make([]int64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			values[i], errs[i] = seq.Next(ctx, 2026)
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]struct{}, workers)
	for i := range values {
		require.NoError(t, errs[i])
		seen[values[i]] = struct{}{}
	}
	require.Len(t, seen, workers)

	first, err := seq.Next(ctx, 2025)
	require.NoError(t, err)
	require.Equal(t, int64(1), first)
}
