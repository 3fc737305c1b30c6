// Command demo shows fusecache suppressing a stampede: several concurrent
// readers miss the same key at once, but only one of them actually runs
// the (deliberately slow) producer.
//
// This replaces the teacher's root-level main.go demo (which plainly
// showed TTL expiry) with one that exercises the engine's actual purpose:
// single-flight fill, not just time-based eviction.
package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kesh-labs/fusecache"
)

func main() {
	cache := fusecache.Start(
		fusecache.WithPartitions(4),
		fusecache.WithPurgeInterval(time.Second),
	)
	defer cache.Stop()

	var invocations int64

	producer := func(ctx context.Context) (any, error) {
		atomic.AddInt64(&invocations, 1)
		time.Sleep(100 * time.Millisecond)
		return "hello from the only producer call", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ctx := context.Background()
			v, err := cache.Read(ctx, "hot-key", 5*time.Second, producer)
			if err != nil {
				fmt.Printf("reader %d: error: %v\n", id, err)
				return
			}
			fmt.Printf("reader %d: %v\n", id, v)
		}(i)
	}
	wg.Wait()

	fmt.Printf("producer invoked %d time(s) for 20 concurrent readers\n", atomic.LoadInt64(&invocations))
	fmt.Printf("stats: %+v\n", cache.Stats())
}
