package capture

import (
	"fmt"
	"sync"
)

// PortAllocator はバッチ用トンネルポート範囲の貸与を管理する
//
// ポート範囲はリモートホスト上の共有資源であり、
// 2つのバッチが同時に同じ範囲を使うことは許されない。
// バッチは厳密に逐次実行されるため、貸与中の再貸与は
// プログラミングエラーとしてエラーを返す。
type PortAllocator struct {
	base int
	size int
	held bool
	mu   sync.Mutex
}

// NewPortAllocator は新しいPortAllocatorを作成する
func NewPortAllocator(base, size int) *PortAllocator {
	return &PortAllocator{
		base: base,
		size: size,
	}
}

// Acquire はn個の連続ポートを貸与する
// 返却関数は複数回呼んでも安全
func (a *PortAllocator) Acquire(n int) ([]int, func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.held {
		return nil, nil, fmt.Errorf("ポート範囲は貸与中です")
	}
	if n < 1 || n > a.size {
		return nil, nil, fmt.Errorf("ポート範囲を超える要求: %d (最大%d)", n, a.size)
	}

	ports := make([]int, n)
	for i := range ports {
		ports[i] = a.base + i
	}
	a.held = true

	var once sync.Once
	release := func() {
		once.Do(func() {
			a.mu.Lock()
			a.held = false
			a.mu.Unlock()
		})
	}

	return ports, release, nil
}

// Range は管理対象のポート範囲 [base, base+size-1] を返す
func (a *PortAllocator) Range() (int, int) {
	return a.base, a.base + a.size - 1
}
