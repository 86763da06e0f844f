package session

import (
	"context"
	"sync"

	"tutor-platform/pkg/errors"
)

// keyedLocks 按会话 id 串行化；不同 id 之间互不阻塞。
// 表本身的 mu 只保护 map，不在等待期间持有。
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*keyedLock)}
}

// acquire 等待 id 的锁；ctx 结束返回 CANCELLED。release 可重复调用
func (k *keyedLocks) acquire(ctx context.Context, id string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.unref(id, l)
		return nil, errors.FromContext(ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.unref(id, l)
		})
	}, nil
}

func (k *keyedLocks) unref(id string, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, id)
	}
}

// size 当前表中的 key 数
func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
