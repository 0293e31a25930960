package economy

import "sync"

// accountLocks serialises read-modify-write cycles per account
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	sync.Mutex
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: map[string]*accountLock{}}
}

// lock blocks until accountID is free and returns its unlock func
func (l *accountLocks) lock(accountID string) func() {
	l.mu.Lock()
	al, ok := l.locks[accountID]
	if !ok {
		al = &accountLock{}
		l.locks[accountID] = al
	}
	al.refs++
	l.mu.Unlock()

	al.Lock()
	return func() {
		al.Unlock()
		l.mu.Lock()
		al.refs--
		if al.refs == 0 {
			delete(l.locks, accountID)
		}
		l.mu.Unlock()
	}
}
