package accountfake

import (
	"context"
	"net/http"
	"sync"

	"github.com/jrsteele09/go-lichess-client/account"
	"github.com/jrsteele09/go-lichess-client/internal/errors"
)

var _ account.Fetcher = (*FakeFetcher)(nil)

// FakeFetcher resolves identities from a token table. Unknown tokens get a
// 401 like lichess returns.
type FakeFetcher struct {
	lock  sync.RWMutex
	byTok map[string]*account.Me
	Err   error
	Calls []string
}

func NewFakeFetcher() *FakeFetcher {
	return &FakeFetcher{byTok: make(map[string]*account.Me)}
}

// Add registers the identity returned for accessToken.
func (f *FakeFetcher) Add(accessToken string, me *account.Me) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.byTok[accessToken] = me.Clone()
}

func (f *FakeFetcher) Fetch(_ context.Context, accessToken string) (*account.Me, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.Calls = append(f.Calls, accessToken)
	if f.Err != nil {
		return nil, f.Err
	}
	me, ok := f.byTok[accessToken]
	if !ok {
		return nil, &errors.RequestError{Status: http.StatusUnauthorized, Body: `{"error":"No such token"}`, Endpoint: account.AccountPath}
	}
	return me.Clone(), nil
}

func (f *FakeFetcher) CallCount() int {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return len(f.Calls)
}
