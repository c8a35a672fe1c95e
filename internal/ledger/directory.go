package ledger

import "sync"

// Directory is the ordered collection of accounts, unique by short ID.
// Registration rejects colliding short identifiers outright; callers
// must pick distinguishable owner names.
type Directory struct {
	mu    sync.RWMutex
	order []*Account
	byID  map[string]*Account
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{byID: make(map[string]*Account)}
}

// Register admits an account. Fails with ErrDuplicateShortID when an
// account with the same short ID is already present.
func (d *Directory) Register(acc *Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[acc.shortID]; ok {
		return ErrDuplicateShortID
	}
	d.byID[acc.shortID] = acc
	d.order = append(d.order, acc)
	return nil
}

// FindByID resolves an account by its short ID.
func (d *Directory) FindByID(shortID string) (*Account, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	acc, ok := d.byID[shortID]
	return acc, ok
}

// Remove deletes the account and its entire log. Fails with
// ErrAccountNotFound when no such account exists.
func (d *Directory) Remove(shortID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[shortID]; !ok {
		return ErrAccountNotFound
	}
	delete(d.byID, shortID)
	for i, acc := range d.order {
		if acc.shortID == shortID {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len reports the number of registered accounts.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order)
}

// List returns the accounts in registration order.
func (d *Directory) List() []*Account {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Account, len(d.order))
	copy(out, d.order)
	return out
}
