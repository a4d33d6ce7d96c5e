package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/repository"
)

// memStore is an in-memory implementation of the repository interfaces plus
// the Transactor, backing the service tests. It mirrors the storage-level
// semantics the services rely on: day-granular range checks on value dates,
// reversal-aware fee credit queries, and booking-side sums. It does not
// emulate rollback; tests only exercise paths where the unit commits or the
// error surfaces before any write.
type memStore struct {
	mu sync.Mutex

	nextAccountID    int64
	nextTxID         int64
	nextBookingID    int64
	nextMembershipID int64
	nextBalanceID    int64

	accounts     map[int64]*domain.Account
	tags         map[string]bool
	tagLinks     map[int64]map[string]bool
	transactions map[int64]*domain.Transaction
	txOrder      []int64
	members      map[int64]*domain.Member
	memberships  map[int64][]*domain.Membership
	balances     map[int64][]*domain.MemberBalance
}

func newMemStore() *memStore {
	return &memStore{
		accounts:     make(map[int64]*domain.Account),
		tags:         make(map[string]bool),
		tagLinks:     make(map[int64]map[string]bool),
		transactions: make(map[int64]*domain.Transaction),
		members:      make(map[int64]*domain.Member),
		memberships:  make(map[int64][]*domain.Membership),
		balances:     make(map[int64][]*domain.MemberBalance),
	}
}

func (s *memStore) repositories() repository.Repositories {
	return repository.Repositories{
		Accounts:     &memAccounts{s},
		Transactions: &memTransactions{s},
		Members:      &memMembers{s},
	}
}

func (s *memStore) InTransaction(ctx context.Context, fn func(r repository.Repositories) error) error {
	return fn(s.repositories())
}

// transactionCount reports how many transactions have been persisted; the
// reconciliation tests use it to assert idempotence.
func (s *memStore) transactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}

func (s *memStore) isReversedLocked(id int64) bool {
	for _, tx := range s.transactions {
		if tx.Reverses != nil && *tx.Reverses == id {
			return true
		}
	}
	return false
}

type memAccounts struct{ s *memStore }

func (r *memAccounts) Create(ctx context.Context, account *domain.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextAccountID++
	account.ID = r.s.nextAccountID
	copied := *account
	r.s.accounts[account.ID] = &copied
	return nil
}

func (r *memAccounts) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	account, ok := r.s.accounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

func (r *memAccounts) FindByCategoryAndName(ctx context.Context, category domain.AccountCategory, name string) (*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, account := range r.s.accounts {
		if account.Category == category && account.Name == name {
			copied := *account
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memAccounts) ListByTag(ctx context.Context, tag string, category domain.AccountCategory) ([]domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Account
	for id, links := range r.s.tagLinks {
		if links[tag] && r.s.accounts[id] != nil && r.s.accounts[id].Category == category {
			out = append(out, *r.s.accounts[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memAccounts) EnsureTag(ctx context.Context, name string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.tags[name] = true
	return nil
}

func (r *memAccounts) TagAccount(ctx context.Context, accountID int64, tag string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if !r.s.tags[tag] {
		return fmt.Errorf("tag %q does not exist", tag)
	}
	if r.s.tagLinks[accountID] == nil {
		r.s.tagLinks[accountID] = make(map[string]bool)
	}
	r.s.tagLinks[accountID][tag] = true
	return nil
}

func (r *memAccounts) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[id]; !ok {
		return domain.ErrNotFound
	}
	for _, tx := range r.s.transactions {
		for i := range tx.Bookings {
			if tx.Bookings[i].AccountID() == id {
				return domain.ErrAccountInUse
			}
		}
	}
	delete(r.s.accounts, id)
	return nil
}

func (r *memAccounts) Balances(ctx context.Context, accountID int64, window repository.BalanceWindow, peerAccountID *int64) (decimal.Decimal, decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	debit, credit := decimal.Zero, decimal.Zero
	for _, id := range r.s.txOrder {
		tx := r.s.transactions[id]
		if !inWindow(tx.ValueDatetime, window) {
			continue
		}
		for i := range tx.Bookings {
			b := &tx.Bookings[i]
			if b.AccountID() != accountID {
				continue
			}
			if peerAccountID != nil && !hasPeerBooking(tx, b, *peerAccountID) {
				continue
			}
			if b.IsDebit() {
				debit = debit.Add(b.Amount)
			} else {
				credit = credit.Add(b.Amount)
			}
		}
	}
	return debit, credit, nil
}

func (r *memAccounts) Bookings(ctx context.Context, accountID int64, window repository.BalanceWindow) ([]domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Booking
	for _, id := range r.s.txOrder {
		if !inWindow(r.s.transactions[id].ValueDatetime, window) {
			continue
		}
		for _, b := range r.s.transactions[id].Bookings {
			if b.AccountID() == accountID {
				out = append(out, b)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memTransactions struct{ s *memStore }

func (r *memTransactions) Create(ctx context.Context, tx *domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextTxID++
	tx.ID = r.s.nextTxID
	tx.Modified = time.Now()
	for i := range tx.Bookings {
		r.s.nextBookingID++
		tx.Bookings[i].ID = r.s.nextBookingID
		tx.Bookings[i].TransactionID = tx.ID
	}
	copied := *tx
	copied.Bookings = append([]domain.Booking(nil), tx.Bookings...)
	r.s.transactions[tx.ID] = &copied
	r.s.txOrder = append(r.s.txOrder, tx.ID)
	return nil
}

func (r *memTransactions) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.transactions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *tx
	copied.Bookings = append([]domain.Booking(nil), tx.Bookings...)
	return &copied, nil
}

func (r *memTransactions) HasActiveReversal(ctx context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rev := range r.s.transactions {
		if rev.Reverses != nil && *rev.Reverses == id && !r.s.isReversedLocked(rev.ID) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memTransactions) ListUnbalanced(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Transaction
	for _, id := range r.s.txOrder {
		tx := r.s.transactions[id]
		if tx.IsBalanced() {
			continue
		}
		if accountID != 0 && !txTouchesAccount(tx, accountID) {
			continue
		}
		out = append(out, *tx)
	}
	return out, nil
}

func (r *memTransactions) MemberFeeCredits(ctx context.Context, memberID, creditAccountID int64, ranges []domain.DateRange, insideRanges bool) ([]repository.FeeCredit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []repository.FeeCredit
	for _, id := range r.s.txOrder {
		tx := r.s.transactions[id]
		if r.s.isReversedLocked(tx.ID) {
			continue
		}
		if len(ranges) > 0 {
			day := domain.Date(tx.ValueDatetime)
			inAny := false
			for _, rng := range ranges {
				if rng.Contains(day) {
					inAny = true
					break
				}
			}
			if inAny != insideRanges {
				continue
			}
		}
		for i := range tx.Bookings {
			b := &tx.Bookings[i]
			if b.MemberID == nil || *b.MemberID != memberID {
				continue
			}
			if !b.IsCredit() || *b.CreditAccount != creditAccountID {
				continue
			}
			out = append(out, repository.FeeCredit{
				BookingID:     b.ID,
				TransactionID: tx.ID,
				ValueDate:     tx.ValueDatetime,
				Amount:        b.Amount,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ValueDate.Equal(out[j].ValueDate) {
			return out[i].ValueDate.Before(out[j].ValueDate)
		}
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c < 0
		}
		return out[i].BookingID < out[j].BookingID
	})
	return out, nil
}

func (r *memTransactions) MemberAccountSum(ctx context.Context, memberID, accountID int64, debitSide bool, window repository.BalanceWindow) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sum := decimal.Zero
	for _, id := range r.s.txOrder {
		tx := r.s.transactions[id]
		if !inWindow(tx.ValueDatetime, window) {
			continue
		}
		for i := range tx.Bookings {
			b := &tx.Bookings[i]
			if b.MemberID == nil || *b.MemberID != memberID {
				continue
			}
			if debitSide && b.IsDebit() && *b.DebitAccount == accountID {
				sum = sum.Add(b.Amount)
			}
			if !debitSide && b.IsCredit() && *b.CreditAccount == accountID {
				sum = sum.Add(b.Amount)
			}
		}
	}
	return sum, nil
}

type memMembers struct{ s *memStore }

func (r *memMembers) Create(ctx context.Context, member *domain.Member) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	copied := *member
	r.s.members[member.ID] = &copied
	return nil
}

func (r *memMembers) GetByID(ctx context.Context, id int64) (*domain.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	member, ok := r.s.members[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *member
	return &copied, nil
}

func (r *memMembers) List(ctx context.Context) ([]domain.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Member
	for _, m := range r.s.members {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memMembers) ListMemberships(ctx context.Context, memberID int64) ([]domain.Membership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Membership
	for _, ms := range r.s.memberships[memberID] {
		out = append(out, *ms)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memMembers) CreateMembership(ctx context.Context, ms *domain.Membership) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextMembershipID++
	ms.ID = r.s.nextMembershipID
	copied := *ms
	r.s.memberships[ms.MemberID] = append(r.s.memberships[ms.MemberID], &copied)
	return nil
}

func (r *memMembers) UpdateMembership(ctx context.Context, ms *domain.Membership) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, list := range r.s.memberships {
		for i, existing := range list {
			if existing.ID == ms.ID {
				copied := *ms
				list[i] = &copied
				return nil
			}
		}
	}
	return domain.ErrNotFound
}

func (r *memMembers) CreateBalance(ctx context.Context, balance *domain.MemberBalance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextBalanceID++
	balance.ID = r.s.nextBalanceID
	copied := *balance
	r.s.balances[balance.MemberID] = append(r.s.balances[balance.MemberID], &copied)
	return nil
}

func (r *memMembers) ListBalances(ctx context.Context, memberID int64) ([]domain.MemberBalance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.MemberBalance
	for _, b := range r.s.balances[memberID] {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func txTouchesAccount(tx *domain.Transaction, accountID int64) bool {
	for i := range tx.Bookings {
		if tx.Bookings[i].AccountID() == accountID {
			return true
		}
	}
	return false
}

func hasPeerBooking(tx *domain.Transaction, b *domain.Booking, peerID int64) bool {
	for i := range tx.Bookings {
		peer := &tx.Bookings[i]
		if b.IsDebit() && peer.IsCredit() && *peer.CreditAccount == peerID {
			return true
		}
		if b.IsCredit() && peer.IsDebit() && *peer.DebitAccount == peerID {
			return true
		}
	}
	return false
}

func inWindow(t time.Time, window repository.BalanceWindow) bool {
	if window.Start != nil && t.Before(*window.Start) {
		return false
	}
	if window.End != nil && t.After(*window.End) {
		return false
	}
	return true
}
