package workflow

import (
	"context"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/DhruviKhanpara/LMS-sub001/models"
	"github.com/DhruviKhanpara/LMS-sub001/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// memState is the data behind memStore; RunInTx restores a copy on error.
type memState struct {
	configs      map[string]string
	users        map[int]models.User
	books        map[int]models.Book
	transactions map[int]models.Transaction
	reservations map[int]models.Reservation
	memberships  map[int]models.Membership
	mappings     map[int]models.UserMembershipMapping
	penalties    map[int]models.Penalty
	outbox       map[int]models.OutboxMessage
	audits       []models.AuditLog
	nextId       int
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s memState) clone() memState {
	return memState{
		configs:      cloneMap(s.configs),
		users:        cloneMap(s.users),
		books:        cloneMap(s.books),
		transactions: cloneMap(s.transactions),
		reservations: cloneMap(s.reservations),
		memberships:  cloneMap(s.memberships),
		mappings:     cloneMap(s.mappings),
		penalties:    cloneMap(s.penalties),
		outbox:       cloneMap(s.outbox),
		audits:       append([]models.AuditLog(nil), s.audits...),
		nextId:       s.nextId,
	}
}

// memStore is an in-memory Repository for engine tests.
type memStore struct {
	memState
	failTransactionUpdate map[int]error
	lockedUsers           []int
}

func newMemStore() *memStore {
	return &memStore{
		memState: memState{
			configs:      map[string]string{},
			users:        map[int]models.User{},
			books:        map[int]models.Book{},
			transactions: map[int]models.Transaction{},
			reservations: map[int]models.Reservation{},
			memberships:  map[int]models.Membership{},
			mappings:     map[int]models.UserMembershipMapping{},
			penalties:    map[int]models.Penalty{},
			outbox:       map[int]models.OutboxMessage{},
			nextId:       1,
		},
		failTransactionUpdate: map[int]error{},
	}
}

func (s *memStore) id() int {
	id := s.nextId
	s.nextId++
	return id
}

func (s *memStore) RunInTx(ctx context.Context, fn func(repo Repository) error) error {
	snapshot := s.memState.clone()
	if err := fn(s); err != nil {
		s.memState = snapshot
		return err
	}
	return nil
}

func (s *memStore) GetConfigs(_ context.Context, keys []string) (map[string]string, error) {
	out := map[string]string{}
	for _, k := range keys {
		if v, ok := s.configs[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (s *memStore) GetUser(_ context.Context, id int) (*models.User, error) {
	u, ok := s.users[id]
	if !ok || !u.IsActive {
		return nil, utils.NewNotFoundError("user %d not found", id)
	}
	return &u, nil
}

func (s *memStore) LockUser(ctx context.Context, id int) (*models.User, error) {
	s.lockedUsers = append(s.lockedUsers, id)
	return s.GetUser(ctx, id)
}

func (s *memStore) GetBook(_ context.Context, id int) (*models.Book, error) {
	b, ok := s.books[id]
	if !ok || !b.IsActive {
		return nil, utils.NewNotFoundError("book %d not found", id)
	}
	return &b, nil
}

func (s *memStore) LockBook(ctx context.Context, id int) (*models.Book, error) {
	return s.GetBook(ctx, id)
}

func (s *memStore) UpdateBook(_ context.Context, book *models.Book) error {
	cur, ok := s.books[book.ID]
	if !ok || cur.Version != book.Version {
		return utils.ErrConcurrencyConflict
	}
	book.Version++
	s.books[book.ID] = *book
	return nil
}

func (s *memStore) GetTransaction(_ context.Context, id int) (*models.Transaction, error) {
	t, ok := s.transactions[id]
	if !ok || !t.IsActive {
		return nil, utils.NewNotFoundError("transaction %d not found", id)
	}
	return &t, nil
}

func (s *memStore) CreateTransaction(_ context.Context, txn *models.Transaction) error {
	txn.ID = s.id()
	txn.Version = 1
	s.transactions[txn.ID] = *txn
	return nil
}

func (s *memStore) UpdateTransaction(_ context.Context, txn *models.Transaction) error {
	if err := s.failTransactionUpdate[txn.ID]; err != nil {
		return err
	}
	cur, ok := s.transactions[txn.ID]
	if !ok || cur.Version != txn.Version {
		return utils.ErrConcurrencyConflict
	}
	txn.Version++
	s.transactions[txn.ID] = *txn
	return nil
}

func (s *memStore) ListOverdueTransactions(_ context.Context, asOf time.Time, userId *int) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, t := range s.transactions {
		if !t.IsActive || !t.Status.IsOpen() || !t.DueDate.Before(asOf) {
			continue
		}
		if userId != nil && t.UserId != *userId {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) CountOpenTransactions(_ context.Context, userId *int) (map[int]int, error) {
	out := map[int]int{}
	for _, t := range s.transactions {
		if !t.IsActive || !t.Status.IsOpen() {
			continue
		}
		if userId != nil && t.UserId != *userId {
			continue
		}
		out[t.UserId]++
	}
	return out, nil
}

func (s *memStore) GetReservation(_ context.Context, id int) (*models.Reservation, error) {
	r, ok := s.reservations[id]
	if !ok || !r.IsActive {
		return nil, utils.NewNotFoundError("reservation %d not found", id)
	}
	return &r, nil
}

func (s *memStore) CreateReservation(_ context.Context, r *models.Reservation) error {
	r.ID = s.id()
	r.Version = 1
	s.reservations[r.ID] = *r
	return nil
}

func (s *memStore) UpdateReservation(_ context.Context, r *models.Reservation) error {
	cur, ok := s.reservations[r.ID]
	if !ok || cur.Version != r.Version {
		return utils.ErrConcurrencyConflict
	}
	r.Version++
	s.reservations[r.ID] = *r
	return nil
}

func (s *memStore) ListReservations(_ context.Context, f ReservationFilter) ([]models.Reservation, error) {
	var out []models.Reservation
	for _, r := range s.reservations {
		if !r.IsActive {
			continue
		}
		if f.BookId != nil && r.BookId != *f.BookId {
			continue
		}
		if f.UserId != nil && r.UserId != *f.UserId {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, r.Status) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReservationDate.Equal(out[j].ReservationDate) {
			return out[i].ReservationDate.Before(out[j].ReservationDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func containsStatus(list []models.ReservationStatus, s models.ReservationStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (s *memStore) ListBooksWithOpenReservations(_ context.Context, userId *int) ([]int, error) {
	seen := map[int]bool{}
	var out []int
	for _, r := range s.reservations {
		if !r.IsActive || !r.Status.IsOpen() || seen[r.BookId] {
			continue
		}
		if userId != nil && r.UserId != *userId {
			continue
		}
		seen[r.BookId] = true
		out = append(out, r.BookId)
	}
	sort.Ints(out)
	return out, nil
}

func (s *memStore) GetMembership(_ context.Context, id int) (*models.Membership, error) {
	m, ok := s.memberships[id]
	if !ok || !m.IsActive {
		return nil, utils.NewNotFoundError("membership %d not found", id)
	}
	return &m, nil
}

func (s *memStore) userMappings(userId int) []models.UserMembershipMapping {
	var out []models.UserMembershipMapping
	for _, m := range s.mappings {
		if m.IsActive && m.UserId == userId {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpirationDate.After(out[j].ExpirationDate) })
	return out
}

func (s *memStore) GetActiveMembership(_ context.Context, userId int, asOf time.Time) (*models.UserMembershipMapping, error) {
	for _, m := range s.userMappings(userId) {
		if m.IsActiveAt(asOf) {
			return &m, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetLatestMembership(_ context.Context, userId int, asOf time.Time) (*models.UserMembershipMapping, error) {
	for _, m := range s.userMappings(userId) {
		if !m.EffectiveStartDate.After(asOf) {
			return &m, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetUpcomingMembership(_ context.Context, userId int, asOf time.Time) (*models.UserMembershipMapping, error) {
	for _, m := range s.userMappings(userId) {
		if m.EffectiveStartDate.After(asOf) {
			return &m, nil
		}
	}
	return nil, nil
}

func (s *memStore) CreateMembershipMapping(_ context.Context, m *models.UserMembershipMapping) error {
	m.ID = s.id()
	m.Version = 1
	s.mappings[m.ID] = *m
	return nil
}

func (s *memStore) UpdateMembershipMapping(_ context.Context, m *models.UserMembershipMapping) error {
	cur, ok := s.mappings[m.ID]
	if !ok || cur.Version != m.Version {
		return utils.ErrConcurrencyConflict
	}
	m.Version++
	s.mappings[m.ID] = *m
	return nil
}

func (s *memStore) ListMembershipsExpiringBetween(_ context.Context, from, to time.Time) ([]models.UserMembershipMapping, error) {
	var out []models.UserMembershipMapping
	for _, m := range s.mappings {
		if !m.IsActive || m.ExpiryReminderSentAt != nil {
			continue
		}
		if m.ExpirationDate.After(from) && !m.ExpirationDate.After(to) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) GetPenalty(_ context.Context, id int) (*models.Penalty, error) {
	p, ok := s.penalties[id]
	if !ok || !p.IsActive {
		return nil, utils.NewNotFoundError("penalty %d not found", id)
	}
	return &p, nil
}

func (s *memStore) GetLatestPenalty(_ context.Context, q PenaltyQuery) (*models.Penalty, error) {
	var latest *models.Penalty
	for _, p := range s.penalties {
		if !p.IsActive || p.UserId != q.UserId || p.PenaltyType != q.Type {
			continue
		}
		if !sameIntPtr(p.TransactionId, q.TransactionId) {
			continue
		}
		if q.UserMembershipMappingId != nil && !sameIntPtr(p.UserMembershipMappingId, q.UserMembershipMappingId) {
			continue
		}
		if q.UnpaidOnly && p.Status != models.PenaltyStatusUnPaid {
			continue
		}
		if latest == nil || p.ID > latest.ID {
			p := p
			latest = &p
		}
	}
	return latest, nil
}

func sameIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *memStore) CreatePenalty(_ context.Context, p *models.Penalty) error {
	p.ID = s.id()
	p.Version = 1
	s.penalties[p.ID] = *p
	return nil
}

func (s *memStore) UpdatePenalty(_ context.Context, p *models.Penalty) error {
	cur, ok := s.penalties[p.ID]
	if !ok || cur.Version != p.Version {
		return utils.ErrConcurrencyConflict
	}
	p.Version++
	s.penalties[p.ID] = *p
	return nil
}

func (s *memStore) CountUnpaidPenalties(_ context.Context, userId int) (int, error) {
	n := 0
	for _, p := range s.penalties {
		if p.IsActive && p.UserId == userId && p.Status == models.PenaltyStatusUnPaid {
			n++
		}
	}
	return n, nil
}

func (s *memStore) CreateOutboxMessages(_ context.Context, msgs []*models.OutboxMessage) error {
	for _, m := range msgs {
		m.ID = s.id()
		s.outbox[m.ID] = *m
	}
	return nil
}

func (s *memStore) ClaimOutboxMessages(_ context.Context, c OutboxClaim) ([]models.OutboxMessage, error) {
	var ids []int
	for id, m := range s.outbox {
		if m.IsProcessed {
			continue
		}
		if m.NextAttemptAt != nil && m.NextAttemptAt.After(c.Now) {
			continue
		}
		if m.LockedAt != nil && !m.LockedAt.Before(c.StaleBefore) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	if c.Limit > 0 && len(ids) > c.Limit {
		ids = ids[:c.Limit]
	}
	out := make([]models.OutboxMessage, 0, len(ids))
	for _, id := range ids {
		m := s.outbox[id]
		worker := c.WorkerId
		m.LockedAt = utils.NewTime(c.Now)
		m.LockedBy = &worker
		s.outbox[id] = m
		out = append(out, m)
	}
	return out, nil
}

func (s *memStore) SaveOutboxResult(_ context.Context, msg *models.OutboxMessage) error {
	msg.LockedAt = nil
	msg.LockedBy = nil
	s.outbox[msg.ID] = *msg
	return nil
}

func (s *memStore) RequeueDeadOutboxMessages(_ context.Context, ids []int) (int64, error) {
	var n int64
	for id, m := range s.outbox {
		if m.Status != models.OutboxStatusDead {
			continue
		}
		if len(ids) > 0 && !containsInt(ids, id) {
			continue
		}
		m.Status = models.OutboxStatusPending
		m.IsProcessed = false
		m.RetryCount = 0
		m.NextAttemptAt = nil
		m.ProcessedAt = nil
		s.outbox[id] = m
		n++
	}
	return n, nil
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func (s *memStore) CountOutboxByStatus(_ context.Context) (map[models.OutboxStatus]int64, error) {
	out := map[models.OutboxStatus]int64{}
	for _, m := range s.outbox {
		out[m.Status]++
	}
	return out, nil
}

func (s *memStore) AppendAudit(_ context.Context, entry *models.AuditLog) error {
	entry.ID = len(s.audits) + 1
	s.audits = append(s.audits, *entry)
	return nil
}

// fixtures

func (s *memStore) addUser(name string) models.User {
	u := models.User{ID: s.id(), Name: name, Email: name + "@example.com", IsActive: true}
	s.users[u.ID] = u
	return u
}

func (s *memStore) addBook(title string, copies int) models.Book {
	b := models.Book{ID: s.id(), Title: title, TotalCopies: copies, AvailableCopies: copies, IsActive: true, Version: 1}
	s.books[b.ID] = b
	return b
}

func (s *memStore) addMapping(userId, borrowLimit int, start, expiration time.Time) models.UserMembershipMapping {
	plan := models.Membership{ID: s.id(), Name: "Standard", BorrowLimit: borrowLimit, ReservationLimit: 3, DurationDays: 30, IsActive: true}
	s.memberships[plan.ID] = plan
	m := models.UserMembershipMapping{
		ID:                 s.id(),
		UserId:             userId,
		MembershipId:       plan.ID,
		EffectiveStartDate: start,
		ExpirationDate:     expiration,
		BorrowLimit:        borrowLimit,
		ReservationLimit:   3,
		IsActive:           true,
		Version:            1,
	}
	s.mappings[m.ID] = m
	return m
}

func (s *memStore) addTransaction(userId, bookId int, status models.TransactionStatus, borrowed, due time.Time) models.Transaction {
	t := models.Transaction{
		ID:         s.id(),
		UserId:     userId,
		BookId:     bookId,
		Status:     status,
		BorrowDate: borrowed,
		DueDate:    due,
		IsActive:   true,
		Version:    1,
	}
	s.transactions[t.ID] = t
	return t
}

func (s *memStore) addReservation(userId, bookId int, status models.ReservationStatus, at time.Time) models.Reservation {
	r := models.Reservation{
		ID:              s.id(),
		UserId:          userId,
		BookId:          bookId,
		Status:          status,
		ReservationDate: at,
		AllocateAfter:   at,
		IsActive:        true,
		Version:         1,
	}
	s.reservations[r.ID] = r
	return r
}

func (s *memStore) penaltiesOf(userId int, kind models.PenaltyType) []models.Penalty {
	var out []models.Penalty
	for _, p := range s.penalties {
		if p.UserId == userId && p.PenaltyType == kind {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) outboxOf(t models.OutboxMessageType) []models.OutboxMessage {
	var out []models.OutboxMessage
	for _, m := range s.outbox {
		if m.Type == t {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) setConfig(key, value string) {
	s.configs[key] = value
}

// lateFeeConfig is 10 per day, +5 every 3 days.
func (s *memStore) lateFeeConfig() {
	s.setConfig(KeyPenaltyPerDay, "10")
	s.setConfig(KeyPenaltyIncreaseType, "Additive")
	s.setConfig(KeyPenaltyIncreaseValue, "5")
	s.setConfig(KeyPenaltyIncreaseDurationInDays, "3")
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestEngine(t *testing.T, store *memStore, clock *testClock) *Engine {
	t.Helper()
	e := NewEngine(store, nil, NoopLocker{}, quietLogger())
	e.SetClock(clock)
	return e
}
