package moderation

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and early development.
//
// RunInTx works on a private copy of the data and swaps it in on success,
// so a failed unit of work leaves no trace. Transactions are serialized.
type MemoryStore struct {
	mu   sync.RWMutex
	data memoryData

	faultsMu sync.Mutex
	faults   map[string]error
}

type memoryData struct {
	incidents map[int64]IncidentReport
	appeals   map[int64]Appeal
	accounts  map[int64]Account
	appealSeq int64
}

// Fault names accepted by MemoryStore.Fail.
const (
	FaultUpdateIncident = "update_incident"
	FaultInsertAppeal   = "insert_appeal"
	FaultUpdateAppeal   = "update_appeal"
	FaultUpdateAccount  = "update_account"
	FaultRead           = "read"
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: memoryData{
			incidents: map[int64]IncidentReport{},
			appeals:   map[int64]Appeal{},
			accounts:  map[int64]Account{},
		},
		faults: map[string]error{},
	}
}

// Fail makes every call of op return err until cleared with a nil err.
func (s *MemoryStore) Fail(op string, err error) {
	s.faultsMu.Lock()
	defer s.faultsMu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *MemoryStore) fault(op string) error {
	s.faultsMu.Lock()
	defer s.faultsMu.Unlock()
	return s.faults[op]
}

// PutIncident seeds or replaces an incident. Test helper.
func (s *MemoryStore) PutIncident(r IncidentReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Tags = slices.Clone(r.Tags)
	s.data.incidents[r.ID] = r
}

// PutAccount seeds or replaces an account. Test helper.
func (s *MemoryStore) PutAccount(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.accounts[a.ID] = a
}

// PutAppeal seeds or replaces an appeal, keeping the id sequence ahead of it. Test helper.
func (s *MemoryStore) PutAppeal(a Appeal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.appeals[a.ID] = a
	if a.ID > s.data.appealSeq {
		s.data.appealSeq = a.ID
	}
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryTx{store: s, data: s.data.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	// Aborted before commit: discard.
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

func (s *MemoryStore) GetIncident(ctx context.Context, id int64) (IncidentReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader(&s.data).GetIncident(ctx, id)
}

func (s *MemoryStore) GetAppeal(ctx context.Context, id int64) (Appeal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader(&s.data).GetAppeal(ctx, id)
}

func (s *MemoryStore) GetAccount(ctx context.Context, id int64) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader(&s.data).GetAccount(ctx, id)
}

func (s *MemoryStore) ListIncidentsBySubmitter(ctx context.Context, userID int64, status IncidentStatus) ([]IncidentReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader(&s.data).ListIncidentsBySubmitter(ctx, userID, status)
}

func (s *MemoryStore) ListIncidentsByStatus(ctx context.Context, status IncidentStatus) ([]IncidentReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader(&s.data).ListIncidentsByStatus(ctx, status)
}

func (s *MemoryStore) ListAppealsByIncidentIDs(ctx context.Context, ids []int64) ([]Appeal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader(&s.data).ListAppealsByIncidentIDs(ctx, ids)
}

func (s *MemoryStore) ListAppealsBySubject(ctx context.Context, userID int64) ([]Appeal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader(&s.data).ListAppealsBySubject(ctx, userID)
}

func (s *MemoryStore) ListAppealsByStatus(ctx context.Context, status AppealStatus) ([]Appeal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader(&s.data).ListAppealsByStatus(ctx, status)
}

func (s *MemoryStore) reader(d *memoryData) *memoryTx {
	return &memoryTx{store: s, data: *d}
}

func (d memoryData) clone() memoryData {
	out := memoryData{
		incidents: make(map[int64]IncidentReport, len(d.incidents)),
		appeals:   make(map[int64]Appeal, len(d.appeals)),
		accounts:  make(map[int64]Account, len(d.accounts)),
		appealSeq: d.appealSeq,
	}
	for k, v := range d.incidents {
		v.Tags = slices.Clone(v.Tags)
		out.incidents[k] = v
	}
	for k, v := range d.appeals {
		out.appeals[k] = v
	}
	for k, v := range d.accounts {
		out.accounts[k] = v
	}
	return out
}

// memoryTx reads and writes one memoryData. Outside RunInTx it is used read-only.
type memoryTx struct {
	store *MemoryStore
	data  memoryData
}

func (t *memoryTx) GetIncident(ctx context.Context, id int64) (IncidentReport, error) {
	if err := t.store.fault(FaultRead); err != nil {
		return IncidentReport{}, err
	}
	r, ok := t.data.incidents[id]
	if !ok {
		return IncidentReport{}, notFoundf("incident %d", id)
	}
	r.Tags = slices.Clone(r.Tags)
	return r, nil
}

func (t *memoryTx) GetAppeal(ctx context.Context, id int64) (Appeal, error) {
	if err := t.store.fault(FaultRead); err != nil {
		return Appeal{}, err
	}
	a, ok := t.data.appeals[id]
	if !ok {
		return Appeal{}, notFoundf("appeal %d", id)
	}
	return a, nil
}

func (t *memoryTx) GetAccount(ctx context.Context, id int64) (Account, error) {
	if err := t.store.fault(FaultRead); err != nil {
		return Account{}, err
	}
	a, ok := t.data.accounts[id]
	if !ok {
		return Account{}, notFoundf("account %d", id)
	}
	return a, nil
}

func (t *memoryTx) ListIncidentsBySubmitter(ctx context.Context, userID int64, status IncidentStatus) ([]IncidentReport, error) {
	return t.listIncidents(func(r IncidentReport) bool {
		return r.SubmitterUserID == userID && r.Status == status
	})
}

func (t *memoryTx) ListIncidentsByStatus(ctx context.Context, status IncidentStatus) ([]IncidentReport, error) {
	return t.listIncidents(func(r IncidentReport) bool { return r.Status == status })
}

func (t *memoryTx) listIncidents(keep func(IncidentReport) bool) ([]IncidentReport, error) {
	if err := t.store.fault(FaultRead); err != nil {
		return nil, err
	}
	out := make([]IncidentReport, 0)
	for _, r := range t.data.incidents {
		if !keep(r) {
			continue
		}
		r.Tags = slices.Clone(r.Tags)
		out = append(out, r)
	}
	return out, nil
}

func (t *memoryTx) ListAppealsByIncidentIDs(ctx context.Context, ids []int64) ([]Appeal, error) {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return t.listAppeals(func(a Appeal) bool {
		if a.IncidentID == nil {
			return false
		}
		_, ok := set[*a.IncidentID]
		return ok
	})
}

func (t *memoryTx) ListAppealsBySubject(ctx context.Context, userID int64) ([]Appeal, error) {
	return t.listAppeals(func(a Appeal) bool { return a.SubjectUserID == userID })
}

func (t *memoryTx) ListAppealsByStatus(ctx context.Context, status AppealStatus) ([]Appeal, error) {
	return t.listAppeals(func(a Appeal) bool { return a.Status == status })
}

func (t *memoryTx) listAppeals(keep func(Appeal) bool) ([]Appeal, error) {
	if err := t.store.fault(FaultRead); err != nil {
		return nil, err
	}
	out := make([]Appeal, 0)
	for _, a := range t.data.appeals {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *memoryTx) UpdateIncident(ctx context.Context, id int64, status IncidentStatus, tags []string, reason *string) (IncidentReport, error) {
	if err := t.store.fault(FaultUpdateIncident); err != nil {
		return IncidentReport{}, err
	}
	r, ok := t.data.incidents[id]
	if !ok {
		return IncidentReport{}, notFoundf("incident %d", id)
	}
	r.Status = status
	r.Tags = slices.Clone(tags)
	r.RejectionReason = reason
	t.data.incidents[id] = r

	r.Tags = slices.Clone(r.Tags)
	return r, nil
}

func (t *memoryTx) InsertAppeal(ctx context.Context, a Appeal) (Appeal, error) {
	if err := t.store.fault(FaultInsertAppeal); err != nil {
		return Appeal{}, err
	}
	t.data.appealSeq++
	a.ID = t.data.appealSeq
	t.data.appeals[a.ID] = a
	return a, nil
}

func (t *memoryTx) UpdateAppeal(ctx context.Context, id int64, expect, status AppealStatus, respondedBy int64, response string, now time.Time) (Appeal, error) {
	if err := t.store.fault(FaultUpdateAppeal); err != nil {
		return Appeal{}, err
	}
	a, ok := t.data.appeals[id]
	if !ok {
		return Appeal{}, notFoundf("appeal %d", id)
	}
	if a.Status != expect {
		return Appeal{}, conflictf("appeal %d is %s", id, a.Status)
	}
	a.Status = status
	a.RespondedBy = ptr(respondedBy)
	a.Response = ptr(response)
	a.UpdatedAt = now
	t.data.appeals[id] = a
	return a, nil
}

func (t *memoryTx) UpdateAccount(ctx context.Context, id int64, status AccountStatus, banReason *string) (Account, error) {
	if err := t.store.fault(FaultUpdateAccount); err != nil {
		return Account{}, err
	}
	a, ok := t.data.accounts[id]
	if !ok {
		return Account{}, notFoundf("account %d", id)
	}
	a.Status = status
	a.BanReason = banReason
	t.data.accounts[id] = a
	return a, nil
}
