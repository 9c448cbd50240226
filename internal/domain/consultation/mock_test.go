package consultation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/optoclinic/clinic/internal/domain/appointment"
)

// -- Mock Repository --

type txKey struct{}

// mockRepo serializes WithTx the way the appointment row lock does in
// Postgres. Nested WithTx calls join the outer transaction.
type mockRepo struct {
	txMu sync.Mutex

	mu       sync.Mutex
	versions map[uuid.UUID]*ConsultationVersion
	order    []uuid.UUID
	records  map[uuid.UUID]map[string]*ClinicalRecord
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		versions: make(map[uuid.UUID]*ConsultationVersion),
		records:  make(map[uuid.UUID]map[string]*ClinicalRecord),
	}
}

func cloneVersion(v *ConsultationVersion) *ConsultationVersion {
	cp := *v
	if v.DiffSnapshot != nil {
		s := *v.DiffSnapshot
		cp.DiffSnapshot = &s
	}
	return &cp
}

func cloneRecord(r *ClinicalRecord) *ClinicalRecord {
	cp := *r
	cp.Data = make(map[string]interface{}, len(r.Data))
	for k, v := range r.Data {
		cp.Data[k] = v
	}
	return &cp
}

func (m *mockRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, true))
}

func (m *mockRepo) CreateVersion(_ context.Context, v *ConsultationVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		existing := m.versions[id]
		if existing.AppointmentID == v.AppointmentID && existing.VersionType == v.VersionType && !existing.IsFinal {
			return errDuplicateOpen
		}
	}
	v.ID = uuid.New()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	m.versions[v.ID] = cloneVersion(v)
	m.order = append(m.order, v.ID)
	return nil
}

func (m *mockRepo) GetVersion(_ context.Context, id uuid.UUID) (*ConsultationVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneVersion(v), nil
}

func (m *mockRepo) ListVersions(_ context.Context, appointmentID uuid.UUID) ([]*ConsultationVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ConsultationVersion
	for _, id := range m.order {
		if v := m.versions[id]; v.AppointmentID == appointmentID {
			out = append(out, cloneVersion(v))
		}
	}
	return out, nil
}

func (m *mockRepo) FindOpenVersion(_ context.Context, appointmentID uuid.UUID, vt VersionType) (*ConsultationVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		v := m.versions[id]
		if v.AppointmentID == appointmentID && v.VersionType == vt && !v.IsFinal {
			return cloneVersion(v), nil
		}
	}
	return nil, nil
}

func (m *mockRepo) MarkFinal(_ context.Context, id uuid.UUID, snapshot *DiffSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok {
		return ErrNotFound
	}
	if v.IsFinal {
		return ErrVersionLocked
	}
	now := time.Now()
	v.IsFinal = true
	v.FinalizedAt = &now
	if snapshot != nil {
		s := *snapshot
		v.DiffSnapshot = &s
	}
	return nil
}

func (m *mockRepo) ListRecords(_ context.Context, versionID uuid.UUID) ([]*ClinicalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ClinicalRecord
	for _, r := range m.records[versionID] {
		out = append(out, cloneRecord(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Section < out[j].Section })
	return out, nil
}

func (m *mockRepo) UpsertRecord(_ context.Context, rec *ClinicalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.versions[rec.VersionID]; !ok {
		return ErrNotFound
	} else if v.IsFinal {
		return ErrVersionLocked
	}
	secs, ok := m.records[rec.VersionID]
	if !ok {
		secs = make(map[string]*ClinicalRecord)
		m.records[rec.VersionID] = secs
	}
	if existing, ok := secs[rec.Section]; ok {
		rec.ID = existing.ID
	} else {
		rec.ID = uuid.New()
	}
	rec.UpdatedAt = time.Now()
	secs[rec.Section] = cloneRecord(rec)
	return nil
}

func (m *mockRepo) CopyRecords(_ context.Context, from, to uuid.UUID, by string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dst := make(map[string]*ClinicalRecord)
	for sec, r := range m.records[from] {
		cp := cloneRecord(r)
		cp.ID = uuid.New()
		cp.VersionID = to
		cp.UpdatedBy = by
		dst[sec] = cp
	}
	m.records[to] = dst
	return len(dst), nil
}

func (m *mockRepo) CountRecords(_ context.Context, versionID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records[versionID]), nil
}

func (m *mockRepo) countType(appointmentID uuid.UUID, vt VersionType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.versions {
		if v.AppointmentID == appointmentID && v.VersionType == vt {
			n++
		}
	}
	return n
}

// -- In-memory appointment repository --

type memAppointments struct {
	mu    sync.Mutex
	items map[uuid.UUID]*appointment.Appointment
}

func newMemAppointments() *memAppointments {
	return &memAppointments{items: make(map[uuid.UUID]*appointment.Appointment)}
}

func (m *memAppointments) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *memAppointments) Create(_ context.Context, a *appointment.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *memAppointments) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, appointment.ErrNotFound
	}
	cp := *a
	if a.LockedBy != nil {
		h := *a.LockedBy
		cp.LockedBy = &h
	}
	return &cp, nil
}

func (m *memAppointments) GetForUpdate(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return m.GetByID(ctx, id)
}

func (m *memAppointments) List(_ context.Context, _ string, _, _ int) ([]*appointment.Appointment, int, error) {
	return nil, 0, nil
}

func (m *memAppointments) AcquireLock(_ context.Context, id uuid.UUID, holder appointment.LockHolder, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return false, nil
	}
	if a.IsLocked && (a.LockedBy == nil || a.LockedBy.ID != holder.ID) {
		return false, nil
	}
	a.IsLocked = true
	a.LockedBy = &holder
	a.LockedAt = &at
	return true, nil
}

func (m *memAppointments) ReleaseLock(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return appointment.ErrNotFound
	}
	a.IsLocked, a.LockedBy, a.LockedAt = false, nil, nil
	return nil
}

func (m *memAppointments) UpdateStatus(_ context.Context, id uuid.UUID, status string, submitted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return appointment.ErrNotFound
	}
	a.Status = status
	a.IsSubmittedForReview = submitted
	return nil
}

func (m *memAppointments) AddStatusHistory(context.Context, *appointment.StatusHistory) error {
	return nil
}

func (m *memAppointments) GetStatusHistory(context.Context, uuid.UUID) ([]*appointment.StatusHistory, error) {
	return nil, nil
}
