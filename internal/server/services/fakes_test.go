package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/devsoc/devsoc-backend/internal/common"
	"github.com/devsoc/devsoc-backend/internal/dbx"
	"github.com/devsoc/devsoc-backend/internal/logging"
	"github.com/devsoc/devsoc-backend/internal/server/assets"
	"github.com/devsoc/devsoc-backend/internal/server/events"
	"github.com/devsoc/devsoc-backend/internal/server/models"
	"github.com/devsoc/devsoc-backend/internal/server/repositories/payments"
	"github.com/devsoc/devsoc-backend/internal/server/repositories/sagas"
	"github.com/devsoc/devsoc-backend/internal/server/repositories/settings"
	"github.com/devsoc/devsoc-backend/internal/server/repositories/users"
)

// --- in-memory tables ---

type memDB struct {
	mu       sync.Mutex
	seq      int
	users    map[string]*models.User
	payments map[string]*models.Payment
	sagas    map[string]*models.SagaRecord
	settings map[string]*models.Setting
	failOn   map[string]error
}

func newMemDB() *memDB {
	return &memDB{
		users:    map[string]*models.User{},
		payments: map[string]*models.Payment{},
		sagas:    map[string]*models.SagaRecord{},
		settings: map[string]*models.Setting{},
		failOn:   map[string]error{},
	}
}

func (m *memDB) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

type fakeRepoManager struct{ m *memDB }

func (f *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (f *fakeRepoManager) Users(dbx.DBTX) users.Repository              { return &memUsers{f.m} }
func (f *fakeRepoManager) Payments(dbx.DBTX) payments.Repository        { return &memPayments{f.m} }
func (f *fakeRepoManager) Settings(dbx.DBTX) settings.Repository        { return &memSettings{f.m} }
func (f *fakeRepoManager) Sagas(dbx.DBTX) sagas.Repository              { return &memSagas{f.m} }

type memUsers struct{ m *memDB }

func (r *memUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.failOn["users.Create"]; err != nil {
		return nil, err
	}
	c := *u
	c.ID = r.m.nextID("u")
	r.m.users[c.ID] = &c
	u.ID = c.ID
	return u, nil
}

func (r *memUsers) SetPaymentID(ctx context.Context, userID, paymentID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[userID]
	if !ok {
		return common.ErrorNotFound
	}
	u.PaymentID = paymentID
	return nil
}

func (r *memUsers) Delete(ctx context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.failOn["users.Delete"]; err != nil {
		return err
	}
	delete(r.m.users, id)
	return nil
}

func (r *memUsers) GetByEmailAndEvent(ctx context.Context, email, slug string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.Email == email && u.EventSlug == slug {
			c := *u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUsers) ListByEvent(ctx context.Context, slug string) ([]*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.User
	for _, u := range r.m.users {
		if u.EventSlug == slug {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out, nil
}

type memPayments struct{ m *memDB }

func (r *memPayments) Create(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.failOn["payments.Create"]; err != nil {
		return nil, err
	}
	c := *p
	c.ID = r.m.nextID("p")
	r.m.payments[c.ID] = &c
	p.ID = c.ID
	return p, nil
}

func (r *memPayments) ExistsByTransactionID(ctx context.Context, txID string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, p := range r.m.payments {
		if p.TransactionID == txID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memPayments) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.payments[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *p
	return &c, nil
}

func (r *memPayments) AttachProof(ctx context.Context, id, url, storageID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.failOn["payments.AttachProof"]; err != nil {
		return err
	}
	p, ok := r.m.payments[id]
	if !ok {
		return common.ErrorNotFound
	}
	p.ScreenshotURL, p.ScreenshotStorageID = url, storageID
	return nil
}

func (r *memPayments) UpdateStatus(ctx context.Context, id string, status models.PaymentStatus, at *time.Time, by string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.payments[id]
	if !ok {
		return common.ErrorNotFound
	}
	p.Status, p.VerifiedAt, p.VerifiedBy = status, at, by
	return nil
}

func (r *memPayments) Delete(ctx context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.failOn["payments.Delete"]; err != nil {
		return err
	}
	delete(r.m.payments, id)
	return nil
}

func (r *memPayments) ListByEvent(ctx context.Context, slug string) ([]*models.Payment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Payment
	for _, p := range r.m.payments {
		if p.EventSlug == slug {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memPayments) ListByStatusWithUsers(ctx context.Context, status models.PaymentStatus) ([]*models.PaymentWithUser, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.PaymentWithUser
	for _, p := range r.m.payments {
		if p.Status != status {
			continue
		}
		row := &models.PaymentWithUser{Payment: *p}
		if u, ok := r.m.users[p.UserID]; ok {
			c := *u
			row.User = &c
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memSagas struct{ m *memDB }

func (r *memSagas) Create(ctx context.Context, rec *models.SagaRecord) (*models.SagaRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c := *rec
	c.ID = r.m.nextID("s")
	c.UpdatedAt = c.CreatedAt
	r.m.sagas[c.ID] = &c
	rec.ID = c.ID
	return rec, nil
}

func (r *memSagas) MarkUploaded(ctx context.Context, id, assetID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.failOn["sagas.MarkUploaded"]; err != nil {
		return err
	}
	s, ok := r.m.sagas[id]
	if !ok {
		return common.ErrorNotFound
	}
	s.State, s.AssetID = models.SagaUploaded, assetID
	return nil
}

func (r *memSagas) RecordFailure(ctx context.Context, id, assetID, msg string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sagas[id]
	if !ok {
		return common.ErrorNotFound
	}
	s.LastError = msg
	if assetID != "" {
		s.State, s.AssetID = models.SagaUploaded, assetID
	}
	return nil
}

func (r *memSagas) Delete(ctx context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.sagas, id)
	return nil
}

func (r *memSagas) DeleteByPaymentID(ctx context.Context, paymentID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for id, s := range r.m.sagas {
		if s.PaymentID == paymentID {
			delete(r.m.sagas, id)
		}
	}
	return nil
}

func (r *memSagas) ListStale(ctx context.Context, before time.Time, limit int) ([]*models.SagaRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.failOn["sagas.ListStale"]; err != nil {
		return nil, err
	}
	var out []*models.SagaRecord
	for _, s := range r.m.sagas {
		if s.UpdatedAt.Before(before) {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memSettings struct{ m *memDB }

func (r *memSettings) Get(ctx context.Context, key string) (*models.Setting, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.failOn["settings.Get"]; err != nil {
		return nil, err
	}
	s, ok := r.m.settings[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *s
	return &c, nil
}

func (r *memSettings) List(ctx context.Context) ([]*models.Setting, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Setting
	for _, s := range r.m.settings {
		c := *s
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r *memSettings) Upsert(ctx context.Context, s *models.Setting) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	_, exists := r.m.settings[s.Key]
	c := *s
	r.m.settings[s.Key] = &c
	return !exists, nil
}

func (r *memSettings) Delete(ctx context.Context, key string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.settings[key]; !ok {
		return common.ErrorNotFound
	}
	delete(r.m.settings, key)
	return nil
}

// --- collaborators ---

type fakeHost struct {
	mu         sync.Mutex
	configured bool
	objects    map[string]string
	uploadErr  error
	deleteErr  error
	deleted    []string
	// stall makes Upload wait for its context to end.
	stall bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{configured: true, objects: map[string]string{}}
}

func (h *fakeHost) Configured() bool { return h.configured }

func (h *fakeHost) Upload(ctx context.Context, in assets.UploadInput) (*assets.Asset, error) {
	if h.stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.uploadErr != nil {
		return nil, h.uploadErr
	}
	body, _ := io.ReadAll(in.Body)
	key := in.Folder + "/" + in.Name
	h.objects[key] = string(body)
	return &assets.Asset{ID: key, URL: "https://cdn.test/" + key}, nil
}

func (h *fakeHost) Delete(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.deleteErr != nil {
		return h.deleteErr
	}
	delete(h.objects, id)
	h.deleted = append(h.deleted, id)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

// --- harness ---

type harness struct {
	db    *sql.DB
	mock  sqlmock.Sqlmock
	mem   *memDB
	host  *fakeHost
	pub   *fakePublisher
	store *RegistrationStore
	coord *Coordinator
}

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := &harness{db: db, mock: mock, mem: newMemDB(), host: newFakeHost(), pub: &fakePublisher{}}
	rm := &fakeRepoManager{h.mem}
	log := logging.NewNopLogger()

	h.store = NewRegistrationStore(db, rm, h.pub, log)
	h.store.now = func() time.Time { return fixedNow }
	h.coord = NewCoordinator(h.store, h.host, h.pub, log)
	h.coord.now = func() time.Time { return fixedNow }
	return h
}

func (h *harness) expectCommits(n int) {
	for i := 0; i < n; i++ {
		h.mock.ExpectBegin()
		h.mock.ExpectCommit()
	}
}

func (h *harness) expectRollback() {
	h.mock.ExpectBegin()
	h.mock.ExpectRollback()
}

func (h *harness) verify(t *testing.T) {
	t.Helper()
	if err := h.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
