package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"kitchenops/internal/domain"
	apperrors "kitchenops/internal/errors"
)

// In-memory stores shared by service tests. They copy on the way in and on
// the way out so tests observe persistence semantics, not aliasing.

type OrderStore struct {
	mu     sync.Mutex
	orders map[string]domain.Order
	Saves  int
}

func NewOrderStore(orders ...domain.Order) *OrderStore {
	s := &OrderStore{orders: make(map[string]domain.Order)}
	for _, o := range orders {
		s.orders[o.ID] = cloneOrder(o)
	}
	return s
}

func (s *OrderStore) Create(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; ok {
		return apperrors.NewConflictError(fmt.Sprintf("order %s already exists", order.ID))
	}
	s.orders[order.ID] = cloneOrder(*order)
	return nil
}

func (s *OrderStore) Get(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("order %s not found", id))
	}
	c := cloneOrder(o)
	return &c, nil
}

func (s *OrderStore) GetByItemID(_ context.Context, itemID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		for _, it := range o.Items {
			if it.ID == itemID {
				c := cloneOrder(o)
				return &c, nil
			}
		}
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("item %s not found", itemID))
}

func (s *OrderStore) Save(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.orders[order.ID]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("order %s not found", order.ID))
	}
	if stored.Version != order.Version {
		return apperrors.NewConflictError("order was modified concurrently")
	}
	order.Version++
	s.orders[order.ID] = cloneOrder(*order)
	s.Saves++
	return nil
}

func (s *OrderStore) FindActive(_ context.Context, filter domain.ActiveOrderFilter) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if filter.BranchID != "" && o.BranchID != filter.BranchID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, o.Status) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *OrderStore) FindCreatedBetween(_ context.Context, branchID string, from, to time.Time) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.BranchID != branchID || o.CreatedAt.Before(from) || !o.CreatedAt.Before(to) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func containsStatus(list []domain.OrderStatus, s domain.OrderStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func cloneOrder(o domain.Order) domain.Order {
	o.AuditLog = append([]domain.AuditEntry(nil), o.AuditLog...)
	items := make([]domain.OrderItem, len(o.Items))
	for i, it := range o.Items {
		it.Modifiers = append([]domain.Modifier(nil), it.Modifiers...)
		items[i] = it
	}
	o.Items = items
	return o
}

type PrinterStore struct {
	mu       sync.Mutex
	printers map[string]domain.PrinterConfig
	order    []string
}

func NewPrinterStore(printers ...domain.PrinterConfig) *PrinterStore {
	s := &PrinterStore{printers: make(map[string]domain.PrinterConfig)}
	for _, p := range printers {
		s.printers[p.ID] = p
		s.order = append(s.order, p.ID)
	}
	return s
}

func (s *PrinterStore) Create(_ context.Context, p *domain.PrinterConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.printers[p.ID] = *p
	s.order = append(s.order, p.ID)
	return nil
}

func (s *PrinterStore) Get(_ context.Context, id string) (*domain.PrinterConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.printers[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("printer %s not found", id))
	}
	p.StationMappings = append([]domain.StationMapping(nil), p.StationMappings...)
	return &p, nil
}

func (s *PrinterStore) Save(_ context.Context, p *domain.PrinterConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.printers[p.ID]; !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("printer %s not found", p.ID))
	}
	s.printers[p.ID] = *p
	return nil
}

func (s *PrinterStore) ListActive(_ context.Context, branchID string) ([]domain.PrinterConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PrinterConfig
	for _, id := range s.order {
		p := s.printers[id]
		if !p.Active || (branchID != "" && p.BranchID != branchID) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

type JobStore struct {
	mu   sync.Mutex
	jobs map[string]domain.PrinterJob
}

func NewJobStore(jobs ...domain.PrinterJob) *JobStore {
	s := &JobStore{jobs: make(map[string]domain.PrinterJob)}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *JobStore) Get(_ context.Context, id string) (*domain.PrinterJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("print job %s not found", id))
	}
	return &j, nil
}

func (s *JobStore) Create(_ context.Context, job *domain.PrinterJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *JobStore) Save(_ context.Context, job *domain.PrinterJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("print job %s not found", job.ID))
	}
	s.jobs[job.ID] = *job
	return nil
}

func (s *JobStore) FindEligible(_ context.Context, printerID string, now time.Time) ([]domain.PrinterJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PrinterJob
	for _, j := range s.jobs {
		if j.PrinterID == printerID && j.Eligible(now) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *JobStore) FindPrintingStartedBefore(_ context.Context, cutoff time.Time) ([]domain.PrinterJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PrinterJob
	for _, j := range s.jobs {
		if j.Status == domain.JobStatusPrinting && j.StartedAt != nil && j.StartedAt.Before(cutoff) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *JobStore) List(_ context.Context, f domain.JobFilter) ([]domain.PrinterJob, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []domain.PrinterJob
	for _, j := range s.jobs {
		if f.BranchID != "" && j.BranchID != f.BranchID {
			continue
		}
		if f.PrinterID != "" && j.PrinterID != f.PrinterID {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.OrderID != "" && (j.OrderID == nil || *j.OrderID != f.OrderID) {
			continue
		}
		all = append(all, j)
	}
	sort.Slice(all, func(a, b int) bool {
		if !all[a].CreatedAt.Equal(all[b].CreatedAt) {
			return all[a].CreatedAt.After(all[b].CreatedAt)
		}
		return all[a].ID < all[b].ID
	})
	start, end := domain.Paginate(len(all), f.Page, f.Limit)
	return all[start:end], len(all), nil
}

func (s *JobStore) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, j := range s.jobs {
		finished := j.Status == domain.JobStatusCompleted || j.Status == domain.JobStatusCancelled
		if finished && j.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

func (s *JobStore) CountByStatus(_ context.Context, branchID string) (map[domain.JobStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[domain.JobStatus]int)
	for _, j := range s.jobs {
		if branchID == "" || j.BranchID == branchID {
			counts[j.Status]++
		}
	}
	return counts, nil
}

// All returns every job sorted by creation time then id.
func (s *JobStore) All() []domain.PrinterJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PrinterJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].ID < out[b].ID
	})
	return out
}

type StationStore struct {
	stations map[string]domain.KitchenStationConfig
}

func NewStationStore(stations ...domain.KitchenStationConfig) *StationStore {
	s := &StationStore{stations: make(map[string]domain.KitchenStationConfig)}
	for _, st := range stations {
		s.stations[st.ID] = st
	}
	return s
}

func (s *StationStore) Get(_ context.Context, id string) (*domain.KitchenStationConfig, error) {
	st, ok := s.stations[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("station %s not found", id))
	}
	return &st, nil
}

func (s *StationStore) ListActive(_ context.Context, branchID string) ([]domain.KitchenStationConfig, error) {
	var out []domain.KitchenStationConfig
	for _, st := range s.stations {
		if st.Active && (branchID == "" || st.BranchID == branchID) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out, nil
}

type DeviceStore struct {
	devices []domain.NotificationDevice
}

func NewDeviceStore(devices ...domain.NotificationDevice) *DeviceStore {
	return &DeviceStore{devices: devices}
}

func (s *DeviceStore) Get(_ context.Context, id string) (*domain.NotificationDevice, error) {
	for _, d := range s.devices {
		if d.ID == id {
			d := d
			return &d, nil
		}
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("device %s not found", id))
}

func (s *DeviceStore) ListActive(_ context.Context, branchID string) ([]domain.NotificationDevice, error) {
	var out []domain.NotificationDevice
	for _, d := range s.devices {
		if d.Active && d.BranchID == branchID {
			out = append(out, d)
		}
	}
	return out, nil
}

type NotificationStore struct {
	mu      sync.Mutex
	records map[string]domain.NotificationRecord
}

func NewNotificationStore(records ...domain.NotificationRecord) *NotificationStore {
	s := &NotificationStore{records: make(map[string]domain.NotificationRecord)}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return s
}

func (s *NotificationStore) Get(_ context.Context, id string) (*domain.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("notification %s not found", id))
	}
	return &r, nil
}

func (s *NotificationStore) Create(_ context.Context, r *domain.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = *r
	return nil
}

func (s *NotificationStore) Save(_ context.Context, r *domain.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("notification %s not found", r.ID))
	}
	s.records[r.ID] = *r
	return nil
}

func (s *NotificationStore) FindExpired(_ context.Context, now time.Time) ([]domain.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.NotificationRecord
	for _, r := range s.records {
		if !r.Status.IsTerminal() && r.ExpiresAt.Before(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *NotificationStore) List(_ context.Context, branchID string, status domain.NotificationStatus) ([]domain.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.NotificationRecord
	for _, r := range s.records {
		if (branchID == "" || r.BranchID == branchID) && (status == "" || r.Status == status) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type TableRelease struct {
	TableID string
	Status  domain.TableStatus
}

type TableCollaborator struct {
	mu       sync.Mutex
	Releases []TableRelease
	Err      error
}

func (t *TableCollaborator) Release(_ context.Context, tableID string, status domain.TableStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return t.Err
	}
	t.Releases = append(t.Releases, TableRelease{TableID: tableID, Status: status})
	return nil
}
