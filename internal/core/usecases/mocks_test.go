package usecases_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kisansahayak/agrimonitor/internal/core/domain"
	"github.com/kisansahayak/agrimonitor/internal/core/ports"
)

// --- In-memory FieldRepository ---

type memFieldRepo struct {
	mu     sync.Mutex
	nextID int64
	fields map[int64]domain.Field
}

func newMemFieldRepo(fields ...domain.Field) *memFieldRepo {
	r := &memFieldRepo{fields: make(map[int64]domain.Field)}
	for _, f := range fields {
		r.fields[f.ID] = f
		r.nextID = max(r.nextID, f.ID)
	}
	return r
}

func (r *memFieldRepo) Create(ctx context.Context, f *domain.Field) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.fields {
		if existing.Name == f.Name {
			return domain.ErrConflict
		}
	}
	r.nextID++
	f.ID = r.nextID
	f.CreatedAt = time.Now().UTC()
	f.UpdatedAt = f.CreatedAt
	r.fields[f.ID] = *f
	return nil
}

func (r *memFieldRepo) Update(ctx context.Context, f *domain.Field) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fields[f.ID]; !ok {
		return domain.ErrNotFound
	}
	r.fields[f.ID] = *f
	return nil
}

func (r *memFieldRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fields[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.fields, id)
	return nil
}

func (r *memFieldRepo) GetByID(ctx context.Context, id int64) (*domain.Field, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fields[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &f, nil
}

func (r *memFieldRepo) GetByName(ctx context.Context, name string) (*domain.Field, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.fields {
		if f.Name == name {
			return &f, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memFieldRepo) List(ctx context.Context, search string, offset, limit int) ([]domain.Field, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Field
	for _, f := range r.fields {
		if search == "" || strings.Contains(strings.ToLower(f.Name), strings.ToLower(search)) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	return out[offset:min(offset+limit, total)], total, nil
}

// --- In-memory ReadingRepository ---

type memReadingRepo struct {
	mu       sync.Mutex
	nextID   int64
	readings []domain.Reading // insertion order

	createErr   error
	setAssetErr error
}

func (r *memReadingRepo) Create(ctx context.Context, reading *domain.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if err := checkColumns(reading); err != nil {
		return err
	}
	r.nextID++
	reading.ID = r.nextID
	r.readings = append(r.readings, *reading)
	return nil
}

// checkColumns rejects values the readings table would refuse.
func checkColumns(rd *domain.Reading) error {
	if utf8.RuneCountInString(rd.CropName) > 255 {
		return errors.New("value too long for type character varying(255)")
	}
	for _, v := range []string{rd.CropName, rd.Description, rd.Solution, rd.DiagnosisError} {
		if strings.ContainsRune(v, 0) || !utf8.ValidString(v) {
			return errors.New("invalid byte sequence for encoding UTF8")
		}
	}
	return nil
}

func (r *memReadingRepo) GetByID(ctx context.Context, id int64) (*domain.Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rd := range r.readings {
		if rd.ID == id {
			return &rd, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memReadingRepo) List(ctx context.Context, filter ports.ReadingFilter) ([]domain.Reading, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Reading
	for i := len(r.readings) - 1; i >= 0; i-- {
		rd := r.readings[i]
		if filter.FieldID != 0 && rd.FieldID != filter.FieldID {
			continue
		}
		if filter.DiseaseOnly && !rd.IsDisease {
			continue
		}
		out = append(out, rd)
	}
	total := len(out)
	if filter.Offset >= total {
		return nil, total, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func (r *memReadingRepo) SetAsset(ctx context.Context, id int64, assetID string, status domain.AssetStatus) error {
	if r.setAssetErr != nil {
		return r.setAssetErr
	}
	return r.update(id, func(rd *domain.Reading) {
		rd.AssetID = assetID
		rd.AssetStatus = status
	})
}

func (r *memReadingRepo) SetAssetStatus(ctx context.Context, id int64, status domain.AssetStatus) error {
	return r.update(id, func(rd *domain.Reading) { rd.AssetStatus = status })
}

func (r *memReadingRepo) ListDetached(ctx context.Context, pendingBefore time.Time, limit int) ([]domain.Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Reading
	for _, rd := range r.readings {
		if rd.AssetStatus == domain.AssetAttachFailed ||
			(rd.AssetStatus == domain.AssetPending && rd.CreatedAt.Before(pendingBefore)) {
			out = append(out, rd)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memReadingRepo) update(id int64, fn func(*domain.Reading)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.readings {
		if r.readings[i].ID == id {
			fn(&r.readings[i])
			return nil
		}
	}
	return domain.ErrNotFound
}

// --- Mock Classifier ---

type mockClassifier struct {
	mu      sync.Mutex
	calls   int
	classFn func(ctx context.Context, image []byte, mimeType, prompt string) (string, error)
}

func (m *mockClassifier) Classify(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.classFn != nil {
		return m.classFn(ctx, image, mimeType, prompt)
	}
	return "", errors.New("no response configured")
}

func (m *mockClassifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func respondWith(text string) *mockClassifier {
	return &mockClassifier{classFn: func(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
		return text, nil
	}}
}

// --- Mock BlobStore ---

type mockBlobStore struct {
	mu       sync.Mutex
	uploadFn func(ctx context.Context, data []byte, folder, desiredID string) (string, error)
	uploads  map[string][]byte
	removed  []string
}

func (m *mockBlobStore) Upload(ctx context.Context, data []byte, folder, desiredID string) (string, error) {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, data, folder, desiredID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploads == nil {
		m.uploads = make(map[string][]byte)
	}
	id := folder + "/" + desiredID
	m.uploads[id] = data
	return id, nil
}

func (m *mockBlobStore) ResolveURL(publicID string) string {
	return "https://blobs.test/" + publicID
}

func (m *mockBlobStore) Remove(ctx context.Context, publicID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, publicID)
	return nil
}

func failingUploads(err error) *mockBlobStore {
	return &mockBlobStore{uploadFn: func(ctx context.Context, data []byte, folder, desiredID string) (string, error) {
		return "", err
	}}
}

// --- In-memory CacheService ---

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, ports.ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// --- Mock WeatherClient ---

type mockWeatherClient struct {
	mu      sync.Mutex
	calls   int
	fetchFn func(ctx context.Context, lat, lon float64, endpoint ports.WeatherEndpoint) (ports.WeatherResponse, error)
}

func (m *mockWeatherClient) Fetch(ctx context.Context, lat, lon float64, endpoint ports.WeatherEndpoint) (ports.WeatherResponse, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.fetchFn != nil {
		return m.fetchFn(ctx, lat, lon, endpoint)
	}
	return ports.WeatherResponse{StatusCode: 200, Body: []byte(`{"endpoint":"` + string(endpoint) + `"}`)}, nil
}

func (m *mockWeatherClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// --- Recording EventPublisher ---

type recordingPublisher struct {
	mu           sync.Mutex
	created      []domain.ReadingEvent
	attachFailed []domain.ReadingEvent
}

func (p *recordingPublisher) PublishReadingCreated(ctx context.Context, e *domain.ReadingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, *e)
	return nil
}

func (p *recordingPublisher) PublishAssetAttachFailed(ctx context.Context, e *domain.ReadingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attachFailed = append(p.attachFailed, *e)
	return nil
}
