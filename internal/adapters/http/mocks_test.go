package http_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kisansahayak/agrimonitor/internal/core/domain"
	"github.com/kisansahayak/agrimonitor/internal/core/ports"
)

// ---- In-memory repositories ----

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
	r.nextID++
	f.ID = r.nextID
	f.CreatedAt = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	f.UpdatedAt = f.CreatedAt
	r.fields[f.ID] = *f
	return nil
}

func (r *memFieldRepo) Update(ctx context.Context, f *domain.Field) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields[f.ID] = *f
	return nil
}

func (r *memFieldRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
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
		if strings.Contains(strings.ToLower(f.Name), strings.ToLower(search)) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	if offset >= total {
		return []domain.Field{}, total, nil
	}
	return out[offset:min(offset+limit, total)], total, nil
}

type memReadingRepo struct {
	mu       sync.Mutex
	nextID   int64
	readings []domain.Reading
}

func (r *memReadingRepo) Create(ctx context.Context, reading *domain.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	reading.ID = r.nextID
	r.readings = append(r.readings, *reading)
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
	out := []domain.Reading{}
	for i := len(r.readings) - 1; i >= 0; i-- {
		rd := r.readings[i]
		if (filter.FieldID == 0 || rd.FieldID == filter.FieldID) && (!filter.DiseaseOnly || rd.IsDisease) {
			out = append(out, rd)
		}
	}
	total := len(out)
	if filter.Offset >= total {
		return []domain.Reading{}, total, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func (r *memReadingRepo) SetAsset(ctx context.Context, id int64, assetID string, status domain.AssetStatus) error {
	return r.update(id, func(rd *domain.Reading) { rd.AssetID, rd.AssetStatus = assetID, status })
}

func (r *memReadingRepo) SetAssetStatus(ctx context.Context, id int64, status domain.AssetStatus) error {
	return r.update(id, func(rd *domain.Reading) { rd.AssetStatus = status })
}

func (r *memReadingRepo) ListDetached(ctx context.Context, pendingBefore time.Time, limit int) ([]domain.Reading, error) {
	return nil, nil
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

// ---- Collaborators ----

type mockClassifier struct {
	text string
	err  error
}

func (m *mockClassifier) Classify(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	return m.text, m.err
}

type mockBlobStore struct {
	fail bool
}

func (m *mockBlobStore) Upload(ctx context.Context, data []byte, folder, desiredID string) (string, error) {
	if m.fail {
		return "", errors.New("bucket unreachable")
	}
	return folder + "/" + desiredID, nil
}

func (m *mockBlobStore) ResolveURL(publicID string) string { return "https://blobs.test/" + publicID }

func (m *mockBlobStore) Remove(ctx context.Context, publicID string) error { return nil }

type stubWeather struct{}

func (stubWeather) Fetch(ctx context.Context, lat, lon float64, endpoint ports.WeatherEndpoint) (ports.WeatherResponse, error) {
	return ports.WeatherResponse{StatusCode: 200, Body: []byte(`{"name":"Hassan"}`)}, nil
}
