package record

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"archivist/internal/domain/record"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Initialize(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockRepository) Finalize(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockRepository) Save(ctx context.Context, rec *record.Record) (record.Outcome, error) {
	args := m.Called(ctx, rec)
	return args.Get(0).(record.Outcome), args.Error(1)
}

func (m *MockRepository) FindLatest(ctx context.Context, serviceID, documentType string) (*record.Record, error) {
	args := m.Called(ctx, serviceID, documentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*record.Record), args.Error(1)
}

func (m *MockRepository) FindByID(ctx context.Context, id string) (*record.Record, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*record.Record), args.Error(1)
}

func (m *MockRepository) FindAll(ctx context.Context, opts record.FindOptions) ([]*record.Record, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*record.Record), args.Error(1)
}

func (m *MockRepository) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) Iterate(ctx context.Context, opts record.FindOptions) iter.Seq2[*record.Record, error] {
	args := m.Called(ctx, opts)
	records, err := args.Get(0).([]*record.Record), args.Error(1)
	return func(yield func(*record.Record, error) bool) {
		for _, rec := range records {
			if !yield(rec, nil) {
				return
			}
		}
		if err != nil {
			yield(nil, err)
		}
	}
}

func (m *MockRepository) RemoveAll(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockRepository) LoadRecordContent(ctx context.Context, rec *record.Record) error {
	args := m.Called(ctx, rec)
	if content, ok := args.Get(0).([]byte); ok {
		rec.Content = content
	}
	return args.Error(1)
}

type history struct {
	snapshots, versions record.Repository
}

func (h history) Snapshots() record.Repository { return h.snapshots }
func (h history) Versions() record.Repository  { return h.versions }

var fetchDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func snapshot(id, serviceID string) *record.Record {
	return &record.Record{
		ID:           id,
		ServiceID:    serviceID,
		DocumentType: "Terms of Service",
		MimeType:     "text/html",
		FetchDate:    fetchDate,
	}
}

func setup(t *testing.T) (*MockRepository, *MockRepository, *Handler) {
	t.Helper()
	snapshots, versions := new(MockRepository), new(MockRepository)
	handler := NewHandler(history{snapshots: snapshots, versions: versions}, slog.Default(), huma.Middlewares{})
	return snapshots, versions, handler
}

func TestHandler_list(t *testing.T) {
	tests := []struct {
		name          string
		input         listInput
		expectedIDs   []string
		expectedTotal int
	}{
		{
			name:          "all records",
			input:         listInput{Collection: CollectionSnapshots},
			expectedIDs:   []string{"1", "2", "3"},
			expectedTotal: 3,
		},
		{
			name:          "filter by service",
			input:         listInput{Collection: CollectionSnapshots, Service: "b"},
			expectedIDs:   []string{"2"},
			expectedTotal: 1,
		},
		{
			name:          "limit keeps total",
			input:         listInput{Collection: CollectionSnapshots, Limit: 2},
			expectedIDs:   []string{"1", "2"},
			expectedTotal: 3,
		},
		{
			name:          "unknown type",
			input:         listInput{Collection: CollectionSnapshots, Type: "Privacy Policy"},
			expectedIDs:   nil,
			expectedTotal: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			snapshots, _, handler := setup(t)
			records := []*record.Record{snapshot("1", "a"), snapshot("2", "b"), snapshot("3", "a")}
			snapshots.On("Iterate", mock.Anything, record.FindOptions{DeferContentLoading: true}).Return(records, nil)

			// Act
			output, err := handler.list(context.Background(), &tt.input)

			// Assert
			require.NoError(t, err)
			var ids []string
			for _, rec := range output.Body.Records {
				ids = append(ids, rec.ID)
			}
			assert.Equal(t, tt.expectedIDs, ids)
			assert.Equal(t, tt.expectedTotal, output.Body.Total)
			snapshots.AssertExpectations(t)
		})
	}
}

func TestHandler_list_RepositoryError(t *testing.T) {
	// Arrange
	_, versions, handler := setup(t)
	versions.On("Iterate", mock.Anything, mock.Anything).Return([]*record.Record{}, errors.New("connection reset"))

	// Act
	output, err := handler.list(context.Background(), &listInput{Collection: CollectionVersions})

	// Assert
	assert.Nil(t, output)
	var statusErr huma.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.GetStatus())
}

func TestHandler_latest(t *testing.T) {
	// Arrange
	_, versions, handler := setup(t)
	version := snapshot("v1", "a")
	version.SnapshotIDs = []string{"s1"}
	versions.On("FindLatest", mock.Anything, "a", "Terms of Service").Return(version, nil)
	versions.On("FindLatest", mock.Anything, "b", "Terms of Service").Return(nil, nil)

	// Act
	output, err := handler.latest(context.Background(), &latestInput{Collection: CollectionVersions, Service: "a", Type: "Terms of Service"})
	_, missingErr := handler.latest(context.Background(), &latestInput{Collection: CollectionVersions, Service: "b", Type: "Terms of Service"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "v1", output.Body.ID)
	assert.Equal(t, "version", output.Body.Kind)
	assert.Equal(t, []string{"s1"}, output.Body.SnapshotIDs)

	var statusErr huma.StatusError
	require.ErrorAs(t, missingErr, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.GetStatus())
	versions.AssertExpectations(t)
}

func TestHandler_find_NotFound(t *testing.T) {
	// Arrange
	snapshots, _, handler := setup(t)
	snapshots.On("FindByID", mock.Anything, "missing").Return(nil, nil)

	// Act
	output, err := handler.find(context.Background(), &findInput{Collection: CollectionSnapshots, ID: "missing"})

	// Assert
	assert.Nil(t, output)
	var statusErr huma.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.GetStatus())
}

func TestHandler_content(t *testing.T) {
	tests := []struct {
		name   string
		loaded []byte
		loads  bool
	}{
		{name: "content already loaded", loaded: []byte("<p>terms</p>")},
		{name: "content loaded on demand", loads: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			snapshots, _, handler := setup(t)
			rec := snapshot("1", "a")
			rec.Content = tt.loaded
			snapshots.On("FindByID", mock.Anything, "1").Return(rec, nil)
			if tt.loads {
				snapshots.On("LoadRecordContent", mock.Anything, rec).Return([]byte("<p>terms</p>"), nil)
			}

			// Act
			output, err := handler.content(context.Background(), &findInput{Collection: CollectionSnapshots, ID: "1"})

			// Assert
			require.NoError(t, err)
			assert.Equal(t, "text/html", output.ContentType)
			assert.Equal(t, []byte("<p>terms</p>"), output.Body)
			snapshots.AssertExpectations(t)
		})
	}
}

func TestHandler_Routes(t *testing.T) {
	// Arrange
	snapshots, _, handler := setup(t)
	snapshots.On("FindLatest", mock.Anything, "a", "Terms of Service").Return(snapshot("1", "a"), nil)
	pdf := snapshot("2", "a")
	pdf.MimeType = "application/pdf"
	pdf.Content = []byte("%PDF-1.4")
	snapshots.On("FindByID", mock.Anything, "2").Return(pdf, nil)

	mux := chi.NewMux()
	api := humachi.New(mux, huma.DefaultConfig("Archivist API", "1.0.0"))
	handler.SetupRoutes(api)

	t.Run("latest is not an id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/snapshots/latest?service=a&type=Terms%20of%20Service", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body recordResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "1", body.ID)
		assert.Equal(t, "snapshot", body.Kind)
	})

	t.Run("raw content", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/snapshots/2/content", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
		assert.Equal(t, "%PDF-1.4", rec.Body.String())
	})

	t.Run("unknown collection", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/drafts", nil))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}
