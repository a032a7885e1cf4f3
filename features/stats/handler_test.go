package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"lumen/ingest/internal/middleware"
)

type MockDocumentRepo struct{ mock.Mock }

func (m *MockDocumentRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type MockJobRepo struct{ mock.Mock }

func (m *MockJobRepo) CountFailedByUser(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type MockChunkRepo struct{ mock.Mock }

func (m *MockChunkRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func TestHandler_GetStats_Table(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(*MockDocumentRepo, *MockJobRepo, *MockChunkRepo)
		wantStatus int
		wantError  bool
		checkBody  func(*testing.T, map[string]interface{})
	}{
		{
			name: "Success",
			setupMocks: func(d *MockDocumentRepo, j *MockJobRepo, c *MockChunkRepo) {
				d.On("CountByUser", mock.Anything, "user-1").Return(10, nil)
				c.On("CountByUser", mock.Anything, "user-1").Return(100, nil)
				j.On("CountFailedByUser", mock.Anything, "user-1").Return(5, nil)
			},
			wantStatus: http.StatusOK,
			wantError:  false,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				data := body["data"].(map[string]interface{})
				assert.EqualValues(t, 10, data["documents"])
				assert.EqualValues(t, 100, data["chunks"])
				assert.EqualValues(t, 5, data["failed_jobs"])
			},
		},
		{
			name: "DocumentRepo Error",
			setupMocks: func(d *MockDocumentRepo, j *MockJobRepo, c *MockChunkRepo) {
				d.On("CountByUser", mock.Anything, "user-1").Return(0, errors.New("db error"))
			},
			wantStatus: http.StatusInternalServerError,
			wantError:  true,
		},
		{
			name: "ChunkRepo Error",
			setupMocks: func(d *MockDocumentRepo, j *MockJobRepo, c *MockChunkRepo) {
				d.On("CountByUser", mock.Anything, "user-1").Return(10, nil)
				c.On("CountByUser", mock.Anything, "user-1").Return(0, errors.New("db error"))
			},
			wantStatus: http.StatusInternalServerError,
			wantError:  true,
		},
		{
			name: "JobRepo Error",
			setupMocks: func(d *MockDocumentRepo, j *MockJobRepo, c *MockChunkRepo) {
				d.On("CountByUser", mock.Anything, "user-1").Return(10, nil)
				c.On("CountByUser", mock.Anything, "user-1").Return(100, nil)
				j.On("CountFailedByUser", mock.Anything, "user-1").Return(0, errors.New("db error"))
			},
			wantStatus: http.StatusInternalServerError,
			wantError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docRepo := new(MockDocumentRepo)
			jobRepo := new(MockJobRepo)
			chunkRepo := new(MockChunkRepo)
			tt.setupMocks(docRepo, jobRepo, chunkRepo)

			h := NewHandler(docRepo, jobRepo, chunkRepo)

			req := httptest.NewRequest(http.MethodGet, "/stats", nil)
			ctx := context.WithValue(req.Context(), middleware.UserKey, &middleware.UserClaims{ID: "user-1"})
			rec := httptest.NewRecorder()

			h.GetStats(rec, req.WithContext(ctx))

			assert.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]interface{}
			err := json.NewDecoder(rec.Body).Decode(&body)
			assert.NoError(t, err)

			if tt.wantError {
				assert.Contains(t, body, "error")
			} else if tt.checkBody != nil {
				tt.checkBody(t, body)
			}

			docRepo.AssertExpectations(t)
			jobRepo.AssertExpectations(t)
			chunkRepo.AssertExpectations(t)
		})
	}
}

func TestHandler_GetStats_MissingUser(t *testing.T) {
	h := NewHandler(new(MockDocumentRepo), new(MockJobRepo), new(MockChunkRepo))

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()

	h.GetStats(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
