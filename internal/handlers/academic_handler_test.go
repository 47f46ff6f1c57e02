package handlers

import (
	"net/http"
	"testing"

	"school-portal/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcademicHandler_ListResultsIsNarrowed(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		username string
		want     []int
	}{
		{"admin", []int{1, 2}},
		{"teacher1", []int{1}},
		{"student2", []int{2}},
		{"parent1", []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			w := s.do(t, http.MethodGet, "/api/results", nil, withBearer(s.login(t, tt.username)))
			require.Equal(t, http.StatusOK, w.Code)

			var results []models.Result
			decodeData(t, w, &results)
			var ids []int
			for _, r := range results {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestAcademicHandler_ListAssignments(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/assignments", nil, withBearer(s.login(t, "parent2")))
	require.Equal(t, http.StatusOK, w.Code)
	var assignments []models.Assignment
	decodeData(t, w, &assignments)
	require.Len(t, assignments, 1)
	assert.Equal(t, "Fractions", assignments[0].Title)

	w = s.do(t, http.MethodGet, "/api/assignments", nil, withBearer(s.login(t, "teacher2")))
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &assignments)
	require.Len(t, assignments, 1)
	assert.Equal(t, "Essay", assignments[0].Title)
}

func TestAcademicHandler_UpdateResultOwnership(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "teacher1")

	w := s.do(t, http.MethodPut, "/api/results/1", gin.H{"score": 95}, withBearer(token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.Result
	decodeData(t, w, &updated)
	assert.Equal(t, 95, updated.Score)

	w = s.do(t, http.MethodPut, "/api/results/2", gin.H{"score": 10}, withBearer(token))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 85, s.academic.Results[1].Score)

	w = s.do(t, http.MethodPut, "/api/results/1", gin.H{"score": 101}, withBearer(token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/results/99", gin.H{"score": 50}, withBearer(token))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/api/results/1", gin.H{"score": 50}, withBearer(s.login(t, "student1")))
	assert.Equal(t, http.StatusForbidden, w.Code)

	var updates int
	for _, e := range s.audit.Entries() {
		if e.Action == models.AuditUpdate {
			updates++
			require.NotNil(t, e.Changes)
			assert.JSONEq(t, `{"from":70,"to":95}`, *e.Changes)
		}
	}
	assert.Equal(t, 1, updates)
}

func TestAcademicHandler_TeacherCannotDeleteResults(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodDelete, "/api/results/1", nil, withBearer(s.login(t, "teacher1")))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decodeEnvelope(t, w).Error.Code)
	require.Len(t, s.academic.Results, 2)

	w = s.do(t, http.MethodDelete, "/api/results/1", nil, withBearer(s.login(t, "admin")))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, s.academic.Results, 1)
	assert.Contains(t, s.audit.Actions(), models.AuditDelete)
}

func TestAcademicHandler_GetStudent(t *testing.T) {
	s := newTestServer(t)
	parent := s.login(t, "parent1")

	w := s.do(t, http.MethodGet, "/api/students/s-1", nil, withBearer(parent))
	require.Equal(t, http.StatusOK, w.Code)
	var student models.StudentRecord
	decodeData(t, w, &student)
	assert.Equal(t, "s-1", student.ID)

	w = s.do(t, http.MethodGet, "/api/students/s-2", nil, withBearer(parent))
	assert.Equal(t, http.StatusForbidden, w.Code, "another family's child")

	w = s.do(t, http.MethodGet, "/api/students/s-2", nil, withBearer(s.login(t, "student1")))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/students/s-2", nil, withBearer(s.login(t, "teacher1")))
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/students/missing", nil, withBearer(parent))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
