package service

import (
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/repository"
	"github.com/bigkaa/goartstore/data-storage/internal/storage/memstore"
)

func TestReconcileRunOnce_NoIssues(t *testing.T) {
	repo, _ := setupTestRepo(t, repository.KindResource, false)
	pushTest(t, repo, "a", "1")
	pushTest(t, repo, "b", "2")

	rs := NewReconcileService(repo, &sync.Mutex{}, nil, time.Hour, testLogger())
	result, skipped, err := rs.RunOnce()
	if err != nil {
		t.Fatalf("Ошибка reconciliation: %v", err)
	}
	if skipped {
		t.Fatal("reconciliation не должна быть пропущена")
	}
	if len(result.Issues) != 0 {
		t.Errorf("Issues: хотели 0, получили %v", result.Issues)
	}
	if result.PayloadsChecked != 2 || result.Summary.Ok != 2 {
		t.Errorf("PayloadsChecked=%d Ok=%d, хотели 2 и 2", result.PayloadsChecked, result.Summary.Ok)
	}
	if result.CompletedAt.Before(result.StartedAt) {
		t.Error("CompletedAt раньше StartedAt")
	}
}

func TestReconcileRunOnce_Issues(t *testing.T) {
	repo, s := setupTestRepo(t, repository.KindResource, false)
	pushTest(t, repo, "a", "1")
	missing := pushTest(t, repo, "b", "2")

	// payload без метаданных
	if err := s.PutBytes("wms/data/orphan", []byte("x"), true); err != nil {
		t.Fatal(err)
	}
	// метаданные без payload
	if err := s.Delete(missing.ResourcePath()); err != nil {
		t.Fatal(err)
	}
	// документы вне {base}/data не проверяются
	if err := s.PutBytes("wms/other.json", []byte("{}"), true); err != nil {
		t.Fatal(err)
	}

	rs := NewReconcileService(repo, &sync.Mutex{}, nil, time.Hour, testLogger())
	result, _, err := rs.RunOnce()
	if err != nil {
		t.Fatalf("Ошибка reconciliation: %v", err)
	}

	want := []ReconcileIssue{
		{Type: IssueOrphanedPayload, Path: "wms/data/orphan"},
		{Type: IssueMissingPayload, Path: missing.ResourcePath()},
	}
	if len(result.Issues) != len(want) {
		t.Fatalf("Issues: хотели %d, получили %v", len(want), result.Issues)
	}
	for i, w := range want {
		got := result.Issues[i]
		if got.Type != w.Type || got.Path != w.Path {
			t.Errorf("Issues[%d] = %s %s, хотели %s %s", i, got.Type, got.Path, w.Type, w.Path)
		}
	}
	if result.Summary.OrphanedPayloads != 1 || result.Summary.MissingPayloads != 1 {
		t.Errorf("Summary: %+v", result.Summary)
	}
	if result.Summary.Ok != 1 {
		t.Errorf("Summary.Ok: хотели 1, получили %d", result.Summary.Ok)
	}
}

func TestReconcileRunOnce_ArchiveHistory(t *testing.T) {
	repo := setupArchiveRepo(t)
	rs := NewReconcileService(repo, &sync.Mutex{}, nil, time.Hour, testLogger())

	result, _, err := rs.RunOnce()
	if err != nil {
		t.Fatalf("Ошибка reconciliation: %v", err)
	}
	// обе версии ресурса ссылаются на свои payload
	if len(result.Issues) != 0 || result.PayloadsChecked != 2 {
		t.Errorf("Issues=%v PayloadsChecked=%d", result.Issues, result.PayloadsChecked)
	}
}

func TestReconcileIsInProgress(t *testing.T) {
	repo, _ := setupTestRepo(t, repository.KindResource, false)
	rs := NewReconcileService(repo, &sync.Mutex{}, nil, time.Hour, testLogger())

	if rs.IsInProgress() {
		t.Error("IsInProgress до запуска должен быть false")
	}

	rs.mu.Lock()
	rs.inProcess = true
	rs.mu.Unlock()

	result, skipped, err := rs.RunOnce()
	if err != nil || !skipped || result != nil {
		t.Errorf("параллельный запуск: result=%v skipped=%v err=%v", result, skipped, err)
	}
}

// setupArchiveRepo создаёт архивный репозиторий с двумя версиями ресурса "a".
func setupArchiveRepo(t *testing.T) *repository.Repository {
	t.Helper()

	repo, err := repository.New(memstore.New(), "wms", repository.KindResource, repository.Options{
		Archive: true,
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatalf("Ошибка создания репозитория: %v", err)
	}
	for _, v := range []string{"v1.txt", "v2.txt"} {
		md := model.Metadata{model.FieldResourceID: "a", model.FieldResourceFile: v}
		if _, err := repo.Push([]byte(v), md); err != nil {
			t.Fatalf("Ошибка публикации %s: %v", v, err)
		}
	}
	return repo
}
