package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/database"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupService(t *testing.T) *Service {
	t.Helper()
	db, err := database.Init("sqlite://"+filepath.Join(t.TempDir(), "history.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	s := NewService(db)
	t.Cleanup(s.Close)
	return s
}

func finishedItem(t *testing.T, id, label, service string, ok bool) models.QueueItem {
	t.Helper()
	item, err := models.NewQueueItem(id, service, models.LocalFile{Name: label, Data: []byte{1}}, nil, time.Now())
	require.NoError(t, err)
	require.NoError(t, item.Transition(models.StatusUploading, time.Now()))
	if ok {
		require.NoError(t, item.Complete(models.NewResult(map[string]any{
			"summary":     "Lecture about " + label,
			"downloadUrl": "/download/" + label,
		}), time.Now()))
	} else {
		require.NoError(t, item.Fail("", time.Now()))
	}
	return item.Clone()
}

func TestRecord(t *testing.T) {
	t.Run("Should persist terminal items through the notifier hook", func(t *testing.T) {
		s := setupService(t)
		s.ItemUpdated("batch-1", finishedItem(t, "i1", "physics.pdf", "document-analysis", true))
		s.ItemUpdated("batch-1", finishedItem(t, "i2", "broken.pdf", "document-analysis", false))
		s.Flush()

		records, err := s.List(10)
		require.NoError(t, err)
		require.Len(t, records, 2)

		rec, err := s.Get("i1")
		require.NoError(t, err)
		assert.Equal(t, "completed", rec.Status)
		assert.Equal(t, "Lecture about physics.pdf", rec.Summary)
		assert.NotEmpty(t, rec.ID)

		res, err := rec.DecodeResult()
		require.NoError(t, err)
		media, ok := res.Artifact(models.ArtifactMedia)
		require.True(t, ok)
		assert.Equal(t, "/download/physics.pdf", media.URL)

		failed, err := s.Get("i2")
		require.NoError(t, err)
		assert.Equal(t, models.DefaultFailureMessage, failed.ErrorDetail)
	})

	t.Run("Should ignore non-terminal updates", func(t *testing.T) {
		s := setupService(t)
		item, err := models.NewQueueItem("p", "image-ocr", models.LocalFile{Name: "a.png", Data: []byte{1}}, nil, time.Now())
		require.NoError(t, err)
		s.ItemUpdated("batch-1", item.Clone())
		s.Flush()

		records, err := s.List(10)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("Should update an existing record instead of duplicating it", func(t *testing.T) {
		s := setupService(t)
		item := finishedItem(t, "i1", "a.png", "image-ocr", true)
		require.NoError(t, s.Record("batch-1", item))
		require.NoError(t, s.Record("batch-2", item))

		records, err := s.List(10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "batch-2", records[0].BatchID)
	})
}

func TestWriter(t *testing.T) {
	t.Run("Should not hold the caller while the database is slow", func(t *testing.T) {
		s := setupService(t)
		gate := make(chan struct{})
		require.NoError(t, s.db.Callback().Create().Before("gorm:create").Register("test:gate", func(*gorm.DB) {
			<-gate
		}))

		first := finishedItem(t, "i1", "a.png", "image-ocr", true)
		second := finishedItem(t, "i2", "b.png", "image-ocr", true)
		returned := make(chan struct{})
		go func() {
			s.ItemUpdated("batch-1", first)
			s.ItemUpdated("batch-1", second)
			close(returned)
		}()

		select {
		case <-returned:
		case <-time.After(time.Second):
			t.Fatal("ItemUpdated blocked on the database")
		}

		close(gate)
		s.Flush()
		records, err := s.List(10)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("Should write queued records on close and drop later ones", func(t *testing.T) {
		s := setupService(t)
		s.ItemUpdated("batch-1", finishedItem(t, "i1", "a.png", "image-ocr", true))
		s.Close()
		s.ItemUpdated("batch-1", finishedItem(t, "i2", "b.png", "image-ocr", true))
		s.Flush()

		records, err := s.List(10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "i1", records[0].ItemID)
	})
}

func TestSearch(t *testing.T) {
	s := setupService(t)
	s.ItemUpdated("b", finishedItem(t, "1", "Physics.pdf", "document-analysis", true))
	s.ItemUpdated("b", finishedItem(t, "2", "scan.png", "image-ocr", true))
	s.Flush()

	t.Run("Should match file names case-insensitively", func(t *testing.T) {
		records, err := s.Search("physics", 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "Physics.pdf", records[0].SourceLabel)
	})

	t.Run("Should match services", func(t *testing.T) {
		records, err := s.Search("ocr", 10)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("Should list everything for a blank query", func(t *testing.T) {
		records, err := s.Search("  ", 0)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})
}
