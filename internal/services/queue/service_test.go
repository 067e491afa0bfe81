package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/services/progress"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu      sync.Mutex
	calls   []string
	respond func(ctx context.Context, label string) (transport.Outcome, error)
}

func (f *fakeTransport) record(label string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, label)
}

func (f *fakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) SubmitLocalFile(ctx context.Context, svc models.Service, file models.LocalFile, fields map[string]string) (transport.Outcome, error) {
	f.record(file.Name)
	return f.respond(ctx, file.Name)
}

func (f *fakeTransport) SubmitRemoteReference(ctx context.Context, svc models.Service, url string, fields map[string]string) (transport.Outcome, error) {
	f.record(url)
	return f.respond(ctx, url)
}

type pollingTransport struct {
	fakeTransport
	polls int
}

func (p *pollingTransport) JobStatus(ctx context.Context, jobID string) (models.ProgressEvent, error) {
	p.mu.Lock()
	p.polls++
	n := p.polls
	p.mu.Unlock()
	if n < 3 {
		return models.ParseProgressEvent([]byte(`{"status":"processing","percent":50}`))
	}
	return models.ParseProgressEvent([]byte(`{"status":"completed","result":{"downloadUrl":"/download/x.mp4"}}`))
}

type recordingNotifier struct {
	mu       sync.Mutex
	started  []string
	updates  []models.QueueItem
	finished [][]models.QueueItem
}

func (r *recordingNotifier) BatchStarted(batchID string, items []models.QueueItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, batchID)
}

func (r *recordingNotifier) ItemUpdated(batchID string, item models.QueueItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, item)
}

func (r *recordingNotifier) BatchCompleted(batchID string, results []models.QueueItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, results)
}

func (r *recordingNotifier) Updates() []models.QueueItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.QueueItem(nil), r.updates...)
}

func png(name string) models.LocalFile {
	return models.LocalFile{Name: name, MIMEType: "image/png", Data: []byte("png")}
}

func succeed(ctx context.Context, label string) (transport.Outcome, error) {
	return transport.Outcome{Result: models.NewResult(map[string]any{"originalFile": label})}, nil
}

func itemStatus(s *Service, id string) models.ItemStatus {
	for _, it := range s.Items() {
		if it.ID == id {
			return it.Status
		}
	}
	return ""
}

func TestEnqueueAndRemove(t *testing.T) {
	t.Run("Should reject empty sources", func(t *testing.T) {
		svc := NewService(&fakeTransport{respond: succeed}, nil, Options{})
		_, err := svc.Enqueue("image-ocr", models.LocalFile{Name: "a.png"}, nil)

		var verr *models.ValidationError
		assert.ErrorAs(t, err, &verr)
		assert.Empty(t, svc.Items())
	})

	t.Run("Should remove only the targeted pending item", func(t *testing.T) {
		svc := NewService(&fakeTransport{respond: succeed}, nil, Options{})
		a, _ := svc.Enqueue("image-ocr", png("a.png"), nil)
		b, _ := svc.Enqueue("image-ocr", png("b.png"), nil)
		c, _ := svc.Enqueue("image-ocr", png("c.png"), nil)

		assert.True(t, svc.Remove(b.ID))
		assert.False(t, svc.Remove(b.ID), "Should be a no-op the second time")
		assert.False(t, svc.Remove("unknown"))

		items := svc.Items()
		require.Len(t, items, 2)
		assert.Equal(t, a.ID, items[0].ID)
		assert.Equal(t, c.ID, items[1].ID)
	})
}

func TestSubmitAll(t *testing.T) {
	t.Run("Should reject an empty queue", func(t *testing.T) {
		svc := NewService(&fakeTransport{respond: succeed}, nil, Options{})
		_, err := svc.SubmitAll(context.Background())
		assert.ErrorIs(t, err, ErrQueueEmpty)
	})

	t.Run("Should finish every item in order and isolate failures", func(t *testing.T) {
		ft := &fakeTransport{respond: func(ctx context.Context, label string) (transport.Outcome, error) {
			if label == "c.png" {
				return transport.Outcome{}, models.NewProcessingFailed("", 0, errors.New("connection reset"))
			}
			return succeed(ctx, label)
		}}
		notifier := &recordingNotifier{}
		svc := NewService(ft, nil, Options{Notifier: notifier})
		for _, name := range []string{"a.png", "b.png", "c.png"} {
			_, err := svc.Enqueue("image-ocr", png(name), nil)
			require.NoError(t, err)
		}

		results, err := svc.SubmitAll(context.Background())
		require.NoError(t, err)

		require.Len(t, results, 3)
		assert.Equal(t, []string{"a.png", "b.png", "c.png"}, ft.Calls())
		assert.Equal(t, models.StatusCompleted, results[0].Status)
		assert.Equal(t, models.StatusCompleted, results[1].Status)
		assert.Equal(t, models.StatusError, results[2].Status)
		assert.Equal(t, "Processing failed", results[2].ErrorDetail)
		assert.Nil(t, results[2].Result)
		assert.Equal(t, "a.png", results[0].Label)

		assert.Empty(t, svc.Items(), "Should drain processed items")
		assert.False(t, svc.Running())
		rs := svc.Results()
		assert.True(t, rs.Done)
		assert.Len(t, rs.Items, 3)
		assert.Len(t, notifier.started, 1)
		assert.Len(t, notifier.finished, 1)
	})

	t.Run("Should fail items whose source the service rejects and continue", func(t *testing.T) {
		ft := &fakeTransport{respond: succeed}
		svc := NewService(ft, nil, Options{})
		_, _ = svc.Enqueue("image-ocr", models.LocalFile{Name: "clip.mp4", Data: []byte{1}}, nil)
		_, _ = svc.Enqueue("image-ocr", png("ok.png"), nil)

		results, err := svc.SubmitAll(context.Background())
		require.NoError(t, err)

		require.Len(t, results, 2)
		assert.Equal(t, models.StatusError, results[0].Status)
		assert.Contains(t, results[0].ErrorDetail, "does not accept .mp4")
		assert.Equal(t, models.StatusCompleted, results[1].Status)
		assert.Equal(t, []string{"ok.png"}, ft.Calls())
	})

	t.Run("Should apply progress while the upload is outstanding", func(t *testing.T) {
		router := progress.NewRouter()
		ft := &fakeTransport{respond: func(ctx context.Context, label string) (transport.Outcome, error) {
			p := 30.0
			router.Deliver(models.ProgressEvent{Percent: &p})
			return succeed(ctx, label)
		}}
		notifier := &recordingNotifier{}
		svc := NewService(ft, router, Options{Notifier: notifier})
		_, _ = svc.Enqueue("image-ocr", png("a.png"), nil)

		results, err := svc.SubmitAll(context.Background())
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, 100, results[0].ProgressPercent)

		seen := false
		for _, u := range notifier.Updates() {
			if u.Status == models.StatusUploading && u.ProgressPercent == 30 {
				seen = true
			}
		}
		assert.True(t, seen, "Should publish the intermediate percent")
	})

	t.Run("Should leave items enqueued during a batch for the next one", func(t *testing.T) {
		release := make(chan struct{})
		ft := &fakeTransport{respond: func(ctx context.Context, label string) (transport.Outcome, error) {
			if label == "a.png" {
				<-release
			}
			return succeed(ctx, label)
		}}
		svc := NewService(ft, nil, Options{})
		_, _ = svc.Enqueue("image-ocr", png("a.png"), nil)

		_, err := svc.Start(context.Background())
		require.NoError(t, err)

		late, _ := svc.Enqueue("image-ocr", png("late.png"), nil)
		_, err = svc.SubmitAll(context.Background())
		assert.ErrorIs(t, err, ErrBatchRunning)
		_, err = svc.Start(context.Background())
		assert.ErrorIs(t, err, ErrBatchRunning)

		close(release)
		<-svc.Done()

		items := svc.Items()
		require.Len(t, items, 1)
		assert.Equal(t, late.ID, items[0].ID)
		assert.Equal(t, models.StatusPending, items[0].Status)
		assert.Equal(t, []string{"a.png"}, ft.Calls())
	})

	t.Run("Should skip a pending item removed while the batch runs", func(t *testing.T) {
		release := make(chan struct{})
		ft := &fakeTransport{respond: func(ctx context.Context, label string) (transport.Outcome, error) {
			if label == "a.png" {
				<-release
			}
			return succeed(ctx, label)
		}}
		svc := NewService(ft, nil, Options{})
		a, _ := svc.Enqueue("image-ocr", png("a.png"), nil)
		b, _ := svc.Enqueue("image-ocr", png("b.png"), nil)
		c, _ := svc.Enqueue("image-ocr", png("c.png"), nil)

		_, err := svc.Start(context.Background())
		require.NoError(t, err)
		require.Eventually(t, func() bool { return itemStatus(svc, a.ID) == models.StatusUploading }, time.Second, 5*time.Millisecond)

		assert.False(t, svc.Remove(a.ID), "Should not remove the in-flight item")
		assert.True(t, svc.Remove(b.ID))

		close(release)
		<-svc.Done()

		assert.Equal(t, []string{"a.png", "c.png"}, ft.Calls())
		rs := svc.Results()
		require.Len(t, rs.Items, 2)
		assert.Equal(t, a.ID, rs.Items[0].ID)
		assert.Equal(t, c.ID, rs.Items[1].ID)
		for _, it := range rs.Items {
			assert.NotEqual(t, b.ID, it.ID)
			assert.Equal(t, models.StatusCompleted, it.Status)
		}
		assert.Empty(t, svc.Items())
	})
}

func TestBackgroundJobs(t *testing.T) {
	link := models.RemoteReference{URL: "https://youtu.be/abc"}
	async := func(ctx context.Context, label string) (transport.Outcome, error) {
		return transport.Outcome{JobID: "abc"}, nil
	}

	t.Run("Should track a job to completion through progress events", func(t *testing.T) {
		router := progress.NewRouter()
		svc := NewService(&fakeTransport{respond: async}, router, Options{})
		item, _ := svc.Enqueue("subtitle-ro", link, nil)

		type outcome struct {
			results []models.QueueItem
			err     error
		}
		done := make(chan outcome, 1)
		go func() {
			r, err := svc.SubmitAll(context.Background())
			done <- outcome{r, err}
		}()

		require.Eventually(t, func() bool { return itemStatus(svc, item.ID) == models.StatusProcessing }, time.Second, 5*time.Millisecond)

		ev, _ := models.ParseProgressEvent([]byte(`{"job_id":"abc","percent":40}`))
		router.Deliver(ev)
		require.Eventually(t, func() bool {
			items := svc.Items()
			return len(items) == 1 && items[0].ProgressPercent == 40
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, models.StatusProcessing, itemStatus(svc, item.ID))

		ev, _ = models.ParseProgressEvent([]byte(`{"percent":100,"stage":"done"}`))
		router.Deliver(ev)

		select {
		case out := <-done:
			require.NoError(t, out.err)
			require.Len(t, out.results, 1)
			assert.Equal(t, models.StatusCompleted, out.results[0].Status)
			assert.Equal(t, 100, out.results[0].ProgressPercent)
			assert.Equal(t, "abc", out.results[0].JobID)
			assert.NotNil(t, out.results[0].Result)
		case <-time.After(2 * time.Second):
			t.Fatal("batch did not finish")
		}
	})

	t.Run("Should fail a job on an error event", func(t *testing.T) {
		router := progress.NewRouter()
		svc := NewService(&fakeTransport{respond: async}, router, Options{})
		item, _ := svc.Enqueue("subtitle-ro", link, nil)

		go func() {
			for itemStatus(svc, item.ID) != models.StatusProcessing {
				time.Sleep(5 * time.Millisecond)
			}
			ev, _ := models.ParseProgressEvent([]byte(`{"job_id":"abc","status":"error","error":"whisper crashed"}`))
			router.Deliver(ev)
		}()

		results, err := svc.SubmitAll(context.Background())
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, models.StatusError, results[0].Status)
		assert.Equal(t, "whisper crashed", results[0].ErrorDetail)
	})

	t.Run("Should stay processing when the stream goes quiet", func(t *testing.T) {
		svc := NewService(&fakeTransport{respond: async}, nil, Options{})
		item, _ := svc.Enqueue("subtitle-ro", link, nil)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan []models.QueueItem, 1)
		go func() {
			r, _ := svc.SubmitAll(ctx)
			done <- r
		}()

		require.Eventually(t, func() bool { return itemStatus(svc, item.ID) == models.StatusProcessing }, time.Second, 5*time.Millisecond)
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, models.StatusProcessing, itemStatus(svc, item.ID))

		cancel()
		results := <-done
		assert.Empty(t, results)
		assert.Equal(t, models.StatusProcessing, itemStatus(svc, item.ID), "Should keep the in-flight item as is")
		assert.False(t, svc.Running())
	})

	t.Run("Should fail a stalled job when a stall timeout is set", func(t *testing.T) {
		svc := NewService(&fakeTransport{respond: async}, nil, Options{StallTimeout: 30 * time.Millisecond})
		_, _ = svc.Enqueue("subtitle-ro", link, nil)

		results, err := svc.SubmitAll(context.Background())
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, models.StatusError, results[0].Status)
		assert.Contains(t, results[0].ErrorDetail, "job stalled")
	})

	t.Run("Should complete a job by polling", func(t *testing.T) {
		pt := &pollingTransport{fakeTransport: fakeTransport{respond: async}}
		svc := NewService(pt, nil, Options{PollInterval: 5 * time.Millisecond})
		_, _ = svc.Enqueue("subtitle-ro", link, nil)

		results, err := svc.SubmitAll(context.Background())
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, models.StatusCompleted, results[0].Status)
		media, ok := results[0].Result.Artifact(models.ArtifactMedia)
		require.True(t, ok)
		assert.Equal(t, "/download/x.mp4", media.URL)
	})

	t.Run("Should not let a finished job's late event reach the next item", func(t *testing.T) {
		router := progress.NewRouter()
		release := make(chan struct{})
		ft := &fakeTransport{respond: func(ctx context.Context, label string) (transport.Outcome, error) {
			if label == "https://youtu.be/b" {
				<-release
				return transport.Outcome{JobID: "job-b"}, nil
			}
			return transport.Outcome{JobID: "job-a"}, nil
		}}
		svc := NewService(ft, router, Options{})
		a, _ := svc.Enqueue("subtitle-ro", models.RemoteReference{URL: "https://youtu.be/a"}, nil)
		b, _ := svc.Enqueue("subtitle-ro", models.RemoteReference{URL: "https://youtu.be/b"}, nil)

		_, err := svc.Start(context.Background())
		require.NoError(t, err)
		require.Eventually(t, func() bool { return itemStatus(svc, a.ID) == models.StatusProcessing }, time.Second, 5*time.Millisecond)

		final, _ := models.ParseProgressEvent([]byte(`{"job_id":"job-a","percent":100,"stage":"done"}`))
		router.Deliver(final)
		require.Eventually(t, func() bool { return router.ActiveItem() == b.ID }, time.Second, 5*time.Millisecond)

		assert.False(t, router.Deliver(final), "Should drop the duplicate of a finished job")

		close(release)
		require.Eventually(t, func() bool { return itemStatus(svc, b.ID) == models.StatusProcessing }, time.Second, 5*time.Millisecond)
		items := svc.Items()
		require.Len(t, items, 2)
		assert.Less(t, items[1].ProgressPercent, 100)
		assert.NotEqual(t, "done", items[1].Stage)

		ev, _ := models.ParseProgressEvent([]byte(`{"job_id":"job-b","percent":100,"stage":"done"}`))
		router.Deliver(ev)
		<-svc.Done()

		rs := svc.Results()
		require.Len(t, rs.Items, 2)
		assert.Equal(t, "job-a", rs.Items[0].JobID)
		assert.Equal(t, "job-b", rs.Items[1].JobID)
		assert.Equal(t, models.StatusCompleted, rs.Items[1].Status)
	})
}

func TestNonNumericPercent(t *testing.T) {
	router := progress.NewRouter()
	release := make(chan struct{})
	svc := NewService(&fakeTransport{respond: func(ctx context.Context, label string) (transport.Outcome, error) {
		<-release
		return succeed(ctx, label)
	}}, router, Options{})
	item, _ := svc.Enqueue("image-ocr", png("a.png"), nil)

	_, err := svc.Start(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return router.ActiveItem() == item.ID }, time.Second, 5*time.Millisecond)

	ev, _ := models.ParseProgressEvent([]byte(`{"percent":40}`))
	router.Deliver(ev)
	ev, _ = models.ParseProgressEvent([]byte(`{"percent":"abc","stage":"x"}`))
	router.Deliver(ev)

	require.Eventually(t, func() bool {
		items := svc.Items()
		return len(items) == 1 && items[0].Stage == "x"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 40, svc.Items()[0].ProgressPercent)

	close(release)
	<-svc.Done()
}

func TestEventBus(t *testing.T) {
	t.Run("Should sequence and trim events", func(t *testing.T) {
		bus := NewEventBus(2)
		bus.BatchStarted("b", nil)
		bus.ItemUpdated("b", models.QueueItem{ID: "1"})
		bus.BatchCompleted("b", nil)

		events := bus.Since(0)
		require.Len(t, events, 2)
		assert.Equal(t, int64(2), events[0].Seq)
		assert.Equal(t, EventItemUpdated, events[0].Type)
		assert.Equal(t, "1", events[0].Item.ID)
		assert.Len(t, bus.Since(2), 1)
		assert.Equal(t, int64(3), bus.LastSeq())
	})

	t.Run("Should wake subscribers", func(t *testing.T) {
		bus := NewEventBus(0)
		wake, cancel := bus.Subscribe()
		defer cancel()

		bus.ItemUpdated("b", models.QueueItem{ID: "1"})
		select {
		case <-wake:
		case <-time.After(time.Second):
			t.Fatal("subscriber not woken")
		}
	})
}

func TestAggregator(t *testing.T) {
	a := NewAggregator()
	a.Reset("batch-1")

	assert.False(t, a.Append(models.QueueItem{ID: "p", Status: models.StatusProcessing}))
	assert.True(t, a.Append(models.QueueItem{ID: "1", Status: models.StatusCompleted}))
	assert.True(t, a.Append(models.QueueItem{ID: "2", Status: models.StatusError}))
	assert.False(t, a.Done())

	out := a.Complete()
	assert.True(t, a.Done())
	require.Len(t, out, 2)
	completed, failed := a.Counts()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, failed)

	a.Reset("batch-2")
	assert.Empty(t, a.Results().Items)
	assert.Equal(t, "batch-2", a.Results().BatchID)
}
