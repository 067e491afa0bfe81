package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/services/queue"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const maxUploadSize = 2 << 30

type enqueueURLRequest struct {
	Service string            `json:"service" binding:"required"`
	URL     string            `json:"url" binding:"required"`
	Fields  map[string]string `json:"fields"`
}

func (s *Server) getHealth(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if s.deps.Health != nil {
		st := s.deps.Health.Status()
		resp["backend"] = st.Label()
		resp["last_check"] = st.LastCheck
	}
	if s.deps.Stream != nil {
		resp["stream_connected"] = s.deps.Stream.StreamConnected()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listServices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"services": models.Services})
}

func (s *Server) getQueue(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Queue.Snapshot())
}

func (s *Server) enqueueFile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	svc, err := models.LookupService(c.PostForm("service"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload"})
		return
	}

	file := models.NewLocalFile(header.Filename, data)
	if err := svc.ValidateSource(file); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fields := make(map[string]string)
	if form := c.Request.MultipartForm; form != nil {
		for k, v := range form.Value {
			if k != "service" && len(v) > 0 {
				fields[k] = v[0]
			}
		}
	}

	item, err := s.deps.Queue.Enqueue(svc.Key, file, fields)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (s *Server) enqueueURL(c *gin.Context) {
	var req enqueueURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "service and url are required"})
		return
	}

	svc, err := models.LookupService(req.Service)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ref, err := models.NewRemoteReference(req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := svc.ValidateSource(ref); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := s.deps.Queue.Enqueue(svc.Key, ref, req.Fields)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (s *Server) removeItem(c *gin.Context) {
	removed := s.deps.Queue.Remove(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) submit(c *gin.Context) {
	batchID, err := s.deps.Queue.Start(s.ctx)
	switch {
	case errors.Is(err, queue.ErrBatchRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, queue.ErrQueueEmpty):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		log.WithError(err).Error("Failed to start batch")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusAccepted, gin.H{"batch_id": batchID})
	}
}

func (s *Server) reconnectStream(c *gin.Context) {
	if s.deps.Stream == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "progress stream not available"})
		return
	}
	if err := s.deps.Stream.ReconnectStream(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"connected": s.deps.Stream.StreamConnected()})
}

func (s *Server) getResults(c *gin.Context) {
	rs := s.deps.Queue.Results()
	downloads := make(map[string][]models.Artifact)
	for _, it := range rs.Items {
		if it.Result == nil {
			continue
		}
		for _, a := range it.Result.Artifacts {
			downloads[it.ID] = append(downloads[it.ID], models.Artifact{Kind: a.Kind, URL: models.AbsoluteURL(s.deps.BaseURL, a.URL)})
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"batch_id":  rs.BatchID,
		"done":      rs.Done,
		"items":     rs.Items,
		"downloads": downloads,
	})
}

func (s *Server) getHistory(c *gin.Context) {
	if s.deps.History == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is not enabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	var (
		records []models.ItemRecord
		err     error
	)
	if q := c.Query("q"); q != "" {
		records, err = s.deps.History.Search(q, limit)
	} else {
		records, err = s.deps.History.List(limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": records})
}
