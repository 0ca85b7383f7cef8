package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/querymesh/querymesh/internal/models"
)

// SourceHandler serves data source and schema version endpoints.
type SourceHandler struct {
	sources SourceRepository
	schemas SchemaRepository
	watch   WatchController
	log     *logrus.Logger
}

// NewSourceHandler creates a SourceHandler with the given dependencies.
func NewSourceHandler(sources SourceRepository, schemas SchemaRepository, watch WatchController, log *logrus.Logger) *SourceHandler {
	return &SourceHandler{sources: sources, schemas: schemas, watch: watch, log: log}
}

// List handles GET /api/v1/sources.
func (h *SourceHandler) List(c *gin.Context) {
	filter := models.SourceFilter{Kind: models.SourceKind(c.Query("kind"))}
	if filter.Kind != "" && !filter.Kind.Valid() {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "unknown source kind")

		return
	}

	sources, err := h.sources.ListSources(c.Request.Context(), filter)
	if err != nil {
		h.log.WithError(err).Error("listing sources")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, gin.H{"sources": sources})
}

// Register handles POST /api/v1/sources. The new source immediately
// gets a watcher, which runs its first introspection pass.
func (h *SourceHandler) Register(c *gin.Context) {
	var req models.RegisterSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")

		return
	}

	if err := req.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())

		return
	}

	source, err := h.sources.RegisterSource(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, models.ErrDuplicateKey) {
			respondError(c, http.StatusConflict, ErrCodeConflict, "source with this name already exists")

			return
		}

		h.log.WithError(err).Error("registering source")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	if err := h.watch.AddSource(source); err != nil {
		h.log.WithError(err).WithField("source_id", source.ID).Error("starting watcher for new source")
	}

	h.log.WithFields(logrus.Fields{"action": "source.register", "source_id": source.ID, "kind": source.Kind}).Info("audit")

	c.JSON(http.StatusCreated, source)
}

// Get handles GET /api/v1/sources/:id.
func (h *SourceHandler) Get(c *gin.Context) {
	sourceID := c.Param("id")
	if err := validatePathID(sourceID); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return
	}

	source, err := h.sources.GetSource(c.Request.Context(), sourceID)
	if err != nil {
		if errors.Is(err, models.ErrSourceNotFound) {
			respondError(c, http.StatusNotFound, ErrCodeNotFound, "source not found")

			return
		}

		h.log.WithError(err).Error("getting source")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, source)
}

// Deregister handles DELETE /api/v1/sources/:id. The watcher is
// stopped first so it cannot write versions for a vanished source.
func (h *SourceHandler) Deregister(c *gin.Context) {
	sourceID := c.Param("id")
	if err := validatePathID(sourceID); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return
	}

	h.watch.RemoveSource(c.Request.Context(), sourceID)

	if err := h.sources.DeregisterSource(c.Request.Context(), sourceID); err != nil {
		if errors.Is(err, models.ErrSourceNotFound) {
			respondError(c, http.StatusNotFound, ErrCodeNotFound, "source not found")

			return
		}

		h.log.WithError(err).Error("deregistering source")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	h.log.WithFields(logrus.Fields{"action": "source.deregister", "source_id": sourceID}).Info("audit")

	c.Status(http.StatusNoContent)
}

// ForceCheck handles POST /api/v1/sources/:id/check. Force bypasses
// the fingerprint comparison and always records a new version.
func (h *SourceHandler) ForceCheck(c *gin.Context) {
	sourceID := c.Param("id")
	if err := validatePathID(sourceID); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return
	}

	if err := h.watch.ForceCheck(c.Request.Context(), sourceID); err != nil {
		if errors.Is(err, models.ErrSourceNotFound) {
			respondError(c, http.StatusNotFound, ErrCodeNotFound, "source not found")

			return
		}

		h.log.WithError(err).WithField("source_id", sourceID).Error("forced check failed")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "forced check failed")

		return
	}

	version, err := h.schemas.GetCurrentSchema(c.Request.Context(), sourceID)
	if err != nil {
		h.log.WithError(err).WithField("source_id", sourceID).Warn("reading version after forced check")
		c.JSON(http.StatusOK, gin.H{"status": "checked"})

		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "checked", "version": version})
}

// ForceCheckAll handles POST /api/v1/sources/check.
func (h *SourceHandler) ForceCheckAll(c *gin.Context) {
	if err := h.watch.ForceCheckAll(c.Request.Context()); err != nil {
		h.log.WithError(err).Warn("forced check reported failures")
		c.JSON(http.StatusOK, gin.H{"status": "partial", "error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "checked"})
}

// CurrentSchema handles GET /api/v1/sources/:id/schema.
func (h *SourceHandler) CurrentSchema(c *gin.Context) {
	sourceID := c.Param("id")
	if err := validatePathID(sourceID); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return
	}

	version, err := h.schemas.GetCurrentSchema(c.Request.Context(), sourceID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSourceNotFound):
			respondError(c, http.StatusNotFound, ErrCodeNotFound, "source not found")
		case errors.Is(err, models.ErrVersionNotFound):
			respondError(c, http.StatusNotFound, ErrCodeNotFound, "source has not been introspected yet")
		default:
			h.log.WithError(err).Error("reading current schema")
			respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
		}

		return
	}

	c.JSON(http.StatusOK, version)
}

// Versions handles GET /api/v1/sources/:id/versions.
func (h *SourceHandler) Versions(c *gin.Context) {
	sourceID := c.Param("id")
	if err := validatePathID(sourceID); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return
	}

	limit := parseLimit(c.DefaultQuery("limit", "50"), 50)

	versions, err := h.schemas.ListVersions(c.Request.Context(), sourceID, limit)
	if err != nil {
		if errors.Is(err, models.ErrSourceNotFound) {
			respondError(c, http.StatusNotFound, ErrCodeNotFound, "source not found")

			return
		}

		h.log.WithError(err).Error("listing schema versions")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

// Watchers handles GET /api/v1/watchers.
func (h *SourceHandler) Watchers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"watchers": h.watch.Status()})
}
