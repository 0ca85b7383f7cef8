package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/querymesh/querymesh/internal/models"
)

// OntologyHandler serves ontology mapping CRUD endpoints.
type OntologyHandler struct {
	repo OntologyRepository
	log  *logrus.Logger
}

// NewOntologyHandler creates an OntologyHandler with the given repository and logger.
func NewOntologyHandler(repo OntologyRepository, log *logrus.Logger) *OntologyHandler {
	return &OntologyHandler{repo: repo, log: log}
}

// List handles GET /api/v1/ontology.
func (h *OntologyHandler) List(c *gin.Context) {
	mappings, err := h.repo.ListMappings(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("listing ontology mappings")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, gin.H{"mappings": mappings})
}

// Put handles POST /api/v1/ontology.
func (h *OntologyHandler) Put(c *gin.Context) {
	var req models.PutOntologyMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")

		return
	}

	if err := req.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())

		return
	}

	mapping, err := h.repo.PutMapping(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSourceNotFound):
			respondError(c, http.StatusNotFound, ErrCodeNotFound, "mapped source not found")
		case errors.Is(err, models.ErrDuplicateKey):
			respondError(c, http.StatusConflict, ErrCodeConflict, "mapping already exists")
		default:
			h.log.WithError(err).Error("storing ontology mapping")
			respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
		}

		return
	}

	h.log.WithFields(logrus.Fields{"action": "ontology.put", "term": mapping.Term, "source_id": mapping.SourceID}).Info("audit")

	c.JSON(http.StatusCreated, mapping)
}

// Delete handles DELETE /api/v1/ontology/:id.
func (h *OntologyHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := validatePathID(id); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return
	}

	if err := h.repo.DeleteMapping(c.Request.Context(), id); err != nil {
		if errors.Is(err, models.ErrMappingNotFound) {
			respondError(c, http.StatusNotFound, ErrCodeNotFound, "mapping not found")

			return
		}

		h.log.WithError(err).Error("deleting ontology mapping")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	h.log.WithFields(logrus.Fields{"action": "ontology.delete", "mapping_id": id}).Info("audit")

	c.Status(http.StatusNoContent)
}
