package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/querymesh/querymesh/internal/models"
	"github.com/querymesh/querymesh/internal/plan"
)

// QueryHandler serves classification and plan endpoints.
type QueryHandler struct {
	classifier QuestionClassifier
	builder    PlanBuilder
	optimizer  plan.Optimizer
	schemas    SchemaRepository
	log        *logrus.Logger
}

// NewQueryHandler creates a QueryHandler with the given dependencies.
func NewQueryHandler(classifier QuestionClassifier, builder PlanBuilder, optimizer plan.Optimizer, schemas SchemaRepository, log *logrus.Logger) *QueryHandler {
	return &QueryHandler{
		classifier: classifier,
		builder:    builder,
		optimizer:  optimizer,
		schemas:    schemas,
		log:        log,
	}
}

// Classify handles POST /api/v1/classify. An empty selection is a
// valid 200 response; the caller decides how to proceed.
func (h *QueryHandler) Classify(c *gin.Context) {
	var req models.ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")

		return
	}

	if err := req.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())

		return
	}

	result, err := h.classifier.Classify(c.Request.Context(), req.Question)
	if err != nil {
		h.log.WithError(err).Error("classifying question")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, result)
}

// Plan handles POST /api/v1/plan: classify, build, optimize. When the
// classification selects no sources the response carries the empty
// classification and a null plan rather than an error.
func (h *QueryHandler) Plan(c *gin.Context) {
	var req models.ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")

		return
	}

	if err := req.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())

		return
	}

	result, err := h.classifier.Classify(c.Request.Context(), req.Question)
	if err != nil {
		h.log.WithError(err).Error("classifying question for plan")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	if result.Empty() {
		c.JSON(http.StatusOK, gin.H{"classification": result, "plan": nil})

		return
	}

	built, err := h.builder.Build(result, req.Question)
	if err != nil {
		if errors.Is(err, models.ErrPlanInvalid) {
			respondError(c, http.StatusUnprocessableEntity, ErrCodePlanInvalid, err.Error())

			return
		}

		h.log.WithError(err).Error("building plan")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	optimized, err := h.optimizer.Optimize(c.Request.Context(), built, h.collectStats(c, result))
	if err != nil {
		// Optimization is best-effort; keep the valid built plan.
		h.log.WithError(err).Warn("plan optimization failed, returning unoptimized plan")
		optimized = built
	}

	c.JSON(http.StatusOK, gin.H{"classification": result, "plan": optimized})
}

// collectStats gathers row estimates for the selected sources from
// their current schemas. Missing estimates are simply absent.
func (h *QueryHandler) collectStats(c *gin.Context, result *models.ClassificationResult) *plan.Stats {
	stats := &plan.Stats{RowEstimates: make(map[string]int64)}

	for _, match := range result.Selected {
		version, err := h.schemas.GetCurrentSchema(c.Request.Context(), match.SourceID)
		if err != nil {
			continue
		}

		var largest int64
		for _, entity := range version.Document.Entities {
			if entity.CountEstimate > largest {
				largest = entity.CountEstimate
			}
		}

		stats.RowEstimates[match.SourceID] = largest
	}

	return stats
}
