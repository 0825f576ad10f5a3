package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	recurrencedomain "github.com/plinio-cardoso/financeiro/internal/recurrence/domain"
	transactiondomain "github.com/plinio-cardoso/financeiro/internal/transaction/domain"
	"github.com/plinio-cardoso/financeiro/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type createRecurrenceRequest struct {
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Amount          decimal.Decimal   `json:"amount"`
	Direction       string            `json:"direction"`
	Frequency       string            `json:"frequency"`
	Interval        int               `json:"interval"`
	StartDate       string            `json:"start_date"`
	EndDate         string            `json:"end_date"`
	OccurrenceLimit int               `json:"occurrence_limit"`
	Metadata        datatypes.JSONMap `json:"metadata"`
}

type updateRecurrenceRequest struct {
	Title           *string            `json:"title"`
	Description     *string            `json:"description"`
	Amount          *decimal.Decimal   `json:"amount"`
	Direction       *string            `json:"direction"`
	Frequency       *string            `json:"frequency"`
	Interval        *int               `json:"interval"`
	StartDate       *string            `json:"start_date"`
	EndDate         *string            `json:"end_date"`
	ClearEndDate    bool               `json:"clear_end_date"`
	OccurrenceLimit *int               `json:"occurrence_limit"`
	Metadata        *datatypes.JSONMap `json:"metadata"`
}

func (s *Server) CreateRecurrence(c *gin.Context) {
	var req createRecurrenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	startDate, err := parseDate(req.StartDate)
	if err != nil {
		AbortWithError(c, newValidationError("start_date", "invalid_start_date", "invalid start_date"))
		return
	}

	create := recurrencedomain.CreateRuleRequest{
		UserID:          s.userID(c),
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		Amount:          req.Amount,
		Direction:       transactiondomain.Direction(strings.ToUpper(req.Direction)),
		Frequency:       recurrencedomain.Frequency(strings.ToUpper(req.Frequency)),
		Interval:        req.Interval,
		StartDate:       startDate,
		OccurrenceLimit: req.OccurrenceLimit,
		Metadata:        req.Metadata,
	}
	if req.EndDate != "" {
		endDate, err := parseDate(req.EndDate)
		if err != nil {
			AbortWithError(c, newValidationError("end_date", "invalid_end_date", "invalid end_date"))
			return
		}
		create.EndDate = &endDate
	}

	resp, err := s.recurrenceSvc.Create(c.Request.Context(), create)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListRecurrences(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Active bool `form:"active"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.recurrenceSvc.List(c.Request.Context(), recurrencedomain.ListRulesRequest{
		UserID:     s.userID(c),
		ActiveOnly: query.Active,
		PageToken:  query.PageToken,
		PageSize:   query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetRecurrence(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.recurrenceSvc.Get(c.Request.Context(), s.userID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateRecurrence(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	scope, err := recurrencedomain.ParsePropagationScope(c.Query("propagation_scope"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateRecurrenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	update := recurrencedomain.UpdateRuleRequest{
		UserID:           s.userID(c),
		ID:               id,
		Title:            req.Title,
		Description:      req.Description,
		Amount:           req.Amount,
		Interval:         req.Interval,
		ClearEndDate:     req.ClearEndDate,
		OccurrenceLimit:  req.OccurrenceLimit,
		Metadata:         req.Metadata,
		PropagationScope: scope,
	}
	if req.Direction != nil {
		direction := transactiondomain.Direction(strings.ToUpper(*req.Direction))
		update.Direction = &direction
	}
	if req.Frequency != nil {
		frequency := recurrencedomain.Frequency(strings.ToUpper(*req.Frequency))
		update.Frequency = &frequency
	}
	if req.StartDate != nil {
		startDate, err := parseDate(*req.StartDate)
		if err != nil {
			AbortWithError(c, newValidationError("start_date", "invalid_start_date", "invalid start_date"))
			return
		}
		update.StartDate = &startDate
	}
	if req.EndDate != nil {
		endDate, err := parseDate(*req.EndDate)
		if err != nil {
			AbortWithError(c, newValidationError("end_date", "invalid_end_date", "invalid end_date"))
			return
		}
		update.EndDate = &endDate
	}

	resp, err := s.recurrenceSvc.Update(c.Request.Context(), update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteRecurrence(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	mode, err := recurrencedomain.ParseDeletionMode(c.Query("mode"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.recurrenceSvc.Delete(c.Request.Context(), recurrencedomain.DeleteRuleRequest{
		UserID: s.userID(c),
		ID:     id,
		Mode:   mode,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ActivateRecurrence(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.recurrenceSvc.Activate(c.Request.Context(), s.userID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivateRecurrence(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.recurrenceSvc.Deactivate(c.Request.Context(), s.userID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GenerateAllRecurrences runs the engine over every rule the user
// owns, same as a scheduler tick but on demand.
func (s *Server) GenerateAllRecurrences(c *gin.Context) {
	var req struct {
		HorizonDays int  `json:"horizon_days"`
		Force       bool `json:"force"`
	}
	_ = c.ShouldBindJSON(&req)

	resp, err := s.recurrenceSvc.Generate(c.Request.Context(), recurrencedomain.GenerateRequest{
		UserID:      s.userID(c),
		HorizonDays: req.HorizonDays,
		Force:       req.Force,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GenerateRecurrence(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		HorizonDays int  `json:"horizon_days"`
		Force       bool `json:"force"`
	}
	_ = c.ShouldBindJSON(&req)

	resp, err := s.recurrenceSvc.Generate(c.Request.Context(), recurrencedomain.GenerateRequest{
		UserID:      s.userID(c),
		RuleID:      &id,
		HorizonDays: req.HorizonDays,
		Force:       req.Force,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
