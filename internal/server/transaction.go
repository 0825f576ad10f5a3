package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	transactiondomain "github.com/plinio-cardoso/financeiro/internal/transaction/domain"
	"github.com/plinio-cardoso/financeiro/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type createTransactionRequest struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Amount      decimal.Decimal   `json:"amount"`
	Direction   string            `json:"direction"`
	DueDate     string            `json:"due_date"`
	Metadata    datatypes.JSONMap `json:"metadata"`
}

type updateTransactionRequest struct {
	Title       *string            `json:"title"`
	Description *string            `json:"description"`
	Amount      *decimal.Decimal   `json:"amount"`
	Direction   *string            `json:"direction"`
	DueDate     *string            `json:"due_date"`
	Metadata    *datatypes.JSONMap `json:"metadata"`
}

func (s *Server) CreateTransaction(c *gin.Context) {
	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		AbortWithError(c, newValidationError("due_date", "invalid_due_date", "invalid due_date"))
		return
	}

	resp, err := s.transactionSvc.Create(c.Request.Context(), transactiondomain.CreateTransactionRequest{
		UserID:      s.userID(c),
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Amount:      req.Amount,
		Direction:   transactiondomain.Direction(strings.ToUpper(req.Direction)),
		DueDate:     dueDate,
		Metadata:    req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListTransactions(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status  string `form:"status"`
		RuleID  string `form:"rule_id"`
		DueFrom string `form:"due_from"`
		DueTo   string `form:"due_to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := transactiondomain.ListTransactionsRequest{
		UserID:    s.userID(c),
		Status:    transactiondomain.Status(strings.ToUpper(query.Status)),
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
	}
	if query.RuleID != "" {
		ruleID, err := snowflake.ParseString(query.RuleID)
		if err != nil {
			AbortWithError(c, newValidationError("rule_id", "invalid_rule_id", "invalid rule_id"))
			return
		}
		req.RuleID = &ruleID
	}
	if query.DueFrom != "" {
		from, err := parseDate(query.DueFrom)
		if err != nil {
			AbortWithError(c, newValidationError("due_from", "invalid_due_from", "invalid due_from"))
			return
		}
		req.DueFrom = &from
	}
	if query.DueTo != "" {
		to, err := parseDate(query.DueTo)
		if err != nil {
			AbortWithError(c, newValidationError("due_to", "invalid_due_to", "invalid due_to"))
			return
		}
		req.DueTo = &to
	}

	resp, err := s.transactionSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTransaction(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.transactionSvc.Get(c.Request.Context(), s.userID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateTransaction(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	update := transactiondomain.UpdateTransactionRequest{
		UserID:      s.userID(c),
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
		Metadata:    req.Metadata,
	}
	if req.Direction != nil {
		direction := transactiondomain.Direction(strings.ToUpper(*req.Direction))
		update.Direction = &direction
	}
	if req.DueDate != nil {
		dueDate, err := parseDate(*req.DueDate)
		if err != nil {
			AbortWithError(c, newValidationError("due_date", "invalid_due_date", "invalid due_date"))
			return
		}
		update.DueDate = &dueDate
	}

	resp, err := s.transactionSvc.Update(c.Request.Context(), update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteTransaction(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.transactionSvc.Delete(c.Request.Context(), s.userID(c), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

func (s *Server) PayTransaction(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		PaidAt string `json:"paid_at"`
	}
	_ = c.ShouldBindJSON(&req)

	var paidAt time.Time
	if req.PaidAt != "" {
		paidAt, err = parseDate(req.PaidAt)
		if err != nil {
			AbortWithError(c, newValidationError("paid_at", "invalid_paid_at", "invalid paid_at"))
			return
		}
	}

	resp, err := s.transactionSvc.Pay(c.Request.Context(), s.userID(c), id, paidAt)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UnpayTransaction(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.transactionSvc.Unpay(c.Request.Context(), s.userID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func parseIDParam(c *gin.Context) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		return 0, ErrNotFound
	}
	return id, nil
}

// parseDate accepts either a plain date or a full RFC3339 timestamp.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
