package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mail-archivist/internal/model"
	"mail-archivist/internal/rules"
)

type RuleHandler struct {
	store  *rules.Store
	logger *zap.Logger
}

func NewRuleHandler(store *rules.Store, logger *zap.Logger) *RuleHandler {
	return &RuleHandler{store: store, logger: logger}
}

// ruleRequest also accepts the older {sender, category, keywords} shape.
type ruleRequest struct {
	RuleType string   `json:"rule_type"`
	Sender   string   `json:"sender"`
	Keyword  string   `json:"keyword"`
	Keywords []string `json:"keywords"`
	Category string   `json:"category"`
}

func (r ruleRequest) toRule() (model.Rule, error) {
	keyword := strings.TrimSpace(r.Keyword)
	var extra []string
	for _, k := range r.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			extra = append(extra, k)
		}
	}
	if keyword == "" && len(extra) > 0 {
		keyword, extra = extra[0], extra[1:]
	}
	if len(extra) > 0 {
		return model.Rule{}, errors.New("only one keyword per rule is supported")
	}

	ruleType := model.RuleType(strings.TrimSpace(r.RuleType))
	if ruleType == "" {
		switch {
		case strings.TrimSpace(r.Sender) != "":
			ruleType = model.RuleTypeSender
		case keyword != "":
			ruleType = model.RuleTypeSubject
		}
	}
	return model.Rule{
		Type:     ruleType,
		Sender:   r.Sender,
		Keyword:  keyword,
		Category: r.Category,
	}, nil
}

type ruleResponse struct {
	Key string `json:"key"`
	model.Rule
}

func toRuleResponse(rule model.Rule) ruleResponse {
	return ruleResponse{Key: rule.Key(), Rule: rule}
}

// List handles GET /api/rules
func (h *RuleHandler) List(c *gin.Context) {
	list := h.store.List()
	out := make([]ruleResponse, len(list))
	for i, r := range list {
		out[i] = toRuleResponse(r)
	}
	c.JSON(http.StatusOK, out)
}

// Create handles POST /api/rules
func (h *RuleHandler) Create(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	rule, err := req.toRule()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.store.Add(c.Request.Context(), rule)
	var invalid *rules.ValidationError
	var conflict *rules.ConflictError
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"status": "success", "rule": toRuleResponse(created)})
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"detail": gin.H{
			"message": conflict.Error(),
			"existing_rule": gin.H{
				"key":      conflict.Existing.Key(),
				"category": conflict.Existing.Category,
			},
		}})
	default:
		internalError(c, h.logger, "failed to save rule", err)
	}
}

// Delete handles DELETE /api/rules/:key where key is URL-encoded.
func (h *RuleHandler) Delete(c *gin.Context) {
	key := c.Param("key")

	err := h.store.Remove(c.Request.Context(), key)
	var notFound *rules.NotFoundError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "key": model.NormalizeKey(key)})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	default:
		internalError(c, h.logger, "failed to delete rule", err)
	}
}
