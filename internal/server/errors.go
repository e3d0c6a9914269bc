package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	apikeydomain "github.com/wasteflow/wasteflow/internal/apikey/domain"
	"github.com/wasteflow/wasteflow/internal/apperr"
	auditdomain "github.com/wasteflow/wasteflow/internal/audit/domain"
	"github.com/wasteflow/wasteflow/internal/authz"
	itemdomain "github.com/wasteflow/wasteflow/internal/billingitem/domain"
	summarydomain "github.com/wasteflow/wasteflow/internal/billingsummary/domain"
	collectiondomain "github.com/wasteflow/wasteflow/internal/collection/domain"
	collectordomain "github.com/wasteflow/wasteflow/internal/collector/domain"
	ruledomain "github.com/wasteflow/wasteflow/internal/commissionrule/domain"
	organizationdomain "github.com/wasteflow/wasteflow/internal/organization/domain"
	"github.com/wasteflow/wasteflow/pkg/db"
)

type errorPayload struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return apperr.Validation("request", "malformed request body or query")
}

func mapError(err error) (int, errorPayload) {
	var validation *apperr.ValidationError
	if errors.As(err, &validation) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: validation.Error(),
			Field:   validation.Field,
		}
	}

	var crossTenant *authz.CrossTenantBatchError
	if errors.As(err, &crossTenant) {
		orgs := make([]string, 0, len(crossTenant.Orgs))
		for _, id := range crossTenant.Orgs {
			orgs = append(orgs, id.String())
		}
		return http.StatusBadRequest, errorPayload{
			Type:    "cross_tenant_batch",
			Message: crossTenant.Error(),
			Details: map[string]any{"org_ids": orgs},
		}
	}

	var itemTransition *itemdomain.InvalidTransitionError
	if errors.As(err, &itemTransition) {
		return http.StatusConflict, errorPayload{
			Type:    "invalid_transition",
			Message: itemTransition.Error(),
			Details: map[string]any{
				"current":   itemTransition.Current,
				"requested": itemTransition.Requested,
				"allowed":   itemTransition.Allowed,
			},
		}
	}

	var immutable *itemdomain.ImmutableStateError
	if errors.As(err, &immutable) {
		return http.StatusConflict, errorPayload{
			Type:    "immutable_state",
			Message: immutable.Error(),
			Details: map[string]any{
				"item_id": immutable.ItemID,
				"status":  immutable.Status,
			},
		}
	}

	var summaryTransition *summarydomain.InvalidTransitionError
	if errors.As(err, &summaryTransition) {
		return http.StatusConflict, errorPayload{
			Type:    "invalid_transition",
			Message: summaryTransition.Error(),
			Details: map[string]any{
				"current":   summaryTransition.Current,
				"requested": summaryTransition.Requested,
				"allowed":   summaryTransition.Allowed,
			},
		}
	}

	var incomplete *summarydomain.IncompleteApprovalError
	if errors.As(err, &incomplete) {
		return http.StatusConflict, errorPayload{
			Type:    "incomplete_approval",
			Message: incomplete.Error(),
			Details: map[string]any{
				"approved": incomplete.Approved,
				"total":    incomplete.Total,
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, apikeydomain.ErrInvalidAPIKey):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}

	case errors.Is(err, authz.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}

	case errors.Is(err, itemdomain.ErrItemNotFound),
		errors.Is(err, summarydomain.ErrSummaryNotFound),
		errors.Is(err, collectordomain.ErrCollectorNotFound),
		errors.Is(err, ruledomain.ErrRuleNotFound),
		errors.Is(err, organizationdomain.ErrOrganizationNotFound),
		errors.Is(err, apikeydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "resource not found",
		}

	case errors.Is(err, collectordomain.ErrDuplicateCode),
		db.IsDuplicateKeyErr(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}

	case isDomainValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

func isDomainValidationError(err error) bool {
	for _, candidate := range []error{
		ErrInvalidRequest,
		authz.ErrInvalidActor,
		authz.ErrInvalidOrganization,
		authz.ErrInvalidObject,
		authz.ErrInvalidAction,
		collectordomain.ErrInvalidName,
		collectordomain.ErrInvalidCode,
		collectordomain.ErrInvalidMonthlyFee,
		collectiondomain.ErrInvalidWasteItem,
		collectiondomain.ErrInvalidQuantity,
		collectiondomain.ErrInvalidUnitPrice,
		organizationdomain.ErrInvalidName,
		organizationdomain.ErrInvalidUser,
		organizationdomain.ErrInvalidRole,
		organizationdomain.ErrInvalidOrganization,
		auditdomain.ErrInvalidOrganization,
		auditdomain.ErrInvalidPageToken,
		auditdomain.ErrInvalidTimeRange,
		auditdomain.ErrInvalidAction,
		apikeydomain.ErrInvalidName,
		apikeydomain.ErrInvalidKeyID,
		apikeydomain.ErrInvalidOrganization,
	} {
		if errors.Is(err, candidate) {
			return true
		}
	}
	return false
}

// classifyErrorForLog buckets errors for the request log. The second
// value is a stable machine code.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= 500:
		return "server_error", payload.Type
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "auth_error", payload.Type
	default:
		return "client_error", payload.Type
	}
}
