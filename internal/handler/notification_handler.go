package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-workflow-api/internal/dto"
	"github.com/noah-isme/clinic-workflow-api/internal/middleware"
	"github.com/noah-isme/clinic-workflow-api/internal/models"
	appErrors "github.com/noah-isme/clinic-workflow-api/pkg/errors"
	"github.com/noah-isme/clinic-workflow-api/pkg/response"
)

type notificationService interface {
	Send(ctx context.Context, req dto.SendNotificationRequest, actor *models.Actor) (*models.Notification, error)
	Update(ctx context.Context, id int64, req dto.UpdateNotificationRequest, actor *models.Actor) (*models.Notification, error)
	ResolveVisible(ctx context.Context, viewer models.NotificationViewer) ([]models.Notification, error)
}

// NotificationHandler exposes notification addressing and feeds.
type NotificationHandler struct {
	service notificationService
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(service notificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// Send godoc
// @Summary Send a notification
// @Description recipient_group accepts all_patients, all_doctors, all_staff, all_admins, all or individual. recipient_id is required for individual and rejected otherwise.
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body dto.SendNotificationRequest true "Notification"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /notifications [post]
func (h *NotificationHandler) Send(c *gin.Context) {
	var req dto.SendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid notification payload"))
		return
	}
	notification, err := h.service.Send(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "notification sent", notification)
}

// Update godoc
// @Summary Update a notification
// @Tags Notifications
// @Accept json
// @Produce json
// @Param id path int true "Notification ID"
// @Param payload body dto.UpdateNotificationRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /notifications/{id} [put]
func (h *NotificationHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid notification payload"))
		return
	}
	notification, err := h.service.Update(c.Request.Context(), id, req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "notification updated", notification)
}

// List godoc
// @Summary List notifications visible to a viewer
// @Description Admins may view any feed through role and user_id; without a role they see every notification. Other callers always see their own feed.
// @Tags Notifications
// @Produce json
// @Param role query string false "Viewer role"
// @Param user_id query int false "Viewer user ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	viewer, err := viewerFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.service.ResolveVisible(c.Request.Context(), viewer)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "viewer_role", viewerRoleLabel(viewer))
	response.JSON(c, http.StatusOK, items, nil, middleware.ExtractMeta(c))
}

func viewerFromRequest(c *gin.Context) (models.NotificationViewer, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return models.NotificationViewer{}, appErrors.ErrUnauthorized
	}
	role := models.UserRole(strings.ToLower(strings.TrimSpace(c.Query("role"))))
	userID, err := optionalQueryID(c, "user_id")
	if err != nil {
		return models.NotificationViewer{}, err
	}

	if claims.Role == models.RoleAdmin {
		viewer := models.NotificationViewer{Role: role}
		if userID != nil {
			viewer.ID = *userID
		}
		return viewer, nil
	}

	if (role != "" && role != claims.Role) || (userID != nil && *userID != claims.UserID) {
		return models.NotificationViewer{}, appErrors.Clone(appErrors.ErrForbidden, "only admins may read another viewer's notifications")
	}
	return models.NotificationViewer{Role: claims.Role, ID: claims.UserID}, nil
}

func viewerRoleLabel(viewer models.NotificationViewer) string {
	if viewer.SeesEverything() {
		return string(models.RoleAdmin)
	}
	return string(viewer.Role)
}
