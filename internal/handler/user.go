package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/amazona/backend/internal/logger"
	"github.com/amazona/backend/internal/model"
	"github.com/amazona/backend/internal/service"
)

type UserHandler struct {
	svc *service.UserService
	log *logger.Logger
}

func NewUserHandler(svc *service.UserService, log *logger.Logger) *UserHandler {
	return &UserHandler{svc: svc, log: log}
}

// Signup godoc
// @Summary Register a new user
// @Tags users
// @Accept json
// @Produce json
// @Param request body model.SignupRequest true "Name, email and password"
// @Success 200 {object} model.UserResponse
// @Failure 400,409,500 {object} model.MessageResponse
// @Router /api/users/signup [post]
func (h *UserHandler) Signup(c *gin.Context) {
	var req model.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.MessageResponse{Message: "Invalid request"})
		return
	}

	user, token, err := h.svc.Signup(c.Request.Context(), req)
	if err != nil {
		h.writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewUserResponse(user, token))
}

// Signin godoc
// @Summary Sign in
// @Tags users
// @Accept json
// @Produce json
// @Param request body model.SigninRequest true "Email and password"
// @Success 200 {object} model.UserResponse
// @Failure 401,500 {object} model.MessageResponse
// @Router /api/users/signin [post]
func (h *UserHandler) Signin(c *gin.Context) {
	var req model.SigninRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.MessageResponse{Message: "Invalid request"})
		return
	}

	user, token, err := h.svc.Signin(c.Request.Context(), req)
	if err != nil {
		h.writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewUserResponse(user, token))
}

// UpdateProfile godoc
// @Summary Update own profile
// @Description Empty fields keep their current value. Returns a fresh token.
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.ProfileUpdateRequest true "Profile fields"
// @Success 200 {object} model.UserResponse
// @Failure 400,401,404,409,500 {object} model.MessageResponse
// @Router /api/users/profile [put]
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	current := GetAuthUser(c)
	if current == nil {
		c.JSON(http.StatusUnauthorized, model.MessageResponse{Message: msgNoToken})
		return
	}

	var req model.ProfileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.MessageResponse{Message: "Invalid request"})
		return
	}

	user, token, err := h.svc.UpdateProfile(c.Request.Context(), current.ID, req)
	if err != nil {
		h.writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewUserResponse(user, token))
}

// ForgotPassword godoc
// @Summary Request a password reset link
// @Description Stores a reset token valid for 3 hours and mails the link. Mail delivery errors are not reported.
// @Tags users
// @Accept json
// @Produce json
// @Param request body model.ForgotPasswordRequest true "Account email"
// @Success 200 {object} model.MessageResponse
// @Failure 404,500 {object} model.MessageResponse
// @Router /api/users/forget-password [post]
func (h *UserHandler) ForgotPassword(c *gin.Context) {
	var req model.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.MessageResponse{Message: "Invalid request"})
		return
	}

	if err := h.svc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.MessageResponse{Message: "We sent reset password link to your email."})
}

// ResetPassword godoc
// @Summary Reset password with a reset token
// @Tags users
// @Accept json
// @Produce json
// @Param request body model.ResetPasswordRequest true "Reset token and new password"
// @Success 200 {object} model.MessageResponse
// @Failure 400,401,404,500 {object} model.MessageResponse
// @Router /api/users/reset-password [post]
func (h *UserHandler) ResetPassword(c *gin.Context) {
	var req model.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.MessageResponse{Message: "Invalid request"})
		return
	}

	if err := h.svc.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		h.writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.MessageResponse{Message: "Password reset successfully"})
}

// ListUsers godoc
// @Summary List users
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.UserResponse
// @Failure 401,500 {object} model.MessageResponse
// @Router /api/users/ [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.writeAdminError(c, err)
		return
	}

	res := make([]model.UserResponse, 0, len(users))
	for i := range users {
		res = append(res, model.NewUserResponse(&users[i], ""))
	}
	c.JSON(http.StatusOK, res)
}

// GetUser godoc
// @Summary Get a user by ID
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} model.UserResponse
// @Failure 401,404,500 {object} model.MessageResponse
// @Router /api/users/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := h.userID(c)
	if !ok {
		return
	}

	user, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.writeAdminError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewUserResponse(user, ""))
}

// UpdateUser godoc
// @Summary Edit a user
// @Description The bootstrap admin always keeps its admin flag and email.
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body model.AdminUpdateRequest true "User fields"
// @Success 200 {object} model.UserUpdatedResponse
// @Failure 400,401,404,409,500 {object} model.MessageResponse
// @Router /api/users/{id} [put]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, ok := h.userID(c)
	if !ok {
		return
	}

	var req model.AdminUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.MessageResponse{Message: "Invalid request"})
		return
	}

	user, err := h.svc.AdminUpdate(c.Request.Context(), id, req)
	if err != nil {
		h.writeAdminError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.UserUpdatedResponse{
		Message: "User Updated",
		User:    model.NewUserResponse(user, ""),
	})
}

// DeleteUser godoc
// @Summary Delete a user
// @Description The bootstrap admin can not be deleted.
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} model.MessageResponse
// @Failure 400,401,404,500 {object} model.MessageResponse
// @Router /api/users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := h.userID(c)
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		h.writeAdminError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.MessageResponse{Message: "User Deleted"})
}

func (h *UserHandler) userID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, model.MessageResponse{Message: "User Not Found"})
		return uuid.Nil, false
	}
	return id, true
}

// writeAdminError keeps the capitalised not-found message of the admin routes.
func (h *UserHandler) writeAdminError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, model.MessageResponse{Message: "User Not Found"})
		return
	}
	h.writeUserError(c, err)
}

func (h *UserHandler) writeUserError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, model.MessageResponse{Message: "Invalid input"})
	case errors.Is(err, service.ErrPasswordRequired):
		c.JSON(http.StatusBadRequest, model.MessageResponse{Message: "Password is required"})
	case errors.Is(err, service.ErrProtectedUser):
		c.JSON(http.StatusBadRequest, model.MessageResponse{Message: "Can Not Delete Admin User"})
	case errors.Is(err, service.ErrProtectedEmail):
		c.JSON(http.StatusBadRequest, model.MessageResponse{Message: "Can Not Change Admin Email"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, model.MessageResponse{Message: "Invalid email or password"})
	case errors.Is(err, service.ErrMissingCredential):
		c.JSON(http.StatusUnauthorized, model.MessageResponse{Message: msgNoToken})
	case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrExpiredToken):
		c.JSON(http.StatusUnauthorized, model.MessageResponse{Message: msgInvalidToken})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusUnauthorized, model.MessageResponse{Message: msgInvalidAdminToken})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, model.MessageResponse{Message: "User not found"})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, model.MessageResponse{Message: "Email already registered"})
	default:
		h.log.ErrorContext(c.Request.Context(), "request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, model.MessageResponse{Message: "server error"})
	}
}
