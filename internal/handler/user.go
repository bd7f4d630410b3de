package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/shopease/shop-ease-backend/internal/middleware"
	"github.com/shopease/shop-ease-backend/internal/model"
	"github.com/shopease/shop-ease-backend/internal/service"
	"github.com/shopease/shop-ease-backend/internal/utils"
)

// UserHandler serves /sys/user.
type UserHandler struct {
	Sessions *service.SessionManager
	Users    *service.UserService
	Verifier middleware.AccessVerifier
}

func NewUserHandler(s *service.SessionManager, u *service.UserService, v middleware.AccessVerifier) *UserHandler {
	return &UserHandler{Sessions: s, Users: u, Verifier: v}
}

// ----- DTOs -----

type loginReq struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type registerReq struct {
	Username        string `json:"username" validate:"required,min=2,max=20,username"`
	Password        string `json:"password" validate:"required,min=6,max=20,password"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	Nickname        string `json:"nickname" validate:"max=50"`
	Phone           string `json:"phone" validate:"omitempty,phone"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordReq struct {
	OldPassword        string `json:"oldPassword" validate:"required"`
	NewPassword        string `json:"newPassword" validate:"required,min=6,max=20,password"`
	ConfirmNewPassword string `json:"confirmNewPassword" validate:"required,eqfield=NewPassword"`
}

type updateUserReq struct {
	Nickname string `json:"nickname" validate:"max=50"`
	Phone    string `json:"phone" validate:"omitempty,phone"`
}

type loginResp struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	UserID           int64     `json:"userId"`
	Username         string    `json:"username"`
	Nickname         string    `json:"nickname"`
	Avatar           string    `json:"avatar"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type refreshResp struct {
	AccessToken     string    `json:"accessToken"`
	AccessExpiresAt time.Time `json:"accessExpiresAt"`
}

type userInfo struct {
	UserID     int64     `json:"userId"`
	Username   string    `json:"username"`
	Nickname   string    `json:"nickname"`
	Phone      string    `json:"phone"`
	Avatar     string    `json:"avatar"`
	CreateTime time.Time `json:"createTime"`
}

func bindValid(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return err
	}
	return c.Validate(req)
}

// identity re-verifies the caller's access token.
func (h *UserHandler) identity(c echo.Context) (utils.Identity, error) {
	id, err := middleware.IdentityFrom(c, h.Verifier)
	if err != nil {
		return utils.Identity{}, echo.NewHTTPError(http.StatusUnauthorized).SetInternal(err)
	}
	return id, nil
}

// Login: verify credentials and return a token pair.
func (h *UserHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	res, err := h.Sessions.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.Success(loginResp{
		AccessToken:      res.Access.Token,
		RefreshToken:     res.Refresh.Raw,
		UserID:           res.UserID,
		Username:         res.Username,
		Nickname:         res.Nickname,
		Avatar:           res.Avatar,
		AccessExpiresAt:  res.Access.Exp,
		RefreshExpiresAt: res.Refresh.Exp,
	}))
}

// Register: create an account.  No tokens are issued; the client logs in next.
func (h *UserHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	if _, err := h.Users.Register(c.Request().Context(), service.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Nickname: req.Nickname,
		Phone:    req.Phone,
	}); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.Success(nil))
}

// RefreshToken: exchange a refresh token for a new access token without rotating it.
func (h *UserHandler) RefreshToken(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return err
	}
	access, err := h.Sessions.RefreshAccess(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.Success(refreshResp{AccessToken: access.Token, AccessExpiresAt: access.Exp}))
}

// Logout: revoke the given refresh token.
func (h *UserHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := h.Sessions.Logout(c.Request().Context(), req.RefreshToken); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.Success(nil))
}

// ChangePassword: replace the password and log the user out everywhere.
func (h *UserHandler) ChangePassword(c echo.Context) error {
	id, err := h.identity(c)
	if err != nil {
		return err
	}
	var req changePasswordReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	if _, err := h.Users.ChangePassword(c.Request().Context(), id.UserID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.Success(nil))
}

// Current: profile of the caller.
func (h *UserHandler) Current(c echo.Context) error {
	id, err := h.identity(c)
	if err != nil {
		return err
	}
	u, err := h.Users.Current(c.Request().Context(), id.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.Success(userInfo{
		UserID:     u.ID,
		Username:   u.Username,
		Nickname:   u.Nickname,
		Phone:      u.Phone,
		Avatar:     u.Avatar,
		CreateTime: u.CreatedAt,
	}))
}

// UpdateCurrent: change the caller's nickname and phone.
func (h *UserHandler) UpdateCurrent(c echo.Context) error {
	id, err := h.identity(c)
	if err != nil {
		return err
	}
	var req updateUserReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	if err := h.Users.UpdateCurrent(c.Request().Context(), id.UserID, req.Nickname, req.Phone); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.Success(nil))
}
