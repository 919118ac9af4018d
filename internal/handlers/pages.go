package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mehtapradnyatama/appsampah/internal/auth"
	"github.com/mehtapradnyatama/appsampah/internal/logging"
	"github.com/mehtapradnyatama/appsampah/internal/usecase"
)

const (
	msgProcessingFailed = "Error processing image. Please try again."
	msgInvalidFileType  = "Invalid file type. Please upload PNG, JPG, JPEG, GIF, WebP or HEIC files."
	msgNoFile           = "No file selected"
	msgTooLarge         = "File too large"
)

func (h *Handler) index(c *gin.Context) {
	h.render(c, http.StatusOK, "index.html", nil)
}

func (h *Handler) about(c *gin.Context) {
	h.render(c, http.StatusOK, "about.html", gin.H{"Labels": h.opts.Labels})
}

func (h *Handler) registerForm(c *gin.Context) {
	h.render(c, http.StatusOK, "register.html", gin.H{"Username": "", "Email": ""})
}

func (h *Handler) register(c *gin.Context) {
	in := usecase.RegisterInput{
		Username:        c.PostForm("username"),
		Email:           c.PostForm("email"),
		Password:        c.PostForm("password"),
		ConfirmPassword: c.PostForm("confirm_password"),
	}
	form := gin.H{"Username": in.Username, "Email": in.Email}

	_, err := h.users.Register(c.Request.Context(), in)
	var vErr *usecase.ValidationError
	switch {
	case err == nil:
		addFlash(c, flashSuccess, "Registration successful! Please login.")
		h.redirect(c, "/login")
		return
	case errors.As(err, &vErr):
		addFlash(c, flashError, vErr.Message)
	case errors.Is(err, usecase.ErrEmailTaken):
		addFlash(c, flashError, "Email already registered")
	default:
		h.requestLogger(c, "http.register").Error("registration failed", zap.Error(err))
		addFlash(c, flashError, "Registration failed. Please try again.")
	}
	h.render(c, http.StatusOK, "register.html", form)
}

func (h *Handler) loginForm(c *gin.Context) {
	h.render(c, http.StatusOK, "login.html", gin.H{"Email": ""})
}

func (h *Handler) login(c *gin.Context) {
	email := c.PostForm("email")
	user, err := h.users.Login(c.Request.Context(), email, c.PostForm("password"))
	var vErr *usecase.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &vErr):
		addFlash(c, flashError, vErr.Message)
		h.render(c, http.StatusOK, "login.html", gin.H{"Email": email})
		return
	case errors.Is(err, usecase.ErrInvalidCredentials):
		addFlash(c, flashError, "Invalid email or password")
		h.render(c, http.StatusOK, "login.html", gin.H{"Email": email})
		return
	default:
		h.requestLogger(c, "http.login").Error("login failed", zap.Error(err))
		addFlash(c, flashError, "Login failed. Please try again.")
		h.render(c, http.StatusOK, "login.html", gin.H{"Email": email})
		return
	}

	token, _, err := h.tokens.Issue(auth.Identity{UserID: user.ID, Username: user.Username, Email: user.Email})
	if err != nil {
		h.requestLogger(c, "http.login").Error("failed to issue session token", zap.Error(err))
		addFlash(c, flashError, "Login failed. Please try again.")
		h.render(c, http.StatusOK, "login.html", gin.H{"Email": email})
		return
	}
	h.setCookie(c, auth.SessionCookie, token, int(h.tokens.TTL().Seconds()))
	addFlash(c, flashSuccess, "Login successful!")
	h.redirect(c, "/classify")
}

func (h *Handler) logout(c *gin.Context) {
	h.setCookie(c, auth.SessionCookie, "", -1)
	addFlash(c, flashInfo, "You have been logged out")
	h.redirect(c, "/")
}

func (h *Handler) classifyForm(c *gin.Context) {
	h.render(c, http.StatusOK, "classify.html", nil)
}

func (h *Handler) classify(c *gin.Context) {
	userID, _ := auth.GetUserID(c.Request.Context())
	limitBody(c, h.opts.MaxUploadBytes)

	file, err := c.FormFile("file")
	if err != nil {
		if isBodyTooLarge(err) {
			addFlash(c, flashError, msgTooLarge)
			h.render(c, http.StatusRequestEntityTooLarge, "classify.html", nil)
			return
		}
		addFlash(c, flashError, msgNoFile)
		h.render(c, http.StatusOK, "classify.html", nil)
		return
	}

	src, err := file.Open()
	if err != nil {
		addFlash(c, flashError, msgProcessingFailed)
		h.render(c, http.StatusOK, "classify.html", nil)
		return
	}
	defer src.Close()

	result, err := h.classifications.Classify(c.Request.Context(), userID, file.Filename, src)
	var vErr *usecase.ValidationError
	switch {
	case err == nil:
		h.render(c, http.StatusOK, "classify.html", gin.H{"Result": result})
		return
	case errors.As(err, &vErr):
		addFlash(c, flashError, vErr.Message)
	case errors.Is(err, usecase.ErrUnsupportedFile):
		addFlash(c, flashError, msgInvalidFileType)
	default:
		addFlash(c, flashError, msgProcessingFailed)
	}
	h.render(c, http.StatusOK, "classify.html", nil)
}

func (h *Handler) dashboard(c *gin.Context) {
	userID, _ := auth.GetUserID(c.Request.Context())

	history, err := h.classifications.History(c.Request.Context(), userID)
	if err != nil {
		addFlash(c, flashError, "Could not load your classification history.")
		history = &usecase.History{ClassCounts: map[string]int{}}
	}
	h.render(c, http.StatusOK, "dashboard.html", gin.H{
		"Classifications":      history.Records,
		"TotalClassifications": history.Total,
		"ClassCounts":          history.ClassCounts,
	})
}

func (h *Handler) requestLogger(c *gin.Context, operation string) *zap.Logger {
	return logging.WithOperation(h.logger, operation, logging.RequestIDFromContext(c.Request.Context()))
}
