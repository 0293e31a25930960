package api

import (
	"errors"   // Error inspection
	"net/http" // HTTP status codes
	"regexp"   // Regular expressions
	"strings"  // String manipulation
	"time"     // Token lifetime

	"github.com/gin-gonic/gin"   // Gin web framework
	"golang.org/x/crypto/bcrypt" // Password hashing

	"wallet_sync/internal/domain"  // Importing domain models
	"wallet_sync/internal/economy" // Account service
	"wallet_sync/internal/store"   // Not-found sentinel
	"wallet_sync/internal/utils"   // Utility functions
)

// Request and Response structs
type RegisterRequest struct {
	Username    string `json:"username" binding:"required"` // Username must be provided
	Password    string `json:"password" binding:"required"` // Password must be provided
	DisplayName string `json:"display_name"`                // Name shown to other accounts, defaults to the username
}

// Request struct for login
type LoginRequest struct {
	Username string `json:"username" binding:"required"` // Username must be provided
	Password string `json:"password" binding:"required"` // Password must be provided
}

// Response struct for authentication
type AuthResponse struct {
	Token     string `json:"token"`      // JWT token
	AccountID string `json:"account_id"` // Account the token belongs to
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z]+$`) // Alphabetic characters only

// isValidUsername checks if the username contains only alphabetic characters
func isValidUsername(username string) bool {
	return usernamePattern.MatchString(username) // Return whether it matched
}

// isValidPassword checks if the password length is between 8 and 15 characters
func isValidPassword(password string) bool {
	return len(password) >= 8 && len(password) <= 15 // Return true if length is valid
}

// RegisterHandler creates an account with a zero balance
func RegisterHandler(svc *economy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Validate username and password
		if !isValidUsername(req.Username) {
			// If username is invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username must be alphabetic only"})
			return
		}
		// Validate password length
		if !isValidPassword(req.Password) {
			// If password is invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be 8-15 characters"})
			return
		}
		// Hash the password and create the account
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			// If hashing fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}
		// Create account with lowercase username to ensure uniqueness
		profile, err := svc.CreateAccount(c.Request.Context(), strings.ToLower(req.Username), req.DisplayName, string(hash), domain.RoleUser)
		if err != nil {
			// If creation fails (e.g., duplicate username), return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username already exists"})
			return
		}
		// Return success response
		c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "account_id": profile.AccountID})
	}
}

// LoginHandler authenticates an account and returns a JWT token
func LoginHandler(svc *economy.Service, jwtSecret string, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		profile, err := svc.ProfileByUsername(c.Request.Context(), strings.ToLower(req.Username)) // Fetch profile
		if errors.Is(err, store.ErrNotFound) {
			// If account not found, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		} else if err != nil {
			// Database unavailable
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Login unavailable"})
			return
		}
		// Compare provided password with stored hash
		if err := bcrypt.CompareHashAndPassword([]byte(profile.Password), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		// Generate JWT token
		token, err := utils.GenerateJWT(profile.AccountID, jwtSecret, ttl)
		if err != nil {
			// If token generation fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		// Return the token in the response
		c.JSON(http.StatusOK, AuthResponse{Token: token, AccountID: profile.AccountID})
	}
}
