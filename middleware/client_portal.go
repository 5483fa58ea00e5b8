package middleware

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const portalScope = "client_portal"

// PortalClaims is the payload of a client portal token: a time-limited grant
// to review one project without a platform account.
type PortalClaims struct {
	ProjectID uint   `json:"project_id"`
	Scope     string `json:"scope"`
	jwt.RegisteredClaims
}

// GeneratePortalToken signs a portal token for a project. The expiry defaults
// to 7 days and can be tuned with PORTAL_TOKEN_EXPIRE_HOURS.
func GeneratePortalToken(projectID uint) (string, error) {
	expireHours, err := strconv.Atoi(os.Getenv("PORTAL_TOKEN_EXPIRE_HOURS"))
	if err != nil {
		expireHours = 24 * 7
	}

	claims := PortalClaims{
		ProjectID: projectID,
		Scope:     portalScope,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("JWT_SECRET")))
}

// ClientPortalMiddleware validates the portal token carried in the `token`
// query parameter and pins the request to its project.
func ClientPortalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Portal token is required"})
			c.Abort()
			return
		}

		token, err := jwt.ParseWithClaims(tokenString, &PortalClaims{}, func(token *jwt.Token) (interface{}, error) {
			return []byte(os.Getenv("JWT_SECRET")), nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired portal link"})
			c.Abort()
			return
		}

		claims, ok := token.Claims.(*PortalClaims)
		if !ok || claims.Scope != portalScope {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid portal token"})
			c.Abort()
			return
		}

		c.Set("portalProjectID", claims.ProjectID)
		c.Next()
	}
}

// PortalProjectID extracts the project id pinned by ClientPortalMiddleware.
func PortalProjectID(c *gin.Context) uint {
	projectID, _ := c.Get("portalProjectID")
	id, _ := projectID.(uint)
	return id
}
