package public

import (
	"github.com/mall-next/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
)

func getUserID(c *gin.Context) (uint, bool) {
	return shared.GetContextUint(c, shared.ContextKeyUserID)
}
