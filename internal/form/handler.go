package form

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the read-only form lookups the fill flow
// needs. Form creation and editing belong to the builder service.
func RegisterRoutes(r *gin.Engine, defs Definitions, mw ...gin.HandlerFunc) {
	g := r.Group("/api/forms", mw...)

	g.GET("/:id", func(c *gin.Context) {
		f, err := defs.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			if err == ErrNotFound {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "form not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "server error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": f})
	})

	g.GET("/share/:link", func(c *gin.Context) {
		f, err := defs.GetByShareLink(c.Request.Context(), c.Param("link"))
		if err != nil {
			if err == ErrNotFound {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "form not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "server error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": f})
	})
}
