package diag

import (
	_ "embed"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// IndexHTMLPath overrides the embedded page when the file exists.
const IndexHTMLPath = "./ui/index.html"

//go:embed ui/index.html
var IndexHTML string

func (s *Server) index(c *gin.Context) {
	if stat, err := os.Stat(IndexHTMLPath); err == nil && !stat.IsDir() {
		c.File(IndexHTMLPath)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(IndexHTML))
}
