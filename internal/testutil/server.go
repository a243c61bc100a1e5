package testutil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/roach88/morgisync/internal/remote"
)

// NewServer serves f over HTTP with the store's routes and a websocket live
// channel at /ws. The server is closed when the test ends.
func NewServer(t testing.TB, f *FakeRemote) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(Router(f))
	t.Cleanup(func() {
		f.DropConnections()
		srv.Close()
	})
	return srv
}

// Router builds the gin engine serving f.
func Router(f *FakeRemote) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/images", func(c *gin.Context) {
		images, err := f.FetchImages(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, images)
	})

	r.GET("/categories", func(c *gin.Context) {
		cats, err := f.FetchCategories(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"categories": cats})
	})

	r.POST("/categories", func(c *gin.Context) {
		var body struct {
			Name string `json:"name"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
			return
		}
		cat, err := f.CreateCategory(c.Request.Context(), body.Name)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, cat)
	})

	r.PATCH("/categories/rename", func(c *gin.Context) {
		var body struct {
			OldName string `json:"oldName"`
			NewName string `json:"newName"`
			Merge   bool   `json:"merge"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
			return
		}
		res, err := f.RenameCategory(c.Request.Context(), body.OldName, body.NewName, body.Merge)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})

	r.DELETE("/categories", func(c *gin.Context) {
		var req remote.DeleteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
			return
		}
		res, err := f.DeleteCategory(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})

	r.PATCH("/images/:id/trash", func(c *gin.Context) {
		if err := f.Trash(c.Request.Context(), c.Param("id")); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "trashed"})
	})

	r.PATCH("/images/toggle-favorite/:id", func(c *gin.Context) {
		id := c.Param("id")
		fav, err := f.ToggleFavorite(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "id": id, "isFavorite": fav})
	})

	r.PATCH("/images/change-category", func(c *gin.Context) {
		var body struct {
			ID       string `json:"id"`
			Category string `json:"category"`
			Restore  bool   `json:"restore"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
			return
		}
		if err := f.ChangeCategory(c.Request.Context(), body.ID, body.Category, body.Restore); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.DELETE("/images/permanent-delete/:id", func(c *gin.Context) {
		if err := f.PermanentDelete(c.Request.Context(), c.Param("id")); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	})

	r.DELETE("/empty-trash", func(c *gin.Context) {
		if _, err := f.EmptyTrash(c.Request.Context()); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "trash emptied"})
	})

	r.POST("/images/:id/verify-and-shield", func(c *gin.Context) {
		safe, err := f.VerifyAndShield(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "safe_path": safe})
	})

	r.POST("/add-image", func(c *gin.Context) {
		var draft remote.ImageDraft
		if err := c.ShouldBindJSON(&draft); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
			return
		}
		res, err := f.SaveImage(c.Request.Context(), draft)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	r.GET("/ws", func(c *gin.Context) {
		live, err := f.Dial(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			live.Close()
			return
		}
		go pumpLive(ws, live)
	})

	return r
}

// pumpLive forwards broadcast messages to ws until either side closes.
func pumpLive(ws *websocket.Conn, live remote.Conn) {
	defer ws.Close()
	defer live.Close()

	// The client never sends; reading only detects its close.
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				live.Close()
				return
			}
		}
	}()

	for {
		msg, err := live.Read()
		if err != nil {
			return
		}
		if err := ws.WriteJSON(msg); err != nil {
			return
		}
	}
}

func fail(c *gin.Context, err error) {
	var se *remote.StatusError
	if errors.As(err, &se) {
		c.JSON(se.Status, gin.H{"detail": se.Detail})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"detail": err.Error()})
}
