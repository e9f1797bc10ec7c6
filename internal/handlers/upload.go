package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/millomarket/marketplace/internal/logging"
)

// UploadHandler stores product images on local disk and hands back the URL
// they are served under.
type UploadHandler struct {
	Dir string
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

const maxImageSize = 8 << 20

func (h *UploadHandler) Upload(c echo.Context) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "image file required")
	}
	if fh.Size > maxImageSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "image too large")
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !imageExts[ext] {
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported image type")
	}

	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	defer src.Close()

	if err := os.MkdirAll(h.Dir, 0o755); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	name := fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(),
		strings.ReplaceAll(uuid.NewString(), "-", "")[:9], ext)
	dst, err := os.Create(filepath.Join(h.Dir, name))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	url := "/uploads/" + name
	logging.FromContext(c.Request().Context()).Info("image uploaded", "file", name, "size", fh.Size)
	return c.JSON(http.StatusCreated, map[string]string{"url": url})
}
