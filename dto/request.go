package dto

import (
	"errors"
	"mime/multipart"
	"path/filepath"
	"strings"
)

var allowedUploadExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true,
	".bmp": true, ".gif": true, ".pdf": true,
}

// OCRUploadRequest represents an invoice image upload
type OCRUploadRequest struct {
	File   *multipart.FileHeader `form:"file" binding:"required"`
	Vendor string                `form:"vendor"`
}

// Validate performs basic validation on the request
func (r *OCRUploadRequest) Validate(maxSize int64) error {
	if r.File == nil {
		return errors.New("file is required")
	}
	if maxSize > 0 && r.File.Size > maxSize {
		return errors.New("file exceeds the maximum upload size")
	}
	ext := strings.ToLower(filepath.Ext(r.File.Filename))
	if !allowedUploadExtensions[ext] {
		return errors.New("unsupported file type " + ext)
	}
	return nil
}
