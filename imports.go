package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmvendtrack/vending_backend/models"
)

// importRawSalesXlsxHandler accepts a multipart upload ("file" field) and
// ingests the workbook as one FILE-sourced batch.
func importRawSalesXlsxHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not open upload: " + err.Error()})
			return
		}
		defer file.Close()

		result, err := models.ImportRawSalesFromXlsx(c.Request.Context(), fileHeader.Filename, file)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}
