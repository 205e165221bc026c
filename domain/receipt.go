package domain

import (
	"errors"
	"mime/multipart"
	"time"
)

var (
	MessageSuccessUploadReceipt  = "receipt uploaded successfully"
	MessageSuccessProcessReceipt = "receipt processed successfully"
	MessageSuccessGetReceipts    = "receipts retrieved successfully"
	MessageSuccessGetReceipt     = "receipt retrieved successfully"

	MessageFailedUploadReceipt  = "failed to upload receipt"
	MessageFailedProcessReceipt = "failed to process receipt"
	MessageFailedSaveResults    = "receipt processed but results could not be saved"
	MessageFailedGetReceipts    = "failed to retrieve receipts"
	MessageFailedGetReceipt     = "failed to retrieve receipt"

	ErrReceiptNotFound    = errors.New("receipt not found")
	ErrUnauthorizedAccess = errors.New("unauthorized access to receipt")
	ErrInvalidImageFormat = errors.New("invalid image format")
	ErrExtractionFailed   = errors.New("receipt extraction failed")
	ErrPersistenceFailed  = errors.New("failed to persist extraction results")
)

type (
	UploadReceiptRequest struct {
		ReceiptImage *multipart.FileHeader `json:"receipt_image" form:"receipt_image" validate:"required"`
	}

	UploadReceiptResponse struct {
		ReceiptID string `json:"receipt_id"`
		ImageURL  string `json:"image_url"`
		Status    string `json:"status"`
	}

	ProcessReceiptRequest struct {
		ImageURL  string `json:"image_url" validate:"required,url"`
		ReceiptID string `json:"receipt_id" validate:"required,uuid"`
	}

	ProcessReceiptResponse struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}

	ReceiptItem struct {
		Name  string `json:"name"`
		Price any    `json:"price"`
	}

	ReceiptSummaryResponse struct {
		ID           string    `json:"id"`
		ImageURL     string    `json:"image_url"`
		Status       string    `json:"status"`
		MerchantName string    `json:"merchant_name"`
		Date         string    `json:"date"`
		Total        string    `json:"total"`
		CreatedAt    time.Time `json:"created_at"`
	}

	ReceiptDetailResponse struct {
		ID            string         `json:"id"`
		ImageURL      string         `json:"image_url"`
		Status        string         `json:"status"`
		MerchantName  string         `json:"merchant_name"`
		Date          string         `json:"date"`
		Total         string         `json:"total"`
		Subtotal      string         `json:"subtotal"`
		Tax           string         `json:"tax"`
		Items         []ReceiptItem  `json:"items"`
		RawExtraction map[string]any `json:"raw_extraction,omitempty"`
		CreatedAt     time.Time      `json:"created_at"`
		UpdatedAt     time.Time      `json:"updated_at"`
	}
)
