package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sujithprog/receipt-scanner/domain"
	"github.com/sujithprog/receipt-scanner/entities"
	"github.com/sujithprog/receipt-scanner/internal/utils/storage"
	"github.com/sujithprog/receipt-scanner/pkg/extraction"
)

type (
	ReceiptService interface {
		UploadReceipt(ctx context.Context, req domain.UploadReceiptRequest, userID string) (domain.UploadReceiptResponse, error)
		ProcessReceipt(ctx context.Context, req domain.ProcessReceiptRequest, userID string) (domain.ProcessReceiptResponse, error)
		GetReceipts(ctx context.Context, userID string, page, limit int) ([]domain.ReceiptSummaryResponse, int64, error)
		GetReceiptByID(ctx context.Context, id string, userID string) (domain.ReceiptDetailResponse, error)
	}

	receiptService struct {
		receiptRepository ReceiptRepository
		s3                storage.AwsS3
		extractionClient  extraction.Client
	}
)

func NewReceiptService(receiptRepository ReceiptRepository, s3 storage.AwsS3, extractionClient extraction.Client) ReceiptService {
	return &receiptService{
		receiptRepository: receiptRepository,
		s3:                s3,
		extractionClient:  extractionClient,
	}
}

// UploadReceipt stores the image and creates the pending record. Extraction
// is a separate call; a receipt whose processing fails stays uploaded.
func (s *receiptService) UploadReceipt(ctx context.Context, req domain.UploadReceiptRequest, userID string) (domain.UploadReceiptResponse, error) {
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return domain.UploadReceiptResponse{}, domain.ErrParseUUID
	}

	fileName := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.New().String())
	dir := fmt.Sprintf("receipts/%s", userID)

	objectKey, err := s.s3.UploadFile(fileName, req.ReceiptImage, dir, storage.AllowImage...)
	if err != nil {
		return domain.UploadReceiptResponse{}, fmt.Errorf("%w: %v", domain.ErrInvalidImageFormat, err)
	}

	receipt := &entities.Receipt{
		ID:       uuid.New(),
		UserID:   userUUID,
		ImageURL: s.s3.GetPublicLinkKey(objectKey),
		Status:   entities.ReceiptStatusPending,
		Items:    []byte("[]"),
	}

	if err := s.receiptRepository.CreateReceipt(ctx, receipt); err != nil {
		return domain.UploadReceiptResponse{}, err
	}

	return domain.UploadReceiptResponse{
		ReceiptID: receipt.ID.String(),
		ImageURL:  receipt.ImageURL,
		Status:    receipt.Status,
	}, nil
}

// ProcessReceipt runs the ingestion pipeline for one record: extraction call,
// normalization, then a single write setting status to processed. Extraction
// failure leaves the record untouched. A failed write still returns the
// normalized result alongside ErrPersistenceFailed so the caller can log or
// surface it. Concurrent calls against the same id are not locked; the last
// write wins.
func (s *receiptService) ProcessReceipt(ctx context.Context, req domain.ProcessReceiptRequest, userID string) (domain.ProcessReceiptResponse, error) {
	receipt, err := s.receiptRepository.GetReceiptByID(ctx, req.ReceiptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ProcessReceiptResponse{}, domain.ErrReceiptNotFound
		}
		return domain.ProcessReceiptResponse{}, err
	}

	if receipt.UserID.String() != userID {
		return domain.ProcessReceiptResponse{}, domain.ErrUnauthorizedAccess
	}

	responseText, err := s.extractionClient.ExtractReceipt(ctx, req.ImageURL)
	if err != nil {
		return domain.ProcessReceiptResponse{}, err
	}

	fields := extraction.Normalize(responseText)

	itemsJSON, err := json.Marshal(extraction.FieldItems(fields))
	if err != nil {
		return domain.ProcessReceiptResponse{}, err
	}
	rawJSON, err := json.Marshal(fields)
	if err != nil {
		return domain.ProcessReceiptResponse{}, err
	}

	receipt.MerchantName = extraction.FieldString(fields, "merchantName")
	receipt.Date = extraction.FieldString(fields, "date")
	receipt.Total = extraction.FieldString(fields, "total")
	receipt.Subtotal = extraction.FieldString(fields, "subtotal")
	receipt.Tax = extraction.FieldString(fields, "tax")
	receipt.Items = itemsJSON
	receipt.RawExtraction = rawJSON
	receipt.Status = entities.ReceiptStatusProcessed

	if err := s.receiptRepository.UpdateReceipt(ctx, receipt); err != nil {
		return domain.ProcessReceiptResponse{
			Success: false,
			Data:    fields,
		}, fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, err)
	}

	return domain.ProcessReceiptResponse{
		Success: true,
		Data:    fields,
	}, nil
}

func (s *receiptService) GetReceipts(ctx context.Context, userID string, page, limit int) ([]domain.ReceiptSummaryResponse, int64, error) {
	receipts, count, err := s.receiptRepository.GetReceipts(ctx, userID, page, limit)
	if err != nil {
		return nil, 0, err
	}

	var response []domain.ReceiptSummaryResponse
	for _, r := range receipts {
		response = append(response, domain.ReceiptSummaryResponse{
			ID:           r.ID.String(),
			ImageURL:     r.ImageURL,
			Status:       r.Status,
			MerchantName: r.MerchantName,
			Date:         r.Date,
			Total:        r.Total,
			CreatedAt:    r.CreatedAt,
		})
	}

	return response, count, nil
}

func (s *receiptService) GetReceiptByID(ctx context.Context, id string, userID string) (domain.ReceiptDetailResponse, error) {
	receipt, err := s.receiptRepository.GetReceiptByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ReceiptDetailResponse{}, domain.ErrReceiptNotFound
		}
		return domain.ReceiptDetailResponse{}, err
	}

	if receipt.UserID.String() != userID {
		return domain.ReceiptDetailResponse{}, domain.ErrUnauthorizedAccess
	}

	var items []domain.ReceiptItem
	if len(receipt.Items) > 0 {
		if err := json.Unmarshal(receipt.Items, &items); err != nil {
			items = nil
		}
	}
	if items == nil {
		items = []domain.ReceiptItem{}
	}

	var rawExtraction map[string]any
	if len(receipt.RawExtraction) > 0 {
		if err := json.Unmarshal(receipt.RawExtraction, &rawExtraction); err != nil {
			rawExtraction = nil
		}
	}

	return domain.ReceiptDetailResponse{
		ID:            receipt.ID.String(),
		ImageURL:      receipt.ImageURL,
		Status:        receipt.Status,
		MerchantName:  receipt.MerchantName,
		Date:          receipt.Date,
		Total:         receipt.Total,
		Subtotal:      receipt.Subtotal,
		Tax:           receipt.Tax,
		Items:         items,
		RawExtraction: rawExtraction,
		CreatedAt:     receipt.CreatedAt,
		UpdatedAt:     receipt.UpdatedAt,
	}, nil
}
