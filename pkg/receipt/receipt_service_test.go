package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sujithprog/receipt-scanner/domain"
	"github.com/sujithprog/receipt-scanner/entities"
)

type fakeReceiptRepository struct {
	receipts    map[string]*entities.Receipt
	createCalls int
	updateCalls int
	createErr   error
	updateErr   error
	lastUpdated *entities.Receipt
}

func newFakeReceiptRepository() *fakeReceiptRepository {
	return &fakeReceiptRepository{receipts: map[string]*entities.Receipt{}}
}

func (r *fakeReceiptRepository) CreateReceipt(ctx context.Context, receipt *entities.Receipt) error {
	r.createCalls++
	if r.createErr != nil {
		return r.createErr
	}
	r.receipts[receipt.ID.String()] = receipt
	return nil
}

func (r *fakeReceiptRepository) GetReceiptByID(ctx context.Context, id string) (*entities.Receipt, error) {
	receipt, ok := r.receipts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return receipt, nil
}

func (r *fakeReceiptRepository) UpdateReceipt(ctx context.Context, receipt *entities.Receipt) error {
	r.updateCalls++
	if r.updateErr != nil {
		return r.updateErr
	}
	r.lastUpdated = receipt
	r.receipts[receipt.ID.String()] = receipt
	return nil
}

func (r *fakeReceiptRepository) GetReceipts(ctx context.Context, userID string, page, limit int) ([]*entities.Receipt, int64, error) {
	var out []*entities.Receipt
	for _, receipt := range r.receipts {
		if receipt.UserID.String() == userID {
			out = append(out, receipt)
		}
	}
	return out, int64(len(out)), nil
}

type fakeExtractionClient struct {
	text         string
	err          error
	calls        int
	lastImageURL string
}

func (c *fakeExtractionClient) ExtractReceipt(ctx context.Context, imageURL string) (string, error) {
	c.calls++
	c.lastImageURL = imageURL
	if c.err != nil {
		return "", c.err
	}
	return c.text, nil
}

type fakeStorage struct {
	uploadErr    error
	uploadCalls  int
	lastFileName string
	lastDir      string
}

func (s *fakeStorage) UploadFile(fileName string, file *multipart.FileHeader, dir string, allowedTypes ...string) (string, error) {
	s.uploadCalls++
	s.lastFileName = fileName
	s.lastDir = dir
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	return dir + "/" + fileName + ".jpg", nil
}

func (s *fakeStorage) UpdateFile(objectKey string, file *multipart.FileHeader, allowedTypes ...string) (string, error) {
	return objectKey, nil
}

func (s *fakeStorage) DeleteFile(objectKey string) error { return nil }

func (s *fakeStorage) GetPublicLinkKey(objectKey string) string {
	return "https://bucket.s3.test/" + objectKey
}

func (s *fakeStorage) GetObjectKeyFromLink(link string) string { return "" }

func makeImageFileHeader(t *testing.T) *multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="receipt_image"; filename="receipt.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(&buf, writer.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	return form.File["receipt_image"][0]
}

func seedReceipt(repo *fakeReceiptRepository, userID uuid.UUID) *entities.Receipt {
	receipt := &entities.Receipt{
		ID:       uuid.New(),
		UserID:   userID,
		ImageURL: "https://bucket.s3.test/receipts/img.jpg",
		Status:   entities.ReceiptStatusPending,
		Items:    []byte("[]"),
	}
	repo.receipts[receipt.ID.String()] = receipt
	return receipt
}

func TestUploadReceipt(t *testing.T) {
	repo := newFakeReceiptRepository()
	store := &fakeStorage{}
	service := NewReceiptService(repo, store, &fakeExtractionClient{})

	userID := uuid.New().String()
	req := domain.UploadReceiptRequest{ReceiptImage: makeImageFileHeader(t)}

	res, err := service.UploadReceipt(context.Background(), req, userID)
	require.NoError(t, err)

	assert.Equal(t, 1, store.uploadCalls)
	assert.Equal(t, "receipts/"+userID, store.lastDir)
	assert.Equal(t, 1, repo.createCalls)

	assert.NotEmpty(t, res.ReceiptID)
	assert.Equal(t, entities.ReceiptStatusPending, res.Status)
	assert.Contains(t, res.ImageURL, "https://bucket.s3.test/")

	created := repo.receipts[res.ReceiptID]
	require.NotNil(t, created)
	assert.Equal(t, userID, created.UserID.String())
	assert.Equal(t, "", created.MerchantName)
	assert.JSONEq(t, "[]", string(created.Items))
}

func TestUploadReceiptInvalidUserID(t *testing.T) {
	service := NewReceiptService(newFakeReceiptRepository(), &fakeStorage{}, &fakeExtractionClient{})

	_, err := service.UploadReceipt(context.Background(), domain.UploadReceiptRequest{ReceiptImage: makeImageFileHeader(t)}, "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrParseUUID)
}

func TestUploadReceiptStorageFailure(t *testing.T) {
	repo := newFakeReceiptRepository()
	store := &fakeStorage{uploadErr: fmt.Errorf("file type text/plain is not allowed")}
	service := NewReceiptService(repo, store, &fakeExtractionClient{})

	_, err := service.UploadReceipt(context.Background(), domain.UploadReceiptRequest{ReceiptImage: makeImageFileHeader(t)}, uuid.New().String())
	assert.ErrorIs(t, err, domain.ErrInvalidImageFormat)
	assert.Equal(t, 0, repo.createCalls)
}

func TestProcessReceipt(t *testing.T) {
	repo := newFakeReceiptRepository()
	userID := uuid.New()
	seeded := seedReceipt(repo, userID)

	extractor := &fakeExtractionClient{
		text: "Here is the data:\n```json\n{\"storeName\":\"Acme\",\"date\":\"2024-03-01\",\"total\":12.5,\"items\":[{\"name\":\"milk\",\"price\":2.5}]}\n```",
	}
	service := NewReceiptService(repo, &fakeStorage{}, extractor)

	req := domain.ProcessReceiptRequest{ImageURL: seeded.ImageURL, ReceiptID: seeded.ID.String()}
	res, err := service.ProcessReceipt(context.Background(), req, userID.String())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "Acme", res.Data["merchantName"])
	assert.Equal(t, 12.5, res.Data["total"])

	assert.Equal(t, 1, extractor.calls)
	assert.Equal(t, seeded.ImageURL, extractor.lastImageURL)

	require.Equal(t, 1, repo.updateCalls)
	updated := repo.lastUpdated
	assert.Equal(t, entities.ReceiptStatusProcessed, updated.Status)
	assert.Equal(t, "Acme", updated.MerchantName)
	assert.Equal(t, "2024-03-01", updated.Date)
	assert.Equal(t, "12.5", updated.Total)
	assert.Equal(t, "", updated.Subtotal)
	assert.Equal(t, "", updated.Tax)

	var items []map[string]any
	require.NoError(t, json.Unmarshal(updated.Items, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "milk", items[0]["name"])

	var raw map[string]any
	require.NoError(t, json.Unmarshal(updated.RawExtraction, &raw))
	assert.Equal(t, "Acme", raw["storeName"])
}

func TestProcessReceiptExtractionFailure(t *testing.T) {
	repo := newFakeReceiptRepository()
	userID := uuid.New()
	seeded := seedReceipt(repo, userID)

	extractor := &fakeExtractionClient{
		err: fmt.Errorf("%w: network timeout", domain.ErrExtractionFailed),
	}
	service := NewReceiptService(repo, &fakeStorage{}, extractor)

	req := domain.ProcessReceiptRequest{ImageURL: seeded.ImageURL, ReceiptID: seeded.ID.String()}
	_, err := service.ProcessReceipt(context.Background(), req, userID.String())

	assert.ErrorIs(t, err, domain.ErrExtractionFailed)
	// extraction failure must leave the store untouched
	assert.Equal(t, 0, repo.updateCalls)
	assert.Equal(t, entities.ReceiptStatusPending, repo.receipts[seeded.ID.String()].Status)
}

func TestProcessReceiptPersistenceFailure(t *testing.T) {
	repo := newFakeReceiptRepository()
	repo.updateErr = fmt.Errorf("connection reset")
	userID := uuid.New()
	seeded := seedReceipt(repo, userID)

	extractor := &fakeExtractionClient{
		text: "```json\n{\"storeName\":\"Acme\",\"total\":12.5}\n```",
	}
	service := NewReceiptService(repo, &fakeStorage{}, extractor)

	req := domain.ProcessReceiptRequest{ImageURL: seeded.ImageURL, ReceiptID: seeded.ID.String()}
	res, err := service.ProcessReceipt(context.Background(), req, userID.String())

	require.ErrorIs(t, err, domain.ErrPersistenceFailed)
	// the normalized result computed before the failed write stays available
	require.NotNil(t, res.Data)
	assert.Equal(t, "Acme", res.Data["merchantName"])
	assert.False(t, res.Success)
	assert.Equal(t, 1, repo.updateCalls)
}

func TestProcessReceiptNotFound(t *testing.T) {
	extractor := &fakeExtractionClient{}
	service := NewReceiptService(newFakeReceiptRepository(), &fakeStorage{}, extractor)

	req := domain.ProcessReceiptRequest{ImageURL: "https://x.test/a.jpg", ReceiptID: uuid.New().String()}
	_, err := service.ProcessReceipt(context.Background(), req, uuid.New().String())

	assert.ErrorIs(t, err, domain.ErrReceiptNotFound)
	assert.Equal(t, 0, extractor.calls)
}

func TestProcessReceiptWrongOwner(t *testing.T) {
	repo := newFakeReceiptRepository()
	seeded := seedReceipt(repo, uuid.New())

	extractor := &fakeExtractionClient{}
	service := NewReceiptService(repo, &fakeStorage{}, extractor)

	req := domain.ProcessReceiptRequest{ImageURL: seeded.ImageURL, ReceiptID: seeded.ID.String()}
	_, err := service.ProcessReceipt(context.Background(), req, uuid.New().String())

	assert.ErrorIs(t, err, domain.ErrUnauthorizedAccess)
	assert.Equal(t, 0, extractor.calls)
	assert.Equal(t, 0, repo.updateCalls)
}

func TestProcessReceiptDegradedResponse(t *testing.T) {
	repo := newFakeReceiptRepository()
	userID := uuid.New()
	seeded := seedReceipt(repo, userID)

	extractor := &fakeExtractionClient{text: "Sorry, I could not read the image."}
	service := NewReceiptService(repo, &fakeStorage{}, extractor)

	req := domain.ProcessReceiptRequest{ImageURL: seeded.ImageURL, ReceiptID: seeded.ID.String()}
	res, err := service.ProcessReceipt(context.Background(), req, userID.String())
	require.NoError(t, err)

	// degraded normalization is not a failure: the record still completes
	assert.True(t, res.Success)
	assert.Equal(t, "Sorry, I could not read the image.", res.Data["rawText"])

	updated := repo.lastUpdated
	assert.Equal(t, entities.ReceiptStatusProcessed, updated.Status)
	assert.Equal(t, "", updated.MerchantName)
	assert.Equal(t, "", updated.Total)
	assert.JSONEq(t, "[]", string(updated.Items))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(updated.RawExtraction, &raw))
	assert.Equal(t, "Sorry, I could not read the image.", raw["rawText"])
}

func TestGetReceiptByID(t *testing.T) {
	repo := newFakeReceiptRepository()
	userID := uuid.New()
	seeded := seedReceipt(repo, userID)
	seeded.MerchantName = "Acme"
	seeded.Status = entities.ReceiptStatusProcessed
	seeded.Items = []byte(`[{"name":"milk","price":2.5}]`)
	seeded.RawExtraction = []byte(`{"storeName":"Acme"}`)

	service := NewReceiptService(repo, &fakeStorage{}, &fakeExtractionClient{})

	res, err := service.GetReceiptByID(context.Background(), seeded.ID.String(), userID.String())
	require.NoError(t, err)
	assert.Equal(t, "Acme", res.MerchantName)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "milk", res.Items[0].Name)
	assert.Equal(t, "Acme", res.RawExtraction["storeName"])

	_, err = service.GetReceiptByID(context.Background(), seeded.ID.String(), uuid.New().String())
	assert.ErrorIs(t, err, domain.ErrUnauthorizedAccess)

	_, err = service.GetReceiptByID(context.Background(), uuid.New().String(), userID.String())
	assert.ErrorIs(t, err, domain.ErrReceiptNotFound)
}

func TestGetReceipts(t *testing.T) {
	repo := newFakeReceiptRepository()
	userID := uuid.New()
	seedReceipt(repo, userID)
	seedReceipt(repo, userID)
	seedReceipt(repo, uuid.New())

	service := NewReceiptService(repo, &fakeStorage{}, &fakeExtractionClient{})

	receipts, count, err := service.GetReceipts(context.Background(), userID.String(), 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Len(t, receipts, 2)
}
